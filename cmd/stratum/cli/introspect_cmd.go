package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratumdb/stratum/internal/introspect"
)

func newIntrospectCmd() *cobra.Command {
	var (
		jsonOutput bool
		showTables bool
	)

	cmd := &cobra.Command{
		Use:   "introspect <name>",
		Short: "Introspect a connection and persist its schema metadata",
		Long: `Run a full introspection pass against a registered connection. The
discovered tables, columns, and relationships replace any previously
persisted snapshot for that connection.`,
		Example: `  stratum introspect mydb
  stratum introspect mydb --tables   # print the discovered tables afterwards`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIntrospect(args[0], jsonOutput, showTables)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the summary as JSON")
	cmd.Flags().BoolVar(&showTables, "tables", false, "Print the discovered tables after introspection")

	return cmd
}

func runIntrospect(name string, jsonOutput, showTables bool) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	meta, err := openMetadataStore()
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer meta.Close()

	ctx := context.Background()

	conn, err := store.GetConnectionByName(ctx, name)
	if err != nil {
		return fmt.Errorf("look up connection %q: %w", name, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	svc := introspect.NewService(newRegistry(logger), meta, logger)

	summary, err := svc.Run(ctx, *conn)
	if err != nil {
		return fmt.Errorf("introspect %q: %w", name, err)
	}

	if err := store.MarkIntrospected(ctx, conn.ID); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record introspection time: %v\n", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
	} else {
		fmt.Printf("Introspected %q: %d tables, %d relations", name, summary.TableCount, summary.RelationCount)
		if summary.SkippedRelations > 0 {
			fmt.Printf(" (%d relations skipped)", summary.SkippedRelations)
		}
		fmt.Println()
	}

	if showTables {
		tables, err := meta.GetTablesByConnection(ctx, conn.ID)
		if err != nil {
			return fmt.Errorf("load tables: %w", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tables)
	}

	return nil
}
