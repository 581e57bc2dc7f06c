package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratumdb/stratum/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "openapi <connection>",
		Short: "Generate an OpenAPI specification from discovered metadata",
		Long: `Generate an OpenAPI 3.1 specification describing the schema of a
connection. The spec is built from the persisted metadata snapshot, so run
'stratum introspect' first.`,
		Example: `  stratum openapi mydb              # print spec to stdout
  stratum openapi mydb -o spec.json # write to file`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpenAPI(args[0], outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")

	return cmd
}

func runOpenAPI(name, outputFile string) error {
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

	tables, err := meta.GetTablesByConnection(ctx, conn.ID)
	if err != nil {
		return fmt.Errorf("load tables: %w", err)
	}
	if len(tables) == 0 {
		return fmt.Errorf("no metadata for %q; run 'stratum introspect %s' first", name, name)
	}

	doc := openapi.GenerateConnectionSpec(*conn, tables, "http://localhost:8080")

	jsonBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, jsonBytes, 0644); err != nil {
			return fmt.Errorf("write spec: %w", err)
		}
		fmt.Printf("Wrote OpenAPI spec for %q to %s\n", name, outputFile)
		return nil
	}

	fmt.Println(string(jsonBytes))
	return nil
}
