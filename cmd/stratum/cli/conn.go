package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stratumdb/stratum/internal/model"
)

func newConnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conn",
		Aliases: []string{"connection", "db"},
		Short:   "Manage database connections",
		Long:    "Add, remove, test, and list database connections in the registry.",
	}

	cmd.AddCommand(newConnAddCmd())
	cmd.AddCommand(newConnListCmd())
	cmd.AddCommand(newConnRemoveCmd())
	cmd.AddCommand(newConnTestCmd())

	return cmd
}

// ---------- conn add ----------

func newConnAddCmd() *cobra.Command {
	var (
		name     string
		engine   string
		host     string
		port     int
		database string
		username string
		password string
		schema   string
		useTLS   bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a database connection",
		Long: `Add a new database connection to the registry. Provide flags for
non-interactive use; the password is prompted for when omitted.

Supported engines: postgresql, mysql, sqlite`,
		Example: `  stratum conn add --name mydb --engine postgresql --host db.internal --database mydb --username stratum
  stratum conn add --name local --engine sqlite --database /var/data/app.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnAdd(name, engine, host, port, database, username, password, schema, useTLS)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Connection name (unique identifier)")
	cmd.Flags().StringVar(&engine, "engine", "", "Database engine (postgresql, mysql, sqlite)")
	cmd.Flags().StringVar(&host, "host", "", "Database host")
	cmd.Flags().IntVar(&port, "port", 0, "Database port (default depends on engine)")
	cmd.Flags().StringVar(&database, "database", "", "Database name, or file path for sqlite")
	cmd.Flags().StringVar(&username, "username", "", "Database username")
	cmd.Flags().StringVar(&password, "password", "", "Database password (prompted when omitted)")
	cmd.Flags().StringVar(&schema, "schema", "", "Schema to introspect (default depends on engine)")
	cmd.Flags().BoolVar(&useTLS, "tls", false, "Connect with TLS")

	return cmd
}

func runConnAdd(name, engine, host string, port int, database, username, password, schema string, useTLS bool) error {
	// Interactive prompts when flags are missing
	if name == "" {
		fmt.Print("Connection name: ")
		fmt.Scanln(&name)
	}
	if engine == "" {
		fmt.Print("Engine (postgresql, mysql, sqlite): ")
		fmt.Scanln(&engine)
	}
	if database == "" {
		fmt.Print("Database (name, or file path for sqlite): ")
		fmt.Scanln(&database)
	}

	if name == "" || engine == "" || database == "" {
		return fmt.Errorf("name, engine, and database are required")
	}

	switch model.Engine(engine) {
	case model.EnginePostgres, model.EngineMySQL, model.EngineSQLite:
	default:
		return fmt.Errorf("unsupported engine %q; supported: postgresql, mysql, sqlite", engine)
	}

	if model.Engine(engine) != model.EngineSQLite {
		if host == "" {
			fmt.Print("Host: ")
			fmt.Scanln(&host)
		}
		if host == "" {
			return fmt.Errorf("host is required for engine %q", engine)
		}
		if username == "" {
			fmt.Print("Username: ")
			fmt.Scanln(&username)
		}
		if password == "" && term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Print("Password: ")
			pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			password = strings.TrimSpace(string(pwBytes))
		}
	}

	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	conn := &model.Connection{
		Name:       name,
		Engine:     model.Engine(engine),
		Host:       host,
		Port:       port,
		Database:   database,
		Username:   username,
		Password:   password,
		Schema:     schema,
		TLSEnabled: useTLS,
	}

	if err := store.CreateConnection(context.Background(), conn); err != nil {
		return fmt.Errorf("create connection: %w", err)
	}

	fmt.Printf("Added connection %q (engine=%s, id=%d)\n", name, engine, conn.ID)
	return nil
}

// ---------- conn list ----------

func newConnListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List all registered connections",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runConnList(jsonOutput bool) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	conns, err := store.ListConnections(context.Background())
	if err != nil {
		return fmt.Errorf("list connections: %w", err)
	}

	if jsonOutput {
		type connRow struct {
			Name     string `json:"name"`
			Engine   string `json:"engine"`
			Host     string `json:"host"`
			Database string `json:"database"`
			Status   string `json:"status"`
		}
		rows := make([]connRow, len(conns))
		for i, c := range conns {
			rows[i] = connRow{
				Name:     c.Name,
				Engine:   string(c.Engine),
				Host:     c.Host,
				Database: c.Database,
				Status:   c.Status,
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(conns) == 0 {
		fmt.Println("No connections configured. Use 'stratum conn add' to add one.")
		return nil
	}

	fmt.Printf("%-20s %-12s %-24s %-8s\n", "NAME", "ENGINE", "DATABASE", "STATUS")
	fmt.Printf("%-20s %-12s %-24s %-8s\n", "----", "------", "--------", "------")
	for _, c := range conns {
		fmt.Printf("%-20s %-12s %-24s %-8s\n", c.Name, c.Engine, c.Database, c.Status)
	}

	return nil
}

// ---------- conn remove ----------

func newConnRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm", "delete"},
		Short:   "Remove a connection and its discovered metadata",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnRemove(args[0])
		},
	}

	return cmd
}

func runConnRemove(name string) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	conn, err := store.GetConnectionByName(ctx, name)
	if err != nil {
		return fmt.Errorf("look up connection %q: %w", name, err)
	}

	if err := store.DeleteConnection(ctx, conn.ID); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}

	meta, err := openMetadataStore()
	if err == nil {
		defer meta.Close()
		if err := meta.DeleteByConnection(ctx, conn.ID); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove metadata: %v\n", err)
		}
	}

	fmt.Printf("Removed connection %q\n", name)
	return nil
}

// ---------- conn test ----------

func newConnTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test <name>",
		Short: "Test a database connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnTest(args[0])
		},
	}

	return cmd
}

func runConnTest(name string) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	conn, err := store.GetConnectionByName(ctx, name)
	if err != nil {
		return fmt.Errorf("look up connection %q: %w", name, err)
	}

	registry := newRegistry(nil)
	insp, err := registry.For(conn.Engine)
	if err != nil {
		return err
	}

	fmt.Printf("Testing connection %q (engine=%s)...\n", name, conn.Engine)

	if !insp.TestConnection(ctx, *conn) {
		return fmt.Errorf("database unreachable")
	}

	fmt.Println("Connection successful.")
	return nil
}
