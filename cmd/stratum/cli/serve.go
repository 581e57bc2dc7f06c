package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stratumdb/stratum/internal/introspect"
	"github.com/stratumdb/stratum/internal/server"
	"github.com/stratumdb/stratum/internal/telemetry"
)

const banner = `
 ___ _____ ___    _ _____ _   _ __  __
/ __|_   _| _ \  /_\_   _| | | |  \/  |
\__ \ | | |   / / _ \| | | |_| | |\/| |
|___/ |_| |_|_\/_/ \_\_|  \___/|_|  |_|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Stratum API server",
		Long:  "Start the HTTP server that exposes the connection registry and the discovered schema metadata.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging, CORS *)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	// Set up logger
	logLevel := slog.LevelInfo
	if dev {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	ctx := context.Background()

	// 1. Initialize the connection registry and metadata catalog (SQLite)
	dir := resolveDataDir()
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("init config store: %w", err)
	}
	defer store.Close()

	meta, err := openMetadataStore()
	if err != nil {
		return fmt.Errorf("init metadata store: %w", err)
	}
	defer meta.Close()
	logger.Info("stores initialized", "path", dir)

	// 2. Register engine inspectors
	registry := newRegistry(logger)
	logger.Info("inspector registry initialized", "engines", registry.Engines())

	// 3. Introspection service
	svc := introspect.NewService(registry, meta, logger)

	// 4. Anonymous telemetry (nil when disabled)
	tracker := telemetry.New(ctx, store, func() telemetry.Properties {
		props := telemetry.Properties{
			Version:   versionString(),
			GoVersion: runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
		}
		conns, err := store.ListConnections(ctx)
		if err != nil {
			return props
		}
		props.Connections = len(conns)
		engines := map[string]bool{}
		for _, c := range conns {
			engines[string(c.Engine)] = true
			tables, err := meta.GetTablesByConnection(ctx, c.ID)
			if err == nil {
				props.Tables += len(tables)
			}
			rels, err := meta.GetRelationsByConnection(ctx, c.ID)
			if err == nil {
				props.Relations += len(rels)
			}
		}
		for e := range engines {
			props.Engines = append(props.Engines, e)
		}
		return props
	})
	if tracker != nil {
		telemetry.PrintNotice()
		tracker.Start()
		defer tracker.Shutdown()
	}

	// 5. Build and start HTTP server
	srvCfg := server.Config{
		Host:              host,
		Port:              port,
		ShutdownTimeout:   30 * time.Second,
		CORSOrigins:       []string{"*"},
		RequestsPerMinute: 300,
		MaxBodySize:       10 * 1024 * 1024,
	}
	if dev {
		srvCfg.RequestsPerMinute = 0
	}

	srv := server.New(srvCfg, store, meta, svc, logger)

	fmt.Printf("→ Stratum %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ API:     http://%s:%d/api/v1/connections\n", host, port)
	fmt.Printf("→ Health:  http://%s:%d/healthz\n", host, port)
	fmt.Println()

	return srv.ListenAndServe()
}
