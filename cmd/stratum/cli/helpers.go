package cli

import (
	"log/slog"
	"os"
	"strings"

	"github.com/stratumdb/stratum/internal/config"
	"github.com/stratumdb/stratum/internal/inspector"
	"github.com/stratumdb/stratum/internal/inspector/mysql"
	"github.com/stratumdb/stratum/internal/inspector/postgres"
	"github.com/stratumdb/stratum/internal/inspector/sqlite"
	"github.com/stratumdb/stratum/internal/metadata"
	"github.com/stratumdb/stratum/internal/model"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// STRATUM_DATA_DIR env var, or ~/.stratum as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("STRATUM_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.stratum"
}

// openConfigStore opens the SQLite connection registry, defaulting to
// ~/.stratum if no data dir was specified.
func openConfigStore() (*config.Store, error) {
	return config.NewStore(resolveDataDir())
}

// openMetadataStore opens the SQLite metadata catalog in the same data dir.
func openMetadataStore() (*metadata.Store, error) {
	return metadata.NewStore(resolveDataDir())
}

// newRegistry creates an inspector registry with all supported engines registered.
func newRegistry(logger *slog.Logger) *inspector.Registry {
	registry := inspector.NewRegistry()
	registry.Register(model.EnginePostgres, func() inspector.Inspector { return postgres.New(logger) })
	registry.Register(model.EngineMySQL, func() inspector.Inspector { return mysql.New(logger) })
	registry.Register(model.EngineSQLite, func() inspector.Inspector { return sqlite.New(logger) })
	return registry
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
