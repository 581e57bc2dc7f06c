package model

import "time"

// Engine identifies a relational database product with its own native
// catalog API.
type Engine string

// Supported and declared engine types. MSSQL and Oracle are declared for
// forward compatibility but no inspector is registered for them yet.
const (
	EnginePostgres Engine = "postgresql"
	EngineMySQL    Engine = "mysql"
	EngineSQLite   Engine = "sqlite"
	EngineMSSQL    Engine = "mssql"
	EngineOracle   Engine = "oracle"
)

// Connection status values.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusError    = "error"
)

// Connection describes where to introspect: one target database plus the
// credentials to reach it. It is passed by value into the introspection
// core, which never mutates or stores it.
type Connection struct {
	ID       int64  `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Engine   Engine `json:"engine" db:"engine"`
	Host     string `json:"host" db:"host"`
	Port     int    `json:"port" db:"port"`
	Database string `json:"database" db:"database_name"`
	Username string `json:"username" db:"username"`
	Password string `json:"password,omitempty" db:"password"`
	// Schema is the namespace to introspect. Empty means the engine
	// default: "public" for PostgreSQL, the database name for MySQL,
	// "main" for SQLite.
	Schema     string `json:"schema,omitempty" db:"schema_name"`
	TLSEnabled bool   `json:"tls_enabled" db:"tls_enabled"`

	Status            string     `json:"status" db:"status"`
	LastIntrospection *time.Time `json:"last_introspection,omitempty" db:"last_introspection"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// DefaultPort returns the conventional port for an engine, or 0 when the
// engine has no network port (SQLite).
func DefaultPort(engine Engine) int {
	switch engine {
	case EnginePostgres:
		return 5432
	case EngineMySQL:
		return 3306
	case EngineMSSQL:
		return 1433
	case EngineOracle:
		return 1521
	default:
		return 0
	}
}
