package config

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/stratumdb/stratum/internal/model"
)

// Store manages Stratum's internal configuration state backed by SQLite.
// It persists registered connections and key-value settings.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new config store. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "stratum.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open config database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate config database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Connection CRUD
// ---------------------------------------------------------------------------

// CreateConnection inserts a new connection. The ID, CreatedAt, and
// UpdatedAt fields on conn are populated after a successful insert. A zero
// port is replaced by the engine's conventional default.
func (s *Store) CreateConnection(ctx context.Context, conn *model.Connection) error {
	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now
	if conn.Port == 0 {
		conn.Port = model.DefaultPort(conn.Engine)
	}
	if conn.Status == "" {
		conn.Status = model.StatusActive
	}

	const q = `INSERT INTO connections
		(name, engine, host, port, database_name, username, password, schema_name,
		 tls_enabled, status, created_at, updated_at)
		VALUES
		(:name, :engine, :host, :port, :database_name, :username, :password, :schema_name,
		 :tls_enabled, :status, :created_at, :updated_at)`

	result, err := s.db.NamedExecContext(ctx, q, conn)
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get connection id: %w", err)
	}
	conn.ID = id
	return nil
}

// GetConnection returns a connection by ID.
func (s *Store) GetConnection(ctx context.Context, id int64) (*model.Connection, error) {
	var conn model.Connection
	if err := s.db.GetContext(ctx, &conn, "SELECT * FROM connections WHERE id = ?", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return &conn, nil
}

// GetConnectionByName returns a connection by its unique name.
func (s *Store) GetConnectionByName(ctx context.Context, name string) (*model.Connection, error) {
	var conn model.Connection
	if err := s.db.GetContext(ctx, &conn, "SELECT * FROM connections WHERE name = ?", name); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get connection by name: %w", err)
	}
	return &conn, nil
}

// ListConnections returns all registered connections ordered by name.
func (s *Store) ListConnections(ctx context.Context) ([]model.Connection, error) {
	var conns []model.Connection
	if err := s.db.SelectContext(ctx, &conns, "SELECT * FROM connections ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return conns, nil
}

// UpdateConnection updates an existing connection. The UpdatedAt field on
// conn is refreshed automatically.
func (s *Store) UpdateConnection(ctx context.Context, conn *model.Connection) error {
	conn.UpdatedAt = time.Now().UTC()

	const q = `UPDATE connections SET
		name = :name, engine = :engine, host = :host, port = :port,
		database_name = :database_name, username = :username, password = :password,
		schema_name = :schema_name, tls_enabled = :tls_enabled, status = :status,
		updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, conn)
	if err != nil {
		return fmt.Errorf("update connection: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update connection rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConnection removes a connection by ID. Persisted introspection
// metadata lives in the metadata store and is deleted by the caller.
func (s *Store) DeleteConnection(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM connections WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete connection rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkIntrospected records a successful introspection pass: the
// last_introspection timestamp is set and the status becomes active.
func (s *Store) MarkIntrospected(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		"UPDATE connections SET last_introspection = ?, status = ?, updated_at = ? WHERE id = ?",
		now, model.StatusActive, now, id)
	if err != nil {
		return fmt.Errorf("mark introspected: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark introspected rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetConnectionStatus updates only the status of a connection.
func (s *Store) SetConnectionStatus(ctx context.Context, id int64, status string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE connections SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set connection status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set connection status rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns the value for a settings key, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	if err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = ?", key); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting stores a key-value pair, replacing any existing value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	const q = `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}
