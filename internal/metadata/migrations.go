package metadata

import (
	"fmt"
	"strings"
)

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS discovered_tables (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			connection_id INTEGER NOT NULL,
			table_name TEXT NOT NULL,
			schema_name TEXT NOT NULL DEFAULT '',
			table_kind TEXT NOT NULL DEFAULT 'table',
			row_count INTEGER,
			comment TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(connection_id, schema_name, table_name)
		)`,

		`CREATE TABLE IF NOT EXISTS discovered_columns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			table_id INTEGER NOT NULL REFERENCES discovered_tables(id) ON DELETE CASCADE,
			column_name TEXT NOT NULL,
			data_type TEXT NOT NULL,
			is_nullable INTEGER NOT NULL DEFAULT 1,
			is_primary_key INTEGER NOT NULL DEFAULT 0,
			is_foreign_key INTEGER NOT NULL DEFAULT 0,
			default_value TEXT,
			max_length INTEGER,
			precision INTEGER,
			scale INTEGER,
			ordinal_position INTEGER NOT NULL,
			ref_table TEXT,
			ref_column TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(table_id, column_name)
		)`,

		`CREATE TABLE IF NOT EXISTS discovered_relations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			connection_id INTEGER NOT NULL,
			from_table_id INTEGER NOT NULL REFERENCES discovered_tables(id) ON DELETE CASCADE,
			to_table_id INTEGER NOT NULL REFERENCES discovered_tables(id) ON DELETE CASCADE,
			from_column_id INTEGER NOT NULL REFERENCES discovered_columns(id) ON DELETE CASCADE,
			to_column_id INTEGER NOT NULL REFERENCES discovered_columns(id) ON DELETE CASCADE,
			relation_type TEXT NOT NULL DEFAULT 'many_to_one',
			constraint_name TEXT NOT NULL DEFAULT '',
			on_delete TEXT NOT NULL DEFAULT 'NO ACTION',
			on_update TEXT NOT NULL DEFAULT 'NO ACTION',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_discovered_tables_connection ON discovered_tables(connection_id)`,
		`CREATE INDEX IF NOT EXISTS idx_discovered_columns_table ON discovered_columns(table_id)`,
		`CREATE INDEX IF NOT EXISTS idx_discovered_relations_connection ON discovered_relations(connection_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// SQLite ALTER TABLE ADD COLUMN fails if column already exists;
			// treat "duplicate column" as a no-op for idempotent migrations.
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
