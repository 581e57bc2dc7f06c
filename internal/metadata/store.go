package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/stratumdb/stratum/internal/model"
)

// Store persists introspection results backed by SQLite. Snapshots are
// full-replace per connection: saving a new pass first deletes whatever
// the previous pass left behind for that connection.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new metadata store. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "metadata.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metadata database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate metadata database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// relationRow is a flat struct that maps 1:1 to the discovered_relations
// table. The connection_id column exists for per-connection deletes and
// lookups; it is not part of the model.
type relationRow struct {
	ID             int64     `db:"id"`
	ConnectionID   int64     `db:"connection_id"`
	FromTableID    int64     `db:"from_table_id"`
	ToTableID      int64     `db:"to_table_id"`
	FromColumnID   int64     `db:"from_column_id"`
	ToColumnID     int64     `db:"to_column_id"`
	RelationType   string    `db:"relation_type"`
	ConstraintName string    `db:"constraint_name"`
	OnDelete       string    `db:"on_delete"`
	OnUpdate       string    `db:"on_update"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r relationRow) toModel() model.DiscoveredRelation {
	return model.DiscoveredRelation{
		ID:             r.ID,
		FromTableID:    r.FromTableID,
		ToTableID:      r.ToTableID,
		FromColumnID:   r.FromColumnID,
		ToColumnID:     r.ToColumnID,
		RelationType:   r.RelationType,
		ConstraintName: r.ConstraintName,
		OnDelete:       r.OnDelete,
		OnUpdate:       r.OnUpdate,
		CreatedAt:      r.CreatedAt,
	}
}

// SaveTables replaces the persisted tables of a connection with the given
// snapshot. All existing tables, columns, and relations of the connection
// are deleted first; the whole replacement runs in one transaction. Tables
// are persisted and returned ordered by name ascending regardless of input
// order, carrying their assigned surrogate IDs with column IDs and TableID
// filled in.
func (s *Store) SaveTables(ctx context.Context, connectionID int64, tables []model.DiscoveredTable) ([]model.DiscoveredTable, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	saved, err := saveTablesTx(ctx, tx, connectionID, tables)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return saved, nil
}

// SaveRelations resolves relation candidates against the given persisted
// tables and replaces the connection's relations with the result.
// Candidates whose endpoints cannot all be resolved are dropped; the
// second return value counts them. Resolution failure is never an error.
func (s *Store) SaveRelations(ctx context.Context, connectionID int64, tables []model.DiscoveredTable, candidates []model.RelationCandidate) ([]model.DiscoveredRelation, int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rels, skipped, err := saveRelationsTx(ctx, tx, connectionID, tables, candidates)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit: %w", err)
	}
	return rels, skipped, nil
}

// ReplaceSnapshot persists a complete introspection pass, tables and
// relations together, in a single transaction. Either the whole snapshot
// lands or the previous one survives untouched.
func (s *Store) ReplaceSnapshot(ctx context.Context, connectionID int64, tables []model.DiscoveredTable, candidates []model.RelationCandidate) ([]model.DiscoveredTable, []model.DiscoveredRelation, int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	saved, err := saveTablesTx(ctx, tx, connectionID, tables)
	if err != nil {
		return nil, nil, 0, err
	}
	rels, skipped, err := saveRelationsTx(ctx, tx, connectionID, saved, candidates)
	if err != nil {
		return nil, nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, 0, fmt.Errorf("commit: %w", err)
	}
	return saved, rels, skipped, nil
}

func saveTablesTx(ctx context.Context, tx *sqlx.Tx, connectionID int64, tables []model.DiscoveredTable) ([]model.DiscoveredTable, error) {
	// Relations reference tables via ON DELETE CASCADE, so deleting the
	// tables sweeps the connection's relations too.
	if _, err := tx.ExecContext(ctx, "DELETE FROM discovered_tables WHERE connection_id = ?", connectionID); err != nil {
		return nil, fmt.Errorf("delete existing tables: %w", err)
	}

	const tableQ = `INSERT INTO discovered_tables
		(connection_id, table_name, schema_name, table_kind, row_count, comment, created_at)
		VALUES (:connection_id, :table_name, :schema_name, :table_kind, :row_count, :comment, :created_at)`

	const columnQ = `INSERT INTO discovered_columns
		(table_id, column_name, data_type, is_nullable, is_primary_key, is_foreign_key,
		 default_value, max_length, precision, scale, ordinal_position, ref_table, ref_column, created_at)
		VALUES (:table_id, :column_name, :data_type, :is_nullable, :is_primary_key, :is_foreign_key,
		 :default_value, :max_length, :precision, :scale, :ordinal_position, :ref_table, :ref_column, :created_at)`

	// Persist in name order so the stored snapshot ordering does not
	// depend on how the inspector happened to enumerate.
	ordered := make([]model.DiscoveredTable, len(tables))
	copy(ordered, tables)
	sort.Slice(ordered, func(a, b int) bool { return ordered[a].Name < ordered[b].Name })

	now := time.Now().UTC()
	saved := make([]model.DiscoveredTable, len(ordered))
	for i, t := range ordered {
		t.ConnectionID = connectionID
		t.CreatedAt = now

		result, err := tx.NamedExecContext(ctx, tableQ, t)
		if err != nil {
			return nil, fmt.Errorf("insert table %q: %w", t.Name, err)
		}
		tableID, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("get table id: %w", err)
		}
		t.ID = tableID

		cols := make([]model.DiscoveredColumn, len(t.Columns))
		for j, c := range t.Columns {
			c.TableID = tableID
			c.Position = j + 1
			c.CreatedAt = now

			result, err := tx.NamedExecContext(ctx, columnQ, c)
			if err != nil {
				return nil, fmt.Errorf("insert column %q.%q: %w", t.Name, c.Name, err)
			}
			colID, err := result.LastInsertId()
			if err != nil {
				return nil, fmt.Errorf("get column id: %w", err)
			}
			c.ID = colID
			cols[j] = c
		}
		t.Columns = cols
		saved[i] = t
	}
	return saved, nil
}

func saveRelationsTx(ctx context.Context, tx *sqlx.Tx, connectionID int64, tables []model.DiscoveredTable, candidates []model.RelationCandidate) ([]model.DiscoveredRelation, int, error) {
	if _, err := tx.ExecContext(ctx, "DELETE FROM discovered_relations WHERE connection_id = ?", connectionID); err != nil {
		return nil, 0, fmt.Errorf("delete existing relations: %w", err)
	}

	byName := make(map[string]*model.DiscoveredTable, len(tables))
	for i := range tables {
		byName[tables[i].Name] = &tables[i]
	}

	const q = `INSERT INTO discovered_relations
		(connection_id, from_table_id, to_table_id, from_column_id, to_column_id,
		 relation_type, constraint_name, on_delete, on_update, created_at)
		VALUES (:connection_id, :from_table_id, :to_table_id, :from_column_id, :to_column_id,
		 :relation_type, :constraint_name, :on_delete, :on_update, :created_at)`

	now := time.Now().UTC()
	rels := make([]model.DiscoveredRelation, 0, len(candidates))
	skipped := 0
	for _, c := range candidates {
		fromTable, toTable := byName[c.FromTable], byName[c.ToTable]
		if fromTable == nil || toTable == nil {
			skipped++
			continue
		}
		fromCol, toCol := fromTable.Column(c.FromColumn), toTable.Column(c.ToColumn)
		if fromCol == nil || toCol == nil {
			skipped++
			continue
		}

		row := relationRow{
			ConnectionID:   connectionID,
			FromTableID:    fromTable.ID,
			ToTableID:      toTable.ID,
			FromColumnID:   fromCol.ID,
			ToColumnID:     toCol.ID,
			RelationType:   c.RelationType,
			ConstraintName: c.ConstraintName,
			OnDelete:       c.OnDelete,
			OnUpdate:       c.OnUpdate,
			CreatedAt:      now,
		}
		result, err := tx.NamedExecContext(ctx, q, row)
		if err != nil {
			return nil, 0, fmt.Errorf("insert relation %q: %w", c.ConstraintName, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, 0, fmt.Errorf("get relation id: %w", err)
		}
		row.ID = id
		rels = append(rels, row.toModel())
	}
	return rels, skipped, nil
}

// GetTablesByConnection returns all persisted tables of a connection,
// ordered by table name, with columns loaded in ordinal order.
func (s *Store) GetTablesByConnection(ctx context.Context, connectionID int64) ([]model.DiscoveredTable, error) {
	var tables []model.DiscoveredTable
	if err := s.db.SelectContext(ctx, &tables,
		"SELECT * FROM discovered_tables WHERE connection_id = ? ORDER BY table_name", connectionID); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	for i := range tables {
		cols, err := s.columnsForTable(ctx, tables[i].ID)
		if err != nil {
			return nil, err
		}
		tables[i].Columns = cols
	}
	return tables, nil
}

// GetTableByID returns a single persisted table with its columns.
func (s *Store) GetTableByID(ctx context.Context, id int64) (*model.DiscoveredTable, error) {
	var table model.DiscoveredTable
	if err := s.db.GetContext(ctx, &table, "SELECT * FROM discovered_tables WHERE id = ?", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get table: %w", err)
	}

	cols, err := s.columnsForTable(ctx, table.ID)
	if err != nil {
		return nil, err
	}
	table.Columns = cols
	return &table, nil
}

func (s *Store) columnsForTable(ctx context.Context, tableID int64) ([]model.DiscoveredColumn, error) {
	var cols []model.DiscoveredColumn
	if err := s.db.SelectContext(ctx, &cols,
		"SELECT * FROM discovered_columns WHERE table_id = ? ORDER BY ordinal_position", tableID); err != nil {
		return nil, fmt.Errorf("list columns for table %d: %w", tableID, err)
	}
	return cols, nil
}

// GetRelationsByConnection returns all persisted relations of a
// connection, ordered by ID.
func (s *Store) GetRelationsByConnection(ctx context.Context, connectionID int64) ([]model.DiscoveredRelation, error) {
	var rows []relationRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM discovered_relations WHERE connection_id = ? ORDER BY id", connectionID); err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}

	rels := make([]model.DiscoveredRelation, len(rows))
	for i, r := range rows {
		rels[i] = r.toModel()
	}
	return rels, nil
}

// DeleteByConnection removes all persisted metadata of a connection.
// Deleting a connection that has no metadata is a no-op, not an error.
func (s *Store) DeleteByConnection(ctx context.Context, connectionID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM discovered_relations WHERE connection_id = ?", connectionID); err != nil {
		return fmt.Errorf("delete relations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM discovered_tables WHERE connection_id = ?", connectionID); err != nil {
		return fmt.Errorf("delete tables: %w", err)
	}
	return tx.Commit()
}
