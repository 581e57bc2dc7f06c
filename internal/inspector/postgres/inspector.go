package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/stratumdb/stratum/internal/inspector"
	"github.com/stratumdb/stratum/internal/model"
)

// Inspector implements inspector.Inspector for PostgreSQL using the pgx
// stdlib driver. Every call opens a short-lived connection and closes it
// before returning.
type Inspector struct {
	logger *slog.Logger
}

// New creates a PostgreSQL inspector. A nil logger falls back to
// slog.Default.
func New(logger *slog.Logger) inspector.Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{logger: logger}
}

// Engine returns the engine type this inspector handles.
func (i *Inspector) Engine() model.Engine { return model.EnginePostgres }

// dsn builds a postgres:// URL from the connection target. Userinfo is
// percent-encoded so passwords containing @, #, or % cannot mis-split the
// authority component.
func dsn(target model.Connection) string {
	sslmode := "disable"
	if target.TLSEnabled {
		sslmode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.PathEscape(target.Username),
		url.PathEscape(target.Password),
		target.Host, target.Port, target.Database, sslmode)
}

func schemaOf(target model.Connection) string {
	if target.Schema != "" {
		return target.Schema
	}
	return "public"
}

func (i *Inspector) open(target model.Connection) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", dsn(target))
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	return db, nil
}

// TestConnection opens a connection, runs SELECT 1, and closes it.
// Failure is reported as false with the cause logged, never as an error.
func (i *Inspector) TestConnection(ctx context.Context, target model.Connection) bool {
	db, err := i.open(target)
	if err != nil {
		i.logger.Warn("connection test failed", "connection", target.Name, "engine", "postgresql", "error", err)
		return false
	}
	defer db.Close()

	var one int
	if err := db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		i.logger.Warn("connection test failed", "connection", target.Name, "engine", "postgresql", "error", err)
		return false
	}
	return true
}

// tableRow holds the result of querying information_schema.tables.
type tableRow struct {
	TableName string `db:"table_name"`
	TableType string `db:"table_type"`
}

// columnRow holds the result of querying information_schema.columns.
type columnRow struct {
	ColumnName string  `db:"column_name"`
	DataType   string  `db:"data_type"`
	IsNullable string  `db:"is_nullable"`
	Default    *string `db:"column_default"`
	MaxLength  *int64  `db:"character_maximum_length"`
	Precision  *int64  `db:"numeric_precision"`
	Scale      *int64  `db:"numeric_scale"`
	Position   int     `db:"ordinal_position"`
}

// fkRow holds one column pair of a foreign key constraint.
type fkRow struct {
	ConstraintName   string `db:"constraint_name"`
	TableName        string `db:"table_name"`
	ColumnName       string `db:"column_name"`
	ReferencedTable  string `db:"referenced_table"`
	ReferencedColumn string `db:"referenced_column"`
	DeleteRule       string `db:"delete_rule"`
	UpdateRule       string `db:"update_rule"`
}

const fkQuery = `SELECT
		tc.constraint_name,
		tc.table_name,
		kcu.column_name,
		ccu.table_name AS referenced_table,
		ccu.column_name AS referenced_column,
		rc.delete_rule,
		rc.update_rule
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON tc.constraint_name = kcu.constraint_name
		AND tc.table_schema = kcu.table_schema
	JOIN information_schema.constraint_column_usage ccu
		ON tc.constraint_name = ccu.constraint_name
	JOIN information_schema.referential_constraints rc
		ON tc.constraint_name = rc.constraint_name
	WHERE tc.constraint_type = 'FOREIGN KEY'
		AND tc.table_schema = $1`

// InspectTables lists all tables and views in the target's schema and
// describes each one.
func (i *Inspector) InspectTables(ctx context.Context, target model.Connection) ([]model.DiscoveredTable, error) {
	db, err := i.open(target)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	schema := schemaOf(target)

	const query = `SELECT table_name, table_type FROM information_schema.tables
		WHERE table_schema = $1 ORDER BY table_name`

	var rows []tableRow
	if err := db.SelectContext(ctx, &rows, query, schema); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	tables := make([]model.DiscoveredTable, 0, len(rows))
	for _, row := range rows {
		t, err := i.inspectTable(ctx, db, target, row, schema)
		if err != nil {
			return nil, inspector.Discoveryf(row.TableName, err)
		}
		tables = append(tables, *t)
	}
	return tables, nil
}

// InspectTable describes a single table in the target's schema.
func (i *Inspector) InspectTable(ctx context.Context, target model.Connection, tableName, schemaName string) (*model.DiscoveredTable, error) {
	db, err := i.open(target)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	schema := schemaName
	if schema == "" {
		schema = schemaOf(target)
	}

	const query = `SELECT table_name, table_type FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = $2`

	var row tableRow
	if err := db.GetContext(ctx, &row, query, schema, tableName); err != nil {
		return nil, inspector.Discoveryf(tableName, fmt.Errorf("table %q not found in schema %q: %w", tableName, schema, err))
	}

	t, err := i.inspectTable(ctx, db, target, row, schema)
	if err != nil {
		return nil, inspector.Discoveryf(tableName, err)
	}
	return t, nil
}

func (i *Inspector) inspectTable(ctx context.Context, db *sqlx.DB, target model.Connection, row tableRow, schema string) (*model.DiscoveredTable, error) {
	const colQuery = `SELECT column_name, data_type, is_nullable, column_default,
			character_maximum_length, numeric_precision, numeric_scale, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`

	var cols []columnRow
	if err := db.SelectContext(ctx, &cols, colQuery, schema, row.TableName); err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	const pkQuery = `SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = $1
			AND tc.table_name = $2`

	var pkCols []string
	if err := db.SelectContext(ctx, &pkCols, pkQuery, schema, row.TableName); err != nil {
		return nil, fmt.Errorf("primary keys: %w", err)
	}
	pkSet := make(map[string]bool, len(pkCols))
	for _, name := range pkCols {
		pkSet[name] = true
	}

	var fks []fkRow
	if err := db.SelectContext(ctx, &fks, fkQuery+` AND tc.table_name = $2`, schema, row.TableName); err != nil {
		return nil, fmt.Errorf("foreign keys: %w", err)
	}
	fkHints := singleColumnHints(fks)

	columns := make([]model.DiscoveredColumn, 0, len(cols))
	for idx, col := range cols {
		parsed := inspector.ParseDeclaredType(col.DataType)

		dc := model.DiscoveredColumn{
			Name:      col.ColumnName,
			DataType:  parsed.Name,
			Nullable:  col.IsNullable == "YES",
			Default:   col.Default,
			MaxLength: col.MaxLength,
			Precision: col.Precision,
			Scale:     col.Scale,
			Position:  idx + 1,
		}
		dc.IsPrimaryKey = pkSet[col.ColumnName]
		if hint, ok := fkHints[col.ColumnName]; ok {
			dc.IsForeignKey = true
			dc.RefTable = &hint.table
			dc.RefColumn = &hint.column
		}
		columns = append(columns, dc)
	}

	kind := model.TableKindTable
	if row.TableType == "VIEW" {
		kind = model.TableKindView
	}

	t := &model.DiscoveredTable{
		ConnectionID: target.ID,
		Name:         row.TableName,
		SchemaName:   schema,
		Kind:         kind,
		Columns:      columns,
	}

	// Comment and row estimate are best-effort; absence is not an error.
	var comment *string
	if err := db.GetContext(ctx, &comment,
		`SELECT obj_description(format('%I.%I', $1::text, $2::text)::regclass, 'pg_class')`,
		schema, row.TableName); err == nil {
		t.Comment = comment
	}
	var estimate int64
	if err := db.GetContext(ctx, &estimate,
		`SELECT reltuples::bigint FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE n.nspname = $1 AND c.relname = $2`,
		schema, row.TableName); err == nil && estimate >= 0 {
		t.RowCount = &estimate
	}

	return t, nil
}

// InspectRelations emits one candidate per foreign-key constraint in the
// target's schema. Composite keys are truncated to their leading column
// pair; relation fidelity degrades for composite keys.
func (i *Inspector) InspectRelations(ctx context.Context, target model.Connection) ([]model.RelationCandidate, error) {
	db, err := i.open(target)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var fks []fkRow
	if err := db.SelectContext(ctx, &fks, fkQuery+` ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position`, schemaOf(target)); err != nil {
		return nil, fmt.Errorf("list foreign keys: %w", err)
	}
	return leadingColumnPairs(fks), nil
}

type fkHint struct {
	table  string
	column string
}

// singleColumnHints returns referenced-endpoint hints for the local
// columns of single-column foreign keys only. Composite constraints
// contribute no per-column hint.
func singleColumnHints(fks []fkRow) map[string]fkHint {
	byConstraint := make(map[string][]fkRow)
	for _, fk := range fks {
		byConstraint[fk.ConstraintName] = append(byConstraint[fk.ConstraintName], fk)
	}

	hints := make(map[string]fkHint)
	for _, pairs := range byConstraint {
		if len(pairs) != 1 {
			continue
		}
		fk := pairs[0]
		hints[fk.ColumnName] = fkHint{table: fk.ReferencedTable, column: fk.ReferencedColumn}
	}
	return hints
}

// leadingColumnPairs converts constraint rows into relation candidates,
// keeping only the first column pair of each constraint.
func leadingColumnPairs(fks []fkRow) []model.RelationCandidate {
	seen := make(map[string]bool)
	candidates := make([]model.RelationCandidate, 0, len(fks))
	for _, fk := range fks {
		if seen[fk.ConstraintName] {
			continue
		}
		seen[fk.ConstraintName] = true

		onDelete := fk.DeleteRule
		if onDelete == "" {
			onDelete = model.DefaultReferentialAction
		}
		onUpdate := fk.UpdateRule
		if onUpdate == "" {
			onUpdate = model.DefaultReferentialAction
		}

		candidates = append(candidates, model.RelationCandidate{
			FromTable:      fk.TableName,
			FromColumn:     fk.ColumnName,
			ToTable:        fk.ReferencedTable,
			ToColumn:       fk.ReferencedColumn,
			ConstraintName: fk.ConstraintName,
			RelationType:   model.RelationManyToOne,
			OnDelete:       onDelete,
			OnUpdate:       onUpdate,
		})
	}
	return candidates
}
