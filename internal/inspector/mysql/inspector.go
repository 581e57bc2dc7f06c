package mysql

import (
	"context"
	"fmt"
	"log/slog"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/stratumdb/stratum/internal/inspector"
	"github.com/stratumdb/stratum/internal/model"
)

// Inspector implements inspector.Inspector for MySQL. MySQL has no schema
// level below the database, so the database name doubles as the
// namespace. Every call opens a short-lived connection and closes it
// before returning.
type Inspector struct {
	logger *slog.Logger
}

// New creates a MySQL inspector. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) inspector.Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{logger: logger}
}

// Engine returns the engine type this inspector handles.
func (i *Inspector) Engine() model.Engine { return model.EngineMySQL }

// dsn builds a go-sql-driver DSN with the tcp() wrapper the driver
// requires.
func dsn(target model.Connection) string {
	tls := "false"
	if target.TLSEnabled {
		tls = "skip-verify"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=%s",
		target.Username, target.Password, target.Host, target.Port, target.Database, tls)
}

// schemaOf returns the namespace for catalog queries: MySQL uses the
// database name.
func schemaOf(target model.Connection) string {
	if target.Schema != "" {
		return target.Schema
	}
	return target.Database
}

func (i *Inspector) open(target model.Connection) (*sqlx.DB, error) {
	db, err := sqlx.Connect("mysql", dsn(target))
	if err != nil {
		return nil, fmt.Errorf("mysql connect: %w", err)
	}
	return db, nil
}

// TestConnection opens a connection, runs SELECT 1, and closes it.
// Failure is reported as false with the cause logged, never as an error.
func (i *Inspector) TestConnection(ctx context.Context, target model.Connection) bool {
	db, err := i.open(target)
	if err != nil {
		i.logger.Warn("connection test failed", "connection", target.Name, "engine", "mysql", "error", err)
		return false
	}
	defer db.Close()

	var one int
	if err := db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		i.logger.Warn("connection test failed", "connection", target.Name, "engine", "mysql", "error", err)
		return false
	}
	return true
}

// tableRow holds the result of querying INFORMATION_SCHEMA.TABLES.
type tableRow struct {
	TableName string  `db:"TABLE_NAME"`
	TableType string  `db:"TABLE_TYPE"`
	RowCount  *int64  `db:"TABLE_ROWS"`
	Comment   *string `db:"TABLE_COMMENT"`
}

// columnRow holds the result of querying INFORMATION_SCHEMA.COLUMNS.
// COLUMN_TYPE carries the full declaration ("varchar(255)",
// "decimal(10,2)") that type normalization strips.
type columnRow struct {
	ColumnName string  `db:"COLUMN_NAME"`
	ColumnType string  `db:"COLUMN_TYPE"`
	IsNullable string  `db:"IS_NULLABLE"`
	Default    *string `db:"COLUMN_DEFAULT"`
	MaxLength  *int64  `db:"CHARACTER_MAXIMUM_LENGTH"`
	Precision  *int64  `db:"NUMERIC_PRECISION"`
	Scale      *int64  `db:"NUMERIC_SCALE"`
	Position   int     `db:"ORDINAL_POSITION"`
}

// fkRow holds one column pair of a foreign key constraint.
type fkRow struct {
	ConstraintName   string `db:"CONSTRAINT_NAME"`
	TableName        string `db:"TABLE_NAME"`
	ColumnName       string `db:"COLUMN_NAME"`
	ReferencedTable  string `db:"REFERENCED_TABLE_NAME"`
	ReferencedColumn string `db:"REFERENCED_COLUMN_NAME"`
	DeleteRule       string `db:"DELETE_RULE"`
	UpdateRule       string `db:"UPDATE_RULE"`
}

const fkQuery = `SELECT
		kcu.CONSTRAINT_NAME,
		kcu.TABLE_NAME,
		kcu.COLUMN_NAME,
		kcu.REFERENCED_TABLE_NAME,
		kcu.REFERENCED_COLUMN_NAME,
		rc.DELETE_RULE,
		rc.UPDATE_RULE
	FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
	JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
		ON kcu.CONSTRAINT_NAME = rc.CONSTRAINT_NAME
		AND kcu.TABLE_SCHEMA = rc.CONSTRAINT_SCHEMA
	WHERE kcu.TABLE_SCHEMA = ?
		AND kcu.REFERENCED_TABLE_NAME IS NOT NULL`

// InspectTables lists all tables and views in the target database and
// describes each one.
func (i *Inspector) InspectTables(ctx context.Context, target model.Connection) ([]model.DiscoveredTable, error) {
	db, err := i.open(target)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	schema := schemaOf(target)

	const query = `SELECT TABLE_NAME, TABLE_TYPE, TABLE_ROWS, TABLE_COMMENT
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? ORDER BY TABLE_NAME`

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

// InspectTable describes a single table in the target database.
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

	const query = `SELECT TABLE_NAME, TABLE_TYPE, TABLE_ROWS, TABLE_COMMENT
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`

	var row tableRow
	if err := db.GetContext(ctx, &row, query, schema, tableName); err != nil {
		return nil, inspector.Discoveryf(tableName, fmt.Errorf("table %q not found in %q: %w", tableName, schema, err))
	}

	t, err := i.inspectTable(ctx, db, target, row, schema)
	if err != nil {
		return nil, inspector.Discoveryf(tableName, err)
	}
	return t, nil
}

func (i *Inspector) inspectTable(ctx context.Context, db *sqlx.DB, target model.Connection, row tableRow, schema string) (*model.DiscoveredTable, error) {
	const colQuery = `SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT,
			CHARACTER_MAXIMUM_LENGTH, NUMERIC_PRECISION, NUMERIC_SCALE, ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`

	var cols []columnRow
	if err := db.SelectContext(ctx, &cols, colQuery, schema, row.TableName); err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	const pkQuery = `SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION`

	var pkCols []string
	if err := db.SelectContext(ctx, &pkCols, pkQuery, schema, row.TableName); err != nil {
		return nil, fmt.Errorf("primary keys: %w", err)
	}
	pkSet := make(map[string]bool, len(pkCols))
	for _, name := range pkCols {
		pkSet[name] = true
	}

	var fks []fkRow
	if err := db.SelectContext(ctx, &fks, fkQuery+` AND kcu.TABLE_NAME = ?`, schema, row.TableName); err != nil {
		return nil, fmt.Errorf("foreign keys: %w", err)
	}
	fkHints := singleColumnHints(fks)

	columns := make([]model.DiscoveredColumn, 0, len(cols))
	for idx, col := range cols {
		parsed := inspector.ParseDeclaredType(col.ColumnType)

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
		if dc.MaxLength == nil {
			dc.MaxLength = parsed.MaxLength
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
		RowCount:     row.RowCount,
		Columns:      columns,
	}
	if row.Comment != nil && *row.Comment != "" {
		t.Comment = row.Comment
	}
	return t, nil
}

// InspectRelations emits one candidate per foreign-key constraint in the
// target database. Composite keys are truncated to their leading column
// pair; relation fidelity degrades for composite keys.
func (i *Inspector) InspectRelations(ctx context.Context, target model.Connection) ([]model.RelationCandidate, error) {
	db, err := i.open(target)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var fks []fkRow
	if err := db.SelectContext(ctx, &fks, fkQuery+` ORDER BY kcu.TABLE_NAME, kcu.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`, schemaOf(target)); err != nil {
		return nil, fmt.Errorf("list foreign keys: %w", err)
	}

	seen := make(map[string]bool)
	candidates := make([]model.RelationCandidate, 0, len(fks))
	for _, fk := range fks {
		key := fk.TableName + "." + fk.ConstraintName
		if seen[key] {
			continue
		}
		seen[key] = true

		candidates = append(candidates, model.RelationCandidate{
			FromTable:      fk.TableName,
			FromColumn:     fk.ColumnName,
			ToTable:        fk.ReferencedTable,
			ToColumn:       fk.ReferencedColumn,
			ConstraintName: fk.ConstraintName,
			RelationType:   model.RelationManyToOne,
			OnDelete:       fk.DeleteRule,
			OnUpdate:       fk.UpdateRule,
		})
	}
	return candidates, nil
}

type fkHint struct {
	table  string
	column string
}

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
