package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/stratumdb/stratum/internal/inspector"
	"github.com/stratumdb/stratum/internal/model"
)

// Inspector implements inspector.Inspector for SQLite database files.
// SQLite has no network endpoint, no schemas, and no table comments, so
// the connection's database field is the file path and the schema name
// is reported as "main". Every call opens a short-lived handle and
// closes it before returning.
type Inspector struct {
	logger *slog.Logger
}

// New creates a SQLite inspector. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) inspector.Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{logger: logger}
}

// Engine returns the engine type this inspector handles.
func (i *Inspector) Engine() model.Engine { return model.EngineSQLite }

func (i *Inspector) open(target model.Connection) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", target.Database)
	if err != nil {
		return nil, fmt.Errorf("sqlite open %q: %w", target.Database, err)
	}
	return db, nil
}

// quoteIdent quotes an identifier for interpolation into a PRAGMA
// statement, which does not accept bound parameters.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// TestConnection opens the database file, runs SELECT 1, and closes it.
// Failure is reported as false with the cause logged, never as an error.
func (i *Inspector) TestConnection(ctx context.Context, target model.Connection) bool {
	db, err := i.open(target)
	if err != nil {
		i.logger.Warn("connection test failed", "connection", target.Name, "engine", "sqlite", "error", err)
		return false
	}
	defer db.Close()

	var one int
	if err := db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		i.logger.Warn("connection test failed", "connection", target.Name, "engine", "sqlite", "error", err)
		return false
	}
	return true
}

// masterRow holds a row from sqlite_master.
type masterRow struct {
	Name string `db:"name"`
	Type string `db:"type"`
}

// tableInfoRow holds a row from PRAGMA table_info().
type tableInfoRow struct {
	CID     int     `db:"cid"`
	Name    string  `db:"name"`
	Type    string  `db:"type"`
	NotNull int     `db:"notnull"`
	Default *string `db:"dflt_value"`
	PK      int     `db:"pk"`
}

// foreignKeyRow holds a row from PRAGMA foreign_key_list(). The to
// column is NULL when the constraint was declared without a column list
// ("REFERENCES parent"); resolveTargets fills those in from the parent's
// primary key.
type foreignKeyRow struct {
	ID       int     `db:"id"`
	Seq      int     `db:"seq"`
	Table    string  `db:"table"`
	From     string  `db:"from"`
	To       *string `db:"to"`
	OnUpdate string  `db:"on_update"`
	OnDelete string  `db:"on_delete"`
	Match    string  `db:"match"`
}

// resolveTargets resolves foreign-key rows whose referenced column is
// NULL to the parent table's primary key, matching each row to the PK
// column at its seq position. Rows that cannot be resolved (parent
// missing, or no PK column at that position) are dropped.
func resolveTargets(ctx context.Context, db *sqlx.DB, fks []foreignKeyRow) ([]foreignKeyRow, error) {
	pkCache := make(map[string][]string)
	resolved := make([]foreignKeyRow, 0, len(fks))
	for _, fk := range fks {
		if fk.To != nil {
			resolved = append(resolved, fk)
			continue
		}

		pks, ok := pkCache[fk.Table]
		if !ok {
			var cols []tableInfoRow
			if err := db.SelectContext(ctx, &cols, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(fk.Table))); err != nil {
				return nil, fmt.Errorf("table_info for %q: %w", fk.Table, err)
			}
			pks = primaryKeyOrder(cols)
			pkCache[fk.Table] = pks
		}
		if fk.Seq >= len(pks) {
			continue
		}
		to := pks[fk.Seq]
		fk.To = &to
		resolved = append(resolved, fk)
	}
	return resolved, nil
}

// primaryKeyOrder returns the primary-key column names of a table in key
// order. The pk value of table_info is the column's 1-based position
// within the key.
func primaryKeyOrder(cols []tableInfoRow) []string {
	byRank := make(map[int]string)
	maxRank := 0
	for _, c := range cols {
		if c.PK > 0 {
			byRank[c.PK] = c.Name
			if c.PK > maxRank {
				maxRank = c.PK
			}
		}
	}
	pks := make([]string, 0, len(byRank))
	for rank := 1; rank <= maxRank; rank++ {
		if name, ok := byRank[rank]; ok {
			pks = append(pks, name)
		}
	}
	return pks
}

const masterQuery = `SELECT name, type FROM sqlite_master
	WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
	ORDER BY name`

// InspectTables lists all tables and views in the database file and
// describes each one.
func (i *Inspector) InspectTables(ctx context.Context, target model.Connection) ([]model.DiscoveredTable, error) {
	db, err := i.open(target)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var rows []masterRow
	if err := db.SelectContext(ctx, &rows, masterQuery); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	tables := make([]model.DiscoveredTable, 0, len(rows))
	for _, row := range rows {
		t, err := i.inspectTable(ctx, db, target, row)
		if err != nil {
			return nil, inspector.Discoveryf(row.Name, err)
		}
		tables = append(tables, *t)
	}
	return tables, nil
}

// InspectTable describes a single table or view. The schema argument is
// ignored; SQLite has only the main database.
func (i *Inspector) InspectTable(ctx context.Context, target model.Connection, tableName, _ string) (*model.DiscoveredTable, error) {
	db, err := i.open(target)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var row masterRow
	const query = `SELECT name, type FROM sqlite_master
		WHERE type IN ('table', 'view') AND name = ?`
	if err := db.GetContext(ctx, &row, query, tableName); err != nil {
		return nil, inspector.Discoveryf(tableName, fmt.Errorf("table %q not found: %w", tableName, err))
	}

	t, err := i.inspectTable(ctx, db, target, row)
	if err != nil {
		return nil, inspector.Discoveryf(tableName, err)
	}
	return t, nil
}

func (i *Inspector) inspectTable(ctx context.Context, db *sqlx.DB, target model.Connection, row masterRow) (*model.DiscoveredTable, error) {
	var cols []tableInfoRow
	if err := db.SelectContext(ctx, &cols, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(row.Name))); err != nil {
		return nil, fmt.Errorf("table_info: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %q has no columns", row.Name)
	}

	var fks []foreignKeyRow
	if err := db.SelectContext(ctx, &fks, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteIdent(row.Name))); err != nil {
		return nil, fmt.Errorf("foreign_key_list: %w", err)
	}
	fks, err := resolveTargets(ctx, db, fks)
	if err != nil {
		return nil, err
	}
	fkHints := singleColumnHints(fks)

	columns := make([]model.DiscoveredColumn, 0, len(cols))
	for idx, col := range cols {
		parsed := inspector.ParseDeclaredType(col.Type)

		dc := model.DiscoveredColumn{
			Name:      col.Name,
			DataType:  parsed.Name,
			Nullable:  col.NotNull == 0 && col.PK == 0,
			Default:   col.Default,
			MaxLength: parsed.MaxLength,
			Precision: parsed.Precision,
			Scale:     parsed.Scale,
			Position:  idx + 1,
		}
		dc.IsPrimaryKey = col.PK > 0
		if hint, ok := fkHints[col.Name]; ok {
			dc.IsForeignKey = true
			dc.RefTable = &hint.table
			dc.RefColumn = &hint.column
		}
		columns = append(columns, dc)
	}

	kind := model.TableKindTable
	if row.Type == "view" {
		kind = model.TableKindView
	}

	t := &model.DiscoveredTable{
		ConnectionID: target.ID,
		Name:         row.Name,
		SchemaName:   "main",
		Kind:         kind,
		Columns:      columns,
	}

	// Row count is exact and cheap enough for file-local databases;
	// absence is not an error.
	if kind == model.TableKindTable {
		var count int64
		if err := db.GetContext(ctx, &count, fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(row.Name))); err == nil {
			t.RowCount = &count
		}
	}
	return t, nil
}

// InspectRelations emits one candidate per foreign-key constraint across
// all tables. SQLite does not name constraints, so a synthetic
// fk_<table>_<column> name is assigned. Composite keys are truncated to
// their leading column pair.
func (i *Inspector) InspectRelations(ctx context.Context, target model.Connection) ([]model.RelationCandidate, error) {
	db, err := i.open(target)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var names []string
	const query = `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`
	if err := db.SelectContext(ctx, &names, query); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	var candidates []model.RelationCandidate
	for _, name := range names {
		var fks []foreignKeyRow
		if err := db.SelectContext(ctx, &fks, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteIdent(name))); err != nil {
			return nil, fmt.Errorf("foreign_key_list for %q: %w", name, err)
		}
		fks, err = resolveTargets(ctx, db, fks)
		if err != nil {
			return nil, fmt.Errorf("resolve foreign keys for %q: %w", name, err)
		}

		for _, fk := range fks {
			// seq > 0 marks trailing columns of a composite key.
			if fk.Seq != 0 {
				continue
			}

			onDelete := fk.OnDelete
			if onDelete == "" {
				onDelete = model.DefaultReferentialAction
			}
			onUpdate := fk.OnUpdate
			if onUpdate == "" {
				onUpdate = model.DefaultReferentialAction
			}

			candidates = append(candidates, model.RelationCandidate{
				FromTable:      name,
				FromColumn:     fk.From,
				ToTable:        fk.Table,
				ToColumn:       *fk.To,
				ConstraintName: fmt.Sprintf("fk_%s_%s", name, fk.From),
				RelationType:   model.RelationManyToOne,
				OnDelete:       onDelete,
				OnUpdate:       onUpdate,
			})
		}
	}
	return candidates, nil
}

type fkHint struct {
	table  string
	column string
}

// singleColumnHints returns referenced-endpoint hints for the local
// columns of single-column foreign keys only. Composite constraints,
// identified by sharing an id across rows, contribute no per-column
// hint.
func singleColumnHints(fks []foreignKeyRow) map[string]fkHint {
	byID := make(map[int][]foreignKeyRow)
	for _, fk := range fks {
		byID[fk.ID] = append(byID[fk.ID], fk)
	}

	hints := make(map[string]fkHint)
	for _, pairs := range byID {
		if len(pairs) != 1 {
			continue
		}
		fk := pairs[0]
		hints[fk.From] = fkHint{table: fk.Table, column: *fk.To}
	}
	return hints
}
