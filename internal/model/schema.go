package model

import "time"

// Table kinds reported by inspectors.
const (
	TableKindTable = "table"
	TableKindView  = "view"
)

// Relation cardinality. Inspectors always report RelationManyToOne; no
// cardinality inference is performed beyond that convention.
const (
	RelationOneToOne   = "one_to_one"
	RelationOneToMany  = "one_to_many"
	RelationManyToOne  = "many_to_one"
	RelationManyToMany = "many_to_many"
)

// DefaultReferentialAction is used when the engine reports no ON DELETE or
// ON UPDATE rule for a constraint.
const DefaultReferentialAction = "NO ACTION"

// DiscoveredTable is one table or view found during an introspection pass.
// The ID is zero until the metadata store persists the table and assigns a
// surrogate ID. A table owns its column list; both are deleted together.
type DiscoveredTable struct {
	ID           int64   `json:"id" db:"id"`
	ConnectionID int64   `json:"connection_id" db:"connection_id"`
	Name         string  `json:"name" db:"table_name"`
	SchemaName   string  `json:"schema_name,omitempty" db:"schema_name"`
	Kind         string  `json:"kind" db:"table_kind"`
	RowCount     *int64  `json:"row_count,omitempty" db:"row_count"`
	Comment      *string `json:"comment,omitempty" db:"comment"`

	Columns []DiscoveredColumn `json:"columns"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DiscoveredColumn is one column of a DiscoveredTable, in native column
// order. DataType is the engine's type name with any parenthesized
// length/precision suffix stripped; the stripped values are captured in
// MaxLength, Precision, and Scale.
type DiscoveredColumn struct {
	ID           int64   `json:"id" db:"id"`
	TableID      int64   `json:"table_id" db:"table_id"`
	Name         string  `json:"name" db:"column_name"`
	DataType     string  `json:"data_type" db:"data_type"`
	Nullable     bool    `json:"nullable" db:"is_nullable"`
	IsPrimaryKey bool    `json:"is_primary_key" db:"is_primary_key"`
	IsForeignKey bool    `json:"is_foreign_key" db:"is_foreign_key"`
	Default      *string `json:"default,omitempty" db:"default_value"`
	MaxLength    *int64  `json:"max_length,omitempty" db:"max_length"`
	Precision    *int64  `json:"precision,omitempty" db:"precision"`
	Scale        *int64  `json:"scale,omitempty" db:"scale"`
	// Position is 1-based and contiguous per table.
	Position int `json:"position" db:"ordinal_position"`

	// RefTable and RefColumn hold the referenced endpoint names when this
	// column is the local column of a single-column foreign key. They are
	// discovery-time hints only and are never resolved to IDs here.
	RefTable  *string `json:"ref_table,omitempty" db:"ref_table"`
	RefColumn *string `json:"ref_column,omitempty" db:"ref_column"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RelationCandidate is a foreign-key edge as discovered from the live
// database: endpoints are table and column names, because the engine's
// catalog knows nothing about this system's surrogate IDs. A candidate
// becomes a DiscoveredRelation only after the metadata store resolves all
// four endpoints against just-persisted rows; candidates that fail to
// resolve are dropped, never persisted.
type RelationCandidate struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`

	ConstraintName string `json:"constraint_name,omitempty"`
	RelationType   string `json:"relation_type"`
	OnDelete       string `json:"on_delete"`
	OnUpdate       string `json:"on_update"`
}

// DiscoveredRelation is the persisted form of a foreign-key edge. All four
// endpoints are surrogate IDs referencing rows of the same connection.
type DiscoveredRelation struct {
	ID           int64 `json:"id" db:"id"`
	FromTableID  int64 `json:"from_table_id" db:"from_table_id"`
	ToTableID    int64 `json:"to_table_id" db:"to_table_id"`
	FromColumnID int64 `json:"from_column_id" db:"from_column_id"`
	ToColumnID   int64 `json:"to_column_id" db:"to_column_id"`

	RelationType   string `json:"relation_type" db:"relation_type"`
	ConstraintName string `json:"constraint_name,omitempty" db:"constraint_name"`
	OnDelete       string `json:"on_delete" db:"on_delete"`
	OnUpdate       string `json:"on_update" db:"on_update"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PrimaryKeyColumns returns the names of the table's primary key columns
// in ordinal order.
func (t *DiscoveredTable) PrimaryKeyColumns() []string {
	var pks []string
	for _, c := range t.Columns {
		if c.IsPrimaryKey {
			pks = append(pks, c.Name)
		}
	}
	return pks
}

// Column returns the column with the given name, or nil.
func (t *DiscoveredTable) Column(name string) *DiscoveredColumn {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}
