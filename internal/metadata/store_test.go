package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/stratumdb/stratum/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("")
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTables() []model.DiscoveredTable {
	i64 := func(n int64) *int64 { return &n }
	str := func(s string) *string { return &s }

	return []model.DiscoveredTable{
		{
			Name:       "customers",
			SchemaName: "public",
			Kind:       model.TableKindTable,
			RowCount:   i64(42),
			Columns: []model.DiscoveredColumn{
				{Name: "id", DataType: "INTEGER", IsPrimaryKey: true},
				{Name: "email", DataType: "VARCHAR", MaxLength: i64(255)},
			},
		},
		{
			Name:       "orders",
			SchemaName: "public",
			Kind:       model.TableKindTable,
			Columns: []model.DiscoveredColumn{
				{Name: "id", DataType: "INTEGER", IsPrimaryKey: true},
				{Name: "customer_id", DataType: "INTEGER", IsForeignKey: true,
					RefTable: str("customers"), RefColumn: str("id")},
				{Name: "total", DataType: "DECIMAL", Precision: i64(10), Scale: i64(2)},
			},
		},
	}
}

func sampleCandidates() []model.RelationCandidate {
	return []model.RelationCandidate{
		{
			FromTable: "orders", FromColumn: "customer_id",
			ToTable: "customers", ToColumn: "id",
			ConstraintName: "orders_customer_id_fkey",
			RelationType:   model.RelationManyToOne,
			OnDelete:       "CASCADE",
			OnUpdate:       model.DefaultReferentialAction,
		},
	}
}

func TestSaveTablesAssignsIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveTables(ctx, 1, sampleTables())
	if err != nil {
		t.Fatalf("SaveTables: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("got %d tables, want 2", len(saved))
	}

	for _, tab := range saved {
		if tab.ID == 0 {
			t.Errorf("table %q has no ID", tab.Name)
		}
		if tab.ConnectionID != 1 {
			t.Errorf("table %q connection = %d, want 1", tab.Name, tab.ConnectionID)
		}
		for idx, col := range tab.Columns {
			if col.ID == 0 {
				t.Errorf("column %q.%q has no ID", tab.Name, col.Name)
			}
			if col.TableID != tab.ID {
				t.Errorf("column %q.%q table ID = %d, want %d", tab.Name, col.Name, col.TableID, tab.ID)
			}
			if col.Position != idx+1 {
				t.Errorf("column %q.%q position = %d, want %d", tab.Name, col.Name, col.Position, idx+1)
			}
		}
	}
}

func TestSaveTablesNameOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Input deliberately out of name order; the persisted snapshot must
	// not depend on how the inspector enumerated.
	input := sampleTables()
	input[0], input[1] = input[1], input[0]

	saved, err := s.SaveTables(ctx, 1, input)
	if err != nil {
		t.Fatalf("SaveTables: %v", err)
	}
	if len(saved) != 2 || saved[0].Name != "customers" || saved[1].Name != "orders" {
		t.Fatalf("expected name-ordered result, got %+v", saved)
	}

	got, err := s.GetTablesByConnection(ctx, 1)
	if err != nil {
		t.Fatalf("GetTablesByConnection: %v", err)
	}
	for i := range got {
		if got[i].ID != saved[i].ID {
			t.Errorf("persisted order differs at %d: %q vs %q", i, got[i].Name, saved[i].Name)
		}
	}
}

func TestSaveTablesFullReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.SaveTables(ctx, 1, sampleTables())
	if err != nil {
		t.Fatalf("first save: %v", err)
	}

	// Second pass discovers a different set of tables.
	if _, err := s.SaveTables(ctx, 1, []model.DiscoveredTable{
		{Name: "products", Kind: model.TableKindTable, Columns: []model.DiscoveredColumn{
			{Name: "id", DataType: "INTEGER", IsPrimaryKey: true},
		}},
	}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := s.GetTablesByConnection(ctx, 1)
	if err != nil {
		t.Fatalf("GetTablesByConnection: %v", err)
	}
	if len(got) != 1 || got[0].Name != "products" {
		t.Fatalf("expected only products to survive, got %+v", got)
	}

	// Rows of the old snapshot must be gone entirely.
	if _, err := s.GetTableByID(ctx, first[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for replaced table, got %v", err)
	}
}

func TestSaveTablesScopedByConnection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveTables(ctx, 1, sampleTables()); err != nil {
		t.Fatalf("save conn 1: %v", err)
	}
	if _, err := s.SaveTables(ctx, 2, sampleTables()); err != nil {
		t.Fatalf("save conn 2: %v", err)
	}

	// Replacing connection 2 must not disturb connection 1.
	if _, err := s.SaveTables(ctx, 2, nil); err != nil {
		t.Fatalf("clear conn 2: %v", err)
	}

	one, err := s.GetTablesByConnection(ctx, 1)
	if err != nil {
		t.Fatalf("GetTablesByConnection: %v", err)
	}
	if len(one) != 2 {
		t.Errorf("connection 1 lost tables: got %d, want 2", len(one))
	}
	two, _ := s.GetTablesByConnection(ctx, 2)
	if len(two) != 0 {
		t.Errorf("connection 2 should be empty, got %d", len(two))
	}
}

func TestSaveRelationsResolvesIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveTables(ctx, 1, sampleTables())
	if err != nil {
		t.Fatalf("SaveTables: %v", err)
	}

	rels, skipped, err := s.SaveRelations(ctx, 1, saved, sampleCandidates())
	if err != nil {
		t.Fatalf("SaveRelations: %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(rels) != 1 {
		t.Fatalf("got %d relations, want 1", len(rels))
	}

	var customers, orders model.DiscoveredTable
	for _, tab := range saved {
		switch tab.Name {
		case "customers":
			customers = tab
		case "orders":
			orders = tab
		}
	}

	rel := rels[0]
	if rel.ID == 0 {
		t.Error("relation has no ID")
	}
	if rel.FromTableID != orders.ID {
		t.Errorf("from table = %d, want %d", rel.FromTableID, orders.ID)
	}
	if rel.ToTableID != customers.ID {
		t.Errorf("to table = %d, want %d", rel.ToTableID, customers.ID)
	}
	if rel.FromColumnID != orders.Column("customer_id").ID {
		t.Errorf("from column = %d, want %d", rel.FromColumnID, orders.Column("customer_id").ID)
	}
	if rel.ToColumnID != customers.Column("id").ID {
		t.Errorf("to column = %d, want %d", rel.ToColumnID, customers.Column("id").ID)
	}
	if rel.OnDelete != "CASCADE" {
		t.Errorf("on delete = %q, want CASCADE", rel.OnDelete)
	}

	got, err := s.GetRelationsByConnection(ctx, 1)
	if err != nil {
		t.Fatalf("GetRelationsByConnection: %v", err)
	}
	if len(got) != 1 || got[0].ID != rel.ID {
		t.Fatalf("persisted relations mismatch: %+v", got)
	}
}

func TestSaveRelationsDropsUnresolvable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveTables(ctx, 1, sampleTables())
	if err != nil {
		t.Fatalf("SaveTables: %v", err)
	}

	candidates := append(sampleCandidates(),
		model.RelationCandidate{
			FromTable: "orders", FromColumn: "customer_id",
			ToTable: "vanished", ToColumn: "id",
			RelationType: model.RelationManyToOne,
		},
		model.RelationCandidate{
			FromTable: "orders", FromColumn: "no_such_column",
			ToTable: "customers", ToColumn: "id",
			RelationType: model.RelationManyToOne,
		},
	)

	rels, skipped, err := s.SaveRelations(ctx, 1, saved, candidates)
	if err != nil {
		t.Fatalf("SaveRelations: %v", err)
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if len(rels) != 1 {
		t.Errorf("got %d relations, want 1", len(rels))
	}
}

func TestReplaceSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tables, rels, skipped, err := s.ReplaceSnapshot(ctx, 1, sampleTables(), sampleCandidates())
	if err != nil {
		t.Fatalf("ReplaceSnapshot: %v", err)
	}
	if len(tables) != 2 || len(rels) != 1 || skipped != 0 {
		t.Fatalf("got %d tables, %d relations, %d skipped", len(tables), len(rels), skipped)
	}

	// A second identical snapshot fully replaces the first: fresh IDs,
	// same content.
	tables2, rels2, _, err := s.ReplaceSnapshot(ctx, 1, sampleTables(), sampleCandidates())
	if err != nil {
		t.Fatalf("second ReplaceSnapshot: %v", err)
	}
	if tables2[0].ID == tables[0].ID {
		t.Error("second snapshot should assign fresh table IDs")
	}
	if len(tables2) != len(tables) {
		t.Fatalf("table count changed across identical passes: %d vs %d", len(tables2), len(tables))
	}
	for i := range tables {
		a, b := tables[i], tables2[i]
		if a.Name != b.Name || a.SchemaName != b.SchemaName || a.Kind != b.Kind {
			t.Errorf("table %d content diverged: %+v vs %+v", i, a, b)
		}
		if len(a.Columns) != len(b.Columns) {
			t.Fatalf("table %q column count diverged: %d vs %d", a.Name, len(a.Columns), len(b.Columns))
		}
		for j := range a.Columns {
			ac, bc := a.Columns[j], b.Columns[j]
			if ac.Name != bc.Name || ac.DataType != bc.DataType ||
				ac.Nullable != bc.Nullable || ac.IsPrimaryKey != bc.IsPrimaryKey ||
				ac.IsForeignKey != bc.IsForeignKey || ac.Position != bc.Position {
				t.Errorf("column %q.%q content diverged: %+v vs %+v", a.Name, ac.Name, ac, bc)
			}
		}
	}
	if rels2[0].ConstraintName != rels[0].ConstraintName ||
		rels2[0].RelationType != rels[0].RelationType ||
		rels2[0].OnDelete != rels[0].OnDelete ||
		rels2[0].OnUpdate != rels[0].OnUpdate {
		t.Errorf("relation content diverged: %+v vs %+v", rels[0], rels2[0])
	}

	got, err := s.GetRelationsByConnection(ctx, 1)
	if err != nil {
		t.Fatalf("GetRelationsByConnection: %v", err)
	}
	if len(got) != 1 || got[0].ID != rels2[0].ID {
		t.Fatalf("expected only the second snapshot's relation, got %+v", got)
	}
}

func TestGetTablesByConnectionOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveTables(ctx, 1, sampleTables()); err != nil {
		t.Fatalf("SaveTables: %v", err)
	}

	got, err := s.GetTablesByConnection(ctx, 1)
	if err != nil {
		t.Fatalf("GetTablesByConnection: %v", err)
	}
	if len(got) != 2 || got[0].Name != "customers" || got[1].Name != "orders" {
		t.Fatalf("expected name ordering, got %+v", got)
	}

	orders := got[1]
	if len(orders.Columns) != 3 {
		t.Fatalf("orders columns = %d, want 3", len(orders.Columns))
	}
	for idx, col := range orders.Columns {
		if col.Position != idx+1 {
			t.Errorf("column %q position = %d, want %d", col.Name, col.Position, idx+1)
		}
	}

	total := orders.Column("total")
	if total == nil || total.Precision == nil || *total.Precision != 10 || total.Scale == nil || *total.Scale != 2 {
		t.Errorf("total precision/scale not persisted: %+v", total)
	}
	fk := orders.Column("customer_id")
	if fk == nil || !fk.IsForeignKey || fk.RefTable == nil || *fk.RefTable != "customers" {
		t.Errorf("customer_id foreign key hints not persisted: %+v", fk)
	}
}

func TestGetTableByIDNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetTableByID(context.Background(), 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteByConnection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, _, err := s.ReplaceSnapshot(ctx, 1, sampleTables(), sampleCandidates()); err != nil {
		t.Fatalf("ReplaceSnapshot: %v", err)
	}

	if err := s.DeleteByConnection(ctx, 1); err != nil {
		t.Fatalf("DeleteByConnection: %v", err)
	}

	tables, err := s.GetTablesByConnection(ctx, 1)
	if err != nil {
		t.Fatalf("GetTablesByConnection: %v", err)
	}
	if len(tables) != 0 {
		t.Errorf("expected no tables, got %d", len(tables))
	}
	rels, _ := s.GetRelationsByConnection(ctx, 1)
	if len(rels) != 0 {
		t.Errorf("expected no relations, got %d", len(rels))
	}

	// Deleting again is a no-op.
	if err := s.DeleteByConnection(ctx, 1); err != nil {
		t.Fatalf("second DeleteByConnection: %v", err)
	}
}
