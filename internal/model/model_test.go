package model

import "testing"

func TestDefaultPort(t *testing.T) {
	tests := []struct {
		engine Engine
		want   int
	}{
		{EnginePostgres, 5432},
		{EngineMySQL, 3306},
		{EngineMSSQL, 1433},
		{EngineOracle, 1521},
		{EngineSQLite, 0},
		{Engine("bogus"), 0},
	}
	for _, tt := range tests {
		if got := DefaultPort(tt.engine); got != tt.want {
			t.Errorf("DefaultPort(%q) = %d, want %d", tt.engine, got, tt.want)
		}
	}
}

func TestPrimaryKeyColumns(t *testing.T) {
	table := DiscoveredTable{
		Name: "orders",
		Columns: []DiscoveredColumn{
			{Name: "id", Position: 1, IsPrimaryKey: true},
			{Name: "customer_id", Position: 2, IsForeignKey: true},
			{Name: "tenant_id", Position: 3, IsPrimaryKey: true},
		},
	}

	pks := table.PrimaryKeyColumns()
	if len(pks) != 2 {
		t.Fatalf("got %d pk columns, want 2", len(pks))
	}
	if pks[0] != "id" || pks[1] != "tenant_id" {
		t.Errorf("got %v, want [id tenant_id]", pks)
	}
}

func TestColumnLookup(t *testing.T) {
	table := DiscoveredTable{
		Columns: []DiscoveredColumn{
			{Name: "id", Position: 1},
			{Name: "email", Position: 2},
		},
	}

	col := table.Column("email")
	if col == nil {
		t.Fatal("expected column, got nil")
	}
	if col.Position != 2 {
		t.Errorf("got position %d, want 2", col.Position)
	}

	if table.Column("missing") != nil {
		t.Error("expected nil for unknown column")
	}
}
