package openapi

import (
	"testing"

	"github.com/stratumdb/stratum/internal/model"
)

func TestMapDBType(t *testing.T) {
	tests := []struct {
		dbType string
		want   TypeMapping
	}{
		{"VARCHAR(255)", TypeMapping{"string", ""}},
		{"bigint", TypeMapping{"integer", "int64"}},
		{"int unsigned", TypeMapping{"integer", "int32"}},
		{"timestamp with time zone", TypeMapping{"string", "date-time"}},
		{"text[]", TypeMapping{"string", ""}},
		{"NUMERIC(10,2)", TypeMapping{"number", "double"}},
		{"uuid", TypeMapping{"string", "uuid"}},
		{"jsonb", TypeMapping{"object", ""}},
		{"some_custom_type", TypeMapping{"string", ""}},
	}
	for _, tt := range tests {
		if got := MapDBType(tt.dbType); got != tt.want {
			t.Errorf("MapDBType(%q) = %+v, want %+v", tt.dbType, got, tt.want)
		}
	}
}

func sampleTables() []model.DiscoveredTable {
	i64 := func(n int64) *int64 { return &n }
	str := func(s string) *string { return &s }

	return []model.DiscoveredTable{
		{
			ID:         10,
			Name:       "customers",
			SchemaName: "public",
			Kind:       model.TableKindTable,
			Comment:    str("Registered customers"),
			Columns: []model.DiscoveredColumn{
				{Name: "id", DataType: "bigint", IsPrimaryKey: true},
				{Name: "email", DataType: "varchar", MaxLength: i64(255)},
				{Name: "nickname", DataType: "varchar", Nullable: true},
			},
		},
		{
			ID:   11,
			Name: "orders",
			Kind: model.TableKindTable,
			Columns: []model.DiscoveredColumn{
				{Name: "id", DataType: "bigint", IsPrimaryKey: true},
				{Name: "customer_id", DataType: "bigint", IsForeignKey: true,
					RefTable: str("customers"), RefColumn: str("id")},
			},
		},
	}
}

func TestGenerateConnectionSpec(t *testing.T) {
	conn := model.Connection{ID: 3, Name: "shop", Engine: model.EnginePostgres}
	doc := GenerateConnectionSpec(conn, sampleTables(), "http://localhost:8080")

	if doc.OpenAPI != "3.1.0" {
		t.Errorf("version = %q, want 3.1.0", doc.OpenAPI)
	}
	if doc.Info.Title != "shop schema" {
		t.Errorf("title = %q", doc.Info.Title)
	}

	if doc.Paths.Value("/api/v1/tables/10") == nil {
		t.Error("missing path for customers table")
	}
	if doc.Paths.Value("/api/v1/tables/11") == nil {
		t.Error("missing path for orders table")
	}

	customers := doc.Components.Schemas["Public_customers"]
	if customers == nil {
		t.Fatal("missing customers component schema")
	}
	if customers.Value.Description != "Registered customers" {
		t.Errorf("table comment not carried: %q", customers.Value.Description)
	}

	id := customers.Value.Properties["id"]
	if id == nil || !id.Value.ReadOnly {
		t.Error("primary key column should be read-only")
	}

	email := customers.Value.Properties["email"]
	if email == nil || email.Value.MaxLength == nil || *email.Value.MaxLength != 255 {
		t.Error("email max length not carried")
	}

	nickname := customers.Value.Properties["nickname"]
	if nickname == nil || !nickname.Value.Nullable {
		t.Error("nullable column should be marked nullable")
	}
	for _, req := range customers.Value.Required {
		if req == "nickname" {
			t.Error("nullable column should not be required")
		}
	}

	orders := doc.Components.Schemas["_orders"]
	if orders == nil {
		t.Fatal("missing orders component schema")
	}
	fk := orders.Value.Properties["customer_id"]
	if fk == nil || fk.Value.Description != "References customers.id." {
		t.Errorf("foreign key hint not surfaced: %+v", fk)
	}

	if doc.Components.Schemas["ErrorResponse"] == nil {
		t.Error("missing shared ErrorResponse schema")
	}
}
