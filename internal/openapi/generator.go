package openapi

import (
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/stratumdb/stratum/internal/model"
)

// GenerateConnectionSpec generates an OpenAPI 3.1 document describing the
// introspected schema of one connection. Each discovered table becomes a
// component schema plus a read-only metadata path; foreign-key hints are
// surfaced in column descriptions.
func GenerateConnectionSpec(conn model.Connection, tables []model.DiscoveredTable, baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       fmt.Sprintf("%s schema", conn.Name),
			Description: fmt.Sprintf("Schema metadata discovered from %s (%s) by Stratum.", conn.Name, conn.Engine),
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	doc.Components = &components
	doc.Paths = openapi3.NewPaths()

	// Shared error response schema
	doc.Components.Schemas["ErrorResponse"] = errorResponseSchema()

	for _, table := range tables {
		addTablePath(doc, conn.ID, table)
	}

	return doc
}

// addTablePath registers a component schema for the table and a read-only
// path returning its metadata.
func addTablePath(doc *openapi3.T, connectionID int64, table model.DiscoveredTable) {
	schemaName := sanitizeSchemaName(table.SchemaName, table.Name)
	doc.Components.Schemas[schemaName] = columnsToSchema(table)

	path := fmt.Sprintf("/api/v1/tables/%d", table.ID)
	summary := fmt.Sprintf("Get %s metadata", table.Name)
	description := fmt.Sprintf("Column definitions and metadata for %s discovered on connection %d.", table.Name, connectionID)
	if table.Kind == model.TableKindView {
		description += " This object is a view."
	}

	doc.Paths.Set(path, &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{table.Name},
			Summary:     summary,
			Description: description,
			OperationID: fmt.Sprintf("get_table_%d", table.ID),
			Responses: newResponses(
				"200", summary, openapi3.NewSchemaRef("#/components/schemas/"+schemaName, nil),
			),
		},
	})
}

// columnsToSchema converts a discovered table into an OpenAPI object
// schema with one property per column.
func columnsToSchema(table model.DiscoveredTable) *openapi3.SchemaRef {
	props := openapi3.Schemas{}
	var required []string

	for _, col := range table.Columns {
		m := MapDBType(col.DataType)
		s := &openapi3.Schema{
			Type: &openapi3.Types{m.Type},
		}
		if m.Format != "" {
			s.Format = m.Format
		}
		if m.Type == "array" {
			s.Items = &openapi3.SchemaRef{Value: &openapi3.Schema{}}
		}
		if col.Nullable {
			s.Nullable = true
		} else {
			required = append(required, col.Name)
		}
		if col.MaxLength != nil {
			ml := uint64(*col.MaxLength)
			s.MaxLength = &ml
		}
		if col.IsPrimaryKey {
			s.ReadOnly = true
			s.Description = "Primary key."
		}
		if col.IsForeignKey && col.RefTable != nil && col.RefColumn != nil {
			s.Description = strings.TrimSpace(s.Description +
				fmt.Sprintf(" References %s.%s.", *col.RefTable, *col.RefColumn))
		}
		props[col.Name] = &openapi3.SchemaRef{Value: s}
	}

	schema := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
		Required:   required,
	}
	if table.Comment != nil {
		schema.Description = *table.Comment
	}
	return &openapi3.SchemaRef{Value: schema}
}

// errorResponseSchema mirrors model.ErrorResponse.
func errorResponseSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
							"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
						},
					},
				},
			},
		},
	}
}

// newResponses builds a Responses map with a success response and standard error responses.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)

	notFoundDesc := "Not found"
	responses.Set("404", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &notFoundDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
		},
	})

	serverErrDesc := "Internal server error"
	responses.Set("500", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &serverErrDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
		},
	})

	return responses
}

// sanitizeSchemaName creates a valid OpenAPI component schema name from
// schema + table names.
func sanitizeSchemaName(schemaName, tableName string) string {
	s := capitalize(schemaName) + "_" + capitalize(tableName)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// capitalize returns a string with its first character uppercased.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
