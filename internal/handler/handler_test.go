package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/stratumdb/stratum/internal/config"
	"github.com/stratumdb/stratum/internal/inspector"
	"github.com/stratumdb/stratum/internal/introspect"
	"github.com/stratumdb/stratum/internal/metadata"
	"github.com/stratumdb/stratum/internal/model"
)

// stubInspector serves canned discovery results over HTTP tests.
type stubInspector struct {
	reachable  bool
	tables     []model.DiscoveredTable
	candidates []model.RelationCandidate
}

func (s *stubInspector) TestConnection(_ context.Context, _ model.Connection) bool {
	return s.reachable
}
func (s *stubInspector) InspectTables(_ context.Context, _ model.Connection) ([]model.DiscoveredTable, error) {
	return s.tables, nil
}
func (s *stubInspector) InspectTable(_ context.Context, _ model.Connection, name, _ string) (*model.DiscoveredTable, error) {
	for i := range s.tables {
		if s.tables[i].Name == name {
			return &s.tables[i], nil
		}
	}
	return nil, inspector.Discoveryf(name, fmt.Errorf("not found"))
}
func (s *stubInspector) InspectRelations(_ context.Context, _ model.Connection) ([]model.RelationCandidate, error) {
	return s.candidates, nil
}
func (s *stubInspector) Engine() model.Engine { return model.EnginePostgres }

type testEnv struct {
	router chi.Router
	store  *config.Store
	meta   *metadata.Store
	stub   *stubInspector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("config store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	meta, err := metadata.NewStore("")
	if err != nil {
		t.Fatalf("metadata store: %v", err)
	}
	t.Cleanup(func() { meta.Close() })

	stub := &stubInspector{
		reachable: true,
		tables: []model.DiscoveredTable{
			{Name: "albums", Kind: model.TableKindTable, Columns: []model.DiscoveredColumn{
				{Name: "id", DataType: "INTEGER", IsPrimaryKey: true},
				{Name: "artist_id", DataType: "INTEGER", IsForeignKey: true},
			}},
			{Name: "artists", Kind: model.TableKindTable, Columns: []model.DiscoveredColumn{
				{Name: "id", DataType: "INTEGER", IsPrimaryKey: true},
			}},
		},
		candidates: []model.RelationCandidate{
			{
				FromTable: "albums", FromColumn: "artist_id",
				ToTable: "artists", ToColumn: "id",
				ConstraintName: "albums_artist_id_fkey",
				RelationType:   model.RelationManyToOne,
				OnDelete:       model.DefaultReferentialAction,
				OnUpdate:       model.DefaultReferentialAction,
			},
		},
	}

	reg := inspector.NewRegistry()
	reg.Register(model.EnginePostgres, func() inspector.Inspector { return stub })

	svc := introspect.NewService(reg, meta, nil)
	connHandler := NewConnectionHandler(store, meta, nil)
	introHandler := NewIntrospectionHandler(store, meta, svc, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/connections", func(r chi.Router) {
			r.Get("/", connHandler.ListConnections)
			r.Post("/", connHandler.CreateConnection)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", connHandler.GetConnection)
				r.Put("/", connHandler.UpdateConnection)
				r.Delete("/", connHandler.DeleteConnection)
				r.Post("/test", introHandler.TestConnection)
				r.Post("/introspect", introHandler.Introspect)
				r.Get("/tables", introHandler.ListTables)
				r.Get("/relations", introHandler.ListRelations)
				r.Get("/openapi.json", introHandler.ServeConnectionSpec)
			})
		})
		r.Get("/tables/{tableID}", introHandler.GetTable)
	})

	return &testEnv{router: r, store: store, meta: meta, stub: stub}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createConnection(t *testing.T) model.Connection {
	t.Helper()
	rec := e.do(t, "POST", "/api/v1/connections", map[string]interface{}{
		"name":     "music",
		"engine":   "postgresql",
		"host":     "db.internal",
		"database": "music",
		"username": "stratum",
		"password": "hunter2",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create connection status = %d: %s", rec.Code, rec.Body.String())
	}
	var conn model.Connection
	if err := json.Unmarshal(rec.Body.Bytes(), &conn); err != nil {
		t.Fatalf("decode connection: %v", err)
	}
	return conn
}

func TestCreateConnection(t *testing.T) {
	e := newTestEnv(t)

	conn := e.createConnection(t)
	if conn.ID == 0 {
		t.Error("expected assigned ID")
	}
	if conn.Port != 5432 {
		t.Errorf("port = %d, want default 5432", conn.Port)
	}
	if conn.Password != "" {
		t.Error("password should be redacted in responses")
	}
}

func TestCreateConnectionValidation(t *testing.T) {
	e := newTestEnv(t)

	tests := []map[string]interface{}{
		{"engine": "postgresql", "host": "h", "database": "d"},         // no name
		{"name": "x", "engine": "access", "host": "h", "database": "d"}, // bad engine
		{"name": "x", "engine": "postgresql", "host": "h"},             // no database
		{"name": "x", "engine": "postgresql", "database": "d"},         // no host
	}
	for i, body := range tests {
		rec := e.do(t, "POST", "/api/v1/connections", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("case %d: status = %d, want 400", i, rec.Code)
		}
	}

	// SQLite needs no host.
	rec := e.do(t, "POST", "/api/v1/connections", map[string]interface{}{
		"name": "local", "engine": "sqlite", "database": "/tmp/local.db",
	})
	if rec.Code != http.StatusCreated {
		t.Errorf("sqlite without host: status = %d, want 201", rec.Code)
	}
}

func TestCreateConnectionDuplicate(t *testing.T) {
	e := newTestEnv(t)
	e.createConnection(t)

	rec := e.do(t, "POST", "/api/v1/connections", map[string]interface{}{
		"name": "music", "engine": "postgresql", "host": "h", "database": "d",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestGetUpdateDeleteConnection(t *testing.T) {
	e := newTestEnv(t)
	conn := e.createConnection(t)

	rec := e.do(t, "GET", fmt.Sprintf("/api/v1/connections/%d", conn.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = e.do(t, "PUT", fmt.Sprintf("/api/v1/connections/%d", conn.ID), map[string]interface{}{
		"name": "music", "engine": "postgresql", "host": "replica.internal",
		"database": "music", "username": "stratum",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}
	var updated model.Connection
	json.Unmarshal(rec.Body.Bytes(), &updated)
	if updated.Host != "replica.internal" {
		t.Errorf("host = %q", updated.Host)
	}

	// Empty password in the update payload keeps the stored one.
	stored, err := e.store.GetConnection(context.Background(), conn.ID)
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	if stored.Password != "hunter2" {
		t.Errorf("password = %q, want hunter2", stored.Password)
	}

	rec = e.do(t, "DELETE", fmt.Sprintf("/api/v1/connections/%d", conn.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = e.do(t, "GET", fmt.Sprintf("/api/v1/connections/%d", conn.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestConnectionNotFound(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{
		"/api/v1/connections/999",
		"/api/v1/connections/999/tables",
		"/api/v1/connections/999/relations",
	} {
		rec := e.do(t, "GET", path, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, rec.Code)
		}
	}

	rec := e.do(t, "GET", "/api/v1/connections/abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric id status = %d, want 400", rec.Code)
	}
}

func TestTestConnectionEndpoint(t *testing.T) {
	e := newTestEnv(t)
	conn := e.createConnection(t)

	rec := e.do(t, "POST", fmt.Sprintf("/api/v1/connections/%d/test", conn.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]bool
	json.Unmarshal(rec.Body.Bytes(), &out)
	if !out["reachable"] {
		t.Error("expected reachable=true")
	}

	e.stub.reachable = false
	rec = e.do(t, "POST", fmt.Sprintf("/api/v1/connections/%d/test", conn.ID), nil)
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out["reachable"] {
		t.Error("expected reachable=false")
	}
}

func TestIntrospectFlow(t *testing.T) {
	e := newTestEnv(t)
	conn := e.createConnection(t)

	rec := e.do(t, "POST", fmt.Sprintf("/api/v1/connections/%d/introspect", conn.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("introspect status = %d: %s", rec.Code, rec.Body.String())
	}
	var summary model.IntrospectionSummary
	json.Unmarshal(rec.Body.Bytes(), &summary)
	if summary.TableCount != 2 || summary.RelationCount != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	// last_introspection is stamped on success.
	stored, _ := e.store.GetConnection(context.Background(), conn.ID)
	if stored.LastIntrospection == nil {
		t.Error("last_introspection not recorded")
	}

	rec = e.do(t, "GET", fmt.Sprintf("/api/v1/connections/%d/tables", conn.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("tables status = %d", rec.Code)
	}
	var tablesResp struct {
		Resource []model.DiscoveredTable `json:"resource"`
	}
	json.Unmarshal(rec.Body.Bytes(), &tablesResp)
	if len(tablesResp.Resource) != 2 {
		t.Fatalf("got %d tables, want 2", len(tablesResp.Resource))
	}
	if tablesResp.Resource[0].Name != "albums" {
		t.Errorf("tables not ordered by name: %+v", tablesResp.Resource[0].Name)
	}

	rec = e.do(t, "GET", fmt.Sprintf("/api/v1/connections/%d/relations", conn.ID), nil)
	var relsResp struct {
		Resource []model.DiscoveredRelation `json:"resource"`
	}
	json.Unmarshal(rec.Body.Bytes(), &relsResp)
	if len(relsResp.Resource) != 1 {
		t.Fatalf("got %d relations, want 1", len(relsResp.Resource))
	}

	// Single-table lookup by surrogate ID.
	tableID := tablesResp.Resource[0].ID
	rec = e.do(t, "GET", fmt.Sprintf("/api/v1/tables/%d", tableID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("table status = %d", rec.Code)
	}
	rec = e.do(t, "GET", "/api/v1/tables/99999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing table status = %d, want 404", rec.Code)
	}
}

func TestIntrospectUnreachable(t *testing.T) {
	e := newTestEnv(t)
	conn := e.createConnection(t)
	e.stub.reachable = false

	rec := e.do(t, "POST", fmt.Sprintf("/api/v1/connections/%d/introspect", conn.ID), nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	stored, _ := e.store.GetConnection(context.Background(), conn.ID)
	if stored.Status != model.StatusError {
		t.Errorf("status = %q, want %q", stored.Status, model.StatusError)
	}
}

func TestServeConnectionSpec(t *testing.T) {
	e := newTestEnv(t)
	conn := e.createConnection(t)
	e.do(t, "POST", fmt.Sprintf("/api/v1/connections/%d/introspect", conn.ID), nil)

	rec := e.do(t, "GET", fmt.Sprintf("/api/v1/connections/%d/openapi.json", conn.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var doc struct {
		OpenAPI string `json:"openapi"`
		Info    struct {
			Title string `json:"title"`
		} `json:"info"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode spec: %v", err)
	}
	if doc.OpenAPI != "3.1.0" || doc.Info.Title != "music schema" {
		t.Errorf("unexpected spec header: %+v", doc)
	}
}

func TestListConnectionsRedacted(t *testing.T) {
	e := newTestEnv(t)
	e.createConnection(t)

	rec := e.do(t, "GET", "/api/v1/connections", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Resource []model.Connection `json:"resource"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Resource) != 1 {
		t.Fatalf("got %d connections, want 1", len(resp.Resource))
	}
	if resp.Resource[0].Password != "" {
		t.Error("password should be redacted")
	}
}
