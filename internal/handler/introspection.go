package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/stratumdb/stratum/internal/config"
	"github.com/stratumdb/stratum/internal/inspector"
	"github.com/stratumdb/stratum/internal/introspect"
	"github.com/stratumdb/stratum/internal/metadata"
	"github.com/stratumdb/stratum/internal/model"
	"github.com/stratumdb/stratum/internal/openapi"
)

// IntrospectionHandler serves introspection runs and the persisted
// metadata they produce.
type IntrospectionHandler struct {
	store  *config.Store
	meta   *metadata.Store
	svc    *introspect.Service
	logger *slog.Logger
}

// NewIntrospectionHandler creates an IntrospectionHandler.
func NewIntrospectionHandler(store *config.Store, meta *metadata.Store, svc *introspect.Service, logger *slog.Logger) *IntrospectionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntrospectionHandler{store: store, meta: meta, svc: svc, logger: logger}
}

func (h *IntrospectionHandler) connection(w http.ResponseWriter, r *http.Request) *model.Connection {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid connection id")
		return nil
	}
	conn, err := h.store.GetConnection(r.Context(), id)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "connection not found")
			return nil
		}
		writeError(w, http.StatusInternalServerError, "failed to get connection")
		return nil
	}
	return conn
}

// TestConnection handles POST /api/v1/connections/{id}/test.
func (h *IntrospectionHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	conn := h.connection(w, r)
	if conn == nil {
		return
	}

	reachable, err := h.svc.TestConnection(r.Context(), *conn)
	if err != nil {
		if errors.Is(err, inspector.ErrUnsupportedEngine) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "connection test failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reachable": reachable})
}

// Introspect handles POST /api/v1/connections/{id}/introspect. A
// successful pass replaces the connection's persisted snapshot and
// updates its last_introspection timestamp.
func (h *IntrospectionHandler) Introspect(w http.ResponseWriter, r *http.Request) {
	conn := h.connection(w, r)
	if conn == nil {
		return
	}

	summary, err := h.svc.Run(r.Context(), *conn)
	if err != nil {
		switch {
		case errors.Is(err, inspector.ErrUnsupportedEngine):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, introspect.ErrUnreachable):
			if serr := h.store.SetConnectionStatus(r.Context(), conn.ID, model.StatusError); serr != nil {
				h.logger.Error("failed to update connection status", "connection_id", conn.ID, "error", serr)
			}
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
		default:
			h.logger.Error("introspection failed", "connection", conn.Name, "error", err)
			writeError(w, http.StatusInternalServerError, "introspection failed: "+err.Error())
		}
		return
	}

	if err := h.store.MarkIntrospected(r.Context(), conn.ID); err != nil {
		h.logger.Error("failed to record introspection time", "connection_id", conn.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListTables handles GET /api/v1/connections/{id}/tables.
func (h *IntrospectionHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	conn := h.connection(w, r)
	if conn == nil {
		return
	}

	tables, err := h.meta.GetTablesByConnection(r.Context(), conn.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tables")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"resource": tables})
}

// ListRelations handles GET /api/v1/connections/{id}/relations.
func (h *IntrospectionHandler) ListRelations(w http.ResponseWriter, r *http.Request) {
	conn := h.connection(w, r)
	if conn == nil {
		return
	}

	rels, err := h.meta.GetRelationsByConnection(r.Context(), conn.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list relations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"resource": rels})
}

// GetTable handles GET /api/v1/tables/{tableID}.
func (h *IntrospectionHandler) GetTable(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "tableID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid table id")
		return
	}

	table, err := h.meta.GetTableByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			writeError(w, http.StatusNotFound, "table not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get table")
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// ServeConnectionSpec handles GET /api/v1/connections/{id}/openapi.json.
func (h *IntrospectionHandler) ServeConnectionSpec(w http.ResponseWriter, r *http.Request) {
	conn := h.connection(w, r)
	if conn == nil {
		return
	}

	tables, err := h.meta.GetTablesByConnection(r.Context(), conn.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load metadata")
		return
	}

	baseURL := "http://" + r.Host
	if r.TLS != nil {
		baseURL = "https://" + r.Host
	}
	doc := openapi.GenerateConnectionSpec(*conn, tables, baseURL)
	writeJSON(w, http.StatusOK, doc)
}
