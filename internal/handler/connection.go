package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stratumdb/stratum/internal/config"
	"github.com/stratumdb/stratum/internal/metadata"
	"github.com/stratumdb/stratum/internal/model"
)

// ConnectionHandler serves the connection registry: registering targets,
// updating credentials, and removing connections together with their
// persisted metadata.
type ConnectionHandler struct {
	store  *config.Store
	meta   *metadata.Store
	logger *slog.Logger
}

// NewConnectionHandler creates a ConnectionHandler.
func NewConnectionHandler(store *config.Store, meta *metadata.Store, logger *slog.Logger) *ConnectionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionHandler{store: store, meta: meta, logger: logger}
}

// connectionRequest is the create/update payload for a connection.
type connectionRequest struct {
	Name       string `json:"name"`
	Engine     string `json:"engine"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Database   string `json:"database"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Schema     string `json:"schema"`
	TLSEnabled bool   `json:"tls_enabled"`
}

func (req *connectionRequest) validate() string {
	if strings.TrimSpace(req.Name) == "" {
		return "name is required"
	}
	switch model.Engine(req.Engine) {
	case model.EnginePostgres, model.EngineMySQL, model.EngineSQLite,
		model.EngineMSSQL, model.EngineOracle:
	default:
		return "unknown engine: " + req.Engine
	}
	if strings.TrimSpace(req.Database) == "" {
		return "database is required"
	}
	if model.Engine(req.Engine) != model.EngineSQLite && strings.TrimSpace(req.Host) == "" {
		return "host is required"
	}
	return ""
}

// ListConnections handles GET /api/v1/connections.
func (h *ConnectionHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.store.ListConnections(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list connections")
		return
	}

	out := make([]model.Connection, len(conns))
	for i, c := range conns {
		out[i] = redact(c)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"resource": out})
}

// CreateConnection handles POST /api/v1/connections.
func (h *ConnectionHandler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	conn := model.Connection{
		Name:       req.Name,
		Engine:     model.Engine(req.Engine),
		Host:       req.Host,
		Port:       req.Port,
		Database:   req.Database,
		Username:   req.Username,
		Password:   req.Password,
		Schema:     req.Schema,
		TLSEnabled: req.TLSEnabled,
	}
	if err := h.store.CreateConnection(r.Context(), &conn); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			writeError(w, http.StatusConflict, "connection name already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create connection")
		return
	}

	h.logger.Info("connection created", "connection", conn.Name, "engine", conn.Engine)
	writeJSON(w, http.StatusCreated, redact(conn))
}

// GetConnection handles GET /api/v1/connections/{id}.
func (h *ConnectionHandler) GetConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid connection id")
		return
	}

	conn, err := h.store.GetConnection(r.Context(), id)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "connection not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get connection")
		return
	}
	writeJSON(w, http.StatusOK, redact(*conn))
}

// UpdateConnection handles PUT /api/v1/connections/{id}. An empty password
// in the payload keeps the stored one.
func (h *ConnectionHandler) UpdateConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid connection id")
		return
	}

	existing, err := h.store.GetConnection(r.Context(), id)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "connection not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get connection")
		return
	}

	var req connectionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	existing.Name = req.Name
	existing.Engine = model.Engine(req.Engine)
	existing.Host = req.Host
	existing.Port = req.Port
	existing.Database = req.Database
	existing.Username = req.Username
	existing.Schema = req.Schema
	existing.TLSEnabled = req.TLSEnabled
	if req.Password != "" {
		existing.Password = req.Password
	}
	if existing.Port == 0 {
		existing.Port = model.DefaultPort(existing.Engine)
	}

	if err := h.store.UpdateConnection(r.Context(), existing); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update connection")
		return
	}
	writeJSON(w, http.StatusOK, redact(*existing))
}

// DeleteConnection handles DELETE /api/v1/connections/{id}. Persisted
// introspection metadata for the connection is removed as well.
func (h *ConnectionHandler) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid connection id")
		return
	}

	if err := h.store.DeleteConnection(r.Context(), id); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "connection not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete connection")
		return
	}
	if err := h.meta.DeleteByConnection(r.Context(), id); err != nil {
		h.logger.Error("failed to delete metadata for connection", "connection_id", id, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}
