package introspect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stratumdb/stratum/internal/inspector"
	"github.com/stratumdb/stratum/internal/metadata"
	"github.com/stratumdb/stratum/internal/model"
)

// ErrUnreachable is returned when the target database does not answer a
// connectivity probe. No discovery is attempted and the previous snapshot
// is left untouched.
var ErrUnreachable = errors.New("database unreachable")

// Service runs introspection passes: it selects an inspector for the
// connection's engine, probes connectivity, discovers tables and
// relations, and persists the result as a full-replace snapshot.
type Service struct {
	registry *inspector.Registry
	meta     *metadata.Store
	logger   *slog.Logger
}

// NewService creates an introspection service. A nil logger falls back to
// slog.Default.
func NewService(registry *inspector.Registry, meta *metadata.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{registry: registry, meta: meta, logger: logger}
}

// TestConnection probes the target database without touching persisted
// metadata. Unsupported engines report an error; an unreachable target
// reports false.
func (s *Service) TestConnection(ctx context.Context, conn model.Connection) (bool, error) {
	insp, err := s.registry.For(conn.Engine)
	if err != nil {
		return false, err
	}
	return insp.TestConnection(ctx, conn), nil
}

// Run executes a full introspection pass for the connection. The pass is
// all-or-nothing: on any discovery or persistence failure the previously
// persisted snapshot survives untouched.
func (s *Service) Run(ctx context.Context, conn model.Connection) (*model.IntrospectionSummary, error) {
	insp, err := s.registry.For(conn.Engine)
	if err != nil {
		return nil, err
	}

	if !insp.TestConnection(ctx, conn) {
		return nil, fmt.Errorf("connection %q: %w", conn.Name, ErrUnreachable)
	}

	start := time.Now()
	s.logger.Info("introspection started",
		"connection", conn.Name, "connection_id", conn.ID, "engine", conn.Engine)

	tables, err := insp.InspectTables(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("discover tables: %w", err)
	}

	candidates, err := insp.InspectRelations(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("discover relations: %w", err)
	}

	saved, rels, skipped, err := s.meta.ReplaceSnapshot(ctx, conn.ID, tables, candidates)
	if err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}

	if skipped > 0 {
		s.logger.Warn("relation candidates dropped",
			"connection", conn.Name, "skipped", skipped)
	}
	s.logger.Info("introspection finished",
		"connection", conn.Name,
		"tables", len(saved),
		"relations", len(rels),
		"skipped_relations", skipped,
		"duration", time.Since(start))

	return &model.IntrospectionSummary{
		ConnectionID:     conn.ID,
		TableCount:       len(saved),
		RelationCount:    len(rels),
		SkippedRelations: skipped,
	}, nil
}
