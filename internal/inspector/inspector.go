package inspector

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratumdb/stratum/internal/model"
)

// Inspector is the capability set every supported database engine must
// implement. Each variant knows how to open a short-lived native
// connection to the target and translate the engine's catalog metadata
// into the engine-agnostic schema model. Inspectors hold no connection
// state between calls; every method opens and closes its own handle.
type Inspector interface {
	// TestConnection opens a short-lived connection, issues a trivial
	// round-trip, and reports success. It never returns an error:
	// connectivity failure is a false result with the cause logged,
	// because callers use this for health and validation UX.
	TestConnection(ctx context.Context, target model.Connection) bool

	// InspectTables lists every table and view visible in the target's
	// namespace and describes each one via InspectTable.
	InspectTables(ctx context.Context, target model.Connection) ([]model.DiscoveredTable, error)

	// InspectTable describes a single table: columns in native order with
	// normalized types, the primary-key set, and single-column foreign
	// key hints. An empty schemaName means the engine default.
	InspectTable(ctx context.Context, target model.Connection, tableName, schemaName string) (*model.DiscoveredTable, error)

	// InspectRelations walks all foreign-key constraints in the target's
	// namespace and emits one name-keyed candidate per constraint.
	// Composite foreign keys are truncated to their leading column pair.
	InspectRelations(ctx context.Context, target model.Connection) ([]model.RelationCandidate, error)

	// Engine returns the engine type this inspector handles.
	Engine() model.Engine
}

// ErrUnsupportedEngine is returned by the registry when no inspector is
// registered for a connection's engine type.
var ErrUnsupportedEngine = errors.New("unsupported database engine")

// DiscoveryError reports a native catalog read that failed while
// describing one table. It is fatal to the whole introspection pass.
type DiscoveryError struct {
	Table string
	Err   error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed for table %q: %v", e.Table, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Discoveryf wraps err as a DiscoveryError for the given table.
func Discoveryf(table string, err error) error {
	return &DiscoveryError{Table: table, Err: err}
}
