package inspector

import (
	"context"
	"errors"
	"testing"

	"github.com/stratumdb/stratum/internal/model"
)

// stubInspector implements Inspector without touching a real database.
type stubInspector struct {
	engine model.Engine
}

func (s *stubInspector) TestConnection(_ context.Context, _ model.Connection) bool { return true }
func (s *stubInspector) InspectTables(_ context.Context, _ model.Connection) ([]model.DiscoveredTable, error) {
	return nil, nil
}
func (s *stubInspector) InspectTable(_ context.Context, _ model.Connection, _, _ string) (*model.DiscoveredTable, error) {
	return nil, nil
}
func (s *stubInspector) InspectRelations(_ context.Context, _ model.Connection) ([]model.RelationCandidate, error) {
	return nil, nil
}
func (s *stubInspector) Engine() model.Engine { return s.engine }

func TestRegistryFor(t *testing.T) {
	r := NewRegistry()
	r.Register(model.EnginePostgres, func() Inspector {
		return &stubInspector{engine: model.EnginePostgres}
	})

	insp, err := r.For(model.EnginePostgres)
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	if insp.Engine() != model.EnginePostgres {
		t.Errorf("got engine %q, want %q", insp.Engine(), model.EnginePostgres)
	}
}

func TestRegistryForReturnsFreshInstances(t *testing.T) {
	r := NewRegistry()
	r.Register(model.EngineSQLite, func() Inspector {
		return &stubInspector{engine: model.EngineSQLite}
	})

	a, _ := r.For(model.EngineSQLite)
	b, _ := r.For(model.EngineSQLite)
	if a == b {
		t.Error("expected distinct inspector instances per For call")
	}
}

func TestRegistryUnsupportedEngine(t *testing.T) {
	r := NewRegistry()
	r.Register(model.EngineMySQL, func() Inspector {
		return &stubInspector{engine: model.EngineMySQL}
	})

	_, err := r.For(model.EngineOracle)
	if !errors.Is(err, ErrUnsupportedEngine) {
		t.Fatalf("expected ErrUnsupportedEngine, got %v", err)
	}
}

func TestRegistryEnginesSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(model.EngineSQLite, func() Inspector { return &stubInspector{} })
	r.Register(model.EngineMySQL, func() Inspector { return &stubInspector{} })
	r.Register(model.EnginePostgres, func() Inspector { return &stubInspector{} })

	engines := r.Engines()
	want := []model.Engine{model.EngineMySQL, model.EnginePostgres, model.EngineSQLite}
	if len(engines) != len(want) {
		t.Fatalf("got %d engines, want %d", len(engines), len(want))
	}
	for i := range want {
		if engines[i] != want[i] {
			t.Errorf("engines[%d] = %q, want %q", i, engines[i], want[i])
		}
	}
}

func TestDiscoveryErrorUnwrap(t *testing.T) {
	cause := errors.New("catalog read timed out")
	err := Discoveryf("orders", cause)

	var de *DiscoveryError
	if !errors.As(err, &de) {
		t.Fatal("expected DiscoveryError")
	}
	if de.Table != "orders" {
		t.Errorf("got table %q, want orders", de.Table)
	}
	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause to be reachable via errors.Is")
	}
}
