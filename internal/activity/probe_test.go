package activity

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lapdev/wsagent/internal/api"
)

type fakeConductor struct {
	workspaces []api.RunningWorkspace
	updates    []update
}

type update struct {
	id   uuid.UUID
	when *time.Time
}

func (c *fakeConductor) RunningWorkspaces() ([]api.RunningWorkspace, error) {
	return c.workspaces, nil
}

func (c *fakeConductor) UpdateWorkspaceLastInactivity(id uuid.UUID, when *time.Time) error {
	c.updates = append(c.updates, update{id: id, when: when})
	// Mirror the Conductor's persistence so consecutive ticks see the
	// new state.
	for i := range c.workspaces {
		if c.workspaces[i].ID == id {
			c.workspaces[i].LastInactivity = when
		}
	}
	return nil
}

type fakePeers struct {
	conductor Conductor
}

func (p *fakePeers) FirstConductor() (Conductor, bool) {
	if p.conductor == nil {
		return nil, false
	}
	return p.conductor, true
}

func intPtr(v int) *int { return &v }

func testProbe(conductor Conductor, ports map[int]struct{}) *Probe {
	p := NewProbe(&fakePeers{conductor: conductor}, slog.New(discardHandler{}))
	p.ports = func() (map[int]struct{}, error) { return ports, nil }
	p.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestTickMarksIdleWorkspace(t *testing.T) {
	id := uuid.New()
	conductor := &fakeConductor{
		workspaces: []api.RunningWorkspace{
			{ID: id, SSHPort: intPtr(2200), IDEPort: intPtr(3000)},
		},
	}
	probe := testProbe(conductor, map[int]struct{}{})

	if err := probe.Tick(); err != nil {
		t.Fatal(err)
	}
	if len(conductor.updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(conductor.updates))
	}
	if conductor.updates[0].when == nil {
		t.Error("idle workspace must get a last-inactivity instant")
	}

	// A second tick with identical state is a no-op.
	if err := probe.Tick(); err != nil {
		t.Fatal(err)
	}
	if len(conductor.updates) != 1 {
		t.Errorf("second identical tick produced %d extra updates", len(conductor.updates)-1)
	}
}

func TestTickClearsActiveWorkspace(t *testing.T) {
	id := uuid.New()
	past := time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)
	conductor := &fakeConductor{
		workspaces: []api.RunningWorkspace{
			{ID: id, SSHPort: intPtr(2200), LastInactivity: &past},
		},
	}
	probe := testProbe(conductor, map[int]struct{}{2200: {}})

	if err := probe.Tick(); err != nil {
		t.Fatal(err)
	}
	if len(conductor.updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(conductor.updates))
	}
	if conductor.updates[0].when != nil {
		t.Error("active workspace must have last-inactivity cleared")
	}
}

func TestTickIDEPortCountsAsActivity(t *testing.T) {
	id := uuid.New()
	conductor := &fakeConductor{
		workspaces: []api.RunningWorkspace{
			{ID: id, SSHPort: intPtr(2200), IDEPort: intPtr(3000)},
		},
	}
	probe := testProbe(conductor, map[int]struct{}{3000: {}})

	if err := probe.Tick(); err != nil {
		t.Fatal(err)
	}
	// Active with no prior inactivity: nothing to update.
	if len(conductor.updates) != 0 {
		t.Errorf("got %d updates, want 0", len(conductor.updates))
	}
}

func TestTickWithoutPeers(t *testing.T) {
	probe := testProbe(nil, nil)
	if err := probe.Tick(); err == nil {
		t.Error("expected error when no conductor is registered")
	}
}
