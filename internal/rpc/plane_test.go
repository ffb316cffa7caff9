package rpc

import (
	"context"
	"log/slog"
	"net"
	stdrpc "net/rpc"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/yamux"
	"github.com/lapdev/wsagent/internal/api"
)

// fakeConductorService is the Conductor's side of the reverse channel.
type fakeConductorService struct {
	mu         sync.Mutex
	workspaces []api.RunningWorkspace
	stdout     []OutputLine
}

func (s *fakeConductorService) RunningWorkspaces(_ Empty, reply *[]api.RunningWorkspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	*reply = s.workspaces
	return nil
}

func (s *fakeConductorService) UpdateBuildRepoStdout(line OutputLine, _ *Empty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stdout = append(s.stdout, line)
	return nil
}

func (s *fakeConductorService) UpdateBuildRepoStderr(line OutputLine, _ *Empty) error {
	return nil
}

func (s *fakeConductorService) UpdateWorkspaceLastInactivity(_ InactivityUpdate, _ *Empty) error {
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

// dialConductor plays the Conductor over the given connection: it serves
// the reverse service on the agent-opened stream and returns a client for
// the workspace service plus the session.
func dialConductor(t *testing.T, conn net.Conn, fake *fakeConductorService) (*stdrpc.Client, *yamux.Session) {
	t.Helper()

	session, err := yamux.Client(conn, nil)
	if err != nil {
		t.Fatal(err)
	}

	server := stdrpc.NewServer()
	if err := server.RegisterName("ConductorService", fake); err != nil {
		t.Fatal(err)
	}
	go func() {
		reverse, err := session.Accept()
		if err != nil {
			return
		}
		server.ServeConn(reverse)
	}()

	outbound, err := session.Open()
	if err != nil {
		t.Fatal(err)
	}
	return stdrpc.NewClient(outbound), session
}

func TestTwoWayChannel(t *testing.T) {
	agentEnd, conductorEnd := net.Pipe()
	registry := NewRegistry()
	agent := &Agent{Version: "1.2.3", baseCtx: context.Background()}
	plane := NewPlane(agent, registry, slog.New(discardHandler{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go plane.handleConductor(ctx, agentEnd)

	fake := &fakeConductorService{
		workspaces: []api.RunningWorkspace{{Name: "w1"}},
	}
	client, session := dialConductor(t, conductorEnd, fake)
	defer session.Close()

	// Forward direction: Conductor calls the agent.
	var version string
	if err := client.Call("WorkspaceService.Version", Empty{}, &version); err != nil {
		t.Fatal(err)
	}
	if version != "1.2.3" {
		t.Errorf("Version = %q, want %q", version, "1.2.3")
	}

	// The connection registered exactly one peer.
	waitFor(t, func() bool { return registry.Len() == 1 })

	// Reverse direction: the agent calls the Conductor over the same
	// transport.
	peer, ok := registry.First()
	if !ok {
		t.Fatal("expected a registered peer")
	}
	workspaces, err := peer.Conductor.RunningWorkspaces()
	if err != nil {
		t.Fatal(err)
	}
	if len(workspaces) != 1 || workspaces[0].Name != "w1" {
		t.Errorf("RunningWorkspaces() = %+v", workspaces)
	}

	if err := peer.Conductor.UpdateBuildRepoStdout(api.WorkspaceTarget("w1"), "step 1/3"); err != nil {
		t.Fatal(err)
	}
	fake.mu.Lock()
	gotLines := len(fake.stdout)
	fake.mu.Unlock()
	if gotLines != 1 {
		t.Errorf("conductor received %d stdout lines, want 1", gotLines)
	}
}

func TestPeerRemovedOnDisconnect(t *testing.T) {
	agentEnd, conductorEnd := net.Pipe()
	registry := NewRegistry()
	agent := &Agent{Version: "dev", baseCtx: context.Background()}
	plane := NewPlane(agent, registry, slog.New(discardHandler{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go plane.handleConductor(ctx, agentEnd)

	_, session := dialConductor(t, conductorEnd, &fakeConductorService{})
	waitFor(t, func() bool { return registry.Len() == 1 })

	session.Close()
	waitFor(t, func() bool { return registry.Len() == 0 })
}

func TestInterWorkspacePing(t *testing.T) {
	agentEnd, peerEnd := net.Pipe()
	agent := &Agent{Version: "1.2.3", baseCtx: context.Background()}
	plane := NewPlane(agent, NewRegistry(), slog.New(discardHandler{}))

	server := stdrpc.NewServer()
	service := &InterWorkspaceService{agent: agent, logger: plane.logger}
	if err := server.RegisterName("InterWorkspaceService", service); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go plane.handleAgentPeer(ctx, agentEnd, server)

	session, err := yamux.Client(peerEnd, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()
	outbound, err := session.Open()
	if err != nil {
		t.Fatal(err)
	}

	client := stdrpc.NewClient(outbound)
	var reply string
	if err := client.Call("InterWorkspaceService.Ping", Empty{}, &reply); err != nil {
		t.Fatal(err)
	}
	if reply != "1.2.3" {
		t.Errorf("Ping = %q, want %q", reply, "1.2.3")
	}
}
