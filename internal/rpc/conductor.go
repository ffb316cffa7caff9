package rpc

import (
	stdrpc "net/rpc"
	"time"

	"github.com/google/uuid"
	"github.com/lapdev/wsagent/internal/api"
)

// Empty is the argument or reply for operations that carry nothing.
type Empty struct{}

// OutputLine is one line of build output pushed to the Conductor.
type OutputLine struct {
	Target api.BuildTarget
	Line   string
}

// InactivityUpdate sets or clears a workspace's last-inactivity instant.
type InactivityUpdate struct {
	ID   uuid.UUID
	When *time.Time
}

// ConductorClient is the reverse-direction client stub: the Conductor
// serves these on the same transport it dialed the agent with.
type ConductorClient struct {
	rpc *stdrpc.Client
}

// NewConductorClient wraps an established reverse channel.
func NewConductorClient(client *stdrpc.Client) *ConductorClient {
	return &ConductorClient{rpc: client}
}

// Close closes the underlying channel.
func (c *ConductorClient) Close() error { return c.rpc.Close() }

// RunningWorkspaces fetches the workspaces the Conductor schedules on
// this host.
func (c *ConductorClient) RunningWorkspaces() ([]api.RunningWorkspace, error) {
	var reply []api.RunningWorkspace
	if err := c.rpc.Call("ConductorService.RunningWorkspaces", Empty{}, &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// UpdateBuildRepoStdout reports one stdout line of a build.
func (c *ConductorClient) UpdateBuildRepoStdout(target api.BuildTarget, line string) error {
	return c.rpc.Call("ConductorService.UpdateBuildRepoStdout", OutputLine{Target: target, Line: line}, &Empty{})
}

// UpdateBuildRepoStderr reports one stderr line of a build.
func (c *ConductorClient) UpdateBuildRepoStderr(target api.BuildTarget, line string) error {
	return c.rpc.Call("ConductorService.UpdateBuildRepoStderr", OutputLine{Target: target, Line: line}, &Empty{})
}

// UpdateWorkspaceLastInactivity sets (non-nil) or clears (nil) a
// workspace's last-inactivity instant.
func (c *ConductorClient) UpdateWorkspaceLastInactivity(id uuid.UUID, when *time.Time) error {
	return c.rpc.Call("ConductorService.UpdateWorkspaceLastInactivity", InactivityUpdate{ID: id, When: when}, &Empty{})
}
