// Package activity translates OS-level TCP state into workspace
// idle/active transitions.
package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lapdev/wsagent/internal/api"
	"github.com/prometheus/procfs"
)

// tcpEstablished is the TCP_ESTABLISHED state in /proc/net/tcp.
const tcpEstablished = 1

// Conductor is the reverse-channel surface the probe needs.
type Conductor interface {
	RunningWorkspaces() ([]api.RunningWorkspace, error)
	UpdateWorkspaceLastInactivity(id uuid.UUID, when *time.Time) error
}

// Peers hands out the Conductor of the first registered connection.
type Peers interface {
	FirstConductor() (Conductor, bool)
}

// PortLister enumerates local TCP ports with an established connection.
// Swapped for a fake in tests.
type PortLister func() (map[int]struct{}, error)

// Probe periodically correlates established TCP ports against running
// workspaces' SSH/IDE ports and pushes idle/active transitions.
type Probe struct {
	peers    Peers
	ports    PortLister
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewProbe creates a Probe with the default 60 second interval.
func NewProbe(peers Peers, logger *slog.Logger) *Probe {
	return &Probe{
		peers:    peers,
		ports:    EstablishedPorts,
		interval: 60 * time.Second,
		now:      time.Now,
		logger:   logger,
	}
}

// Run ticks until ctx is done. Tick errors are logged and swallowed.
func (p *Probe) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Tick(); err != nil {
				p.logger.Error("activity probe tick", "error", err)
			}
		}
	}
}

// Tick runs one probe round. Individual transition RPC failures do not
// abort the round; only a missing peer, a failed workspace fetch or
// unreadable TCP state do.
func (p *Probe) Tick() error {
	conductor, ok := p.peers.FirstConductor()
	if !ok {
		return errors.New("don't have any conductor connections")
	}

	workspaces, err := conductor.RunningWorkspaces()
	if err != nil {
		return fmt.Errorf("fetching running workspaces: %w", err)
	}

	established, err := p.ports()
	if err != nil {
		return fmt.Errorf("enumerating tcp state: %w", err)
	}

	for _, ws := range workspaces {
		active := false
		if ws.SSHPort != nil {
			_, on := established[*ws.SSHPort]
			active = active || on
		}
		if ws.IDEPort != nil {
			_, on := established[*ws.IDEPort]
			active = active || on
		}

		switch {
		case active && ws.LastInactivity != nil:
			if err := conductor.UpdateWorkspaceLastInactivity(ws.ID, nil); err != nil {
				p.logger.Warn("clearing last inactivity", "workspace", ws.ID, "error", err)
			}
		case !active && ws.LastInactivity == nil:
			now := p.now().UTC()
			if err := conductor.UpdateWorkspaceLastInactivity(ws.ID, &now); err != nil {
				p.logger.Warn("setting last inactivity", "workspace", ws.ID, "error", err)
			}
		}
	}
	return nil
}

// EstablishedPorts returns the set of local ports with an established
// IPv4 or IPv6 TCP connection.
func EstablishedPorts() (map[int]struct{}, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, err
	}

	ports := make(map[int]struct{})
	if tcp, err := fs.NetTCP(); err == nil {
		collect(ports, tcp)
	} else {
		return nil, err
	}
	// Hosts without IPv6 have no tcp6 table; that is not an error.
	if tcp6, err := fs.NetTCP6(); err == nil {
		collect(ports, tcp6)
	}
	return ports, nil
}

func collect(ports map[int]struct{}, lines procfs.NetTCP) {
	for _, line := range lines {
		if line.St == tcpEstablished {
			ports[int(line.LocalPort)] = struct{}{}
		}
	}
}
