// Package rpc is the agent's RPC plane: a workspace listener carrying a
// two-way channel per Conductor connection, an inter-workspace listener
// for peer agents, and the registry of live peers.
//
// Each accepted TCP connection is multiplexed with yamux. Inbound streams
// dispatch to the local service; on the workspace port one outbound
// stream is opened back through the same session and becomes the client
// stub for the Conductor's reverse service.
package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	stdrpc "net/rpc"

	"github.com/google/uuid"
	"github.com/hashicorp/yamux"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// maxInterWSSessions bounds concurrent inter-workspace channels.
const maxInterWSSessions = 100

// Plane runs both listeners over a shared peer registry.
type Plane struct {
	agent    *Agent
	registry *Registry
	logger   *slog.Logger
}

// NewPlane creates a Plane.
func NewPlane(agent *Agent, registry *Registry, logger *slog.Logger) *Plane {
	return &Plane{agent: agent, registry: registry, logger: logger}
}

// Run binds both listeners and serves until ctx is done. Bind failures
// are returned; accept failures are logged and the listeners keep
// serving.
func (p *Plane) Run(ctx context.Context, bind string, wsPort, interWSPort int) error {
	p.agent.baseCtx = ctx

	wsListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bind, wsPort))
	if err != nil {
		return fmt.Errorf("binding workspace port: %w", err)
	}
	interListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bind, interWSPort))
	if err != nil {
		wsListener.Close()
		return fmt.Errorf("binding inter-workspace port: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		wsListener.Close()
		interListener.Close()
		return nil
	})
	g.Go(func() error {
		p.serveWorkspace(ctx, wsListener)
		return nil
	})
	g.Go(func() error {
		p.serveInterWorkspace(ctx, interListener)
		return nil
	})
	return g.Wait()
}

// serveWorkspace accepts Conductor connections on the workspace port.
func (p *Plane) serveWorkspace(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("workspace accept", "error", err)
			continue
		}
		go p.handleConductor(ctx, conn)
	}
}

// handleConductor wires one Conductor connection: a yamux session whose
// inbound streams serve WorkspaceService and whose first outbound stream
// carries the reverse ConductorService client. The peer lives in the
// registry for exactly as long as the session.
func (p *Plane) handleConductor(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr()
	session, err := yamux.Server(conn, nil)
	if err != nil {
		p.logger.Warn("starting session", "remote", remote, "error", err)
		conn.Close()
		return
	}

	reverse, err := session.Open()
	if err != nil {
		p.logger.Warn("opening reverse channel", "remote", remote, "error", err)
		session.Close()
		return
	}
	conductor := NewConductorClient(stdrpc.NewClient(reverse))

	peer := &Peer{ID: uuid.New(), Conductor: conductor}
	p.registry.Add(peer)
	defer p.registry.Remove(peer.ID)

	service := &WorkspaceService{ID: peer.ID, agent: p.agent, conductor: conductor}
	server := stdrpc.NewServer()
	if err := server.RegisterName("WorkspaceService", service); err != nil {
		p.logger.Error("registering workspace service", "error", err)
		session.Close()
		return
	}

	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-session.CloseChan():
		}
	}()

	// One goroutine per inbound stream; net/rpc itself runs one goroutine
	// per request on each stream. No per-connection cap.
	for {
		inbound, err := session.Accept()
		if err != nil {
			break
		}
		go server.ServeConn(inbound)
	}

	p.logger.Info("conductor connection stopped", "remote", remote, "peer", peer.ID)
}

// serveInterWorkspace accepts peer agent connections on the
// inter-workspace port, bounded to maxInterWSSessions concurrent
// sessions. No reverse channel is opened.
func (p *Plane) serveInterWorkspace(ctx context.Context, listener net.Listener) {
	sem := semaphore.NewWeighted(maxInterWSSessions)
	service := &InterWorkspaceService{agent: p.agent, logger: p.logger}
	server := stdrpc.NewServer()
	if err := server.RegisterName("InterWorkspaceService", service); err != nil {
		p.logger.Error("registering inter-workspace service", "error", err)
		return
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("inter-workspace accept", "error", err)
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			conn.Close()
			return
		}
		go func() {
			defer sem.Release(1)
			p.handleAgentPeer(ctx, conn, server)
		}()
	}
}

// handleAgentPeer serves one inbound peer agent session.
func (p *Plane) handleAgentPeer(ctx context.Context, conn net.Conn, server *stdrpc.Server) {
	session, err := yamux.Server(conn, nil)
	if err != nil {
		p.logger.Warn("starting peer session", "remote", conn.RemoteAddr(), "error", err)
		conn.Close()
		return
	}

	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-session.CloseChan():
		}
	}()

	for {
		inbound, err := session.Accept()
		if err != nil {
			return
		}
		go server.ServeConn(inbound)
	}
}
