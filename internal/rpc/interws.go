package rpc

import "log/slog"

// InterWorkspaceService is the surface served to peer agents on the
// inter-workspace port. Peer-to-peer operations are routed through the
// Conductor today, so the surface is a liveness check.
type InterWorkspaceService struct {
	agent  *Agent
	logger *slog.Logger
}

// Ping answers a peer liveness check with the agent version.
func (s *InterWorkspaceService) Ping(_ Empty, reply *string) error {
	*reply = s.agent.Version
	return nil
}
