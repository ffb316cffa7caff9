package rpc

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lapdev/wsagent/internal/api"
	"github.com/lapdev/wsagent/internal/builder"
	"github.com/lapdev/wsagent/internal/osuser"
	"github.com/lapdev/wsagent/internal/podman"
)

// Agent bundles the node-local dependencies every connection serves with.
type Agent struct {
	Version string
	Users   *osuser.Provisioner
	Engine  *podman.Client
	Builder *builder.Builder
	Logger  *slog.Logger

	// baseCtx bounds the work started by inbound requests; it is the
	// plane's run context.
	baseCtx context.Context
}

// WorkspaceService serves workspace operations for one Conductor
// connection. The conductor field is the reverse client on the same
// transport, used for streaming build output back.
type WorkspaceService struct {
	ID        uuid.UUID
	agent     *Agent
	conductor *ConductorClient
}

// ImageRef names an image in an OS user's engine storage.
type ImageRef struct {
	Osuser string
	Image  string
}

// NetworkRef names a network in an OS user's engine.
type NetworkRef struct {
	Osuser  string
	Network string
}

// Version reports the agent version.
func (s *WorkspaceService) Version(_ Empty, reply *string) error {
	*reply = s.agent.Version
	return nil
}

// CreateOSUser provisions the OS account for a workspace and replies
// with its UID.
func (s *WorkspaceService) CreateOSUser(osusername string, reply *string) error {
	uid, err := s.agent.Users.UID(s.agent.baseCtx, osusername)
	if err != nil {
		return err
	}
	*reply = uid
	return nil
}

// BuildRepo runs the full build pipeline for a repository: provisioning,
// image construction, and lifecycle hooks. Build output streams to the
// requesting Conductor over the reverse channel while the build runs.
func (s *WorkspaceService) BuildRepo(info api.RepoBuildInfo, reply *api.RepoBuildOutput) error {
	ctx := s.agent.baseCtx

	if _, err := s.agent.Users.UID(ctx, info.Osuser); err != nil {
		return err
	}

	output, cfg, err := s.agent.Builder.Build(ctx, s.conductor, &info)
	if err != nil {
		return userFacing(err)
	}

	if cfg != nil {
		s.agent.Builder.RunLifecycle(ctx, s.conductor, &info, output, cfg)
	}

	*reply = output
	return nil
}

// DeleteImage removes an image; missing images count as deleted.
func (s *WorkspaceService) DeleteImage(ref ImageRef, _ *Empty) error {
	return s.agent.Engine.DeleteImage(s.agent.baseCtx, ref.Osuser, ref.Image)
}

// DeleteNetwork removes a network; missing networks count as deleted.
func (s *WorkspaceService) DeleteNetwork(ref NetworkRef, _ *Empty) error {
	return s.agent.Engine.DeleteNetwork(s.agent.baseCtx, ref.Osuser, ref.Network)
}

// userFacing converts InvalidLifecycle into RepositoryInvalid before an
// error crosses the RPC boundary; the distinction is internal.
func userFacing(err error) error {
	var e *api.Error
	if errors.As(err, &e) && e.Kind == api.InvalidLifecycle {
		return api.RepositoryInvalidf("%s", e.Msg)
	}
	return err
}
