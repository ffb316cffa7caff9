package builder

import (
	"context"
	"fmt"

	"github.com/lapdev/wsagent/internal/api"
	"github.com/lapdev/wsagent/internal/devcontainer"
	"github.com/lapdev/wsagent/internal/stream"
)

// RunLifecycle executes the devcontainer lifecycle hooks against a build
// output, in order: onCreate, updateContent, postCreate. A failing phase
// is logged and later phases still run.
func (b *Builder) RunLifecycle(ctx context.Context, conductor stream.Conductor, info *api.RepoBuildInfo, output api.RepoBuildOutput, cfg *devcontainer.Config) {
	phases := []struct {
		name string
		cmd  *devcontainer.LifeCycleCmd
	}{
		{"onCreateCommand", cfg.OnCreateCommand},
		{"updateContentCommand", cfg.UpdateContentCommand},
		{"postCreateCommand", cfg.PostCreateCommand},
	}
	for _, phase := range phases {
		if phase.cmd == nil {
			continue
		}
		if err := b.runLifecycleCommand(ctx, conductor, info, output, cfg, *phase.cmd); err != nil {
			b.logger.Warn("lifecycle command failed", "phase", phase.name, "error", err)
		}
	}
}

// runLifecycleCommand dispatches one lifecycle command against the build
// output.
//
// Compose builds: object form routes each entry to the named service
// (unknown names are skipped); simple and argv forms run against the
// main service from config.service, a no-op when that is unset or not a
// built service. Single-image builds reject the object form.
func (b *Builder) runLifecycleCommand(ctx context.Context, conductor stream.Conductor, info *api.RepoBuildInfo, output api.RepoBuildOutput, cfg *devcontainer.Config, cmd devcontainer.LifeCycleCmd) error {
	switch output.Kind {
	case api.OutputCompose:
		if cmd.Form == devcontainer.FormObject {
			for name, c := range cmd.Object {
				svc := findService(output.Services, name)
				if svc == nil {
					continue
				}
				if err := b.runCommand(ctx, conductor, info, svc.Image, c); err != nil {
					return err
				}
			}
			return nil
		}
		if cfg.Service == "" {
			return nil
		}
		svc := findService(output.Services, cfg.Service)
		if svc == nil {
			return nil
		}
		return b.runCommand(ctx, conductor, info, svc.Image, cmd.Cmd)

	default:
		if cmd.Form == devcontainer.FormObject {
			return api.InvalidLifecycleErr("can't use object command for a non-compose build")
		}
		return b.runCommand(ctx, conductor, info, output.Image, cmd.Cmd)
	}
}

func findService(services []api.ComposeService, name string) *api.ComposeService {
	for i := range services {
		if services[i].Name == name {
			return &services[i]
		}
	}
	return nil
}

// runCommand executes one command in a throwaway container of the given
// image, with the repository mounted at /workspace.
func (b *Builder) runCommand(ctx context.Context, conductor stream.Conductor, info *api.RepoBuildInfo, image string, cmd devcontainer.Cmd) error {
	proc, err := b.runner.Start(ctx, info.Osuser, runCommand(info, image, cmd))
	if err != nil {
		return api.Internal(err)
	}
	stream.Forward(proc.Stdout, proc.Stderr, conductor, info.Target)
	if err := proc.Wait(); err != nil {
		return api.Internal(err)
	}
	return nil
}

// runCommand assembles the engine run invocation for a lifecycle command.
func runCommand(info *api.RepoBuildInfo, image string, cmd devcontainer.Cmd) string {
	return fmt.Sprintf(
		`podman run --rm --cpuset-cpus %s -m %dg --security-opt label=disable -v %s:/workspace -w /workspace --user root --entrypoint "" %s %s`,
		cpuset(info.CPUs), info.Memory, api.BuildRepoFolder(info), image, cmd.Shell(),
	)
}
