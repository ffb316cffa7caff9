// Package builder turns a cloned repository into ready-to-run container
// images and drives the devcontainer lifecycle inside them.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/lapdev/wsagent/internal/api"
	"github.com/lapdev/wsagent/internal/compose"
	"github.com/lapdev/wsagent/internal/devcontainer"
	"github.com/lapdev/wsagent/internal/dockerfile"
	"github.com/lapdev/wsagent/internal/guestagent"
	"github.com/lapdev/wsagent/internal/podman"
	"github.com/lapdev/wsagent/internal/stream"
)

// lockName guards the guest-agent sidecar files inside a build context.
const lockName = ".lapdev-build.lock"

// Builder builds container images for repository builds. All engine
// invocations run as the build's OS user.
type Builder struct {
	engine *podman.Client
	runner *podman.Runner
	logger *slog.Logger
}

// New creates a Builder.
func New(engine *podman.Client, runner *podman.Runner, logger *slog.Logger) *Builder {
	return &Builder{engine: engine, runner: runner, logger: logger}
}

// Build runs the full pipeline for a repository build: locate the
// devcontainer configuration, build the image (or one image per compose
// service), and return the manifest together with the parsed devcontainer
// config, whose lifecycle hooks the caller runs. The config is nil only
// when an error is returned.
func (b *Builder) Build(ctx context.Context, conductor stream.Conductor, info *api.RepoBuildInfo) (api.RepoBuildOutput, *devcontainer.Config, error) {
	repoFolder := api.BuildRepoFolder(info)
	cwd, cfg, ok, err := devcontainer.FindAndParse(repoFolder)
	if err != nil {
		return api.RepoBuildOutput{}, nil, err
	}
	if !ok {
		return api.RepoBuildOutput{}, nil, api.RepositoryInvalidf("no devcontainer configuration found in %s", info.RepoName)
	}

	tag := info.Target.ImageTag()

	switch {
	case len(cfg.DockerComposeFile) > 0:
		composeFile := filepath.Join(cwd, cfg.DockerComposeFile[0])
		out, err := b.BuildCompose(ctx, conductor, info, composeFile, tag)
		if err != nil {
			return api.RepoBuildOutput{}, nil, err
		}
		return out, cfg, nil

	case cfg.Build != nil || cfg.Dockerfile != "":
		step := buildStepFromConfig(cfg)
		if err := b.BuildFromDockerfile(ctx, conductor, info, cwd, step, tag); err != nil {
			return api.RepoBuildOutput{}, nil, err
		}
		return api.ImageOutput(tag), cfg, nil

	case cfg.Image != "":
		if err := b.BuildFromBase(ctx, conductor, info, cwd, cfg.Image, tag); err != nil {
			return api.RepoBuildOutput{}, nil, err
		}
		return api.ImageOutput(tag), cfg, nil

	default:
		return api.RepoBuildOutput{}, nil, api.RepositoryInvalidf("devcontainer.json has no image, build or compose file")
	}
}

// buildStepFromConfig normalizes a devcontainer build section, including
// the legacy top-level dockerfile/context fields, into a build step.
func buildStepFromConfig(cfg *devcontainer.Config) compose.BuildStep {
	step := compose.BuildStep{Context: cfg.Context, Dockerfile: cfg.Dockerfile}
	if cfg.Build != nil {
		if cfg.Build.Context != "" {
			step.Context = cfg.Build.Context
		}
		if cfg.Build.Dockerfile != "" {
			step.Dockerfile = cfg.Build.Dockerfile
		}
	}
	if step.Context == "" {
		step.Context = "."
	}
	return step
}

// BuildFromDockerfile builds an image from the repository's own
// Dockerfile.
func (b *Builder) BuildFromDockerfile(ctx context.Context, conductor stream.Conductor, info *api.RepoBuildInfo, cwd string, build compose.BuildStep, tag string) error {
	buildContext := filepath.Join(cwd, build.Context)
	name := build.Dockerfile
	if name == "" {
		name = "Dockerfile"
	}

	content, err := os.ReadFile(filepath.Join(buildContext, name))
	if err != nil {
		return api.RepositoryInvalidf("can't read dockerfile: %v", err)
	}
	if err := dockerfile.Validate(string(content)); err != nil {
		return err
	}

	return b.doBuild(ctx, conductor, info, cwd, buildContext, string(content), tag)
}

// BuildFromBase builds an image on top of a published base image,
// restating the base's startup contract so it survives the guest-agent
// layers. The pull is best-effort: a failed pull is logged and the build
// goes on with the copy of the image the engine already holds; when there
// is none, the inspect that follows returns its error.
func (b *Builder) BuildFromBase(ctx context.Context, conductor stream.Conductor, info *api.RepoBuildInfo, cwd, image, tag string) error {
	if err := b.pull(ctx, conductor, info.Osuser, image, info.Target); err != nil {
		b.logger.Debug("image pull failed, build will retry", "image", image, "error", err)
	}

	imageInfo, err := b.engine.InspectImage(ctx, info.Osuser, image)
	if err != nil {
		return err
	}

	content := dockerfile.Synthesize(image, imageInfo)
	return b.doBuild(ctx, conductor, info, cwd, cwd, content, tag)
}

// pull runs `podman pull` as the target user, streaming output.
func (b *Builder) pull(ctx context.Context, conductor stream.Conductor, osuser, image string, target api.BuildTarget) error {
	proc, err := b.runner.Start(ctx, osuser, "podman pull "+image)
	if err != nil {
		return err
	}
	stream.Forward(proc.Stdout, proc.Stderr, conductor, target)
	return proc.Wait()
}

// doBuild is the single primitive every build path terminates in. It
// materializes the guest-agent sidecars into the build context, appends
// the install stage to the Dockerfile, and invokes the engine as the
// target user. Sidecars are removed on success and retained on failure
// for forensics.
func (b *Builder) doBuild(ctx context.Context, conductor stream.Conductor, info *api.RepoBuildInfo, cwd, buildContext, dockerfileText, tag string) error {
	tmp, err := os.CreateTemp("", "lapdev-dockerfile-")
	if err != nil {
		return api.Internal(err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(dockerfileText + dockerfile.GuestAgentStage); err != nil {
		tmp.Close()
		return api.Internal(err)
	}
	if err := tmp.Close(); err != nil {
		return api.Internal(err)
	}

	// Sidecar files share the context with anything else building from
	// it; hold the context lock while they exist.
	lock := flock.New(filepath.Join(buildContext, lockName))
	if err := lock.Lock(); err != nil {
		return api.Internal(fmt.Errorf("locking build context: %w", err))
	}
	defer lock.Unlock()

	scriptPath := filepath.Join(buildContext, guestagent.ScriptName)
	if err := os.WriteFile(scriptPath, guestagent.Script(), 0o644); err != nil {
		return api.Internal(err)
	}
	binaryPath := filepath.Join(buildContext, guestagent.BinaryName)
	if err := os.WriteFile(binaryPath, guestagent.Binary(), 0o755); err != nil {
		return api.Internal(err)
	}

	owner := info.Osuser + ":" + info.Osuser
	for _, p := range []string{scriptPath, binaryPath, tmpPath} {
		if out, err := exec.CommandContext(ctx, "chown", owner, p).CombinedOutput(); err != nil {
			b.logger.Warn("chown failed", "path", p, "error", err, "output", strings.TrimSpace(string(out)))
		}
	}

	proc, err := b.runner.Start(ctx, info.Osuser, buildCommand(info, cwd, tmpPath, tag, buildContext))
	if err != nil {
		return api.Internal(err)
	}
	stderrLog := stream.Forward(proc.Stdout, proc.Stderr, conductor, info.Target)
	if err := proc.Wait(); err != nil {
		return api.RepositoryInvalidf("Container Image build failed: %s", stderrLog.String())
	}

	os.Remove(scriptPath)
	os.Remove(binaryPath)
	return nil
}

// buildCommand assembles the engine build invocation for a repository
// build.
func buildCommand(info *api.RepoBuildInfo, cwd, tmpDockerfile, tag, buildContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "cd %s && podman build --no-cache", cwd)
	for _, env := range info.Env {
		fmt.Fprintf(&b, " --build-arg %s=%s", env.Name, env.Value)
	}
	fmt.Fprintf(&b, " --cpuset-cpus %s -m %dg -f %s -t %s %s",
		cpuset(info.CPUs), info.Memory, tmpDockerfile, tag, buildContext)
	return b.String()
}

// cpuset renders a CPU list as the engine's comma-joined form.
func cpuset(cpus []int) string {
	parts := make([]string, len(cpus))
	for i, c := range cpus {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}
