// Package osuser provisions the OS accounts that builds and containers
// run under, and keeps each account's rootless engine socket alive.
package osuser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/lapdev/wsagent/internal/api"
)

// execCommand is swapped out in tests.
var execCommand = exec.CommandContext

// Provisioner resolves OS usernames to UIDs, creating accounts on demand.
type Provisioner struct {
	logger *slog.Logger
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(logger *slog.Logger) *Provisioner {
	return &Provisioner{logger: logger}
}

// SocketPath returns the per-user engine socket path for a UID.
func SocketPath(uid string) string {
	return fmt.Sprintf("/run/user/%s/podman/podman.sock", uid)
}

// UID resolves a username to its UID. Missing accounts are created with a
// home directory, a workspaces folder, and user-lingering enabled so the
// account's session-scoped services survive logout. Idempotent.
func (p *Provisioner) UID(ctx context.Context, username string) (string, error) {
	if uid, err := p.lookup(ctx, username); err == nil {
		return uid, nil
	}

	if err := run(ctx, "useradd", username, "-d", "/home/"+username, "-m"); err != nil {
		return "", api.ProvisioningFailedf("can't useradd %s: %v", username, err)
	}

	// The workspaces folder is created as the user so ownership is right
	// without a chown pass.
	if err := run(ctx, "su", "-", username, "-c", fmt.Sprintf("mkdir /home/%s/workspaces/", username)); err != nil {
		p.logger.Warn("creating workspaces folder", "osuser", username, "error", err)
	}

	uid, err := p.lookup(ctx, username)
	if err != nil {
		return "", api.ProvisioningFailedf("can't resolve uid for %s: %v", username, err)
	}

	if err := run(ctx, "loginctl", "enable-linger", uid); err != nil {
		return "", api.ProvisioningFailedf("can't enable lingering for %s: %v", username, err)
	}

	return uid, nil
}

// lookup resolves an existing account's UID and makes sure the account's
// engine socket is live.
func (p *Provisioner) lookup(ctx context.Context, username string) (string, error) {
	out, err := execCommand(ctx, "id", "-u", username).Output()
	if err != nil {
		return "", fmt.Errorf("no user %s: %w", username, err)
	}
	uid := strings.TrimSpace(string(out))
	p.ensureSocket(username, uid)
	return uid, nil
}

// ensureSocket launches the per-user engine service when its socket file
// is absent. The launch is fire-and-forget: the socket becomes available
// asynchronously, and the first engine calls after provisioning may still
// fail. Heavy operations go through the engine CLI, which tolerates that.
func (p *Provisioner) ensureSocket(username, uid string) {
	if _, err := os.Stat(SocketPath(uid)); err == nil {
		return
	}

	p.logger.Debug("engine socket absent, starting user service", "osuser", username, "uid", uid)
	go func() {
		cmd := execCommand(context.Background(), "su", "-", username, "-c", "podman system service --time=0")
		if err := cmd.Run(); err != nil {
			p.logger.Warn("engine user service exited", "osuser", username, "error", err)
		}
	}()
}

func run(ctx context.Context, name string, args ...string) error {
	cmd := execCommand(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
