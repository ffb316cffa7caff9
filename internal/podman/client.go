package podman

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/lapdev/wsagent/internal/api"
)

// UIDResolver resolves an OS username to a UID. Implemented by the user
// provisioner; resolution also keeps the per-user socket alive.
type UIDResolver interface {
	UID(ctx context.Context, username string) (string, error)
}

// SocketPather derives the engine socket path from a UID. Overridable so
// tests can point the client at a temporary socket.
type SocketPather func(uid string) string

// Client is a minimal HTTP client for the engine's unix-domain API.
type Client struct {
	users      UIDResolver
	socketPath SocketPather
}

// NewClient creates a Client resolving sockets through the given resolver.
func NewClient(users UIDResolver, socketPath SocketPather) *Client {
	return &Client{users: users, socketPath: socketPath}
}

// InspectImage fetches the image configuration for an image in osuser's
// engine storage.
func (c *Client) InspectImage(ctx context.Context, osuser, image string) (*api.ContainerImageInfo, error) {
	status, body, err := c.do(ctx, osuser, http.MethodGet, fmt.Sprintf("/images/%s/json", image))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, api.EngineErrorf("%s", body)
	}

	var info api.ContainerImageInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, api.Internal(fmt.Errorf("decoding image inspect: %w", err))
	}
	return &info, nil
}

// DeleteImage removes an image from osuser's engine storage. A missing
// image counts as success.
func (c *Client) DeleteImage(ctx context.Context, osuser, image string) error {
	status, body, err := c.do(ctx, osuser, http.MethodDelete, fmt.Sprintf("/images/%s", image))
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return api.EngineErrorf("delete image error: %s", body)
	}
	return nil
}

// DeleteNetwork removes a network from osuser's engine. A missing network
// counts as success.
func (c *Client) DeleteNetwork(ctx context.Context, osuser, network string) error {
	status, body, err := c.do(ctx, osuser, http.MethodDelete, fmt.Sprintf("/networks/%s", network))
	if err != nil {
		return err
	}
	if status != http.StatusNoContent && status != http.StatusNotFound {
		return api.EngineErrorf("delete network error: %s", body)
	}
	return nil
}

// do resolves the caller's socket and performs one request against it.
// The UID lookup is a short subprocess, cheap enough to run per call.
func (c *Client) do(ctx context.Context, osuser, method, path string) (int, []byte, error) {
	uid, err := c.users.UID(ctx, osuser)
	if err != nil {
		return 0, nil, err
	}
	socket := c.socketPath(uid)

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socket)
			},
		},
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://d"+path, nil)
	if err != nil {
		return 0, nil, api.Internal(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, api.Internal(fmt.Errorf("engine socket request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, api.Internal(err)
	}
	return resp.StatusCode, body, nil
}
