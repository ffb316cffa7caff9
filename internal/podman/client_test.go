package podman

import (
	"context"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/lapdev/wsagent/internal/api"
)

type fakeResolver struct{ uid string }

func (f fakeResolver) UID(_ context.Context, _ string) (string, error) {
	return f.uid, nil
}

// startEngine serves a fake engine API on a unix socket and returns the
// socket path.
func startEngine(t *testing.T) string {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "podman.sock")

	listener, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/images/ubuntu/json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"Config":{"Entrypoint":["/bin/bash"],"Cmd":["-l"],"ExposedPorts":{"22/tcp":{}}}}`))
	})
	mux.HandleFunc("/images/missing/json", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such image", http.StatusNotFound)
	})
	mux.HandleFunc("/images/foo", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/images/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such image", http.StatusNotFound)
	})
	mux.HandleFunc("/images/locked", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "image is in use", http.StatusInternalServerError)
	})
	mux.HandleFunc("/networks/net1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/networks/ghost", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such network", http.StatusNotFound)
	})

	server := &http.Server{Handler: mux}
	go server.Serve(listener)
	t.Cleanup(func() { server.Close() })
	return socket
}

func testClient(t *testing.T) *Client {
	socket := startEngine(t)
	return NewClient(fakeResolver{uid: "1000"}, func(uid string) string {
		if uid != "1000" {
			t.Errorf("socket path derived from uid %q, want 1000", uid)
		}
		return socket
	})
}

func TestInspectImage(t *testing.T) {
	c := testClient(t)

	info, err := c.InspectImage(context.Background(), "alice", "ubuntu")
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Config.Entrypoint) != 1 || info.Config.Entrypoint[0] != "/bin/bash" {
		t.Errorf("Entrypoint = %v", info.Config.Entrypoint)
	}
	if len(info.Config.Cmd) != 1 || info.Config.Cmd[0] != "-l" {
		t.Errorf("Cmd = %v", info.Config.Cmd)
	}
	if _, ok := info.Config.ExposedPorts["22/tcp"]; !ok {
		t.Errorf("ExposedPorts = %v", info.Config.ExposedPorts)
	}
}

func TestInspectImageError(t *testing.T) {
	c := testClient(t)

	_, err := c.InspectImage(context.Background(), "alice", "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, &api.Error{Kind: api.EngineError}) {
		t.Errorf("error kind = %v, want EngineError", api.KindOf(err))
	}
}

func TestDeleteImage(t *testing.T) {
	c := testClient(t)

	if err := c.DeleteImage(context.Background(), "alice", "foo"); err != nil {
		t.Errorf("DeleteImage(foo) = %v", err)
	}
	// 404 counts as deleted.
	if err := c.DeleteImage(context.Background(), "alice", "gone"); err != nil {
		t.Errorf("DeleteImage(gone) = %v, want success on 404", err)
	}
	if err := c.DeleteImage(context.Background(), "alice", "locked"); err == nil {
		t.Error("expected error on 500")
	}
}

func TestDeleteNetwork(t *testing.T) {
	c := testClient(t)

	if err := c.DeleteNetwork(context.Background(), "alice", "net1"); err != nil {
		t.Errorf("DeleteNetwork(net1) = %v", err)
	}
	if err := c.DeleteNetwork(context.Background(), "alice", "ghost"); err != nil {
		t.Errorf("DeleteNetwork(ghost) = %v, want success on 404", err)
	}
}
