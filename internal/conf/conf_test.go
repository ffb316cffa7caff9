package conf

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bind != "0.0.0.0" {
		t.Errorf("Bind = %q, want %q", cfg.Bind, "0.0.0.0")
	}
	if cfg.WSPort != 6123 {
		t.Errorf("WSPort = %d, want 6123", cfg.WSPort)
	}
	if cfg.InterWSPort != 6122 {
		t.Errorf("InterWSPort = %d, want 6122", cfg.InterWSPort)
	}
}

func TestParseKebabKeys(t *testing.T) {
	cfg, err := Parse("bind = \"127.0.0.1\"\nws-port = 7001\ninter-ws-port = 7002\n")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bind != "127.0.0.1" {
		t.Errorf("Bind = %q", cfg.Bind)
	}
	if cfg.WSPort != 7001 || cfg.InterWSPort != 7002 {
		t.Errorf("ports = %d/%d, want 7001/7002", cfg.WSPort, cfg.InterWSPort)
	}
}

func TestParseUnknownKeysTolerated(t *testing.T) {
	cfg, err := Parse("ws-port = 7001\nsome-future-key = \"x\"\n")
	if err != nil {
		t.Fatalf("unknown keys must be tolerated: %v", err)
	}
	if cfg.WSPort != 7001 {
		t.Errorf("WSPort = %d, want 7001", cfg.WSPort)
	}
}

func TestParseMalformed(t *testing.T) {
	if _, err := Parse("ws-port = [not a port"); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.conf")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lapdev-ws.conf")
	if err := os.WriteFile(path, []byte("bind = \"10.0.0.1\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bind != "10.0.0.1" {
		t.Errorf("Bind = %q, want %q", cfg.Bind, "10.0.0.1")
	}
	if cfg.WSPort != 6123 {
		t.Errorf("WSPort = %d, want default 6123", cfg.WSPort)
	}
}
