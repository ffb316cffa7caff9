// Package conf loads the agent configuration file.
package conf

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultPath is the config file read when -c is not given.
const DefaultPath = "/etc/lapdev-ws.conf"

// Config is the agent configuration. Keys are kebab-case; unknown keys in
// the file are tolerated.
type Config struct {
	Bind        string `toml:"bind"`
	WSPort      int    `toml:"ws-port"`
	InterWSPort int    `toml:"inter-ws-port"`
}

// Defaults applied for keys absent from the file.
const (
	DefaultBind        = "0.0.0.0"
	DefaultWSPort      = 6123
	DefaultInterWSPort = 6122
)

// Load reads and decodes the config file at path, applying defaults for
// missing keys.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file %s: %w", path, err)
	}
	return Parse(string(data))
}

// Parse decodes config file content, applying defaults for missing keys.
func Parse(content string) (*Config, error) {
	cfg := Config{
		Bind:        DefaultBind,
		WSPort:      DefaultWSPort,
		InterWSPort: DefaultInterWSPort,
	}
	if _, err := toml.Decode(content, &cfg); err != nil {
		return nil, fmt.Errorf("wrong config file format: %w", err)
	}
	return &cfg, nil
}
