// Package devcontainer discovers and parses devcontainer configuration
// inside a cloned repository.
package devcontainer

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/lapdev/wsagent/internal/api"
	"github.com/tidwall/jsonc"
)

// Find locates the devcontainer config for a repository folder.
// Search order:
//  1. .devcontainer/devcontainer.json
//  2. .devcontainer.json
//
// Returns the directory containing the config file (the cwd for relative
// build contexts), the file path, and whether anything was found.
func Find(repoFolder string) (cwd string, path string, ok bool) {
	p := filepath.Join(repoFolder, ".devcontainer", "devcontainer.json")
	if fileExists(p) {
		return filepath.Join(repoFolder, ".devcontainer"), p, true
	}

	p = filepath.Join(repoFolder, ".devcontainer.json")
	if fileExists(p) {
		return repoFolder, p, true
	}

	return "", "", false
}

// Parse reads and parses a devcontainer.json file. The file may contain
// comments and trailing commas.
func Parse(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, api.Internal(err)
	}
	return ParseBytes(data)
}

// ParseBytes parses devcontainer.json content.
func ParseBytes(data []byte) (*Config, error) {
	cleaned := jsonc.ToJSON(data)

	var config Config
	if err := json.Unmarshal(cleaned, &config); err != nil {
		return nil, api.RepositoryInvalidf("devcontainer.json invalid: %v", err)
	}
	return &config, nil
}

// FindAndParse finds and parses the devcontainer config for a repository
// folder. When no config file exists it returns ok=false with an empty
// cwd, a nil config and a nil error.
func FindAndParse(repoFolder string) (cwd string, config *Config, ok bool, err error) {
	cwd, path, ok := Find(repoFolder)
	if !ok {
		return "", nil, false, nil
	}
	config, err = Parse(path)
	if err != nil {
		return "", nil, false, err
	}
	return cwd, config, true, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
