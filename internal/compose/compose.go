// Package compose parses compose documents for per-service image builds.
//
// Parsing goes through yaml.Node rather than a plain map so the service
// manifest keeps the document's insertion order, which is part of the
// build-output contract.
package compose

import (
	"fmt"
	"os"
	"strings"

	"github.com/lapdev/wsagent/internal/api"
	"gopkg.in/yaml.v3"
)

// Document is a parsed compose file.
type Document struct {
	// Services is the service list in document order. Null services are
	// dropped during parsing.
	Services []NamedService
}

// NamedService pairs a service name with its definition.
type NamedService struct {
	Name    string
	Service Service
}

// Service is a single compose service definition. A service is buildable
// when it has either a build section or an image reference.
type Service struct {
	Build       *BuildStep `yaml:"build"`
	Image       string     `yaml:"image"`
	Environment EnvSource  `yaml:"environment"`
}

// BuildStep is a compose build section: either a bare context path or an
// advanced mapping with context and dockerfile.
type BuildStep struct {
	Context    string
	Dockerfile string
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (b *BuildStep) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*b = BuildStep{Context: node.Value}
		return nil
	}
	var adv struct {
		Context    string `yaml:"context"`
		Dockerfile string `yaml:"dockerfile"`
	}
	if err := node.Decode(&adv); err != nil {
		return fmt.Errorf("build must be a string or mapping: %w", err)
	}
	*b = BuildStep{Context: adv.Context, Dockerfile: adv.Dockerfile}
	return nil
}

// EnvSource is a compose environment section: a list of KEY=VALUE strings
// or a mapping of key to optional scalar. Entries keep document order.
type EnvSource struct {
	pairs []api.EnvPair
}

// Pairs returns the parsed environment entries in document order.
func (e EnvSource) Pairs() []api.EnvPair { return e.pairs }

// UnmarshalYAML parses both environment forms.
//
// List form: each entry splits on the first '='; "A=" yields ("A", ""),
// "A=B=C" yields ("A", "B=C"), entries without '=' are dropped.
// Mapping form: scalar values are stringified, null values are dropped.
func (e *EnvSource) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		for _, item := range node.Content {
			name, value, ok := strings.Cut(item.Value, "=")
			if !ok {
				continue
			}
			e.pairs = append(e.pairs, api.EnvPair{Name: name, Value: value})
		}
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			if val.Tag == "!!null" {
				continue
			}
			e.pairs = append(e.pairs, api.EnvPair{Name: key.Value, Value: val.Value})
		}
		return nil
	default:
		return fmt.Errorf("environment must be a list or mapping")
	}
}

// ParseFile reads and parses a compose file. Read failures and malformed
// documents surface as RepositoryInvalid.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, api.RepositoryInvalidf("can't read compose file: %v", err)
	}
	return Parse(data)
}

// Parse parses compose document content.
func Parse(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, api.RepositoryInvalidf("can't parse compose file: %v", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return &Document{}, nil
	}

	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, api.RepositoryInvalidf("can't parse compose file: top level must be a mapping")
	}

	doc := &Document{}
	for i := 0; i+1 < len(top.Content); i += 2 {
		if top.Content[i].Value != "services" {
			continue
		}
		services := top.Content[i+1]
		if services.Kind != yaml.MappingNode {
			return nil, api.RepositoryInvalidf("can't parse compose file: services must be a mapping")
		}
		for j := 0; j+1 < len(services.Content); j += 2 {
			name, def := services.Content[j], services.Content[j+1]
			if def.Tag == "!!null" {
				continue
			}
			var svc Service
			if err := def.Decode(&svc); err != nil {
				return nil, api.RepositoryInvalidf("can't parse compose file: service %s: %v", name.Value, err)
			}
			doc.Services = append(doc.Services, NamedService{Name: name.Value, Service: svc})
		}
	}
	return doc, nil
}
