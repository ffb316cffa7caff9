// Package dockerfile validates user Dockerfiles and synthesizes the ones
// the builder generates itself.
package dockerfile

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lapdev/wsagent/internal/api"
	"github.com/moby/buildkit/frontend/dockerfile/instructions"
	"github.com/moby/buildkit/frontend/dockerfile/parser"
)

// Validate parses Dockerfile content and rejects files the engine would
// refuse, so malformed Dockerfiles fail with a parse position instead of
// an opaque build error.
func Validate(content string) error {
	result, err := parser.Parse(strings.NewReader(content))
	if err != nil {
		return api.RepositoryInvalidf("can't parse dockerfile: %v", err)
	}

	stages, _, err := instructions.Parse(result.AST, nil)
	if err != nil {
		return api.RepositoryInvalidf("can't parse dockerfile: %v", err)
	}
	if len(stages) == 0 {
		return api.RepositoryInvalidf("dockerfile has no build stage")
	}
	return nil
}

// Synthesize renders the Dockerfile for a base-image build. The image's
// original entrypoint, cmd and exposed ports are restated so the startup
// contract survives the layers added on top.
func Synthesize(image string, info *api.ContainerImageInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n", image)

	if len(info.Config.Entrypoint) > 0 {
		if enc, err := json.Marshal(info.Config.Entrypoint); err == nil {
			fmt.Fprintf(&b, "ENTRYPOINT %s\n", enc)
		}
	}
	if len(info.Config.Cmd) > 0 {
		if enc, err := json.Marshal(info.Config.Cmd); err == nil {
			fmt.Fprintf(&b, "CMD %s\n", enc)
		}
	}
	if len(info.Config.ExposedPorts) > 0 {
		ports := make([]string, 0, len(info.Config.ExposedPorts))
		for port := range info.Config.ExposedPorts {
			ports = append(ports, port)
		}
		sort.Strings(ports)
		for _, port := range ports {
			fmt.Fprintf(&b, "EXPOSE %s\n", port)
		}
	}
	return b.String()
}

// GuestAgentStage is the fixed suffix appended to every built Dockerfile.
// It installs the guest agent from the sidecar files the builder places in
// the build context, then removes the installer from the image.
const GuestAgentStage = "\nUSER root\n" +
	"COPY lapdev-guest-agent /lapdev-guest-agent\n" +
	"RUN chmod +x /lapdev-guest-agent\n" +
	"COPY install_guest_agent.sh /install_guest_agent.sh\n" +
	"RUN sh /install_guest_agent.sh\n" +
	"RUN rm /install_guest_agent.sh\n"
