// Package api holds the data model shared between the RPC plane, the
// build pipeline, and the activity probe, along with the error kinds
// that travel back to the Conductor.
package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TargetKind discriminates the two build target variants.
type TargetKind int

const (
	TargetWorkspace TargetKind = iota
	TargetPrebuild
)

// BuildTarget identifies what a repository build produces: an image for a
// named workspace, or a warm prebuild keyed by UUID.
type BuildTarget struct {
	Kind          TargetKind
	WorkspaceName string
	PrebuildID    uuid.UUID
}

// WorkspaceTarget returns a target for a named workspace.
func WorkspaceTarget(name string) BuildTarget {
	return BuildTarget{Kind: TargetWorkspace, WorkspaceName: name}
}

// PrebuildTarget returns a target for a prebuild.
func PrebuildTarget(id uuid.UUID) BuildTarget {
	return BuildTarget{Kind: TargetPrebuild, PrebuildID: id}
}

// ImageTag returns the image tag for the target: the workspace name or the
// prebuild UUID, verbatim.
func (t BuildTarget) ImageTag() string {
	if t.Kind == TargetPrebuild {
		return t.PrebuildID.String()
	}
	return t.WorkspaceName
}

// FolderName returns the on-disk folder component for the target. It is
// identical to the image tag.
func (t BuildTarget) FolderName() string {
	return t.ImageTag()
}

// EnvPair is a single environment entry. Pairs are kept in a slice rather
// than a map so compose manifests preserve their input order.
type EnvPair struct {
	Name  string
	Value string
}

// RepoBuildInfo is the unit of build work dispatched by the Conductor.
// It is immutable for the duration of a build.
type RepoBuildInfo struct {
	Target   BuildTarget
	Osuser   string
	RepoName string
	RepoURL  string
	Branch   string
	CPUs     []int
	Memory   int
	Env      []EnvPair
}

// OutputKind discriminates the two build output variants.
type OutputKind int

const (
	OutputImage OutputKind = iota
	OutputCompose
)

// ComposeService is one entry of a compose build manifest.
type ComposeService struct {
	Name  string
	Image string
	Env   []EnvPair
}

// RepoBuildOutput is the handoff artifact to the Conductor: a single image
// tag, or one entry per compose service in input order.
type RepoBuildOutput struct {
	Kind     OutputKind
	Image    string
	Services []ComposeService
}

// ImageOutput returns a single-image build output.
func ImageOutput(tag string) RepoBuildOutput {
	return RepoBuildOutput{Kind: OutputImage, Image: tag}
}

// ComposeOutput returns a compose build output.
func ComposeOutput(services []ComposeService) RepoBuildOutput {
	return RepoBuildOutput{Kind: OutputCompose, Services: services}
}

// ImageConfig is the subset of the engine's image-inspect payload the
// builder cares about.
type ImageConfig struct {
	Entrypoint   []string            `json:"Entrypoint"`
	Cmd          []string            `json:"Cmd"`
	ExposedPorts map[string]struct{} `json:"ExposedPorts"`
}

// ContainerImageInfo is the engine's image-inspect response.
type ContainerImageInfo struct {
	Config ImageConfig `json:"Config"`
}

// RunningWorkspace is what the Conductor reports for each workspace the
// activity probe should watch.
type RunningWorkspace struct {
	ID             uuid.UUID
	Name           string
	SSHPort        *int
	IDEPort        *int
	LastInactivity *time.Time
}

// BuildRepoFolder returns the cloned repository folder for a build:
// /home/{osuser}/workspaces/{target}/{repo-name}.
func BuildRepoFolder(info *RepoBuildInfo) string {
	return fmt.Sprintf("/home/%s/workspaces/%s/%s", info.Osuser, info.Target.FolderName(), info.RepoName)
}

// WorkspaceFolder returns a workspace's folder: /home/{osuser}/workspaces/{name}.
func WorkspaceFolder(osuser, workspaceName string) string {
	return fmt.Sprintf("/home/%s/workspaces/%s", osuser, workspaceName)
}

// PrebuildFolder returns a prebuild's folder, keyed by the prebuild UUID.
func PrebuildFolder(osuser string, prebuildID uuid.UUID) string {
	return fmt.Sprintf("/home/%s/workspaces/%s", osuser, prebuildID)
}
