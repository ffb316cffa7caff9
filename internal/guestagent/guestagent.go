// Package guestagent carries the compile-time artifacts injected into
// every built image: the guest-agent executable and its install script.
// Both are read-only at runtime; the release pipeline replaces the
// in-tree binary with the real one before building.
package guestagent

import _ "embed"

//go:embed install_guest_agent.sh
var installScript []byte

//go:embed lapdev-guest-agent
var binary []byte

// Script returns the install script content.
func Script() []byte { return installScript }

// Binary returns the guest-agent executable content.
func Binary() []byte { return binary }

// Names of the sidecar files materialized into a build context, and the
// paths the install stage bakes into the image.
const (
	ScriptName  = "install_guest_agent.sh"
	BinaryName  = "lapdev-guest-agent"
	InstallPath = "/lapdev-guest-agent"
)
