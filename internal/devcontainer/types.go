package devcontainer

import (
	"encoding/json"
	"fmt"
)

// Config is the parsed devcontainer.json, limited to the fields the agent
// acts on. Unknown fields are ignored.
type Config struct {
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`

	// Dockerfile-based builds. Build takes priority over the legacy
	// top-level fields.
	Build      *BuildOptions `json:"build,omitempty"`
	Dockerfile string        `json:"dockerfile,omitempty"`
	Context    string        `json:"context,omitempty"`

	// Compose-based projects.
	DockerComposeFile StrArray `json:"dockerComposeFile,omitempty"`
	Service           string   `json:"service,omitempty"`
	RunServices       []string `json:"runServices,omitempty"`

	// Lifecycle hooks, run in this order after a build.
	OnCreateCommand      *LifeCycleCmd `json:"onCreateCommand,omitempty"`
	UpdateContentCommand *LifeCycleCmd `json:"updateContentCommand,omitempty"`
	PostCreateCommand    *LifeCycleCmd `json:"postCreateCommand,omitempty"`
}

// BuildOptions holds Dockerfile build configuration.
type BuildOptions struct {
	Dockerfile string             `json:"dockerfile,omitempty"`
	Context    string             `json:"context,omitempty"`
	Args       map[string]*string `json:"args,omitempty"`
}

// Cmd is a single runnable command: a shell string or an argv list.
type Cmd struct {
	Simple string
	Args   []string
}

// Shell returns the command as a single shell string. Argv lists are
// joined by single spaces; that join is part of the lifecycle contract.
func (c Cmd) Shell() string {
	if c.Simple != "" {
		return c.Simple
	}
	out := ""
	for i, a := range c.Args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

// UnmarshalJSON accepts a string or an array of strings.
func (c *Cmd) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Cmd{Simple: s}
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("command must be a string or array of strings: %w", err)
	}
	*c = Cmd{Args: arr}
	return nil
}

// CmdForm discriminates the three lifecycle command forms.
type CmdForm int

const (
	// FormSimple is a single shell string.
	FormSimple CmdForm = iota
	// FormArgs is an ordered argv list.
	FormArgs
	// FormObject maps compose service names to commands.
	FormObject
)

// LifeCycleCmd is a devcontainer lifecycle command. The three JSON forms
// stay distinct because dispatch differs per form: object commands route
// to named compose services, the other two run against the main image.
type LifeCycleCmd struct {
	Form   CmdForm
	Cmd    Cmd
	Object map[string]Cmd
}

// UnmarshalJSON accepts a string, an array of strings, or an object
// mapping service names to either of the previous two.
func (l *LifeCycleCmd) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = LifeCycleCmd{Form: FormSimple, Cmd: Cmd{Simple: s}}
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = LifeCycleCmd{Form: FormArgs, Cmd: Cmd{Args: arr}}
		return nil
	}
	var obj map[string]Cmd
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("lifecycle command must be a string, array, or object: %w", err)
	}
	*l = LifeCycleCmd{Form: FormObject, Object: obj}
	return nil
}

// StrArray accepts either a single string or an array of strings in JSON.
type StrArray []string

// UnmarshalJSON implements json.Unmarshaler.
func (sa *StrArray) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*sa = StrArray{s}
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("expected string or []string: %w", err)
	}
	*sa = arr
	return nil
}
