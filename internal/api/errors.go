package api

import (
	"errors"
	"fmt"
)

// ErrorKind classifies errors that cross the RPC boundary.
type ErrorKind int

const (
	// RepositoryInvalid covers anything wrong with the user's repository:
	// missing or malformed devcontainer/compose files, failed image builds.
	// Surfaced to end users as-is.
	RepositoryInvalid ErrorKind = iota
	// EngineError is a non-success response from the container engine API.
	EngineError
	// UserProvisioningFailed means useradd or loginctl failed.
	UserProvisioningFailed
	// InternalError covers filesystem I/O, process spawn, and parse
	// failures outside repository files.
	InternalError
	// InvalidLifecycle is an object-form lifecycle command on a
	// non-compose build. Converted to RepositoryInvalid at the service
	// boundary.
	InvalidLifecycle
)

// String returns the wire prefix for the kind.
func (k ErrorKind) String() string {
	switch k {
	case RepositoryInvalid:
		return "repository invalid"
	case EngineError:
		return "engine error"
	case UserProvisioningFailed:
		return "user provisioning failed"
	case InvalidLifecycle:
		return "invalid lifecycle command"
	default:
		return "internal error"
	}
}

// Error is a classified agent error. The string form is what travels over
// the RPC plane.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Kind.String() + ": " + e.Msg
	}
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two Errors by kind so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// RepositoryInvalidf builds a RepositoryInvalid error.
func RepositoryInvalidf(format string, args ...any) error {
	return &Error{Kind: RepositoryInvalid, Msg: fmt.Sprintf(format, args...)}
}

// EngineErrorf builds an EngineError from an engine response body.
func EngineErrorf(format string, args ...any) error {
	return &Error{Kind: EngineError, Msg: fmt.Sprintf(format, args...)}
}

// ProvisioningFailedf builds a UserProvisioningFailed error.
func ProvisioningFailedf(format string, args ...any) error {
	return &Error{Kind: UserProvisioningFailed, Msg: fmt.Sprintf(format, args...)}
}

// Internal wraps err as an InternalError, passing nil through.
func Internal(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: InternalError, Err: err}
}

// InvalidLifecycleErr builds an InvalidLifecycle error.
func InvalidLifecycleErr(msg string) error {
	return &Error{Kind: InvalidLifecycle, Msg: msg}
}

// KindOf returns the kind of err, defaulting to InternalError for
// unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}
