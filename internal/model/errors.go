// Package model defines the domain types shared across the control plane:
// worktrees, port allocations, compose services, pipeline runs, PTY sessions
// and the taxonomy of errors every component returns.
//
// Centralizing these types means the port registry, the compose inspector,
// the lifecycle orchestrator and the HTTP adapter all speak the same
// vocabulary instead of each redeclaring overlapping structs.
package model

import "fmt"

// ErrorKind is the stable error taxonomy described in the error-handling
// design: every error that crosses a component boundary carries one of
// these so callers (CLI exit codes, HTTP status codes) can map on it
// without string-matching messages.
type ErrorKind string

const (
	// KindValidation means an input was rejected by the validator; the
	// caller can fix the input and retry.
	KindValidation ErrorKind = "validation"

	// KindNotFound means a worktree, service, or session did not exist.
	KindNotFound ErrorKind = "not_found"

	// KindConflict means a git merge/rebase conflict, or main-branch
	// staleness blocking a create.
	KindConflict ErrorKind = "conflict"

	// KindExhaustion means PortExhausted: no free port could be found.
	KindExhaustion ErrorKind = "exhaustion"

	// KindExternal means git, the container runtime, or a dependency
	// installer failed; stderr is preserved (sanitized) in Message.
	KindExternal ErrorKind = "external"

	// KindTimeout means a step's deadline was exceeded.
	KindTimeout ErrorKind = "timeout"

	// KindState means an idempotency probe found an incoherent state that
	// automatic repair could not resolve.
	KindState ErrorKind = "state"

	// KindInternal means a programmer error; this should never surface to
	// a user in practice.
	KindInternal ErrorKind = "internal"
)

// Error is the error type returned across component boundaries. It wraps an
// underlying cause (if any) and carries enough structure for the CLI to pick
// an exit code and for the HTTP adapter to pick a status code.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error

	// Step, when set, names the pipeline step that failed (W-Create /
	// W-Delete / Sync steps broadcast this alongside the failure event).
	Step string
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap enables errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with no wrapped cause.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates an Error wrapping an existing error.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithStep returns a copy of the error tagged with the pipeline step name.
func (e *Error) WithStep(step string) *Error {
	cp := *e
	cp.Step = step
	return &cp
}

// CLIExitCode maps an ErrorKind to a process exit code, preserving the
// teacher's convention of stable, documented exit codes for scripting.
func (e *Error) CLIExitCode() int {
	switch e.Kind {
	case KindValidation:
		return 2
	case KindNotFound:
		return 6
	case KindConflict:
		return 10
	case KindExhaustion:
		return 4
	case KindExternal:
		return 5
	case KindTimeout:
		return 11
	case KindState:
		return 12
	default:
		return 1
	}
}

// HTTPStatus maps an ErrorKind to the HTTP status the API adapter returns.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return 400
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindExhaustion:
		return 507
	case KindTimeout:
		return 504
	case KindState:
		return 409
	case KindExternal:
		return 502
	default:
		return 500
	}
}

// AsError extracts a *Error from err, constructing a KindInternal wrapper if
// err is not already one of ours. This lets every boundary (CLI, HTTP) rely
// on a single type switch.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return WrapError(KindInternal, "unexpected error", err)
}
