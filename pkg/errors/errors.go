package errors

import (
	"errors"
	"fmt"
)

// Kind classifies service errors so callers can decide between aborting the
// whole procedure and continuing with the next step.
type Kind int

const (
	// KindPrecondition marks failures detected before any mutation was
	// attempted (missing file, unreachable controller, unknown connection).
	// They are fatal and single-attempt.
	KindPrecondition Kind = iota
	// KindQuery marks a failed read against the broker that gates further
	// work. Fatal: tearing down objects with undiscovered active tasks is
	// never acceptable.
	KindQuery
	// KindAction marks a failed mutating call. Recovered locally: logged,
	// audit-closed as failed, and the procedure moves on.
	KindAction
)

// Error is the typed error returned by brokeradm services.
type Error struct {
	kind    Kind
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() Kind { return e.kind }

func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...), cause: cause}
}

// NewPackageNotFoundError reports a missing package file before launch.
func NewPackageNotFoundError(path string) *Error {
	return newError(KindPrecondition, nil, "package file %q does not exist", path)
}

// NewUnknownExitCodeError reports an installer exit code outside the known table.
func NewUnknownExitCodeError(code int) *Error {
	return newError(KindPrecondition, nil, "installer returned unrecognized exit code %d", code)
}

// NewInstallFailedError reports a known-fatal installer exit code.
func NewInstallFailedError(code int, reason string) *Error {
	return newError(KindPrecondition, nil, "installer failed with exit code %d: %s", code, reason)
}

// NewControllerUnreachableError reports a host that did not answer the
// reachability probe.
func NewControllerUnreachableError(host string, cause error) *Error {
	return newError(KindPrecondition, cause, "host %q is not reachable", host)
}

// NewNotAControllerError reports a host whose health query did not identify
// it as a management controller.
func NewNotAControllerError(host string) *Error {
	return newError(KindPrecondition, nil, "host %q is not a management controller", host)
}

// NewAddressResolutionError reports a failed reverse-DNS lookup.
func NewAddressResolutionError(addr string, cause error) *Error {
	return newError(KindPrecondition, cause, "failed to resolve address %q", addr)
}

// NewConnectionNotFoundError reports a hosting-connection name absent from
// the enumerated set.
func NewConnectionNotFoundError(name string) *Error {
	return newError(KindPrecondition, nil, "hosting connection %q does not exist on this controller", name)
}

// NewTaskQueryError reports a failed active-task query. The drain loop aborts
// on it before any teardown is attempted.
func NewTaskQueryError(unitID string, cause error) *Error {
	return newError(KindQuery, cause, "failed to query active task for resource unit %q", unitID)
}

// NewActionError reports a failed mutating broker call.
func NewActionError(action, target string, cause error) *Error {
	return newError(KindAction, cause, "%s failed for %q", action, target)
}

// NewUnauthorizedError reports a rejected credential.
func NewUnauthorizedError() *Error {
	return newError(KindPrecondition, nil, "controller rejected the supplied credentials")
}

func isKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kind == kind
	}
	return false
}

// IsPreconditionError reports whether err is a fatal precondition failure.
func IsPreconditionError(err error) bool { return isKind(err, KindPrecondition) }

// IsQueryError reports whether err is a fatal gating-query failure.
func IsQueryError(err error) bool { return isKind(err, KindQuery) }

// IsActionError reports whether err is a recoverable per-action failure.
func IsActionError(err error) bool { return isKind(err, KindAction) }
