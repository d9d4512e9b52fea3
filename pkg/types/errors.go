package types

import "errors"

// Kind is the symbolic failure classification every core operation
// reports. Adapters map kinds to whatever status codes or events their
// wire format uses.
type Kind string

const (
	KindWorkflowLocked Kind = "WORKFLOW_LOCKED"
	KindNoLock         Kind = "NO_LOCK"
	KindUnauthorized   Kind = "UNAUTHORIZED"
	KindNotFound       Kind = "NOT_FOUND"
	KindInvalidState   Kind = "INVALID_STATE"
	KindValidation     Kind = "VALIDATION"
)

// Error is the tagged failure value crossing the core's boundary.
// Holder is populated only for WORKFLOW_LOCKED so callers can surface
// who currently owns the workflow.
type Error struct {
	Kind    Kind
	Message string
	Holder  *Lock
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on kind so errors.Is works against the sentinels below
// regardless of message or holder.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrWorkflowLocked = &Error{Kind: KindWorkflowLocked, Message: "workflow is locked by another user"}
	ErrNoLock         = &Error{Kind: KindNoLock, Message: "no lock held on workflow"}
	ErrUnauthorized   = &Error{Kind: KindUnauthorized, Message: "caller is not authorized for this operation"}
	ErrNotFound       = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidState   = &Error{Kind: KindInvalidState, Message: "operation not valid in current state"}
	ErrValidation     = &Error{Kind: KindValidation, Message: "invalid input"}
)

// Locked builds a WORKFLOW_LOCKED failure carrying the current holder.
func Locked(holder *Lock) *Error {
	return &Error{Kind: KindWorkflowLocked, Message: "workflow is locked by another user", Holder: holder}
}

// NotFound builds a NOT_FOUND failure with a specific message.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// InvalidState builds an INVALID_STATE failure with a specific message.
func InvalidState(msg string) *Error {
	return &Error{Kind: KindInvalidState, Message: msg}
}

// Unauthorized builds an UNAUTHORIZED failure with a specific message.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// Validation builds a VALIDATION failure with a specific message.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// KindOf extracts the symbolic kind from an error chain. The second
// return is false for errors that did not originate in the core.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
