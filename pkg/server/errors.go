package server

import (
	"net/http"

	"flowlock/pkg/types"
)

var (
	errUnknownType = types.Validation("unknown message type")
	errBadPayload  = types.Validation("malformed payload")
)

// converts core error kinds to HTTP status codes
func httpStatus(err error) int {
	kind, ok := types.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch kind {
	case types.KindValidation:
		return http.StatusBadRequest

	case types.KindUnauthorized:
		return http.StatusForbidden

	case types.KindNotFound, types.KindNoLock:
		return http.StatusNotFound

	case types.KindWorkflowLocked, types.KindInvalidState:
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

// wire shape of a failure sent to socket clients
type errorPayload struct {
	Kind    string      `json:"kind"`
	Message string      `json:"message"`
	Holder  *types.Lock `json:"holder,omitempty"`
}

// converts a core error to its wire shape, preserving the holder info
// that WORKFLOW_LOCKED failures carry
func errorBody(err error) errorPayload {
	p := errorPayload{Kind: "INTERNAL", Message: err.Error()}
	if e, ok := err.(*types.Error); ok {
		p.Kind = string(e.Kind)
		p.Holder = e.Holder
	}
	return p
}
