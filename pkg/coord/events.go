package coord

import "flowlock/pkg/types"

// EventType names a coordination state change the adapter may want to
// fan out to connected clients.
type EventType string

const (
	EventLockAcquired  EventType = "lock_acquired"
	EventLockRefreshed EventType = "lock_refreshed"
	EventLockTakeover  EventType = "lock_takeover"
	EventLockReleased  EventType = "lock_released"
	EventLockExpired   EventType = "lock_expired"

	EventUserJoined EventType = "user_joined"
	EventUserLeft   EventType = "user_left"

	EventRequestCreated   EventType = "edit_request_created"
	EventRequestApproved  EventType = "edit_request_approved"
	EventRequestDenied    EventType = "edit_request_denied"
	EventRequestCancelled EventType = "edit_request_cancelled"
	EventRequestExpired   EventType = "edit_request_expired"
)

// Event describes one state change. TargetID addresses a specific user
// (the ousted holder on a takeover, the requester on a response); when
// empty the event concerns everyone watching the workflow.
type Event struct {
	Type       EventType          `json:"type"`
	WorkflowID string             `json:"workflowId,omitempty"`
	UserID     string             `json:"userId,omitempty"`
	TargetID   string             `json:"targetId,omitempty"`
	Lock       *types.Lock        `json:"lock,omitempty"`
	Request    *types.EditRequest `json:"request,omitempty"`
}
