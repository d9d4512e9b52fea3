package types

import "time"

// status of an edit request
// pending is the only non-terminal state; once a request leaves pending
// it never changes again
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusDenied    RequestStatus = "denied"
	StatusExpired   RequestStatus = "expired"
	StatusCancelled RequestStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s RequestStatus) Terminal() bool {
	return s != StatusPending
}

// EditRequest asks the current lock holder of a workflow to yield.
// The requester waits; the target approves, denies, or lets it expire.
type EditRequest struct {
	ID              string        `json:"id"`
	WorkflowID      string        `json:"workflowId"`
	RequesterID     string        `json:"requesterId"`
	TargetUserID    string        `json:"targetUserId"`
	Message         string        `json:"message,omitempty"`
	Status          RequestStatus `json:"status"`
	CreatedAt       time.Time     `json:"createdAt"`
	ExpiresAt       time.Time     `json:"expiresAt"`
	RespondedAt     *time.Time    `json:"respondedAt,omitempty"`
	Approved        *bool         `json:"approved,omitempty"`
	ResponseMessage string        `json:"responseMessage,omitempty"`
}

// Expired reports whether the request is past its deadline at the given
// instant. Only meaningful while the request is still pending.
func (r *EditRequest) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
