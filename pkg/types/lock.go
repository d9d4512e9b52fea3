package types

import "time"

// Lock grants a single user exclusive editing access to a workflow.
// At most one lock exists per workflow; a holder that stops refreshing
// loses the lock once ExpiresAt passes.
type Lock struct {
	WorkflowID string    `json:"workflowId"`
	UserID     string    `json:"userId"`
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Expired reports whether the lock is past its expiry at the given instant.
// A lock is live while now <= ExpiresAt.
func (l *Lock) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}
