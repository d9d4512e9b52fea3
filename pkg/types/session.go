package types

import "time"

// Session tracks a connected user and the socket it arrived on.
// One session per user; re-identification overwrites the previous one.
type Session struct {
	UserID       string         `json:"userId"`
	SocketID     string         `json:"socketId"`
	UserName     string         `json:"userName"`
	Email        string         `json:"email,omitempty"`
	WorkflowID   string         `json:"workflowId,omitempty"`
	ConnectedAt  time.Time      `json:"connectedAt"`
	LastActivity time.Time      `json:"lastActivity"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Active reports whether the session has produced activity within the
// inactivity timeout. Derived at read time, never stored.
func (s *Session) Active(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivity) <= timeout
}
