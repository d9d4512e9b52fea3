package presence

import (
	"sync"
	"time"

	"flowlock/pkg/clock"
	"flowlock/pkg/types"
)

// DefaultInactivity is how long a session may stay quiet before an
// inactivity sweep evicts it.
const DefaultInactivity = 10 * time.Minute

// Info carries the identification payload for a registering user.
type Info struct {
	SocketID   string
	UserName   string
	Email      string
	WorkflowID string
	Metadata   map[string]any
}

// Stats is a point-in-time view of the session table.
type Stats struct {
	Sessions int
	Active   int
}

// Table manages the userID -> session mapping.
// "active" is derived from LastActivity on every read, never stored, so
// it cannot go stale between sweeps.
type Table struct {
	mu         sync.Mutex
	sessions   map[string]*types.Session
	clk        clock.Clock
	inactivity time.Duration
}

// NewTable creates an empty presence table with the default 10 minute
// inactivity timeout.
func NewTable(clk clock.Clock) *Table {
	return &Table{
		sessions:   make(map[string]*types.Session),
		clk:        clk,
		inactivity: DefaultInactivity,
	}
}

// Register upserts the user's session. Re-registration overwrites the
// previous session entirely and resets both timestamps to now.
func (t *Table) Register(userID string, info Info) types.Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()
	md := make(map[string]any, len(info.Metadata))
	for k, v := range info.Metadata {
		md[k] = v
	}
	s := &types.Session{
		UserID:       userID,
		SocketID:     info.SocketID,
		UserName:     info.UserName,
		Email:        info.Email,
		WorkflowID:   info.WorkflowID,
		ConnectedAt:  now,
		LastActivity: now,
		Metadata:     md,
	}
	t.sessions[userID] = s
	return *s
}

// Touch bumps the user's last-activity timestamp. Returns false if the
// user has no session.
func (t *Table) Touch(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[userID]
	if !ok {
		return false
	}
	s.LastActivity = t.clk.Now()
	return true
}

// Get returns the stored session regardless of activity. Callers that
// care about liveness use All or check Active themselves.
func (t *Table) Get(userID string) (types.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[userID]
	if !ok {
		return types.Session{}, false
	}
	return *s, true
}

// All returns every active session. Inactive sessions are filtered, not
// purged; eviction is SweepInactive's job.
func (t *Table) All() []types.Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()
	out := make([]types.Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		if s.Active(now, t.inactivity) {
			out = append(out, *s)
		}
	}
	return out
}

// ForWorkflow returns the active sessions currently on the given
// workflow.
func (t *Table) ForWorkflow(workflowID string) []types.Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()
	var out []types.Session
	for _, s := range t.sessions {
		if s.WorkflowID == workflowID && s.Active(now, t.inactivity) {
			out = append(out, *s)
		}
	}
	return out
}

// SetWorkflow moves the user onto a workflow (empty string leaves it).
// Counts as activity. Returns false if the user has no session.
func (t *Table) SetWorkflow(userID, workflowID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[userID]
	if !ok {
		return false
	}
	s.WorkflowID = workflowID
	s.LastActivity = t.clk.Now()
	return true
}

// MergeMetadata shallow-merges md into the session's metadata. Counts as
// activity. Returns false if the user has no session.
func (t *Table) MergeMetadata(userID string, md map[string]any) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[userID]
	if !ok {
		return false
	}
	for k, v := range md {
		s.Metadata[k] = v
	}
	s.LastActivity = t.clk.Now()
	return true
}

// Remove deletes the user's session. Returns false if absent.
func (t *Table) Remove(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.sessions[userID]; !ok {
		return false
	}
	delete(t.sessions, userID)
	return true
}

// BySocket finds the session attached to a socket. Linear scan; the
// table is small and the lookup only happens on socket-level events.
func (t *Table) BySocket(socketID string) (types.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.sessions {
		if s.SocketID == socketID {
			return *s, true
		}
	}
	return types.Session{}, false
}

// SweepInactive evicts every session past the inactivity timeout and
// returns the affected user ids.
func (t *Table) SweepInactive() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()
	var evicted []string
	for id, s := range t.sessions {
		if !s.Active(now, t.inactivity) {
			delete(t.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Stats counts stored and active sessions. Pure read; nothing is
// evicted here.
func (t *Table) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()
	st := Stats{Sessions: len(t.sessions)}
	for _, s := range t.sessions {
		if s.Active(now, t.inactivity) {
			st.Active++
		}
	}
	return st
}
