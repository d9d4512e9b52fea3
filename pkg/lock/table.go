package lock

import (
	"sync"
	"time"

	"flowlock/pkg/clock"
	"flowlock/pkg/types"
)

// DefaultTTL is how long a lock stays live without a refresh.
const DefaultTTL = 5 * time.Minute

// Reason explains why a lock request succeeded.
type Reason string

const (
	ReasonAcquired  Reason = "acquired"
	ReasonRefreshed Reason = "refreshed"
	ReasonTakeover  Reason = "forcibly acquired"
)

// Grant is the result of a successful lock request. Previous is set only
// on a forced takeover so the caller can notify the ousted holder.
type Grant struct {
	Lock     types.Lock
	Reason   Reason
	Previous *types.Lock
}

// Released identifies a lock removed by a sweep or a bulk release.
type Released struct {
	WorkflowID string
	UserID     string
}

// Stats is a point-in-time count of live locks.
type Stats struct {
	Locks int
}

// Table manages the workflow -> lock mapping.
// critical :
// - at most one live lock per workflow
// - an expired lock is treated as absent on every read and purged lazily
// - only the owner may release; force overrides ownership on acquire
type Table struct {
	mu    sync.Mutex
	locks map[string]*types.Lock
	clk   clock.Clock
	ttl   time.Duration
}

// NewTable creates an empty lock table with the default 5 minute TTL.
func NewTable(clk clock.Clock) *Table {
	return &Table{
		locks: make(map[string]*types.Lock),
		clk:   clk,
		ttl:   DefaultTTL,
	}
}

// purgeLocked drops the workflow's lock if it has expired and returns the
// live lock, if any. Callers must hold t.mu.
func (t *Table) purgeLocked(workflowID string, now time.Time) (*types.Lock, bool) {
	cur, ok := t.locks[workflowID]
	if !ok {
		return nil, false
	}
	if cur.Expired(now) {
		delete(t.locks, workflowID)
		return nil, false
	}
	return cur, true
}

// Request attempts to acquire the workflow's lock for userID.
//
// Absent (or expired) lock: a fresh lock is created. Held by the same
// user: the lock is refreshed in place. Held by another user: without
// force the request fails with WORKFLOW_LOCKED carrying the holder's
// lock; with force the lock is replaced outright. Forced takeover does
// not notify the ousted holder; that is the caller's job, via
// Grant.Previous.
func (t *Table) Request(workflowID, userID string, force bool) (Grant, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()
	cur, held := t.purgeLocked(workflowID, now)

	if held {
		if cur.UserID == userID {
			//same owner, refresh in place (idempotent)
			cur.AcquiredAt = now
			cur.ExpiresAt = now.Add(t.ttl)
			return Grant{Lock: *cur, Reason: ReasonRefreshed}, nil
		}
		if !force {
			holder := *cur
			return Grant{}, types.Locked(&holder)
		}
		//forced takeover replaces the lock rather than mutating it
		prev := *cur
		lk := &types.Lock{
			WorkflowID: workflowID,
			UserID:     userID,
			AcquiredAt: now,
			ExpiresAt:  now.Add(t.ttl),
		}
		t.locks[workflowID] = lk
		return Grant{Lock: *lk, Reason: ReasonTakeover, Previous: &prev}, nil
	}

	lk := &types.Lock{
		WorkflowID: workflowID,
		UserID:     userID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(t.ttl),
	}
	t.locks[workflowID] = lk
	return Grant{Lock: *lk, Reason: ReasonAcquired}, nil
}

// Release removes the workflow's lock if userID owns it. Fails with
// NO_LOCK when absent and UNAUTHORIZED when owned by somebody else.
func (t *Table) Release(workflowID, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, held := t.purgeLocked(workflowID, t.clk.Now())
	if !held {
		return types.ErrNoLock
	}
	if cur.UserID != userID {
		return types.ErrUnauthorized
	}
	delete(t.locks, workflowID)
	return nil
}

// Get returns the workflow's live lock. An expired entry is purged as a
// side effect and reported as absent.
func (t *Table) Get(workflowID string) (types.Lock, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, held := t.purgeLocked(workflowID, t.clk.Now())
	if !held {
		return types.Lock{}, false
	}
	return *cur, true
}

// All returns every live lock, purging expired entries along the way.
func (t *Table) All() []types.Lock {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()
	out := make([]types.Lock, 0, len(t.locks))
	for id, lk := range t.locks {
		if lk.Expired(now) {
			delete(t.locks, id)
			continue
		}
		out = append(out, *lk)
	}
	return out
}

// ForUser returns userID's live locks, purging expired entries along
// the way.
func (t *Table) ForUser(userID string) []types.Lock {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()
	var out []types.Lock
	for id, lk := range t.locks {
		if lk.Expired(now) {
			delete(t.locks, id)
			continue
		}
		if lk.UserID == userID {
			out = append(out, *lk)
		}
	}
	return out
}

// SweepExpired removes every expired lock and returns what was dropped.
// Meant for the coordinator's periodic maintenance pass.
func (t *Table) SweepExpired() []Released {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()
	var dropped []Released
	for id, lk := range t.locks {
		if lk.Expired(now) {
			delete(t.locks, id)
			dropped = append(dropped, Released{WorkflowID: id, UserID: lk.UserID})
		}
	}
	return dropped
}

// ReleaseAllForUser unconditionally removes every lock userID owns,
// expired or not. Used when the user's session goes away.
func (t *Table) ReleaseAllForUser(userID string) []Released {
	t.mu.Lock()
	defer t.mu.Unlock()

	var dropped []Released
	for id, lk := range t.locks {
		if lk.UserID == userID {
			delete(t.locks, id)
			dropped = append(dropped, Released{WorkflowID: id, UserID: userID})
		}
	}
	return dropped
}

// Stats counts live locks, purging expired entries as a side effect so
// the reported number never includes stale rows.
func (t *Table) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()
	for id, lk := range t.locks {
		if lk.Expired(now) {
			delete(t.locks, id)
		}
	}
	return Stats{Locks: len(t.locks)}
}
