package request

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"flowlock/pkg/clock"
	"flowlock/pkg/types"
)

const (
	// DefaultTTL is how long a pending request waits for a response.
	DefaultTTL = 5 * time.Minute
	// DefaultRetention is how long finished requests are kept before the
	// retention sweep deletes them.
	DefaultRetention = time.Hour
)

// Stats is a point-in-time view of the ledger.
type Stats struct {
	Requests int
	Pending  int
}

// Ledger manages the requestID -> edit request mapping.
// critical :
//   - pending is the only mutable state; every other state is terminal
//   - a pending request past its expiry flips to expired exactly once,
//     either on a failed Respond or in SweepExpired
//   - retention pruning never touches pending requests
//
// The ledger does not validate lock ownership or presence; the caller
// confirms the target actually holds the workflow's lock before
// creating a request here.
type Ledger struct {
	mu       sync.Mutex
	requests map[string]*types.EditRequest
	clk      clock.Clock
	ttl      time.Duration
}

// NewLedger creates an empty ledger with the default 5 minute request
// TTL.
func NewLedger(clk clock.Clock) *Ledger {
	return &Ledger{
		requests: make(map[string]*types.EditRequest),
		clk:      clk,
		ttl:      DefaultTTL,
	}
}

// Create records a new pending request from requesterID asking
// targetUserID to yield the workflow's lock. Always succeeds.
func (l *Ledger) Create(workflowID, requesterID, targetUserID, message string) types.EditRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	r := &types.EditRequest{
		ID:           uuid.NewString(),
		WorkflowID:   workflowID,
		RequesterID:  requesterID,
		TargetUserID: targetUserID,
		Message:      message,
		Status:       types.StatusPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(l.ttl),
	}
	l.requests[r.ID] = r
	return *r
}

// Respond settles a pending request as approved or denied.
//
// Fails with NOT_FOUND for unknown ids and INVALID_STATE when the
// request is no longer pending. A pending request found past its expiry
// also fails, and as the one exception to reads-don't-mutate it is
// flipped to expired on the spot.
func (l *Ledger) Respond(id string, approved bool, message string) (types.EditRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.requests[id]
	if !ok {
		return types.EditRequest{}, types.NotFound("edit request not found")
	}
	if r.Status != types.StatusPending {
		return types.EditRequest{}, types.InvalidState("request already responded to")
	}
	now := l.clk.Now()
	if r.Expired(now) {
		r.Status = types.StatusExpired
		return types.EditRequest{}, types.InvalidState("request has expired")
	}

	if approved {
		r.Status = types.StatusApproved
	} else {
		r.Status = types.StatusDenied
	}
	r.Approved = &approved
	r.RespondedAt = &now
	r.ResponseMessage = message
	return *r, nil
}

// Cancel withdraws a pending request. Returns false without error when
// the id is unknown. Fails with UNAUTHORIZED when userID is not the
// requester and INVALID_STATE when the request is no longer pending.
func (l *Ledger) Cancel(id, userID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.requests[id]
	if !ok {
		return false, nil
	}
	if r.RequesterID != userID {
		return false, types.Unauthorized("only the requester can cancel a request")
	}
	if r.Status != types.StatusPending {
		return false, types.InvalidState("request is no longer pending")
	}
	now := l.clk.Now()
	r.Status = types.StatusCancelled
	r.RespondedAt = &now
	return true, nil
}

// Get returns the request by id, whatever its state.
func (l *Ledger) Get(id string) (types.EditRequest, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.requests[id]
	if !ok {
		return types.EditRequest{}, false
	}
	return *r, true
}

// stale reports a pending request already past expiry; such rows are
// hidden from list reads without being mutated
func (l *Ledger) stale(r *types.EditRequest, now time.Time) bool {
	return r.Status == types.StatusPending && r.Expired(now)
}

// ForTarget returns the pending, unexpired requests awaiting the given
// user's response.
func (l *Ledger) ForTarget(userID string) []types.EditRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	var out []types.EditRequest
	for _, r := range l.requests {
		if r.TargetUserID == userID && r.Status == types.StatusPending && !r.Expired(now) {
			out = append(out, *r)
		}
	}
	return out
}

// ByRequester returns the requests the given user created, excluding
// ones that are pending but already past expiry.
func (l *Ledger) ByRequester(userID string) []types.EditRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	var out []types.EditRequest
	for _, r := range l.requests {
		if r.RequesterID == userID && !l.stale(r, now) {
			out = append(out, *r)
		}
	}
	return out
}

// ForWorkflow returns the workflow's requests, excluding ones that are
// pending but already past expiry.
func (l *Ledger) ForWorkflow(workflowID string) []types.EditRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	var out []types.EditRequest
	for _, r := range l.requests {
		if r.WorkflowID == workflowID && !l.stale(r, now) {
			out = append(out, *r)
		}
	}
	return out
}

// SweepExpired flips every pending request past its expiry to expired
// and returns the affected ids. Settled requests are untouched
// regardless of age.
func (l *Ledger) SweepExpired() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	var expired []string
	for id, r := range l.requests {
		if r.Status == types.StatusPending && r.Expired(now) {
			r.Status = types.StatusExpired
			expired = append(expired, id)
		}
	}
	return expired
}

// PruneOld deletes settled requests created more than maxAge ago and
// returns how many were removed. Pending requests are never deleted by
// age alone; the expiry sweep has to move them out of pending first.
func (l *Ledger) PruneOld(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.clk.Now().Add(-maxAge)
	pruned := 0
	for id, r := range l.requests {
		if r.Status.Terminal() && r.CreatedAt.Before(cutoff) {
			delete(l.requests, id)
			pruned++
		}
	}
	return pruned
}

// Stats counts stored and pending requests. Pure read.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Stats{Requests: len(l.requests)}
	for _, r := range l.requests {
		if r.Status == types.StatusPending {
			st.Pending++
		}
	}
	return st
}
