package coord

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"flowlock/pkg/lock"
	"flowlock/pkg/metrics"
	"flowlock/pkg/presence"
	"flowlock/pkg/request"
	"flowlock/pkg/types"
)

// DefaultSweepInterval is the cadence of the periodic maintenance pass.
// Deliberately much shorter than the entity timeouts so an expired lock
// never stays visible for long to callers that only read.
const DefaultSweepInterval = 30 * time.Second

// Snapshot bundles the three tables' stats for the adapter's stats
// surface.
type Snapshot struct {
	Locks    lock.Stats
	Presence presence.Stats
	Requests request.Stats
}

// MaintenanceSummary reports what one maintenance pass removed or
// transitioned.
type MaintenanceSummary struct {
	ExpiredLocks    []lock.Released
	EvictedUsers    []string
	ExpiredRequests []string
	PrunedRequests  int
}

// Coordinator composes the three tables and sequences every
// cross-table effect: approvals cascade into lock releases,
// disconnects cascade into bulk releases, maintenance runs the four
// sweeps. The tables never call each other; all composition lives
// here.
type Coordinator struct {
	locks    *lock.Table
	presence *presence.Table
	requests *request.Ledger
	log      *slog.Logger

	mu       sync.RWMutex
	handlers []func(Event)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// New wires the coordinator over the three tables.
func New(locks *lock.Table, pres *presence.Table, reqs *request.Ledger, opts ...Option) *Coordinator {
	c := &Coordinator{
		locks:    locks,
		presence: pres,
		requests: reqs,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnEvent registers a handler invoked synchronously for every emitted
// event. Handlers must not call back into the coordinator.
func (c *Coordinator) OnEvent(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

func (c *Coordinator) emit(ev Event) {
	c.mu.RLock()
	handlers := c.handlers
	c.mu.RUnlock()
	for _, fn := range handlers {
		fn(ev)
	}
}

// Identify registers (or re-registers) the user's session.
func (c *Coordinator) Identify(userID string, info presence.Info) (types.Session, error) {
	if userID == "" {
		return types.Session{}, types.Validation("userId is required")
	}
	s := c.presence.Register(userID, info)
	c.emit(Event{Type: EventUserJoined, WorkflowID: s.WorkflowID, UserID: userID})
	return s, nil
}

// TouchActivity bumps the user's activity timestamp.
func (c *Coordinator) TouchActivity(userID string) bool {
	return c.presence.Touch(userID)
}

// RequestLock acquires, refreshes, or forcibly takes over the
// workflow's lock for userID. Any lock traffic counts as user
// activity, so presence is refreshed before the table is consulted.
func (c *Coordinator) RequestLock(workflowID, userID string, force bool) (lock.Grant, error) {
	if workflowID == "" || userID == "" {
		return lock.Grant{}, types.Validation("workflowId and userId are required")
	}
	c.presence.Touch(userID)

	g, err := c.locks.Request(workflowID, userID, force)
	if err != nil {
		metrics.LockRequestTotal.WithLabelValues("conflict").Inc()
		return lock.Grant{}, err
	}

	switch g.Reason {
	case lock.ReasonAcquired:
		metrics.LockRequestTotal.WithLabelValues("acquired").Inc()
		c.emit(Event{Type: EventLockAcquired, WorkflowID: workflowID, UserID: userID, Lock: &g.Lock})
	case lock.ReasonRefreshed:
		metrics.LockRequestTotal.WithLabelValues("refreshed").Inc()
		c.emit(Event{Type: EventLockRefreshed, WorkflowID: workflowID, UserID: userID, Lock: &g.Lock})
	case lock.ReasonTakeover:
		metrics.LockRequestTotal.WithLabelValues("takeover").Inc()
		ev := Event{Type: EventLockTakeover, WorkflowID: workflowID, UserID: userID, Lock: &g.Lock}
		if g.Previous != nil {
			ev.TargetID = g.Previous.UserID
		}
		c.emit(ev)
	}
	metrics.LocksActive.Set(float64(c.locks.Stats().Locks))
	return g, nil
}

// ReleaseLock releases the workflow's lock if userID owns it.
func (c *Coordinator) ReleaseLock(workflowID, userID string) error {
	if workflowID == "" || userID == "" {
		return types.Validation("workflowId and userId are required")
	}
	c.presence.Touch(userID)

	if err := c.locks.Release(workflowID, userID); err != nil {
		metrics.LockReleaseTotal.WithLabelValues("denied").Inc()
		return err
	}
	metrics.LockReleaseTotal.WithLabelValues("released").Inc()
	metrics.LocksActive.Set(float64(c.locks.Stats().Locks))
	c.emit(Event{Type: EventLockReleased, WorkflowID: workflowID, UserID: userID})
	return nil
}

// GetWorkflowLock returns the workflow's live lock, if any.
func (c *Coordinator) GetWorkflowLock(workflowID string) (types.Lock, bool) {
	return c.locks.Get(workflowID)
}

// CreateEditRequest asks the workflow's current lock holder to yield.
//
// The ledger itself doesn't know about locks or sessions, so the
// cross-table validation the request depends on happens here: the
// requester must have a session, the workflow must have a live lock,
// and the requester must not be the holder. The target is always the
// current holder.
func (c *Coordinator) CreateEditRequest(workflowID, requesterID, message string) (types.EditRequest, error) {
	if workflowID == "" || requesterID == "" {
		return types.EditRequest{}, types.Validation("workflowId and requesterId are required")
	}
	if _, ok := c.presence.Get(requesterID); !ok {
		return types.EditRequest{}, types.NotFound("unknown user")
	}
	holder, ok := c.locks.Get(workflowID)
	if !ok {
		return types.EditRequest{}, types.ErrNoLock
	}
	if holder.UserID == requesterID {
		return types.EditRequest{}, types.Validation("requester already holds the workflow lock")
	}
	c.presence.Touch(requesterID)

	req := c.requests.Create(workflowID, requesterID, holder.UserID, message)
	metrics.RequestCreateTotal.Inc()
	c.emit(Event{Type: EventRequestCreated, WorkflowID: workflowID, UserID: requesterID, TargetID: req.TargetUserID, Request: &req})
	return req, nil
}

// RespondToRequest settles a pending request. Only the request's
// target may respond. On approval the responder's lock on the
// request's workflow is released as a follow-on effect; that release
// is best-effort and never undoes the approval, even if the lock is
// already gone or has changed hands.
func (c *Coordinator) RespondToRequest(requestID, responderID string, approved bool, message string) (types.EditRequest, error) {
	if requestID == "" || responderID == "" {
		return types.EditRequest{}, types.Validation("requestId and responderId are required")
	}
	req, ok := c.requests.Get(requestID)
	if !ok {
		return types.EditRequest{}, types.NotFound("edit request not found")
	}
	if req.TargetUserID != responderID {
		return types.EditRequest{}, types.Unauthorized("only the request target can respond")
	}
	c.presence.Touch(responderID)

	out, err := c.requests.Respond(requestID, approved, message)
	if err != nil {
		return types.EditRequest{}, err
	}

	evType := EventRequestDenied
	status := "denied"
	if approved {
		evType = EventRequestApproved
		status = "approved"
	}
	metrics.RequestSettleTotal.WithLabelValues(status).Inc()
	c.emit(Event{Type: evType, WorkflowID: out.WorkflowID, UserID: responderID, TargetID: out.RequesterID, Request: &out})

	if approved {
		if err := c.locks.Release(out.WorkflowID, responderID); err != nil {
			// lock already gone or changed hands; the approval stands
			c.log.Debug("post-approval release skipped",
				"workflow", out.WorkflowID, "user", responderID, "err", err)
		} else {
			metrics.LocksActive.Set(float64(c.locks.Stats().Locks))
			c.emit(Event{Type: EventLockReleased, WorkflowID: out.WorkflowID, UserID: responderID})
		}
	}
	return out, nil
}

// CancelRequest withdraws a pending request on behalf of its
// requester.
func (c *Coordinator) CancelRequest(requestID, userID string) (bool, error) {
	req, hadReq := c.requests.Get(requestID)
	ok, err := c.requests.Cancel(requestID, userID)
	if err != nil || !ok {
		return ok, err
	}
	metrics.RequestSettleTotal.WithLabelValues("cancelled").Inc()
	ev := Event{Type: EventRequestCancelled, WorkflowID: req.WorkflowID, UserID: userID}
	if hadReq {
		ev.TargetID = req.TargetUserID
	}
	c.emit(ev)
	return true, nil
}

// ReleaseUserLocks unconditionally drops every lock the user holds,
// emitting a release event per lock.
func (c *Coordinator) ReleaseUserLocks(userID string) []lock.Released {
	released := c.locks.ReleaseAllForUser(userID)
	for _, r := range released {
		c.emit(Event{Type: EventLockReleased, WorkflowID: r.WorkflowID, UserID: r.UserID})
	}
	if len(released) > 0 {
		metrics.LocksActive.Set(float64(c.locks.Stats().Locks))
	}
	return released
}

// RemoveUser drops the user's session immediately, without the lock
// cascade. Adapters that only know the user id and want the full
// cascade call ReleaseUserLocks first, as Disconnect does.
func (c *Coordinator) RemoveUser(userID string) bool {
	s, ok := c.presence.Get(userID)
	if !ok {
		return false
	}
	c.presence.Remove(userID)
	c.emit(Event{Type: EventUserLeft, WorkflowID: s.WorkflowID, UserID: userID})
	return true
}

// UserBySocket resolves the session attached to a socket.
func (c *Coordinator) UserBySocket(socketID string) (types.Session, bool) {
	return c.presence.BySocket(socketID)
}

// Disconnect tears down whatever session is attached to the socket:
// every lock the user holds is released and the session removed, as
// one logical unit. Unknown sockets are a no-op.
func (c *Coordinator) Disconnect(socketID string) []lock.Released {
	s, ok := c.presence.BySocket(socketID)
	if !ok {
		return nil
	}
	released := c.ReleaseUserLocks(s.UserID)
	c.RemoveUser(s.UserID)

	if len(released) > 0 {
		c.log.Info("released locks on disconnect", "user", s.UserID, "count", len(released))
	}
	return released
}

// Maintenance runs the four independent sweeps once: lock expiry,
// presence inactivity, request expiry, request retention.
func (c *Coordinator) Maintenance() MaintenanceSummary {
	sum := MaintenanceSummary{
		ExpiredLocks:   c.locks.SweepExpired(),
		EvictedUsers:   c.presence.SweepInactive(),
		PrunedRequests: c.requests.PruneOld(request.DefaultRetention),
	}
	sum.ExpiredRequests = c.requests.SweepExpired()

	for _, r := range sum.ExpiredLocks {
		metrics.LockExpireTotal.Inc()
		c.emit(Event{Type: EventLockExpired, WorkflowID: r.WorkflowID, UserID: r.UserID})
	}
	for range sum.EvictedUsers {
		metrics.SessionEvictTotal.Inc()
	}
	for _, id := range sum.ExpiredRequests {
		metrics.RequestSettleTotal.WithLabelValues("expired").Inc()
		if req, ok := c.requests.Get(id); ok {
			c.emit(Event{Type: EventRequestExpired, WorkflowID: req.WorkflowID, UserID: req.RequesterID, TargetID: req.RequesterID, Request: &req})
		}
	}
	metrics.RequestPruneTotal.Add(float64(sum.PrunedRequests))

	snap := c.Stats()
	metrics.LocksActive.Set(float64(snap.Locks.Locks))
	metrics.SessionsActive.Set(float64(snap.Presence.Active))
	metrics.RequestsPending.Set(float64(snap.Requests.Pending))
	return sum
}

// Run executes Maintenance on a fixed cadence until ctx is cancelled.
// The tables have no timers of their own; this loop is the only thing
// bounding how long an expired entry stays visible.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sum := c.Maintenance()
			if len(sum.ExpiredLocks) > 0 || len(sum.EvictedUsers) > 0 ||
				len(sum.ExpiredRequests) > 0 || sum.PrunedRequests > 0 {
				c.log.Info("maintenance sweep",
					"expired_locks", len(sum.ExpiredLocks),
					"evicted_users", len(sum.EvictedUsers),
					"expired_requests", len(sum.ExpiredRequests),
					"pruned_requests", sum.PrunedRequests)
			}
		}
	}
}

// Stats returns a combined snapshot of the three tables.
func (c *Coordinator) Stats() Snapshot {
	return Snapshot{
		Locks:    c.locks.Stats(),
		Presence: c.presence.Stats(),
		Requests: c.requests.Stats(),
	}
}
