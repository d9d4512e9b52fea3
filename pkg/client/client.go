package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"flowlock/pkg/types"
)

// DefaultPingInterval is how often the client reports activity so its
// session does not go inactive server-side.
const DefaultPingInterval = time.Minute

const replyTimeout = 10 * time.Second

// wire frame, mirrors the server's envelope
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is a server-pushed notification that was not a direct reply:
// lock changes, edit requests, presence changes.
type Event struct {
	Type string
	Data json.RawMessage
}

// Client speaks the flowlock socket protocol: identify once, then issue
// lock and edit-request operations while a background ping keeps the
// session active. One in-flight operation at a time; server events
// arrive on Events regardless.
type Client struct {
	userID string
	conn   *websocket.Conn
	log    *slog.Logger

	wmu     sync.Mutex // serializes writes and request/reply pairing
	replies chan envelope
	events  chan Event
	stopCh  chan struct{}
	once    sync.Once
}

// Dial connects to a flowlock server's /ws endpoint.
func Dial(ctx context.Context, url, userID string, log *slog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		userID:  userID,
		conn:    conn,
		log:     log,
		replies: make(chan envelope, 4),
		events:  make(chan Event, 64),
		stopCh:  make(chan struct{}),
	}
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// Events delivers server-pushed notifications. Slow consumers lose
// events rather than stalling the read loop.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Close tears the connection down; the server treats this as a
// disconnect and releases every lock this user holds.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.stopCh) })
	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		if isReply(env.Type) {
			select {
			case c.replies <- env:
			default:
			}
			continue
		}
		select {
		case c.events <- Event{Type: env.Type, Data: env.Data}:
		default:
			c.log.Debug("event dropped, consumer too slow", "type", env.Type)
		}
	}
}

func isReply(typ string) bool {
	switch typ {
	case "identified", "lock_result", "lock_released",
		"edit_request_sent", "edit_responded", "edit_cancelled", "error":
		return true
	}
	return false
}

// pingLoop reports activity on a fixed cadence so the session stays
// inside the server's inactivity window.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(DefaultPingInterval)
	defer ticker.Stop()

	var failures int
	for {
		select {
		case <-ticker.C:
			if err := c.write(envelope{Type: "ping"}); err != nil {
				failures++
				c.log.Warn("activity ping failed", "attempt", failures, "err", err)
				continue
			}
			if failures > 0 {
				c.log.Info("activity ping recovered", "after_failures", failures)
				failures = 0
			}
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) write(env envelope) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteJSON(env)
}

// call sends one frame and waits for the matching reply or a server
// error. The write mutex keeps one operation in flight at a time.
func (c *Client) call(typ string, payload any, wantType string, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.conn.WriteJSON(envelope{Type: typ, Data: data}); err != nil {
		return fmt.Errorf("%s: %w", typ, err)
	}

	timer := time.NewTimer(replyTimeout)
	defer timer.Stop()

	for {
		select {
		case env, ok := <-c.replies:
			if !ok {
				return fmt.Errorf("%s: connection closed", typ)
			}
			switch env.Type {
			case "error":
				return decodeError(env.Data)
			case wantType:
				if out == nil {
					return nil
				}
				return json.Unmarshal(env.Data, out)
			default:
				// stale reply from an earlier timed-out call; skip
			}
		case <-timer.C:
			return fmt.Errorf("%s: timed out waiting for %s", typ, wantType)
		case <-c.stopCh:
			return fmt.Errorf("%s: client closed", typ)
		}
	}
}

// reconstructs a typed core error from the server's error payload so
// callers can match with errors.Is against the types sentinels
func decodeError(data json.RawMessage) error {
	var p struct {
		Kind    string      `json:"kind"`
		Message string      `json:"message"`
		Holder  *types.Lock `json:"holder"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Kind == "" {
		return fmt.Errorf("server error")
	}
	return &types.Error{Kind: types.Kind(p.Kind), Message: p.Message, Holder: p.Holder}
}

// Identify registers this client's user with the server. Must be the
// first call on a fresh connection.
func (c *Client) Identify(userName, email, workflowID string, metadata map[string]any) (types.Session, error) {
	var s types.Session
	err := c.call("identify", map[string]any{
		"userId":     c.userID,
		"userName":   userName,
		"email":      email,
		"workflowId": workflowID,
		"metadata":   metadata,
	}, "identified", &s)
	return s, err
}

// LockResult is the outcome of a successful lock request.
type LockResult struct {
	Reason string     `json:"reason"`
	Lock   types.Lock `json:"lock"`
}

// RequestLock acquires or refreshes the workflow's lock, or forcibly
// takes it over when force is set.
func (c *Client) RequestLock(workflowID string, force bool) (LockResult, error) {
	var res LockResult
	err := c.call("lock_request", map[string]any{
		"workflowId": workflowID,
		"force":      force,
	}, "lock_result", &res)
	return res, err
}

// ReleaseLock gives the workflow's lock back.
func (c *Client) ReleaseLock(workflowID string) error {
	return c.call("lock_release", map[string]any{"workflowId": workflowID}, "lock_released", nil)
}

// RequestEdit asks the workflow's current lock holder to yield.
func (c *Client) RequestEdit(workflowID, message string) (types.EditRequest, error) {
	var req types.EditRequest
	err := c.call("edit_request", map[string]any{
		"workflowId": workflowID,
		"message":    message,
	}, "edit_request_sent", &req)
	return req, err
}

// Respond settles an edit request addressed to this user.
func (c *Client) Respond(requestID string, approved bool, message string) (types.EditRequest, error) {
	var req types.EditRequest
	err := c.call("edit_response", map[string]any{
		"requestId": requestID,
		"approved":  approved,
		"message":   message,
	}, "edit_responded", &req)
	return req, err
}

// Cancel withdraws an edit request this user created.
func (c *Client) Cancel(requestID string) (bool, error) {
	var res struct {
		Cancelled bool `json:"cancelled"`
	}
	err := c.call("edit_cancel", map[string]any{"requestId": requestID}, "edit_cancelled", &res)
	return res.Cancelled, err
}
