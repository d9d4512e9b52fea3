package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"flowlock/pkg/coord"
	"flowlock/pkg/presence"
)

// Server is the thin socket/HTTP adapter over the coordination core.
// It owns no coordination state of its own, only the connection
// registry needed to fan events back out. Every decision is made by
// the coordinator.
type Server struct {
	coord *coord.Coordinator
	log   *slog.Logger

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*conn // socketID -> connection
}

// one websocket connection; writes are serialized through wmu
type conn struct {
	id         string
	ws         *websocket.Conn
	wmu        sync.Mutex
	userID     string
	workflowID string
}

func (c *conn) send(v any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteJSON(v)
}

// NewServer wires the adapter to the coordinator and subscribes to its
// event stream.
func NewServer(c *coord.Coordinator, log *slog.Logger) *Server {
	s := &Server{
		coord: c,
		log:   log,
		conns: make(map[string]*conn),
	}
	c.OnEvent(s.fanout)
	return s
}

// envelope is the wire frame in both directions.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &conn{id: uuid.NewString(), ws: ws}

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, c.id)
		s.mu.Unlock()
		s.coord.Disconnect(c.id)
		_ = ws.Close()
	}()

	for {
		var env envelope
		if err := ws.ReadJSON(&env); err != nil {
			return
		}
		s.dispatch(c, env)
	}
}

func (s *Server) dispatch(c *conn, env envelope) {
	switch env.Type {
	case "identify":
		s.onIdentify(c, env.Data)
	case "lock_request":
		s.onLockRequest(c, env.Data)
	case "lock_release":
		s.onLockRelease(c, env.Data)
	case "edit_request":
		s.onEditRequest(c, env.Data)
	case "edit_response":
		s.onEditResponse(c, env.Data)
	case "edit_cancel":
		s.onEditCancel(c, env.Data)
	case "ping":
		s.coord.TouchActivity(c.userID)
	default:
		s.sendError(c, env.Type, errUnknownType)
	}
}

func (s *Server) onIdentify(c *conn, data json.RawMessage) {
	var p struct {
		UserID     string         `json:"userId"`
		UserName   string         `json:"userName"`
		Email      string         `json:"email"`
		WorkflowID string         `json:"workflowId"`
		Metadata   map[string]any `json:"metadata"`
	}
	if !s.decode(c, "identify", data, &p) {
		return
	}
	sess, err := s.coord.Identify(p.UserID, presence.Info{
		SocketID:   c.id,
		UserName:   p.UserName,
		Email:      p.Email,
		WorkflowID: p.WorkflowID,
		Metadata:   p.Metadata,
	})
	if err != nil {
		s.sendError(c, "identify", err)
		return
	}
	c.userID = p.UserID
	c.workflowID = p.WorkflowID
	s.reply(c, "identified", sess)
}

func (s *Server) onLockRequest(c *conn, data json.RawMessage) {
	var p struct {
		WorkflowID string `json:"workflowId"`
		Force      bool   `json:"force"`
	}
	if !s.decode(c, "lock_request", data, &p) {
		return
	}
	g, err := s.coord.RequestLock(p.WorkflowID, c.userID, p.Force)
	if err != nil {
		s.sendError(c, "lock_request", err)
		return
	}
	s.reply(c, "lock_result", map[string]any{"reason": g.Reason, "lock": g.Lock})
}

func (s *Server) onLockRelease(c *conn, data json.RawMessage) {
	var p struct {
		WorkflowID string `json:"workflowId"`
	}
	if !s.decode(c, "lock_release", data, &p) {
		return
	}
	if err := s.coord.ReleaseLock(p.WorkflowID, c.userID); err != nil {
		s.sendError(c, "lock_release", err)
		return
	}
	s.reply(c, "lock_released", map[string]string{"workflowId": p.WorkflowID})
}

func (s *Server) onEditRequest(c *conn, data json.RawMessage) {
	var p struct {
		WorkflowID string `json:"workflowId"`
		Message    string `json:"message"`
	}
	if !s.decode(c, "edit_request", data, &p) {
		return
	}
	req, err := s.coord.CreateEditRequest(p.WorkflowID, c.userID, p.Message)
	if err != nil {
		s.sendError(c, "edit_request", err)
		return
	}
	s.reply(c, "edit_request_sent", req)
}

func (s *Server) onEditResponse(c *conn, data json.RawMessage) {
	var p struct {
		RequestID string `json:"requestId"`
		Approved  bool   `json:"approved"`
		Message   string `json:"message"`
	}
	if !s.decode(c, "edit_response", data, &p) {
		return
	}
	req, err := s.coord.RespondToRequest(p.RequestID, c.userID, p.Approved, p.Message)
	if err != nil {
		s.sendError(c, "edit_response", err)
		return
	}
	s.reply(c, "edit_responded", req)
}

func (s *Server) onEditCancel(c *conn, data json.RawMessage) {
	var p struct {
		RequestID string `json:"requestId"`
	}
	if !s.decode(c, "edit_cancel", data, &p) {
		return
	}
	ok, err := s.coord.CancelRequest(p.RequestID, c.userID)
	if err != nil {
		s.sendError(c, "edit_cancel", err)
		return
	}
	s.reply(c, "edit_cancelled", map[string]bool{"cancelled": ok})
}

// fanout delivers a coordinator event to every connection watching the
// event's workflow, plus the addressed user wherever they are.
func (s *Server) fanout(ev coord.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}
	env := envelope{Type: string(ev.Type), Data: body}

	s.mu.Lock()
	targets := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		if (ev.WorkflowID != "" && c.workflowID == ev.WorkflowID) ||
			(ev.TargetID != "" && c.userID == ev.TargetID) {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := c.send(env); err != nil {
			s.log.Debug("event delivery failed", "socket", c.id, "type", ev.Type)
		}
	}
}

func (s *Server) decode(c *conn, op string, data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		s.sendError(c, op, errBadPayload)
		return false
	}
	return true
}

func (s *Server) reply(c *conn, typ string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.send(envelope{Type: typ, Data: body}); err != nil {
		s.log.Debug("reply failed", "socket", c.id, "type", typ)
	}
}

func (s *Server) sendError(c *conn, op string, err error) {
	body, merr := json.Marshal(struct {
		Op string `json:"op"`
		errorPayload
	}{Op: op, errorPayload: errorBody(err)})
	if merr != nil {
		return
	}
	_ = c.send(envelope{Type: "error", Data: body})
}
