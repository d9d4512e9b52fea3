package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowlock/pkg/clock"
	"flowlock/pkg/coord"
	"flowlock/pkg/lock"
	"flowlock/pkg/presence"
	"flowlock/pkg/request"
	"flowlock/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *coord.Coordinator) {
	t.Helper()
	clk := clock.NewManual(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	c := coord.New(lock.NewTable(clk), presence.NewTable(clk), request.NewLedger(clk))
	return NewServer(c, slog.New(slog.NewTextHandler(testWriter{t}, nil))), c
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{types.ErrValidation, http.StatusBadRequest},
		{types.ErrUnauthorized, http.StatusForbidden},
		{types.ErrNotFound, http.StatusNotFound},
		{types.ErrNoLock, http.StatusNotFound},
		{types.ErrWorkflowLocked, http.StatusConflict},
		{types.ErrInvalidState, http.StatusConflict},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, httpStatus(tc.err), "kind %v", tc.err)
	}
}

func TestErrorBodyCarriesHolder(t *testing.T) {
	holder := &types.Lock{WorkflowID: "wf-1", UserID: "user-a"}
	body := errorBody(types.Locked(holder))
	assert.Equal(t, "WORKFLOW_LOCKED", body.Kind)
	require.NotNil(t, body.Holder)
	assert.Equal(t, "user-a", body.Holder.UserID)

	body = errorBody(assert.AnError)
	assert.Equal(t, "INTERNAL", body.Kind)
	assert.Nil(t, body.Holder)
}

func TestHealthAndStats(t *testing.T) {
	srv, c := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = c.Identify("user-a", presence.Info{SocketID: "sock-a"})
	require.NoError(t, err)
	_, err = c.RequestLock("wf-1", "user-a", false)
	require.NoError(t, err)

	resp, err = http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap coord.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, 1, snap.Locks.Locks)
	assert.Equal(t, 1, snap.Presence.Sessions)
}

func TestWorkflowLockEndpoint(t *testing.T) {
	srv, c := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/workflows/wf-1/lock")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, err = c.RequestLock("wf-1", "user-a", false)
	require.NoError(t, err)

	resp, err = http.Get(ts.URL + "/workflows/wf-1/lock")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var lk types.Lock
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lk))
	assert.Equal(t, "user-a", lk.UserID)
}

// dials the websocket endpoint and walks one identify + lock round trip
func TestSocketRoundTrip(t *testing.T) {
	srv, c := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	send := func(typ string, v any) {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, conn.WriteJSON(envelope{Type: typ, Data: data}))
	}

	// read frames until the wanted type shows up; fanned-out events may
	// arrive interleaved with direct replies
	readUntil := func(typ string) envelope {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
			var env envelope
			require.NoError(t, conn.ReadJSON(&env))
			if env.Type == typ {
				return env
			}
		}
		t.Fatalf("never received %q", typ)
		return envelope{}
	}

	send("identify", map[string]any{"userId": "user-a", "userName": "Ada", "workflowId": "wf-1"})
	readUntil("identified")

	send("lock_request", map[string]any{"workflowId": "wf-1"})
	env := readUntil("lock_result")

	var result struct {
		Reason string     `json:"reason"`
		Lock   types.Lock `json:"lock"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "acquired", result.Reason)
	assert.Equal(t, "user-a", result.Lock.UserID)

	lk, held := c.GetWorkflowLock("wf-1")
	require.True(t, held)
	assert.Equal(t, "user-a", lk.UserID)

	//closing the socket cascades into a disconnect
	conn.Close()
	require.Eventually(t, func() bool {
		_, held := c.GetWorkflowLock("wf-1")
		return !held
	}, 2*time.Second, 20*time.Millisecond, "disconnect should release the lock")
}
