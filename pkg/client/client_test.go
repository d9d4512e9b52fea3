package client

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowlock/pkg/clock"
	"flowlock/pkg/coord"
	"flowlock/pkg/lock"
	"flowlock/pkg/presence"
	"flowlock/pkg/request"
	"flowlock/pkg/server"
	"flowlock/pkg/types"
)

func startServer(t *testing.T) string {
	t.Helper()
	clk := clock.NewManual(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	c := coord.New(lock.NewTable(clk), presence.NewTable(clk), request.NewLedger(clk))
	srv := server.NewServer(c, slog.Default())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url, userID, userName string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), url, userID, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	_, err = c.Identify(userName, "", "wf-1", nil)
	require.NoError(t, err)
	return c
}

func TestConflictThenForce(t *testing.T) {
	url := startServer(t)
	a := dial(t, url, "user-a", "Ada")
	b := dial(t, url, "user-b", "Bea")

	res, err := a.RequestLock("wf-1", false)
	require.NoError(t, err)
	assert.Equal(t, "acquired", res.Reason)

	//conflict carries the holder's identity back over the wire
	_, err = b.RequestLock("wf-1", false)
	require.ErrorIs(t, err, types.ErrWorkflowLocked)
	var cerr *types.Error
	require.ErrorAs(t, err, &cerr)
	require.NotNil(t, cerr.Holder)
	assert.Equal(t, "user-a", cerr.Holder.UserID)

	res, err = b.RequestLock("wf-1", true)
	require.NoError(t, err)
	assert.Equal(t, "forcibly acquired", res.Reason)
	assert.Equal(t, "user-b", res.Lock.UserID)
}

func TestEditRequestApprovalFreesLock(t *testing.T) {
	url := startServer(t)
	a := dial(t, url, "user-a", "Ada")
	b := dial(t, url, "user-b", "Bea")

	_, err := a.RequestLock("wf-1", false)
	require.NoError(t, err)

	req, err := b.RequestEdit("wf-1", "need to fix a typo")
	require.NoError(t, err)
	assert.Equal(t, "user-a", req.TargetUserID)

	//the holder sees the edit request arrive as an event
	requireEvent(t, a, "edit_request_created")

	out, err := a.Respond(req.ID, true, "go ahead")
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, out.Status)

	//the approval released the lock, so b acquires cleanly
	res, err := b.RequestLock("wf-1", false)
	require.NoError(t, err)
	assert.Equal(t, "acquired", res.Reason)
}

func TestCancelRoundTrip(t *testing.T) {
	url := startServer(t)
	a := dial(t, url, "user-a", "Ada")
	b := dial(t, url, "user-b", "Bea")

	_, err := a.RequestLock("wf-1", false)
	require.NoError(t, err)

	req, err := b.RequestEdit("wf-1", "")
	require.NoError(t, err)

	ok, err := b.Cancel(req.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	//a cancelled request can no longer be responded to
	_, err = a.Respond(req.ID, true, "")
	require.ErrorIs(t, err, types.ErrInvalidState)
}

func requireEvent(t *testing.T, c *Client, typ string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			require.True(t, ok, "connection closed while waiting for %s", typ)
			if ev.Type == typ {
				return
			}
		case <-deadline:
			t.Fatalf("never received event %q", typ)
		}
	}
}
