package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowlock/pkg/clock"
)

func newTestTable(t *testing.T) (*Table, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewTable(clk), clk
}

func TestRegisterOverwrites(t *testing.T) {
	tbl, clk := newTestTable(t)

	s := tbl.Register("user-a", Info{SocketID: "sock-1", UserName: "Ada"})
	assert.Equal(t, clk.Now(), s.ConnectedAt)
	assert.Equal(t, "sock-1", s.SocketID)

	clk.Advance(time.Minute)

	//re-identification replaces the session and resets timestamps
	s = tbl.Register("user-a", Info{SocketID: "sock-2", UserName: "Ada", WorkflowID: "wf-1"})
	assert.Equal(t, "sock-2", s.SocketID)
	assert.Equal(t, "wf-1", s.WorkflowID)
	assert.Equal(t, clk.Now(), s.ConnectedAt)

	assert.Equal(t, 1, tbl.Stats().Sessions)
}

func TestTouch(t *testing.T) {
	tbl, clk := newTestTable(t)

	assert.False(t, tbl.Touch("nobody"))

	tbl.Register("user-a", Info{SocketID: "sock-1"})
	clk.Advance(5 * time.Minute)
	require.True(t, tbl.Touch("user-a"))

	s, ok := tbl.Get("user-a")
	require.True(t, ok)
	assert.Equal(t, clk.Now(), s.LastActivity)
}

func TestActiveFiltering(t *testing.T) {
	tbl, clk := newTestTable(t)

	tbl.Register("user-a", Info{SocketID: "sock-1", WorkflowID: "wf-1"})
	clk.Advance(5 * time.Minute)
	tbl.Register("user-b", Info{SocketID: "sock-2", WorkflowID: "wf-1"})

	//user-a goes quiet past the inactivity timeout, user-b does not
	clk.Advance(DefaultInactivity - 4*time.Minute)

	all := tbl.All()
	require.Len(t, all, 1)
	assert.Equal(t, "user-b", all[0].UserID)

	wf := tbl.ForWorkflow("wf-1")
	require.Len(t, wf, 1)
	assert.Equal(t, "user-b", wf[0].UserID)

	//Get is not filtered: the stored session is still readable
	_, ok := tbl.Get("user-a")
	assert.True(t, ok)

	//filtering does not evict
	assert.Equal(t, 2, tbl.Stats().Sessions)
	assert.Equal(t, 1, tbl.Stats().Active)
}

func TestSetWorkflow(t *testing.T) {
	tbl, _ := newTestTable(t)

	assert.False(t, tbl.SetWorkflow("nobody", "wf-1"))

	tbl.Register("user-a", Info{SocketID: "sock-1"})
	require.True(t, tbl.SetWorkflow("user-a", "wf-9"))

	s, _ := tbl.Get("user-a")
	assert.Equal(t, "wf-9", s.WorkflowID)
}

func TestBySocket(t *testing.T) {
	tbl, _ := newTestTable(t)

	tbl.Register("user-a", Info{SocketID: "sock-1"})
	tbl.Register("user-b", Info{SocketID: "sock-2"})

	s, ok := tbl.BySocket("sock-2")
	require.True(t, ok)
	assert.Equal(t, "user-b", s.UserID)

	_, ok = tbl.BySocket("sock-404")
	assert.False(t, ok)
}

func TestMergeMetadata(t *testing.T) {
	tbl, _ := newTestTable(t)

	tbl.Register("user-a", Info{SocketID: "sock-1", Metadata: map[string]any{"role": "editor", "theme": "dark"}})

	require.True(t, tbl.MergeMetadata("user-a", map[string]any{"theme": "light", "beta": true}))

	s, _ := tbl.Get("user-a")
	assert.Equal(t, "editor", s.Metadata["role"])
	assert.Equal(t, "light", s.Metadata["theme"])
	assert.Equal(t, true, s.Metadata["beta"])

	assert.False(t, tbl.MergeMetadata("nobody", map[string]any{"x": 1}))
}

func TestSweepInactive(t *testing.T) {
	tbl, clk := newTestTable(t)

	tbl.Register("user-a", Info{SocketID: "sock-1"})
	clk.Advance(DefaultInactivity + time.Second)
	tbl.Register("user-b", Info{SocketID: "sock-2"})

	evicted := tbl.SweepInactive()
	assert.Equal(t, []string{"user-a"}, evicted)

	_, ok := tbl.Get("user-a")
	assert.False(t, ok, "swept session should be gone")
	_, ok = tbl.Get("user-b")
	assert.True(t, ok)
}

func TestRemove(t *testing.T) {
	tbl, _ := newTestTable(t)

	assert.False(t, tbl.Remove("nobody"))

	tbl.Register("user-a", Info{SocketID: "sock-1"})
	assert.True(t, tbl.Remove("user-a"))
	assert.False(t, tbl.Remove("user-a"))
}
