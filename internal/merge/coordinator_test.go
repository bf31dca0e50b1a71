package merge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/ralph/internal/events"
	"github.com/RevCBH/ralph/internal/git"
	"github.com/RevCBH/ralph/internal/testutil"
)

func withStub(t *testing.T) *testutil.StubRunner {
	t.Helper()
	stub := testutil.NewStubRunner()
	git.SetDefaultRunner(stub)
	t.Cleanup(func() { git.SetDefaultRunner(nil) })
	return stub
}

func collectEvents(bus *events.Bus) func() []events.Event {
	var mu sync.Mutex
	var seen []events.Event
	bus.Subscribe(func(e events.Event) {
		mu.Lock()
		seen = append(seen, e)
		mu.Unlock()
	})
	return func() []events.Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]events.Event(nil), seen...)
	}
}

func TestCherryPickSuccess(t *testing.T) {
	stub := withStub(t)
	stub.Script("rev-parse HEAD", "trunkhash\n", nil)

	bus := events.NewBus()
	drain := collectEvents(bus)
	c := NewCoordinator("/repo", bus)

	result := c.CherryPick(context.Background(), "T-1", "abc123")
	bus.Close()

	require.True(t, result.Success)
	assert.Equal(t, 1, c.MergedCount())

	history := c.History()
	require.Len(t, history, 1)
	assert.Equal(t, "T-1", history[0].TaskID)
	assert.True(t, history[0].Success)

	seen := drain()
	require.Len(t, seen, 1)
	assert.Equal(t, events.MergeSucceeded, seen[0].Type)
	payload, ok := seen[0].Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "trunkhash", payload["commit"])
}

func TestCherryPickConflict(t *testing.T) {
	stub := withStub(t)
	stub.Script("cherry-pick -x", "", errors.New("CONFLICT (content): Merge conflict in main.go"))

	bus := events.NewBus()
	drain := collectEvents(bus)
	c := NewCoordinator("/repo", bus)

	result := c.CherryPick(context.Background(), "T-2", "abc123")
	bus.Close()

	assert.True(t, result.Conflict)
	assert.Equal(t, 0, c.MergedCount())
	require.Len(t, stub.CallsMatching("cherry-pick --abort"), 1, "conflict must abort the pick")

	seen := drain()
	require.Len(t, seen, 1)
	assert.Equal(t, events.MergeConflict, seen[0].Type)
	assert.Equal(t, "T-2", seen[0].Task)
}

func TestCherryPickHardFailure(t *testing.T) {
	stub := withStub(t)
	stub.Script("cherry-pick -x", "", errors.New("fatal: bad revision"))

	bus := events.NewBus()
	drain := collectEvents(bus)
	c := NewCoordinator("/repo", bus)

	result := c.CherryPick(context.Background(), "T-3", "nothash")
	bus.Close()

	assert.False(t, result.Success)
	assert.False(t, result.Conflict)
	assert.Error(t, result.Err)

	history := c.History()
	require.Len(t, history, 1)
	assert.Contains(t, history[0].Error, "bad revision")

	seen := drain()
	require.Len(t, seen, 1)
	assert.Equal(t, events.MergeFailed, seen[0].Type)
}

func TestHistoryIsACopy(t *testing.T) {
	stub := withStub(t)
	stub.Script("rev-parse HEAD", "h\n", nil)

	c := NewCoordinator("/repo", nil)
	c.CherryPick(context.Background(), "T-1", "a")

	history := c.History()
	history[0].TaskID = "mutated"
	assert.Equal(t, "T-1", c.History()[0].TaskID)
}
