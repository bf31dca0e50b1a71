package cli

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignalHandlerRunsCallbacks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewSignalHandler(cancel)

	fired := make(chan struct{})
	h.OnShutdown(func() { close(fired) })

	h.StartWithNotify(false)
	defer h.Stop()

	h.signals <- syscall.SIGINT

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback never ran")
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled")
	}

	h.Wait()
}

func TestSignalHandlerCallbackOrder(t *testing.T) {
	h := NewSignalHandler(nil)

	var order []int
	done := make(chan struct{})
	h.OnShutdown(func() { order = append(order, 1) })
	h.OnShutdown(func() { order = append(order, 2) })
	h.OnShutdown(func() { close(done) })

	h.StartWithNotify(false)
	defer h.Stop()

	h.signals <- syscall.SIGTERM
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callbacks never ran")
	}
	assert.Equal(t, []int{1, 2}, order)
}

func TestSignalHandlerStopWithoutSignal(t *testing.T) {
	h := NewSignalHandler(nil)
	h.StartWithNotify(false)
	h.Stop()

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler goroutine did not exit")
	}
}
