package escalate

import (
	"context"
	"sync"
)

// Multi wraps multiple notifiers and fans out to all of them
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a Multi notifier that sends to all provided backends
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

// Notify sends the notice to all backends concurrently.
// Returns the first error encountered, but delivers to all backends.
func (m *Multi) Notify(ctx context.Context, n Notice) error {
	if len(m.notifiers) == 0 {
		return nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for _, backend := range m.notifiers {
		wg.Add(1)
		go func(backend Notifier) {
			defer wg.Done()
			if err := backend.Notify(ctx, n); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(backend)
	}

	wg.Wait()
	return firstErr
}

// Name returns "multi"
func (m *Multi) Name() string {
	return "multi"
}
