package ratelimit

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Default backoff bounds for rate-limited slots.
const (
	DefaultBaseBackoff = 30 * time.Second
	DefaultMaxBackoff  = 30 * time.Minute
)

// entry tracks one provider:model slot key.
type entry struct {
	capacity     int
	held         int
	streak       int
	backoffUntil time.Time
}

// Limiter enforces per provider:model concurrency caps and exponential
// backoff after rate-limit signals. Internally synchronised: the
// orchestrator mutates it from the control plane while the dashboard
// reads snapshots.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry

	baseBackoff time.Duration
	maxBackoff  time.Duration

	// now is swappable for tests
	now func() time.Time
}

// Key builds the concurrency key for a provider and model.
func Key(provider, model string) string {
	return provider + ":" + model
}

// New creates a limiter with the given per-key capacities. Keys with
// capacity <= 0 are not configured and never acquirable.
func New(capacities map[string]int) *Limiter {
	l := &Limiter{
		entries:     make(map[string]*entry),
		baseBackoff: DefaultBaseBackoff,
		maxBackoff:  DefaultMaxBackoff,
		now:         time.Now,
	}
	for key, capacity := range capacities {
		if capacity > 0 {
			l.entries[key] = &entry{capacity: capacity}
		}
	}
	return l
}

// SetBackoff overrides the backoff bounds. Intended for tests.
func (l *Limiter) SetBackoff(base, max time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.baseBackoff = base
	l.maxBackoff = max
}

// SetClock overrides the time source. Intended for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// IsConfigured reports whether the key has capacity configured.
func (l *Limiter) IsConfigured(provider, model string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[Key(provider, model)]
	return ok
}

// TryAcquire takes a slot for the key if one is free and the key is not
// in backoff. Non-blocking.
func (l *Limiter) TryAcquire(provider, model string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[Key(provider, model)]
	if !ok {
		return false
	}
	if l.now().Before(e.backoffUntil) {
		return false
	}
	if e.held >= e.capacity {
		return false
	}
	e.held++
	return true
}

// CanAcquire reports whether TryAcquire would currently succeed,
// without taking the slot. Used by routing to probe candidates.
func (l *Limiter) CanAcquire(provider, model string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[Key(provider, model)]
	if !ok {
		return false
	}
	return e.held < e.capacity && !l.now().Before(e.backoffUntil)
}

// Release returns a slot for the key. Floored at zero.
func (l *Limiter) Release(provider, model string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[Key(provider, model)]; ok && e.held > 0 {
		e.held--
	}
}

// ReportRateLimit records a rate-limit signal for the key, doubling the
// backoff with each consecutive report up to the ceiling.
func (l *Limiter) ReportRateLimit(provider, model string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[Key(provider, model)]
	if !ok {
		return
	}
	e.streak++
	backoff := l.baseBackoff << (e.streak - 1)
	if backoff > l.maxBackoff || backoff <= 0 {
		backoff = l.maxBackoff
	}
	e.backoffUntil = l.now().Add(backoff)
}

// ReportSuccess clears the rate-limit streak and backoff for the key.
func (l *Limiter) ReportSuccess(provider, model string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[Key(provider, model)]; ok {
		e.streak = 0
		e.backoffUntil = time.Time{}
	}
}

// AvailableSlots returns the keys that currently have free capacity and
// are not in backoff, sorted for stable output.
func (l *Limiter) AvailableSlots() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var keys []string
	for key, e := range l.entries {
		if e.held < e.capacity && !now.Before(e.backoffUntil) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// KeysInBackoff returns the keys still under backoff, with remaining
// durations, for the final summary.
func (l *Limiter) KeysInBackoff() map[string]time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	out := make(map[string]time.Duration)
	for key, e := range l.entries {
		if now.Before(e.backoffUntil) {
			out[key] = e.backoffUntil.Sub(now)
		}
	}
	return out
}

// Snapshot describes one key's state for display.
type Snapshot struct {
	Key       string
	Capacity  int
	Held      int
	Streak    int
	InBackoff bool
}

// Snapshots returns the state of every configured key, sorted by key.
func (l *Limiter) Snapshots() []Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	out := make([]Snapshot, 0, len(l.entries))
	for key, e := range l.entries {
		out = append(out, Snapshot{
			Key:       key,
			Capacity:  e.capacity,
			Held:      e.held,
			Streak:    e.streak,
			InBackoff: now.Before(e.backoffUntil),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// rateLimitSignals is the full detection contract: any of these phrases
// in provider output marks the attempt as rate-limited.
var rateLimitSignals = []string{
	"rate_limit",
	"rate limit exceeded",
	"429",
	"quota exceeded",
	"too many requests",
}

// Detect scans combined provider stdout+stderr for rate-limit signals.
func Detect(output string) bool {
	lowered := strings.ToLower(output)
	for _, signal := range rateLimitSignals {
		if strings.Contains(lowered, signal) {
			return true
		}
	}
	return false
}

// String renders a snapshot as key held/capacity for logs.
func (s Snapshot) String() string {
	state := ""
	if s.InBackoff {
		state = " (backoff)"
	}
	return fmt.Sprintf("%s %d/%d%s", s.Key, s.Held, s.Capacity, state)
}
