// Package testutil provides shared test doubles.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Call records one git invocation seen by the StubRunner.
type Call struct {
	Dir  string
	Args []string
}

// Response scripts the outcome for a matching git command.
type Response struct {
	Output string
	Err    error
}

// StubRunner is a scripted git.Runner. Script responses by command
// prefix; unscripted commands succeed with empty output. All calls are
// recorded for assertions.
type StubRunner struct {
	mu        sync.Mutex
	responses map[string]Response
	calls     []Call
}

// NewStubRunner creates an empty stub.
func NewStubRunner() *StubRunner {
	return &StubRunner{responses: make(map[string]Response)}
}

// Script sets the response for commands whose joined args start with
// prefix (e.g. "cherry-pick", "rev-parse main").
func (s *StubRunner) Script(prefix, output string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[prefix] = Response{Output: output, Err: err}
}

// Exec implements git.Runner.
func (s *StubRunner) Exec(ctx context.Context, dir string, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Dir: dir, Args: append([]string(nil), args...)})

	joined := strings.Join(args, " ")
	var best string
	for prefix := range s.responses {
		if strings.HasPrefix(joined, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best != "" {
		resp := s.responses[best]
		return resp.Output, resp.Err
	}
	return "", nil
}

// Calls returns a copy of all recorded invocations.
func (s *StubRunner) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsMatching returns recorded invocations whose joined args start
// with prefix.
func (s *StubRunner) CallsMatching(prefix string) []Call {
	var out []Call
	for _, call := range s.Calls() {
		if strings.HasPrefix(strings.Join(call.Args, " "), prefix) {
			out = append(out, call)
		}
	}
	return out
}

// Reset clears recorded calls but keeps the script.
func (s *StubRunner) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// String summarizes recorded calls for failure messages.
func (s *StubRunner) String() string {
	var b strings.Builder
	for _, call := range s.Calls() {
		fmt.Fprintf(&b, "git %s (in %s)\n", strings.Join(call.Args, " "), call.Dir)
	}
	return b.String()
}
