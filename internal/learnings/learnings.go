// Package learnings extracts durable observations from provider output
// and appends them to a shared log so later tasks can build on them.
package learnings

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// FileName is the learnings log, relative to the .ralph directory.
const FileName = "LEARNINGS.md"

var learningPattern = regexp.MustCompile(`(?s)<learning>(.*?)</learning>`)

// Extract returns the trimmed contents of every learning block in the
// output. Empty blocks are dropped.
func Extract(output string) []string {
	matches := learningPattern.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return nil
	}

	var learnings []string
	for _, m := range matches {
		text := strings.TrimSpace(m[1])
		if text != "" {
			learnings = append(learnings, text)
		}
	}
	return learnings
}

// Recorder appends learnings to the shared log under the repo's .ralph
// directory. All methods are best-effort: the log is an aid, losing an
// entry must never fail a task.
type Recorder struct {
	path string
}

// NewRecorder creates a recorder writing to <repoRoot>/.ralph/LEARNINGS.md.
func NewRecorder(repoRoot string) *Recorder {
	return &Recorder{path: filepath.Join(repoRoot, ".ralph", FileName)}
}

// Path returns the log file location.
func (r *Recorder) Path() string {
	return r.path
}

// Record extracts learnings from output and appends them attributed to
// the task. Returns the number of learnings written.
func (r *Recorder) Record(taskID, output string) int {
	learnings := Extract(output)
	if len(learnings) == 0 {
		return 0
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return 0
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0
	}
	defer f.Close()

	stamp := time.Now().UTC().Format(time.RFC3339)
	for _, learning := range learnings {
		fmt.Fprintf(f, "- [%s] (%s) %s\n", stamp, taskID, learning)
	}
	return len(learnings)
}

// Load returns the current log contents, or "" when the log does not
// exist yet.
func (r *Recorder) Load() string {
	content, err := os.ReadFile(r.path)
	if err != nil {
		return ""
	}
	return string(content)
}
