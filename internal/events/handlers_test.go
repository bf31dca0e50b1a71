package events

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	handler := LogHandler(LogConfig{Writer: &buf})

	handler(NewEvent(TaskCompleted, "T-1").WithWorker(3))

	assert.Equal(t, "[task.completed] T-1 worker=3\n", buf.String())
}

func TestLogHandlerError(t *testing.T) {
	var buf bytes.Buffer
	handler := LogHandler(LogConfig{Writer: &buf})

	e := NewEvent(MergeFailed, "T-2")
	e.Error = "bad revision"
	handler(e)

	assert.Contains(t, buf.String(), `error="bad revision"`)
}

func TestLogHandlerPayloadOptIn(t *testing.T) {
	var quiet, verbose bytes.Buffer

	e := NewEvent(TaskQueued, "T-1").WithPayload(map[string]any{"tier": "high"})
	LogHandler(LogConfig{Writer: &quiet})(e)
	LogHandler(LogConfig{Writer: &verbose, IncludePayload: true})(e)

	assert.NotContains(t, quiet.String(), "tier")
	assert.Contains(t, verbose.String(), "payload=map[tier:high]")
}
