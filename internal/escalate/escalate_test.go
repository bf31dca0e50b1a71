package escalate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalNotify(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminalWriter(&buf)

	err := term.Notify(context.Background(), Notice{
		Severity: SeverityCritical,
		TaskID:   "T-7",
		Title:    "Task dropped",
		Message:  "exhausted retries",
		Context:  map[string]string{"retries": "3"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "[critical] Task dropped")
	assert.Contains(t, out, "Task: T-7")
	assert.Contains(t, out, "exhausted retries")
	assert.Contains(t, out, "retries: 3")
}

func TestTerminalRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := NewTerminalWriter(&buf).Notify(ctx, Notice{Title: "x"})
	assert.Error(t, err)
	assert.Empty(t, buf.String())
}

func TestWebhookNotify(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	wh := NewWebhookWithClient(srv.URL, srv.Client())
	err := wh.Notify(context.Background(), Notice{
		Severity: SeverityWarning,
		TaskID:   "T-1",
		Title:    "merge conflict",
		Message:  "manual resolution needed",
	})
	require.NoError(t, err)

	assert.Equal(t, "warning", got.Severity)
	assert.Equal(t, "T-1", got.Task)
	assert.Equal(t, "merge conflict", got.Title)
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookWithClient(srv.URL, srv.Client()).Notify(context.Background(), Notice{Title: "x"})
	assert.ErrorContains(t, err, "502")
}

func TestSlackNotifyFormatsMessage(t *testing.T) {
	var got slackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	s := NewSlackWithClient(srv.URL, srv.Client())
	err := s.Notify(context.Background(), Notice{
		Severity: SeverityCritical,
		TaskID:   "T-2",
		Title:    "factory stuck",
		Message:  "all providers in backoff",
	})
	require.NoError(t, err)

	assert.Contains(t, got.Text, ":rotating_light:")
	assert.Contains(t, got.Text, "*[critical]* factory stuck")
	assert.Contains(t, got.Text, "*Task:* T-2")
}

type countingNotifier struct {
	calls atomic.Int32
	err   error
}

func (c *countingNotifier) Notify(ctx context.Context, n Notice) error {
	c.calls.Add(1)
	return c.err
}

func (c *countingNotifier) Name() string { return "counting" }

func TestMultiDeliversToAll(t *testing.T) {
	a := &countingNotifier{}
	b := &countingNotifier{err: errors.New("backend down")}
	c := &countingNotifier{}

	err := NewMulti(a, b, c).Notify(context.Background(), Notice{Title: "x"})

	assert.ErrorContains(t, err, "backend down")
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, int32(1), b.calls.Load())
	assert.Equal(t, int32(1), c.calls.Load(), "error in one backend does not skip the rest")
}

func TestMultiEmpty(t *testing.T) {
	assert.NoError(t, NewMulti().Notify(context.Background(), Notice{Title: "x"}))
}

func TestFromConfig(t *testing.T) {
	assert.Equal(t, "terminal", FromConfig(Config{}).Name(), "nothing configured falls back to terminal")
	assert.Equal(t, "terminal", FromConfig(Config{Terminal: true}).Name())
	assert.Equal(t, "webhook", FromConfig(Config{WebhookURL: "http://example.com/hook"}).Name())
	assert.Equal(t, "slack", FromConfig(Config{SlackWebhook: "http://example.com/slack"}).Name())
	assert.Equal(t, "multi", FromConfig(Config{Terminal: true, SlackWebhook: "http://example.com/slack"}).Name())
}
