package escalate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// slackMessage is the incoming-webhook payload Slack accepts
type slackMessage struct {
	Text string `json:"text"`
}

// Slack posts notices to a Slack incoming webhook
type Slack struct {
	webhookURL string
	client     *http.Client
}

// NewSlack creates a Slack notifier for an incoming webhook URL
func NewSlack(webhookURL string) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewSlackWithClient creates a Slack notifier with a custom HTTP client
func NewSlackWithClient(webhookURL string, client *http.Client) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		client:     client,
	}
}

// Notify formats the notice as a Slack message and posts it
func (s *Slack) Notify(ctx context.Context, n Notice) error {
	var b strings.Builder

	emoji := ":information_source:"
	switch n.Severity {
	case SeverityCritical:
		emoji = ":rotating_light:"
	case SeverityWarning:
		emoji = ":warning:"
	}

	fmt.Fprintf(&b, "%s *[%s]* %s\n", emoji, n.Severity, n.Title)
	if n.TaskID != "" {
		fmt.Fprintf(&b, "*Task:* %s\n", n.TaskID)
	}
	fmt.Fprintf(&b, "%s\n", n.Message)
	for k, v := range n.Context {
		fmt.Fprintf(&b, "• %s: %s\n", k, v)
	}

	body, err := json.Marshal(slackMessage{Text: b.String()})
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}
	return nil
}

// Name returns "slack"
func (s *Slack) Name() string {
	return "slack"
}
