package provider

import (
	"bufio"
	"encoding/json"
	"strings"
)

// streamEvent is one line of Claude's line-delimited JSON output.
type streamEvent struct {
	Type    string        `json:"type"`
	Subtype string        `json:"subtype,omitempty"`
	Message *messageEvent `json:"message,omitempty"`
	Result  string        `json:"result,omitempty"`
	IsError bool          `json:"is_error,omitempty"`
}

// messageEvent carries assistant message content blocks.
type messageEvent struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

// contentBlock is a single block inside an assistant message.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// claudeStream is the distilled view of a full stream.
type claudeStream struct {
	// finalText is the last assistant message text, or the result
	// payload when the stream ends with a result event
	finalText string

	// summary is the result event payload when present
	summary string
}

// parseClaudeStream walks the JSON lines and extracts the final
// assistant text. Non-JSON lines are tolerated: some CLI builds mix
// plain text diagnostics into stdout.
func parseClaudeStream(stdout string) claudeStream {
	var out claudeStream
	var lastAssistant strings.Builder

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}

		switch event.Type {
		case "assistant":
			if event.Message == nil {
				continue
			}
			lastAssistant.Reset()
			for _, block := range event.Message.Content {
				if block.Type == "text" && block.Text != "" {
					lastAssistant.WriteString(block.Text)
				}
			}
		case "result":
			if event.Result != "" {
				out.summary = event.Result
			}
		}
	}

	out.finalText = lastAssistant.String()
	if out.finalText == "" {
		out.finalText = out.summary
	}
	return out
}
