package planner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// DefaultSpecCharLimit truncates each fetched reference spec.
const DefaultSpecCharLimit = 15000

// SpecFetcher downloads reference specifications and reduces them to
// readable text for the planner prompt. Fetched content is cached per
// URL for the lifetime of the fetcher.
type SpecFetcher struct {
	client    *http.Client
	charLimit int
	cache     map[string]string
}

// NewSpecFetcher creates a fetcher with the default HTTP client and
// character ceiling.
func NewSpecFetcher() *SpecFetcher {
	return &SpecFetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		charLimit: DefaultSpecCharLimit,
		cache:     make(map[string]string),
	}
}

// NewSpecFetcherWithClient creates a fetcher with a custom HTTP client.
func NewSpecFetcherWithClient(client *http.Client, charLimit int) *SpecFetcher {
	if charLimit <= 0 {
		charLimit = DefaultSpecCharLimit
	}
	return &SpecFetcher{client: client, charLimit: charLimit, cache: make(map[string]string)}
}

// Fetch downloads one URL and returns its readable text, truncated to
// the character ceiling. Results are cached.
func (f *SpecFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if cached, ok := f.cache[url]; ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("create spec request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch spec %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch spec %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return "", fmt.Errorf("read spec %s: %w", url, err)
	}

	text := HTMLToText(string(body))
	if len(text) > f.charLimit {
		text = text[:f.charLimit]
	}
	f.cache[url] = text
	return text, nil
}

// FetchAll downloads every URL and concatenates the results with
// source headers. Individual failures are skipped so one dead link
// does not lose the rest.
func (f *SpecFetcher) FetchAll(ctx context.Context, urls []string) string {
	var b strings.Builder
	for _, url := range urls {
		text, err := f.Fetch(ctx, url)
		if err != nil || text == "" {
			continue
		}
		fmt.Fprintf(&b, "--- Source: %s ---\n%s\n\n", url, text)
	}
	return strings.TrimSpace(b.String())
}

var (
	dropTagPattern = regexp.MustCompile(`(?is)<(script|style|nav|footer)\b[^>]*>.*?</\s*(?:script|style|nav|footer)\s*>`)
	blockTagSet    = regexp.MustCompile(`(?i)</?(p|div|br|li|ul|ol|h[1-6]|tr|table|section|article|header|pre|blockquote)\b[^>]*>`)
	anyTag         = regexp.MustCompile(`<[^>]+>`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
	spaceRuns      = regexp.MustCompile(`[ \t]{2,}`)
)

var htmlEntities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&nbsp;", " ",
)

// HTMLToText reduces an HTML page to readable plain text. Non-HTML
// input (markdown, plain text) passes through nearly untouched since
// it contains no tags.
func HTMLToText(html string) string {
	text := dropTagPattern.ReplaceAllString(html, "")
	text = blockTagSet.ReplaceAllString(text, "\n")
	text = anyTag.ReplaceAllString(text, "")
	text = htmlEntities.Replace(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRuns.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
