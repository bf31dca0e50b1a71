package planner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLToText(t *testing.T) {
	html := `<html><head><script>var x = 1;</script><style>body{}</style></head>
<body><nav>menu</nav>
<h1>Spec Title</h1>
<p>First &amp; second &lt;requirement&gt;.</p>
<ul><li>item one</li><li>item two</li></ul>
<footer>copyright</footer></body></html>`

	text := HTMLToText(html)

	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "menu")
	assert.NotContains(t, text, "copyright")
	assert.Contains(t, text, "Spec Title")
	assert.Contains(t, text, "First & second <requirement>.")
	assert.Contains(t, text, "item one")
}

func TestHTMLToTextPlainPassthrough(t *testing.T) {
	plain := "# Markdown spec\n\n- requirement one\n- requirement two"
	assert.Equal(t, plain, HTMLToText(plain))
}

func TestFetchTruncatesAndCaches(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(strings.Repeat("a", 500)))
	}))
	defer srv.Close()

	f := NewSpecFetcherWithClient(srv.Client(), 100)

	text, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, text, 100)

	_, err = f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, hits, "second fetch served from cache")
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewSpecFetcherWithClient(srv.Client(), 0)
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestFetchAllSkipsDeadLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/dead" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("live content"))
	}))
	defer srv.Close()

	f := NewSpecFetcherWithClient(srv.Client(), 0)
	combined := f.FetchAll(context.Background(), []string{srv.URL + "/dead", srv.URL + "/live"})

	assert.Contains(t, combined, "live content")
	assert.Contains(t, combined, "--- Source:")
	assert.NotContains(t, combined, "/dead")
}
