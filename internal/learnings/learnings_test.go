package learnings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	output := `Did some work.
<learning>The build cache lives under .cache/go-build</learning>
more text
<learning>
  API tokens must be base64 encoded
</learning>
<learning>   </learning>`

	got := Extract(output)
	require.Len(t, got, 2)
	assert.Equal(t, "The build cache lives under .cache/go-build", got[0])
	assert.Equal(t, "API tokens must be base64 encoded", got[1])
}

func TestExtractNone(t *testing.T) {
	assert.Nil(t, Extract("plain output, nothing to remember"))
	assert.Nil(t, Extract(""))
}

func TestRecordAppends(t *testing.T) {
	r := NewRecorder(t.TempDir())

	n := r.Record("T-1", "<learning>first fact</learning>")
	assert.Equal(t, 1, n)

	n = r.Record("T-2", "<learning>second fact</learning><learning>third fact</learning>")
	assert.Equal(t, 2, n)

	content := r.Load()
	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "(T-1) first fact")
	assert.Contains(t, lines[1], "(T-2) second fact")
	assert.Contains(t, lines[2], "(T-2) third fact")
}

func TestRecordNothingToWrite(t *testing.T) {
	r := NewRecorder(t.TempDir())
	assert.Equal(t, 0, r.Record("T-1", "no tags here"))
	assert.Empty(t, r.Load())
}

func TestLoadMissingFile(t *testing.T) {
	r := NewRecorder(t.TempDir())
	assert.Empty(t, r.Load())
}
