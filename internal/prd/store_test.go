package prd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePRD(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadObjectForm(t *testing.T) {
	path := writePRD(t, "core.json", `{
		"project": "demo",
		"description": "a demo backlog",
		"custom_field": {"nested": true},
		"items": [
			{"id": "T-1", "description": "first"},
			{"id": "T-2", "description": "second", "status": "completed"}
		]
	}`)

	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Items, 2)
	assert.Equal(t, "T-1", f.Items[0].ID)
	assert.Equal(t, "core", f.Category, "category derived from filename")
}

func TestLoadBareArray(t *testing.T) {
	path := writePRD(t, "tasks.json", `[{"id": "A", "description": "only"}]`)

	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Items, 1)

	require.NoError(t, f.Save())
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte('['), content[0], "bare array stays a bare array on save")
}

func TestLoadCategoryField(t *testing.T) {
	path := writePRD(t, "anything.json", `{"category": "backend", "items": []}`)

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "backend", f.Category, "explicit category field wins over filename")
}

func TestSavePreservesUnknownFieldsAndOrder(t *testing.T) {
	path := writePRD(t, "core.json", `{
		"project": "demo",
		"custom_field": {"nested": [1, 2, 3]},
		"items": [
			{"id": "B", "description": "beta"},
			{"id": "A", "description": "alpha"}
		]
	}`)

	f, err := Load(path)
	require.NoError(t, err)
	f.Items[0].Status = StatusCompleted
	require.NoError(t, f.Save())

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(content, &out))
	assert.JSONEq(t, `{"nested": [1, 2, 3]}`, string(out["custom_field"]), "unknown top-level fields preserved")
	assert.JSONEq(t, `"demo"`, string(out["project"]))

	var meta map[string]string
	require.NoError(t, json.Unmarshal(out["metadata"], &meta))
	assert.NotEmpty(t, meta["updated_at"], "metadata.updated_at stamped on save")

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, reloaded.Items, 2)
	assert.Equal(t, "B", reloaded.Items[0].ID, "item order unchanged")
	assert.Equal(t, StatusCompleted, reloaded.Items[0].Status)
}

func storeWith(t *testing.T, content string) *Store {
	t.Helper()
	path := writePRD(t, "core.json", content)
	s, err := LoadStore([]string{path})
	require.NoError(t, err)
	return s
}

func TestReadyRespectsDependencies(t *testing.T) {
	s := storeWith(t, `{"items": [
		{"id": "T-1", "description": "base", "status": "completed"},
		{"id": "T-2", "description": "depends on done", "dependencies": ["T-1"]},
		{"id": "T-3", "description": "depends on open", "dependencies": ["T-2"]}
	]}`)

	ready := s.Ready(ReadyFilter{})
	require.Len(t, ready, 1)
	assert.Equal(t, "T-2", ready[0].Item.ID, "only items with all deps complete are ready")
}

func TestReadyFilters(t *testing.T) {
	s := storeWith(t, `{"items": [
		{"id": "T-1", "description": "a", "priority": "high", "category": "backend"},
		{"id": "T-2", "description": "b", "priority": "low", "category": "frontend"}
	]}`)

	ready := s.Ready(ReadyFilter{Priority: "high"})
	require.Len(t, ready, 1)
	assert.Equal(t, "T-1", ready[0].Item.ID)

	ready = s.Ready(ReadyFilter{Category: "frontend"})
	require.Len(t, ready, 1)
	assert.Equal(t, "T-2", ready[0].Item.ID)
}

func TestMarkComplete(t *testing.T) {
	s := storeWith(t, `{"items": [{"id": "T-1", "description": "a"}]}`)

	require.NoError(t, s.MarkComplete("T-1"))

	item, _ := s.Find("T-1")
	require.NotNil(t, item)
	assert.Equal(t, StatusCompleted, item.Status)
	require.NotNil(t, item.Passes)
	assert.True(t, *item.Passes)
	assert.NotEmpty(t, item.CompletedAt)

	// Persisted, not just in memory.
	reloaded, err := Load(s.Files[0].Path)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, reloaded.Items[0].Status)
}

func TestAppendSkipsDuplicateIDs(t *testing.T) {
	s := storeWith(t, `{"items": [{"id": "T-1", "description": "a"}]}`)

	added, err := s.Append([]*Item{
		{ID: "T-1", Description: "duplicate"},
		{ID: "PLAN-001", Description: "new work"},
	})
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, "PLAN-001", added[0].ID)
	assert.Equal(t, StatusPending, added[0].Status, "injected items default to pending")
	assert.Len(t, s.AllItems(), 2)
}

func TestSetStatusUnknownItem(t *testing.T) {
	s := storeWith(t, `{"items": []}`)
	assert.Error(t, s.SetStatus("missing", StatusPending))
}
