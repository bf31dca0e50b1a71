package prd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// File is one loaded PRD file. Unrecognised top-level fields are kept
// in extra and written back byte-for-byte.
type File struct {
	Path     string
	Category string
	Items    []*Item

	extra     map[string]json.RawMessage
	bareArray bool
}

// Load reads a PRD file. Both the object form ({project, description,
// metadata, items}) and a bare item array are accepted.
func Load(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read PRD %s: %w", path, err)
	}

	f := &File{
		Path:  path,
		extra: make(map[string]json.RawMessage),
	}

	trimmed := bytes.TrimSpace(content)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		f.bareArray = true
		if err := json.Unmarshal(trimmed, &f.Items); err != nil {
			return nil, fmt.Errorf("parse PRD %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(trimmed, &f.extra); err != nil {
			return nil, fmt.Errorf("parse PRD %s: %w", path, err)
		}
		if itemsRaw, ok := f.extra["items"]; ok {
			if err := json.Unmarshal(itemsRaw, &f.Items); err != nil {
				return nil, fmt.Errorf("parse PRD items %s: %w", path, err)
			}
			delete(f.extra, "items")
		}
	}

	f.Category = f.deriveCategory()
	return f, nil
}

func (f *File) deriveCategory() string {
	if raw, ok := f.extra["category"]; ok {
		var cat string
		if err := json.Unmarshal(raw, &cat); err == nil && cat != "" {
			return cat
		}
	}
	base := filepath.Base(f.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Save writes the file back atomically (write-to-temp + rename). Item
// order is preserved; metadata.updated_at is stamped on every write.
func (f *File) Save() error {
	var payload []byte
	var err error

	if f.bareArray {
		payload, err = json.MarshalIndent(f.Items, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal PRD items: %w", err)
		}
	} else {
		out := make(map[string]json.RawMessage, len(f.extra)+1)
		for k, v := range f.extra {
			out[k] = v
		}

		itemsRaw, err := json.MarshalIndent(f.Items, "  ", "  ")
		if err != nil {
			return fmt.Errorf("marshal PRD items: %w", err)
		}
		out["items"] = itemsRaw

		metadata := map[string]json.RawMessage{}
		if raw, ok := out["metadata"]; ok {
			_ = json.Unmarshal(raw, &metadata)
		}
		stamp, _ := json.Marshal(time.Now().UTC().Format(time.RFC3339))
		metadata["updated_at"] = stamp
		metaRaw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal PRD metadata: %w", err)
		}
		out["metadata"] = metaRaw

		payload, err = json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal PRD: %w", err)
		}
	}

	tmpPath := f.Path + ".tmp"
	if err := os.WriteFile(tmpPath, append(payload, '\n'), 0644); err != nil {
		return fmt.Errorf("write temp PRD file: %w", err)
	}
	if err := os.Rename(tmpPath, f.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp PRD file: %w", err)
	}
	return nil
}

// Store is the set of loaded PRD files the factory operates on.
type Store struct {
	Files []*File
}

// LoadStore loads all given PRD files.
func LoadStore(paths []string) (*Store, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no PRD files configured")
	}
	s := &Store{}
	for _, path := range paths {
		f, err := Load(path)
		if err != nil {
			return nil, err
		}
		s.Files = append(s.Files, f)
	}
	return s, nil
}

// Find returns the item with the given ID and its containing file.
func (s *Store) Find(id string) (*Item, *File) {
	for _, f := range s.Files {
		for _, it := range f.Items {
			if it.ID == id {
				return it, f
			}
		}
	}
	return nil, nil
}

// AllItems returns every item across all loaded files, in file order.
func (s *Store) AllItems() []*Item {
	var items []*Item
	for _, f := range s.Files {
		items = append(items, f.Items...)
	}
	return items
}

// ReadyFilter narrows the ready set to a category and/or priority.
type ReadyFilter struct {
	Category string
	Priority string
}

// Ready returns items that are pending, not complete, and whose
// dependencies all resolve to complete items somewhere in the store.
// The containing file's category is returned alongside each item.
type ReadyItem struct {
	Item     *Item
	File     *File
	Category string
}

// Ready computes the dispatchable items under the filter.
func (s *Store) Ready(filter ReadyFilter) []ReadyItem {
	complete := make(map[string]bool)
	for _, it := range s.AllItems() {
		if it.IsComplete() {
			complete[it.ID] = true
		}
	}

	var ready []ReadyItem
	for _, f := range s.Files {
		for _, it := range f.Items {
			if !it.IsPending() || it.IsComplete() {
				continue
			}
			category := it.Category
			if category == "" {
				category = f.Category
			}
			if filter.Category != "" && category != filter.Category {
				continue
			}
			if filter.Priority != "" && it.Priority != filter.Priority {
				continue
			}
			depsMet := true
			for _, dep := range it.Dependencies {
				if !complete[dep] {
					depsMet = false
					break
				}
			}
			if !depsMet {
				continue
			}
			ready = append(ready, ReadyItem{Item: it, File: f, Category: category})
		}
	}
	return ready
}

// SetStatus updates an item's status and persists the containing file.
func (s *Store) SetStatus(id, status string) error {
	it, f := s.Find(id)
	if it == nil {
		return fmt.Errorf("item %s not found in loaded PRD files", id)
	}
	it.Status = status
	return f.Save()
}

// MarkComplete marks an item completed with a completion timestamp and
// persists the containing file.
func (s *Store) MarkComplete(id string) error {
	it, f := s.Find(id)
	if it == nil {
		return fmt.Errorf("item %s not found in loaded PRD files", id)
	}
	it.Status = StatusCompleted
	passes := true
	it.Passes = &passes
	it.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	return f.Save()
}

// Append adds planner-injected items to the first loaded file and
// persists it. Items with IDs already present anywhere in the store are
// skipped; the survivors are returned.
func (s *Store) Append(items []*Item) ([]*Item, error) {
	if len(s.Files) == 0 {
		return nil, fmt.Errorf("no PRD files loaded")
	}

	var added []*Item
	for _, it := range items {
		if existing, _ := s.Find(it.ID); existing != nil {
			continue
		}
		if it.Status == "" {
			it.Status = StatusPending
		}
		s.Files[0].Items = append(s.Files[0].Items, it)
		added = append(added, it)
	}

	if len(added) == 0 {
		return nil, nil
	}
	if err := s.Files[0].Save(); err != nil {
		return nil, err
	}
	return added, nil
}
