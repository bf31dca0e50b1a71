package prd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(v bool) *bool { return &v }

func TestIsComplete(t *testing.T) {
	cases := []struct {
		name string
		item Item
		want bool
	}{
		{"completed status", Item{Status: StatusCompleted}, true},
		{"passes true", Item{Status: StatusPending, Passes: boolPtr(true)}, true},
		{"passes true without status", Item{Passes: boolPtr(true)}, true},
		{"passes false", Item{Passes: boolPtr(false)}, false},
		{"pending", Item{Status: StatusPending}, false},
		{"in progress", Item{Status: StatusInProgress}, false},
		{"empty", Item{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.item.IsComplete())
		})
	}
}

func TestIsPending(t *testing.T) {
	cases := []struct {
		name string
		item Item
		want bool
	}{
		{"passes false dominates completed status", Item{Status: StatusCompleted, Passes: boolPtr(false)}, true},
		{"passes true dominates pending status", Item{Status: StatusPending, Passes: boolPtr(true)}, false},
		{"pending", Item{Status: StatusPending}, true},
		{"in progress still pending", Item{Status: StatusInProgress}, true},
		{"unset status", Item{}, true},
		{"completed", Item{Status: StatusCompleted}, false},
		{"unknown status", Item{Status: "archived"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.item.IsPending())
		})
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Add login", (&Item{ID: "T-1", Name: "Add login"}).DisplayName())
	assert.Equal(t, "T-1", (&Item{ID: "T-1"}).DisplayName())
	assert.Equal(t, "T-1", (&Item{ID: "T-1", Name: "   "}).DisplayName())
}

func TestSkipsValidation(t *testing.T) {
	assert.False(t, (&Item{}).SkipsValidation())
	assert.False(t, (&Item{Validation: &ValidationOverride{}}).SkipsValidation())
	assert.True(t, (&Item{Validation: &ValidationOverride{Skip: true}}).SkipsValidation())
}
