package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/ralph/internal/prd"
	"github.com/RevCBH/ralph/internal/ratelimit"
)

func hours(h float64) *float64 { return &h }

func TestScoreComplexityHintDominates(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}

	cases := []struct {
		hint string
		want int
	}{
		{"low", 20},
		{"medium", 50},
		{"high", 80},
		{"HIGH", 80},
	}
	for _, tc := range cases {
		item := &prd.Item{
			Complexity:     tc.hint,
			Priority:       "high",
			Description:    string(long),
			EstimatedHours: hours(8),
		}
		assert.Equal(t, tc.want, ScoreComplexity(item), "hint %q ignores all other signals", tc.hint)
	}
}

func TestScoreComplexityAdjustments(t *testing.T) {
	// Baseline 50, short description -10, <=1 criteria -10.
	minimal := &prd.Item{Description: "Fix the thing"}
	assert.Equal(t, 30, ScoreComplexity(minimal))

	// high priority +10, >200 chars +5, 5 criteria +5, 3h +10, judges +10.
	desc := make([]byte, 250)
	for i := range desc {
		desc[i] = 'a'
	}
	loaded := &prd.Item{
		Priority:           "high",
		Description:        string(desc),
		AcceptanceCriteria: []string{"a", "b", "c", "d", "e"},
		EstimatedHours:     hours(3),
		Judges:             []string{"claude"},
	}
	assert.Equal(t, 90, ScoreComplexity(loaded))
}

func TestScoreComplexityKeywordSignals(t *testing.T) {
	complex := &prd.Item{Description: "Redesign the authentication flow for the whole service layer"}
	trivial := &prd.Item{Description: "Fix typo in the settings page copy and padding"}

	assert.Greater(t, ScoreComplexity(complex), ScoreComplexity(trivial))
}

func TestScoreComplexityClamped(t *testing.T) {
	tiny := &prd.Item{
		Priority:       "low",
		Description:    "typo",
		EstimatedHours: hours(0.25),
	}
	score := ScoreComplexity(tiny)
	assert.GreaterOrEqual(t, score, 0)
	assert.LessOrEqual(t, score, 100)
}

func TestScoreToTier(t *testing.T) {
	assert.Equal(t, TierLow, ScoreToTier(0))
	assert.Equal(t, TierLow, ScoreToTier(39))
	assert.Equal(t, TierMedium, ScoreToTier(40))
	assert.Equal(t, TierMedium, ScoreToTier(69))
	assert.Equal(t, TierHigh, ScoreToTier(70))
	assert.Equal(t, TierHigh, ScoreToTier(100))
}

func TestEscalateTier(t *testing.T) {
	assert.Equal(t, TierMedium, EscalateTier(TierLow))
	assert.Equal(t, TierHigh, EscalateTier(TierMedium))
	assert.Equal(t, TierHigh, EscalateTier(TierHigh))
}

func readyItem(item *prd.Item) prd.ReadyItem {
	return prd.ReadyItem{Item: item, File: &prd.File{Path: "tasks.json"}, Category: "core"}
}

func TestBuildFactoryTaskEscalation(t *testing.T) {
	limiter := ratelimit.New(map[string]int{"claude:haiku": 1})
	r := New(limiter, true, true)

	item := &prd.Item{ID: "T-1", Description: "typo", Complexity: "low"}

	tiers := []Tier{}
	for retry := 0; retry <= 3; retry++ {
		task := r.BuildFactoryTask(readyItem(item), retry)
		tiers = append(tiers, task.Tier)
	}
	assert.Equal(t, []Tier{TierLow, TierMedium, TierHigh, TierHigh}, tiers)
}

func TestBuildFactoryTaskScoreRaisedToTierFloor(t *testing.T) {
	limiter := ratelimit.New(map[string]int{"claude:haiku": 1})
	r := New(limiter, true, true)

	item := &prd.Item{ID: "T-1", Description: "typo", Complexity: "low"}

	task := r.BuildFactoryTask(readyItem(item), 2)
	assert.Equal(t, TierHigh, task.Tier)
	assert.Equal(t, 70, task.Score, "score raised to the escalated tier's floor")
}

func TestBuildFactoryTaskNoEscalationWhenDisabled(t *testing.T) {
	limiter := ratelimit.New(map[string]int{"claude:haiku": 1})
	r := New(limiter, false, true)

	item := &prd.Item{ID: "T-1", Description: "typo", Complexity: "low"}
	task := r.BuildFactoryTask(readyItem(item), 3)
	assert.Equal(t, TierLow, task.Tier)
}

func TestBuildFactoryTaskAutoRouteOff(t *testing.T) {
	limiter := ratelimit.New(map[string]int{"claude:sonnet": 1})
	r := New(limiter, false, false)

	item := &prd.Item{ID: "T-1", Description: "anything", Complexity: "high"}
	task := r.BuildFactoryTask(readyItem(item), 0)
	assert.Equal(t, TierMedium, task.Tier)
}

func TestFindAvailableSlotFollowsRouteOrder(t *testing.T) {
	limiter := ratelimit.New(map[string]int{
		"claude:opus":   1,
		"gemini:pro":    1,
		"claude:sonnet": 1,
	})
	r := New(limiter, true, true)

	slot := r.FindAvailableSlot(TierHigh)
	require.NotNil(t, slot)
	assert.Equal(t, "claude:opus", slot.Key())

	require.True(t, limiter.TryAcquire("claude", "opus"))
	slot = r.FindAvailableSlot(TierHigh)
	require.NotNil(t, slot)
	assert.Equal(t, "gemini:pro", slot.Key(), "falls through to the next configured slot")
}

func TestFindAvailableSlotSkipsUnconfigured(t *testing.T) {
	limiter := ratelimit.New(map[string]int{"claude:sonnet": 1})
	r := New(limiter, true, true)

	slot := r.FindAvailableSlot(TierHigh)
	require.NotNil(t, slot)
	assert.Equal(t, "claude:sonnet", slot.Key())
}

func TestFindAvailableSlotCrossTierKeepsLabel(t *testing.T) {
	// Only a low-tier slot is configured; a high-tier request should
	// still get it, labelled high.
	limiter := ratelimit.New(map[string]int{"gemini:flash": 1})
	r := New(limiter, true, true)

	slot := r.FindAvailableSlot(TierHigh)
	require.NotNil(t, slot)
	assert.Equal(t, "gemini:flash", slot.Key())
	assert.Equal(t, TierHigh, slot.Tier, "requested tier label preserved on cross-tier fallback")
}

func TestFindAvailableSlotNilWhenSaturated(t *testing.T) {
	limiter := ratelimit.New(map[string]int{"codex:default": 1})
	r := New(limiter, true, true)

	require.True(t, limiter.TryAcquire("codex", "default"))
	assert.Nil(t, r.FindAvailableSlot(TierMedium))
}

func TestRouteTables(t *testing.T) {
	keys := func(slots []Slot) []string {
		var out []string
		for _, s := range slots {
			out = append(out, s.Key())
		}
		return out
	}

	assert.Equal(t, []string{"claude:opus", "gemini:pro", "claude:sonnet"}, keys(Route(TierHigh)))
	assert.Equal(t, []string{"claude:sonnet", "codex:default", "gemini:pro", "cursor:default"}, keys(Route(TierMedium)))
	assert.Equal(t, []string{"claude:haiku", "gemini:flash", "codex:default"}, keys(Route(TierLow)))
}
