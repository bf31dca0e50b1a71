package router

import (
	"strings"

	"github.com/RevCBH/ralph/internal/prd"
	"github.com/RevCBH/ralph/internal/ratelimit"
)

// Tier is the complexity band of a task.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Supported providers.
const (
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
	ProviderCodex  = "codex"
	ProviderCursor = "cursor"
)

// Slot is a (provider, model) pair carrying the tier it was selected
// for. Freely copyable; the provider:model pair is the concurrency key.
type Slot struct {
	Provider string
	Model    string
	Tier     Tier
}

// Key returns the slot's concurrency key.
func (s Slot) Key() string {
	return ratelimit.Key(s.Provider, s.Model)
}

// FactoryTask wraps a backlog item with routing metadata. Exclusively
// owned by whichever collection holds it: queue, in-progress map, or an
// executing worker.
type FactoryTask struct {
	Item       *prd.Item
	PrdPath    string
	Category   string
	Score      int
	Tier       Tier
	RetryCount int

	// LastError summarizes the most recent failed attempt, "" on the
	// first dispatch. Fed back into the retry prompt.
	LastError string

	AssignedSlot   *Slot
	AssignedWorker *int
}

// routingTable lists the primary slot and fallbacks per tier, in order.
var routingTable = map[Tier][]Slot{
	TierHigh: {
		{Provider: ProviderClaude, Model: "opus", Tier: TierHigh},
		{Provider: ProviderGemini, Model: "pro", Tier: TierHigh},
		{Provider: ProviderClaude, Model: "sonnet", Tier: TierHigh},
	},
	TierMedium: {
		{Provider: ProviderClaude, Model: "sonnet", Tier: TierMedium},
		{Provider: ProviderCodex, Model: "default", Tier: TierMedium},
		{Provider: ProviderGemini, Model: "pro", Tier: TierMedium},
		{Provider: ProviderCursor, Model: "default", Tier: TierMedium},
	},
	TierLow: {
		{Provider: ProviderClaude, Model: "haiku", Tier: TierLow},
		{Provider: ProviderGemini, Model: "flash", Tier: TierLow},
		{Provider: ProviderCodex, Model: "default", Tier: TierLow},
	},
}

// complexSignals push the score up when present in description+name.
var complexSignals = []string{
	"refactor", "migration", "architecture", "redesign", "rewrite",
	"security", "authentication", "authorization", "performance",
	"database", "schema", "integration", "api design", "state management",
}

// trivialSignals pull the score down.
var trivialSignals = []string{
	"typo", "tooltip", "color", "padding", "margin", "spacing",
	"rename", "comment", "documentation", "readme", "copy", "icon",
	"label", "text", "string", "css", "style",
}

// ScoreComplexity scores an item 0-100. Pure function: the same item
// always yields the same score. A manual complexity hint dominates.
func ScoreComplexity(item *prd.Item) int {
	switch strings.ToLower(item.Complexity) {
	case "low":
		return 20
	case "medium":
		return 50
	case "high":
		return 80
	}

	score := 50

	switch item.Priority {
	case "high":
		score += 10
	case "low":
		score -= 10
	}

	descLen := len(item.Description)
	switch {
	case descLen > 500:
		score += 15
	case descLen > 200:
		score += 5
	case descLen < 50:
		score -= 10
	}

	criteria := len(item.AcceptanceCriteria) + len(item.Steps)
	switch {
	case criteria > 8:
		score += 15
	case criteria > 4:
		score += 5
	case criteria <= 1:
		score -= 10
	}

	if item.EstimatedHours != nil {
		hours := *item.EstimatedHours
		switch {
		case hours >= 4:
			score += 20
		case hours >= 2:
			score += 10
		case hours < 0.5:
			score -= 15
		}
	}

	if len(item.Judges) > 0 {
		score += 10
	}

	text := strings.ToLower(item.Description + " " + item.Name)
	if containsAny(text, complexSignals) {
		score += 8
	}
	if containsAny(text, trivialSignals) {
		score -= 8
	}

	if len(item.Dependencies) > 2 {
		score += 10
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func containsAny(text string, signals []string) bool {
	for _, signal := range signals {
		if strings.Contains(text, signal) {
			return true
		}
	}
	return false
}

// ScoreToTier maps a complexity score to a tier.
func ScoreToTier(score int) Tier {
	switch {
	case score < 40:
		return TierLow
	case score < 70:
		return TierMedium
	default:
		return TierHigh
	}
}

// EscalateTier raises a tier one band; high stays high.
func EscalateTier(tier Tier) Tier {
	switch tier {
	case TierLow:
		return TierMedium
	case TierMedium:
		return TierHigh
	default:
		return TierHigh
	}
}

// tierFloor is the lowest score that maps to the tier.
func tierFloor(tier Tier) int {
	switch tier {
	case TierHigh:
		return 70
	case TierMedium:
		return 40
	default:
		return 0
	}
}

// Router builds FactoryTasks and resolves slots against the limiter.
type Router struct {
	limiter         *ratelimit.Limiter
	escalateOnRetry bool
	autoRoute       bool
}

// New creates a router backed by the given limiter. With autoRoute off
// every task starts in the medium tier regardless of its score.
func New(limiter *ratelimit.Limiter, escalateOnRetry, autoRoute bool) *Router {
	return &Router{limiter: limiter, escalateOnRetry: escalateOnRetry, autoRoute: autoRoute}
}

// BuildFactoryTask scores and tiers an item. With escalation enabled the
// tier is raised once per retry; when that lifts the tier above the raw
// score's band, the score is raised to the tier floor so diagnostics
// stay consistent.
func (r *Router) BuildFactoryTask(ready prd.ReadyItem, retryCount int) *FactoryTask {
	score := ScoreComplexity(ready.Item)
	tier := ScoreToTier(score)
	if !r.autoRoute {
		tier = TierMedium
	}

	if r.escalateOnRetry {
		for i := 0; i < retryCount; i++ {
			tier = EscalateTier(tier)
		}
	}
	if floor := tierFloor(tier); score < floor {
		score = floor
	}

	return &FactoryTask{
		Item:       ready.Item,
		PrdPath:    ready.File.Path,
		Category:   ready.Category,
		Score:      score,
		Tier:       tier,
		RetryCount: retryCount,
	}
}

// FindAvailableSlot returns the first configured, currently acquirable
// slot for the tier. When the tier's whole route is saturated the other
// tiers are scanned so work is never stranded; the returned slot keeps
// the requested tier label. Returns nil when nothing is acquirable.
func (r *Router) FindAvailableSlot(tier Tier) *Slot {
	if slot := r.scanTier(tier, tier); slot != nil {
		return slot
	}
	for _, other := range []Tier{TierHigh, TierMedium, TierLow} {
		if other == tier {
			continue
		}
		if slot := r.scanTier(other, tier); slot != nil {
			return slot
		}
	}
	return nil
}

func (r *Router) scanTier(routeTier, labelTier Tier) *Slot {
	for _, candidate := range routingTable[routeTier] {
		if !r.limiter.IsConfigured(candidate.Provider, candidate.Model) {
			continue
		}
		if !r.limiter.CanAcquire(candidate.Provider, candidate.Model) {
			continue
		}
		slot := candidate
		slot.Tier = labelTier
		return &slot
	}
	return nil
}

// Route returns the ordered slot candidates for a tier. Exposed for the
// dashboard and tests.
func Route(tier Tier) []Slot {
	route := routingTable[tier]
	out := make([]Slot, len(route))
	copy(out, route)
	return out
}
