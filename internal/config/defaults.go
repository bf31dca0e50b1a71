package config

import (
	"path/filepath"
	"time"
)

// Default configuration values
const (
	// DefaultTrunkBranch is the integration branch when none is configured
	DefaultTrunkBranch = "main"

	// DefaultMaxWorkers is the worker pool size
	DefaultMaxWorkers = 4

	// DefaultRetryLimit is the per-task retry ceiling
	DefaultRetryLimit = 3

	// DefaultPlannerInterval is the minimum time between planner runs
	DefaultPlannerInterval = 5 * time.Minute

	// DefaultPlannerThreshold refills the backlog when pending work
	// drops below this count
	DefaultPlannerThreshold = 3

	// DefaultPlannerModel is the Claude model used for planning
	DefaultPlannerModel = "opus"

	// DefaultProviderTimeout bounds a single provider invocation
	DefaultProviderTimeout = 30 * time.Minute

	// DefaultGateTimeout bounds a single validation gate command
	DefaultGateTimeout = 10 * time.Minute

	// DefaultSessionDir holds session databases, relative to repo root
	DefaultSessionDir = ".ralph/sessions"
)

// Default per-family output token caps
const (
	DefaultOpusTokens   = 32000
	DefaultSonnetTokens = 64000
	DefaultHaikuTokens  = 32000
)

// DefaultConfig returns a config with all defaults applied. The default
// slot layout gives Claude the bulk of capacity with one slot each for
// the fallback providers.
func DefaultConfig() *FactoryConfig {
	return &FactoryConfig{
		TrunkBranch: DefaultTrunkBranch,
		MaxWorkers:  DefaultMaxWorkers,
		RetryLimit:  DefaultRetryLimit,
		Slots: SlotConfig{
			Opus:        1,
			Sonnet:      2,
			Haiku:       2,
			GeminiPro:   1,
			GeminiFlash: 1,
			Codex:       1,
			Cursor:      1,
		},
		PlannerInterval:  DefaultPlannerInterval,
		PlannerThreshold: DefaultPlannerThreshold,
		PlannerModel:     DefaultPlannerModel,
		AutoRoute:        true,
		EscalateOnRetry:  true,
		Cleanup:          true,
		ProviderTimeout:  DefaultProviderTimeout,
		TokenLimits: TokenLimits{
			Opus:   DefaultOpusTokens,
			Sonnet: DefaultSonnetTokens,
			Haiku:  DefaultHaikuTokens,
		},
		Gates: GateConfig{
			Timeout:  DefaultGateTimeout,
			FailFast: true,
		},
		Notify: NotifyConfig{
			Terminal: true,
		},
		SessionDir: DefaultSessionDir,
	}
}

// SessionDBPath returns the absolute path of the session database.
func (c *FactoryConfig) SessionDBPath() string {
	dir := c.SessionDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(c.RepoRoot, dir)
	}
	return filepath.Join(dir, "sessions.db")
}
