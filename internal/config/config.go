package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// SlotConfig holds per provider:model concurrency capacities. Zero
// capacity leaves the slot unconfigured and unroutable.
type SlotConfig struct {
	Opus        int `yaml:"opus"`
	Sonnet      int `yaml:"sonnet"`
	Haiku       int `yaml:"haiku"`
	GeminiPro   int `yaml:"gemini_pro"`
	GeminiFlash int `yaml:"gemini_flash"`
	Codex       int `yaml:"codex"`
	Cursor      int `yaml:"cursor"`
}

// TokenLimits caps provider output tokens per Claude model family.
// Non-Claude providers use the Sonnet value as the generic default.
type TokenLimits struct {
	Opus   int `yaml:"opus"`
	Sonnet int `yaml:"sonnet"`
	Haiku  int `yaml:"haiku"`
}

// GateConfig configures the validation gate runner.
type GateConfig struct {
	// Commands are the default gate commands run in the worktree
	Commands []string `yaml:"commands"`

	// PerCategory overrides the command list for a PRD category
	PerCategory map[string][]string `yaml:"per_category"`

	// Timeout bounds a single gate command
	Timeout time.Duration `yaml:"timeout"`

	// FailFast stops at the first failing gate
	FailFast bool `yaml:"fail_fast"`
}

// NotifyConfig configures the notifier transports.
type NotifyConfig struct {
	Terminal     bool   `yaml:"terminal"`
	WebhookURL   string `yaml:"webhook_url"`
	SlackWebhook string `yaml:"slack_webhook"`
}

// FactoryConfig holds all configuration for a factory run.
// It is immutable after creation via LoadConfig().
type FactoryConfig struct {
	// RepoRoot is the main repository path (set at load time, not yaml)
	RepoRoot string `yaml:"-"`

	// TrunkBranch is the integration branch commits are cherry-picked onto
	TrunkBranch string `yaml:"trunk_branch"`

	// PrdFiles are the backlog files the factory consumes
	PrdFiles []string `yaml:"prd_files"`

	// MaxWorkers bounds total concurrent workers
	MaxWorkers int `yaml:"max_workers"`

	// RetryLimit is the per-task retry ceiling before the task is dropped
	RetryLimit int `yaml:"retry_limit"`

	Slots SlotConfig `yaml:"slots"`

	// PlannerInterval is the minimum wall time between planner evaluations
	PlannerInterval time.Duration `yaml:"planner_interval"`

	// PlannerThreshold triggers a refill when pending work drops below it
	PlannerThreshold int `yaml:"planner_threshold"`

	// PlannerModel is the slot model used for planning (default: opus)
	PlannerModel string `yaml:"planner_model"`

	// AutoRoute enables complexity routing; off routes everything medium
	AutoRoute bool `yaml:"auto_route"`

	// EscalateOnRetry raises the tier on each retry
	EscalateOnRetry bool `yaml:"escalate_on_retry"`

	// Cleanup removes worker worktrees at shutdown
	Cleanup bool `yaml:"cleanup"`

	// SpecURLs are reference specifications fetched for the planner
	SpecURLs []string `yaml:"spec_urls"`

	// Category restricts dispatch to one PRD category when set
	Category string `yaml:"category"`

	// Priority restricts dispatch to one priority when set
	Priority string `yaml:"priority"`

	// SkipValidation disables the validation gates globally
	SkipValidation bool `yaml:"skip_validation"`

	// DryRun makes providers return synthetic completions
	DryRun bool `yaml:"dry_run"`

	// ProviderTimeout bounds each provider invocation
	ProviderTimeout time.Duration `yaml:"provider_timeout"`

	TokenLimits TokenLimits  `yaml:"token_limits"`
	Gates       GateConfig   `yaml:"gates"`
	Notify      NotifyConfig `yaml:"notify"`

	// SessionDir is where session logs are stored
	SessionDir string `yaml:"session_dir"`

	// NoTUI disables the dashboard even on a TTY
	NoTUI bool `yaml:"no_tui"`
}

// ConfigFileName is the factory configuration file looked up in the
// repository root.
const ConfigFileName = ".ralph.yml"

// LoadConfig reads .ralph.yml from repoRoot if present and applies
// defaults for anything unset. A missing file yields pure defaults.
func LoadConfig(repoRoot string) (*FactoryConfig, error) {
	cfg := DefaultConfig()
	cfg.RepoRoot = repoRoot

	path := filepath.Join(repoRoot, ConfigFileName)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.RepoRoot = repoRoot
	applyFallbacks(cfg)
	return cfg, nil
}

// applyFallbacks restores defaults for fields yaml zeroed out.
func applyFallbacks(cfg *FactoryConfig) {
	def := DefaultConfig()
	if cfg.TrunkBranch == "" {
		cfg.TrunkBranch = def.TrunkBranch
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = def.MaxWorkers
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = def.RetryLimit
	}
	if cfg.PlannerInterval <= 0 {
		cfg.PlannerInterval = def.PlannerInterval
	}
	if cfg.PlannerThreshold <= 0 {
		cfg.PlannerThreshold = def.PlannerThreshold
	}
	if cfg.PlannerModel == "" {
		cfg.PlannerModel = def.PlannerModel
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = def.ProviderTimeout
	}
	if cfg.TokenLimits.Opus <= 0 {
		cfg.TokenLimits.Opus = def.TokenLimits.Opus
	}
	if cfg.TokenLimits.Sonnet <= 0 {
		cfg.TokenLimits.Sonnet = def.TokenLimits.Sonnet
	}
	if cfg.TokenLimits.Haiku <= 0 {
		cfg.TokenLimits.Haiku = def.TokenLimits.Haiku
	}
	if cfg.Gates.Timeout <= 0 {
		cfg.Gates.Timeout = def.Gates.Timeout
	}
	if cfg.SessionDir == "" {
		cfg.SessionDir = def.SessionDir
	}
}

// SlotCapacities converts the slot config to limiter keys.
func (c *FactoryConfig) SlotCapacities() map[string]int {
	return map[string]int{
		"claude:opus":    c.Slots.Opus,
		"claude:sonnet":  c.Slots.Sonnet,
		"claude:haiku":   c.Slots.Haiku,
		"gemini:pro":     c.Slots.GeminiPro,
		"gemini:flash":   c.Slots.GeminiFlash,
		"codex:default":  c.Slots.Codex,
		"cursor:default": c.Slots.Cursor,
	}
}

// TokenLimitFor returns the output token cap for a provider/model pair.
// Claude models map to their family limit; everything else uses the
// sonnet limit as the generic default.
func (c *FactoryConfig) TokenLimitFor(providerName, model string) int {
	if providerName == "claude" {
		switch model {
		case "opus":
			return c.TokenLimits.Opus
		case "haiku":
			return c.TokenLimits.Haiku
		}
	}
	return c.TokenLimits.Sonnet
}

// GatesFor returns the gate command list for a category.
func (c *FactoryConfig) GatesFor(category string) []string {
	if cmds, ok := c.Gates.PerCategory[category]; ok {
		return cmds
	}
	return c.Gates.Commands
}
