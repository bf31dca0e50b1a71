package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/RevCBH/ralph/internal/cli/tui"
	"github.com/RevCBH/ralph/internal/config"
	"github.com/RevCBH/ralph/internal/events"
	"github.com/RevCBH/ralph/internal/orchestrator"
)

// factoryFlags carries the flag values for the factory command.
type factoryFlags struct {
	prdFiles        []string
	trunk           string
	maxWorkers      int
	retryLimit      int
	opusSlots       int
	sonnetSlots     int
	haikuSlots      int
	geminiProSlots  int
	geminiFlashSl   int
	codexSlots      int
	cursorSlots     int
	plannerInterval time.Duration
	plannerModel    string
	autoRoute       bool
	escalateOnRetry bool
	cleanup         bool
	specURLs        []string
	category        string
	priority        string
	skipValidation  bool
	dryRun          bool
	noTUI           bool
}

// NewFactoryCmd creates the factory command
func NewFactoryCmd(app *App) *cobra.Command {
	flags := &factoryFlags{}

	cmd := &cobra.Command{
		Use:   "factory",
		Short: "Run the parallel convergent task factory",
		Long: `Factory loads the PRD backlog, routes each task to a provider slot by
complexity, executes tasks in parallel worktrees, and cherry-picks
finished commits onto trunk until the backlog converges.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFactory(cmd, app, flags)
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&flags.prdFiles, "prd", nil, "PRD backlog file (repeatable)")
	f.StringVar(&flags.trunk, "trunk", "", "Trunk branch commits are landed on")
	f.IntVar(&flags.maxWorkers, "max-workers", config.DefaultMaxWorkers, "Maximum concurrent workers")
	f.IntVar(&flags.retryLimit, "retry-limit", config.DefaultRetryLimit, "Retries before a task is dropped")
	f.IntVar(&flags.opusSlots, "opus-slots", 1, "claude:opus concurrency")
	f.IntVar(&flags.sonnetSlots, "sonnet-slots", 2, "claude:sonnet concurrency")
	f.IntVar(&flags.haikuSlots, "haiku-slots", 2, "claude:haiku concurrency")
	f.IntVar(&flags.geminiProSlots, "gemini-pro-slots", 1, "gemini:pro concurrency")
	f.IntVar(&flags.geminiFlashSl, "gemini-flash-slots", 1, "gemini:flash concurrency")
	f.IntVar(&flags.codexSlots, "codex-slots", 1, "codex concurrency")
	f.IntVar(&flags.cursorSlots, "cursor-slots", 1, "cursor concurrency")
	f.DurationVar(&flags.plannerInterval, "planner-interval", config.DefaultPlannerInterval, "Minimum time between planner evaluations")
	f.StringVar(&flags.plannerModel, "planner-model", config.DefaultPlannerModel, "Claude model for planning (opus, sonnet, haiku)")
	f.BoolVar(&flags.autoRoute, "auto-route", true, "Route tasks by complexity score")
	f.BoolVar(&flags.escalateOnRetry, "escalate-on-retry", true, "Raise the tier on each retry")
	f.BoolVar(&flags.cleanup, "cleanup", true, "Remove worker worktrees on shutdown")
	f.StringArrayVar(&flags.specURLs, "spec-url", nil, "Reference specification URL (repeatable)")
	f.StringVar(&flags.category, "category", "", "Only dispatch tasks in this category")
	f.StringVar(&flags.priority, "priority", "", "Only dispatch tasks with this priority")
	f.BoolVar(&flags.skipValidation, "skip-validation", false, "Skip validation gates")
	f.BoolVar(&flags.dryRun, "dry-run", false, "Do not invoke provider CLIs")
	f.BoolVar(&flags.noTUI, "no-tui", false, "Disable the dashboard")

	return cmd
}

func runFactory(cmd *cobra.Command, app *App, flags *factoryFlags) error {
	repoRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	cfg, err := config.LoadConfig(repoRoot)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg, flags)

	bus := events.NewBus()
	defer bus.Close()

	orch, err := orchestrator.New(cfg, bus, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// First signal requests a graceful stop; running providers finish.
	handler := NewSignalHandler(nil)
	handler.OnShutdown(orch.RequestShutdown)
	handler.Start()
	defer handler.Stop()

	useTUI := !cfg.NoTUI && term.IsTerminal(int(os.Stdout.Fd()))

	var program *tea.Program
	var programDone chan struct{}
	if useTUI {
		model := tui.NewModel(cfg.MaxWorkers)
		model.SlotFn = orch.SlotSnapshots
		program = tea.NewProgram(model)
		bridge := tui.NewBridge(program)
		bus.Subscribe(bridge.Handler())

		programDone = make(chan struct{})
		go func() {
			defer close(programDone)
			if _, err := program.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "dashboard error: %v\n", err)
			}
			// Dashboard quit (q or ctrl+c) stops the run too.
			orch.RequestShutdown()
		}()
	} else {
		bus.Subscribe(events.LogHandler(events.LogConfig{
			Writer:         os.Stderr,
			IncludePayload: app.verbose,
		}))
	}

	runErr := orch.Run(ctx)

	if program != nil {
		program.Send(tui.DoneMsg{})
		<-programDone
	}

	fmt.Fprintln(cmd.OutOrStdout(), orch.Summary().String())
	return runErr
}

// applyFlags overrides config values with explicitly-set flags. Flags
// left at their defaults do not clobber .ralph.yml settings.
func applyFlags(cmd *cobra.Command, cfg *config.FactoryConfig, flags *factoryFlags) {
	set := cmd.Flags().Changed

	if set("prd") {
		cfg.PrdFiles = flags.prdFiles
	}
	if set("trunk") {
		cfg.TrunkBranch = flags.trunk
	}
	if set("max-workers") {
		cfg.MaxWorkers = flags.maxWorkers
	}
	if set("retry-limit") {
		cfg.RetryLimit = flags.retryLimit
	}
	if set("opus-slots") {
		cfg.Slots.Opus = flags.opusSlots
	}
	if set("sonnet-slots") {
		cfg.Slots.Sonnet = flags.sonnetSlots
	}
	if set("haiku-slots") {
		cfg.Slots.Haiku = flags.haikuSlots
	}
	if set("gemini-pro-slots") {
		cfg.Slots.GeminiPro = flags.geminiProSlots
	}
	if set("gemini-flash-slots") {
		cfg.Slots.GeminiFlash = flags.geminiFlashSl
	}
	if set("codex-slots") {
		cfg.Slots.Codex = flags.codexSlots
	}
	if set("cursor-slots") {
		cfg.Slots.Cursor = flags.cursorSlots
	}
	if set("planner-interval") {
		cfg.PlannerInterval = flags.plannerInterval
	}
	if set("planner-model") {
		cfg.PlannerModel = flags.plannerModel
	}
	if set("auto-route") {
		cfg.AutoRoute = flags.autoRoute
	}
	if set("escalate-on-retry") {
		cfg.EscalateOnRetry = flags.escalateOnRetry
	}
	if set("cleanup") {
		cfg.Cleanup = flags.cleanup
	}
	if set("spec-url") {
		cfg.SpecURLs = flags.specURLs
	}
	if set("category") {
		cfg.Category = flags.category
	}
	if set("priority") {
		cfg.Priority = flags.priority
	}
	if set("skip-validation") {
		cfg.SkipValidation = flags.skipValidation
	}
	if set("dry-run") {
		cfg.DryRun = flags.dryRun
	}
	if set("no-tui") {
		cfg.NoTUI = flags.noTUI
	}
}
