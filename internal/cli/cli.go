// Package cli wires the ralph command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// versionInfo holds build-time version metadata
type versionInfo struct {
	Version string
	Commit  string
	Date    string
}

// App represents the CLI application with all wired dependencies
type App struct {
	rootCmd *cobra.Command

	verbose     bool
	versionInfo versionInfo
}

// New creates a new CLI application
func New() *App {
	app := &App{}
	app.setupRootCmd()
	return app
}

// Execute runs the CLI application
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetVersion sets the version metadata for the version command
func (a *App) SetVersion(version, commit, date string) {
	a.versionInfo = versionInfo{Version: version, Commit: commit, Date: date}
}

// setupRootCmd configures the root Cobra command
func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:   "ralph",
		Short: "Parallel convergent task factory",
		Long: `Ralph drives external coding agents against a PRD backlog in
parallel, each in an isolated git worktree, and lands their commits on
trunk one cherry-pick at a time until the backlog converges.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	a.rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"Verbose output")

	a.rootCmd.AddCommand(NewFactoryCmd(a))
	a.rootCmd.AddCommand(NewSessionsCmd(a))
	a.rootCmd.AddCommand(NewVersionCmd(a))
}
