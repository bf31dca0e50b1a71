package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/RevCBH/ralph/internal/config"
	"github.com/RevCBH/ralph/internal/session"
)

// NewSessionsCmd creates the sessions command group
func NewSessionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect past factory runs",
	}
	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	return cmd
}

func openSessions() (*session.Manager, error) {
	repoRoot, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	cfg, err := config.LoadConfig(repoRoot)
	if err != nil {
		return nil, err
	}
	return session.Open(cfg.SessionDBPath())
}

func newSessionsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent factory sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openSessions()
			if err != nil {
				return err
			}
			defer mgr.Close()

			records, err := mgr.ListSessions(limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDONE\tFAILED\tDROPPED\tMERGED")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
					rec.ID, rec.Status, rec.StartedAt.Local().Format("2006-01-02 15:04"),
					rec.Summary.Completed, rec.Summary.Failed, rec.Summary.Dropped, rec.Summary.Merged)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum sessions to list")
	return cmd
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show the task runs of one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openSessions()
			if err != nil {
				return err
			}
			defer mgr.Close()

			rec, err := mgr.GetSession(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s (%s), started %s\n\n",
				rec.ID, rec.Status, rec.StartedAt.Local().Format("2006-01-02 15:04:05"))

			runs, err := mgr.TaskRuns(rec.ID)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No task runs recorded")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TASK\tSLOT\tTIER\tWORKER\tSTATUS\tERROR")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s:%s\t%s\t%d\t%s\t%s\n",
					run.TaskID, run.Provider, run.Model, run.Tier, run.Worker, run.Status, run.Error)
			}
			return w.Flush()
		},
	}
}
