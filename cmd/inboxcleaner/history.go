package main

import (
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"inboxcleaner/internal/config"
	"inboxcleaner/internal/store"
	"inboxcleaner/internal/tui"
)

func openLedger(cmd *cobra.Command) (*store.SQLiteStore, error) {
	cfg, err := config.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	setupLogger(cfg)
	if cfg.DBPath == "" {
		return nil, errors.New("run history is disabled (empty --db)")
	}
	return store.NewSQLiteStore(cfg.DBPath)
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded scan runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}
			db, err := openLedger(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet.")
				return nil
			}
			fmt.Fprintln(out, historyTable(runs))
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Number of runs to show")
	return cmd
}

func historyTable(runs []store.Run) *table.Table {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN", "WHEN", "MODE", "SOURCE", "SCANNED", "LINKS", "EMAILS", "ACTIONS", "ERRORS")
	for _, r := range runs {
		mode := "dry-run"
		if r.Live {
			mode = "live"
		}
		t.Row(r.ID, humanize.Time(r.StartedAt), mode, r.Source,
			humanize.Comma(int64(r.Stats.Scanned)), humanize.Comma(int64(r.Stats.LinksFound)),
			humanize.Comma(int64(r.Stats.EmailsFound)), humanize.Comma(int64(r.Stats.ActionsTaken)),
			humanize.Comma(int64(r.Stats.Errors)))
	}
	return t
}

func reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review [run-id]",
		Short: "Browse the candidates of a recorded run (latest by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openLedger(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			var id string
			if len(args) == 1 {
				id = args[0]
			}
			run, err := db.GetRun(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("load run: %w", err)
			}
			cands, err := db.LoadCandidates(cmd.Context(), run.ID)
			if err != nil {
				return fmt.Errorf("load candidates: %w", err)
			}

			title := fmt.Sprintf("Run %s", run.StartedAt.Local().Format(time.DateTime))
			m := tui.New(title, run.Source, cands, tui.SystemOpener{})
			if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
				return fmt.Errorf("review: %w", err)
			}
			return nil
		},
	}
}
