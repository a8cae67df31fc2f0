package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/spoke-tension/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var runID string
	var pruneOlder time.Duration

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded reliable readings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.History.Path == "" {
				return fmt.Errorf("history.path is not configured")
			}

			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if pruneOlder > 0 {
				n, err := store.Prune(cmd.Context(), time.Now().Add(-pruneOlder))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Pruned %d readings\n", n)
			}

			rows, err := store.List(cmd.Context(), history.ListOptions{Limit: limit, RunID: runID})
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No readings recorded")
				return nil
			}

			table := make([][]string, 0, len(rows))
			for _, r := range rows {
				table = append(table, []string{
					strconv.FormatInt(r.ID, 10),
					r.RecordedAt.Local().Format("2006-01-02 15:04:05"),
					fmt.Sprintf("%.1f", r.TensionKgf),
					fmt.Sprintf("%.1f", r.TensionNewton),
					fmt.Sprintf("%.1f", r.PeakFrequencyHz),
					fmt.Sprintf("%.2f", r.ReliabilityScore),
					fmt.Sprintf("%.0f", r.SpokeLengthM*1000),
					shortRunID(r.RunID),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Recorded", "kgf", "N", "Hz", "Score", "Length (mm)", "Run"},
				table,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultLimit, "Maximum number of readings")
	cmd.Flags().StringVar(&runID, "run", "", "Only show readings from this run")
	cmd.Flags().DurationVar(&pruneOlder, "prune-older-than", 0, "Delete readings older than this before listing")
	return cmd
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
