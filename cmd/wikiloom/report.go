package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"wikiloom/internal/report"
)

func newReportCommand(cctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize the most recent run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			summary, err := report.LastRun(cmd.Context(), s)
			if err != nil {
				return err
			}

			if asJSON {
				payload, err := report.WriteJSON(summary)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(payload))
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %d (%s)\n", summary.RunID, summary.UUID)
			fmt.Fprintf(out, "Mode: %s  Targets: %s  Status: %s\n", summary.Mode, summary.TargetLangs, summary.Status)
			fmt.Fprintf(out, "Started: %s\n", summary.StartedAt.UTC().Format(time.RFC3339))
			if summary.FinishedAt != nil {
				fmt.Fprintf(out, "Finished: %s\n", summary.FinishedAt.UTC().Format(time.RFC3339))
			}

			if len(summary.Counts) > 0 {
				statuses := make([]string, 0, len(summary.Counts))
				for status := range summary.Counts {
					statuses = append(statuses, status)
				}
				sort.Strings(statuses)
				rows := make([][]string, 0, len(statuses))
				for _, status := range statuses {
					rows = append(rows, []string{status, strconv.Itoa(summary.Counts[status])})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Status", "Count"}, rows,
					[]columnAlignment{alignLeft, alignRight}))
			}

			if len(summary.Failures) > 0 {
				rows := make([][]string, 0, len(summary.Failures))
				for _, failure := range summary.Failures {
					rows = append(rows, []string{failure.Kind, failure.Page, failure.Lang, failure.Message})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Kind", "Page", "Lang", "Message"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft}))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the summary as JSON")

	return cmd
}
