package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"wikiloom/internal/ingest"
	"wikiloom/internal/mediawiki"
)

func newIngestCommand(cctx *commandContext) *cobra.Command {
	var all, recent bool

	cmd := &cobra.Command{
		Use:   "ingest [title...]",
		Short: "Fetch pages, refresh stored translation units, and queue jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && !recent && len(args) == 0 {
				return fmt.Errorf("provide page titles, --all, or --recent")
			}

			s, cfg, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			logger, err := cctx.newLogger()
			if err != nil {
				return err
			}
			wiki, err := mediawiki.NewHTTPClient(cfg)
			if err != nil {
				return err
			}
			ing := ingest.New(s, wiki, cfg, logger)

			ctx := cmd.Context()
			var outcomes []ingest.Outcome
			switch {
			case all:
				outcomes, err = ing.IngestAll(ctx, cfg.Workflow.JobBatchSize)
			case recent:
				outcomes, err = ing.IngestRecentChanges(ctx, cfg.Workflow.JobBatchSize)
			default:
				for _, title := range args {
					outcome, ingestErr := ing.IngestTitle(ctx, title)
					if ingestErr != nil {
						return fmt.Errorf("ingest %q: %w", title, ingestErr)
					}
					outcomes = append(outcomes, outcome)
				}
			}
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(outcomes))
			for _, outcome := range outcomes {
				rows = append(rows, []string{outcome.Title, describeOutcome(outcome)})
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to ingest.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Page", "Result"}, rows, []columnAlignment{alignLeft, alignLeft}))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Ingest every content page on the platform")
	cmd.Flags().BoolVar(&recent, "recent", false, "Ingest pages changed since the last cursor position")

	return cmd
}

func describeOutcome(outcome ingest.Outcome) string {
	if outcome.Skipped != "" {
		return "skipped: " + outcome.Skipped
	}
	var parts []string
	if outcome.Wrapped {
		parts = append(parts, "wrapped")
	}
	if len(outcome.ChangedKeys) > 0 {
		parts = append(parts, fmt.Sprintf("%d units changed", len(outcome.ChangedKeys)))
	}
	if len(outcome.Enqueued) > 0 {
		parts = append(parts, "queued for "+strings.Join(outcome.Enqueued, ", "))
	}
	if len(outcome.Outdated) > 0 {
		parts = append(parts, "marked outdated for "+strings.Join(outcome.Outdated, ", "))
	}
	if len(parts) == 0 {
		return "unchanged"
	}
	return strings.Join(parts, "; ")
}
