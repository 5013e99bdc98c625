package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"wikiloom/internal/store"
)

func newTranslateCommand(cctx *commandContext) *cobra.Command {
	var langs []string
	var priority int

	cmd := &cobra.Command{
		Use:   "translate <title>...",
		Short: "Queue translation jobs for pages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cfg, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			targets := langs
			if len(targets) == 0 {
				targets = cfg.Languages.Targets
			}

			ctx := cmd.Context()
			var rows [][]string
			for _, title := range args {
				for _, lang := range targets {
					id, err := s.Enqueue(ctx, store.JobTranslatePage, title, lang, priority)
					switch {
					case errors.Is(err, store.ErrDuplicateQueued):
						rows = append(rows, []string{title, lang, "already queued"})
					case err != nil:
						return fmt.Errorf("enqueue %s/%s: %w", title, lang, err)
					default:
						rows = append(rows, []string{title, lang, fmt.Sprintf("job %d", id)})
					}
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Page", "Lang", "Result"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft}))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&langs, "lang", nil, "Target languages (default: configured targets)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Job priority; higher runs first")

	return cmd
}

func newSyncCommand(cctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <title>...",
		Short: "Queue status sync jobs that reconcile platform review marks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			var rows [][]string
			for _, title := range args {
				// One sync job reconciles every target language for the page.
				id, err := s.Enqueue(ctx, store.JobSyncStatus, title, "all", 0)
				switch {
				case errors.Is(err, store.ErrDuplicateQueued):
					rows = append(rows, []string{title, "already queued"})
				case err != nil:
					return fmt.Errorf("enqueue %s: %w", title, err)
				default:
					rows = append(rows, []string{title, fmt.Sprintf("job %d", id)})
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Page", "Result"}, rows,
				[]columnAlignment{alignLeft, alignLeft}))
			return nil
		},
	}

	return cmd
}
