package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"wikiloom/internal/store"
)

func newQueueCommand(cctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newQueueStatusCommand(cctx))
	cmd.AddCommand(newQueueListCommand(cctx))
	cmd.AddCommand(newQueueRetryCommand(cctx))
	cmd.AddCommand(newQueueClearCommand(cctx))
	cmd.AddCommand(newQueuePruneCommand(cctx))

	return cmd
}

func newQueueStatusCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue counts by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			counts, err := s.Counts(cmd.Context())
			if err != nil {
				return err
			}

			rows := [][]string{
				{"queued", strconv.Itoa(counts.Queued)},
				{"running", strconv.Itoa(counts.Running)},
				{"done", strconv.Itoa(counts.Done)},
				{"error", strconv.Itoa(counts.Errored)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Status", "Count"}, rows,
				[]columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func newQueueListCommand(cctx *commandContext) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			jobs, err := s.ListJobs(cmd.Context(), store.JobStatus(status), limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs.")
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				lastError := ""
				if job.LastError != nil {
					lastError = *job.LastError
				}
				runAfter := ""
				if job.RunAfter != nil {
					runAfter = job.RunAfter.UTC().Format(time.RFC3339)
				}
				rows = append(rows, []string{
					strconv.FormatInt(job.ID, 10),
					string(job.Type),
					job.PageTitle,
					job.Lang,
					string(job.Status),
					strconv.Itoa(job.Retries),
					runAfter,
					lastError,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Type", "Page", "Lang", "Status", "Retries", "Run after", "Last error"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (queued, running, done, error)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum jobs to list")

	return cmd
}

func newQueueRetryCommand(cctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry [title]",
		Short: "Requeue errored jobs, optionally for one page",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			title := ""
			if len(args) == 1 {
				title = args[0]
			}
			count, err := s.RetryErrored(cmd.Context(), title)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d job(s).\n", count)
			return nil
		},
	}
	return cmd
}

func newQueueClearCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all queued jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			count, err := s.ClearQueued(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d queued job(s).\n", count)
			return nil
		},
	}
}

func newQueuePruneCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete queued translate jobs for languages no longer configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cfg, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			count, err := s.DeleteQueuedNotInLangs(cmd.Context(), cfg.Languages.Targets)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d job(s).\n", count)
			return nil
		},
	}
}
