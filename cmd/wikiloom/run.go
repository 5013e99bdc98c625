package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wikiloom/internal/glossary"
	"wikiloom/internal/report"
	"wikiloom/internal/store"
	"wikiloom/internal/workflow"
)

func newRunCommand(cctx *commandContext) *cobra.Command {
	var refresh, cacheOnly bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process the job queue once and write a run report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := resolveMode(refresh, cacheOnly)
			if err != nil {
				return err
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
			manager, err := newManager(s, cfg, logger)
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			if cfg.Glossary.File != "" {
				file, err := glossary.Load(cfg.Glossary.File)
				if err != nil {
					return fmt.Errorf("load glossary: %w", err)
				}
				if err := glossary.Sync(ctx, s, file, cfg.Languages.Targets); err != nil {
					return fmt.Errorf("sync glossary: %w", err)
				}
			}

			run, err := s.StartRun(ctx, string(mode), cfg.Languages.Targets)
			if err != nil {
				return err
			}

			processErr := manager.ProcessQueue(ctx, workflow.RunContext{Run: run, Mode: mode})

			status := store.RunFinished
			if processErr != nil {
				status = store.RunFailed
			}
			if err := s.FinishRun(ctx, run.ID, status); err != nil {
				return err
			}

			path, err := report.WriteMarkdown(ctx, s, cfg, run)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %d %s. Report: %s\n", run.ID, status, path)

			return processErr
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Retranslate every unit, bypassing the cache")
	cmd.Flags().BoolVar(&cacheOnly, "cache-only", false, "Serve cached translations only; any miss fails the unit")

	return cmd
}
