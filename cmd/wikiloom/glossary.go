package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"wikiloom/internal/glossary"
)

func newGlossaryCommand(cctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glossary",
		Short: "Manage the termbase and review tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newGlossarySyncCommand(cctx))
	cmd.AddCommand(newGlossaryTasksCommand(cctx))
	cmd.AddCommand(newGlossaryClearCommand(cctx))

	return cmd
}

func newGlossarySyncCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Load the glossary file into the termbase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cfg, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if cfg.Glossary.File == "" {
				return fmt.Errorf("no glossary file configured")
			}
			file, err := glossary.Load(cfg.Glossary.File)
			if err != nil {
				return fmt.Errorf("load glossary: %w", err)
			}
			if err := glossary.Sync(cmd.Context(), s, file, cfg.Languages.Targets); err != nil {
				return fmt.Errorf("sync glossary: %w", err)
			}

			rows := make([][]string, 0, len(cfg.Languages.Targets))
			for _, lang := range cfg.Languages.Targets {
				rows = append(rows, []string{lang, strconv.Itoa(len(file.Terms(lang)))})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Lang", "Terms"}, rows,
				[]columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func newGlossaryTasksCommand(cctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List glossary review tasks raised during translation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			tasks, err := s.ListGlossaryTasks(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No glossary tasks.")
				return nil
			}

			rows := make([][]string, 0, len(tasks))
			for _, task := range tasks {
				rows = append(rows, []string{
					strconv.FormatInt(task.ID, 10),
					task.PageTitle,
					task.Lang,
					task.SegmentKey,
					task.Term,
					task.Detail,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Page", "Lang", "Unit", "Term", "Detail"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft}))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum tasks to list")

	return cmd
}

func newGlossaryClearCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [title]",
		Short: "Delete glossary tasks, optionally for one page",
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
			count, err := s.ClearGlossaryTasks(cmd.Context(), title)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d task(s).\n", count)
			return nil
		},
	}
}
