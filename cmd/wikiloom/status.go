package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCommand(cctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [title]",
		Short: "Show translation states, optionally for one page",
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
			states, err := s.ListStates(cmd.Context(), title)
			if err != nil {
				return err
			}
			if len(states) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No translation states recorded.")
				return nil
			}

			rows := make([][]string, 0, len(states))
			for _, state := range states {
				rows = append(rows, []string{
					state.PageTitle,
					state.Lang,
					state.State,
					strconv.FormatInt(state.SourceRev, 10),
					state.UpdatedAt.UTC().Format(time.RFC3339),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Page", "Lang", "State", "Source rev", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
			return nil
		},
	}
	return cmd
}
