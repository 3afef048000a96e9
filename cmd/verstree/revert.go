package main

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
)

func revertCmd(a *app) *cobra.Command {
	var write string

	cmd := &cobra.Command{
		Use:   "revert NAME",
		Short: "Append a revert of a cell or the notebook to the log",
		Long: `Revert a code cell, markdown cell, or the notebook to a committed
version. The revert opens a new checkpoint and appends fresh versions;
nothing in the log is rewritten.

Examples:
  verstree revert c.0.1
  verstree revert c.0.1 --write main.py   # also restore the source file`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore()
			if err != nil {
				return err
			}

			stage := history.NewStage(store, history.WithLogger(a.logger))

			sum, err := stage.Rollback(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if err := a.saveStore(store); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			a.printSummary(out, store, sum)

			if write == "" {
				return nil
			}

			head, ok := store.Latest(args[0])
			if !ok {
				return nil
			}

			text := store.Text(nodey.Name(head))
			if err := writeFileAtomic(write, []byte(text)); err != nil {
				return err
			}

			a.printf(out, "wrote %s\n", write)

			return nil
		},
	}

	cmd.Flags().StringVarP(&write, "write", "w", "", "write the reverted text to this file")

	return cmd
}
