package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/verstree/pkg/history"
)

func validateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the saved version log",
		Long: `Check the saved version log against its JSON schema (JSON and
LZ4-wrapped JSON logs) and restore it, which checks that every reference
resolves.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(a.logPath()); err != nil {
				return fmt.Errorf("%w: %s", ErrNoHistory, a.logPath())
			}

			data, ok, err := a.persister().PlainJSON(a.cfg.History.Dir)
			if err != nil {
				return err
			}

			if ok {
				if err := history.ValidateLog(data); err != nil {
					return err
				}
			}

			// Schema checks were just done; restoring covers the references.
			a.cfg.History.ValidateOnLoad = false

			store, err := a.loadStore()
			if err != nil {
				return err
			}

			a.printf(cmd.OutOrStdout(), "%s: ok, %d checkpoints, %d nodes\n",
				a.logPath(), len(store.Checkpoints()), len(store.Keys()))

			return nil
		},
	}
}
