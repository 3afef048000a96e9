package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
	"github.com/Sumatoshi-tech/verstree/pkg/vdiff"
)

func diffCmd(a *app) *cobra.Command {
	var context int
	var inline, noColor bool

	cmd := &cobra.Command{
		Use:   "diff FROM [TO]",
		Short: "Diff the rendered text of two versions",
		Long: `Diff the text two committed versions render to. TO defaults to the
latest version of FROM's node.

Examples:
  verstree diff c.0.0 c.0.2
  verstree diff c.4.0            # against the latest c.4
  verstree diff --inline c.7.0 c.7.1`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if noColor {
				color.NoColor = true
			}

			store, err := a.loadStore()
			if err != nil {
				return err
			}

			from := args[0]

			to, err := diffTarget(store, args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if inline {
				for _, name := range []string{from, to} {
					if _, ok := store.Get(name); !ok {
						return fmt.Errorf("%w: %s", vdiff.ErrUnknownVersion, name)
					}
				}

				return vdiff.WriteInline(out, vdiff.Inline(store.Text(from), store.Text(to)))
			}

			diff, err := vdiff.Versions(store, from, to, context)
			if err != nil {
				return err
			}

			if diff == "" {
				a.printf(out, "%s and %s render the same text\n", from, to)

				return nil
			}

			return vdiff.WriteUnified(out, diff)
		},
	}

	cmd.Flags().IntVarP(&context, "context", "U", vdiff.DefaultContext, "lines of context around each hunk")
	cmd.Flags().BoolVar(&inline, "inline", false, "print a character-level inline diff")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")

	return cmd
}

func diffTarget(store *history.Store, args []string) (string, error) {
	if len(args) == 2 {
		return args[1], nil
	}

	latest, ok := store.Latest(args[0])
	if !ok {
		return "", fmt.Errorf("%w: %s", vdiff.ErrUnknownVersion, args[0])
	}

	return nodey.Name(latest), nil
}
