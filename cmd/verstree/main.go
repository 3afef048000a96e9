// Package main provides the verstree CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/verstree/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "verstree",
		Short: "Version tracking for code at syntax-tree granularity",
		Long: `verstree keeps a version history for every node of a code cell's
syntax tree. Edits are reconciled against a fresh parse, so each identifier,
literal, and statement keeps its identity across edits and gets a new
version only when it actually changes.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.init,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ./verstree.yaml or ./.verstree/verstree.yaml)")
	flags.StringVarP(&a.dir, "dir", "d", "", "history directory (overrides history.dir)")
	flags.StringVar(&a.basename, "basename", "", "history file name without extension (overrides history.basename)")
	flags.StringVar(&a.codec, "codec", "", "history codec: json, gob or lz4 (overrides history.codec)")
	flags.StringVarP(&a.language, "language", "l", "", "grammar to parse with (overrides parser.language)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "suppress output")

	rootCmd.AddCommand(parseCmd(a))
	rootCmd.AddCommand(replayCmd(a))
	rootCmd.AddCommand(logCmd(a))
	rootCmd.AddCommand(diffCmd(a))
	rootCmd.AddCommand(revertCmd(a))
	rootCmd.AddCommand(validateCmd(a))
	rootCmd.AddCommand(chartCmd(a))
	rootCmd.AddCommand(watchCmd(a))
	rootCmd.AddCommand(lspCmd(a))
	rootCmd.AddCommand(mcpCmd(a))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
