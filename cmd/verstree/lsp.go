package main

import (
	"net/url"
	"os"
	"strings"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/verstree/pkg/lsp"
	"github.com/Sumatoshi-tech/verstree/pkg/observability"
	"github.com/Sumatoshi-tech/verstree/pkg/session"
	"github.com/Sumatoshi-tech/verstree/pkg/version"
)

func lspCmd(a *app) *cobra.Command {
	var memory bool

	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Start the version-tracking language server (stdio)",
		Long: `Start a language server on stdio. Every open document is tracked by
its own session: edits are reconciled as they arrive, a save opens a
checkpoint, and hover shows the version history of the node under the
cursor.

Each document keeps its log under history.dir, named after the document
path, unless --memory is set.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			providers, shutdown, err := a.telemetry(observability.ModeLSP)
			if err != nil {
				return err
			}
			defer shutdown()

			red, err := observability.NewREDMetrics(providers.Meter)
			if err != nil {
				return err
			}

			hm, err := observability.NewHistoryMetrics(providers.Meter)
			if err != nil {
				return err
			}

			deps := lsp.ServerDeps{
				Logger:         providers.Logger,
				Metrics:        red,
				HistoryMetrics: hm,
				Tracer:         providers.Tracer,
				Language:       a.cfg.Parser.Language,
				Version:        version.Version,
			}

			if !memory {
				if err := os.MkdirAll(a.cfg.History.Dir, 0o750); err != nil {
					return err
				}

				deps.Persistence = a.documentPersistence
			}

			return lsp.NewServer(deps).Run()
		},
	}

	cmd.Flags().BoolVar(&memory, "memory", false, "keep document history in memory only")

	return cmd
}

// documentPersistence stores each document's log under its own basename.
func (a *app) documentPersistence(uri string) session.Option {
	basename := a.cfg.History.Basename + "-" + documentSlug(uri)
	p := session.Persister(basename, a.cfg.Codec())

	return session.WithPersistence(a.cfg.History.Dir, p, a.cfg.History.ValidateOnLoad)
}

// documentSlug turns a document URI into a file name fragment.
func documentSlug(uri string) string {
	path := uri
	if u, err := url.Parse(uri); err == nil && u.Path != "" {
		path = u.Path
	}

	path = strings.TrimLeft(path, "/")

	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.' {
			return r
		}

		return '_'
	}, path)
}
