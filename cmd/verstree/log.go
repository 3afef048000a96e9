package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
)

const previewWidth = 48

func logCmd(a *app) *cobra.Command {
	var key string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List checkpoints, or the versions of one node",
		Long: `List the checkpoints of the saved version log with the cells each one
touched. With --key, list every committed version of one node instead.

Examples:
  verstree log
  verstree log --key c.0
  verstree log --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.loadStore()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if key != "" {
				return writeVersions(out, store, key, asJSON)
			}

			if err := writeCheckpoints(out, store, asJSON); err != nil {
				return err
			}

			if !asJSON {
				a.writeLogFooter(out, store)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&key, "key", "k", "", "node key (e.g. c.0) whose versions to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	return cmd
}

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false

	return tbl
}

func writeCheckpoints(w io.Writer, store *history.Store, asJSON bool) error {
	cps := store.Checkpoints()

	if asJSON {
		return writeJSON(w, cps)
	}

	tbl := newTable()
	tbl.AppendHeader(table.Row{"ID", "Kind", "When", "Cells", "Versions"})

	for _, cp := range cps {
		var cells []string

		for _, c := range cp.Cells {
			if c.Change != history.ChangeUnchanged {
				cells = append(cells, string(c.Change)+" "+c.Name)
			}
		}

		tbl.AppendRow(table.Row{
			cp.ID,
			cp.Kind,
			humanize.Time(cp.Time),
			strings.Join(cells, ", "),
			len(store.CreatedIn(cp.ID)),
		})
	}

	_, err := fmt.Fprintln(w, tbl.Render())

	return err
}

func (a *app) writeLogFooter(w io.Writer, store *history.Store) {
	size := ""
	if info, err := os.Stat(a.logPath()); err == nil {
		size = ", " + humanize.Bytes(uint64(info.Size()))
	}

	a.printf(w, "%s, %s in %s%s\n",
		english.Plural(len(store.Checkpoints()), "checkpoint", ""),
		english.Plural(len(store.Keys()), "node", ""),
		a.logPath(), size)
}

type versionRow struct {
	Name       string `json:"name"`
	Checkpoint int    `json:"checkpoint"`
	Text       string `json:"text"`
}

func writeVersions(w io.Writer, store *history.Store, key string, asJSON bool) error {
	versions := store.VersionsOf(key)
	if len(versions) == 0 {
		return fmt.Errorf("%w: %s", history.ErrUnknownName, key)
	}

	rows := make([]versionRow, 0, len(versions))

	for _, n := range versions {
		name := nodey.Name(n)
		rows = append(rows, versionRow{Name: name, Checkpoint: n.Common().Created, Text: store.Text(name)})
	}

	if asJSON {
		return writeJSON(w, rows)
	}

	tbl := newTable()
	tbl.AppendHeader(table.Row{"Version", "Checkpoint", "Text"})

	for _, r := range rows {
		tbl.AppendRow(table.Row{r.Name, r.Checkpoint, preview(r.Text)})
	}

	tbl.AppendFooter(table.Row{english.Plural(len(rows), "version", ""), "", ""})

	_, err := fmt.Fprintln(w, tbl.Render())

	return err
}

func preview(s string) string {
	s = sanitizeForTerminal(s)
	if len(s) > previewWidth {
		return s[:previewWidth-3] + "..."
	}

	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
