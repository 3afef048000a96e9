package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/verstree/pkg/parsetree"
)

// ErrUnsupportedParseFmt is returned for an unknown --format value.
var ErrUnsupportedParseFmt = errors.New("unsupported format")

const (
	formatJSON    = "json"
	formatCompact = "compact"
	formatTree    = "tree"
)

func parseCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Parse a source file into the tree verstree reconciles against",
		Long: `Parse a source file with tree-sitter and print the parse tree in the
form the reconciler consumes: nodes with one-based lines, zero-based byte
columns, and syntax tokens kept between children.

Examples:
  verstree parse main.py               # JSON parse tree
  verstree parse -f tree main.py       # indented outline
  cat main.go | verstree parse -l go - # parse stdin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runParse(cmd, args[0], format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "output format (json, compact, tree)")

	return cmd
}

func (a *app) runParse(cmd *cobra.Command, path, format string) error {
	content, resolved, err := readSource(path, cmd.InOrStdin())
	if err != nil {
		return err
	}

	p, err := a.parserFor(resolved, content)
	if err != nil {
		return err
	}

	root, err := p.Parse(cmd.Context(), string(content))
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return writeParseTree(cmd.OutOrStdout(), root, format)
}

func writeParseTree(w io.Writer, root *parsetree.Node, format string) error {
	switch format {
	case formatJSON, formatCompact:
		enc := json.NewEncoder(w)
		if format == formatJSON {
			enc.SetIndent("", "  ")
		}

		return enc.Encode(root)
	case formatTree:
		return writeOutline(w, root, 0)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedParseFmt, format)
	}
}

func writeOutline(w io.Writer, n *parsetree.Node, depth int) error {
	line := fmt.Sprintf("%s%s [%d:%d-%d:%d]", strings.Repeat("  ", depth), n.Type, n.Line, n.Col, n.EndLine, n.EndCol)
	if n.IsLeaf() {
		line += " " + fmt.Sprintf("%q", sanitizeForTerminal(*n.Literal))
	}

	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}

	for _, child := range n.Nodes() {
		if err := writeOutline(w, child, depth+1); err != nil {
			return err
		}
	}

	return nil
}
