package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
	"github.com/Sumatoshi-tech/verstree/pkg/parser"
	"github.com/Sumatoshi-tech/verstree/pkg/session"
)

var (
	// ErrEmptyStep is returned for a script step that names no action.
	ErrEmptyStep = errors.New("step names no action")
	// ErrAmbiguousStep is returned for a script step naming several actions.
	ErrAmbiguousStep = errors.New("step names more than one action")
	// ErrNoLanguage is returned when a script omits its language.
	ErrNoLanguage = errors.New("script needs a language")
)

// Script is an editing session recorded as YAML.
//
//	language: python
//	text: |
//	  x = 1
//	steps:
//	  - replace: {from: [0, 4], to: [0, 5], text: "2"}
//	  - checkpoint: save
//	  - run: {text: "2"}
//	  - settext: "x = 3\n"
//	  - revert: c.0.1
type Script struct {
	Language string `yaml:"language"`
	Text     string `yaml:"text"`
	Steps    []Step `yaml:"steps"`
}

// Step is one scripted action. Exactly one field is set.
type Step struct {
	Replace    *ReplaceStep `yaml:"replace,omitempty"`
	SetText    *string      `yaml:"settext,omitempty"`
	Checkpoint string       `yaml:"checkpoint,omitempty"`
	Run        any          `yaml:"run,omitempty"`
	Revert     string       `yaml:"revert,omitempty"`
}

// ReplaceStep replaces the text between two [line, ch] positions.
type ReplaceStep struct {
	From [2]int `yaml:"from"`
	To   [2]int `yaml:"to"`
	Text string `yaml:"text"`
}

func (st Step) validate() error {
	n := 0

	for _, set := range []bool{st.Replace != nil, st.SetText != nil, st.Checkpoint != "", st.Run != nil, st.Revert != ""} {
		if set {
			n++
		}
	}

	switch n {
	case 0:
		return ErrEmptyStep
	case 1:
		return nil
	default:
		return ErrAmbiguousStep
	}
}

// LoadScript reads and checks a replay script.
func LoadScript(data []byte) (*Script, error) {
	var s Script

	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}

	for i, st := range s.Steps {
		if err := st.validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}

		if st.Checkpoint != "" {
			if _, err := history.ParseCheckpointKind(st.Checkpoint); err != nil {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
		}
	}

	return &s, nil
}

func replayCmd(a *app) *cobra.Command {
	var resume bool

	cmd := &cobra.Command{
		Use:   "replay SCRIPT",
		Short: "Replay a scripted editing session into the version log",
		Long: `Replay a YAML script of edits, checkpoints, runs, and reverts against a
fresh version store and save the resulting log.

With --resume the script continues the saved log instead; its text field
is then ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runReplay(cmd, args[0], resume)
		},
	}

	cmd.Flags().BoolVar(&resume, "resume", false, "continue the saved log")

	return cmd
}

func (a *app) runReplay(cmd *cobra.Command, path string, resume bool) error {
	data, _, err := readSource(path, cmd.InOrStdin())
	if err != nil {
		return err
	}

	script, err := LoadScript(data)
	if err != nil {
		return err
	}

	lang := script.Language
	if a.language != "" {
		lang = a.language
	}

	if lang == "" {
		return ErrNoLanguage
	}

	p, err := parser.NewTreeSitter(lang)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	var sess *session.Session
	if resume {
		sess, err = session.Load(ctx, p, a.sessionOptions()...)
	} else {
		sess, err = session.New(ctx, p, script.Text, a.sessionOptions()...)
	}

	if err != nil {
		return err
	}
	defer sess.Close()

	out := cmd.OutOrStdout()

	for i, st := range script.Steps {
		if err := a.replayStep(cmd, sess, st, out); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	if err := sess.Sync(ctx); err != nil {
		return err
	}

	if err := os.MkdirAll(a.cfg.History.Dir, 0o750); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	if err := sess.Save(); err != nil {
		return err
	}

	a.printf(out, "saved %s (%d checkpoints)\n", a.logPath(), len(sess.Store().Checkpoints()))

	return nil
}

func (a *app) replayStep(cmd *cobra.Command, sess *session.Session, st Step, out io.Writer) error {
	ctx := cmd.Context()

	switch {
	case st.Replace != nil:
		from := nodey.Pos{Line: st.Replace.From[0], Ch: st.Replace.From[1]}
		to := nodey.Pos{Line: st.Replace.To[0], Ch: st.Replace.To[1]}

		_, err := sess.Replace(ctx, from, to, st.Replace.Text)

		return err
	case st.SetText != nil:
		return sess.SetText(ctx, *st.SetText)
	case st.Checkpoint != "":
		kind, err := history.ParseCheckpointKind(st.Checkpoint)
		if err != nil {
			return err
		}

		sum, err := sess.Checkpoint(ctx, kind)
		if err != nil {
			return err
		}

		a.printSummary(out, sess.Store(), sum)
	case st.Run != nil:
		raw, err := json.Marshal(st.Run)
		if err != nil {
			return fmt.Errorf("encode output: %w", err)
		}

		sum, err := sess.Run(ctx, raw)
		if err != nil {
			return err
		}

		a.printSummary(out, sess.Store(), sum)
	case st.Revert != "":
		sum, err := sess.Revert(ctx, st.Revert)
		if err != nil {
			return err
		}

		a.printSummary(out, sess.Store(), sum)
	}

	return nil
}

// printSummary writes one line per checkpoint result.
func (a *app) printSummary(w io.Writer, store *history.Store, sum history.Summary) {
	kind := ""
	if cp, ok := store.Checkpoint(sum.Checkpoint); ok {
		kind = string(cp.Kind)
	}

	a.printf(w, "checkpoint %d (%s): %s, %d appended, %d discarded\n",
		sum.Checkpoint, kind, sum.Notebook, sum.Appended, sum.Discarded)

	for _, c := range sum.Cells {
		if c.Change != history.ChangeUnchanged {
			a.printf(w, "  %s %s\n", c.Change, c.Name)
		}
	}
}
