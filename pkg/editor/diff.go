package editor

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
)

// ChangesFromDiff synthesises the changes that turn before into after, for
// editors that only report whole-file saves. Apply them in order: each
// change's positions refer to the document produced by the previous one.
func ChangesFromDiff(before, after string) []Change {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))

	var (
		out     []Change
		pos     nodey.Pos
		removed *string
	)

	flush := func(inserted string) {
		del := ""
		if removed != nil {
			del = *removed
		}

		if del == "" && inserted == "" {
			return
		}

		c := NewChange(pos, advance(pos, del), inserted, del)
		out = append(out, c)
		pos = c.End()
		removed = nil
	}

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			if removed != nil {
				flush("")
			}

			pos = advance(pos, d.Text)
		case diffmatchpatch.DiffDelete:
			text := d.Text
			if removed != nil {
				text = *removed + text
			}

			removed = &text
		case diffmatchpatch.DiffInsert:
			flush(d.Text)
		}
	}

	if removed != nil {
		flush("")
	}

	return out
}

// advance moves p over text.
func advance(p nodey.Pos, text string) nodey.Pos {
	n := strings.Count(text, "\n")
	if n == 0 {
		return nodey.Pos{Line: p.Line, Ch: p.Ch + len(text)}
	}

	return nodey.Pos{Line: p.Line + n, Ch: len(text) - strings.LastIndexByte(text, '\n') - 1}
}
