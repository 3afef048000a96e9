package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
)

// LogFormat identifies the version log layout.
const LogFormat = "verstree.log/v1"

// ErrCorruptLog is returned when a log cannot be restored into a store.
var ErrCorruptLog = errors.New("corrupt version log")

// Log is the persisted form of a store: every committed version chain plus
// the checkpoint list. Shadows and live spans are editor state and are not
// part of it.
type Log struct {
	Format      string         `json:"format"`
	Notebook    string         `json:"notebook,omitempty"`
	NextIDs     map[string]int `json:"nextIds"`
	Chains      []Chain        `json:"chains"`
	Checkpoints []Checkpoint   `json:"checkpoints"`
}

// Chain is the persisted version chain of one identity.
type Chain struct {
	Key      string           `json:"key"`
	Versions []nodey.Envelope `json:"versions"`
}

// Snapshot copies the committed state of the store into a log.
func (s *Store) Snapshot() *Log {
	log := &Log{
		Format:   LogFormat,
		Notebook: s.notebook,
		NextIDs:  maps.Clone(s.nextID),
	}

	if log.NextIDs == nil {
		log.NextIDs = map[string]int{}
	}

	for _, key := range s.Keys() {
		h := s.chains[key]
		if h.Len() == 0 {
			continue
		}

		chain := Chain{Key: key, Versions: make([]nodey.Envelope, 0, h.Len())}
		for _, n := range h.versions {
			chain.Versions = append(chain.Versions, nodey.Wrap(normalize(n.Clone())))
		}

		log.Chains = append(log.Chains, chain)
	}

	for _, cp := range s.checkpoints {
		cp.Cells = slices.Clone(cp.Cells)
		if len(cp.Cells) == 0 {
			cp.Cells = nil
		}

		log.Checkpoints = append(log.Checkpoints, cp)
	}

	return log
}

// Restore rebuilds a store from a log. Versions must sit at their own
// index in a chain that matches their identity.
func Restore(log *Log) (*Store, error) {
	if log == nil {
		return nil, fmt.Errorf("%w: nil log", ErrCorruptLog)
	}

	if log.Format != LogFormat {
		return nil, fmt.Errorf("%w: format %q", ErrCorruptLog, log.Format)
	}

	s := NewStore()

	for _, chain := range log.Chains {
		if len(chain.Versions) == 0 {
			return nil, fmt.Errorf("%w: chain %s is empty", ErrCorruptLog, chain.Key)
		}

		h := newHistory(chain.Key)

		for i, env := range chain.Versions {
			n, err := env.Unwrap()
			if err != nil {
				return nil, fmt.Errorf("%w: %s version %d: %w", ErrCorruptLog, chain.Key, i, err)
			}

			n = normalize(n.Clone())
			if nodey.Key(n) != chain.Key || n.Common().Version != i {
				return nil, fmt.Errorf("%w: %s found at %s index %d", ErrCorruptLog, nodey.Name(n), chain.Key, i)
			}

			h.versions = append(h.versions, n)
		}

		if _, dup := s.chains[chain.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate chain %s", ErrCorruptLog, chain.Key)
		}

		s.chains[chain.Key] = h

		typeChar, id, _, _ := nodey.SplitName(chain.Key + ".0")
		if id >= s.nextID[typeChar] {
			s.nextID[typeChar] = id + 1
		}
	}

	for typeChar, next := range log.NextIDs {
		s.nextID[typeChar] = max(s.nextID[typeChar], next)
	}

	if log.Notebook != "" {
		if _, ok := s.chains[log.Notebook]; !ok {
			return nil, fmt.Errorf("%w: notebook %s has no chain", ErrCorruptLog, log.Notebook)
		}

		s.notebook = log.Notebook
		s.relinkFrom(s.Notebook())
	}

	for i, cp := range log.Checkpoints {
		if cp.ID != i {
			return nil, fmt.Errorf("%w: checkpoint %d found at index %d", ErrCorruptLog, cp.ID, i)
		}

		cp.Cells = slices.Clone(cp.Cells)
		s.checkpoints = append(s.checkpoints, cp)
	}

	return s, nil
}

// normalize puts a snapshot into the canonical form both codecs agree on.
func normalize(n nodey.Nodey) nodey.Nodey {
	switch v := n.(type) {
	case *nodey.Notebook:
		if len(v.Cells) == 0 {
			v.Cells = nil
		}
	case *nodey.Output:
		if len(v.Raw) == 0 {
			v.Raw = json.RawMessage("null")
		}

		v.Raw = compactJSON(v.Raw)
	default:
		if code, ok := nodey.AsCode(n); ok && len(code.Content) == 0 {
			code.Content = nil
		}
	}

	return n
}
