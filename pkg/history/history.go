// Package history is the versioned staging store. Every node identity owns
// an append-only chain of immutable snapshots. Pending edits live in at most
// one mutable shadow ("star") per identity until a checkpoint commits or
// discards them.
package history

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
)

// Star is a mutable shadow of a node. An unsaved star has no committed
// version and no identity until its first commit.
type Star struct {
	Value nodey.Nodey

	Unsaved bool
	// CellID is the id of the cell an unsaved star was created under.
	CellID int
	// Seq is the store-wide placeholder number of an unsaved star.
	Seq int
}

// Name returns "*.typeChar.id" for a shadow of a committed node and
// "TEMP.cellId.seq" for an unsaved one.
func (s *Star) Name() string {
	if s.Unsaved {
		return nodey.UnsavedPrefix + "." + strconv.Itoa(s.CellID) + "." + strconv.Itoa(s.Seq)
	}

	return nodey.StarPrefix + "." + nodey.Key(s.Value)
}

// History is the version chain of one identity.
type History struct {
	key      string
	versions []nodey.Nodey
	star     *Star
}

func newHistory(key string) *History {
	return &History{key: key}
}

// Key returns the identity key "typeChar.id".
func (h *History) Key() string { return h.key }

// Len returns the number of committed versions.
func (h *History) Len() int { return len(h.versions) }

// Version returns the snapshot at index v.
func (h *History) Version(v int) (nodey.Nodey, bool) {
	if v < 0 || v >= len(h.versions) {
		return nil, false
	}

	return h.versions[v], true
}

// Versions returns the committed snapshots, oldest first. The slice is a
// copy; the snapshots must not be modified.
func (h *History) Versions() []nodey.Nodey {
	return slices.Clone(h.versions)
}

// LastSaved returns the newest committed snapshot, or nil for an empty chain.
func (h *History) LastSaved() nodey.Nodey {
	if len(h.versions) == 0 {
		return nil
	}

	return h.versions[len(h.versions)-1]
}

// Star returns the outstanding shadow, if any.
func (h *History) Star() *Star { return h.star }

// Latest returns the shadow value when one exists, else the last snapshot.
func (h *History) Latest() nodey.Nodey {
	if h.star != nil {
		return h.star.Value
	}

	return h.LastSaved()
}

// SetLatestToStar installs s as the chain's shadow. Installing a second,
// different shadow is a programming error.
func (h *History) SetLatestToStar(s *Star) {
	if h.star != nil && h.star != s {
		panic(fmt.Sprintf("history: %s already has a shadow", h.key))
	}

	h.star = s
}

// DeStar promotes the shadow to the next version, stamped with checkpoint cp.
func (h *History) DeStar(cp int) nodey.Nodey {
	if h.star == nil {
		panic(fmt.Sprintf("history: %s has no shadow to commit", h.key))
	}

	n := h.star.Value
	h.star = nil
	h.push(n, cp)

	return n
}

// DiscardStar drops the shadow and returns the last snapshot.
func (h *History) DiscardStar() nodey.Nodey {
	h.star = nil

	return h.LastSaved()
}

func (h *History) push(n nodey.Nodey, cp int) {
	base := n.Common()
	base.Version = len(h.versions)
	base.Created = cp
	h.versions = append(h.versions, n)
}
