package history

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
)

// ErrUnknownName is returned when a name resolves to nothing in the store.
var ErrUnknownName = errors.New("unknown node name")

// ErrUnknownCheckpointKind is returned for a checkpoint kind outside the known set.
var ErrUnknownCheckpointKind = errors.New("unknown checkpoint kind")

// Live is the editor-facing state of one identity: its current span, its
// current parent and right sibling, and the outstanding parse token.
// It changes on every keystroke, so it is kept beside the version chains
// rather than inside snapshots. A commit copies it into the new snapshot.
type Live struct {
	Span    nodey.Span
	Parent  string
	Right   string
	Pending string
}

// Store is the arena of every chain and shadow. All relations between nodes
// are names that resolve here. A Store has a single writer.
type Store struct {
	chains   map[string]*History
	unsaved  map[string]*Star
	live     map[string]*Live
	nextID   map[string]int
	seq      int
	notebook string

	checkpoints []Checkpoint
	now         func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		chains:  make(map[string]*History),
		unsaved: make(map[string]*Star),
		live:    make(map[string]*Live),
		nextID:  make(map[string]int),
	}
}

// NextID reserves the next identity for a type character.
func (s *Store) NextID(typeChar string) int {
	id := s.nextID[typeChar]
	s.nextID[typeChar]++

	return id
}

// Create stores n as version 0 of a new identity stamped with checkpoint cp
// and returns its name. An id of nodey.NoID is replaced by a fresh one.
func (s *Store) Create(n nodey.Nodey, cp int) string {
	base := n.Common()
	typeChar := n.Kind().TypeChar()

	if base.ID == nodey.NoID {
		base.ID = s.NextID(typeChar)
	} else if base.ID >= s.nextID[typeChar] {
		s.nextID[typeChar] = base.ID + 1
	}

	key := nodey.Key(n)
	if _, exists := s.chains[key]; exists {
		panic(fmt.Sprintf("history: identity %s is already in use", key))
	}

	h := newHistory(key)
	h.push(n, cp)
	s.chains[key] = h
	s.live[key] = liveFrom(n)

	if n.Kind() == nodey.KindNotebook {
		s.notebook = key
	}

	return nodey.Name(n)
}

// appendVersion pushes n onto the chain of its identity.
func (s *Store) appendVersion(n nodey.Nodey, cp int) string {
	key := nodey.Key(n)

	h, ok := s.chains[key]
	if !ok {
		panic(fmt.Sprintf("history: no chain for %s", key))
	}

	h.push(n, cp)

	return nodey.Name(n)
}

// History returns the chain of an identity key.
func (s *Store) History(key string) (*History, bool) {
	h, ok := s.chains[key]

	return h, ok
}

// HistoryOf returns the chain a committed or star name belongs to.
func (s *Store) HistoryOf(name string) (*History, bool) {
	key, ok := nodey.KeyFromName(name)
	if !ok {
		return nil, false
	}

	return s.History(key)
}

// Get resolves a name to the node it denotes: a specific snapshot for a
// committed name, the shadow value for a star or unsaved name.
func (s *Store) Get(name string) (nodey.Nodey, bool) {
	if star, ok := s.unsaved[name]; ok {
		return star.Value, true
	}

	typeChar, id, version, ok := nodey.SplitName(name)
	if !ok {
		return nil, false
	}

	h, ok := s.chains[nodey.KeyOf(typeChar, id)]
	if !ok {
		return nil, false
	}

	if version == nodey.NoVersion {
		n := h.Latest()

		return n, n != nil
	}

	return h.Version(version)
}

// MustGet is Get for names the store itself handed out.
func (s *Store) MustGet(name string) nodey.Nodey {
	n, ok := s.Get(name)
	if !ok {
		panic(fmt.Sprintf("history: %v: %s", ErrUnknownName, name))
	}

	return n
}

// Latest resolves a name to the newest state of its identity, whichever
// version the name mentions.
func (s *Store) Latest(name string) (nodey.Nodey, bool) {
	if star, ok := s.unsaved[name]; ok {
		return star.Value, true
	}

	h, ok := s.HistoryOf(name)
	if !ok {
		return nil, false
	}

	n := h.Latest()

	return n, n != nil
}

// StarOf returns the outstanding shadow for a name's identity.
func (s *Store) StarOf(name string) (*Star, bool) {
	if star, ok := s.unsaved[name]; ok {
		return star, true
	}

	h, ok := s.HistoryOf(name)
	if !ok || h.star == nil {
		return nil, false
	}

	return h.star, true
}

// HeadName returns the name a parent should reference for name's identity
// right now: the shadow name when one exists, else the last committed name.
func (s *Store) HeadName(name string) string {
	if star, ok := s.StarOf(name); ok {
		return star.Name()
	}

	h, ok := s.HistoryOf(name)
	if !ok || h.Len() == 0 {
		return name
	}

	return nodey.Name(h.LastSaved())
}

// Live returns the live state of name's identity, deriving it from the last
// snapshot when the store was restored from a log.
func (s *Store) Live(name string) *Live {
	key, ok := s.liveKey(name)
	if !ok {
		panic(fmt.Sprintf("history: %v: %s", ErrUnknownName, name))
	}

	if l, ok := s.live[key]; ok {
		return l
	}

	h, ok := s.chains[key]
	if !ok || h.Len() == 0 {
		panic(fmt.Sprintf("history: %v: %s", ErrUnknownName, name))
	}

	l := liveFrom(h.LastSaved())
	s.live[key] = l

	return l
}

// LookupLive is Live for names that may no longer exist, such as the
// placeholder of an unsaved node that was committed or dropped since.
func (s *Store) LookupLive(name string) (*Live, bool) {
	key, ok := s.liveKey(name)
	if !ok {
		return nil, false
	}

	if _, ok := s.live[key]; !ok {
		if h, ok := s.chains[key]; !ok || h.Len() == 0 {
			return nil, false
		}
	}

	return s.Live(name), true
}

func (s *Store) liveKey(name string) (string, bool) {
	if nodey.IsUnsavedName(name) {
		_, ok := s.unsaved[name]

		return name, ok
	}

	return nodey.KeyFromName(name)
}

// NotebookKey returns the identity key of the notebook root.
func (s *Store) NotebookKey() string { return s.notebook }

// Notebook returns the head name of the notebook root, or "" when none exists.
func (s *Store) Notebook() string {
	if s.notebook == "" {
		return ""
	}

	return s.HeadName(s.notebook + ".0")
}

// Keys lists every identity key, grouped by type character and ordered by id.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.chains))
	for k := range s.chains {
		keys = append(keys, k)
	}

	slices.SortFunc(keys, compareKeys)

	return keys
}

// VersionsOf lists the committed snapshots of an identity key.
func (s *Store) VersionsOf(key string) []nodey.Nodey {
	h, ok := s.chains[key]
	if !ok {
		return nil
	}

	return h.Versions()
}

// Stars lists every outstanding shadow ordered by name.
func (s *Store) Stars() []*Star {
	var out []*Star

	for _, h := range s.chains {
		if h.star != nil {
			out = append(out, h.star)
		}
	}

	for _, star := range s.unsaved {
		out = append(out, star)
	}

	slices.SortFunc(out, func(a, b *Star) int { return cmp.Compare(a.Name(), b.Name()) })

	return out
}

func (s *Store) storeUnsaved(star *Star, l *Live) {
	s.seq++
	star.Seq = s.seq
	s.unsaved[star.Name()] = star
	s.live[star.Name()] = l
}

func (s *Store) dropUnsaved(name string) {
	delete(s.unsaved, name)
	delete(s.live, name)
}

// promote commits an unsaved star as version 0 of a fresh identity and moves
// its live state to the new key.
func (s *Store) promote(star *Star, cp int) nodey.Nodey {
	temp := star.Name()
	l := s.live[temp]
	s.dropUnsaved(temp)

	star.Value.Common().ID = nodey.NoID
	s.Create(star.Value, cp)

	if l != nil {
		s.live[nodey.Key(star.Value)] = l
	}

	return star.Value
}

// cleanOutStars drops unsaved stars created under a cell that the cell's
// commit never reached. It returns how many were dropped.
func (s *Store) cleanOutStars(cellID int) int {
	var drop []string

	for name, star := range s.unsaved {
		if star.CellID == cellID {
			drop = append(drop, name)
		}
	}

	for _, name := range drop {
		s.dropUnsaved(name)
	}

	return len(drop)
}

// relinkFrom derives live parent and sibling links by walking down from name.
func (s *Store) relinkFrom(name string) {
	n := s.MustGet(name)
	children := nodey.ChildNames(n)

	for i, child := range children {
		l := s.Live(child)
		l.Parent = name

		if n.Kind() != nodey.KindNotebook {
			l.Right = ""
			if i+1 < len(children) {
				l.Right = children[i+1]
			}
		}

		s.relinkFrom(child)
	}
}

func liveFrom(n nodey.Nodey) *Live {
	l := &Live{Parent: n.Common().Parent}

	if code, ok := nodey.AsCode(n); ok {
		l.Span = code.Span()
		l.Right = code.Right
	}

	return l
}

func compareKeys(a, b string) int {
	ta, ia, _, _ := nodey.SplitName(a + ".0")
	tb, ib, _, _ := nodey.SplitName(b + ".0")

	if c := cmp.Compare(ta, tb); c != 0 {
		return c
	}

	return cmp.Compare(ia, ib)
}
