package history

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
)

// CheckpointKind names the event that opened a checkpoint.
type CheckpointKind string

// Checkpoint kinds.
const (
	CheckpointSeed    CheckpointKind = "seed"
	CheckpointSave    CheckpointKind = "save"
	CheckpointRun     CheckpointKind = "run"
	CheckpointRevert  CheckpointKind = "revert"
	CheckpointAddCell CheckpointKind = "add-cell"
	CheckpointEdit    CheckpointKind = "edit"
)

var checkpointKinds = []CheckpointKind{
	CheckpointSeed, CheckpointSave, CheckpointRun,
	CheckpointRevert, CheckpointAddCell, CheckpointEdit,
}

// ParseCheckpointKind validates a kind read from user input.
func ParseCheckpointKind(s string) (CheckpointKind, error) {
	kind := CheckpointKind(s)
	if !slices.Contains(checkpointKinds, kind) {
		return "", fmt.Errorf("%w: %q", ErrUnknownCheckpointKind, s)
	}

	return kind, nil
}

// ChangeKind says what a checkpoint did to one cell.
type ChangeKind string

// Cell change kinds.
const (
	ChangeAdded     ChangeKind = "added"
	ChangeChanged   ChangeKind = "changed"
	ChangeUnchanged ChangeKind = "unchanged"
)

// CellChange records the head name of a cell after a checkpoint.
type CellChange struct {
	Name   string     `json:"name"`
	Change ChangeKind `json:"change"`
}

// Checkpoint is one commit boundary. Ids increase monotonically and stamp
// every version created at the boundary.
type Checkpoint struct {
	ID    int            `json:"id"`
	Kind  CheckpointKind `json:"kind"`
	Time  time.Time      `json:"time"`
	Cells []CellChange   `json:"cells,omitempty"`
}

// SetClock replaces the time source used to stamp checkpoints.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// NewCheckpoint opens the next checkpoint.
func (s *Store) NewCheckpoint(kind CheckpointKind) Checkpoint {
	now := s.now
	if now == nil {
		now = defaultClock
	}

	cp := Checkpoint{ID: len(s.checkpoints), Kind: kind, Time: now()}
	s.checkpoints = append(s.checkpoints, cp)

	return cp
}

// Checkpoint returns the checkpoint with the given id.
func (s *Store) Checkpoint(id int) (Checkpoint, bool) {
	if id < 0 || id >= len(s.checkpoints) {
		return Checkpoint{}, false
	}

	return s.checkpoints[id], true
}

// Checkpoints lists every checkpoint, oldest first.
func (s *Store) Checkpoints() []Checkpoint {
	return slices.Clone(s.checkpoints)
}

// CreatedIn lists the names of every version stamped with checkpoint id,
// in key order.
func (s *Store) CreatedIn(id int) []string {
	var out []string

	for _, key := range s.Keys() {
		for _, n := range s.chains[key].versions {
			if n.Common().Created == id {
				out = append(out, nodey.Name(n))
			}
		}
	}

	return out
}

func (s *Store) setCheckpointCells(id int, cells []CellChange) {
	if id >= 0 && id < len(s.checkpoints) {
		s.checkpoints[id].Cells = cells
	}
}

func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Checkpoint opens a checkpoint of the given kind and commits every
// outstanding shadow under it.
func (st *Stage) Checkpoint(ctx context.Context, kind CheckpointKind) Summary {
	cp := st.store.NewCheckpoint(kind)

	sum := st.CommitAll(ctx, cp.ID)
	st.store.setCheckpointCells(cp.ID, sum.Cells)
	st.metrics.RecordCheckpoint(ctx, string(kind))

	return sum
}

// Rollback reverts name under a new revert checkpoint and commits the
// shadows the revert leaves behind. No checkpoint is opened when name
// cannot be reverted.
func (st *Stage) Rollback(ctx context.Context, name string) (Summary, error) {
	if err := st.revertible(name); err != nil {
		return Summary{}, err
	}

	cp := st.store.NewCheckpoint(CheckpointRevert)

	if _, err := st.Revert(cp.ID, name); err != nil {
		return Summary{}, err
	}

	sum := st.CommitAll(ctx, cp.ID)
	st.store.setCheckpointCells(cp.ID, sum.Cells)
	st.metrics.RecordCheckpoint(ctx, string(CheckpointRevert))

	return sum, nil
}
