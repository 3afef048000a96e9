// Package session ties one tracked document to its version store: the
// editor buffer, the reconciler, the background parser, and the version
// log on disk.
//
// A Session is single-writer. Every method must be called from the same
// goroutine; only parsing happens elsewhere.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Sumatoshi-tech/verstree/pkg/editor"
	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
	"github.com/Sumatoshi-tech/verstree/pkg/parser"
	"github.com/Sumatoshi-tech/verstree/pkg/persist"
	"github.com/Sumatoshi-tech/verstree/pkg/resolve"
)

// Sentinel errors.
var (
	ErrNoPersistence = errors.New("session: no persistence configured")
	ErrNoCodeCell    = errors.New("session: notebook holds no code cell")
	ErrInvalidOutput = errors.New("session: output is not valid JSON")
)

// Session is one document under version tracking. The document is a
// notebook holding a single code cell.
type Session struct {
	store    *history.Store
	stage    *history.Stage
	rec      *resolve.Reconciler
	parser   parser.Parser
	req      *parser.Requester
	logger   *slog.Logger
	opts     options
	cell     string
	buf      *editor.Buffer
	output   json.RawMessage
	inflight int
}

// New parses text, seeds a fresh store with it, and starts the background
// parser. Close releases the parser.
func New(ctx context.Context, p parser.Parser, text string, opts ...Option) (*Session, error) {
	o := newOptions(opts)

	tree, err := p.Parse(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("session: initial parse: %w", err)
	}

	store := history.NewStore()
	if o.clock != nil {
		store.SetClock(o.clock)
	}

	cp := store.NewCheckpoint(history.CheckpointSeed)
	nb := resolve.Seed(store, cp.ID, tree, text)

	return start(ctx, p, store, store.MustGet(nb).(*nodey.Notebook).Cells[0], o), nil
}

// Load restores the store from the configured version log and resumes
// tracking its first code cell.
func Load(ctx context.Context, p parser.Parser, opts ...Option) (*Session, error) {
	o := newOptions(opts)
	if o.persister == nil {
		return nil, ErrNoPersistence
	}

	if o.validate {
		data, ok, err := o.persister.PlainJSON(o.dir)
		if err != nil {
			return nil, fmt.Errorf("session: load: %w", err)
		}

		if ok {
			if err := history.ValidateLog(data); err != nil {
				return nil, fmt.Errorf("session: load: %w", err)
			}
		}
	}

	var store *history.Store

	err := o.persister.Load(o.dir, func(log *history.Log) error {
		restored, err := history.Restore(log)
		store = restored

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}

	if o.clock != nil {
		store.SetClock(o.clock)
	}

	cell, err := firstCodeCell(store)
	if err != nil {
		return nil, err
	}

	return start(ctx, p, store, cell, o), nil
}

func start(ctx context.Context, p parser.Parser, store *history.Store, cell string, o options) *Session {
	s := &Session{
		store:  store,
		parser: p,
		logger: o.logger,
		opts:   o,
		cell:   cell,
		buf:    editor.NewBuffer(store.Text(cell)),
	}

	s.stage = history.NewStage(store,
		history.WithCellSource(s),
		history.WithLogger(o.logger),
		history.WithMetrics(o.metrics),
	)
	s.rec = resolve.NewReconciler(s.stage,
		resolve.WithLogger(o.logger),
		resolve.WithTracer(o.tracer),
		resolve.WithMetrics(o.metrics),
	)
	s.req = parser.NewRequester(p, o.queueSize,
		parser.WithLogger(o.logger),
		parser.WithTracer(o.tracer),
	)
	s.req.Start(ctx)

	return s
}

func firstCodeCell(store *history.Store) (string, error) {
	nb, ok := store.Latest(store.Notebook())
	if !ok {
		return "", ErrNoCodeCell
	}

	for _, cell := range nodey.ChildNames(nb) {
		if n, ok := store.Get(cell); ok && n.Kind() == nodey.KindCodeCell {
			return cell, nil
		}
	}

	return "", ErrNoCodeCell
}

// Store returns the version store.
func (s *Session) Store() *history.Store { return s.store }

// Stage returns the staging layer.
func (s *Session) Stage() *history.Stage { return s.stage }

// Cell returns the head name of the tracked cell.
func (s *Session) Cell() string { return s.store.HeadName(s.cell) }

// Text returns the live document text.
func (s *Session) Text() string { return s.buf.Text() }

// Buffer returns the live document.
func (s *Session) Buffer() editor.Document { return s.buf }

// Inflight reports how many parse requests have not been answered yet.
func (s *Session) Inflight() int { return s.inflight }

// Replace edits the document and requests a parse of the affected node.
func (s *Session) Replace(ctx context.Context, from, to nodey.Pos, text string) (editor.Change, error) {
	c, err := s.buf.Replace(from, to, text)
	if err != nil {
		return editor.Change{}, err
	}

	return c, s.track(ctx, c)
}

// Apply performs an editor change reported from outside.
func (s *Session) Apply(ctx context.Context, c editor.Change) error {
	if err := s.buf.Apply(c); err != nil {
		return err
	}

	return s.track(ctx, c)
}

// SetText replaces the whole document, as reported by editors that only
// send full saves. The difference becomes a series of changes.
func (s *Session) SetText(ctx context.Context, text string) error {
	for _, c := range editor.ChangesFromDiff(s.buf.Text(), text) {
		if err := s.Apply(ctx, c); err != nil {
			return err
		}
	}

	return nil
}

func (s *Session) track(ctx context.Context, c editor.Change) error {
	return s.submit(ctx, s.rec.Edit(ctx, s.Cell(), c, s.buf))
}

// submit queues req. While the queue is full it applies arrived responses,
// since the worker cannot take more requests until its answers are read.
func (s *Session) submit(ctx context.Context, req resolve.Request) error {
	for {
		queued, err := s.req.Offer(req)
		if err != nil {
			return fmt.Errorf("session: submit parse: %w", err)
		}

		if queued {
			s.inflight++

			return nil
		}

		select {
		case resp, ok := <-s.req.Responses():
			if !ok {
				return fmt.Errorf("session: submit parse: %w", parser.ErrClosed)
			}

			if err := s.deliver(ctx, resp); err != nil {
				return err
			}
		case <-ctx.Done():
			return fmt.Errorf("session: submit parse: %w", ctx.Err())
		}
	}
}

// Pump applies every parse response that has already arrived and returns
// how many it handled. It never blocks.
func (s *Session) Pump(ctx context.Context) (int, error) {
	handled := 0

	for {
		select {
		case resp, ok := <-s.req.Responses():
			if !ok {
				return handled, nil
			}

			handled++

			if err := s.deliver(ctx, resp); err != nil {
				return handled, err
			}
		default:
			return handled, nil
		}
	}
}

// Sync waits until every submitted parse was answered and applied.
func (s *Session) Sync(ctx context.Context) error {
	for s.inflight > 0 {
		select {
		case resp, ok := <-s.req.Responses():
			if !ok {
				s.inflight = 0

				return nil
			}

			if err := s.deliver(ctx, resp); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (s *Session) deliver(ctx context.Context, resp resolve.Response) error {
	s.inflight--

	res, err := s.rec.Receive(ctx, resp, s.buf)
	if err != nil {
		// The next edit or a full reparse repairs the tree.
		s.logger.WarnContext(ctx, "parse response rejected", "target", resp.Target, "error", err)

		return nil
	}

	if res.Retry != nil {
		return s.submit(ctx, *res.Retry)
	}

	return nil
}

// Reparse requests a parse of the whole cell.
func (s *Session) Reparse(ctx context.Context) error {
	return s.submit(ctx, s.rec.Tracker().RepairCell(ctx, s.Cell(), s.buf))
}

// Checkpoint waits for outstanding parses, then commits every shadow.
func (s *Session) Checkpoint(ctx context.Context, kind history.CheckpointKind) (history.Summary, error) {
	if err := s.Sync(ctx); err != nil {
		return history.Summary{}, err
	}

	return s.stage.Checkpoint(ctx, kind), nil
}

// Run records raw as the cell's execution output under a run checkpoint.
func (s *Session) Run(ctx context.Context, raw json.RawMessage) (history.Summary, error) {
	if !json.Valid(raw) {
		return history.Summary{}, ErrInvalidOutput
	}

	if err := s.Sync(ctx); err != nil {
		return history.Summary{}, err
	}

	s.output = raw
	s.stage.MarkAsEdited(s.Cell())

	return s.stage.Checkpoint(ctx, history.CheckpointRun), nil
}

// Revert rolls a cell or the notebook back to the named version and resets
// the document to its text.
func (s *Session) Revert(ctx context.Context, name string) (history.Summary, error) {
	if err := s.Sync(ctx); err != nil {
		return history.Summary{}, err
	}

	sum, err := s.stage.Rollback(ctx, name)
	if err != nil {
		return history.Summary{}, err
	}

	s.buf = editor.NewBuffer(s.store.Text(s.Cell()))

	return sum, nil
}

// Save writes the version log. Shadows are not part of it.
func (s *Session) Save() error {
	if s.opts.persister == nil {
		return ErrNoPersistence
	}

	return s.opts.persister.Save(s.opts.dir, s.store.Snapshot)
}

// Close stops the background parser. Responses still queued are dropped.
func (s *Session) Close() {
	s.req.Close()

	for range s.req.Responses() {
		s.inflight--
	}
}

// CellText implements history.CellSource.
func (s *Session) CellText(key string) (string, bool) {
	if k, _ := nodey.KeyFromName(s.cell); k != key {
		return "", false
	}

	return s.buf.Text(), true
}

// CellOutput implements history.CellSource.
func (s *Session) CellOutput(key string) (json.RawMessage, bool) {
	if k, _ := nodey.KeyFromName(s.cell); k != key || s.output == nil {
		return nil, false
	}

	return s.output, true
}

// Persister builds the version log persister for a codec.
func Persister(basename string, codec persist.Codec) *persist.Persister[history.Log] {
	return persist.NewPersister[history.Log](basename, codec)
}

var _ history.CellSource = (*Session)(nil)
