// Package lsp serves version tracking over the Language Server Protocol.
// Each open document becomes a session: changes are reconciled as they
// arrive, saves become checkpoints, and hover reports the identity and
// version of the node under the cursor.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
	"github.com/Sumatoshi-tech/verstree/pkg/observability"
	"github.com/Sumatoshi-tech/verstree/pkg/parser"
	"github.com/Sumatoshi-tech/verstree/pkg/resolve"
	"github.com/Sumatoshi-tech/verstree/pkg/session"
)

const serverName = "verstree"

// Commands accepted by workspace/executeCommand. Every command takes the
// document URI as its first argument.
const (
	// CommandCheckpoint commits pending edits: [uri, kind?].
	CommandCheckpoint = "verstree.checkpoint"
	// CommandRun records a cell output: [uri, outputJSON].
	CommandRun = "verstree.run"
	// CommandRevert rolls the document back: [uri, name].
	CommandRevert = "verstree.revert"
)

var commands = []string{CommandCheckpoint, CommandRun, CommandRevert}

// Sentinel errors.
var (
	ErrUnknownDocument = errors.New("lsp: document is not open")
	ErrUnknownCommand  = errors.New("lsp: unknown command")
	ErrBadArguments    = errors.New("lsp: bad command arguments")
)

// ParserFactory picks the parser for a document.
type ParserFactory func(uri, text string) (parser.Parser, error)

// ServerDeps holds injectable dependencies for the server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Metrics is an optional RED metrics recorder for handlers.
	Metrics *observability.REDMetrics

	// HistoryMetrics counts reconciliation and commit events.
	HistoryMetrics *observability.HistoryMetrics

	// Tracer is an optional OTel tracer. Nil disables tracing.
	Tracer trace.Tracer

	// Parsers picks a parser per document. Nil detects the language from
	// the URI, or uses Language when set.
	Parsers  ParserFactory
	Language string

	// Persistence returns the version log location of a document. Nil, or
	// a nil option, keeps history in memory only.
	Persistence func(uri string) session.Option

	Version string
}

// DocumentStore is a thread-safe map of open sessions keyed by URI.
type DocumentStore struct {
	documents map[string]*session.Session
	mu        sync.RWMutex
}

// NewDocumentStore creates a new empty DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]*session.Session),
	}
}

// Set stores the session for uri.
func (ds *DocumentStore) Set(uri string, s *session.Session) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	ds.documents[uri] = s
}

// Get retrieves the session for uri.
func (ds *DocumentStore) Get(uri string) (*session.Session, bool) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	s, ok := ds.documents[uri]

	return s, ok
}

// Delete removes the session for uri and returns it.
func (ds *DocumentStore) Delete(uri string) (*session.Session, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	s, ok := ds.documents[uri]
	delete(ds.documents, uri)

	return s, ok
}

// URIs lists the open documents.
func (ds *DocumentStore) URIs() []string {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	out := make([]string, 0, len(ds.documents))
	for uri := range ds.documents {
		out = append(out, uri)
	}

	return out
}

// Server implements the verstree language server.
type Server struct {
	deps    ServerDeps
	logger  *slog.Logger
	store   *DocumentStore
	handler protocol.Handler
	// mu serialises session access; sessions are single-writer.
	mu sync.Mutex
}

// NewServer creates a language server with default handlers.
func NewServer(deps ServerDeps) *Server {
	srv := &Server{
		deps:   deps,
		logger: observability.OrDefault(deps.Logger),
		store:  NewDocumentStore(),
	}

	if srv.deps.Parsers == nil {
		srv.deps.Parsers = srv.detectParser
	}

	srv.handler = protocol.Handler{
		Initialize:              srv.initialize,
		Initialized:             srv.initialized,
		Shutdown:                srv.shutdown,
		SetTrace:                srv.setTrace,
		TextDocumentDidOpen:     srv.didOpen,
		TextDocumentDidChange:   srv.didChange,
		TextDocumentDidSave:     srv.didSave,
		TextDocumentDidClose:    srv.didClose,
		TextDocumentHover:       srv.hover,
		WorkspaceExecuteCommand: srv.executeCommand,
	}

	return srv
}

// Documents returns the open document store.
func (srv *Server) Documents() *DocumentStore { return srv.store }

// Run starts the server on stdio.
func (srv *Server) Run() error {
	lspServer := server.NewServer(&srv.handler, serverName, false)

	err := lspServer.RunStdio()
	if err != nil {
		return fmt.Errorf("lsp server: %w", err)
	}

	return nil
}

func (srv *Server) detectParser(uri, text string) (parser.Parser, error) {
	return parser.ForFile(strings.TrimPrefix(uri, "file://"), []byte(text), srv.deps.Language)
}

func (srv *Server) initialize(_ *glsp.Context, _ *protocol.InitializeParams) (any, error) {
	capabilities := srv.handler.CreateServerCapabilities()
	capabilities.ExecuteCommandProvider = &protocol.ExecuteCommandOptions{Commands: commands}

	version := srv.deps.Version

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    serverName,
			Version: &version,
		},
	}, nil
}

func (srv *Server) initialized(_ *glsp.Context, _ *protocol.InitializedParams) error {
	return nil
}

func (srv *Server) shutdown(_ *glsp.Context) error {
	protocol.SetTraceValue(protocol.TraceValueOff)
	srv.closeAll()

	return nil
}

// closeAll closes every open session.
func (srv *Server) closeAll() {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	for _, uri := range srv.store.URIs() {
		if s, ok := srv.store.Delete(uri); ok {
			s.Close()
		}
	}
}

func (srv *Server) setTrace(_ *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)

	return nil
}

func (srv *Server) didOpen(_ *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	return srv.track("didOpen", func(ctx context.Context) error {
		uri := params.TextDocument.URI

		s, err := srv.open(ctx, uri, params.TextDocument.Text)
		if err != nil {
			return err
		}

		if old, ok := srv.store.Delete(uri); ok {
			old.Close()
		}

		srv.store.Set(uri, s)

		return nil
	})
}

// open resumes the document's saved history when there is one. A saved
// text that differs from the opened one becomes a tracked edit.
func (srv *Server) open(ctx context.Context, uri, text string) (*session.Session, error) {
	p, err := srv.deps.Parsers(uri, text)
	if err != nil {
		return nil, err
	}

	opts := srv.sessionOptions(uri)

	if srv.persistence(uri) != nil {
		s, loadErr := session.Load(ctx, p, opts...)
		if loadErr == nil {
			if s.Text() != text {
				if err := s.SetText(ctx, text); err != nil {
					s.Close()

					return nil, err
				}
			}

			return s, nil
		}

		srv.logger.DebugContext(ctx, "no saved history, starting fresh", "uri", uri, "error", loadErr)
	}

	return session.New(ctx, p, text, opts...)
}

func (srv *Server) persistence(uri string) session.Option {
	if srv.deps.Persistence == nil {
		return nil
	}

	return srv.deps.Persistence(uri)
}

func (srv *Server) sessionOptions(uri string) []session.Option {
	opts := []session.Option{
		session.WithLogger(srv.logger.With("uri", uri)),
		session.WithMetrics(srv.deps.HistoryMetrics),
	}

	if srv.deps.Tracer != nil {
		opts = append(opts, session.WithTracer(srv.deps.Tracer))
	}

	if p := srv.persistence(uri); p != nil {
		opts = append(opts, p)
	}

	return opts
}

func (srv *Server) didChange(_ *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	return srv.withSession("didChange", params.TextDocument.URI, func(ctx context.Context, s *session.Session) error {
		for _, change := range params.ContentChanges {
			if err := applyChange(ctx, s, change); err != nil {
				return err
			}
		}

		_, err := s.Pump(ctx)

		return err
	})
}

func applyChange(ctx context.Context, s *session.Session, change any) error {
	switch c := change.(type) {
	case protocol.TextDocumentContentChangeEvent:
		return replaceRange(ctx, s, c.Range, c.Text)
	case *protocol.TextDocumentContentChangeEvent:
		return replaceRange(ctx, s, c.Range, c.Text)
	case protocol.TextDocumentContentChangeEventWhole:
		return s.SetText(ctx, c.Text)
	case *protocol.TextDocumentContentChangeEventWhole:
		return s.SetText(ctx, c.Text)
	default:
		return fmt.Errorf("lsp: unsupported content change %T", change)
	}
}

func replaceRange(ctx context.Context, s *session.Session, r *protocol.Range, text string) error {
	if r == nil {
		return s.SetText(ctx, text)
	}

	_, err := s.Replace(ctx, toPos(r.Start), toPos(r.End), text)

	return err
}

func (srv *Server) didSave(_ *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	return srv.withSession("didSave", params.TextDocument.URI, func(ctx context.Context, s *session.Session) error {
		if params.Text != nil && *params.Text != s.Text() {
			if err := s.SetText(ctx, *params.Text); err != nil {
				return err
			}
		}

		return srv.checkpoint(ctx, params.TextDocument.URI, s, history.CheckpointSave)
	})
}

func (srv *Server) checkpoint(ctx context.Context, uri string, s *session.Session, kind history.CheckpointKind) error {
	sum, err := s.Checkpoint(ctx, kind)
	if err != nil {
		return err
	}

	srv.logger.InfoContext(ctx, "checkpoint",
		"uri", uri, "kind", kind, "checkpoint", sum.Checkpoint, "appended", sum.Appended)

	return srv.save(s)
}

func (srv *Server) save(s *session.Session) error {
	err := s.Save()
	if errors.Is(err, session.ErrNoPersistence) {
		return nil
	}

	return err
}

func (srv *Server) didClose(_ *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if s, ok := srv.store.Delete(params.TextDocument.URI); ok {
		s.Close()
	}

	return nil
}

func (srv *Server) hover(_ *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	var result *protocol.Hover

	err := srv.withSession("hover", params.TextDocument.URI, func(ctx context.Context, s *session.Session) error {
		if _, err := s.Pump(ctx); err != nil {
			return err
		}

		at := toPos(params.Position)
		name := resolve.FindNodeAtRange(s.Store(), s.Cell(), nodey.Span{Start: at, End: at})

		result = &protocol.Hover{
			Contents: protocol.MarkupContent{
				Kind:  protocol.MarkupKindMarkdown,
				Value: Describe(s.Store(), name),
			},
		}

		return nil
	})
	if errors.Is(err, ErrUnknownDocument) {
		return nil, nil // LSP protocol expects nil hover when no document found.
	}

	return result, err
}

// Describe renders the identity and version chain of a node as markdown.
func Describe(store *history.Store, name string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "**%s**", strings.ReplaceAll(name, "*", `\*`))

	if n, ok := store.Latest(name); ok {
		if code, isCode := nodey.AsCode(n); isCode {
			fmt.Fprintf(&b, " `%s`", code.Type)
		}
	}

	key, ok := nodey.KeyFromName(name)
	if !ok {
		b.WriteString("\n\nnew, not committed yet")

		return b.String()
	}

	versions := store.VersionsOf(key)
	fmt.Fprintf(&b, "\n\n%s", english.Plural(len(versions), "committed version", ""))

	if len(versions) > 0 {
		last := versions[len(versions)-1]
		if cp, found := store.Checkpoint(last.Common().Created); found {
			fmt.Fprintf(&b, ", last at checkpoint %d (%s, %s)", cp.ID, cp.Kind, humanize.Time(cp.Time))
		}
	}

	if nodey.IsStarName(name) {
		b.WriteString("\n\nedited since the last checkpoint")
	}

	return b.String()
}

func (srv *Server) executeCommand(_ *glsp.Context, params *protocol.ExecuteCommandParams) (any, error) {
	uri, err := stringArg(params.Arguments, 0)
	if err != nil {
		return nil, err
	}

	var result any

	err = srv.withSession(params.Command, uri, func(ctx context.Context, s *session.Session) error {
		var cmdErr error

		result, cmdErr = srv.runCommand(ctx, uri, s, params)

		return cmdErr
	})

	return result, err
}

func (srv *Server) runCommand(ctx context.Context, uri string, s *session.Session, params *protocol.ExecuteCommandParams) (any, error) {
	switch params.Command {
	case CommandCheckpoint:
		kind := history.CheckpointEdit

		if len(params.Arguments) > 1 {
			raw, err := stringArg(params.Arguments, 1)
			if err != nil {
				return nil, err
			}

			if kind, err = history.ParseCheckpointKind(raw); err != nil {
				return nil, err
			}
		}

		if err := srv.checkpoint(ctx, uri, s, kind); err != nil {
			return nil, err
		}

		return s.Cell(), nil
	case CommandRun:
		raw, err := stringArg(params.Arguments, 1)
		if err != nil {
			return nil, err
		}

		if _, err := s.Run(ctx, json.RawMessage(raw)); err != nil {
			return nil, err
		}

		return s.Cell(), srv.save(s)
	case CommandRevert:
		name, err := stringArg(params.Arguments, 1)
		if err != nil {
			return nil, err
		}

		if _, err := s.Revert(ctx, name); err != nil {
			return nil, err
		}

		return s.Text(), srv.save(s)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, params.Command)
	}
}

func stringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w: missing argument %d", ErrBadArguments, i)
	}

	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%w: argument %d is %T, want string", ErrBadArguments, i, args[i])
	}

	return s, nil
}

// withSession runs fn on the open session for uri under the server lock.
func (srv *Server) withSession(op, uri string, fn func(context.Context, *session.Session) error) error {
	return srv.track(op, func(ctx context.Context) error {
		s, ok := srv.store.Get(uri)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownDocument, uri)
		}

		return fn(ctx, s)
	})
}

// track serialises a handler and records RED metrics and a span for it.
func (srv *Server) track(op string, fn func(context.Context) error) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	ctx := context.Background()
	op = "lsp." + op

	if srv.deps.Tracer != nil {
		var span trace.Span

		ctx, span = srv.deps.Tracer.Start(ctx, op, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
	}

	start := time.Now()

	if srv.deps.Metrics != nil {
		decInflight := srv.deps.Metrics.TrackInflight(ctx, op)
		defer decInflight()
	}

	err := fn(ctx)

	status := "ok"
	if err != nil {
		status = "error"

		srv.logger.WarnContext(ctx, "request failed", "op", op, "error", err)
	}

	if srv.deps.Metrics != nil {
		srv.deps.Metrics.RecordRequest(ctx, op, status, time.Since(start))
	}

	return err
}

// toPos converts an LSP position. Columns are taken as byte offsets.
func toPos(p protocol.Position) nodey.Pos {
	return nodey.Pos{Line: int(p.Line), Ch: int(p.Character)}
}
