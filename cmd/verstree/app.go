package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/verstree/pkg/config"
	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/observability"
	"github.com/Sumatoshi-tech/verstree/pkg/parser"
	"github.com/Sumatoshi-tech/verstree/pkg/persist"
	"github.com/Sumatoshi-tech/verstree/pkg/session"
	"github.com/Sumatoshi-tech/verstree/pkg/version"
)

// ErrNoHistory is returned when a command needs a saved log and none exists.
var ErrNoHistory = errors.New("no version log found; run replay or watch first")

// app carries the flags and configuration shared by every command.
type app struct {
	cfgFile  string
	dir      string
	basename string
	codec    string
	language string
	verbose  bool
	quiet    bool

	cfg    *config.Config
	logger *slog.Logger
}

// init loads the configuration and applies flag overrides.
func (a *app) init(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(a.cfgFile)
	if err != nil {
		return err
	}

	if a.dir != "" {
		cfg.History.Dir = a.dir
	}

	if a.basename != "" {
		cfg.History.Basename = a.basename
	}

	if a.codec != "" {
		if _, err := persist.CodecByName(a.codec); err != nil {
			return fmt.Errorf("%w: %q", config.ErrInvalidCodec, a.codec)
		}

		cfg.History.Codec = a.codec
	}

	if a.language != "" {
		cfg.Parser.Language = a.language
	}

	if a.verbose {
		cfg.Logging.Level = "debug"
	}

	if a.quiet {
		cfg.Logging.Level = "error"
	}

	a.cfg = cfg
	a.logger = observability.NewLoggerTo(cmd.ErrOrStderr(), a.observability(observability.ModeCLI))

	return nil
}

func (a *app) observability(mode observability.AppMode) observability.Config {
	return a.cfg.Observability(version.Version, mode)
}

// telemetry starts OTel providers for long-running modes. The returned
// function flushes them.
func (a *app) telemetry(mode observability.AppMode) (observability.Providers, func(), error) {
	providers, err := observability.Init(a.observability(mode))
	if err != nil {
		return observability.Providers{}, nil, err
	}

	a.logger = providers.Logger

	return providers, func() {
		if shutdownErr := providers.Shutdown(context.Background()); shutdownErr != nil {
			providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}, nil
}

func (a *app) persister() *persist.Persister[history.Log] {
	return session.Persister(a.cfg.History.Basename, a.cfg.Codec())
}

func (a *app) logPath() string {
	return a.persister().Path(a.cfg.History.Dir)
}

func (a *app) persistence() session.Option {
	return session.WithPersistence(a.cfg.History.Dir, a.persister(), a.cfg.History.ValidateOnLoad)
}

// sessionOptions are the options every session of the CLI is opened with.
func (a *app) sessionOptions(extra ...session.Option) []session.Option {
	opts := []session.Option{
		session.WithLogger(a.logger),
		session.WithQueueSize(a.cfg.Parser.QueueSize),
		a.persistence(),
	}

	return append(opts, extra...)
}

// parserFor picks the grammar for a file.
func (a *app) parserFor(filename string, content []byte) (*parser.TreeSitter, error) {
	return parser.ForFile(filename, content, a.cfg.Parser.Language)
}

// loadStore restores the saved log, validating JSON logs when configured.
func (a *app) loadStore() (*history.Store, error) {
	if _, err := os.Stat(a.logPath()); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoHistory, a.logPath())
	}

	p := a.persister()

	if a.cfg.History.ValidateOnLoad {
		data, ok, err := p.PlainJSON(a.cfg.History.Dir)
		if err != nil {
			return nil, err
		}

		if ok {
			if err := history.ValidateLog(data); err != nil {
				return nil, err
			}
		}
	}

	var store *history.Store

	err := p.Load(a.cfg.History.Dir, func(log *history.Log) error {
		restored, restoreErr := history.Restore(log)
		store = restored

		return restoreErr
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", a.logPath(), err)
	}

	return store, nil
}

func (a *app) saveStore(store *history.Store) error {
	if err := os.MkdirAll(a.cfg.History.Dir, 0o750); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	return a.persister().Save(a.cfg.History.Dir, store.Snapshot)
}

// printf writes unless --quiet is set.
func (a *app) printf(w io.Writer, format string, args ...any) {
	if !a.quiet {
		fmt.Fprintf(w, format, args...)
	}
}
