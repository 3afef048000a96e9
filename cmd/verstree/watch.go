package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/observability"
	"github.com/Sumatoshi-tech/verstree/pkg/session"
)

const metricsReadTimeout = 5 * time.Second

func watchCmd(a *app) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch FILE",
		Short: "Checkpoint a file every time it is saved",
		Long: `Watch a source file and open a save checkpoint whenever its content
changes on disk. The saved log is resumed when one exists, so restarting
the watcher continues the same history.

With --metrics-addr (or telemetry.metrics_addr) a Prometheus scrape
endpoint is served at /metrics.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if metricsAddr != "" {
				a.cfg.Telemetry.MetricsAddr = metricsAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.runWatch(ctx, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func (a *app) runWatch(ctx context.Context, path string, out io.Writer) error {
	providers, shutdown, err := a.telemetry(observability.ModeWatch)
	if err != nil {
		return err
	}
	defer shutdown()

	metrics, stopMetrics, err := a.watchMetrics(ctx, providers)
	if err != nil {
		return err
	}
	defer stopMetrics()

	w, err := a.openWatched(ctx, path, out, session.WithTracer(providers.Tracer), session.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer w.sess.Close()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	a.logger.InfoContext(ctx, "watching", "file", w.path, "log", a.logPath())

	return w.loop(ctx, fsw.Events, fsw.Errors, a.cfg.Watch.Debounce)
}

// watchMetrics records history metrics on a Prometheus endpoint when one is
// configured, else on the OTel meter.
func (a *app) watchMetrics(ctx context.Context, providers observability.Providers) (*observability.HistoryMetrics, func(), error) {
	addr := a.cfg.Telemetry.MetricsAddr
	if addr == "" {
		m, err := observability.NewHistoryMetrics(providers.Meter)

		return m, func() {}, err
	}

	prom, err := observability.NewPrometheus()
	if err != nil {
		return nil, nil, err
	}

	m, err := observability.NewHistoryMetrics(prom.Meter())
	if err != nil {
		return nil, nil, err
	}

	red, err := observability.NewREDMetrics(prom.Meter())
	if err != nil {
		return nil, nil, err
	}

	srv, err := serveMetrics(ctx, addr, observability.InstrumentHandler("scrape", providers.Tracer, red, prom.Handler), a.logger)
	if err != nil {
		return nil, nil, err
	}

	return m, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsReadTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("metrics server shutdown failed", "error", err)
		}

		if err := prom.Provider.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("metrics provider shutdown failed", "error", err)
		}
	}, nil
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) (*http.Server, error) {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: metricsReadTimeout}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	logger.Info("serving metrics", "addr", ln.Addr().String())

	return srv, nil
}

// watched is one file tracked by a session.
type watched struct {
	a    *app
	path string
	sess *session.Session
	out  io.Writer
}

// openWatched resumes the saved log, or seeds a new one from the file.
func (a *app) openWatched(ctx context.Context, path string, out io.Writer, extra ...session.Option) (*watched, error) {
	content, resolved, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	p, err := a.parserFor(resolved, content)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(a.cfg.History.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	w := &watched{a: a, path: resolved, out: out}
	opts := a.sessionOptions(extra...)

	if _, statErr := os.Stat(a.logPath()); statErr == nil {
		w.sess, err = session.Load(ctx, p, opts...)
		if err != nil {
			return nil, err
		}

		if _, err := w.update(ctx, string(content)); err != nil {
			w.sess.Close()

			return nil, err
		}

		return w, nil
	}

	w.sess, err = session.New(ctx, p, string(content), opts...)
	if err != nil {
		return nil, err
	}

	if err := w.sess.Save(); err != nil {
		w.sess.Close()

		return nil, err
	}

	return w, nil
}

// update checkpoints text when it differs from the tracked text.
func (w *watched) update(ctx context.Context, text string) (bool, error) {
	if text == w.sess.Text() {
		return false, nil
	}

	if err := w.sess.SetText(ctx, text); err != nil {
		return false, err
	}

	sum, err := w.sess.Checkpoint(ctx, history.CheckpointSave)
	if err != nil {
		return false, err
	}

	if err := w.sess.Save(); err != nil {
		return false, err
	}

	w.a.printSummary(w.out, w.sess.Store(), sum)

	return true, nil
}

// reload reads the file and checkpoints it. A file that vanished between
// the event and the read is skipped; editors often save by rename.
func (w *watched) reload(ctx context.Context) error {
	content, err := os.ReadFile(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("read %s: %w", w.path, err)
	}

	_, err = w.update(ctx, string(content))

	return err
}

func (w *watched) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, debounce time.Duration) error {
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != w.path || (!event.Has(fsnotify.Write) && !event.Has(fsnotify.Create)) {
				continue
			}

			timer.Reset(debounce)
		case err, ok := <-errs:
			if !ok {
				return nil
			}

			w.a.logger.WarnContext(ctx, "watch error", "error", err)
		case <-timer.C:
			if err := w.reload(ctx); err != nil {
				w.a.logger.ErrorContext(ctx, "checkpoint failed", "file", w.path, "error", err)
			}
		}
	}
}
