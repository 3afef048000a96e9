package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/verstree/pkg/config"
)

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func testApp(t *testing.T) *app {
	t.Helper()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	cfg.History.Dir = t.TempDir()

	return &app{cfg: cfg, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestWatch_OpenAndUpdate(t *testing.T) {
	t.Parallel()

	a := testApp(t)
	path := writeSource(t, "main.py", "x = 1\n")

	var out bytes.Buffer

	w, err := a.openWatched(t.Context(), path, &out)
	require.NoError(t, err)
	assert.FileExists(t, a.logPath())

	changed, err := w.update(t.Context(), "x = 1\n")
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, os.WriteFile(path, []byte("x = 2\n"), 0o600))
	require.NoError(t, w.reload(t.Context()))
	assert.Contains(t, out.String(), "checkpoint 1 (save)")
	w.sess.Close()

	// Reopening resumes the log and checkpoints the drift on disk.
	require.NoError(t, os.WriteFile(path, []byte("x = 3\n"), 0o600))

	out.Reset()

	w, err = a.openWatched(t.Context(), path, &out)
	require.NoError(t, err)
	defer w.sess.Close()

	assert.Contains(t, out.String(), "checkpoint 2 (save)")
	assert.Len(t, w.sess.Store().Checkpoints(), 3)
	assert.Equal(t, "x = 3\n", w.sess.Text())
}

func TestWatch_ReloadMissingFile(t *testing.T) {
	t.Parallel()

	a := testApp(t)
	path := writeSource(t, "main.py", "x = 1\n")

	w, err := a.openWatched(t.Context(), path, io.Discard)
	require.NoError(t, err)
	defer w.sess.Close()

	require.NoError(t, os.Remove(path))
	require.NoError(t, w.reload(t.Context()))
	assert.Len(t, w.sess.Store().Checkpoints(), 1)
}

func TestWatch_LoopDebouncesEvents(t *testing.T) {
	t.Parallel()

	a := testApp(t)
	path := writeSource(t, "main.py", "x = 1\n")

	out := &syncBuffer{}

	w, err := a.openWatched(t.Context(), path, out)
	require.NoError(t, err)
	defer w.sess.Close()

	events := make(chan fsnotify.Event)
	errs := make(chan error)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() { done <- w.loop(ctx, events, errs, 10*time.Millisecond) }()

	require.NoError(t, os.WriteFile(path, []byte("x = 7\n"), 0o600))

	events <- fsnotify.Event{Name: filepath.Join(filepath.Dir(path), "other.py"), Op: fsnotify.Write}
	events <- fsnotify.Event{Name: path, Op: fsnotify.Chmod}
	events <- fsnotify.Event{Name: path, Op: fsnotify.Write}
	events <- fsnotify.Event{Name: path, Op: fsnotify.Write}

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("checkpoint 1 (save)"))
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.NotContains(t, out.String(), "checkpoint 2")
}

func TestDocumentSlug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		uri  string
		want string
	}{
		{"file:///home/me/src/main.py", "home_me_src_main.py"},
		{"file:///C:/work/a%20b.go", "C__work_a_b.go"},
		{"untitled:Untitled-1", "untitled_Untitled-1"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, documentSlug(tt.uri), tt.uri)
	}
}
