package declgraph

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("declarations:\n  - name: Int\n    kind: struct\n"), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	models := make(chan *Model, 4)
	errs := make(chan error, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(m *Model) { models <- m }, func(err error) { errs <- err })
	}()

	// Give the watcher a moment to arm before the first write.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("declarations:\n  - name: Int\n    kind: struct\n  - name: Pair\n    kind: struct\n"), 0o644))

	select {
	case m := <-models:
		_, ok := m.Graph.Declaration("Pair")
		require.True(t, ok, "reloaded model should carry the new declaration")
	case err := <-errs:
		t.Fatalf("unexpected watch error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	// A broken write surfaces on the error callback and keeps the loop alive.
	require.NoError(t, os.WriteFile(path, []byte("declarations:\n  - name: X\n    kind: widget\n"), 0o644))
	select {
	case err := <-errs:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for load error")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on cancellation")
	}
}
