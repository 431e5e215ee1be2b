package declgraph

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a graph file whenever it changes on disk. Events are
// debounced: editors typically emit several writes per save.
type Watcher struct {
	path     string
	debounce time.Duration
	fs       *fsnotify.Watcher
}

// NewWatcher watches one graph file. Close releases the underlying
// notifier.
func NewWatcher(path string) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating file watcher")
	}
	if err := fs.Add(path); err != nil {
		fs.Close()
		return nil, errors.Wrapf(err, "watching %s", path)
	}
	return &Watcher{path: path, debounce: 200 * time.Millisecond, fs: fs}, nil
}

func (w *Watcher) Close() error { return w.fs.Close() }

// Run invokes onChange with each freshly loaded model until the context is
// cancelled. Load failures go to onError and do not stop the loop; the
// previous model stays current until a valid one replaces it.
func (w *Watcher) Run(ctx context.Context, onChange func(*Model), onError func(error)) error {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			onError(err)
		case <-fire:
			fire = nil
			m, err := Load(w.path)
			if err != nil {
				onError(err)
				continue
			}
			onChange(m)
		}
	}
}
