package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"frame-scrubber/internal/logging"
)

// DefaultDebounce is the quiet period before a change is reported.
const DefaultDebounce = 250 * time.Millisecond

// Op is the kind of change observed.
type Op int

const (
	// Modified means the file was written or replaced.
	Modified Op = iota
	// Removed means the file no longer exists under its name.
	Removed
)

func (o Op) String() string {
	if o == Removed {
		return "removed"
	}
	return "modified"
}

// Change is one debounced notification.
type Change struct {
	Path string
	Op   Op
}

// Watcher watches a single file.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(Change)
	fs       *fsnotify.Watcher
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Watcher for path. onChange runs on the watcher goroutine.
func New(path string, debounce time.Duration, onChange func(Change)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve watch path: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch source directory: %w", err)
	}

	return &Watcher{
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		fs:       fw,
		logger:   logging.With("watch"),
	}, nil
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Start begins delivering changes until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)

	w.logger.Debug().Str("path", w.path).Msg("watching source file")
}

func (w *Watcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	var pending *Change
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			op := Modified
			switch {
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				op = Removed
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
			default:
				continue
			}
			w.logger.Debug().Str("path", w.path).Str("op", event.Op.String()).Msg("source file event")
			pending = &Change{Path: w.path, Op: op}
			timer.Reset(w.debounce)

		case <-timer.C:
			if pending != nil && w.onChange != nil {
				w.onChange(*pending)
			}
			pending = nil

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Str("path", w.path).Msg("source watcher error")
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return w.fs.Close()
}
