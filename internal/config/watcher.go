package config

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher monitors a config file for changes and calls a callback when
// the file is modified. It polls rather than using inotify so the same
// code works on every platform the server deploys to.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu       sync.Mutex
	current  *Config
	done     chan struct{}
	stopOnce sync.Once

	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides the default one-second poll interval.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path and returns a watcher that invokes
// onChange with the previous and freshly loaded config whenever the file
// content changes and still validates. Invalid rewrites are logged and
// skipped; the previous config stays active.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w.current = cfg
	if mtime, hash, err := w.fileState(); err == nil {
		w.lastMtime, w.lastHash = mtime, hash
	}
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Start begins polling. It returns immediately; call [Watcher.Stop] to
// end the background goroutine.
func (w *Watcher) Start() {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.done:
				return
			case <-ticker.C:
				w.poll()
			}
		}
	}()
}

// Stop ends polling. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) poll() {
	mtime, hash, err := w.fileState()
	if err != nil {
		slog.Warn("config watcher cannot stat file", "path", w.path, "error", err)
		return
	}
	w.mu.Lock()
	unchanged := mtime.Equal(w.lastMtime) && hash == w.lastHash
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		slog.Error("config reload failed, keeping previous config", "path", w.path, "error", err)
		w.mu.Lock()
		w.lastMtime, w.lastHash = mtime, hash
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	w.lastMtime, w.lastHash = mtime, hash
	w.mu.Unlock()

	slog.Info("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

func (w *Watcher) fileState() (time.Time, [sha256.Size]byte, error) {
	var zero [sha256.Size]byte
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}, zero, err
	}
	f, err := os.Open(w.path)
	if err != nil {
		return time.Time{}, zero, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return time.Time{}, zero, fmt.Errorf("hash %q: %w", w.path, err)
	}
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return info.ModTime(), sum, nil
}
