package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ideapedyudi/tabby/internal/platform"
)

// ignoreWindow is how long after our own Save file events are ignored.
const ignoreWindow = time.Second

const debounce = 100 * time.Millisecond

var (
	lastSelfWrite   time.Time
	lastSelfWriteMu sync.RWMutex
)

func markSelfWrite() {
	lastSelfWriteMu.Lock()
	lastSelfWrite = time.Now()
	lastSelfWriteMu.Unlock()
}

func recentSelfWrite() bool {
	lastSelfWriteMu.RLock()
	defer lastSelfWriteMu.RUnlock()
	return time.Since(lastSelfWrite) < ignoreWindow
}

// Watcher reloads config.toml when it changes on disk.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	onChange func(*Config)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher watches the config directory. onChange receives every
// successfully parsed config; parse errors are logged and skipped.
func NewWatcher(onChange func(*Config)) (*Watcher, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if warn := platform.CheckFsnotifySupport(dir); warn != "" {
		configLog.Warn("config_watch_unreliable", slog.String("dir", dir), slog.String("reason", warn))
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		dir:      dir,
		watcher:  fw,
		onChange: onChange,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)

	var (
		timer   *time.Timer
		timerMu sync.Mutex
	)
	target := filepath.Join(w.dir, ConfigFileName)

	for {
		select {
		case <-w.ctx.Done():
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timerMu.Unlock()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, w.reload)
			timerMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			configLog.Warn("config_watcher_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) reload() {
	if w.ctx.Err() != nil {
		return
	}
	if recentSelfWrite() {
		configLog.Debug("config_watcher_ignoring_own_save")
		return
	}
	cfg, err := Reload()
	if err != nil {
		configLog.Warn("config_reload_failed", slog.String("error", err.Error()))
		return
	}
	configLog.Info("config_reloaded", slog.Int("profiles", len(cfg.Profiles)))
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Close stops watching. Safe to call multiple times.
func (w *Watcher) Close() {
	w.cancel()
	_ = w.watcher.Close()
	<-w.done
}
