// Package logging is tabby's structured logging: per-component slog loggers,
// a rotated debug.log, a crash ring buffer and per-tab stream metering.
package logging

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ideapedyudi/tabby/internal/scrollback"
)

// Component constants for structured logging.
const (
	CompTab      = "tab"
	CompSession  = "session"
	CompMenu     = "menu"
	CompRecovery = "recovery"
	CompProfile  = "profile"
	CompStorage  = "storage"
	CompWeb      = "web"
	CompUI       = "ui"
	CompCLI      = "cli"
)

// Config controls where logs go. Zero values get defaults from Init.
type Config struct {
	LogDir string // debug.log is written here
	Level  string // debug, info, warn or error
	Format string // json or text

	// Rotation of debug.log.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	RingBufferSize        int // bytes of recent records kept for crash dumps
	AggregateIntervalSecs int // how often stream_summary records are written
	PprofEnabled          bool
	Debug                 bool
}

// withDefaults fills zero fields with the documented defaults.
func (c Config) withDefaults() Config {
	def := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	def(&c.MaxSizeMB, 10)
	def(&c.MaxBackups, 5)
	def(&c.MaxAgeDays, 10)
	def(&c.RingBufferSize, 4*1024*1024)
	def(&c.AggregateIntervalSecs, 30)
	return c
}

// sink is everything Init sets up and Shutdown tears down.
type sink struct {
	logger *slog.Logger
	ring   *scrollback.Buffer
	meter  *Aggregator
	file   *lumberjack.Logger
}

var (
	globalMu sync.RWMutex
	current  *sink
)

// Init installs the process-wide logger. Without debug mode or a log dir,
// records are discarded but the crash ring still exists.
func Init(cfg Config) {
	cfg = cfg.withDefaults()
	s := &sink{}

	if !cfg.Debug && cfg.LogDir == "" {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
		s.ring = scrollback.New(1024)
		s.meter = NewAggregator(nil, cfg.AggregateIntervalSecs)
	} else {
		s.file = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "debug.log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		s.ring = scrollback.New(cfg.RingBufferSize)
		s.logger = slog.New(newHandler(io.MultiWriter(s.file, s.ring), cfg))
		s.meter = NewAggregator(s.logger, cfg.AggregateIntervalSecs)
		s.meter.Start()
	}

	globalMu.Lock()
	prev := current
	current = s
	globalMu.Unlock()
	prev.close()

	if cfg.PprofEnabled && s.file != nil {
		startPprof()
	}
}

func newHandler(w io.Writer, cfg Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func (s *sink) close() {
	if s == nil {
		return
	}
	s.meter.Stop()
	if s.file != nil {
		_ = s.file.Close()
	}
}

func active() *sink {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return current
}

var discard = slog.New(slog.NewJSONHandler(io.Discard, nil))

// ParseLevel maps a config string to a slog level. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger returns the process-wide logger, or a discarding one before Init.
func Logger() *slog.Logger {
	if s := active(); s != nil {
		return s.logger
	}
	return discard
}

// ForComponent returns a logger tagged with component. Package-level
// loggers are built before Init, so the process-wide handler is looked up
// on every record.
func ForComponent(name string) *slog.Logger {
	return slog.New(&lateHandler{component: name})
}

// lateHandler defers to Logger().Handler() at log time and replays the
// WithAttrs/WithGroup calls made on it, in order.
type lateHandler struct {
	component string
	chain     []func(slog.Handler) slog.Handler
}

func (h *lateHandler) resolve() slog.Handler {
	out := Logger().Handler().WithAttrs([]slog.Attr{slog.String("component", h.component)})
	for _, step := range h.chain {
		out = step(out)
	}
	return out
}

func (h *lateHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h *lateHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h *lateHandler) with(step func(slog.Handler) slog.Handler) *lateHandler {
	chain := make([]func(slog.Handler) slog.Handler, len(h.chain), len(h.chain)+1)
	copy(chain, h.chain)
	return &lateHandler{component: h.component, chain: append(chain, step)}
}

func (h *lateHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *lateHandler) WithGroup(name string) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

// Stream meters a high-frequency event of n bytes on a tab. Events are
// logged as periodic stream_summary records.
func Stream(component, event, tabID string, n int) {
	if s := active(); s != nil {
		s.meter.Record(component, event, tabID, n)
	}
}

// DumpRingBuffer writes the recent log records to path. Before Init it
// does nothing.
func DumpRingBuffer(path string) error {
	s := active()
	if s == nil {
		return nil
	}
	return s.ring.DumpToFile(path)
}

// Shutdown flushes pending stream summaries and closes the log file.
func Shutdown() {
	globalMu.Lock()
	s := current
	current = nil
	globalMu.Unlock()
	s.close()
}
