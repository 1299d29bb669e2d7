// Package web serves the tab API, context menus, event streams and a
// WebSocket terminal frontend over HTTP.
package web

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ideapedyudi/tabby/internal/logging"
	"github.com/ideapedyudi/tabby/internal/notify"
	"github.com/ideapedyudi/tabby/internal/workspace"
)

var webLog = logging.ForComponent(logging.CompWeb)

// DefaultListenAddr is used when Config.ListenAddr is empty.
const DefaultListenAddr = "127.0.0.1:8420"

// Config defines runtime options for the web server.
type Config struct {
	ListenAddr string
	ReadOnly   bool
	Token      string

	Workspace *workspace.Host
	// Notifications feeds the event stream. Optional.
	Notifications *notify.Hub
}

// Server is the HTTP face of a workspace.Host.
type Server struct {
	cfg  Config
	host *workspace.Host
	http *http.Server

	// stop ends long-lived handlers (SSE, WebSocket) on Shutdown; the http
	// server waits for them otherwise.
	stop context.CancelFunc
}

// NewServer wires the routes for cfg.Workspace.
func NewServer(cfg Config) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	s := &Server{cfg: cfg, host: cfg.Workspace}

	routes := map[string]http.HandlerFunc{
		"/healthz":        s.handleHealthz,
		"/api/tabs":       s.handleTabs,
		"/api/tabs/":      s.handleTabByID,
		"/api/menu":       s.handleMenu,
		"/api/menu/click": s.handleMenuClick,
		"/api/profiles":   s.handleProfiles,
		"/events":         s.handleEvents,
		"/ws/tab/":        s.handleTabWS,
	}
	mux := http.NewServeMux()
	for pattern, h := range routes {
		mux.HandleFunc(pattern, h)
	}

	base, stop := context.WithCancel(context.Background())
	s.stop = stop
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           withRecover(withRequestLog(mux)),
		BaseContext:       func(net.Listener) context.Context { return base },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          log.New(logging.NewBridgeWriter(logging.CompWeb), "", 0),
	}
	return s
}

// Addr is the configured listen address.
func (s *Server) Addr() string { return s.http.Addr }

// Handler is the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start listens and serves until Shutdown. A graceful stop returns nil.
func (s *Server) Start() error {
	webLog.Info("web_server_start", slog.String("addr", s.cfg.ListenAddr), slog.Bool("read_only", s.cfg.ReadOnly))
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and ends open streams. Connections
// still busy when ctx expires are closed hard.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	err := s.http.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		webLog.Warn("web_shutdown_forced", slog.String("error", err.Error()))
		if cerr := s.http.Close(); cerr != nil {
			return fmt.Errorf("force close after %w: %w", err, cerr)
		}
		return nil
	}
	return err
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"tabs":     len(s.host.List()),
		"primary":  s.host.Primary(),
		"readOnly": s.cfg.ReadOnly,
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

// statusRecorder remembers the status code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush and Hijack pass through so SSE and WebSocket work behind the
// recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("%T cannot hijack", r.ResponseWriter)
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		webLog.Debug("http_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("took", time.Since(start)))
	})
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				webLog.Error("handler_panic", slog.Any("recover", rec), slog.String("path", r.URL.Path))
				writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
