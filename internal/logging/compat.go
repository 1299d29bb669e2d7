package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
)

// BridgeWriter is an io.Writer for stdlib loggers (http.Server.ErrorLog) that
// turns each line into a stdlib_log record on one component. The level is
// picked from the line.
type BridgeWriter struct {
	component string
}

// NewBridgeWriter returns a writer that logs under component.
func NewBridgeWriter(component string) *BridgeWriter {
	return &BridgeWriter{component: component}
}

// Write implements io.Writer. A write may hold several lines.
func (bw *BridgeWriter) Write(p []byte) (int, error) {
	log := ForComponent(bw.component)
	for _, raw := range bytes.Split(p, []byte("\n")) {
		line := string(bytes.TrimSpace(raw))
		if line == "" {
			continue
		}
		level, line := classifyLine(line)
		log.LogAttrs(context.Background(), level, "stdlib_log", slog.String("line", line))
	}
	return len(p), nil
}

// classifyLine drops the "http: " prefix net/http puts on its messages and
// maps the message to a level. Panics are errors; handshake noise from
// scanners and clients that hang up early are debug.
func classifyLine(line string) (slog.Level, string) {
	line = strings.TrimPrefix(line, "http: ")
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "panic"):
		return slog.LevelError, line
	case strings.Contains(lower, "tls handshake error"),
		strings.Contains(lower, "broken pipe"),
		strings.Contains(lower, "connection reset"):
		return slog.LevelDebug, line
	case strings.Contains(lower, "superfluous"),
		strings.Contains(lower, "accept error"):
		return slog.LevelWarn, line
	default:
		return slog.LevelInfo, line
	}
}
