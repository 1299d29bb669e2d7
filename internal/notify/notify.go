// Package notify delivers user-visible notifications such as "Saved".
package notify

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ideapedyudi/tabby/internal/logging"
)

var notifyLog = logging.ForComponent(logging.CompUI)

// Level of a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is one user-visible message.
type Notification struct {
	ID      uint64    `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	TabID   string    `json:"tabId,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier shows messages to the user.
type Notifier interface {
	Info(tabID, msg string)
	Error(tabID, msg string)
}

const recentLimit = 20

// Hub fans notifications out to subscribers and keeps the last few for
// clients that connect later.
type Hub struct {
	seq atomic.Uint64

	mu     sync.Mutex
	subs   map[chan Notification]struct{}
	recent []Notification
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Notification]struct{})}
}

// Info publishes an informational message.
func (h *Hub) Info(tabID, msg string) { h.publish(LevelInfo, tabID, msg) }

// Error publishes an error message.
func (h *Hub) Error(tabID, msg string) { h.publish(LevelError, tabID, msg) }

func (h *Hub) publish(level Level, tabID, msg string) {
	n := Notification{
		ID:      h.seq.Add(1),
		Level:   level,
		Message: msg,
		TabID:   tabID,
		At:      time.Now().UTC(),
	}
	notifyLog.Info("notification",
		slog.String("level", string(level)),
		slog.String("tab_id", tabID),
		slog.String("message", msg))

	h.mu.Lock()
	defer h.mu.Unlock()

	h.recent = append(h.recent, n)
	if len(h.recent) > recentLimit {
		h.recent = h.recent[len(h.recent)-recentLimit:]
	}
	for ch := range h.subs {
		// Slow subscribers miss messages rather than block the publisher.
		select {
		case ch <- n:
		default:
		}
	}
}

// Subscribe returns a channel of future notifications.
func (h *Hub) Subscribe() chan Notification {
	ch := make(chan Notification, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe stops delivery and closes ch.
func (h *Hub) Unsubscribe(ch chan Notification) {
	if ch == nil {
		return
	}
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Recent returns the most recent notifications, oldest first.
func (h *Hub) Recent() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Notification, len(h.recent))
	copy(out, h.recent)
	return out
}
