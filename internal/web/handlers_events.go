package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ideapedyudi/tabby/internal/notify"
)

var eventsKeepAlive = 15 * time.Second

// sseStream writes server-sent events to one client.
type sseStream struct {
	w http.ResponseWriter
	f http.Flusher
}

func (s sseStream) event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

func (s sseStream) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// handleEvents streams tab changes and notifications. A client first gets
// a "tabs" snapshot and the recent notifications, then live "tab" and
// "notification" events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	f, ok := w.(http.Flusher)
	if !ok {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "stream unavailable")
		return
	}

	// Subscribe before the snapshot so nothing falls in between.
	tabEvents := s.host.Subscribe()
	defer s.host.Unsubscribe(tabEvents)
	var notes chan notify.Notification
	var recent []notify.Notification
	if hub := s.cfg.Notifications; hub != nil {
		notes = hub.Subscribe()
		defer hub.Unsubscribe(notes)
		recent = hub.Recent()
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	out := sseStream{w: w, f: f}

	tabs := s.host.List()
	snapshot := make([]tabResponse, len(tabs))
	for i, t := range tabs {
		snapshot[i] = newTabResponse(t)
	}
	if out.event("tabs", snapshot) != nil {
		return
	}
	for _, n := range recent {
		if out.event("notification", n) != nil {
			return
		}
	}

	keepAlive := time.NewTicker(eventsKeepAlive)
	defer keepAlive.Stop()

	var err error
	for err == nil {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			err = out.comment("keepalive")
		case ev, ok := <-tabEvents:
			if !ok {
				return
			}
			err = out.event("tab", ev)
		case n, ok := <-notes:
			if !ok {
				return
			}
			err = out.event("notification", n)
		}
	}
}
