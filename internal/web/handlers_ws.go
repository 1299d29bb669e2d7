package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ideapedyudi/tabby/internal/tab"
)

const (
	wsPingPeriod = 30 * time.Second
	wsPongWait   = 2 * wsPingPeriod
	wsMaxMessage = 64 * 1024
)

// wsClientMessage is a control message from the browser: input, resize,
// ping or reconnect.
type wsClientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// wsServerMessage is a status or error frame. Terminal output is sent as
// raw binary frames instead.
type wsServerMessage struct {
	Type     string    `json:"type"`
	Event    string    `json:"event,omitempty"`
	Code     string    `json:"code,omitempty"`
	Message  string    `json:"message,omitempty"`
	TabID    string    `json:"tabId,omitempty"`
	State    string    `json:"state,omitempty"`
	ReadOnly bool      `json:"readOnly,omitempty"`
	Time     time.Time `json:"time,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts clients without an Origin header (CLI tools) and
// browsers on the host they connected to.
func sameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host != "" && strings.EqualFold(u.Host, r.Host)
}

// wsTabConn is one browser attached to one tab.
type wsTabConn struct {
	readOnly bool
	tab      *tab.ConnectableTab
	writer   *wsConnWriter
	frontend *wsFrontend
	// ctx outlives the request so a reconnect started here isn't cancelled
	// when the socket drops.
	ctx context.Context
}

func (c *wsTabConn) send(msg wsServerMessage) {
	msg.TabID = c.tab.ID()
	msg.Time = time.Now().UTC()
	_ = c.writer.WriteJSON(msg)
}

func (c *wsTabConn) status(event string) {
	c.send(wsServerMessage{Type: "status", Event: event, State: c.tab.State().String(), ReadOnly: c.readOnly})
}

func (c *wsTabConn) fail(code, message string) {
	c.send(wsServerMessage{Type: "error", Code: code, Message: message})
}

func (c *wsTabConn) dispatch(msg wsClientMessage) {
	switch msg.Type {
	case "ping":
		c.status("pong")
	case "input":
		if c.readOnly {
			c.fail("READ_ONLY", "input is disabled in read-only mode")
			return
		}
		if msg.Data != "" {
			c.tab.HandleInput([]byte(msg.Data))
		}
	case "resize":
		if msg.Cols <= 0 || msg.Rows <= 0 || msg.Cols > 0xffff || msg.Rows > 0xffff {
			c.fail("RESIZE_FAILED", "invalid dimensions")
			return
		}
		cols, rows := uint16(msg.Cols), uint16(msg.Rows)
		c.frontend.setSize(cols, rows)
		if err := c.tab.Resize(cols, rows); err != nil {
			c.fail("RESIZE_FAILED", "failed to resize terminal")
		}
	case "reconnect":
		if c.readOnly {
			c.fail("READ_ONLY", "reconnect is disabled in read-only mode")
			return
		}
		if err := c.tab.Reconnect(c.ctx); err != nil {
			c.fail("RECONNECT_FAILED", err.Error())
			return
		}
		c.status("reconnected")
	default:
		c.fail("UNSUPPORTED_MESSAGE", "supported message types: ping,input,resize,reconnect")
	}
}

// handleTabWS makes a WebSocket client the tab's frontend until the socket
// closes.
func (s *Server) handleTabWS(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	tabID := strings.TrimPrefix(r.URL.Path, "/ws/tab/")
	if tabID == "" || strings.Contains(tabID, "/") {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "tab id is required")
		return
	}
	t, err := s.host.Get(tabID)
	if err != nil {
		writeTabError(w, err)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	writer := newWSConnWriter(conn)
	c := &wsTabConn{
		readOnly: s.cfg.ReadOnly,
		tab:      t,
		writer:   writer,
		frontend: newWSFrontend(writer),
		ctx:      context.WithoutCancel(r.Context()),
	}
	c.status("connected")

	if err := t.AttachFrontend(c.frontend); err != nil {
		c.fail("TAB_CLOSED", err.Error())
		return
	}
	defer t.DetachFrontend(c.frontend)

	stopPing := writer.keepAlive(wsPingPeriod)
	defer stopPing()

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				webLog.Warn("websocket_closed_unexpectedly", slog.String("tab_id", tabID), slog.String("error", err.Error()))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var msg wsClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.fail("INVALID_MESSAGE", "invalid json payload")
			continue
		}
		c.dispatch(msg)
	}
}

var _ tab.StateRestorer = (*wsFrontend)(nil)
