package web

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ideapedyudi/tabby/internal/scrollback"
)

// scrollbackSize is how much output a web frontend keeps for its saved state.
const scrollbackSize = 64 * 1024

// wsConnWriter serializes writes; gorilla allows one writer at a time.
type wsConnWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

const wsWriteWait = 10 * time.Second

func newWSConnWriter(conn *websocket.Conn) *wsConnWriter {
	return &wsConnWriter{conn: conn}
}

func (w *wsConnWriter) write(fn func() error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return fn()
}

func (w *wsConnWriter) WriteJSON(v any) error {
	return w.write(func() error { return w.conn.WriteJSON(v) })
}

func (w *wsConnWriter) WriteBinary(data []byte) error {
	return w.write(func() error { return w.conn.WriteMessage(websocket.BinaryMessage, data) })
}

// keepAlive sends a ping every period until the returned func is called.
func (w *wsConnWriter) keepAlive(period time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				err := w.write(func() error { return w.conn.WriteMessage(websocket.PingMessage, nil) })
				if err != nil {
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// savedScreen is the saved state of a web frontend.
type savedScreen struct {
	Scrollback []byte `json:"scrollback"`
	Cols       uint16 `json:"cols,omitempty"`
	Rows       uint16 `json:"rows,omitempty"`
}

// wsFrontend renders a tab to one WebSocket client. It remembers recent
// output so the screen can be rebuilt after a restart.
type wsFrontend struct {
	writer *wsConnWriter
	screen *scrollback.Buffer

	mu         sync.Mutex
	cols, rows uint16
}

func newWSFrontend(writer *wsConnWriter) *wsFrontend {
	return &wsFrontend{writer: writer, screen: scrollback.New(scrollbackSize)}
}

func (f *wsFrontend) Write(p []byte) (int, error) {
	_, _ = f.screen.Write(p)
	chunk := make([]byte, len(p))
	copy(chunk, p)
	if err := f.writer.WriteBinary(chunk); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (f *wsFrontend) setSize(cols, rows uint16) {
	f.mu.Lock()
	f.cols, f.rows = cols, rows
	f.mu.Unlock()
}

// SaveState implements tab.Frontend.
func (f *wsFrontend) SaveState() (json.RawMessage, error) {
	f.mu.Lock()
	st := savedScreen{Scrollback: f.screen.Bytes(), Cols: f.cols, Rows: f.rows}
	f.mu.Unlock()
	return json.Marshal(st)
}

// RestoreState replays saved scrollback to the client.
func (f *wsFrontend) RestoreState(state json.RawMessage) error {
	var st savedScreen
	if err := json.Unmarshal(state, &st); err != nil {
		return fmt.Errorf("decode saved screen: %w", err)
	}
	if len(st.Scrollback) == 0 {
		return nil
	}
	_, err := f.Write(st.Scrollback)
	return err
}
