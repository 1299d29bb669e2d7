package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ideapedyudi/tabby/internal/i18n"
	"github.com/ideapedyudi/tabby/internal/logging"
	"github.com/ideapedyudi/tabby/internal/notify"
	"github.com/ideapedyudi/tabby/internal/profile"
	"github.com/ideapedyudi/tabby/internal/tab"
)

const (
	keyDetach    = 0x11 // Ctrl+Q
	keyReconnect = 0x12 // Ctrl+R
)

// exitGrace is how long a terminated tab may sit idle before run exits.
// Prompts and reconnects arrive well within it.
const exitGrace = 300 * time.Millisecond

var runCmd = &cobra.Command{
	Use:   "run [profile]",
	Short: "Open a tab in this terminal",
	Long: `Open a tab with the given profile (fuzzy matched, default profile when
omitted) and attach this terminal to it.

Ctrl+Q detaches and exits. Ctrl+R reconnects the session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTab,
}

// stdoutFrontend renders a tab straight to the controlling terminal.
type stdoutFrontend struct {
	mu sync.Mutex
	w  io.Writer
}

func (f *stdoutFrontend) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.w.Write(p)
}

// SaveState has nothing to save; the terminal keeps its own scrollback.
func (f *stdoutFrontend) SaveState() (json.RawMessage, error) { return nil, nil }

func (f *stdoutFrontend) notice(msg string) {
	_, _ = f.Write([]byte("\r\n[tabby] " + msg + "\r\n"))
}

func runTab(cmd *cobra.Command, args []string) error {
	log := logging.ForComponent(logging.CompCLI)
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("run needs an interactive terminal")
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	query := ""
	if len(args) > 0 {
		query = args[0]
	}
	p, err := a.resolveProfile(ctx, query)
	if err != nil {
		return err
	}

	fe := &stdoutFrontend{w: os.Stdout}
	events := a.host.Subscribe()
	defer a.host.Unsubscribe(events)
	notes := a.hub.Subscribe()
	defer a.hub.Unsubscribe(notes)

	t, err := a.host.Open(ctx, p)
	if err != nil {
		return err
	}

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	if cols, rows, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		_ = t.Resize(uint16(cols), uint16(rows))
	}
	if err := t.AttachFrontend(fe); err != nil {
		return err
	}
	stopResize := watchResize(func(cols, rows int) {
		if err := t.Resize(uint16(cols), uint16(rows)); err != nil {
			log.Debug("resize_failed", slog.String("error", err.Error()))
		}
	})
	defer stopResize()

	input := make(chan []byte)
	go readInput(ctx, os.Stdin, input)

	var exitTimer <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-input:
			if !ok {
				return nil
			}
			switch {
			case len(data) == 1 && data[0] == keyDetach:
				fe.notice("detached")
				return nil
			case len(data) == 1 && data[0] == keyReconnect:
				go func() {
					if err := t.Reconnect(ctx); err != nil && ctx.Err() == nil {
						fe.notice(a.tr.T(i18n.ReconnectFailed, err.Error()))
					}
				}()
			default:
				t.HandleInput(data)
			}
		case n := <-notes:
			if n.Level == notify.LevelError {
				fe.notice(n.Message)
			}
		case ev := <-events:
			exitTimer = nil
			if ev.TabID == t.ID() && ev.State == tab.StateTerminated.String() &&
				t.Profile().Behavior() != profile.BehaviorReconnect {
				exitTimer = time.After(exitGrace)
			}
		case <-exitTimer:
			if t.State() == tab.StateTerminated && !t.ReconnectOffered() {
				return nil
			}
		}
	}
}

// readInput forwards raw reads from r until it fails or ctx ends.
func readInput(ctx context.Context, r io.Reader, out chan<- []byte) {
	defer close(out)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}
