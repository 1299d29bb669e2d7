package tab

import (
	"context"
	"encoding/json"
	"io"

	"github.com/ideapedyudi/tabby/internal/profile"
)

// Session is one live connection bound to a tab. A tab never mutates a
// session; reconnecting destroys it and asks the factory for a new one.
type Session interface {
	// Open reports whether the connection is still alive.
	Open() bool
	// Closed is closed once the session has ended for any reason.
	Closed() <-chan struct{}
	// Destroy tears the session down. Safe to call more than once and on a
	// session that has already closed.
	Destroy()
	// ReleaseInitialDataBuffer flushes output produced before a frontend
	// was attached and switches the session to direct output.
	ReleaseInitialDataBuffer()
	// WorkingDirectory returns the current directory of the remote side.
	// It may fail or return "" when unknown.
	WorkingDirectory(ctx context.Context) (string, error)
}

// InputWriter is implemented by sessions that accept keyboard input.
type InputWriter interface {
	Write(p []byte) (int, error)
}

// Resizer is implemented by sessions backed by a terminal with a size.
type Resizer interface {
	Resize(cols, rows uint16) error
}

// ExplicitTerminator is implemented by sessions that can tell whether they
// ended because the user asked them to.
type ExplicitTerminator interface {
	ExplicitlyTerminated() bool
}

// Terminator is implemented by sessions that can be ended on request while
// keeping the tab open.
type Terminator interface {
	Terminate()
}

// Frontend is the rendering surface a tab writes to. Implementations must be
// comparable (pointer types); the tab uses identity to detect a frontend that
// was replaced.
type Frontend interface {
	io.Writer
	// SaveState serializes the visible state. It may fail; a tab omits the
	// state from its recovery token rather than failing.
	SaveState() (json.RawMessage, error)
}

// StateRestorer is implemented by frontends that can replay a saved state.
type StateRestorer interface {
	RestoreState(state json.RawMessage) error
}

// SessionFactory creates sessions for a profile. Output written by the
// session goes to out.
type SessionFactory interface {
	NewSession(ctx context.Context, p profile.Profile, out io.Writer) (Session, error)
}

// SessionFactoryFunc adapts a function to SessionFactory.
type SessionFactoryFunc func(ctx context.Context, p profile.Profile, out io.Writer) (Session, error)

func (f SessionFactoryFunc) NewSession(ctx context.Context, p profile.Profile, out io.Writer) (Session, error) {
	return f(ctx, p, out)
}
