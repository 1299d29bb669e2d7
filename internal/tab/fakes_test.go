package tab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ideapedyudi/tabby/internal/profile"
)

// eventLog records side effects across fakes in order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeSession struct {
	n        int
	log      *eventLog
	out      io.Writer
	closed   chan struct{}
	once     sync.Once
	open     atomic.Bool
	explicit atomic.Bool
	destroys atomic.Int32
	releases atomic.Int32
	cwd      string
	cwdErr   error

	inputMu sync.Mutex
	input   bytes.Buffer
}

func (s *fakeSession) Open() bool              { return s.open.Load() }
func (s *fakeSession) Closed() <-chan struct{} { return s.closed }

func (s *fakeSession) Destroy() {
	s.destroys.Add(1)
	s.log.add("destroy:%d", s.n)
	s.end()
}

func (s *fakeSession) ReleaseInitialDataBuffer() {
	s.releases.Add(1)
	s.log.add("release:%d", s.n)
}

func (s *fakeSession) WorkingDirectory(context.Context) (string, error) {
	return s.cwd, s.cwdErr
}

func (s *fakeSession) ExplicitlyTerminated() bool { return s.explicit.Load() }

func (s *fakeSession) Write(p []byte) (int, error) {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	return s.input.Write(p)
}

func (s *fakeSession) inputString() string {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	return s.input.String()
}

// exit simulates the remote side ending.
func (s *fakeSession) exit(explicit bool) {
	s.explicit.Store(explicit)
	s.end()
}

func (s *fakeSession) end() {
	s.once.Do(func() {
		s.open.Store(false)
		close(s.closed)
	})
}

type fakeFactory struct {
	log      *eventLog
	mu       sync.Mutex
	sessions []*fakeSession
	cwd      string
	// gate, when set, blocks NewSession until it is closed or ctx ends.
	gate    chan struct{}
	entered chan struct{}
	err     error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{log: &eventLog{}}
}

func (f *fakeFactory) NewSession(ctx context.Context, p profile.Profile, out io.Writer) (Session, error) {
	f.mu.Lock()
	gate, entered, err := f.gate, f.entered, f.err
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSession{
		n:      len(f.sessions) + 1,
		log:    f.log,
		out:    out,
		closed: make(chan struct{}),
		cwd:    f.cwd,
	}
	s.open.Store(true)
	f.sessions = append(f.sessions, s)
	f.log.add("create:%d", s.n)
	return s, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeFactory) session(i int) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[i]
}

type fakeFrontend struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	state    json.RawMessage
	stateErr error
	restored json.RawMessage
}

func (f *fakeFrontend) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.Write(p)
}

func (f *fakeFrontend) SaveState() (json.RawMessage, error) {
	return f.state, f.stateErr
}

func (f *fakeFrontend) RestoreState(s json.RawMessage) error {
	f.mu.Lock()
	f.restored = s
	f.mu.Unlock()
	return nil
}

func (f *fakeFrontend) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.String()
}

type recordingNotifier struct {
	mu     sync.Mutex
	errors []string
}

func (n *recordingNotifier) Info(string, string) {}

func (n *recordingNotifier) Error(_ string, msg string) {
	n.mu.Lock()
	n.errors = append(n.errors, msg)
	n.mu.Unlock()
}

func newTestTab(t *testing.T, behavior string, f *fakeFactory) *ConnectableTab {
	t.Helper()
	tb := New(Options{
		ID: "tab-1",
		Profile: profile.Profile{
			Type: profile.TypeLocal,
			Name: "x",
			Options: profile.Options{
				Cwd:                  "/tmp",
				BehaviorOnSessionEnd: behavior,
			},
		},
		Factory: f,
		Limiter: rate.NewLimiter(rate.Inf, 0),
	})
	t.Cleanup(tb.Destroy)
	return tb
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

var errBoom = errors.New("boom")
