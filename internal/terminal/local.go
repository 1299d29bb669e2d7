//go:build !windows

package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sync/singleflight"

	"github.com/ideapedyudi/tabby/internal/logging"
	"github.com/ideapedyudi/tabby/internal/scrollback"
)

const (
	// drainTimeout bounds how long we wait for trailing pty output after
	// the process exits.
	drainTimeout = 500 * time.Millisecond
	// killTimeout is how long Destroy waits after SIGHUP before SIGKILL.
	killTimeout = 2 * time.Second
)

// LocalSession is a process running in a pty on this machine.
type LocalSession struct {
	cmd  *exec.Cmd
	ptmx *os.File
	pid  int
	log  *slog.Logger

	// outMu orders the initial buffer flush with live output.
	outMu    sync.Mutex
	out      io.Writer
	pending  *scrollback.Buffer
	released bool

	open     atomic.Bool
	explicit atomic.Bool
	exitCode atomic.Int32

	closed      chan struct{}
	readDone    chan struct{}
	destroyOnce sync.Once

	cwdGroup singleflight.Group
}

func startLocal(c command, out io.Writer, bufSize int) (*LocalSession, error) {
	if len(c.argv) == 0 {
		return nil, errors.New("empty command")
	}
	cmd := exec.Command(c.argv[0], c.argv[1:]...)
	cmd.Dir = c.dir
	cmd.Env = c.env

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: 80, Rows: 24})
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	s := &LocalSession{
		cmd:      cmd,
		ptmx:     ptmx,
		pid:      cmd.Process.Pid,
		out:      out,
		pending:  scrollback.New(bufSize),
		closed:   make(chan struct{}),
		readDone: make(chan struct{}),
	}
	s.log = sessionLog.With(slog.Int("pid", s.pid), slog.String("command", c.argv[0]))
	s.exitCode.Store(-1)
	s.open.Store(true)

	go s.readLoop()
	go s.waitLoop()
	s.log.Info("local_session_started", slog.String("dir", c.dir))
	return s, nil
}

func (s *LocalSession) readLoop() {
	defer close(s.readDone)
	buf := make([]byte, 32*1024)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			s.emit(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (s *LocalSession) emit(p []byte) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if !s.released {
		_, _ = s.pending.Write(p)
		return
	}
	if s.out != nil {
		_, _ = s.out.Write(p)
	}
}

func (s *LocalSession) waitLoop() {
	err := s.cmd.Wait()
	code := exitCode(err)
	s.exitCode.Store(int32(code))
	if code == 0 {
		// A clean exit means the user typed exit or logout.
		s.explicit.Store(true)
	}
	s.open.Store(false)

	select {
	case <-s.readDone:
	case <-time.After(drainTimeout):
	}
	_ = s.ptmx.Close()
	s.log.Info("local_session_exited", slog.Int("exit_code", code), slog.Bool("explicit", s.explicit.Load()))
	close(s.closed)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Open reports whether the process is still running.
func (s *LocalSession) Open() bool { return s.open.Load() }

// Closed is closed after the process has exited and its output drained.
func (s *LocalSession) Closed() <-chan struct{} { return s.closed }

// ExitCode returns the exit status, or -1 while running or when killed.
func (s *LocalSession) ExitCode() int { return int(s.exitCode.Load()) }

// ExplicitlyTerminated reports whether the session ended by Terminate or by
// a clean exit of the process.
func (s *LocalSession) ExplicitlyTerminated() bool { return s.explicit.Load() }

// ReleaseInitialDataBuffer flushes output captured so far and switches to
// writing straight through.
func (s *LocalSession) ReleaseInitialDataBuffer() {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if s.released {
		return
	}
	s.released = true
	data := s.pending.Bytes()
	s.pending.Reset()
	if len(data) > 0 && s.out != nil {
		_, _ = s.out.Write(data)
	}
}

// Write sends input to the process.
func (s *LocalSession) Write(p []byte) (int, error) {
	if !s.Open() {
		return 0, os.ErrClosed
	}
	return s.ptmx.Write(p)
}

// Resize changes the pty window size.
func (s *LocalSession) Resize(cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return fmt.Errorf("invalid dimensions: cols=%d rows=%d", cols, rows)
	}
	return pty.Setsize(s.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// Terminate asks the process to exit and marks the end as user initiated.
func (s *LocalSession) Terminate() {
	s.explicit.Store(true)
	s.signal(syscall.SIGHUP)
}

// Destroy kills the process group and waits for the session to close.
func (s *LocalSession) Destroy() {
	s.destroyOnce.Do(func() {
		s.log.Debug("local_session_destroy")
		s.signal(syscall.SIGHUP)
		_ = s.ptmx.Close()
	})
	select {
	case <-s.closed:
		return
	case <-time.After(killTimeout):
	}
	s.signal(syscall.SIGKILL)
	<-s.closed
}

func (s *LocalSession) signal(sig syscall.Signal) {
	if s.cmd.Process == nil {
		return
	}
	if pgid, err := syscall.Getpgid(s.pid); err == nil {
		_ = syscall.Kill(-pgid, sig)
		return
	}
	_ = s.cmd.Process.Signal(sig)
}

// WorkingDirectory returns the shell's current directory. Concurrent calls
// share one lookup.
func (s *LocalSession) WorkingDirectory(ctx context.Context) (string, error) {
	if !s.Open() {
		return "", os.ErrProcessDone
	}
	v, err, _ := s.cwdGroup.Do("cwd", func() (any, error) {
		logging.Stream(logging.CompSession, "cwd_lookup", "", 0)
		return processCwd(ctx, s.pid)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
