//go:build !windows

package terminal

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideapedyudi/tabby/internal/profile"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func skipIfNoShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skip("no pty support")
	}
}

func startShell(t *testing.T, script string, out *syncBuffer) *LocalSession {
	t.Helper()
	skipIfNoShell(t)
	p := profile.Profile{Options: profile.Options{Command: "sh", Args: []string{"-c", script}}}
	s, err := NewFactory(nil).NewSession(context.Background(), p, out)
	require.NoError(t, err)
	ls := s.(*LocalSession)
	t.Cleanup(ls.Destroy)
	return ls
}

func waitClosed(t *testing.T, s *LocalSession) {
	t.Helper()
	select {
	case <-s.Closed():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not close")
	}
}

func TestLocalSessionBuffersUntilRelease(t *testing.T) {
	out := &syncBuffer{}
	s := startShell(t, "echo hello-before-attach", out)
	waitClosed(t, s)

	assert.Empty(t, out.String(), "output must wait for release")

	s.ReleaseInitialDataBuffer()
	assert.Contains(t, out.String(), "hello-before-attach")

	s.ReleaseInitialDataBuffer()
	assert.Equal(t, 1, bytes.Count([]byte(out.String()), []byte("hello-before-attach")))
}

func TestLocalSessionCleanExitIsExplicit(t *testing.T) {
	s := startShell(t, "exit 0", &syncBuffer{})
	waitClosed(t, s)
	assert.False(t, s.Open())
	assert.True(t, s.ExplicitlyTerminated())
	assert.Equal(t, 0, s.ExitCode())
}

func TestLocalSessionFailureIsNotExplicit(t *testing.T) {
	s := startShell(t, "exit 3", &syncBuffer{})
	waitClosed(t, s)
	assert.False(t, s.ExplicitlyTerminated())
	assert.Equal(t, 3, s.ExitCode())
}

func TestLocalSessionInputAndTerminate(t *testing.T) {
	out := &syncBuffer{}
	s := startShell(t, "read line; echo got-$line; sleep 30", out)
	s.ReleaseInitialDataBuffer()

	_, err := s.Write([]byte("ping\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("got-ping"))
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Resize(100, 40))
	assert.Error(t, s.Resize(0, 40))

	s.Terminate()
	waitClosed(t, s)
	assert.True(t, s.ExplicitlyTerminated())

	_, err = s.Write([]byte("x"))
	assert.Error(t, err)
}

func TestLocalSessionDestroyIsIdempotent(t *testing.T) {
	s := startShell(t, "sleep 30", &syncBuffer{})
	s.Destroy()
	s.Destroy()
	assert.False(t, s.Open())
	waitClosed(t, s)
}

func TestLocalSessionWorkingDirectory(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("uses /proc")
	}
	skipIfNoShell(t)
	dir := t.TempDir()
	p := profile.Profile{Options: profile.Options{Command: "sh", Args: []string{"-c", "sleep 30"}, Cwd: dir}}
	s, err := NewFactory(nil).NewSession(context.Background(), p, &syncBuffer{})
	require.NoError(t, err)
	defer s.Destroy()

	cwd, err := s.WorkingDirectory(context.Background())
	require.NoError(t, err)
	want, _ := filepath.EvalSymlinks(dir)
	got, _ := filepath.EvalSymlinks(cwd)
	assert.Equal(t, want, got)

	s.Destroy()
	_, err = s.WorkingDirectory(context.Background())
	assert.Error(t, err)
}
