// Package terminal provides the session handles tabs drive: local shells in
// a pty, plus a registry for other profile types.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/ideapedyudi/tabby/internal/logging"
	"github.com/ideapedyudi/tabby/internal/platform"
	"github.com/ideapedyudi/tabby/internal/profile"
	"github.com/ideapedyudi/tabby/internal/tab"
)

var sessionLog = logging.ForComponent(logging.CompSession)

// DefaultInitialBuffer caps output kept before a frontend attaches. Older
// bytes are dropped.
const DefaultInitialBuffer = 256 * 1024

var (
	// ErrUnsupportedType is returned for a profile type nobody registered.
	ErrUnsupportedType = errors.New("unsupported profile type")
	// ErrElevationUnavailable is returned for an administrator profile when
	// the platform can't elevate.
	ErrElevationUnavailable = errors.New("elevation not available")
	// ErrNoPTY is returned for local profiles on platforms without a pty.
	ErrNoPTY = errors.New("pseudo-terminals not supported on this platform")
)

// Factory creates sessions by profile type. Local profiles are built in.
type Factory struct {
	// Elevator wraps commands of administrator profiles. May be nil.
	Elevator platform.Elevator
	// InitialBuffer overrides DefaultInitialBuffer when positive.
	InitialBuffer int

	mu    sync.RWMutex
	kinds map[string]tab.SessionFactory
}

// NewFactory returns a factory for local sessions.
func NewFactory(elev platform.Elevator) *Factory {
	return &Factory{Elevator: elev, kinds: make(map[string]tab.SessionFactory)}
}

// Register adds a session factory for another profile type.
func (f *Factory) Register(profileType string, sf tab.SessionFactory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kinds == nil {
		f.kinds = make(map[string]tab.SessionFactory)
	}
	f.kinds[profileType] = sf
}

// NewSession implements tab.SessionFactory.
func (f *Factory) NewSession(ctx context.Context, p profile.Profile, out io.Writer) (tab.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Type == "" || p.Type == profile.TypeLocal {
		if !platform.SupportsPTY() {
			return nil, fmt.Errorf("%w: %s", ErrNoPTY, platform.Detect())
		}
		cmd, err := buildCommand(p, f.Elevator)
		if err != nil {
			return nil, err
		}
		size := f.InitialBuffer
		if size <= 0 {
			size = DefaultInitialBuffer
		}
		s, err := startLocal(cmd, out, size)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	f.mu.RLock()
	sf, ok := f.kinds[p.Type]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, p.Type)
	}
	return sf.NewSession(ctx, p, out)
}

// command is a resolved process launch.
type command struct {
	argv []string
	dir  string
	env  []string
}

func buildCommand(p profile.Profile, elev platform.Elevator) (command, error) {
	opts := p.Options
	shell := strings.TrimSpace(opts.Command)
	if shell == "" {
		shell = profile.DefaultShell()
	}
	argv := append([]string{shell}, opts.Args...)

	if opts.RunAsAdministrator {
		if elev == nil || !elev.Available() {
			return command{}, ErrElevationUnavailable
		}
		argv = elev.Wrap(argv)
	}

	return command{
		argv: argv,
		dir:  resolveDir(opts.Cwd),
		env:  buildEnv(os.Environ(), opts.Env),
	}, nil
}

// resolveDir expands ~ and falls back to the home directory when cwd
// doesn't exist.
func resolveDir(cwd string) string {
	home, _ := os.UserHomeDir()
	cwd = strings.TrimSpace(cwd)
	if cwd == "~" {
		cwd = home
	} else if strings.HasPrefix(cwd, "~/") {
		cwd = filepath.Join(home, cwd[2:])
	}
	if cwd == "" {
		return home
	}
	if fi, err := os.Stat(cwd); err != nil || !fi.IsDir() {
		sessionLog.Debug("cwd_unavailable", "cwd", cwd)
		return home
	}
	return cwd
}

func buildEnv(base []string, extra map[string]string) []string {
	env := make([]string, 0, len(base)+len(extra)+2)
	for _, kv := range base {
		if strings.HasPrefix(kv, "TERM=") || strings.HasPrefix(kv, "COLORTERM=") {
			continue
		}
		env = append(env, kv)
	}
	env = append(env, "TERM=xterm-256color", "COLORTERM=truecolor")

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
