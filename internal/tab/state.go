package tab

import (
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// State of a connectable tab.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateActive
	StateTerminated
	// StateAwaitingReconnectInput is the part of Terminated where the user
	// was asked to press a key to reconnect.
	StateAwaitingReconnectInput
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	case StateAwaitingReconnectInput:
		return "awaiting_reconnect_input"
	default:
		return "unknown"
	}
}

// Terminated reports whether s is Terminated or one of its sub-states.
func (s State) Terminated() bool {
	return s == StateTerminated || s == StateAwaitingReconnectInput
}

var (
	// ErrTabDestroyed is returned by operations on a destroyed tab.
	ErrTabDestroyed = errors.New("tab destroyed")
	// ErrNoSession is returned when an operation needs a live session.
	ErrNoSession = errors.New("no active session")
)

// NewReconnectLimiter caps automatic reconnects at perMinute with the given
// burst, so a shell that exits immediately doesn't spin.
func NewReconnectLimiter(perMinute, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}
