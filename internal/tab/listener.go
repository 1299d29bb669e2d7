package tab

import "sync"

// InputListener is a single-shot subscription to raw input. At most one
// callback is armed at a time; it fires for the first input event after it
// was armed and is then dropped.
type InputListener struct {
	mu   sync.Mutex
	fn   func([]byte)
	id   uint64
	arms uint64
}

// Once arms fn, replacing any callback that is still pending. The returned
// cancel func only disarms this registration, never a later one.
func (l *InputListener) Once(fn func([]byte)) (cancel func()) {
	l.mu.Lock()
	l.id++
	l.arms++
	id := l.id
	l.fn = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		if l.id == id {
			l.fn = nil
		}
		l.mu.Unlock()
	}
}

// Dispatch delivers data to the armed callback, if any, and disarms it.
// It reports whether the input was consumed. The callback runs on the
// caller's goroutine without the listener lock held.
func (l *InputListener) Dispatch(data []byte) bool {
	l.mu.Lock()
	fn := l.fn
	l.fn = nil
	l.mu.Unlock()

	if fn == nil {
		return false
	}
	fn(data)
	return true
}

// Cancel disarms any pending callback.
func (l *InputListener) Cancel() {
	l.mu.Lock()
	l.fn = nil
	l.mu.Unlock()
}

// Armed reports whether a callback is pending.
func (l *InputListener) Armed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fn != nil
}
