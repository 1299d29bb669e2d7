package scrollback

import (
	"os"
	"sync"
)

// DefaultSize is the capacity used when a non-positive size is requested.
const DefaultSize = 1024 * 1024

// Buffer is a thread-safe circular byte buffer.
// It implements io.Writer and silently overwrites the oldest bytes when full.
// Frontends use it to capture their visible output for recovery tokens and
// the logger uses it to keep recent records for crash dumps.
type Buffer struct {
	mu   sync.Mutex
	buf  []byte
	size int
	pos  int
	full bool
}

// New creates a buffer with the given capacity in bytes.
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{
		buf:  make([]byte, size),
		size: size,
	}
}

// Write implements io.Writer. Data wraps around when the buffer is full.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if n >= b.size {
		// Keep only the tail that fits
		copy(b.buf, p[n-b.size:])
		b.pos = 0
		b.full = true
		return n, nil
	}

	space := b.size - b.pos
	if n <= space {
		copy(b.buf[b.pos:], p)
		b.pos += n
		if b.pos == b.size {
			b.pos = 0
			b.full = true
		}
	} else {
		copy(b.buf[b.pos:], p[:space])
		copy(b.buf, p[space:])
		b.pos = n - space
		b.full = true
	}

	return n, nil
}

// Bytes returns the buffer contents in chronological order.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		out := make([]byte, b.pos)
		copy(out, b.buf[:b.pos])
		return out
	}

	out := make([]byte, b.size)
	copy(out, b.buf[b.pos:])
	copy(out[b.size-b.pos:], b.buf[:b.pos])
	return out
}

// Len returns the number of bytes currently held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return b.size
	}
	return b.pos
}

// Reset drops all buffered data.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.pos = 0
	b.full = false
	b.mu.Unlock()
}

// DumpToFile writes the contents to path in chronological order.
func (b *Buffer) DumpToFile(path string) error {
	return os.WriteFile(path, b.Bytes(), 0o644)
}
