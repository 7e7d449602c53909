package logging

import (
	"bytes"
	"sync"
)

// Ring keeps the most recent log lines and fans new lines out to subscribers.
type Ring struct {
	mu       sync.RWMutex
	maxLines int
	lines    []string
	subs     map[chan string]struct{}
}

// NewRing creates a bounded line buffer.
func NewRing(maxLines int) *Ring {
	if maxLines <= 0 {
		maxLines = 500
	}

	return &Ring{
		maxLines: maxLines,
		lines:    make([]string, 0, maxLines),
		subs:     make(map[chan string]struct{}),
	}
}

// Write stores one log record per line. It never fails so logging is not
// disrupted by slow subscribers.
func (r *Ring) Write(p []byte) (int, error) {
	for _, raw := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
		if len(raw) == 0 {
			continue
		}
		r.append(string(raw))
	}
	return len(p), nil
}

func (r *Ring) append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines = append(r.lines, line)
	if len(r.lines) > r.maxLines {
		trim := len(r.lines) - r.maxLines
		r.lines = append([]string(nil), r.lines[trim:]...)
	}

	for ch := range r.subs {
		select {
		case ch <- line:
		default:
			// drop for slow readers
		}
	}
}

// Recent returns up to n lines, newest first. n <= 0 returns everything held.
func (r *Ring) Recent(n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > len(r.lines) {
		n = len(r.lines)
	}
	out := make([]string, 0, n)
	for i := len(r.lines) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.lines[i])
	}
	return out
}

// Subscribe registers a channel that receives every new line until the
// returned cancel func is called.
func (r *Ring) Subscribe(buffer int) (<-chan string, func()) {
	ch := make(chan string, buffer)

	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, ch)
			r.mu.Unlock()
			close(ch)
		})
	}
}
