package logbus

import (
	"regexp"
	"sync"
	"time"
)

// Matcher is the subset of *regexp.Regexp the bus needs. It exists so the
// grammar table can stay in one place while the bus stays pattern-agnostic.
type Matcher interface {
	FindStringSubmatch(s string) []string
	SubexpNames() []string
}

var _ Matcher = (*regexp.Regexp)(nil)

// Waiter is one outstanding interest in future log content. It is owned
// exclusively by the caller that registered it and transitions
// pending->satisfied at most once; once satisfied, its captured payload
// does not change.
type Waiter struct {
	bus     *Bus
	re      Matcher
	collect bool

	mu        sync.Mutex
	satisfied bool
	line      Line
	groups    map[string]string
	collected []string
	ch        chan struct{}
}

func (w *Waiter) observe(l Line) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.satisfied {
		return
	}
	m := w.re.FindStringSubmatch(l.Text)
	if m == nil {
		if w.collect {
			w.collected = append(w.collected, l.Text)
		}
		return
	}
	w.line = l
	w.groups = make(map[string]string)
	for i, name := range w.re.SubexpNames() {
		if name != "" && i < len(m) {
			w.groups[name] = m[i]
		}
	}
	w.satisfied = true
	close(w.ch)
}

// Wait blocks until the waiter is satisfied or timeout elapses. It
// reports whether a match arrived in time.
func (w *Waiter) Wait(timeout time.Duration) bool {
	w.mu.Lock()
	ch := w.ch
	w.mu.Unlock()
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.satisfied
	}
}

// Satisfied reports whether a matching line has been observed.
func (w *Waiter) Satisfied() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.satisfied
}

// Line returns the matching line. Valid only after Wait returned true.
func (w *Waiter) Line() Line {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.line
}

// Group returns the named capture group from the matching line.
func (w *Waiter) Group(name string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.groups[name]
}

// Collected returns the lines observed between registration (or the last
// Reset) and the matching line. Only populated for CollectUntil waiters.
func (w *Waiter) Collected() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.collected))
	copy(out, w.collected)
	return out
}

// Reset discards any match and collected lines, returning the waiter to
// pending. The command correlator resets its waiters right before
// transmitting so that lines observed earlier cannot be mistaken for
// the response.
func (w *Waiter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.satisfied {
		w.satisfied = false
		w.ch = make(chan struct{})
	}
	w.line = Line{}
	w.groups = nil
	w.collected = nil
}

// Close unregisters the waiter from the bus. Safe to call on all exit
// paths, including after a match or a timeout.
func (w *Waiter) Close() {
	w.bus.unregister(w)
}
