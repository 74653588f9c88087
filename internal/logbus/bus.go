// Package logbus turns a board's live serial output into a broadcast
// source of lines that callers can register pattern waiters against.
//
// The board has no request framing: command responses, asynchronous state
// notices and plain debug chatter all share one text stream. The bus owns
// the single reader of that stream, persists every line to an append-only
// capture file for audit, and fans each line out to the currently
// registered waiters.
package logbus

import (
	"bufio"
	"io"
	"os"
	"sync"
	"time"
)

// Line is one timestamped line of raw board output.
type Line struct {
	Text string
	Time time.Time
}

// Bus tails one board's output stream.
type Bus struct {
	path string

	mu      sync.Mutex
	file    *os.File
	waiters map[*Waiter]struct{}
	taps    map[chan Line]struct{}
	clipOff int64
	stopped bool

	wg sync.WaitGroup
}

// New creates a Bus that appends every observed line to the capture file
// at path.
func New(path string) (*Bus, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	off, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Bus{
		path:    path,
		file:    f,
		waiters: make(map[*Waiter]struct{}),
		taps:    make(map[chan Line]struct{}),
		clipOff: off,
	}, nil
}

// Path returns the capture file path.
func (b *Bus) Path() string { return b.path }

// Start begins reading lines from r. It returns immediately; reading
// continues on a background goroutine until r reaches EOF or the bus is
// stopped. EOF is not an error: pending waiters simply stop receiving
// lines and their timeouts fire.
func (b *Bus) Start(r io.Reader) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			b.publish(Line{Text: scanner.Text(), Time: time.Now()})
		}
	}()
}

func (b *Bus) publish(l Line) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.file.WriteString(l.Text + "\n")
	for w := range b.waiters {
		w.observe(l)
	}
	for ch := range b.taps {
		select {
		case ch <- l:
		default:
			// Tap consumer is behind; drop rather than stall dispatch.
		}
	}
}

// Stop unregisters all waiters and releases the capture file. It is
// idempotent. The source reader must be closed by its owner; the read
// goroutine exits on its EOF.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.waiters = make(map[*Waiter]struct{})
	for ch := range b.taps {
		close(ch)
	}
	b.taps = make(map[chan Line]struct{})
	b.file.Close()
	b.mu.Unlock()
}

// WaitFor registers a waiter that is satisfied by the first subsequent
// line matching re. The caller must Close the returned waiter.
func (b *Bus) WaitFor(re Matcher) *Waiter {
	return b.register(re, false)
}

// CollectUntil registers a waiter that accumulates every subsequent line
// until one matches re. The matching line satisfies the waiter; the lines
// seen before it are available via Collected. The caller must Close the
// returned waiter.
func (b *Bus) CollectUntil(re Matcher) *Waiter {
	return b.register(re, true)
}

func (b *Bus) register(re Matcher, collect bool) *Waiter {
	w := &Waiter{
		bus:     b,
		re:      re,
		collect: collect,
		ch:      make(chan struct{}),
	}
	b.mu.Lock()
	if !b.stopped {
		b.waiters[w] = struct{}{}
	}
	b.mu.Unlock()
	return w
}

func (b *Bus) unregister(w *Waiter) {
	b.mu.Lock()
	delete(b.waiters, w)
	b.mu.Unlock()
}

// Subscribe returns a channel carrying every subsequent line, for live
// display. Lines are dropped if the consumer falls behind. The cancel
// function must be called when done.
func (b *Bus) Subscribe() (<-chan Line, func()) {
	ch := make(chan Line, 256)
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.taps[ch] = struct{}{}
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		if _, ok := b.taps[ch]; ok {
			delete(b.taps, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// ClipNewContent copies the capture file content appended since the last
// clip (or since New) to dst, then advances the clip marker.
func (b *Bus) ClipNewContent(dst string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	src, err := os.Open(b.path)
	if err != nil {
		return err
	}
	defer src.Close()
	if _, err := src.Seek(b.clipOff, io.SeekStart); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	b.clipOff += n
	return nil
}
