package logbus

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"
)

const waitTimeout = 2 * time.Second

func newTestBus(t *testing.T) (*Bus, *io.PipeWriter) {
	t.Helper()
	bus, err := New(filepath.Join(t.TempDir(), "capture.txt"))
	if err != nil {
		t.Fatal(err)
	}
	r, w := io.Pipe()
	bus.Start(r)
	t.Cleanup(func() {
		w.Close()
		bus.Stop()
	})
	return bus, w
}

func feed(t *testing.T, w *io.PipeWriter, lines ...string) {
	t.Helper()
	for _, l := range lines {
		if _, err := io.WriteString(w, l+"\n"); err != nil {
			t.Fatal(err)
		}
	}
}

func TestWaiterMatchesLine(t *testing.T) {
	bus, w := newTestBus(t)

	waiter := bus.WaitFor(regexp.MustCompile(`box_state=(?P<state>\w+)`))
	defer waiter.Close()

	feed(t, w, "random chatter", "box_state=OUT_BOX", "more chatter")

	if !waiter.Wait(waitTimeout) {
		t.Fatal("waiter did not match")
	}
	if got := waiter.Group("state"); got != "OUT_BOX" {
		t.Fatalf("state group = %q, want OUT_BOX", got)
	}
}

func TestWaiterSatisfiedOnce(t *testing.T) {
	bus, w := newTestBus(t)

	waiter := bus.WaitFor(regexp.MustCompile(`volume=(?P<level>\d+)`))
	defer waiter.Close()

	feed(t, w, "volume=10")
	if !waiter.Wait(waitTimeout) {
		t.Fatal("waiter did not match")
	}
	feed(t, w, "volume=99")

	// The second match must not overwrite the captured payload.
	time.Sleep(50 * time.Millisecond)
	if got := waiter.Group("level"); got != "10" {
		t.Fatalf("level group = %q, want 10", got)
	}
}

func TestConcurrentWaiters(t *testing.T) {
	bus, w := newTestBus(t)

	success := bus.WaitFor(regexp.MustCompile(`ok`))
	defer success.Close()
	notSupported := bus.WaitFor(regexp.MustCompile(`command not supported!`))
	defer notSupported.Close()

	feed(t, w, "command not supported!")

	if !notSupported.Wait(waitTimeout) {
		t.Fatal("not-supported waiter did not match")
	}
	if success.Satisfied() {
		t.Fatal("success waiter should not be satisfied")
	}
}

func TestCollectUntil(t *testing.T) {
	bus, w := newTestBus(t)

	waiter := bus.CollectUntil(regexp.MustCompile(`^(?P<status>\w+) \(error code (?P<code>\d+)\)`))
	defer waiter.Close()

	feed(t, w, "bt_addr: 11:22:23:33:33:51", "bt_name: pixel buds", "ok (error code 0)")

	if !waiter.Wait(waitTimeout) {
		t.Fatal("collector did not match")
	}
	collected := waiter.Collected()
	if len(collected) != 2 {
		t.Fatalf("collected %d lines, want 2: %v", len(collected), collected)
	}
	if waiter.Group("code") != "0" {
		t.Fatalf("code group = %q, want 0", waiter.Group("code"))
	}
}

func TestWaiterReset(t *testing.T) {
	bus, w := newTestBus(t)

	waiter := bus.CollectUntil(regexp.MustCompile(`done`))
	defer waiter.Close()

	feed(t, w, "stale payload", "done")
	if !waiter.Wait(waitTimeout) {
		t.Fatal("waiter did not match the stale line")
	}
	waiter.Reset()
	if waiter.Satisfied() {
		t.Fatal("waiter still satisfied after Reset")
	}

	feed(t, w, "fresh payload", "done")
	if !waiter.Wait(waitTimeout) {
		t.Fatal("waiter did not match after Reset")
	}
	collected := waiter.Collected()
	if len(collected) != 1 || collected[0] != "fresh payload" {
		t.Fatalf("collected = %v, want [fresh payload]", collected)
	}
}

func TestEOFLetsTimeoutsFire(t *testing.T) {
	bus, w := newTestBus(t)

	waiter := bus.WaitFor(regexp.MustCompile(`never`))
	defer waiter.Close()

	w.Close() // board unplugged

	if waiter.Wait(100 * time.Millisecond) {
		t.Fatal("waiter matched after EOF")
	}
}

func TestClipNewContent(t *testing.T) {
	bus, w := newTestBus(t)

	marker := bus.WaitFor(regexp.MustCompile(`second`))
	defer marker.Close()

	feed(t, w, "first excerpt line")
	// Ensure the first line hit the capture file before clipping.
	first := bus.WaitFor(regexp.MustCompile(`first`))
	feed(t, w, "sync")
	if !first.Wait(waitTimeout) {
		t.Fatal("first line not observed")
	}
	first.Close()

	dir := t.TempDir()
	clip1 := filepath.Join(dir, "excerpt1.txt")
	if err := bus.ClipNewContent(clip1); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(clip1)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first excerpt line\nsync\n" {
		t.Fatalf("clip1 content = %q", string(data))
	}

	feed(t, w, "second excerpt line")
	if !marker.Wait(waitTimeout) {
		t.Fatal("second line not observed")
	}
	clip2 := filepath.Join(dir, "excerpt2.txt")
	if err := bus.ClipNewContent(clip2); err != nil {
		t.Fatal(err)
	}
	data, err = os.ReadFile(clip2)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second excerpt line\n" {
		t.Fatalf("clip2 content = %q", string(data))
	}
}

func TestSubscribe(t *testing.T) {
	bus, w := newTestBus(t)

	ch, cancel := bus.Subscribe()
	defer cancel()

	feed(t, w, "tap me")

	select {
	case l := <-ch:
		if l.Text != "tap me" {
			t.Fatalf("tapped line = %q", l.Text)
		}
	case <-time.After(waitTimeout):
		t.Fatal("no line on subscription channel")
	}
}

func TestStopIdempotent(t *testing.T) {
	bus, err := New(filepath.Join(t.TempDir(), "capture.txt"))
	if err != nil {
		t.Fatal(err)
	}
	r, w := io.Pipe()
	bus.Start(r)
	w.Close()
	bus.Stop()
	bus.Stop()
}
