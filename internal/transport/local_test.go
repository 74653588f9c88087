package transport

import (
	"bufio"
	"context"
	"testing"
	"time"
)

func TestExecuteCombinedOutput(t *testing.T) {
	l := &Local{portName: "fake"}
	out, err := l.Execute(context.Background(), "echo hello")
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello" {
		t.Fatalf("output = %q, want hello", out)
	}
}

func TestExecuteFailureKeepsOutput(t *testing.T) {
	l := &Local{portName: "fake"}
	out, err := l.Execute(context.Background(), "echo oops >&2; exit 3")
	if err == nil {
		t.Fatal("expected error")
	}
	if out != "oops\n" {
		t.Fatalf("output = %q, want oops", out)
	}
}

func TestStartProcessStreamsAndStops(t *testing.T) {
	l := &Local{portName: "fake"}
	proc, err := l.StartProcess(context.Background(), "echo line1; sleep 30")
	if err != nil {
		t.Fatal(err)
	}
	defer proc.Stop()

	scanner := bufio.NewScanner(proc.Output())
	lineCh := make(chan string, 1)
	go func() {
		if scanner.Scan() {
			lineCh <- scanner.Text()
		}
	}()
	select {
	case line := <-lineCh:
		if line != "line1" {
			t.Fatalf("line = %q, want line1", line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no output from process")
	}

	if err := proc.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := proc.Stop(); err != nil {
		t.Fatal(err)
	}
}
