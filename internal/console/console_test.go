package console

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/google/android-beat/internal/logbus"
)

type fakeConsoleBoard struct {
	mu       sync.Mutex
	commands []string
	reply    string
	err      error
	taps     chan logbus.Line
}

func newFakeConsoleBoard() *fakeConsoleBoard {
	return &fakeConsoleBoard{taps: make(chan logbus.Line, 16)}
}

func (f *fakeConsoleBoard) BluetoothAddress() string { return "11:22:23:33:33:51" }
func (f *fakeConsoleBoard) Version() string          { return "2.1.0" }

func (f *fakeConsoleBoard) SendRawCommand(ctx context.Context, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	return f.reply, f.err
}

func (f *fakeConsoleBoard) SubscribeLog() (<-chan logbus.Line, func()) {
	return f.taps, func() { close(f.taps) }
}

func pressKeys(t *testing.T, m tea.Model, keys ...string) tea.Model {
	t.Helper()
	for _, k := range keys {
		var msg tea.Msg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "up":
			msg = tea.KeyMsg{Type: tea.KeyUp}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		m, _ = m.Update(msg)
	}
	return m
}

func TestSubmitSendsTypedCommand(t *testing.T) {
	board := newFakeConsoleBoard()
	board.reply = "volume=42"
	m := New(board)

	model := pressKeys(t, m, "get_volume")
	model, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a send command to be scheduled")
	}
	msg := cmd()
	resp, ok := msg.(responseMsg)
	if !ok {
		t.Fatalf("cmd produced %T, want responseMsg", msg)
	}
	if resp.reply != "volume=42" {
		t.Fatalf("reply = %q", resp.reply)
	}
	if got := board.commands; len(got) != 1 || got[0] != "get_volume" {
		t.Fatalf("board received %v", got)
	}

	updated := pressModel(t, model, msg)
	if updated.sending {
		t.Fatal("sending flag should clear once the response arrives")
	}
	if !containsLine(updated.lines, "volume=42") {
		t.Fatalf("scrollback %v missing the response", updated.lines)
	}
}

func pressModel(t *testing.T, m tea.Model, msg tea.Msg) Model {
	t.Helper()
	out, _ := m.Update(msg)
	return out.(Model)
}

func containsLine(lines []string, substr string) bool {
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func TestSubmitIgnoresEmptyInput(t *testing.T) {
	board := newFakeConsoleBoard()
	m := New(board)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatal("an empty command line must not transmit")
	}
}

func TestResponseErrorShownInScrollback(t *testing.T) {
	board := newFakeConsoleBoard()
	m := New(board)

	updated := pressModel(t, m, responseMsg{command: "bogus", err: errors.New("command not supported")})
	if !containsLine(updated.lines, "command not supported") {
		t.Fatalf("scrollback %v missing the error", updated.lines)
	}
	if !strings.Contains(updated.message, "bogus") {
		t.Fatalf("status message %q should name the failed command", updated.message)
	}
}

func TestLogLinesAppendAndRearm(t *testing.T) {
	board := newFakeConsoleBoard()
	m := New(board)

	model, cmd := m.Update(logLineMsg{Text: "bt_stack_init_done"})
	if cmd == nil {
		t.Fatal("expected the tap listener to be re-armed")
	}
	if !containsLine(model.(Model).lines, "bt_stack_init_done") {
		t.Fatal("log line missing from the scrollback")
	}
}

func TestHistoryRecall(t *testing.T) {
	board := newFakeConsoleBoard()
	m := New(board)

	var model tea.Model = pressKeys(t, m, "first", "enter")
	model, _ = model.Update(responseMsg{command: "first", reply: "ok"})
	model = pressKeys(t, model, "second", "enter")
	model, _ = model.Update(responseMsg{command: "second", reply: "ok"})

	model = pressKeys(t, model, "up")
	if got := model.(Model).input.Value(); got != "second" {
		t.Fatalf("input after one up = %q", got)
	}
	model = pressKeys(t, model, "up")
	if got := model.(Model).input.Value(); got != "first" {
		t.Fatalf("input after two ups = %q", got)
	}
	model = pressKeys(t, model, "down", "down")
	if got := model.(Model).input.Value(); got != "" {
		t.Fatalf("stepping past the newest entry should clear the line, got %q", got)
	}
}

func TestScrollbackIsBounded(t *testing.T) {
	board := newFakeConsoleBoard()
	m := New(board)

	var model tea.Model = m
	for i := 0; i < maxScrollback+50; i++ {
		model, _ = model.Update(logLineMsg{Text: "chatter"})
	}
	if got := len(model.(Model).lines); got != maxScrollback {
		t.Fatalf("scrollback length = %d, want %d", got, maxScrollback)
	}
}
