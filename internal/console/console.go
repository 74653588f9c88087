// Package console is the interactive terminal front end for a single
// board: a scrollback of the live log stream plus a command line that
// sends raw console commands and shows their parsed responses.
package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wrap"

	"github.com/google/android-beat/internal/logbus"
	"github.com/google/android-beat/internal/ui"
)

// Board is the slice of the device session the console needs.
type Board interface {
	BluetoothAddress() string
	Version() string
	SendRawCommand(ctx context.Context, command string) (string, error)
	SubscribeLog() (<-chan logbus.Line, func())
}

const maxScrollback = 2000

type focusArea int

const (
	focusInput focusArea = iota
	focusLog
)

type logLineMsg logbus.Line

type logClosedMsg struct{}

type responseMsg struct {
	command string
	reply   string
	err     error
}

// Model is the bubbletea model of the console.
type Model struct {
	board  Board
	taps   <-chan logbus.Line
	cancel func()

	input    textinput.Model
	viewport viewport.Model
	lines    []string
	history  []string
	histPos  int

	focus         focusArea
	sending       bool
	message       string
	width, height int
}

// New builds a console attached to an already-opened board session.
func New(board Board) Model {
	input := textinput.New()
	input.Placeholder = "command (sent with the console prefix)..."
	input.CharLimit = 256
	input.Prompt = "> "
	input.Focus()

	taps, cancel := board.SubscribeLog()
	return Model{
		board:    board,
		taps:     taps,
		cancel:   cancel,
		input:    input,
		viewport: viewport.New(0, 0),
		histPos:  -1,
	}
}

func (m Model) Init() tea.Cmd {
	return waitForLine(m.taps)
}

func waitForLine(ch <-chan logbus.Line) tea.Cmd {
	return func() tea.Msg {
		l, ok := <-ch
		if !ok {
			return logClosedMsg{}
		}
		return logLineMsg(l)
	}
}

func sendCommand(board Board, command string) tea.Cmd {
	return func() tea.Msg {
		reply, err := board.SendRawCommand(context.Background(), command)
		return responseMsg{command: command, reply: reply, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.contentWidth()
		m.viewport.Height = m.logHeight() - 2
		m.updateViewportContent()
		m.viewport.GotoBottom()
		return m, nil

	case logLineMsg:
		m.appendLine(msg.Text)
		return m, waitForLine(m.taps)

	case logClosedMsg:
		m.message = "Log stream ended"
		return m, nil

	case responseMsg:
		m.sending = false
		if msg.err != nil {
			m.appendLine(ui.ErrorBadge("ERR") + " " + msg.err.Error())
			m.message = fmt.Sprintf("%q failed: %v", msg.command, msg.err)
		} else {
			reply := msg.reply
			if reply == "" {
				reply = "(empty response)"
			}
			for _, line := range strings.Split(reply, "\n") {
				m.appendLine(ui.SuccessBadge("OK") + " " + line)
			}
			m.message = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keyStr := msg.String()

	if keyStr == "ctrl+c" {
		m.cancel()
		return m, tea.Quit
	}
	if keyStr == "tab" {
		if m.focus == focusInput {
			m.focus = focusLog
			m.input.Blur()
		} else {
			m.focus = focusInput
			m.input.Focus()
		}
		return m, nil
	}

	if m.focus == focusLog {
		switch keyStr {
		case "q", "esc":
			m.cancel()
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	switch keyStr {
	case "enter":
		return m.submit()
	case "up":
		m.recallHistory(-1)
		return m, nil
	case "down":
		m.recallHistory(1)
		return m, nil
	case "ctrl+l":
		m.lines = nil
		m.updateViewportContent()
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	command := strings.TrimSpace(m.input.Value())
	if command == "" || m.sending {
		return m, nil
	}
	m.sending = true
	m.history = append(m.history, command)
	m.histPos = -1
	m.input.SetValue("")
	m.appendLine(ui.AccentStyle.Render("> " + command))
	return m, sendCommand(m.board, command)
}

// recallHistory steps through previously sent commands. dir is -1 for
// older, +1 for newer; stepping past the newest restores an empty line.
func (m *Model) recallHistory(dir int) {
	if len(m.history) == 0 {
		return
	}
	switch {
	case m.histPos == -1 && dir < 0:
		m.histPos = len(m.history) - 1
	case m.histPos >= 0:
		m.histPos += dir
		if m.histPos >= len(m.history) {
			m.histPos = -1
		}
		if m.histPos < 0 && dir < 0 {
			m.histPos = 0
		}
	default:
		return
	}
	if m.histPos == -1 {
		m.input.SetValue("")
	} else {
		m.input.SetValue(m.history[m.histPos])
	}
	m.input.CursorEnd()
}

func (m *Model) appendLine(line string) {
	wasAtBottom := m.viewport.AtBottom()
	m.lines = append(m.lines, line)
	if len(m.lines) > maxScrollback {
		m.lines = m.lines[len(m.lines)-maxScrollback:]
	}
	m.updateViewportContent()
	if wasAtBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) updateViewportContent() {
	if m.viewport.Width <= 0 {
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		return
	}
	wrapped := wrap.String(strings.Join(m.lines, "\n"), m.viewport.Width)
	lines := strings.Split(wrapped, "\n")
	for i, line := range lines {
		if ansi.PrintableRuneWidth(line) > m.viewport.Width {
			lines[i] = truncate.String(line, uint(m.viewport.Width))
		}
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
}

func (m Model) contentWidth() int {
	w := m.width - 4
	if w < 10 {
		w = 10
	}
	return w
}

// logHeight is the outer height of the log panel: everything except the
// header, the input line and the status bar.
func (m Model) logHeight() int {
	h := m.height - 3
	if h < 5 {
		h = 5
	}
	return h
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	header := ui.StatusBarStyle.Width(m.width).Render(
		fmt.Sprintf("Board: %s  Firmware: %s", m.board.BluetoothAddress(), m.board.Version()))

	m.viewport.Width = m.contentWidth()
	m.viewport.Height = m.logHeight() - 2
	logPanel := ui.Panel("Log", m.viewport.View(), m.width, m.logHeight(), m.focus == focusLog)

	inputLine := m.input.View()
	if m.sending {
		inputLine = ui.DimStyle.Render("> (waiting for response...)")
	}

	statusBar := m.renderStatusBar()

	return lipgloss.JoinVertical(lipgloss.Left, header, logPanel, inputLine, statusBar)
}

func (m Model) renderStatusBar() string {
	var parts []string
	for _, kb := range m.shortHelp() {
		parts = append(parts, ui.StatusKey(kb.Help().Key, kb.Help().Desc))
	}
	line := strings.Join(parts, "  ")
	if m.message != "" {
		line += "  " + ui.DimStyle.Render(m.message)
	}
	return ui.StatusBarStyle.Width(m.width).Render(line)
}

func (m Model) shortHelp() []key.Binding {
	if m.focus == focusLog {
		return []key.Binding{
			key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "scroll")),
			key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "command line")),
			key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		}
	}
	return []key.Binding{
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "history")),
		key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "clear")),
		key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "scroll log")),
		key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}
