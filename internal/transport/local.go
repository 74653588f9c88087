package transport

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// Local talks to a board over a serial port on this machine. Host
// commands run through the local shell.
type Local struct {
	portName string
	baudRate int

	mu     sync.Mutex
	port   serial.Port
	closed bool
}

// NewLocal opens the serial port at the given baud rate (8N1).
func NewLocal(portName string, baudRate int) (*Local, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", portName, err)
	}
	return &Local{portName: portName, baudRate: baudRate, port: port}, nil
}

// serialProcess adapts the open serial port to the Process interface.
// Stopping the process closes the port, which unblocks the reader.
type serialProcess struct {
	owner *Local
}

func (p *serialProcess) Output() io.Reader {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	return p.owner.port
}

func (p *serialProcess) Stop() error { return p.owner.Close() }

func (l *Local) StreamLog(ctx context.Context) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("serial port %s is closed", l.portName)
	}
	return &serialProcess{owner: l}, nil
}

func (l *Local) WriteCommand(ctx context.Context, command string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("serial port %s is closed", l.portName)
	}
	if _, err := l.port.Write([]byte(command + "\n")); err != nil {
		return fmt.Errorf("writing to %s: %w", l.portName, err)
	}
	return nil
}

func (l *Local) Execute(ctx context.Context, command string) (string, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("running %q: %w", command, err)
	}
	return strings.TrimSpace(string(out)), nil
}

type execProcess struct {
	cmd *exec.Cmd
	out io.Reader

	mu      sync.Mutex
	stopped bool
}

func (p *execProcess) Output() io.Reader { return p.out }

func (p *execProcess) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	// Reap the child. The error here is almost always "killed".
	_ = p.cmd.Wait()
	return nil
}

func (l *Local) StartProcess(ctx context.Context, command string) (Process, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %q: %w", command, err)
	}
	return &execProcess{cmd: cmd, out: stdout}, nil
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.port.Close()
}
