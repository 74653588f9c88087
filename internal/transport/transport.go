// Package transport abstracts how the harness reaches a dev board's
// console: directly over a local serial port, or through an SSH hop to
// a lab host that owns the port. Device logic above this layer only
// ever sees byte streams and exit codes.
package transport

import (
	"context"
	"io"
)

// Process is a long-running command whose output is consumed as a
// stream, typically the console log reader or an audio capture.
type Process interface {
	// Output returns the combined stdout/stderr stream of the process.
	Output() io.Reader

	// Stop terminates the process and releases its resources. Safe to
	// call more than once.
	Stop() error
}

// Transport connects the harness to one board's console and to the
// host that board is attached to.
type Transport interface {
	// StreamLog starts the console reader. The returned process emits
	// every line the board prints until Stop is called.
	StreamLog(ctx context.Context) (Process, error)

	// WriteCommand sends one console command to the board. The
	// transport appends the line terminator the console expects.
	WriteCommand(ctx context.Context, command string) error

	// Execute runs a shell command on the host the board is attached
	// to and returns its combined output.
	Execute(ctx context.Context, command string) (string, error)

	// StartProcess launches a long-running shell command on the host.
	StartProcess(ctx context.Context, command string) (Process, error)

	// Close releases the console connection. Safe to call more than
	// once.
	Close() error
}
