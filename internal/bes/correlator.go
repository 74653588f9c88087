package bes

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/android-beat/internal/logbus"
	"github.com/google/android-beat/internal/transport"
)

// correlator matches commands written to the board with the responses
// the firmware prints on the console. The board processes one command
// at a time, so the correlator serializes senders.
type correlator struct {
	bus *logbus.Bus
	tr  transport.Transport
	log *slog.Logger

	// settle is the pause before each transmission; timeout bounds the
	// wait for the response.
	settle  time.Duration
	timeout time.Duration

	mu sync.Mutex
}

// send transmits one command and returns the response message. The
// command is given without the console prefix. When waitResponse is
// false the command is fire-and-forget and the returned message is
// empty.
//
// The response waiters are armed before the command is written and
// reset right before the write, so a line printed before the
// transmission can never be mistaken for the response.
func (c *correlator) send(ctx context.Context, command string, waitResponse bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	full := commandPrefix + command

	response := c.bus.CollectUntil(responsePattern)
	defer response.Close()
	notSupported := c.bus.WaitFor(notSupportedPattern)
	defer notSupported.Close()

	// Give the board time to drain its UART buffer since the previous
	// command.
	select {
	case <-time.After(c.settle):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	// Discard anything the waiters saw before the transmission; only
	// lines printed after the command hits the wire may count as its
	// response.
	response.Reset()
	notSupported.Reset()
	if err := c.tr.WriteCommand(ctx, full); err != nil {
		return "", err
	}

	if !waitResponse {
		return "", nil
	}

	if !response.Wait(c.timeout) {
		if notSupported.Satisfied() {
			return "", &CommandError{Command: full, Cause: CauseNotSupported}
		}
		return "", &CommandTimeoutError{Command: full}
	}

	status := response.Group("status")
	code, cause := responseCause(response.Group("code"))
	message := responseMessage(response.Collected(), response.Group("message"))

	c.log.Info("Board response",
		slog.String("command", full),
		slog.String("status", status),
		slog.Int("error_code", code),
		slog.String("message", message))

	if cause != CauseNone {
		return "", &CommandError{Command: full, Cause: cause}
	}
	return message, nil
}

func responseCause(code string) (int, ErrorCause) {
	n := 0
	for _, r := range code {
		n = n*10 + int(r-'0')
	}
	return n, ErrorCause(n)
}

// responseMessage joins the payload lines collected before the status
// line with any trailing text on the status line itself.
func responseMessage(payload []string, trailing string) string {
	parts := append([]string(nil), payload...)
	if trailing = strings.TrimSpace(trailing); trailing != "" {
		parts = append(parts, trailing)
	}
	return strings.Join(parts, "\n")
}
