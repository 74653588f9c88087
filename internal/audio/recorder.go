// Package audio captures the analog audio output of a dev board with
// arecord, the ALSA command-line recorder, running on the host the
// board's line-out is wired to.
package audio

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/android-beat/internal/transport"
)

// startupTimeout bounds how long to wait for arecord to confirm it is
// writing samples.
const startupTimeout = 60 * time.Second

// startedMarker is printed by arecord once capture begins.
const startedMarker = "Recording WAVE"

// Options configure one recording run.
type Options struct {
	// Prefix names the recording file: <prefix>,<device>,<timestamp>.wav.
	Prefix string

	SampleRate   int
	SampleFormat string
	Channels     int

	// CaptureDevice is the ALSA PCM name. A plain hw: device is
	// promoted to plughw: so arecord can convert formats.
	CaptureDevice string
}

// Recorder runs arecord over a transport and tracks the file it
// produces. A Recorder captures one recording at a time.
type Recorder struct {
	tr     transport.Transport
	logDir string
	log    *slog.Logger

	mu       sync.Mutex
	proc     transport.Process
	filename string
}

// NewRecorder returns a recorder that stores recordings under logDir
// until they are collected.
func NewRecorder(tr transport.Transport, logDir string, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{tr: tr, logDir: logDir, log: log}
}

// IsAlive reports whether a recording is in progress.
func (r *Recorder) IsAlive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proc != nil
}

// Start launches arecord and waits for it to confirm capture started.
func (r *Recorder) Start(ctx context.Context, opts Options) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proc != nil {
		return fmt.Errorf("audio recorder is already running")
	}

	device := opts.CaptureDevice
	if strings.HasPrefix(device, "hw:") {
		device = "plughw:" + strings.TrimPrefix(device, "hw:")
	}
	timestamp := time.Now().Format("01-02-2006_15-04-05")
	filename := filepath.Join(r.logDir,
		fmt.Sprintf("%s,%s,%s.wav", opts.Prefix, device, timestamp))

	cmd := fmt.Sprintf("arecord -f %s -r %d -c %d -d 0 -D %s %s",
		opts.SampleFormat, opts.SampleRate, opts.Channels, device, filename)
	r.log.Debug("Starting audio recorder", slog.String("command", cmd))
	proc, err := r.tr.StartProcess(ctx, cmd)
	if err != nil {
		return fmt.Errorf("starting arecord: %w", err)
	}

	if err := waitForMarker(ctx, proc, startedMarker, startupTimeout); err != nil {
		_ = proc.Stop()
		return fmt.Errorf("arecord did not start capturing: %w", err)
	}

	r.proc = proc
	r.filename = filename
	return nil
}

// Stop ends the recording and moves the file into outputDir, returning
// the final path.
func (r *Recorder) Stop(ctx context.Context, outputDir string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proc == nil {
		return "", fmt.Errorf("audio recorder is not running")
	}
	if err := r.proc.Stop(); err != nil {
		return "", err
	}
	r.proc = nil

	dest := filepath.Join(outputDir, filepath.Base(r.filename))
	if dest != r.filename {
		if _, err := r.tr.Execute(ctx, fmt.Sprintf("mv %s %s", r.filename, dest)); err != nil {
			return "", fmt.Errorf("collecting recording file: %w", err)
		}
	}
	r.filename = ""
	return dest, nil
}

// waitForMarker scans the process output for marker, giving up after
// the timeout.
func waitForMarker(ctx context.Context, proc transport.Process, marker string, timeout time.Duration) error {
	found := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(proc.Output())
		for scanner.Scan() {
			if strings.Contains(scanner.Text(), marker) {
				close(found)
				return
			}
		}
	}()
	select {
	case <-found:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("no %q within %s", marker, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
