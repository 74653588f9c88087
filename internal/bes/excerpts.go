package bes

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/android-beat/internal/audio"
)

// CreateOutputExcerpts writes everything the board printed since the
// previous excerpt into outputDir and returns the paths written. A
// running audio recording is rotated as well: the finished file joins
// the excerpts and a fresh recording starts.
func (d *Device) CreateOutputExcerpts(ctx context.Context, outputDir string) ([]string, error) {
	d.mu.Lock()
	bus := d.bus
	name := d.outputName
	d.mu.Unlock()
	if bus == nil {
		return nil, ErrClosed
	}
	if name == "" {
		return nil, fmt.Errorf("no output filename, the session was not fully initialized")
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	excerptPath := filepath.Join(outputDir, name)
	d.log.Debug("Creating output excerpt", slog.String("path", excerptPath))
	if err := bus.ClipNewContent(excerptPath); err != nil {
		return nil, err
	}
	if err := d.rotateOutputName(); err != nil {
		return nil, err
	}

	excerpts := []string{excerptPath}

	if d.recorder != nil && d.recorder.IsAlive() {
		recording, err := d.recorder.Stop(ctx, outputDir)
		if err != nil {
			return excerpts, err
		}
		if err := d.StartAudioRecording(ctx, audio.Options{}); err != nil {
			return excerpts, err
		}
		excerpts = append(excerpts, recording)
	}
	return excerpts, nil
}

// StartAudioRecording starts capturing the board's analog audio output
// with the configured capture device. Zero fields in opts fall back to
// the device config.
func (d *Device) StartAudioRecording(ctx context.Context, opts audio.Options) error {
	if d.recorder == nil {
		return fmt.Errorf("audio recorder is not configured, set the audio section in the device config")
	}
	cfg := d.cfg.Audio
	if opts.SampleRate == 0 {
		opts.SampleRate = cfg.SampleRate
	}
	if opts.SampleFormat == "" {
		opts.SampleFormat = cfg.SampleFormat
	}
	if opts.Channels == 0 {
		opts.Channels = cfg.Channels
	}
	if opts.CaptureDevice == "" {
		opts.CaptureDevice = cfg.PCMName
	}
	opts.Prefix = fmt.Sprintf("bes_audio,%s", d.cfg.BluetoothAddress)
	return d.recorder.Start(ctx, opts)
}

// StopAudioRecording stops the recorder and moves the recording into
// outputDir, returning its path.
func (d *Device) StopAudioRecording(ctx context.Context, outputDir string) (string, error) {
	if d.recorder == nil {
		return "", fmt.Errorf("audio recorder is not configured, set the audio section in the device config")
	}
	return d.recorder.Stop(ctx, outputDir)
}
