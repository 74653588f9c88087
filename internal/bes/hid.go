package bes

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/android-beat/internal/transport"
)

// The board carries a small MCU that simulates button presses over HID.
// When the BT firmware wedges and the console goes silent, driving the
// MCU through the hidtool binary is the only way to recover the board
// without a human in the lab.

const (
	stableMCUVersion = "V1.0.3"

	hidShortWait = 10 * time.Second
	hidLongWait  = 30 * time.Second
)

var mcuVersionPattern = regexp.MustCompile(`V\d\.\d\.\d`)

// powerCycle recovers an unresponsive board through the HID tool: it
// verifies the MCU firmware, then issues power-on and reboot presses.
func (d *Device) powerCycle(ctx context.Context) error {
	tr, err := d.dial(ctx)
	if err != nil {
		return err
	}
	defer tr.Close()

	if err := checkMCUVersion(ctx, d.log, tr, d.cfg.HidtoolPath); err != nil {
		return err
	}
	if err := sleepCtx(ctx, hidShortWait); err != nil {
		return err
	}

	d.log.Info("Sending HID power-on press")
	if _, err := runHidtool(ctx, d.log, tr, d.cfg.HidtoolPath, commandPrefix+"power_on"); err != nil {
		return err
	}
	if err := sleepCtx(ctx, hidLongWait); err != nil {
		return err
	}

	d.log.Info("Sending HID reboot press")
	if _, err := runHidtool(ctx, d.log, tr, d.cfg.HidtoolPath, commandPrefix+"reboot"); err != nil {
		return err
	}
	return sleepCtx(ctx, hidLongWait)
}

// checkMCUVersion fails if the MCU firmware is not the stable release.
// The MCU can only be flashed manually, so an unexpected version needs
// lab attention rather than a retry.
func checkMCUVersion(ctx context.Context, log *slog.Logger, tr transport.Transport, toolPath string) error {
	out, err := runHidtool(ctx, log, tr, toolPath, "WLTVER?")
	if err != nil {
		return err
	}
	for _, version := range mcuVersionPattern.FindAllString(out, -1) {
		if version != stableMCUVersion {
			return fmt.Errorf("MCU firmware %s is not the stable version %s, flash it before retrying",
				version, stableMCUVersion)
		}
	}
	return nil
}

func runHidtool(ctx context.Context, log *slog.Logger, tr transport.Transport, toolPath, command string) (string, error) {
	out, err := tr.Execute(ctx, fmt.Sprintf("sudo %s %s", toolPath, command))
	if err != nil {
		return "", fmt.Errorf("running hidtool %q: %w", command, err)
	}
	log.Debug("hidtool output", slog.String("command", command), slog.String("output", out))
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
