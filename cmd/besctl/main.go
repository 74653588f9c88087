// besctl is an interactive console for one BES development board: it
// streams the board's log output and sends raw console commands typed on
// a command line.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/google/android-beat/internal/bes"
	"github.com/google/android-beat/internal/config"
	"github.com/google/android-beat/internal/console"
)

func main() {
	var (
		testbedPath = pflag.String("testbed", "", "testbed YAML file to read board definitions from")
		device      = pflag.String("device", "", "Bluetooth address of the board to attach to (default: first board in the testbed)")
		serialPort  = pflag.String("port", "", "serial port for an ad-hoc board, bypassing the testbed file")
		address     = pflag.String("address", "", "Bluetooth address for an ad-hoc board")
		logFile     = pflag.String("log-file", "", "write harness logs to this file instead of discarding them")
		verbose     = pflag.BoolP("verbose", "v", false, "log at debug level")
	)
	pflag.Parse()

	if err := run(*testbedPath, *device, *serialPort, *address, *logFile, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(testbedPath, device, serialPort, address, logFile string, verbose bool) error {
	cfg, err := resolveConfig(testbedPath, device, serialPort, address)
	if err != nil {
		return err
	}

	// The TUI owns the terminal, so harness logs go to a file or nowhere.
	var log *slog.Logger
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		log = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	} else {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	board, err := bes.Open(context.Background(), cfg, log)
	if err != nil {
		return fmt.Errorf("opening board %s: %w", cfg.BluetoothAddress, err)
	}
	defer board.Close()

	p := tea.NewProgram(console.New(board), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func resolveConfig(testbedPath, device, serialPort, address string) (config.DeviceConfig, error) {
	if serialPort != "" {
		cfg := config.DeviceConfig{SerialPort: serialPort, BluetoothAddress: address}
		if err := cfg.Validate(); err != nil {
			return config.DeviceConfig{}, err
		}
		return cfg, nil
	}

	if testbedPath == "" {
		return config.DeviceConfig{}, fmt.Errorf("either --testbed or --port is required")
	}
	tb, err := config.Load(testbedPath)
	if err != nil {
		return config.DeviceConfig{}, err
	}

	var boards []config.DeviceConfig
	boards = append(boards, tb.BesDevices...)
	for _, tws := range tb.TWSDevices {
		boards = append(boards, tws.Left, tws.Right)
		if tws.Case != nil {
			boards = append(boards, *tws.Case)
		}
	}
	if len(boards) == 0 {
		return config.DeviceConfig{}, fmt.Errorf("testbed %s defines no boards", testbedPath)
	}
	if device == "" {
		return boards[0], nil
	}
	for _, b := range boards {
		if strings.EqualFold(b.BluetoothAddress, device) {
			return b, nil
		}
	}
	return config.DeviceConfig{}, fmt.Errorf("no board with address %s in %s", device, testbedPath)
}
