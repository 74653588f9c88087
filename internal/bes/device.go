package bes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/android-beat/internal/audio"
	"github.com/google/android-beat/internal/btaddr"
	"github.com/google/android-beat/internal/config"
	"github.com/google/android-beat/internal/logbus"
	"github.com/google/android-beat/internal/transport"
)

// DeviceInfo holds the Bluetooth identity the board reports through
// get_device_info.
type DeviceInfo struct {
	BluetoothAddress string
	BLEAddress       string
	BluetoothName    string
	BLEName          string
}

// infoKeyMap renames board response keys to DeviceInfo field names.
var infoKeyMap = map[string]string{
	"bt_addr":  "bluetooth_address",
	"ble_addr": "ble_address",
	"bt_name":  "bluetooth_name",
	"ble_name": "ble_name",
}

// timings groups the protocol delays so they can be shortened in
// tests.
type timings struct {
	settle       time.Duration
	command      time.Duration
	reboot       time.Duration
	rebootSettle time.Duration
}

func defaultTimings() timings {
	return timings{
		settle:       commandSettleInterval,
		command:      commandTimeout,
		reboot:       rebootTimeout,
		rebootSettle: rebootSettleTime,
	}
}

// Device is a session with one BES dev board. All methods that talk to
// the board are safe for concurrent use; the correlator serializes the
// commands on the wire.
type Device struct {
	cfg config.DeviceConfig
	log *slog.Logger
	tm  timings

	tr       transport.Transport
	bus      *logbus.Bus
	logProc  transport.Process
	corr     *correlator
	recorder *audio.Recorder

	mu         sync.Mutex
	closed     bool
	version    string
	buildDate  time.Time
	outputName string
}

// Open connects to the board described by cfg and brings it to a known
// state. If the board does not respond, Open power-cycles it through
// the HID tool and tries once more.
func Open(ctx context.Context, cfg config.DeviceConfig, log *slog.Logger) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	d := &Device{
		cfg: cfg,
		log: log.With(slog.String("device", cfg.BluetoothAddress)),
		tm:  defaultTimings(),
	}

	err := d.initConnection(ctx)
	if err == nil {
		return d, d.initRecorder()
	}
	d.teardown()

	d.log.Warn("Board did not come up, power-cycling it through the HID tool",
		slog.Any("error", err))
	if err := d.powerCycle(ctx); err != nil {
		return nil, fmt.Errorf("power-cycling board: %w", err)
	}
	if err := d.initConnection(ctx); err != nil {
		d.teardown()
		return nil, err
	}
	return d, d.initRecorder()
}

// initConnection builds the serial connection, starts log capture, and
// aligns the board's Bluetooth address with the configured one.
func (d *Device) initConnection(ctx context.Context) error {
	if err := d.startLogCapture(ctx); err != nil {
		return err
	}
	if err := d.rotateOutputName(); err != nil {
		return err
	}

	if err := d.ensureConfiguredAddress(ctx); err != nil {
		var cmdErr *CommandError
		var timeoutErr *CommandTimeoutError
		if !errors.As(err, &cmdErr) && !errors.As(err, &timeoutErr) {
			return err
		}
		// Junk bytes left in the board's UART input buffer can make it
		// miss a command. Back off and retry once.
		d.log.Warn("Failed to align Bluetooth address, retrying", slog.Any("error", err))
		select {
		case <-time.After(d.tm.command):
		case <-ctx.Done():
			return ctx.Err()
		}
		return d.ensureConfiguredAddress(ctx)
	}
	return nil
}

func (d *Device) startLogCapture(ctx context.Context) error {
	if err := os.MkdirAll(d.cfg.LogDir, 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	tr, err := d.dial(ctx)
	if err != nil {
		return err
	}
	d.tr = tr

	capturePath := filepath.Join(d.cfg.LogDir, fmt.Sprintf("bes_log_%s.txt", logTimestamp()))
	bus, err := logbus.New(capturePath)
	if err != nil {
		tr.Close()
		return err
	}
	proc, err := tr.StreamLog(ctx)
	if err != nil {
		bus.Stop()
		tr.Close()
		return err
	}
	bus.Start(proc.Output())

	d.bus = bus
	d.logProc = proc
	d.corr = &correlator{bus: bus, tr: tr, log: d.log, settle: d.tm.settle, timeout: d.tm.command}
	return nil
}

func (d *Device) dial(ctx context.Context) (transport.Transport, error) {
	if d.cfg.RemoteMode {
		return transport.NewSSH(ctx, transport.SSHConfig{
			Hostname:   d.cfg.Hostname,
			Port:       d.cfg.SSHPort,
			Username:   d.cfg.Username,
			Password:   d.cfg.Password,
			Keyfile:    d.cfg.Keyfile,
			SerialPort: d.cfg.SerialPort,
			BaudRate:   config.DefaultBaudRate,
		})
	}
	return transport.NewLocal(d.cfg.SerialPort, config.DefaultBaudRate)
}

// rotateOutputName picks the filename the next output excerpt will use
// and records the current board time for log alignment. A silent
// console here means the board is powered off.
func (d *Device) rotateOutputName() error {
	name := fmt.Sprintf("bes_log,%s,%s.txt", d.cfg.BluetoothAddress, logTimestamp())

	anyLine := d.bus.WaitFor(anyLinePattern)
	defer anyLine.Close()
	if !anyLine.Wait(d.tm.reboot) {
		return errors.New("no log output from the board, it needs a manual power on")
	}

	d.mu.Lock()
	d.outputName = name
	d.mu.Unlock()
	d.log.Info("Log alignment",
		slog.Time("board_line_time", anyLine.Line().Time),
		slog.String("output_filename", name))
	return nil
}

func (d *Device) ensureConfiguredAddress(ctx context.Context) error {
	info, err := d.GetDeviceInfo(ctx)
	if err != nil {
		return err
	}
	want := btaddr.Canonical(d.cfg.BluetoothAddress)
	if btaddr.Canonical(info.BluetoothAddress) == want && btaddr.Canonical(info.BLEAddress) == want {
		return nil
	}
	return d.SetAddress(ctx, d.cfg.BluetoothAddress)
}

func (d *Device) initRecorder() error {
	if d.cfg.Audio == nil {
		return nil
	}
	d.recorder = audio.NewRecorder(d.tr, d.cfg.LogDir, d.log)
	return nil
}

// teardown releases everything initConnection acquired. Partial state
// is tolerated so it can run after a failed bring-up.
func (d *Device) teardown() {
	if d.logProc != nil {
		_ = d.logProc.Stop()
		d.logProc = nil
	}
	if d.bus != nil {
		d.bus.Stop()
		d.bus = nil
	}
	if d.tr != nil {
		_ = d.tr.Close()
		d.tr = nil
	}
	d.corr = nil
}

// Close stops audio capture, log streaming, and the console
// connection. It is safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	if d.recorder != nil && d.recorder.IsAlive() {
		if _, err := d.recorder.Stop(context.Background(), d.cfg.LogDir); err != nil {
			d.log.Warn("Failed to stop audio recorder", slog.Any("error", err))
		}
	}
	d.teardown()
	return nil
}

// BluetoothAddress returns the configured classic address of the board.
func (d *Device) BluetoothAddress() string {
	return d.cfg.BluetoothAddress
}

// Version returns the firmware version learned from the last reboot
// cycle, or "unknown" before the first reboot.
func (d *Device) Version() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.version == "" {
		return "unknown"
	}
	return d.version
}

// IsV2 reports whether the firmware is a v2 build. The generation is
// only known after a reboot cycle; before that the board is assumed to
// be v1.
func (d *Device) IsV2() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.buildDate.IsZero() && d.buildDate.After(v1LatestBuildDate)
}

// SendRawCommand transmits an arbitrary console command and returns the
// parsed response message. This is the interactive console's escape
// hatch; typed operations should be preferred everywhere else.
func (d *Device) SendRawCommand(ctx context.Context, command string) (string, error) {
	return d.send(ctx, command, true)
}

// SubscribeLog taps the live log stream for display. The cancel
// function must be called when the tap is no longer read.
func (d *Device) SubscribeLog() (<-chan logbus.Line, func()) {
	return d.bus.Subscribe()
}

func (d *Device) send(ctx context.Context, command string, waitResponse bool) (string, error) {
	d.mu.Lock()
	closed := d.closed
	corr := d.corr
	d.mu.Unlock()
	if closed || corr == nil {
		return "", ErrClosed
	}
	return corr.send(ctx, command, waitResponse)
}

// rebootAndWait sends a reboot-class command and waits for the firmware
// banner, the Bluetooth stack, and the expected access mode. The
// firmware version and build date are refreshed from the boot banner.
func (d *Device) rebootAndWait(ctx context.Context, command string, accessMode AccessMode) error {
	d.mu.Lock()
	if d.closed || d.bus == nil {
		d.mu.Unlock()
		return ErrClosed
	}
	bus := d.bus
	d.mu.Unlock()

	stackReady := bus.WaitFor(rebootDonePattern)
	defer stackReady.Close()
	buildDate := bus.WaitFor(buildDatePattern)
	defer buildDate.Close()
	version := bus.WaitFor(versionPattern)
	defer version.Close()
	access := bus.WaitFor(accessModePattern(accessMode))
	defer access.Close()

	if _, err := d.send(ctx, command, false); err != nil {
		return err
	}

	if version.Wait(d.tm.reboot) {
		// The banner prints BUILD_DATE and REV_INFO back to back; give
		// the build date line a moment if it trails the version.
		buildDate.Wait(d.tm.rebootSettle)
		d.refreshFirmwareVersion(version.Group("version"), buildDate.Group("build_date"))
	}
	if !stackReady.Wait(d.tm.reboot) {
		return fmt.Errorf("board did not report Bluetooth stack ready after %q", command)
	}
	if !access.Wait(d.tm.reboot) {
		return fmt.Errorf("board did not reach access mode %d after %q", int(accessMode), command)
	}

	// The board is flaky right after the stack comes up.
	select {
	case <-time.After(d.tm.rebootSettle):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (d *Device) refreshFirmwareVersion(rawVersion, rawBuildDate string) {
	var parts []string
	if v := strings.TrimSpace(rawVersion); v != "" {
		parts = append(parts, v)
	}
	if raw := strings.TrimSpace(rawBuildDate); raw != "" {
		if t, err := parseBuildDate(raw); err == nil {
			d.mu.Lock()
			d.buildDate = t
			d.mu.Unlock()
			parts = append(parts, strings.Join(strings.Fields(raw), "_"))
		} else {
			d.log.Warn("Unparseable firmware build date", slog.String("build_date", raw))
		}
	}
	d.mu.Lock()
	d.version = strings.Join(parts, ":")
	d.mu.Unlock()
	d.log.Info("Firmware version", slog.String("version", d.Version()))
}

// Reboot soft-reboots the board and waits for it to come back up.
func (d *Device) Reboot(ctx context.Context) error {
	return d.rebootAndWait(ctx, cmdReboot, AccessInitPairing)
}

// FactoryReset wipes the board's pairing state and reboots it. With
// waitForAccess the call waits for the board to enter pairing mode
// after the reboot; without it only the initial access mode is awaited,
// which is what the secondary earbud of a TWS pair needs.
func (d *Device) FactoryReset(ctx context.Context, waitForAccess bool) error {
	mode := AccessInitPairing
	if waitForAccess {
		mode = AccessEnablePairing
	}
	return d.rebootAndWait(ctx, cmdFactoryReset, mode)
}

// GetSerialNumber returns the manufacturing serial number. Only v2
// firmware exposes it.
func (d *Device) GetSerialNumber(ctx context.Context) (string, error) {
	if !d.IsV2() {
		return "", fmt.Errorf("%w: serial number requires v2 firmware", ErrNotImplemented)
	}
	return d.send(ctx, cmdSerialNumber, true)
}

// GetDeviceInfo returns the Bluetooth identity of the board.
func (d *Device) GetDeviceInfo(ctx context.Context) (DeviceInfo, error) {
	message, err := d.send(ctx, cmdDeviceInfo, true)
	if err != nil {
		return DeviceInfo{}, err
	}
	pairs := parseDeviceInfoPairs(message)
	fields := make(map[string]string, len(pairs))
	for key, value := range pairs {
		if mapped, ok := infoKeyMap[key]; ok {
			key = mapped
		}
		fields[key] = value
	}
	info := DeviceInfo{
		BluetoothAddress: fields["bluetooth_address"],
		BLEAddress:       fields["ble_address"],
		BluetoothName:    fields["bluetooth_name"],
		BLEName:          fields["ble_name"],
	}
	if info.BluetoothAddress == "" || info.BLEAddress == "" {
		return DeviceInfo{}, fmt.Errorf("%w: device info %q", ErrUnparseableResponse, message)
	}
	return info, nil
}

// SetAddress sets the classic and BLE address of the board and reboots
// it for the change to take effect.
func (d *Device) SetAddress(ctx context.Context, address string) error {
	if !btaddr.IsValid(address) {
		return fmt.Errorf("%w: Bluetooth address %q", ErrInvalidArgument, address)
	}
	if _, err := d.send(ctx, fmt.Sprintf("%s %s", cmdSetAddress, address), false); err != nil {
		return err
	}
	return d.Reboot(ctx)
}

// SetName sets the classic and BLE names of the board and reboots it
// for the change to take effect. To set names and Fast Pair parameters
// together use SetNameAndFastPairParams, which reboots only once.
func (d *Device) SetName(ctx context.Context, bluetoothName, bleName string) error {
	if err := d.sendSetName(ctx, bluetoothName, bleName); err != nil {
		return err
	}
	return d.Reboot(ctx)
}

func (d *Device) sendSetName(ctx context.Context, bluetoothName, bleName string) error {
	_, err := d.send(ctx, fmt.Sprintf(`%s \"%s\" \"%s\"`, cmdSetName, bluetoothName, bleName), true)
	return err
}

// SetFastPairParams programs the Fast Pair model ID and anti-spoofing
// key, then reboots the board. The model ID is given as XXXXXX or
// 0xXXXXXX; the key as base64.
func (d *Device) SetFastPairParams(ctx context.Context, modelID, privateKey string) error {
	if err := d.sendFastPairParams(ctx, modelID, privateKey); err != nil {
		return err
	}
	return d.Reboot(ctx)
}

func (d *Device) sendFastPairParams(ctx context.Context, modelID, privateKey string) error {
	reversed, err := ReverseFastPairModelID(modelID)
	if err != nil {
		return err
	}
	if _, err := d.send(ctx, fmt.Sprintf("%s %s", cmdSetFPModelID, reversed), true); err != nil {
		return err
	}
	decoded, err := DecodeFastPairPrivateKey(privateKey)
	if err != nil {
		return err
	}
	_, err = d.send(ctx, fmt.Sprintf("%s %s", cmdSetFPKey, decoded), true)
	return err
}

// SetNameAndFastPairParams sets the Bluetooth names and the Fast Pair
// parameters with a single reboot at the end.
func (d *Device) SetNameAndFastPairParams(ctx context.Context, bluetoothName, bleName, modelID, privateKey string) error {
	if err := d.sendSetName(ctx, bluetoothName, bleName); err != nil {
		return err
	}
	return d.SetFastPairParams(ctx, modelID, privateKey)
}

// FastPairSupported reports Fast Pair support. Always true on the lab
// firmware.
func (d *Device) FastPairSupported() bool { return true }

// SASSSupported reports audio switching support. Always true on the
// lab firmware.
func (d *Device) SASSSupported() bool { return true }

// LEAudioSupported reports LE Audio support. Always true on the lab
// firmware.
func (d *Device) LEAudioSupported() bool { return true }

// ANCSupported reports active noise cancellation support. Always true
// on the lab firmware.
func (d *Device) ANCSupported() bool { return true }

// SpatialAudioSupported reports spatial audio support. Always true on
// the lab firmware.
func (d *Device) SpatialAudioSupported() bool { return true }

// SetSinglePoint disables multipoint so the board accepts a single
// phone connection. Requires v2 firmware.
func (d *Device) SetSinglePoint(ctx context.Context) error {
	return d.setMultipoint(ctx, 0)
}

// SetMultiPoint enables multipoint so the board accepts two phone
// connections. Requires v2 firmware.
func (d *Device) SetMultiPoint(ctx context.Context) error {
	return d.setMultipoint(ctx, 1)
}

func (d *Device) setMultipoint(ctx context.Context, mode int) error {
	if !d.IsV2() {
		return fmt.Errorf("%w: multipoint control requires v2 firmware", ErrNotImplemented)
	}
	_, err := d.send(ctx, fmt.Sprintf("%s %d", cmdSetMultpoint, mode), true)
	return err
}

// StartPairingMode makes the board discoverable and connectable.
func (d *Device) StartPairingMode(ctx context.Context) error {
	_, err := d.send(ctx, cmdEnablePairing, true)
	return err
}

// StopPairingMode exits pairing mode.
func (d *Device) StopPairingMode(ctx context.Context) error {
	_, err := d.send(ctx, cmdDisablePairing, true)
	return err
}

// Connect initiates a connection to the given classic address.
func (d *Device) Connect(ctx context.Context, address string) error {
	return d.sendToAddress(ctx, cmdConnect, address)
}

// Disconnect drops the connection to the given classic address.
func (d *Device) Disconnect(ctx context.Context, address string) error {
	return d.sendToAddress(ctx, cmdDisconnect, address)
}

func (d *Device) sendToAddress(ctx context.Context, command, address string) error {
	if !btaddr.IsValid(address) {
		return fmt.Errorf("%w: Bluetooth address %q", ErrInvalidArgument, address)
	}
	_, err := d.send(ctx, fmt.Sprintf("%s %s", command, btaddr.Strip(address)), true)
	return err
}

// ClearPairedDevices disconnects and unpairs every bonded peer.
func (d *Device) ClearPairedDevices(ctx context.Context) error {
	_, err := d.send(ctx, cmdClearPaired, true)
	return err
}

// PairedDevice is one bonded peer of the board. BLE-only bonds have an
// empty name.
type PairedDevice struct {
	Name    string
	Address string
}

// GetPairedDevices lists the board's bonded peers. The firmware prints
// classic addresses least significant byte first; they are converted to
// standard big-endian form here.
func (d *Device) GetPairedDevices(ctx context.Context) ([]PairedDevice, error) {
	message, err := d.send(ctx, cmdGetPaired, true)
	if err != nil {
		return nil, err
	}
	var devices []PairedDevice
	for _, m := range pairedDevicePattern.FindAllStringSubmatch(message, -1) {
		groups := namedGroups(pairedDevicePattern, m)
		addr, err := btaddr.FromLSB(groups["addr"])
		if err != nil {
			return nil, err
		}
		devices = append(devices, PairedDevice{Name: groups["name"], Address: addr})
	}
	for _, m := range lePairedPattern.FindAllStringSubmatch(message, -1) {
		addr, err := btaddr.FromLSB(m[1])
		if err != nil {
			return nil, err
		}
		devices = append(devices, PairedDevice{Address: addr})
	}
	return devices, nil
}

// EnableTWS puts the board in earbud mode, ready to pair with its
// sibling board.
func (d *Device) EnableTWS(ctx context.Context) error {
	_, err := d.send(ctx, cmdSetTWSEnable+" 1", true)
	return err
}

// DisableTWS takes the board out of earbud mode.
func (d *Device) DisableTWS(ctx context.Context) error {
	_, err := d.send(ctx, cmdSetTWSEnable+" 0", true)
	return err
}

// SetComponentNumber sets the number of devices in the CSIP coordinated
// set: 1 for a single component, 2 for a coordinator and a set member.
func (d *Device) SetComponentNumber(ctx context.Context, number int) error {
	if number != 1 && number != 2 {
		return fmt.Errorf("%w: component number %d", ErrInvalidArgument, number)
	}
	_, err := d.send(ctx, fmt.Sprintf("%s %d", cmdSetComponent, number), true)
	return err
}

// PairTWS pairs the board with its sibling earbud. v1 firmware does not
// acknowledge the command, so the response is only awaited on v2.
func (d *Device) PairTWS(ctx context.Context) error {
	_, err := d.send(ctx, cmdTWSPairing, d.IsV2())
	return err
}

// SetBatteryLevel sets the simulated battery level, in percent.
func (d *Device) SetBatteryLevel(ctx context.Context, level int) error {
	if err := checkBatteryLevel(level); err != nil {
		return err
	}
	_, err := d.send(ctx, fmt.Sprintf("%s %d %d", cmdSetBattery, level, level), true)
	return err
}

// SetTWSBatteryLevel sets the simulated battery levels of both earbuds
// and, on v2 firmware, the case. caseLevel may be nil.
func (d *Device) SetTWSBatteryLevel(ctx context.Context, leftLevel, rightLevel int, caseLevel *int) error {
	if err := checkBatteryLevel(leftLevel); err != nil {
		return err
	}
	if err := checkBatteryLevel(rightLevel); err != nil {
		return err
	}
	if caseLevel != nil {
		if err := checkBatteryLevel(*caseLevel); err != nil {
			return err
		}
	}
	if d.IsV2() && caseLevel != nil {
		_, err := d.send(ctx, fmt.Sprintf("%s %d %d %d", cmdSetBattery, leftLevel, rightLevel, *caseLevel), true)
		return err
	}
	_, err := d.send(ctx, fmt.Sprintf("%s %d %d", cmdSetBattery, leftLevel, rightLevel), true)
	return err
}

func checkBatteryLevel(level int) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("%w: battery level %d, want 0-100", ErrInvalidArgument, level)
	}
	return nil
}

// GetBatteryLevel returns the simulated battery level, in percent.
func (d *Device) GetBatteryLevel(ctx context.Context) (int, error) {
	message, err := d.send(ctx, cmdGetBattery, true)
	if err != nil {
		return 0, err
	}
	return parseBatteryLevel(message)
}

// GetTWSBatteryLevels returns the battery levels of both earbuds and,
// when the firmware reports it, the case. Requires the boards to be
// paired as a TWS set.
func (d *Device) GetTWSBatteryLevels(ctx context.Context) (TWSBatteryLevels, error) {
	message, err := d.send(ctx, cmdGetBattery, true)
	if err != nil {
		return TWSBatteryLevels{}, err
	}
	return parseTWSBatteryLevels(message)
}

// VolumeUp simulates steps presses on the volume-up button.
func (d *Device) VolumeUp(ctx context.Context, steps int) error {
	return d.stepVolume(ctx, cmdVolumeUp, steps)
}

// VolumeDown simulates steps presses on the volume-down button.
func (d *Device) VolumeDown(ctx context.Context, steps int) error {
	return d.stepVolume(ctx, cmdVolumeDown, steps)
}

func (d *Device) stepVolume(ctx context.Context, command string, steps int) error {
	for i := 0; i < steps; i++ {
		if _, err := d.send(ctx, command, true); err != nil {
			return err
		}
	}
	return nil
}

// SetVolume sets the absolute volume, in the range 0-127.
func (d *Device) SetVolume(ctx context.Context, level int) error {
	if level < 0 || level > 127 {
		return fmt.Errorf("%w: volume level %d, want 0-127", ErrInvalidArgument, level)
	}
	_, err := d.send(ctx, fmt.Sprintf("%s %d", cmdSetVolume, level), true)
	return err
}

// GetVolume returns the current volume, in the range 0-127.
func (d *Device) GetVolume(ctx context.Context) (int, error) {
	message, err := d.send(ctx, cmdGetVolume, true)
	if err != nil {
		return 0, err
	}
	return parseVolume(message)
}

// Media controls. The firmware forwards these as AVRCP events and does
// not acknowledge them.

func (d *Device) MediaPlay(ctx context.Context) error  { return d.fireAndForget(ctx, cmdMediaPlay) }
func (d *Device) MediaPause(ctx context.Context) error { return d.fireAndForget(ctx, cmdMediaPause) }
func (d *Device) MediaNext(ctx context.Context) error  { return d.fireAndForget(ctx, cmdMediaNext) }
func (d *Device) MediaPrev(ctx context.Context) error  { return d.fireAndForget(ctx, cmdMediaPrev) }

// Call controls, likewise unacknowledged.

func (d *Device) CallAccept(ctx context.Context) error  { return d.fireAndForget(ctx, cmdCallAccept) }
func (d *Device) CallDecline(ctx context.Context) error { return d.fireAndForget(ctx, cmdCallDecline) }
func (d *Device) CallHold(ctx context.Context) error    { return d.fireAndForget(ctx, cmdCallHold) }
func (d *Device) CallRedial(ctx context.Context) error  { return d.fireAndForget(ctx, cmdCallRedial) }

func (d *Device) fireAndForget(ctx context.Context, command string) error {
	_, err := d.send(ctx, command, false)
	return err
}

// ANCMode is a noise-control mode of the firmware.
type ANCMode int

const (
	ANCOff         ANCMode = 0
	ANCOn          ANCMode = 1
	ANCTransparent ANCMode = 2
)

// SetANCMode switches the noise-control mode. Requires v2 firmware.
func (d *Device) SetANCMode(ctx context.Context, mode ANCMode) error {
	if !d.IsV2() {
		return fmt.Errorf("%w: ANC mode control requires v2 firmware", ErrNotImplemented)
	}
	_, err := d.send(ctx, fmt.Sprintf("%s %d", cmdSetANCMode, int(mode)), true)
	return err
}

// GetANCMode is not exposed by the firmware.
func (d *Device) GetANCMode(ctx context.Context) (ANCMode, error) {
	return 0, fmt.Errorf("%w: reading the ANC mode", ErrNotImplemented)
}

// EnableSpatialAudio turns on spatial audio. Requires v2 firmware.
func (d *Device) EnableSpatialAudio(ctx context.Context) error {
	return d.setSpatialAudio(ctx, 1)
}

// DisableSpatialAudio turns off spatial audio. Requires v2 firmware.
func (d *Device) DisableSpatialAudio(ctx context.Context) error {
	return d.setSpatialAudio(ctx, 0)
}

func (d *Device) setSpatialAudio(ctx context.Context, mode int) error {
	if !d.IsV2() {
		return fmt.Errorf("%w: spatial audio control requires v2 firmware", ErrNotImplemented)
	}
	_, err := d.send(ctx, fmt.Sprintf("%s %d", cmdSetSpatialAudio, mode), true)
	return err
}

// EnableFastPair is not exposed by the firmware.
func (d *Device) EnableFastPair(ctx context.Context) error {
	return fmt.Errorf("%w: toggling Fast Pair", ErrNotImplemented)
}

// DisableFastPair is not exposed by the firmware.
func (d *Device) DisableFastPair(ctx context.Context) error {
	return fmt.Errorf("%w: toggling Fast Pair", ErrNotImplemented)
}

// GetComponentNumber is not exposed by the firmware.
func (d *Device) GetComponentNumber(ctx context.Context) (int, error) {
	return 0, fmt.Errorf("%w: reading the component number", ErrNotImplemented)
}

func logTimestamp() string {
	return time.Now().Format("01-02-2006_15-04-05")
}
