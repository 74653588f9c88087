package tws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/android-beat/internal/audio"
	"github.com/google/android-beat/internal/bes"
	"github.com/google/android-beat/internal/config"
)

// fakeBoard records every operation and can be scripted to fail.
type fakeBoard struct {
	addr string

	mu                sync.Mutex
	calls             []string
	failOn            map[string]error
	batteryLevel      int
	twsBattery        bes.TWSBatteryLevels
	twsBatteryErr     error
	factoryResetWaits []bool
	setAddresses      []string
}

func newFakeBoard(addr string) *fakeBoard {
	return &fakeBoard{addr: addr, failOn: map[string]error{}}
}

func (f *fakeBoard) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.failOn[name]
}

func (f *fakeBoard) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBoard) Close() error             { return f.record("close") }
func (f *fakeBoard) BluetoothAddress() string { return f.addr }
func (f *fakeBoard) Version() string          { return "2.1.0" }

func (f *fakeBoard) Reboot(ctx context.Context) error { return f.record("reboot") }

func (f *fakeBoard) FactoryReset(ctx context.Context, waitForAccess bool) error {
	f.mu.Lock()
	f.factoryResetWaits = append(f.factoryResetWaits, waitForAccess)
	f.mu.Unlock()
	return f.record("factory_reset")
}

func (f *fakeBoard) PowerOn(ctx context.Context, ignoreError bool) error {
	return f.record("power_on")
}

func (f *fakeBoard) PowerOff(ctx context.Context, ignoreError bool) error {
	return f.record("power_off")
}

func (f *fakeBoard) GetDeviceInfo(ctx context.Context) (bes.DeviceInfo, error) {
	return bes.DeviceInfo{BluetoothAddress: f.addr}, f.record("get_device_info")
}

func (f *fakeBoard) SetAddress(ctx context.Context, address string) error {
	f.mu.Lock()
	f.setAddresses = append(f.setAddresses, address)
	f.mu.Unlock()
	return f.record("set_address")
}

func (f *fakeBoard) SetName(ctx context.Context, bluetoothName, bleName string) error {
	return f.record("set_name")
}

func (f *fakeBoard) SetFastPairParams(ctx context.Context, modelID, privateKey string) error {
	return f.record("set_fp_params")
}

func (f *fakeBoard) SetNameAndFastPairParams(ctx context.Context, bluetoothName, bleName, modelID, privateKey string) error {
	return f.record("set_name_and_fp_params")
}

func (f *fakeBoard) SetSinglePoint(ctx context.Context) error { return f.record("set_single_point") }
func (f *fakeBoard) SetMultiPoint(ctx context.Context) error  { return f.record("set_multi_point") }

func (f *fakeBoard) EnableTWS(ctx context.Context) error { return f.record("enable_tws") }
func (f *fakeBoard) PairTWS(ctx context.Context) error   { return f.record("pair_tws") }

func (f *fakeBoard) SetComponentNumber(ctx context.Context, number int) error {
	return f.record("set_component_number")
}

func (f *fakeBoard) StartPairingMode(ctx context.Context) error { return f.record("start_pairing") }
func (f *fakeBoard) StopPairingMode(ctx context.Context) error  { return f.record("stop_pairing") }

func (f *fakeBoard) Connect(ctx context.Context, address string) error {
	return f.record("connect")
}

func (f *fakeBoard) Disconnect(ctx context.Context, address string) error {
	return f.record("disconnect")
}

func (f *fakeBoard) ClearPairedDevices(ctx context.Context) error {
	return f.record("clear_paired_devices")
}

func (f *fakeBoard) GetPairedDevices(ctx context.Context) ([]bes.PairedDevice, error) {
	return nil, f.record("get_paired_devices")
}

func (f *fakeBoard) SetTWSBatteryLevel(ctx context.Context, leftLevel, rightLevel int, caseLevel *int) error {
	return f.record("set_tws_battery")
}

func (f *fakeBoard) GetBatteryLevel(ctx context.Context) (int, error) {
	return f.batteryLevel, f.record("get_battery")
}

func (f *fakeBoard) GetTWSBatteryLevels(ctx context.Context) (bes.TWSBatteryLevels, error) {
	if err := f.record("get_tws_battery"); err != nil {
		return bes.TWSBatteryLevels{}, err
	}
	return f.twsBattery, f.twsBatteryErr
}

func (f *fakeBoard) VolumeUp(ctx context.Context, steps int) error   { return f.record("volume_up") }
func (f *fakeBoard) VolumeDown(ctx context.Context, steps int) error { return f.record("volume_down") }
func (f *fakeBoard) SetVolume(ctx context.Context, level int) error  { return f.record("set_volume") }
func (f *fakeBoard) GetVolume(ctx context.Context) (int, error)      { return 0, f.record("get_volume") }

func (f *fakeBoard) MediaPlay(ctx context.Context) error   { return f.record("media_play") }
func (f *fakeBoard) MediaPause(ctx context.Context) error  { return f.record("media_pause") }
func (f *fakeBoard) MediaNext(ctx context.Context) error   { return f.record("media_next") }
func (f *fakeBoard) MediaPrev(ctx context.Context) error   { return f.record("media_prev") }
func (f *fakeBoard) CallAccept(ctx context.Context) error  { return f.record("call_accept") }
func (f *fakeBoard) CallDecline(ctx context.Context) error { return f.record("call_decline") }
func (f *fakeBoard) CallHold(ctx context.Context) error    { return f.record("call_hold") }
func (f *fakeBoard) CallRedial(ctx context.Context) error  { return f.record("call_redial") }

func (f *fakeBoard) GetInBoxState(ctx context.Context) (bool, error) {
	return false, f.record("get_in_box")
}

func (f *fakeBoard) SetInBoxState(ctx context.Context, inBox bool) error {
	return f.record("set_in_box")
}

func (f *fakeBoard) GetOnHeadState(ctx context.Context) (bool, error) {
	return false, f.record("get_on_head")
}

func (f *fakeBoard) SetOnHeadState(ctx context.Context, onHead bool) error {
	return f.record("set_on_head")
}

func (f *fakeBoard) OpenBox(ctx context.Context) error  { return f.record("open_box") }
func (f *fakeBoard) FetchOut(ctx context.Context) error { return f.record("fetch_out") }
func (f *fakeBoard) WearUp(ctx context.Context) error   { return f.record("wear_up") }
func (f *fakeBoard) WearDown(ctx context.Context) error { return f.record("wear_down") }
func (f *fakeBoard) PutIn(ctx context.Context) error    { return f.record("put_in") }
func (f *fakeBoard) CloseBox(ctx context.Context) error { return f.record("close_box") }

func (f *fakeBoard) SetANCMode(ctx context.Context, mode bes.ANCMode) error {
	return f.record("set_anc_mode")
}

func (f *fakeBoard) EnableSpatialAudio(ctx context.Context) error {
	return f.record("enable_spatial_audio")
}

func (f *fakeBoard) DisableSpatialAudio(ctx context.Context) error {
	return f.record("disable_spatial_audio")
}

func (f *fakeBoard) CreateOutputExcerpts(ctx context.Context, outputDir string) ([]string, error) {
	return []string{f.addr + ".txt"}, f.record("create_excerpts")
}

func (f *fakeBoard) StartAudioRecording(ctx context.Context, opts audio.Options) error {
	return f.record("start_recording")
}

func (f *fakeBoard) StopAudioRecording(ctx context.Context, outputDir string) (string, error) {
	return f.addr + ".wav", f.record("stop_recording")
}

func newTestPair(t *testing.T) (*Pair, *fakeBoard, *fakeBoard) {
	t.Helper()
	left := newFakeBoard("11:22:23:33:33:50")
	right := newFakeBoard("11:22:23:33:33:51")
	pair, err := New(config.TWSConfig{
		Controller: config.ControllerBes,
		PrimaryEar: config.EarRight,
	}, left, right, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return pair, left, right
}

func TestSetAddressDerivesSecondary(t *testing.T) {
	pair, left, right := newTestPair(t)

	if err := pair.SetAddress(context.Background(), "11:22:23:33:33:51"); err != nil {
		t.Fatal(err)
	}
	// Right is the primary ear.
	if got := right.setAddresses; len(got) != 1 || got[0] != "11:22:23:33:33:51" {
		t.Fatalf("primary addresses = %v", got)
	}
	if got := left.setAddresses; len(got) != 1 || got[0] != "11:22:23:33:33:50" {
		t.Fatalf("secondary addresses = %v", got)
	}
	if pair.PrimaryAddress() != "11:22:23:33:33:51" || pair.SecondaryAddress() != "11:22:23:33:33:50" {
		t.Fatalf("cached addresses = %s / %s", pair.PrimaryAddress(), pair.SecondaryAddress())
	}
}

func TestSetAddressRejectsUnprovisioned(t *testing.T) {
	pair, left, right := newTestPair(t)

	err := pair.SetAddress(context.Background(), "aa:bb:cc:dd:ee:ff")
	if err == nil {
		t.Fatal("expected an error for an unprovisioned address")
	}
	if len(left.setAddresses) != 0 || len(right.setAddresses) != 0 {
		t.Fatal("no address should have been programmed")
	}
}

func TestRebootRepairsTWSLink(t *testing.T) {
	pair, left, right := newTestPair(t)

	if err := pair.Reboot(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{"reboot", "enable_tws", "pair_tws"}
	for _, board := range []*fakeBoard{left, right} {
		got := board.recorded()
		if len(got) != len(want) {
			t.Fatalf("%s calls = %v, want %v", board.addr, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s call %d = %q, want %q", board.addr, i, got[i], want[i])
			}
		}
	}
}

func TestFactoryResetOnlyPrimaryWaitsForAccess(t *testing.T) {
	pair, left, right := newTestPair(t)

	if err := pair.FactoryReset(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := right.factoryResetWaits; len(got) != 1 || !got[0] {
		t.Fatalf("primary waitForAccess = %v, want [true]", got)
	}
	if got := left.factoryResetWaits; len(got) != 1 || got[0] {
		t.Fatalf("secondary waitForAccess = %v, want [false]", got)
	}
}

func TestFanOutFailsIfEitherSideFails(t *testing.T) {
	pair, left, right := newTestPair(t)
	boom := fmt.Errorf("board wedged")
	left.failOn["reboot"] = boom

	err := pair.Reboot(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the secondary's failure", err)
	}
	// The healthy board's command still went out; there is no rollback.
	if got := right.recorded(); len(got) == 0 || got[0] != "reboot" {
		t.Fatalf("primary calls = %v, want reboot to have been sent", got)
	}
}

func TestBatteryFallsBackToSingleEarQueries(t *testing.T) {
	pair, left, right := newTestPair(t)
	right.twsBatteryErr = &bes.CommandError{Command: "get_battery_level", Cause: bes.CauseNotSupported}
	left.batteryLevel = 40
	right.batteryLevel = 50

	levels, err := pair.GetBatteryLevel(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if levels.Left != 40 || levels.Right != 50 || levels.Case != nil {
		t.Fatalf("levels = %+v", levels)
	}
}

func TestBatteryCombinedQueryPreferred(t *testing.T) {
	pair, left, right := newTestPair(t)
	caseLevel := 90
	right.twsBattery = bes.TWSBatteryLevels{Left: 85, Right: 80, Case: &caseLevel}

	levels, err := pair.GetBatteryLevel(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if levels.Left != 85 || levels.Right != 80 || levels.Case == nil || *levels.Case != 90 {
		t.Fatalf("levels = %+v", levels)
	}
	if got := left.recorded(); len(got) != 0 {
		t.Fatalf("left board should not have been queried, got %v", got)
	}
}

func TestBatteryTimeoutPropagates(t *testing.T) {
	pair, left, right := newTestPair(t)
	right.twsBatteryErr = &bes.CommandTimeoutError{Command: "get_battery_level"}

	_, err := pair.GetBatteryLevel(context.Background())
	var timeoutErr *bes.CommandTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("err = %v, want the timeout to propagate", err)
	}
	if got := left.recorded(); len(got) != 0 {
		t.Fatalf("a timeout must not trigger the per-ear fallback, got %v", got)
	}
}

func TestPrimaryEarSelection(t *testing.T) {
	left := newFakeBoard("11:22:23:33:33:50")
	right := newFakeBoard("11:22:23:33:33:51")
	pair, err := New(config.TWSConfig{
		Controller: config.ControllerBes,
		PrimaryEar: config.EarLeft,
	}, left, right, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := pair.SetName(context.Background(), "buds", "buds le"); err != nil {
		t.Fatal(err)
	}
	if got := left.recorded(); len(got) != 1 || got[0] != "set_name" {
		t.Fatalf("left calls = %v, want the asymmetric op on the primary", got)
	}
	if got := right.recorded(); len(got) != 0 {
		t.Fatalf("right calls = %v, want none", got)
	}
}

func TestStereoRecordingCollectsBothFiles(t *testing.T) {
	pair, _, _ := newTestPair(t)
	ctx := context.Background()

	if err := pair.StartAudioRecording(ctx, true, audio.Options{}); err != nil {
		t.Fatal(err)
	}
	paths, err := pair.StopAudioRecording(ctx, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v, want one per earbud", paths)
	}
}

func TestMonoRecordingCollectsPrimaryFile(t *testing.T) {
	pair, left, _ := newTestPair(t)
	ctx := context.Background()

	if err := pair.StartAudioRecording(ctx, false, audio.Options{}); err != nil {
		t.Fatal(err)
	}
	paths, err := pair.StopAudioRecording(ctx, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != "11:22:23:33:33:51.wav" {
		t.Fatalf("paths = %v, want only the primary's recording", paths)
	}
	if got := left.recorded(); len(got) != 0 {
		t.Fatalf("left calls = %v, want none for a mono recording", got)
	}
}

func TestCloseClosesEveryBoard(t *testing.T) {
	left := newFakeBoard("11:22:23:33:33:50")
	right := newFakeBoard("11:22:23:33:33:51")
	caseBoard := newFakeBoard("11:22:23:33:33:44")
	pair, err := New(config.TWSConfig{
		Controller: config.ControllerBes,
		PrimaryEar: config.EarRight,
	}, left, right, caseBoard, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := pair.Close(); err != nil {
		t.Fatal(err)
	}
	for _, board := range []*fakeBoard{left, right, caseBoard} {
		if got := board.recorded(); len(got) != 1 || got[0] != "close" {
			t.Fatalf("%s calls = %v, want close", board.addr, got)
		}
	}
}

func TestGetDeviceInfoTargets(t *testing.T) {
	pair, left, _ := newTestPair(t)

	info, err := pair.GetDeviceInfo(context.Background(), TargetSecondary)
	if err != nil {
		t.Fatal(err)
	}
	if info.BluetoothAddress != left.addr {
		t.Fatalf("secondary info = %+v", info)
	}
	if _, err := pair.GetDeviceInfo(context.Background(), TargetCase); err == nil {
		t.Fatal("expected an error for a pair without a case board")
	}
	if _, err := pair.GetDeviceInfo(context.Background(), Target("elbow")); err == nil {
		t.Fatal("expected an error for an unknown target")
	}
}
