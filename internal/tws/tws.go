// Package tws composes two board sessions into one logical True
// Wireless Stereo device: a left and a right earbud, optionally a
// charging case, driven through a single command surface.
package tws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/google/android-beat/internal/audio"
	"github.com/google/android-beat/internal/bes"
	"github.com/google/android-beat/internal/btaddr"
	"github.com/google/android-beat/internal/config"
)

// Controller is the per-board command surface the composite drives.
// *bes.Device implements it; tests substitute fakes.
type Controller interface {
	Close() error
	BluetoothAddress() string
	Version() string

	Reboot(ctx context.Context) error
	FactoryReset(ctx context.Context, waitForAccess bool) error
	PowerOn(ctx context.Context, ignoreError bool) error
	PowerOff(ctx context.Context, ignoreError bool) error

	GetDeviceInfo(ctx context.Context) (bes.DeviceInfo, error)
	SetAddress(ctx context.Context, address string) error
	SetName(ctx context.Context, bluetoothName, bleName string) error
	SetFastPairParams(ctx context.Context, modelID, privateKey string) error
	SetNameAndFastPairParams(ctx context.Context, bluetoothName, bleName, modelID, privateKey string) error
	SetSinglePoint(ctx context.Context) error
	SetMultiPoint(ctx context.Context) error

	EnableTWS(ctx context.Context) error
	PairTWS(ctx context.Context) error
	SetComponentNumber(ctx context.Context, number int) error

	StartPairingMode(ctx context.Context) error
	StopPairingMode(ctx context.Context) error
	Connect(ctx context.Context, address string) error
	Disconnect(ctx context.Context, address string) error
	ClearPairedDevices(ctx context.Context) error
	GetPairedDevices(ctx context.Context) ([]bes.PairedDevice, error)

	SetTWSBatteryLevel(ctx context.Context, leftLevel, rightLevel int, caseLevel *int) error
	GetBatteryLevel(ctx context.Context) (int, error)
	GetTWSBatteryLevels(ctx context.Context) (bes.TWSBatteryLevels, error)

	VolumeUp(ctx context.Context, steps int) error
	VolumeDown(ctx context.Context, steps int) error
	SetVolume(ctx context.Context, level int) error
	GetVolume(ctx context.Context) (int, error)

	MediaPlay(ctx context.Context) error
	MediaPause(ctx context.Context) error
	MediaNext(ctx context.Context) error
	MediaPrev(ctx context.Context) error
	CallAccept(ctx context.Context) error
	CallDecline(ctx context.Context) error
	CallHold(ctx context.Context) error
	CallRedial(ctx context.Context) error

	GetInBoxState(ctx context.Context) (bool, error)
	SetInBoxState(ctx context.Context, inBox bool) error
	GetOnHeadState(ctx context.Context) (bool, error)
	SetOnHeadState(ctx context.Context, onHead bool) error
	OpenBox(ctx context.Context) error
	FetchOut(ctx context.Context) error
	WearUp(ctx context.Context) error
	WearDown(ctx context.Context) error
	PutIn(ctx context.Context) error
	CloseBox(ctx context.Context) error

	SetANCMode(ctx context.Context, mode bes.ANCMode) error
	EnableSpatialAudio(ctx context.Context) error
	DisableSpatialAudio(ctx context.Context) error

	CreateOutputExcerpts(ctx context.Context, outputDir string) ([]string, error)
	StartAudioRecording(ctx context.Context, opts audio.Options) error
	StopAudioRecording(ctx context.Context, outputDir string) (string, error)
}

// Pair is a set of TWS earbuds. Symmetric operations fan out to both
// earbuds concurrently and fail if either side fails; asymmetric ones
// go to the primary earbud only.
type Pair struct {
	cfg config.TWSConfig
	log *slog.Logger

	left, right, caseDev Controller
	primary, secondary   Controller

	mu               sync.Mutex
	addressPrimary   string
	addressSecondary string
	stereoRecording  bool
}

// Open builds the underlying board sessions and assembles them into a
// pair. Sessions are opened one at a time; if one fails, the sessions
// already opened are torn down.
func Open(ctx context.Context, cfg config.TWSConfig, log *slog.Logger) (*Pair, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Controller != config.ControllerBes {
		return nil, fmt.Errorf("unsupported controller type %q", cfg.Controller)
	}
	if log == nil {
		log = slog.Default()
	}

	var opened []Controller
	teardown := func() {
		for _, c := range opened {
			_ = c.Close()
		}
	}

	left, err := bes.Open(ctx, cfg.Left, log)
	if err != nil {
		return nil, fmt.Errorf("opening left earbud: %w", err)
	}
	opened = append(opened, left)

	right, err := bes.Open(ctx, cfg.Right, log)
	if err != nil {
		teardown()
		return nil, fmt.Errorf("opening right earbud: %w", err)
	}
	opened = append(opened, right)

	var caseDev Controller
	if cfg.Case != nil {
		c, err := bes.Open(ctx, *cfg.Case, log)
		if err != nil {
			teardown()
			return nil, fmt.Errorf("opening case: %w", err)
		}
		caseDev = c
	}

	return New(cfg, left, right, caseDev, log)
}

// New assembles a pair from already-opened controllers.
func New(cfg config.TWSConfig, left, right, caseDev Controller, log *slog.Logger) (*Pair, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &Pair{
		cfg:     cfg,
		left:    left,
		right:   right,
		caseDev: caseDev,
	}
	if cfg.PrimaryEar == config.EarLeft {
		p.primary, p.secondary = left, right
	} else {
		p.primary, p.secondary = right, left
	}
	p.addressPrimary = p.primary.BluetoothAddress()
	p.addressSecondary = p.secondary.BluetoothAddress()
	p.log = log.With(slog.String("tws", p.addressPrimary))
	return p, nil
}

// Close tears down every underlying session.
func (p *Pair) Close() error {
	err := p.left.Close()
	if rerr := p.right.Close(); err == nil {
		err = rerr
	}
	if p.caseDev != nil {
		if cerr := p.caseDev.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// both runs fn against the primary and secondary earbud concurrently
// and returns the first error. The successful side's effect is not
// rolled back.
func (p *Pair) both(ctx context.Context, fn func(context.Context, Controller) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for _, dev := range []Controller{p.primary, p.secondary} {
		dev := dev
		g.Go(func() error { return fn(ctx, dev) })
	}
	return g.Wait()
}

// PrimaryAddress returns the classic address of the primary earbud.
func (p *Pair) PrimaryAddress() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addressPrimary
}

// SecondaryAddress returns the classic address of the secondary earbud.
func (p *Pair) SecondaryAddress() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addressSecondary
}

// PrimaryEar names the ear configured as primary.
func (p *Pair) PrimaryEar() config.EarType {
	return p.cfg.PrimaryEar
}

// Version reports both earbuds' firmware versions.
func (p *Pair) Version() string {
	return fmt.Sprintf("L: %s, R: %s", p.left.Version(), p.right.Version())
}

// repairAfterReboot re-establishes the TWS link. A reboot breaks the
// pairing between the earbuds, so both must re-enable TWS mode and
// then re-pair.
func (p *Pair) repairAfterReboot(ctx context.Context) error {
	if err := p.both(ctx, func(ctx context.Context, d Controller) error {
		return d.EnableTWS(ctx)
	}); err != nil {
		return err
	}
	return p.both(ctx, func(ctx context.Context, d Controller) error {
		return d.PairTWS(ctx)
	})
}

// Reboot reboots both earbuds and re-pairs them.
func (p *Pair) Reboot(ctx context.Context) error {
	if err := p.both(ctx, func(ctx context.Context, d Controller) error {
		return d.Reboot(ctx)
	}); err != nil {
		return err
	}
	return p.repairAfterReboot(ctx)
}

// FactoryReset wipes both earbuds and re-pairs them. Only the primary
// waits for pairing access mode; the secondary never advertises on its
// own after a reset.
func (p *Pair) FactoryReset(ctx context.Context) error {
	if err := p.both(ctx, func(ctx context.Context, d Controller) error {
		return d.FactoryReset(ctx, d == p.primary)
	}); err != nil {
		return err
	}
	return p.repairAfterReboot(ctx)
}

// PowerOn soft powers on both earbuds.
func (p *Pair) PowerOn(ctx context.Context) error {
	return p.both(ctx, func(ctx context.Context, d Controller) error {
		return d.PowerOn(ctx, false)
	})
}

// PowerOff soft powers off both earbuds.
func (p *Pair) PowerOff(ctx context.Context) error {
	return p.both(ctx, func(ctx context.Context, d Controller) error {
		return d.PowerOff(ctx, false)
	})
}

// Target selects which underlying board a query addresses.
type Target string

const (
	TargetPrimary   Target = "primary"
	TargetSecondary Target = "secondary"
	TargetLeft      Target = "left"
	TargetRight     Target = "right"
	TargetCase      Target = "case"
)

func (p *Pair) controller(target Target) (Controller, error) {
	switch target {
	case TargetPrimary:
		return p.primary, nil
	case TargetSecondary:
		return p.secondary, nil
	case TargetLeft:
		return p.left, nil
	case TargetRight:
		return p.right, nil
	case TargetCase:
		if p.caseDev == nil {
			return nil, fmt.Errorf("no case board in this pair")
		}
		return p.caseDev, nil
	default:
		return nil, fmt.Errorf("unknown target %q", target)
	}
}

// GetDeviceInfo returns the Bluetooth identity of the targeted board.
func (p *Pair) GetDeviceInfo(ctx context.Context, target Target) (bes.DeviceInfo, error) {
	dev, err := p.controller(target)
	if err != nil {
		return bes.DeviceInfo{}, err
	}
	return dev.GetDeviceInfo(ctx)
}

// SetAddress sets the primary earbud's address and derives the
// secondary's by decrementing the low byte. Only addresses the lab
// boards are provisioned with are accepted. Both boards reboot.
func (p *Pair) SetAddress(ctx context.Context, address string) error {
	if !bes.IsProvisionedAddress(address) {
		return fmt.Errorf("address %q is not one of the provisioned board addresses", address)
	}
	secondary, err := btaddr.DecrementLowByte(address)
	if err != nil {
		return err
	}

	if err := p.primary.SetAddress(ctx, address); err != nil {
		return err
	}
	p.mu.Lock()
	p.addressPrimary = address
	p.mu.Unlock()

	if err := p.secondary.SetAddress(ctx, secondary); err != nil {
		return err
	}
	p.mu.Lock()
	p.addressSecondary = secondary
	p.mu.Unlock()
	return nil
}

// SetName sets the Bluetooth names on the primary earbud.
func (p *Pair) SetName(ctx context.Context, bluetoothName, bleName string) error {
	return p.primary.SetName(ctx, bluetoothName, bleName)
}

// SetFastPairParams programs Fast Pair parameters on the primary
// earbud.
func (p *Pair) SetFastPairParams(ctx context.Context, modelID, privateKey string) error {
	return p.primary.SetFastPairParams(ctx, modelID, privateKey)
}

// SetNameAndFastPairParams sets names and Fast Pair parameters on the
// primary earbud with a single reboot.
func (p *Pair) SetNameAndFastPairParams(ctx context.Context, bluetoothName, bleName, modelID, privateKey string) error {
	return p.primary.SetNameAndFastPairParams(ctx, bluetoothName, bleName, modelID, privateKey)
}

// SetSinglePoint sets single point mode on the primary earbud.
func (p *Pair) SetSinglePoint(ctx context.Context) error { return p.primary.SetSinglePoint(ctx) }

// SetMultiPoint sets multipoint mode on the primary earbud.
func (p *Pair) SetMultiPoint(ctx context.Context) error { return p.primary.SetMultiPoint(ctx) }

// EnableTWS enables earbud mode on both boards.
func (p *Pair) EnableTWS(ctx context.Context) error {
	return p.both(ctx, func(ctx context.Context, d Controller) error {
		return d.EnableTWS(ctx)
	})
}

// PairTWS pairs the two earbuds with each other.
func (p *Pair) PairTWS(ctx context.Context) error {
	return p.both(ctx, func(ctx context.Context, d Controller) error {
		return d.PairTWS(ctx)
	})
}

// SetComponentNumber sets the CSIP component count on the primary
// earbud.
func (p *Pair) SetComponentNumber(ctx context.Context, number int) error {
	return p.primary.SetComponentNumber(ctx, number)
}

// StartPairingMode makes the pair discoverable.
func (p *Pair) StartPairingMode(ctx context.Context) error {
	return p.primary.StartPairingMode(ctx)
}

// StopPairingMode exits pairing mode.
func (p *Pair) StopPairingMode(ctx context.Context) error {
	return p.primary.StopPairingMode(ctx)
}

// Connect connects the pair to the given address.
func (p *Pair) Connect(ctx context.Context, address string) error {
	return p.primary.Connect(ctx, address)
}

// Disconnect drops the connection to the given address.
func (p *Pair) Disconnect(ctx context.Context, address string) error {
	return p.primary.Disconnect(ctx, address)
}

// ClearPairedDevices unpairs every bonded phone.
func (p *Pair) ClearPairedDevices(ctx context.Context) error {
	return p.primary.ClearPairedDevices(ctx)
}

// GetPairedDevices lists the bonded phones of the pair.
func (p *Pair) GetPairedDevices(ctx context.Context) ([]bes.PairedDevice, error) {
	return p.primary.GetPairedDevices(ctx)
}

// SetBatteryLevel sets the simulated battery levels of the pair.
// caseLevel may be nil.
func (p *Pair) SetBatteryLevel(ctx context.Context, leftLevel, rightLevel int, caseLevel *int) error {
	return p.primary.SetTWSBatteryLevel(ctx, leftLevel, rightLevel, caseLevel)
}

// GetBatteryLevel returns the battery levels of the pair. The combined
// query on the primary is tried first; if the board rejects it or the
// reply does not parse, each earbud is asked for its own level and no
// case level is reported. A timed-out combined query is not treated as
// lack of support and propagates instead.
func (p *Pair) GetBatteryLevel(ctx context.Context) (bes.TWSBatteryLevels, error) {
	levels, err := p.primary.GetTWSBatteryLevels(ctx)
	if err == nil {
		return levels, nil
	}
	var cmdErr *bes.CommandError
	if !errors.As(err, &cmdErr) && !errors.Is(err, bes.ErrUnparseableResponse) {
		return bes.TWSBatteryLevels{}, err
	}
	p.log.Debug("Combined battery query failed, falling back to per-ear queries",
		slog.Any("error", err))

	left, err := p.left.GetBatteryLevel(ctx)
	if err != nil {
		return bes.TWSBatteryLevels{}, err
	}
	right, err := p.right.GetBatteryLevel(ctx)
	if err != nil {
		return bes.TWSBatteryLevels{}, err
	}
	return bes.TWSBatteryLevels{Left: left, Right: right}, nil
}

// Volume and playback control goes to the primary earbud; the firmware
// forwards it over the TWS link.

func (p *Pair) VolumeUp(ctx context.Context, steps int) error {
	return p.primary.VolumeUp(ctx, steps)
}

func (p *Pair) VolumeDown(ctx context.Context, steps int) error {
	return p.primary.VolumeDown(ctx, steps)
}

func (p *Pair) SetVolume(ctx context.Context, level int) error {
	return p.primary.SetVolume(ctx, level)
}

func (p *Pair) GetVolume(ctx context.Context) (int, error) {
	return p.primary.GetVolume(ctx)
}

func (p *Pair) MediaPlay(ctx context.Context) error  { return p.primary.MediaPlay(ctx) }
func (p *Pair) MediaPause(ctx context.Context) error { return p.primary.MediaPause(ctx) }
func (p *Pair) MediaNext(ctx context.Context) error  { return p.primary.MediaNext(ctx) }
func (p *Pair) MediaPrev(ctx context.Context) error  { return p.primary.MediaPrev(ctx) }

func (p *Pair) CallAccept(ctx context.Context) error  { return p.primary.CallAccept(ctx) }
func (p *Pair) CallDecline(ctx context.Context) error { return p.primary.CallDecline(ctx) }
func (p *Pair) CallHold(ctx context.Context) error    { return p.primary.CallHold(ctx) }
func (p *Pair) CallRedial(ctx context.Context) error  { return p.primary.CallRedial(ctx) }

// Box and wear transitions are symmetric: both earbuds move together.

func (p *Pair) GetInBoxState(ctx context.Context) (bool, error) {
	return p.primary.GetInBoxState(ctx)
}

func (p *Pair) SetInBoxState(ctx context.Context, inBox bool) error {
	return p.both(ctx, func(ctx context.Context, d Controller) error {
		return d.SetInBoxState(ctx, inBox)
	})
}

func (p *Pair) GetOnHeadState(ctx context.Context) (bool, error) {
	return p.primary.GetOnHeadState(ctx)
}

func (p *Pair) SetOnHeadState(ctx context.Context, onHead bool) error {
	return p.both(ctx, func(ctx context.Context, d Controller) error {
		return d.SetOnHeadState(ctx, onHead)
	})
}

func (p *Pair) OpenBox(ctx context.Context) error {
	return p.both(ctx, func(ctx context.Context, d Controller) error {
		return d.OpenBox(ctx)
	})
}

func (p *Pair) FetchOut(ctx context.Context) error {
	return p.both(ctx, func(ctx context.Context, d Controller) error {
		return d.FetchOut(ctx)
	})
}

func (p *Pair) WearUp(ctx context.Context) error {
	return p.both(ctx, func(ctx context.Context, d Controller) error {
		return d.WearUp(ctx)
	})
}

func (p *Pair) WearDown(ctx context.Context) error {
	return p.both(ctx, func(ctx context.Context, d Controller) error {
		return d.WearDown(ctx)
	})
}

func (p *Pair) PutIn(ctx context.Context) error {
	return p.both(ctx, func(ctx context.Context, d Controller) error {
		return d.PutIn(ctx)
	})
}

func (p *Pair) CloseBox(ctx context.Context) error {
	return p.both(ctx, func(ctx context.Context, d Controller) error {
		return d.CloseBox(ctx)
	})
}

// SetANCMode switches the noise-control mode on the primary earbud.
func (p *Pair) SetANCMode(ctx context.Context, mode bes.ANCMode) error {
	return p.primary.SetANCMode(ctx, mode)
}

// EnableSpatialAudio turns on spatial audio on the primary earbud.
func (p *Pair) EnableSpatialAudio(ctx context.Context) error {
	return p.primary.EnableSpatialAudio(ctx)
}

// DisableSpatialAudio turns off spatial audio on the primary earbud.
func (p *Pair) DisableSpatialAudio(ctx context.Context) error {
	return p.primary.DisableSpatialAudio(ctx)
}

// CreateOutputExcerpts collects the log excerpts of both earbuds.
func (p *Pair) CreateOutputExcerpts(ctx context.Context, outputDir string) ([]string, error) {
	primary, err := p.primary.CreateOutputExcerpts(ctx, outputDir)
	if err != nil {
		return nil, err
	}
	secondary, err := p.secondary.CreateOutputExcerpts(ctx, outputDir)
	if err != nil {
		return nil, err
	}
	return append(primary, secondary...), nil
}

// StartAudioRecording starts audio capture. With stereo both earbuds
// record; otherwise only the primary does. The choice is remembered so
// StopAudioRecording collects the right files.
func (p *Pair) StartAudioRecording(ctx context.Context, stereo bool, opts audio.Options) error {
	p.mu.Lock()
	p.stereoRecording = stereo
	p.mu.Unlock()
	if !stereo {
		return p.primary.StartAudioRecording(ctx, opts)
	}
	return p.both(ctx, func(ctx context.Context, d Controller) error {
		return d.StartAudioRecording(ctx, opts)
	})
}

// StopAudioRecording stops capture and returns the recording paths.
func (p *Pair) StopAudioRecording(ctx context.Context, outputDir string) ([]string, error) {
	p.mu.Lock()
	stereo := p.stereoRecording
	p.mu.Unlock()
	if !stereo {
		path, err := p.primary.StopAudioRecording(ctx, outputDir)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	var mu sync.Mutex
	var paths []string
	err := p.both(ctx, func(ctx context.Context, d Controller) error {
		path, err := d.StopAudioRecording(ctx, outputDir)
		if err != nil {
			return err
		}
		mu.Lock()
		paths = append(paths, path)
		mu.Unlock()
		return nil
	})
	return paths, err
}
