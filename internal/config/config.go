// Package config loads and validates testbed configuration for BES boards
// and TWS devices.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/google/android-beat/internal/btaddr"
)

const (
	DefaultBaudRate = 1152000
	DefaultSSHPort  = 22
	DefaultUsername = "pi"
	DefaultPassword = "raspberry"

	DefaultSampleRate   = 8000
	DefaultSampleFormat = "S16_LE"
	DefaultChannels     = 1
)

// Error is a configuration error. It is fatal to the bring-up of the
// device it refers to.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return "config: " + e.Msg }

func errorf(format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// ControllerType selects the board family backing a TWS device.
type ControllerType string

const (
	// ControllerBes is a BES development board driven over a debug UART.
	ControllerBes ControllerType = "bes"
)

// EarType identifies one side of a TWS pair.
type EarType string

const (
	EarLeft  EarType = "LEFT"
	EarRight EarType = "RIGHT"
)

// ParseEarType accepts the spellings used in testbed files ("left", "L",
// "Right", ...).
func ParseEarType(s string) (EarType, error) {
	switch strings.ToUpper(s) {
	case "LEFT", "L":
		return EarLeft, nil
	case "RIGHT", "R":
		return EarRight, nil
	}
	return "", errorf("unsupported ear type %q", s)
}

// UnmarshalYAML implements yaml.Unmarshaler for EarType.
func (e *EarType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	ear, err := ParseEarType(s)
	if err != nil {
		return err
	}
	*e = ear
	return nil
}

// AudioConfig describes the capture device used to record the board's
// analog audio output. Query the PCM name with `arecord -l` on the host
// that owns the capture card.
type AudioConfig struct {
	PCMName      string `yaml:"pcm_name"`
	SampleRate   int    `yaml:"sample_rate"`
	SampleFormat string `yaml:"sample_format"`
	Channels     int    `yaml:"channels"`
}

// DeviceConfig configures one BES board.
//
// If the board is plugged into a remote Linux host (e.g. a Raspberry Pi),
// set RemoteMode and Hostname; the serial connection is then built over
// SSH. Otherwise the serial port is opened locally.
type DeviceConfig struct {
	SerialPort       string `yaml:"serial_port"`
	BluetoothAddress string `yaml:"bluetooth_address"`

	RemoteMode bool   `yaml:"remote_mode"`
	Hostname   string `yaml:"hostname"`
	SSHPort    int    `yaml:"ssh_port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Keyfile    string `yaml:"keyfile"`

	// HidtoolPath points at the prebuilt HID tool binary used for the
	// power-cycle recovery path. Empty disables recovery.
	HidtoolPath string `yaml:"hidtool_path"`

	// LogDir is the host directory for the raw serial capture and
	// excerpt files. Defaults to a per-address directory under /tmp/logs.
	LogDir string `yaml:"log_dir"`

	Audio *AudioConfig `yaml:"audio"`
}

// Validate fills in defaults and checks required fields.
func (c *DeviceConfig) Validate() error {
	if c.SerialPort == "" {
		return errorf("missing required key serial_port")
	}
	if !btaddr.IsValid(c.BluetoothAddress) {
		return errorf("invalid Bluetooth address %q", c.BluetoothAddress)
	}
	if c.RemoteMode && c.Hostname == "" {
		return errorf("hostname is required when remote_mode is enabled")
	}
	if c.SSHPort == 0 {
		c.SSHPort = DefaultSSHPort
	}
	if c.Username == "" {
		c.Username = DefaultUsername
	}
	if c.Password == "" {
		c.Password = DefaultPassword
	}
	if c.LogDir == "" {
		c.LogDir = fmt.Sprintf("/tmp/logs/BesDevice_%s", strings.ReplaceAll(c.BluetoothAddress, ":", "-"))
	}
	if c.Audio != nil {
		if c.Audio.PCMName == "" {
			return errorf("audio config is missing pcm_name")
		}
		if c.Audio.SampleRate == 0 {
			c.Audio.SampleRate = DefaultSampleRate
		}
		if c.Audio.SampleFormat == "" {
			c.Audio.SampleFormat = DefaultSampleFormat
		}
		if c.Audio.Channels == 0 {
			c.Audio.Channels = DefaultChannels
		}
	}
	return nil
}

// TWSConfig configures a pair of boards (plus optional case board) acting
// as one True Wireless Stereo device.
type TWSConfig struct {
	Controller ControllerType `yaml:"controller_type"`
	PrimaryEar EarType        `yaml:"primary_ear"`
	Left       DeviceConfig   `yaml:"left"`
	Right      DeviceConfig   `yaml:"right"`
	Case       *DeviceConfig  `yaml:"case"`
}

// Validate fills in defaults and checks required fields for the pair.
func (c *TWSConfig) Validate() error {
	switch c.Controller {
	case "":
		c.Controller = ControllerBes
	case ControllerBes:
	default:
		return errorf("unsupported controller type %q", c.Controller)
	}
	if c.PrimaryEar == "" {
		c.PrimaryEar = EarRight
	}
	if err := c.Left.Validate(); err != nil {
		return fmt.Errorf("left: %w", err)
	}
	if err := c.Right.Validate(); err != nil {
		return fmt.Errorf("right: %w", err)
	}
	if c.Case != nil {
		if err := c.Case.Validate(); err != nil {
			return fmt.Errorf("case: %w", err)
		}
	}
	return nil
}

// Testbed is the root of a testbed configuration file.
type Testbed struct {
	Name       string         `yaml:"name"`
	BesDevices []DeviceConfig `yaml:"bes_devices"`
	TWSDevices []TWSConfig    `yaml:"tws_devices"`
}

// Load reads and validates a testbed YAML file.
func Load(path string) (*Testbed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read testbed config: %w", err)
	}
	var tb Testbed
	if err := yaml.Unmarshal(data, &tb); err != nil {
		return nil, errorf("parse %s: %v", path, err)
	}
	for i := range tb.BesDevices {
		if err := tb.BesDevices[i].Validate(); err != nil {
			return nil, fmt.Errorf("bes_devices[%d]: %w", i, err)
		}
	}
	for i := range tb.TWSDevices {
		if err := tb.TWSDevices[i].Validate(); err != nil {
			return nil, fmt.Errorf("tws_devices[%d]: %w", i, err)
		}
	}
	return &tb, nil
}
