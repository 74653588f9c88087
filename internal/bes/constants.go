// Package bes drives a BES Bluetooth development board over its serial
// console. The board understands a line-oriented command protocol: each
// command is prefixed with a fixed marker, and the firmware answers
// with zero or more payload lines followed by a status line carrying a
// numeric error code.
package bes

import (
	"strings"
	"time"
)

// commandPrefix marks a console line as a harness command rather than
// ordinary firmware chatter.
const commandPrefix = "mobly_test:"

// Serial commands understood by the board firmware.
const (
	cmdReboot       = "reboot"
	cmdFactoryReset = "factory_reset"
	cmdDeviceInfo   = "get_device_info"
	cmdSerialNumber = "get_wlt_sn"
	cmdSetName      = "set_name"
	cmdSetAddress   = "set_address"
	cmdSetFPModelID = "set_model_id"
	cmdSetFPKey     = "set_gfps_private_key"
	cmdSetMultpoint = "set_link_point"

	// TWS preparation
	cmdSetTWSEnable = "set_link_tws"
	cmdSetComponent = "set_lea_csip"
	cmdTWSPairing   = "tws_pairing"
	cmdGetBoxState  = "get_box_state"
	cmdOpenBox      = "open_box"
	cmdFetchOut     = "fetch_out"
	cmdWearUp       = "wear_up"
	cmdWearDown     = "wear_down"
	cmdPutIn        = "put_in"
	cmdCloseBox     = "close_box"

	// Basic connection
	cmdEnablePairing  = "enable_pairing"
	cmdDisablePairing = "disable_pairing"
	cmdConnect        = "connect"
	cmdDisconnect     = "disconnect"
	cmdClearPaired    = "clear_paired_device"
	cmdGetPaired      = "get_paired_device"

	// Battery
	cmdSetBattery = "set_battery_level"
	cmdGetBattery = "get_battery_level"

	// Volume
	cmdVolumeUp   = "volume_plus"
	cmdVolumeDown = "volume_dec"
	cmdGetVolume  = "get_volume"
	cmdSetVolume  = "set_volume"

	// Media
	cmdMediaPlay  = "media_play"
	cmdMediaPause = "media_pause"
	cmdMediaNext  = "media_next"
	cmdMediaPrev  = "media_prev"

	// Call
	cmdCallAccept  = "call_accept"
	cmdCallDecline = "call_decline"
	cmdCallHold    = "call_hold"
	cmdCallRedial  = "call_redial"

	cmdSetANCMode      = "set_anc"
	cmdSetSpatialAudio = "set_spatial_audio"
)

// Timings of the command protocol. The settle interval gives the board
// time to drain its UART buffer between commands.
const (
	commandSettleInterval = 1 * time.Second
	commandTimeout        = 10 * time.Second
	rebootTimeout         = 30 * time.Second
	rebootSettleTime      = 3 * time.Second
)

// v1LatestBuildDate is the build date of the last v1 firmware. Builds
// newer than this are v2.
var v1LatestBuildDate = time.Date(2024, time.September, 21, 0, 0, 0, 0, time.UTC)

// AccessMode is the pairing access mode the firmware reports after a
// reboot cycle.
type AccessMode int

const (
	AccessInitPairing    AccessMode = 0
	AccessDisablePairing AccessMode = 2
	AccessEnablePairing  AccessMode = 3
)

// validLEAAddresses are the board addresses provisioned with LE Audio
// capable firmware.
var validLEAAddresses = map[string]bool{
	"11:11:22:33:33:81": true,
	"11:22:23:33:33:61": true,
	"11:22:23:33:33:51": true,
	"11:22:23:33:33:81": true,
	"11:22:23:33:55:51": true,
}

// validClassicAddresses are the board addresses provisioned with
// classic-only firmware.
var validClassicAddresses = map[string]bool{
	"11:11:22:33:33:51": true,
	"11:11:22:33:33:72": true,
	"11:11:22:33:aa:88": true,
	"11:22:23:31:31:39": true,
	"11:22:23:31:31:44": true,
	"11:22:23:31:31:48": true,
	"11:22:23:31:31:52": true,
	"11:22:23:31:31:56": true,
	"11:22:23:33:33:39": true,
	"11:22:23:33:33:44": true,
	"11:22:23:33:33:56": true,
	"11:22:23:33:33:66": true,
	"11:22:23:33:33:6b": true,
	"11:22:23:33:33:71": true,
	"11:22:23:33:33:76": true,
	"11:22:23:33:33:86": true,
	"11:22:23:33:33:87": true,
	"11:22:23:33:33:90": true,
	"11:22:23:33:33:91": true,
	"11:22:23:33:33:96": true,
	"11:22:23:33:33:a5": true,
	"17:19:24:68:35:82": true,
	"18:66:66:66:66:16": true,
	"19:85:12:01:33:81": true,
	"27:66:66:66:66:25": true,
	"41:81:52:96:63:e3": true,
	"58:66:66:66:66:56": true,
	"83:66:66:66:66:63": true,
	"84:66:66:66:66:64": true,
	"85:66:66:66:66:65": true,
	"86:66:66:66:66:aa": true,
	"87:66:66:66:66:67": true,
}

// IsProvisionedAddress reports whether addr belongs to the set of
// addresses the lab boards are provisioned with, classic or LE Audio.
func IsProvisionedAddress(addr string) bool {
	addr = strings.ToLower(addr)
	return validLEAAddresses[addr] || validClassicAddresses[addr]
}
