package bes

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// All patterns for parsing board output live here so that changes to
// the firmware's log format touch a single file.
var (
	// responsePattern matches the status line that terminates every
	// command response. Payload lines printed before it are collected
	// by the correlator.
	responsePattern = regexp.MustCompile(`^(?P<status>\w+) \(error code (?P<code>\d+)\)\s*(?P<message>.*)$`)

	notSupportedPattern = regexp.MustCompile(`command not supported!`)
	rebootDonePattern   = regexp.MustCompile(`bt_stack_init_done`)
	buildDatePattern    = regexp.MustCompile(`BUILD_DATE=(?P<build_date>.*)`)
	versionPattern      = regexp.MustCompile(`REV_INFO=(?P<version>.*)`)

	deviceInfoPattern   = regexp.MustCompile(`(?P<key>.*): (?P<value>.*)`)
	volumePattern       = regexp.MustCompile(`volume=(?P<level>\d+)`)
	batteryPattern      = regexp.MustCompile(`battery_level: (?P<level>\d+)`)
	batteryTWSPattern   = regexp.MustCompile(`Main ear battery_level: (?P<left_level>\d+)\nRemote ear battery_level: (?P<right_level>\d+)(\nCase battery_level: (?P<case_level>\d+))?`)
	pairedDevicePattern = regexp.MustCompile(`addr: (?P<addr>.*)\n.*name: (?P<name>.*)`)
	lePairedPattern     = regexp.MustCompile(`BLE addr: (?P<addr>.*)`)
	boxStatePattern     = regexp.MustCompile(`box_state=(?P<state>.*)`)

	// anyLinePattern matches every console line. Used to detect that
	// the board is printing at all.
	anyLinePattern = regexp.MustCompile(``)
)

// accessModePattern builds the marker the firmware prints when it
// enters the given access mode after a reboot cycle.
func accessModePattern(mode AccessMode) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`Access mode changed to %d`, int(mode)))
}

// buildDateLayout parses the firmware build date after its whitespace
// is collapsed to underscores, e.g. "Sep_21_2024_10:30:00".
const buildDateLayout = "Jan_2_2006_15:04:05"

func parseBuildDate(raw string) (time.Time, error) {
	joined := strings.Join(strings.Fields(strings.TrimSpace(raw)), "_")
	t, err := time.Parse(buildDateLayout, joined)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: build date %q", ErrUnparseableResponse, raw)
	}
	return t, nil
}

func parseVolume(message string) (int, error) {
	m := volumePattern.FindStringSubmatch(message)
	if m == nil {
		return 0, fmt.Errorf("%w: volume from %q", ErrUnparseableResponse, message)
	}
	return strconv.Atoi(m[1])
}

func parseBatteryLevel(message string) (int, error) {
	m := batteryPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, fmt.Errorf("%w: battery level from %q", ErrUnparseableResponse, message)
	}
	return strconv.Atoi(m[1])
}

// TWSBatteryLevels is the battery report of a paired set of earbuds.
// Case is nil when the firmware does not report a case level.
type TWSBatteryLevels struct {
	Left  int
	Right int
	Case  *int
}

func parseTWSBatteryLevels(message string) (TWSBatteryLevels, error) {
	m := batteryTWSPattern.FindStringSubmatch(message)
	if m == nil {
		return TWSBatteryLevels{}, fmt.Errorf("%w: TWS battery levels from %q", ErrUnparseableResponse, message)
	}
	groups := namedGroups(batteryTWSPattern, m)
	left, err := strconv.Atoi(groups["left_level"])
	if err != nil {
		return TWSBatteryLevels{}, err
	}
	right, err := strconv.Atoi(groups["right_level"])
	if err != nil {
		return TWSBatteryLevels{}, err
	}
	if left < 0 || left > 100 || right < 0 || right > 100 {
		return TWSBatteryLevels{}, fmt.Errorf("%w: battery levels out of range in %q", ErrUnparseableResponse, message)
	}
	levels := TWSBatteryLevels{Left: left, Right: right}
	if c := groups["case_level"]; c != "" {
		caseLevel, err := strconv.Atoi(c)
		if err != nil {
			return TWSBatteryLevels{}, err
		}
		levels.Case = &caseLevel
	}
	return levels, nil
}

func parseBoxState(message string) (BoxState, error) {
	m := boxStatePattern.FindStringSubmatch(message)
	if m == nil {
		return "", fmt.Errorf("%w: box state from %q", ErrUnparseableResponse, message)
	}
	return ParseBoxState(strings.TrimSpace(m[1]))
}

// parseDeviceInfoPairs extracts all "key: value" pairs from a device
// info response.
func parseDeviceInfoPairs(message string) map[string]string {
	pairs := make(map[string]string)
	for _, line := range strings.Split(message, "\n") {
		m := deviceInfoPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		pairs[strings.TrimSpace(m[1])] = strings.TrimSpace(m[2])
	}
	return pairs
}

func namedGroups(re *regexp.Regexp, match []string) map[string]string {
	groups := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if name != "" && i < len(match) {
			groups[name] = match[i]
		}
	}
	return groups
}
