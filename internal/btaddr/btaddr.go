// Package btaddr handles Bluetooth device address formats used by the
// BES board firmware.
package btaddr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var addressPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)

// IsValid reports whether addr is a colon-separated Bluetooth MAC address.
func IsValid(addr string) bool {
	return addressPattern.MatchString(addr)
}

// Canonical returns the conventional upper-case form of addr.
func Canonical(addr string) string {
	return strings.ToUpper(addr)
}

// Strip returns addr without colons, upper-cased. The board's connect and
// disconnect commands take addresses in this form.
func Strip(addr string) string {
	return strings.ToUpper(strings.ReplaceAll(addr, ":", ""))
}

// FromLSB converts an address as printed by the board (least significant
// byte first, space or colon separated hex bytes) to the conventional
// big-endian colon-separated form.
func FromLSB(raw string) (string, error) {
	fields := strings.FieldsFunc(strings.TrimSpace(raw), func(r rune) bool {
		return r == ' ' || r == ':'
	})
	if len(fields) != 6 {
		return "", fmt.Errorf("malformed on-wire address %q", raw)
	}
	out := make([]string, 6)
	for i, f := range fields {
		if _, err := strconv.ParseUint(f, 16, 8); err != nil {
			return "", fmt.Errorf("malformed on-wire address %q: %w", raw, err)
		}
		out[5-i] = strings.ToUpper(f)
	}
	return strings.Join(out, ":"), nil
}

// DecrementLowByte returns addr with its least significant byte decreased by
// one. A TWS pair derives the secondary earbud address from the primary
// address this way.
func DecrementLowByte(addr string) (string, error) {
	if !IsValid(addr) {
		return "", fmt.Errorf("invalid Bluetooth address %q", addr)
	}
	low, err := strconv.ParseUint(addr[len(addr)-2:], 16, 8)
	if err != nil {
		return "", fmt.Errorf("invalid Bluetooth address %q: %w", addr, err)
	}
	if low == 0 {
		return "", fmt.Errorf("cannot derive secondary address from %q: low byte is zero", addr)
	}
	return fmt.Sprintf("%s%02x", addr[:len(addr)-2], low-1), nil
}
