// Package bleuuid normalizes and validates BLE UUID strings.
//
// The go-ble library renders UUIDs lowercase without dashes; user input may
// arrive dashed, 0x-prefixed, or as a full 128-bit Bluetooth SIG base UUID.
// All lookups in this repo go through NormalizeUUID so that every comparison
// is a plain string equality.
package bleuuid

import (
	"fmt"
	"strings"
)

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// (0000xxxx-0000-1000-8000-00805f9b34fb) after normalization.
const sigBaseSuffix = "00001000800000805f9b34fb"

// Normalize converts a UUID string to the internal format used by go-ble:
// lowercase, no dashes, no 0x prefix. Full 128-bit UUIDs in the Bluetooth
// SIG base range collapse to their 16-bit short form ("0000180d-..." ->
// "180d"). Returns "" for input that cannot be a UUID.
func Normalize(uuid string) string {
	s := strings.ToLower(strings.TrimSpace(uuid))
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return ""
		}
	}

	switch len(s) {
	case 4, 8:
		return s
	case 32:
		if strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
			return s[4:8]
		}
		return s
	default:
		return ""
	}
}

// NormalizeAll normalizes a slice of UUID strings. Invalid entries come back
// as empty strings; use Validate when errors matter.
func NormalizeAll(uuids []string) []string {
	out := make([]string, len(uuids))
	for i, u := range uuids {
		out[i] = Normalize(u)
	}
	return out
}

// Shorten returns a truncated version of a UUID for display purposes:
// the first eight characters for long UUIDs, short UUIDs unchanged.
func Shorten(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}

// Validate normalizes one or more UUIDs, failing on the first empty or
// malformed entry.
func Validate(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, uuid := range uuids {
		if uuid == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		normalized := Normalize(uuid)
		if normalized == "" {
			return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, uuid)
		}
		result = append(result, normalized)
	}
	return result, nil
}
