package domain

import (
	dErrors "devcompliance/pkg/domain-errors"
)

// MaxDeviceIDLength bounds device identifiers accepted at trust boundaries.
const MaxDeviceIDLength = 128

// DeviceID identifies a physical device under compliance tracking.
// The value is opaque to the registry: serial numbers, MAC addresses,
// UUIDs and plain integers are all valid as long as they use the
// identifier alphabet [A-Za-z0-9._:-].
type DeviceID string

// ParseDeviceID validates an identifier received from outside the process.
func ParseDeviceID(s string) (DeviceID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "device id is required")
	}
	if len(s) > MaxDeviceIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "device id must be 128 characters or less")
	}
	for i := 0; i < len(s); i++ {
		if !isDeviceIDByte(s[i]) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "device id contains invalid characters")
		}
	}
	return DeviceID(s), nil
}

func isDeviceIDByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == ':':
		return true
	}
	return false
}

func (d DeviceID) String() string {
	return string(d)
}

// IsNil reports whether the identifier is empty.
func (d DeviceID) IsNil() bool {
	return d == ""
}
