package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "devcompliance/pkg/domain-errors"
)

// TestParseDeviceID_Invariants validates the parsing invariant:
// "device IDs are non-empty, bounded, and drawn from the identifier alphabet"
func TestParseDeviceID_Invariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Attack vectors
		{"SQL injection attempt", "'; DROP TABLE compliance_records;--", true},
		{"Path traversal", "../../etc/passwd", true},
		{"Null byte injection", "sensor\x00-01", true},
		{"Oversized input", strings.Repeat("a", MaxDeviceIDLength+1), true},
		{"Unicode zero-width space", "sensor\u200B01", true},
		{"Redis key separator abuse", "dev ice", true},

		// Edge cases
		{"Empty string", "", true},
		{"Whitespace only", "   ", true},
		{"Max length", strings.Repeat("a", MaxDeviceIDLength), false},

		// Valid
		{"Numeric", "1", false},
		{"Serial number", "INF-PUMP_2024.0042", false},
		{"MAC address", "00:1B:44:11:3A:B7", false},
		{"UUID", uuid.NewString(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseDeviceID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				assert.True(t, id.IsNil())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, id.String())
		})
	}
}

// TestDeviceID_UsableAsMapKey documents that equal inputs produce equal keys.
func TestDeviceID_UsableAsMapKey(t *testing.T) {
	a, err := ParseDeviceID("pump-7")
	require.NoError(t, err)
	b, err := ParseDeviceID("pump-7")
	require.NoError(t, err)

	seen := map[DeviceID]int{a: 1}
	seen[b]++
	assert.Len(t, seen, 1)
	assert.Equal(t, 2, seen[a])
}
