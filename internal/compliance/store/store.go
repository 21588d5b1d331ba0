// Package store persists compliance records. Stores are pure I/O: they never
// evaluate compliance and never read a clock. All three backends return
// sentinel errors for infrastructure facts so the service can translate them.
package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"devcompliance/internal/compliance/models"
	"devcompliance/pkg/platform/sentinel"
)

// ErrNotFound is returned when no record exists for a device.
var ErrNotFound = sentinel.ErrNotFound

// ErrAlreadyExists is returned by Create when a record is already present.
var ErrAlreadyExists = sentinel.ErrConflict

// ValidateFunc inspects the current record inside Execute's critical section.
// Returning an error aborts the mutation.
type ValidateFunc func(*models.ComplianceRecord) error

// MutateFunc changes the record in place inside Execute's critical section.
type MutateFunc func(*models.ComplianceRecord)

// ErrUnavailable marks failures to reach the backing store at all.
var ErrUnavailable = sentinel.ErrUnavailable

// ioErr annotates a backend I/O failure, tagging connection-level failures
// with ErrUnavailable.
func ioErr(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
