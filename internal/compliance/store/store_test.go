package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIOErr(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{name: "network error", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, unavailable: true},
		{name: "bad driver connection", err: fmt.Errorf("query: %w", driver.ErrBadConn), unavailable: true},
		{name: "deadline", err: context.DeadlineExceeded, unavailable: true},
		{name: "constraint failure", err: errors.New("violates check constraint"), unavailable: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ioErr("find compliance record", tt.err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.unavailable, errors.Is(err, ErrUnavailable))
			assert.Contains(t, err.Error(), "find compliance record")
		})
	}
}
