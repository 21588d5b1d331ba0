package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodedErrors(t *testing.T) {
	t.Run("new carries code and message", func(t *testing.T) {
		err := New(CodeNotFound, "compliance record not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
		assert.Equal(t, "compliance record not found", err.Error())
	})

	t.Run("wrap keeps cause reachable", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeInternal, "failed to load record")
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, CodeInternal, CodeOf(err))
		assert.Equal(t, "failed to load record: connection reset", err.Error())
	})

	t.Run("code survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("handler: %w", New(CodeConflict, "already initialized"))
		assert.True(t, Is(err, CodeConflict))
		assert.Equal(t, "already initialized", MessageOf(err))
	})

	t.Run("uncoded errors default to internal", func(t *testing.T) {
		err := errors.New("boom")
		assert.Equal(t, CodeInternal, CodeOf(err))
		assert.Empty(t, MessageOf(err))
		assert.False(t, HasCode(err, CodeInternal))
	})

	t.Run("inner codes are matched through outer coded errors", func(t *testing.T) {
		inner := New(CodeValidation, "timestamp out of range")
		err := fmt.Errorf("decode: %w", Wrap(inner, CodeBadRequest, "expires_at is invalid"))
		assert.True(t, HasCode(err, CodeBadRequest))
		assert.True(t, HasCode(err, CodeValidation))
		assert.False(t, HasCode(err, CodeNotFound))
		assert.Equal(t, CodeBadRequest, CodeOf(err))
	})
}
