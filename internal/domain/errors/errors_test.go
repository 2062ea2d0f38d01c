package errors

import (
	"net/http"
	"testing"

	"huddle/internal/errors"

	"github.com/stretchr/testify/assert"
)

func TestBaseError_WithDetails_KeepsIdentity(t *testing.T) {
	err := ErrValidation.WithDetails("weights must sum to 1.0")

	assert.True(t, IsValidation(err))
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrConcurrencyConflict))
	assert.Equal(t, "input validation failed: weights must sum to 1.0", err.Error())
	assert.Equal(t, http.StatusBadRequest, err.HTTPCode())
}

func TestBaseError_WrapMessage(t *testing.T) {
	err := ErrConcurrencyConflict.WrapMessage("update request")

	assert.True(t, IsConflict(err))

	var appErr AppError
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CONCURRENCY_CONFLICT", appErr.ErrorCode())
}

func TestDatabaseExecuteError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewDatabaseExecuteError(cause, "insert request")

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, http.StatusInternalServerError, err.HTTPCode())
	assert.Equal(t, "insert request", err.Details())
}
