package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	t.Run("New creates error correctly", func(t *testing.T) {
		err := New(ErrorTypeValidation, "Invalid input", http.StatusBadRequest)

		assert.Equal(t, ErrorTypeValidation, err.Type)
		assert.Equal(t, "Invalid input", err.Message)
		assert.Equal(t, http.StatusBadRequest, err.HTTPStatus)
		assert.Equal(t, "VALIDATION_ERROR: Invalid input", err.Error())
	})

	t.Run("Wrap keeps the cause", func(t *testing.T) {
		err := WrapCancelled(context.DeadlineExceeded, "decode wait abandoned")

		assert.Equal(t, ErrorTypeCancelled, err.Type)
		assert.Equal(t, http.StatusRequestTimeout, err.HTTPStatus)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), "context deadline exceeded")
	})

	t.Run("WithDetail builds details", func(t *testing.T) {
		err := NewResourceExhaustedError("no frame").WithDetail("capacity", 4).WithCode("POOL_EXHAUSTED")

		assert.Equal(t, map[string]interface{}{"capacity": 4}, err.Details)
		assert.Equal(t, "POOL_EXHAUSTED", err.Code)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantType   ErrorType
		wantStatus int
	}{
		{"resource exhausted", NewResourceExhaustedError("x"), ErrorTypeResourceExhausted, http.StatusServiceUnavailable},
		{"format invalid", NewFormatInvalidError("x"), ErrorTypeFormatInvalid, http.StatusBadRequest},
		{"inconsistent release", NewInconsistentReleaseError("ReleaseFromDisplay", "displaying", "ready"), ErrorTypeInconsistentRelease, http.StatusConflict},
		{"validation", NewValidationError("x"), ErrorTypeValidation, http.StatusBadRequest},
		{"not found", NewNotFoundError("pool"), ErrorTypeNotFound, http.StatusNotFound},
		{"forbidden", NewForbiddenError("x"), ErrorTypeForbidden, http.StatusForbidden},
		{"internal", NewInternalError("x"), ErrorTypeInternal, http.StatusInternalServerError},
		{"service down", NewServiceDownError("redis"), ErrorTypeServiceDown, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus)
		})
	}
}

func TestInconsistentReleaseDetails(t *testing.T) {
	err := NewInconsistentReleaseError("ReleaseFromDisplayed", "displayed", "reference")

	assert.Equal(t, "ReleaseFromDisplayed: frame in reference, expected displayed", err.Message)
	assert.Equal(t, "displayed", err.Details["expected"])
	assert.Equal(t, "reference", err.Details["actual"])
}

func TestIsTypeFollowsWrapChain(t *testing.T) {
	base := NewResourceExhaustedError("no frame available within 10s")
	wrapped := fmt.Errorf("decode session s-1: %w", base)

	assert.True(t, IsType(wrapped, ErrorTypeResourceExhausted))
	assert.False(t, IsType(wrapped, ErrorTypeFormatInvalid))
	assert.True(t, IsAppError(wrapped))

	got, ok := GetAppError(wrapped)
	require.True(t, ok)
	assert.Same(t, base, got)

	assert.False(t, IsType(errors.New("plain"), ErrorTypeInternal))
	assert.False(t, IsType(nil, ErrorTypeInternal))
}
