package commanderrors_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"reservecore/internal/commanderrors"
	"reservecore/internal/eventstore"
	"reservecore/internal/idempotency"
	"reservecore/internal/resource"
	"reservecore/internal/user"
)

func TestMap_KnownSentinels(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"invalid interval", resource.ErrInvalidInterval, "INVALID_INTERVAL", http.StatusBadRequest},
		{"reservation in past", resource.ErrReservationInPast, "RESERVATION_IN_PAST", http.StatusBadRequest},
		{"invalid credentials", user.ErrInvalidCredentials, "INVALID_CREDENTIALS", http.StatusUnauthorized},
		{"forbidden", resource.ErrForbidden, "FORBIDDEN", http.StatusForbidden},
		{"unauthorized cancel", resource.ErrUnauthorizedCancel, "UNAUTHORIZED_CANCEL", http.StatusForbidden},
		{"resource not found", resource.ErrResourceNotFound, "RESOURCE_NOT_FOUND", http.StatusNotFound},
		{"reservation not found", resource.ErrReservationNotFound, "RESERVATION_NOT_FOUND", http.StatusNotFound},
		{"resource already exists", resource.ErrResourceAlreadyExists, "RESOURCE_ALREADY_EXISTS", http.StatusConflict},
		{"user already exists", user.ErrUserAlreadyExists, "USER_ALREADY_EXISTS", http.StatusConflict},
		{"reservation overlap", resource.ErrReservationOverlap, "RESERVATION_OVERLAP", http.StatusConflict},
		{"version conflict", eventstore.ErrVersionConflict, "VERSION_CONFLICT", http.StatusConflict},
		{"already cancelled", resource.ErrReservationAlreadyCancelled, "RESERVATION_ALREADY_CANCELLED", http.StatusConflict},
		{"idempotency mismatch", idempotency.ErrHashMismatch, "IDEMPOTENCY_HASH_MISMATCH", http.StatusConflict},
		{"missing idempotency key", idempotency.ErrMissingKey, "MISSING_IDEMPOTENCY_KEY", http.StatusBadRequest},
		{"stream gap", &eventstore.StreamGapError{Expected: 2, Actual: 3}, "STREAM_GAP_DETECTED", http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := commanderrors.Map(tc.err)
			assert.Equal(t, tc.code, mapped.Code)
			assert.Equal(t, tc.status, mapped.HTTPStatus)
		})
	}
}

func TestMap_UnrecognizedError_FallsBackToInternalError(t *testing.T) {
	mapped := commanderrors.Map(assertNewError("something unmapped"))
	assert.Equal(t, "INTERNAL_ERROR", mapped.Code)
	assert.Equal(t, http.StatusInternalServerError, mapped.HTTPStatus)
}

func assertNewError(msg string) error {
	return &customError{msg}
}

type customError struct{ msg string }

func (e *customError) Error() string { return e.msg }
