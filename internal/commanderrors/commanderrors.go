// Package commanderrors maps the domain and infrastructure error sentinels
// raised across the command core onto the wire error taxonomy of
// spec.md §7: a stable {code, httpStatus} pair per error.
package commanderrors

import (
	"errors"
	"net/http"

	"reservecore/internal/eventstore"
	"reservecore/internal/idempotency"
	"reservecore/internal/resource"
	"reservecore/internal/user"
)

// Mapped is the {code, httpStatus} pair a sentinel error resolves to.
type Mapped struct {
	Code       string
	HTTPStatus int
}

// INTERNAL_ERROR is the fallback for anything not in the taxonomy below.
var internalError = Mapped{Code: "INTERNAL_ERROR", HTTPStatus: http.StatusInternalServerError}

// entry pairs a sentinel with its mapping; order matters only in that more
// specific sentinels should be listed ahead of less specific ones, though
// none currently overlap via errors.Is.
type entry struct {
	err    error
	mapped Mapped
}

var table = []entry{
	{errInvalidRequest, Mapped{"INVALID_REQUEST", http.StatusBadRequest}},
	{idempotency.ErrMissingKey, Mapped{"MISSING_IDEMPOTENCY_KEY", http.StatusBadRequest}},
	{resource.ErrInvalidInterval, Mapped{"INVALID_INTERVAL", http.StatusBadRequest}},
	{resource.ErrReservationInPast, Mapped{"RESERVATION_IN_PAST", http.StatusBadRequest}},

	{user.ErrInvalidCredentials, Mapped{"INVALID_CREDENTIALS", http.StatusUnauthorized}},
	{errUnauthorized, Mapped{"UNAUTHORIZED", http.StatusUnauthorized}},

	{resource.ErrForbidden, Mapped{"FORBIDDEN", http.StatusForbidden}},
	{resource.ErrUnauthorizedCancel, Mapped{"UNAUTHORIZED_CANCEL", http.StatusForbidden}},
	{errBootstrapForbidden, Mapped{"BOOTSTRAP_FORBIDDEN", http.StatusForbidden}},

	{resource.ErrResourceNotFound, Mapped{"RESOURCE_NOT_FOUND", http.StatusNotFound}},
	{resource.ErrReservationNotFound, Mapped{"RESERVATION_NOT_FOUND", http.StatusNotFound}},
	{errUserNotFound, Mapped{"USER_NOT_FOUND", http.StatusNotFound}},

	{errResourceNameTaken, Mapped{"RESOURCE_NAME_TAKEN", http.StatusConflict}},
	{resource.ErrResourceAlreadyExists, Mapped{"RESOURCE_ALREADY_EXISTS", http.StatusConflict}},
	{user.ErrUserAlreadyExists, Mapped{"USER_ALREADY_EXISTS", http.StatusConflict}},
	{resource.ErrReservationOverlap, Mapped{"RESERVATION_OVERLAP", http.StatusConflict}},
	{eventstore.ErrVersionConflict, Mapped{"VERSION_CONFLICT", http.StatusConflict}},
	{resource.ErrReservationAlreadyCancelled, Mapped{"RESERVATION_ALREADY_CANCELLED", http.StatusConflict}},
	{idempotency.ErrHashMismatch, Mapped{"IDEMPOTENCY_HASH_MISMATCH", http.StatusConflict}},
	{idempotency.ErrInFlight, Mapped{"VERSION_CONFLICT", http.StatusConflict}},

	{streamGapSentinel, Mapped{"STREAM_GAP_DETECTED", http.StatusInternalServerError}},
}

// Errors not defined by their owning package but needed at this boundary:
// transport-layer concerns (request-schema validation, bearer-token
// authorization, bootstrap-key checks, name-uniqueness) that spec.md §1
// scopes out of the command core but whose error codes still belong in the
// one taxonomy table.
var (
	errInvalidRequest     = errors.New("INVALID_REQUEST")
	errUnauthorized       = errors.New("UNAUTHORIZED")
	errBootstrapForbidden = errors.New("BOOTSTRAP_FORBIDDEN")
	errUserNotFound       = errors.New("USER_NOT_FOUND")
	errResourceNameTaken  = errors.New("RESOURCE_NAME_TAKEN")
	streamGapSentinel     = &eventstore.StreamGapError{}
)

// ErrInvalidRequest, ErrUnauthorized, ErrBootstrapForbidden, ErrUserNotFound
// and ErrResourceNameTaken are exported so HTTP-boundary code (out of this
// core's scope, per spec.md §1) can raise them.
var (
	ErrInvalidRequest     = errInvalidRequest
	ErrUnauthorized       = errUnauthorized
	ErrBootstrapForbidden = errBootstrapForbidden
	ErrUserNotFound       = errUserNotFound
	ErrResourceNameTaken  = errResourceNameTaken
)

// Map resolves err to its {code, httpStatus} pair, falling back to
// INTERNAL_ERROR for anything unrecognized (spec.md §7's final row).
func Map(err error) Mapped {
	if err == nil {
		return Mapped{}
	}

	for _, e := range table {
		if errors.Is(err, e.err) {
			return e.mapped
		}
	}
	return internalError
}
