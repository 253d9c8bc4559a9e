package resource

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Domain errors the decider returns; mapped to the error taxonomy of
// spec.md §7 at the command runner / HTTP boundary.
var (
	ErrForbidden                   = errors.New("FORBIDDEN")
	ErrResourceAlreadyExists       = errors.New("RESOURCE_ALREADY_EXISTS")
	ErrResourceNotFound            = errors.New("RESOURCE_NOT_FOUND")
	ErrInvalidInterval             = errors.New("INVALID_INTERVAL")
	ErrReservationInPast           = errors.New("RESERVATION_IN_PAST")
	ErrReservationOverlap          = errors.New("RESERVATION_OVERLAP")
	ErrReservationNotFound         = errors.New("RESERVATION_NOT_FOUND")
	ErrReservationAlreadyCancelled = errors.New("RESERVATION_ALREADY_CANCELLED")
	ErrUnauthorizedCancel          = errors.New("UNAUTHORIZED_CANCEL")
)

// Actor role, mirrored from the user aggregate's Role to keep this package
// decoupled from internal/user.
type ActorRole string

const (
	ActorAdmin ActorRole = "admin"
	ActorUser  ActorRole = "user"
)

// Command kinds accepted by the decider.
const (
	CmdCreateResource              = "CreateResource"
	CmdUpdateResourceMetadata      = "UpdateResourceMetadata"
	CmdCreateReservationInResource = "CreateReservationInResource"
	CmdCancelReservationInResource = "CancelReservationInResource"
)

// Command is a tagged union over the four resource commands; only the
// fields relevant to Kind are populated.
type Command struct {
	Kind        string
	ResourceID  uuid.UUID
	ActorUserID uuid.UUID
	ActorRole   ActorRole
	NowUtc      time.Time

	Name    string
	Details string

	ReservationID uuid.UUID
	FromUtc       time.Time
	ToUtc         time.Time
}

// Decision is the outcome of Decide: exactly one of Event/Err is set.
type Decision struct {
	EventType string
	Payload   json.RawMessage
	Err       error
}

// Decide evaluates cmd against state and returns the event to append or the
// rejection, in the exact validation order spec.md §4.2 requires:
// interval validity → not-in-the-past → overlap for reservation creation;
// not-found → not-already-cancelled → authorization for cancellation.
func Decide(state *State, cmd Command) Decision {
	switch cmd.Kind {
	case CmdCreateResource:
		if cmd.ActorRole != ActorAdmin {
			return Decision{Err: ErrForbidden}
		}
		if state != nil {
			return Decision{Err: ErrResourceAlreadyExists}
		}
		payload, _ := json.Marshal(ResourceCreatedPayload{
			ResourceID: cmd.ResourceID,
			Name:       cmd.Name,
			Details:    cmd.Details,
		})
		return Decision{EventType: EventResourceCreated, Payload: payload}

	case CmdUpdateResourceMetadata:
		if cmd.ActorRole != ActorAdmin {
			return Decision{Err: ErrForbidden}
		}
		if state == nil {
			return Decision{Err: ErrResourceNotFound}
		}
		payload, _ := json.Marshal(ResourceMetadataUpdatedPayload{
			Name:    cmd.Name,
			Details: cmd.Details,
		})
		return Decision{EventType: EventResourceMetadataUpdated, Payload: payload}

	case CmdCreateReservationInResource:
		if state == nil {
			return Decision{Err: ErrResourceNotFound}
		}
		if !cmd.FromUtc.Before(cmd.ToUtc) {
			return Decision{Err: ErrInvalidInterval}
		}
		if cmd.FromUtc.Before(cmd.NowUtc) {
			return Decision{Err: ErrReservationInPast}
		}
		for _, r := range state.Reservations {
			if r.Status != ReservationActive {
				continue
			}
			if cmd.FromUtc.Before(r.ToUtc) && r.FromUtc.Before(cmd.ToUtc) {
				return Decision{Err: ErrReservationOverlap}
			}
		}
		payload, _ := json.Marshal(ReservationAddedPayload{
			ReservationID: cmd.ReservationID,
			UserID:        cmd.ActorUserID,
			FromUtc:       cmd.FromUtc,
			ToUtc:         cmd.ToUtc,
			CreatedAtUtc:  cmd.NowUtc,
		})
		return Decision{EventType: EventReservationAddedToResource, Payload: payload}

	case CmdCancelReservationInResource:
		if state == nil {
			return Decision{Err: ErrResourceNotFound}
		}
		var found *Reservation
		for i := range state.Reservations {
			if state.Reservations[i].ReservationID == cmd.ReservationID {
				found = &state.Reservations[i]
				break
			}
		}
		if found == nil {
			return Decision{Err: ErrReservationNotFound}
		}
		if found.Status == ReservationCancelled {
			return Decision{Err: ErrReservationAlreadyCancelled}
		}
		if cmd.ActorRole != ActorAdmin && found.UserID != cmd.ActorUserID {
			return Decision{Err: ErrUnauthorizedCancel}
		}
		payload, _ := json.Marshal(ReservationCancelledPayload{
			ReservationID: cmd.ReservationID,
			CancelledAt:   cmd.NowUtc,
		})
		return Decision{EventType: EventResourceReservationCancelled, Payload: payload}

	default:
		return Decision{Err: errors.New("resource: unknown command kind " + cmd.Kind)}
	}
}

// Validate pre-flight-checks a command's shape without consulting state; like
// user.Validate, it is not part of the idempotency hash.
func Validate(cmd Command) error {
	switch cmd.Kind {
	case CmdCreateResource, CmdUpdateResourceMetadata:
		if cmd.Name == "" {
			return errors.New("resource: name is required")
		}
	case CmdCreateReservationInResource:
		if !cmd.FromUtc.Before(cmd.ToUtc) {
			return ErrInvalidInterval
		}
	case CmdCancelReservationInResource:
		if cmd.ReservationID == uuid.Nil {
			return errors.New("resource: reservationId is required")
		}
	default:
		return errors.New("resource: unknown command kind " + cmd.Kind)
	}
	return nil
}
