// Package resource implements the pure resource-aggregate decider, covering
// resource metadata and the reservations it owns.
package resource

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status values for a resource.
const (
	StatusActive = "active"
)

// ReservationStatus values.
const (
	ReservationActive    = "active"
	ReservationCancelled = "cancelled"
)

// Reservation exists only inside the owning resource aggregate.
type Reservation struct {
	ReservationID uuid.UUID  `json:"reservationId"`
	UserID        uuid.UUID  `json:"userId"`
	FromUtc       time.Time  `json:"fromUtc"`
	ToUtc         time.Time  `json:"toUtc"`
	Status        string     `json:"status"`
	CreatedAtUtc  time.Time  `json:"createdAtUtc"`
	CancelledAt   *time.Time `json:"cancelledAtUtc,omitempty"`
}

// State is the folded resource aggregate. A nil *State means the stream has
// not been created yet.
type State struct {
	ResourceID   uuid.UUID     `json:"resourceId"`
	Name         string        `json:"name"`
	Details      string        `json:"details"`
	Status       string        `json:"status"`
	Reservations []Reservation `json:"reservations"`
}

// Event kinds the decider emits.
const (
	EventResourceCreated              = "ResourceCreated"
	EventResourceMetadataUpdated      = "ResourceMetadataUpdated"
	EventReservationAddedToResource   = "ReservationAddedToResource"
	EventResourceReservationCancelled = "ResourceReservationCancelled"
)

type ResourceCreatedPayload struct {
	ResourceID uuid.UUID `json:"resourceId"`
	Name       string    `json:"name"`
	Details    string    `json:"details"`
}

type ResourceMetadataUpdatedPayload struct {
	Name    string `json:"name"`
	Details string `json:"details"`
}

type ReservationAddedPayload struct {
	ReservationID uuid.UUID `json:"reservationId"`
	UserID        uuid.UUID `json:"userId"`
	FromUtc       time.Time `json:"fromUtc"`
	ToUtc         time.Time `json:"toUtc"`
	CreatedAtUtc  time.Time `json:"createdAtUtc"`
}

type ReservationCancelledPayload struct {
	ReservationID uuid.UUID `json:"reservationId"`
	CancelledAt   time.Time `json:"cancelledAtUtc"`
}

// Fold applies a single event onto state. Fold is total: unrecognized event
// types, including ConcurrencyConflictUnresolved telemetry events, are the
// identity.
func Fold(state *State, eventType string, payload json.RawMessage) (*State, error) {
	switch eventType {
	case EventResourceCreated:
		var p ResourceCreatedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return state, err
		}
		return &State{
			ResourceID: p.ResourceID,
			Name:       p.Name,
			Details:    p.Details,
			Status:     StatusActive,
		}, nil

	case EventResourceMetadataUpdated:
		if state == nil {
			return state, nil
		}
		var p ResourceMetadataUpdatedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return state, err
		}
		next := *state
		next.Name = p.Name
		next.Details = p.Details
		next.Reservations = append([]Reservation(nil), state.Reservations...)
		return &next, nil

	case EventReservationAddedToResource:
		if state == nil {
			return state, nil
		}
		var p ReservationAddedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return state, err
		}
		next := *state
		next.Reservations = append(append([]Reservation(nil), state.Reservations...), Reservation{
			ReservationID: p.ReservationID,
			UserID:        p.UserID,
			FromUtc:       p.FromUtc,
			ToUtc:         p.ToUtc,
			Status:        ReservationActive,
			CreatedAtUtc:  p.CreatedAtUtc,
		})
		return &next, nil

	case EventResourceReservationCancelled:
		if state == nil {
			return state, nil
		}
		var p ReservationCancelledPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return state, err
		}
		next := *state
		next.Reservations = append([]Reservation(nil), state.Reservations...)
		for i := range next.Reservations {
			if next.Reservations[i].ReservationID == p.ReservationID {
				cancelledAt := p.CancelledAt
				next.Reservations[i].Status = ReservationCancelled
				next.Reservations[i].CancelledAt = &cancelledAt
			}
		}
		return &next, nil

	default:
		return state, nil
	}
}
