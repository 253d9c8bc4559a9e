// Package projection maps recorded events onto idempotent document-store
// operations against the query-side tables, and drains the queue that
// delivers them (spec.md §4.5, §4.6).
package projection

import (
	"encoding/json"
	"fmt"

	"reservecore/internal/eventstore"
	"reservecore/internal/resource"
	"reservecore/internal/user"
)

// OpKind identifies what an Op does to the document store.
type OpKind string

const (
	OpPutUser               OpKind = "PutUser"
	OpSetUserLastLogin      OpKind = "SetUserLastLogin"
	OpPutResource           OpKind = "PutResource"
	OpUpdateResourceDetails OpKind = "UpdateResourceDetails"
	OpPutReservation        OpKind = "PutReservation"
	OpCancelReservation     OpKind = "CancelReservation"
)

// Op is one projection operation: either a full-item Put (overwrite) or a
// partial Update (attribute merge), both idempotent under re-delivery.
type Op struct {
	Kind  OpKind
	Table string
	Key   string
	Item  map[string]any // set for Put-kind ops
	Attrs map[string]any // set for Update-kind ops
}

// Tables names the three projection tables an Op may target.
type Tables struct {
	Users        string
	Resources    string
	Reservations string
}

// Project maps one recorded event to the ordered list of ops that apply it,
// per the table in spec.md §4.6. Unrecognized event types (including the
// ConcurrencyConflictUnresolved telemetry event) project to no ops.
func Project(evt eventstore.RecordedEvent, tables Tables) ([]Op, error) {
	switch evt.Type {
	case user.EventAdminBootstrapped:
		var p user.AdminBootstrappedPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return nil, fmt.Errorf("projection: decode %s: %w", evt.Type, err)
		}
		return []Op{{
			Kind:  OpPutUser,
			Table: tables.Users,
			Key:   p.UserID.String(),
			Item: map[string]any{
				"userId":       p.UserID.String(),
				"email":        p.Email,
				"role":         string(user.RoleAdmin),
				"createdAtUtc": evt.OccurredAtUtc,
				"updatedAtUtc": evt.OccurredAtUtc,
			},
		}}, nil

	case user.EventUserRegistered:
		var p user.UserRegisteredPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return nil, fmt.Errorf("projection: decode %s: %w", evt.Type, err)
		}
		return []Op{{
			Kind:  OpPutUser,
			Table: tables.Users,
			Key:   p.UserID.String(),
			Item: map[string]any{
				"userId":       p.UserID.String(),
				"email":        p.Email,
				"role":         string(p.Role),
				"createdAtUtc": evt.OccurredAtUtc,
				"updatedAtUtc": evt.OccurredAtUtc,
			},
		}}, nil

	case user.EventUserLoggedIn:
		var p user.UserLoggedInPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return nil, fmt.Errorf("projection: decode %s: %w", evt.Type, err)
		}
		return []Op{{
			Kind:  OpSetUserLastLogin,
			Table: tables.Users,
			Key:   p.UserID.String(),
			Attrs: map[string]any{
				"lastLoginAtUtc": evt.OccurredAtUtc,
			},
		}}, nil

	case resource.EventResourceCreated:
		var p resource.ResourceCreatedPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return nil, fmt.Errorf("projection: decode %s: %w", evt.Type, err)
		}
		return []Op{{
			Kind:  OpPutResource,
			Table: tables.Resources,
			Key:   p.ResourceID.String(),
			Item: map[string]any{
				"resourceId":   p.ResourceID.String(),
				"name":         p.Name,
				"details":      p.Details,
				"status":       resource.StatusActive,
				"createdAtUtc": evt.OccurredAtUtc,
				"updatedAtUtc": evt.OccurredAtUtc,
			},
		}}, nil

	case resource.EventResourceMetadataUpdated:
		var p resource.ResourceMetadataUpdatedPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return nil, fmt.Errorf("projection: decode %s: %w", evt.Type, err)
		}
		return []Op{{
			Kind:  OpUpdateResourceDetails,
			Table: tables.Resources,
			Key:   evt.StreamID.String(),
			Attrs: map[string]any{
				"name":         p.Name,
				"details":      p.Details,
				"updatedAtUtc": evt.OccurredAtUtc,
			},
		}}, nil

	case resource.EventReservationAddedToResource:
		var p resource.ReservationAddedPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return nil, fmt.Errorf("projection: decode %s: %w", evt.Type, err)
		}
		return []Op{{
			Kind:  OpPutReservation,
			Table: tables.Reservations,
			Key:   p.ReservationID.String(),
			Item: map[string]any{
				"reservationId": p.ReservationID.String(),
				"resourceId":    evt.StreamID.String(),
				"userId":        p.UserID.String(),
				"fromUtc":       p.FromUtc,
				"toUtc":         p.ToUtc,
				"status":        resource.ReservationActive,
				"createdAtUtc":  evt.OccurredAtUtc,
				"cancelledAtUtc": nil,
			},
		}}, nil

	case resource.EventResourceReservationCancelled:
		var p resource.ReservationCancelledPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return nil, fmt.Errorf("projection: decode %s: %w", evt.Type, err)
		}
		return []Op{{
			Kind:  OpCancelReservation,
			Table: tables.Reservations,
			Key:   p.ReservationID.String(),
			Attrs: map[string]any{
				"status":         resource.ReservationCancelled,
				"cancelledAtUtc": p.CancelledAt,
			},
		}}, nil

	default:
		return nil, nil
	}
}
