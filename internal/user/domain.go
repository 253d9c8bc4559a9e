// Package user implements the pure user-aggregate decider: state × command
// → event | error, and the total fold event → state.
package user

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Role is the user's authority level.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// State is the folded user aggregate. A nil *State means the stream has not
// been created yet.
type State struct {
	UserID       uuid.UUID `json:"userId"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Role         Role      `json:"role"`
}

// Event kinds the decider emits.
const (
	EventAdminBootstrapped = "AdminBootstrapped"
	EventUserRegistered    = "UserRegistered"
	EventUserLoggedIn      = "UserLoggedIn"
)

// AdminBootstrappedPayload is the payload of an AdminBootstrapped event.
type AdminBootstrappedPayload struct {
	UserID       uuid.UUID `json:"userId"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
}

// UserRegisteredPayload is the payload of a UserRegistered event.
type UserRegisteredPayload struct {
	UserID       uuid.UUID `json:"userId"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Role         Role      `json:"role"`
}

// UserLoggedInPayload is the payload of a UserLoggedIn event. The fold for
// this event is the identity: logging in does not change state.
type UserLoggedInPayload struct {
	UserID uuid.UUID `json:"userId"`
}

// Fold applies a single event onto state, returning the new state. Fold is
// total: unrecognized event types are the identity.
func Fold(state *State, eventType string, payload json.RawMessage) (*State, error) {
	switch eventType {
	case EventAdminBootstrapped:
		var p AdminBootstrappedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return state, err
		}
		return &State{UserID: p.UserID, Email: p.Email, PasswordHash: p.PasswordHash, Role: RoleAdmin}, nil

	case EventUserRegistered:
		var p UserRegisteredPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return state, err
		}
		return &State{UserID: p.UserID, Email: p.Email, PasswordHash: p.PasswordHash, Role: p.Role}, nil

	case EventUserLoggedIn:
		return state, nil

	default:
		return state, nil
	}
}
