package user

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// Domain errors the decider returns; the command runner / HTTP boundary maps
// these to the error taxonomy of spec.md §7.
var (
	ErrUserAlreadyExists  = errors.New("USER_ALREADY_EXISTS")
	ErrInvalidCredentials = errors.New("INVALID_CREDENTIALS")
)

// Command kinds accepted by the decider.
const (
	CmdBootstrapAdmin = "BootstrapAdmin"
	CmdRegisterUser   = "RegisterUser"
	CmdLoginUser      = "LoginUser"
)

// Command is a tagged union over the three user commands; only the fields
// relevant to Kind are populated. PasswordHash is computed by the command
// builder's pluggable KDF; the decider never sees a plaintext password.
type Command struct {
	Kind         string
	UserID       uuid.UUID
	Email        string
	PasswordHash string
}

// Decision is the outcome of Decide: exactly one of Event/Err is set.
type Decision struct {
	EventType string
	Payload   json.RawMessage
	Err       error
}

// Decide evaluates cmd against state and returns the event to append or the
// rejection. Decide never performs I/O.
func Decide(state *State, cmd Command) Decision {
	switch cmd.Kind {
	case CmdBootstrapAdmin:
		if state != nil {
			return Decision{Err: ErrUserAlreadyExists}
		}
		payload, _ := json.Marshal(AdminBootstrappedPayload{
			UserID:       cmd.UserID,
			Email:        cmd.Email,
			PasswordHash: cmd.PasswordHash,
		})
		return Decision{EventType: EventAdminBootstrapped, Payload: payload}

	case CmdRegisterUser:
		if state != nil {
			return Decision{Err: ErrUserAlreadyExists}
		}
		payload, _ := json.Marshal(UserRegisteredPayload{
			UserID:       cmd.UserID,
			Email:        cmd.Email,
			PasswordHash: cmd.PasswordHash,
			Role:         RoleUser,
		})
		return Decision{EventType: EventUserRegistered, Payload: payload}

	case CmdLoginUser:
		if state == nil || state.Email != cmd.Email {
			return Decision{Err: ErrInvalidCredentials}
		}
		payload, _ := json.Marshal(UserLoggedInPayload{UserID: state.UserID})
		return Decision{EventType: EventUserLoggedIn, Payload: payload}

	default:
		return Decision{Err: errors.New("user: unknown command kind " + cmd.Kind)}
	}
}

// Validate pre-flight-checks a command's shape without consulting state.
// The idempotency gate does not call it: it hashes the command payload as
// sent (see idempotency.ContentHash).
func Validate(cmd Command) error {
	switch cmd.Kind {
	case CmdBootstrapAdmin, CmdRegisterUser:
		if cmd.Email == "" {
			return errors.New("user: email is required")
		}
		if cmd.PasswordHash == "" {
			return errors.New("user: password hash is required")
		}
	case CmdLoginUser:
		if cmd.Email == "" {
			return errors.New("user: email is required")
		}
	default:
		return errors.New("user: unknown command kind " + cmd.Kind)
	}
	return nil
}
