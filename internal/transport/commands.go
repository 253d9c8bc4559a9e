package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"reservecore/internal/commanderrors"
	"reservecore/internal/resource"
	"reservecore/internal/user"
)

// dispatch runs the named command to completion (including its read-side
// pre-checks and its append) and returns the HTTP status/body pair the
// idempotency gate should record.
func (h *Handler) dispatch(ctx context.Context, cmdType string, payload json.RawMessage, r *http.Request, actor Actor) (int, json.RawMessage, error) {
	switch cmdType {
	case user.CmdBootstrapAdmin:
		return h.bootstrapAdmin(ctx, payload, r)
	case user.CmdRegisterUser:
		return h.registerUser(ctx, payload)
	case user.CmdLoginUser:
		return h.loginUser(ctx, payload)
	case resource.CmdCreateResource:
		return h.createResource(ctx, payload, actor)
	case resource.CmdUpdateResourceMetadata:
		return h.updateResourceMetadata(ctx, payload, actor)
	case resource.CmdCreateReservationInResource:
		return h.createReservation(ctx, payload, actor)
	case resource.CmdCancelReservationInResource:
		return h.cancelReservation(ctx, payload, actor)
	default:
		return 0, nil, errUnknownCommand
	}
}

type bootstrapAdminRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) bootstrapAdmin(ctx context.Context, payload json.RawMessage, r *http.Request) (int, json.RawMessage, error) {
	if h.adminKey == "" || r.Header.Get(headerAdminBootstrap) != h.adminKey {
		return 0, nil, commanderrors.ErrBootstrapForbidden
	}
	var req bootstrapAdminRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return 0, nil, commanderrors.ErrInvalidRequest
	}

	userID := uuid.New()
	_, err := h.userRunner.Execute(ctx, userID, user.CmdBootstrapAdmin, userID,
		func(_ context.Context, _ *user.State) (user.Command, error) {
			hash, err := h.hasher.HashPassword(req.Password)
			if err != nil {
				return user.Command{}, err
			}
			return user.Command{Kind: user.CmdBootstrapAdmin, UserID: userID, Email: req.Email, PasswordHash: hash}, nil
		})
	if err != nil {
		return 0, nil, err
	}

	body, _ := json.Marshal(map[string]any{"userId": userID, "role": user.RoleAdmin})
	return http.StatusCreated, body, nil
}

type registerUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) registerUser(ctx context.Context, payload json.RawMessage) (int, json.RawMessage, error) {
	var req registerUserRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return 0, nil, commanderrors.ErrInvalidRequest
	}

	if exists, err := h.users.EmailExists(ctx, req.Email); err != nil {
		return 0, nil, err
	} else if exists {
		return 0, nil, user.ErrUserAlreadyExists
	}

	userID := uuid.New()
	_, err := h.userRunner.Execute(ctx, userID, user.CmdRegisterUser, userID,
		func(_ context.Context, _ *user.State) (user.Command, error) {
			hash, err := h.hasher.HashPassword(req.Password)
			if err != nil {
				return user.Command{}, err
			}
			return user.Command{Kind: user.CmdRegisterUser, UserID: userID, Email: req.Email, PasswordHash: hash}, nil
		})
	if err != nil {
		return 0, nil, err
	}

	body, _ := json.Marshal(map[string]any{"userId": userID, "role": user.RoleUser})
	return http.StatusCreated, body, nil
}

type loginUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) loginUser(ctx context.Context, payload json.RawMessage) (int, json.RawMessage, error) {
	var req loginUserRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return 0, nil, commanderrors.ErrInvalidRequest
	}

	userID, found, err := h.users.FindIDByEmail(ctx, req.Email)
	if err != nil {
		return 0, nil, err
	}
	if !found {
		return 0, nil, user.ErrInvalidCredentials
	}

	_, err = h.userRunner.Execute(ctx, userID, user.CmdLoginUser, userID,
		func(_ context.Context, state *user.State) (user.Command, error) {
			if state == nil {
				return user.Command{}, user.ErrInvalidCredentials
			}
			ok, err := h.hasher.VerifyPassword(req.Password, state.PasswordHash)
			if err != nil {
				return user.Command{}, err
			}
			if !ok {
				return user.Command{}, user.ErrInvalidCredentials
			}
			return user.Command{Kind: user.CmdLoginUser, UserID: userID, Email: req.Email}, nil
		})
	if err != nil {
		return 0, nil, err
	}

	// Token issuance is a boundary contract this core only consumes
	// (spec.md §1); the response carries the authenticated identity, and an
	// upstream gateway mints the bearer token from it.
	body, _ := json.Marshal(map[string]any{"userId": userID})
	return http.StatusOK, body, nil
}

type createResourceRequest struct {
	Name    string `json:"name"`
	Details string `json:"details"`
}

func (h *Handler) createResource(ctx context.Context, payload json.RawMessage, actor Actor) (int, json.RawMessage, error) {
	var req createResourceRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return 0, nil, commanderrors.ErrInvalidRequest
	}

	if taken, err := h.resources.NameExists(ctx, req.Name); err != nil {
		return 0, nil, err
	} else if taken {
		return 0, nil, commanderrors.ErrResourceNameTaken
	}

	resourceID := uuid.New()
	_, err := h.resourceRunner.Execute(ctx, resourceID, resource.CmdCreateResource, actor.UserID,
		func(_ context.Context, _ *resource.State) (resource.Command, error) {
			return resource.Command{
				Kind: resource.CmdCreateResource, ResourceID: resourceID,
				ActorUserID: actor.UserID, ActorRole: actor.Role,
				Name: req.Name, Details: req.Details,
			}, nil
		})
	if err != nil {
		return 0, nil, err
	}

	body, _ := json.Marshal(map[string]any{"resourceId": resourceID})
	return http.StatusCreated, body, nil
}

type updateResourceMetadataRequest struct {
	ResourceID uuid.UUID `json:"resourceId"`
	Name       string    `json:"name"`
	Details    string    `json:"details"`
}

func (h *Handler) updateResourceMetadata(ctx context.Context, payload json.RawMessage, actor Actor) (int, json.RawMessage, error) {
	var req updateResourceMetadataRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return 0, nil, commanderrors.ErrInvalidRequest
	}

	_, err := h.resourceRunner.Execute(ctx, req.ResourceID, resource.CmdUpdateResourceMetadata, actor.UserID,
		func(_ context.Context, _ *resource.State) (resource.Command, error) {
			return resource.Command{
				Kind: resource.CmdUpdateResourceMetadata, ResourceID: req.ResourceID,
				ActorUserID: actor.UserID, ActorRole: actor.Role,
				Name: req.Name, Details: req.Details,
			}, nil
		})
	if err != nil {
		return 0, nil, err
	}

	body, _ := json.Marshal(map[string]any{"resourceId": req.ResourceID})
	return http.StatusOK, body, nil
}

type createReservationRequest struct {
	ResourceID uuid.UUID `json:"resourceId"`
	FromUtc    time.Time `json:"fromUtc"`
	ToUtc      time.Time `json:"toUtc"`
}

func (h *Handler) createReservation(ctx context.Context, payload json.RawMessage, actor Actor) (int, json.RawMessage, error) {
	var req createReservationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return 0, nil, commanderrors.ErrInvalidRequest
	}

	if exists, err := h.resources.Exists(ctx, req.ResourceID); err != nil {
		return 0, nil, err
	} else if !exists {
		return 0, nil, resource.ErrResourceNotFound
	}

	reservationID := uuid.New()
	_, err := h.resourceRunner.Execute(ctx, req.ResourceID, resource.CmdCreateReservationInResource, actor.UserID,
		func(_ context.Context, _ *resource.State) (resource.Command, error) {
			return resource.Command{
				Kind: resource.CmdCreateReservationInResource, ResourceID: req.ResourceID,
				ActorUserID: actor.UserID, ActorRole: actor.Role,
				ReservationID: reservationID, FromUtc: req.FromUtc, ToUtc: req.ToUtc,
				NowUtc: time.Now().UTC(),
			}, nil
		})
	if err != nil {
		return 0, nil, err
	}

	body, _ := json.Marshal(map[string]any{"resourceId": req.ResourceID, "reservationId": reservationID})
	return http.StatusCreated, body, nil
}

type cancelReservationRequest struct {
	ResourceID    uuid.UUID `json:"resourceId"`
	ReservationID uuid.UUID `json:"reservationId"`
}

func (h *Handler) cancelReservation(ctx context.Context, payload json.RawMessage, actor Actor) (int, json.RawMessage, error) {
	var req cancelReservationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return 0, nil, commanderrors.ErrInvalidRequest
	}

	_, err := h.resourceRunner.Execute(ctx, req.ResourceID, resource.CmdCancelReservationInResource, actor.UserID,
		func(_ context.Context, _ *resource.State) (resource.Command, error) {
			return resource.Command{
				Kind: resource.CmdCancelReservationInResource, ResourceID: req.ResourceID,
				ActorUserID: actor.UserID, ActorRole: actor.Role,
				ReservationID: req.ReservationID, NowUtc: time.Now().UTC(),
			}, nil
		})
	if err != nil {
		return 0, nil, err
	}

	body, _ := json.Marshal(map[string]any{"resourceId": req.ResourceID, "reservationId": req.ReservationID})
	return http.StatusOK, body, nil
}
