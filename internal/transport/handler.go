// Package transport is the thin HTTP boundary around the command runner: it
// decodes the command envelope, consults the idempotency gate, dispatches to
// the user or resource runner, and maps domain errors onto the wire
// taxonomy. Request/response schema validation beyond this is out of scope
// (spec.md §1); callers get exactly the fields each command needs.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"reservecore/internal/commanderrors"
	"reservecore/internal/docstore"
	"reservecore/internal/idempotency"
	"reservecore/internal/projection"
	"reservecore/internal/readmodel"
	"reservecore/internal/resource"
	"reservecore/internal/runner"
	"reservecore/internal/user"
)

// Actor identifies the authenticated caller. Bearer-token verification
// itself is a boundary contract this core only consumes (spec.md §1); an
// upstream gateway is assumed to have already verified the token and to
// forward the resulting identity as these two headers.
type Actor struct {
	UserID uuid.UUID
	Role   resource.ActorRole
}

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerActorUserID    = "X-Actor-User-Id"
	headerActorRole      = "X-Actor-Role"
	headerAdminBootstrap = "X-Admin-Bootstrap-Key"
)

// envelope is the one request shape every command shares.
type envelope struct {
	Command struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	} `json:"command"`
}

// Handler dispatches command envelopes to the user and resource runners.
type Handler struct {
	userRunner     *runner.Runner[user.State, user.Command]
	resourceRunner *runner.Runner[resource.State, resource.Command]
	gate           *idempotency.Gate
	users          *readmodel.Users
	resources      *readmodel.Resources
	docs           docstore.Store
	hasher         user.PasswordHasher
	adminKey       string
	lagTable       string
}

// NewHandler builds a Handler wired against the runners, the idempotency
// gate and the advisory read-side lookups the command builders consult.
func NewHandler(
	userRunner *runner.Runner[user.State, user.Command],
	resourceRunner *runner.Runner[resource.State, resource.Command],
	gate *idempotency.Gate,
	users *readmodel.Users,
	resources *readmodel.Resources,
	hasher user.PasswordHasher,
	adminKey string,
) *Handler {
	return &Handler{
		userRunner:     userRunner,
		resourceRunner: resourceRunner,
		gate:           gate,
		users:          users,
		resources:      resources,
		hasher:         hasher,
		adminKey:       adminKey,
	}
}

// HandleCommands is the single POST /v1/commands entrypoint: every mutating
// command in the system flows through here, gated by idempotency.
func (h *Handler) HandleCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var env envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, commanderrors.ErrInvalidRequest)
		return
	}

	idempotencyKey := r.Header.Get(headerIdempotencyKey)
	if idempotencyKey == "" {
		writeError(w, idempotency.ErrMissingKey)
		return
	}

	actor, hasActor := actorFromHeaders(r)
	content := idempotency.Content{
		Path: env.Command.Type,
		Body: env.Command.Payload,
	}
	if hasActor {
		content.Actor = &idempotency.Actor{UserID: actor.UserID.String(), Role: string(actor.Role)}
	}

	result, err := h.gate.Execute(r.Context(), idempotencyKey, content, time.Now().UTC(), func(ctx context.Context) (int, json.RawMessage, error) {
		return h.dispatch(ctx, env.Command.Type, env.Command.Payload, r, actor)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if result.Replayed {
		w.Header().Set("X-Idempotent-Replay", "true")
	}
	w.WriteHeader(result.Status)
	w.Write(result.Body)
}

// HandleProjectionLag exposes the single lag row the projection worker
// maintains, in place of read-your-writes consistency (spec.md's Non-goals).
func (h *Handler) HandleProjectionLag(w http.ResponseWriter, r *http.Request) {
	if h.docs == nil {
		http.Error(w, "projection lag not configured", http.StatusNotImplemented)
		return
	}
	item, found, err := h.docs.Get(r.Context(), h.lagTable, projection.LagTableKey)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(item)
}

// WithLagReader attaches the document store backing HandleProjectionLag.
func (h *Handler) WithLagReader(docs docstore.Store, lagTable string) *Handler {
	h.docs = docs
	h.lagTable = lagTable
	return h
}

func actorFromHeaders(r *http.Request) (Actor, bool) {
	idStr := r.Header.Get(headerActorUserID)
	if idStr == "" {
		return Actor{}, false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return Actor{}, false
	}
	role := resource.ActorRole(r.Header.Get(headerActorRole))
	if role == "" {
		role = resource.ActorUser
	}
	return Actor{UserID: id, Role: role}, true
}

func writeError(w http.ResponseWriter, err error) {
	mapped := commanderrors.Map(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(mapped.HTTPStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":   mapped.Code,
			"reason": err.Error(),
		},
	})
}

var errUnknownCommand = errors.New("transport: unknown command type")
