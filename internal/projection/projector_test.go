package projection_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservecore/internal/eventstore"
	"reservecore/internal/projection"
	"reservecore/internal/resource"
	"reservecore/internal/user"
)

var testTables = projection.Tables{Users: "users_projection", Resources: "resources_projection", Reservations: "reservations_projection"}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestProject_UserRegistered_PutsUserRow(t *testing.T) {
	userID := uuid.New()
	occurredAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	evt := eventstore.RecordedEvent{
		StreamID:      userID,
		StreamType:    eventstore.StreamUser,
		Type:          user.EventUserRegistered,
		OccurredAtUtc: occurredAt,
		Payload: mustMarshal(t, user.UserRegisteredPayload{
			UserID: userID, Email: "a@test.com", PasswordHash: "hash", Role: user.RoleUser,
		}),
	}

	ops, err := projection.Project(evt, testTables)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, projection.OpPutUser, ops[0].Kind)
	assert.Equal(t, testTables.Users, ops[0].Table)
	assert.Equal(t, userID.String(), ops[0].Key)
	assert.Equal(t, "a@test.com", ops[0].Item["email"])
	assert.Equal(t, "user", ops[0].Item["role"])
}

func TestProject_UserLoggedIn_SetsLastLoginOnly(t *testing.T) {
	userID := uuid.New()
	evt := eventstore.RecordedEvent{
		StreamID:      userID,
		StreamType:    eventstore.StreamUser,
		Type:          user.EventUserLoggedIn,
		OccurredAtUtc: time.Unix(100, 0).UTC(),
		Payload:       mustMarshal(t, user.UserLoggedInPayload{UserID: userID}),
	}

	ops, err := projection.Project(evt, testTables)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, projection.OpSetUserLastLogin, ops[0].Kind)
	assert.Contains(t, ops[0].Attrs, "lastLoginAtUtc")
	assert.NotContains(t, ops[0].Attrs, "email")
}

func TestProject_ReservationAddedToResource_PutsActiveReservation(t *testing.T) {
	resourceID := uuid.New()
	reservationID := uuid.New()
	userID := uuid.New()
	from := time.Date(2026, 12, 1, 10, 0, 0, 0, time.UTC)
	to := time.Date(2026, 12, 1, 11, 0, 0, 0, time.UTC)

	evt := eventstore.RecordedEvent{
		StreamID:      resourceID,
		StreamType:    eventstore.StreamResource,
		Type:          resource.EventReservationAddedToResource,
		OccurredAtUtc: time.Unix(200, 0).UTC(),
		Payload: mustMarshal(t, resource.ReservationAddedPayload{
			ReservationID: reservationID, UserID: userID, FromUtc: from, ToUtc: to,
		}),
	}

	ops, err := projection.Project(evt, testTables)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, projection.OpPutReservation, ops[0].Kind)
	assert.Equal(t, reservationID.String(), ops[0].Key)
	assert.Equal(t, resource.ReservationActive, ops[0].Item["status"])
	assert.Nil(t, ops[0].Item["cancelledAtUtc"])
}

func TestProject_ResourceReservationCancelled_UpdatesStatusAndCancelledAt(t *testing.T) {
	reservationID := uuid.New()
	cancelledAt := time.Unix(300, 0).UTC()
	evt := eventstore.RecordedEvent{
		StreamID:      uuid.New(),
		StreamType:    eventstore.StreamResource,
		Type:          resource.EventResourceReservationCancelled,
		OccurredAtUtc: cancelledAt,
		Payload: mustMarshal(t, resource.ReservationCancelledPayload{
			ReservationID: reservationID, CancelledAt: cancelledAt,
		}),
	}

	ops, err := projection.Project(evt, testTables)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, projection.OpCancelReservation, ops[0].Kind)
	assert.Equal(t, resource.ReservationCancelled, ops[0].Attrs["status"])
}

func TestProject_UnrecognizedEventType_ProjectsToNoOps(t *testing.T) {
	evt := eventstore.RecordedEvent{Type: "ConcurrencyConflictUnresolved"}
	ops, err := projection.Project(evt, testTables)
	require.NoError(t, err)
	assert.Empty(t, ops)
}
