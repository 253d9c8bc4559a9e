package eventstore_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"reservecore/internal/eventstore"
	"reservecore/internal/eventstore/memobjectstore"
)

func newTestStore() *eventstore.Store {
	return eventstore.New(memobjectstore.New())
}

func mkEvent(streamID uuid.UUID, version int, typ string) eventstore.RecordedEvent {
	return eventstore.RecordedEvent{
		EventID:       uuid.Must(uuid.NewV7()),
		StreamID:      streamID,
		StreamType:    eventstore.StreamResource,
		Version:       version,
		Type:          typ,
		Payload:       json.RawMessage(`{}`),
		OccurredAtUtc: time.Now().UTC(),
	}
}

func TestAppendAndLoadStream_ReturnsContiguousVersions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	streamID := uuid.New()

	for v := 1; v <= 3; v++ {
		require.NoError(t, store.AppendEvent(ctx, mkEvent(streamID, v, "ResourceCreated"), v-1))
	}

	events, err := store.LoadStream(ctx, eventstore.StreamResource, streamID, 1)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		require.Equal(t, i+1, e.Version)
	}
}

func TestAppendEvent_WrongExpectedVersionConflicts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	streamID := uuid.New()

	require.NoError(t, store.AppendEvent(ctx, mkEvent(streamID, 1, "ResourceCreated"), 0))

	// A second writer racing for version 1 again must lose.
	err := store.AppendEvent(ctx, mkEvent(streamID, 1, "ResourceCreated"), 0)
	require.ErrorIs(t, err, eventstore.ErrVersionConflict)
}

func TestLoadStream_FromInclusiveSkipsEarlierVersions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	streamID := uuid.New()

	for v := 1; v <= 5; v++ {
		require.NoError(t, store.AppendEvent(ctx, mkEvent(streamID, v, "ResourceMetadataUpdated"), v-1))
	}

	events, err := store.LoadStream(ctx, eventstore.StreamResource, streamID, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, 3, events[0].Version)
	require.Equal(t, 5, events[2].Version)
}

func TestPutSnapshot_RoundTripsAndDoubleWriteIsNotAnError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	streamID := uuid.New()

	snap := eventstore.Snapshot{
		StreamType:       eventstore.StreamResource,
		StreamID:         streamID,
		SnapshotVersion:  2,
		LastEventVersion: 2,
		State:            json.RawMessage(`{"name":"Room A"}`),
		CreatedAtUtc:     time.Now().UTC(),
	}
	require.NoError(t, store.PutSnapshot(ctx, snap))
	// A second writer creating the exact same snapshot is not an error.
	require.NoError(t, store.PutSnapshot(ctx, snap))

	loaded, err := store.LoadLatestSnapshot(ctx, eventstore.StreamResource, streamID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, 2, loaded.SnapshotVersion)
	require.JSONEq(t, `{"name":"Room A"}`, string(loaded.State))
}

func TestLoadLatestSnapshot_NoneExistsReturnsNil(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	snap, err := store.LoadLatestSnapshot(ctx, eventstore.StreamResource, uuid.New())
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestLoadLatestSnapshot_PicksMaxVersion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	streamID := uuid.New()

	for _, v := range []int{2, 4, 3} {
		require.NoError(t, store.PutSnapshot(ctx, eventstore.Snapshot{
			StreamType:       eventstore.StreamResource,
			StreamID:         streamID,
			SnapshotVersion:  v,
			LastEventVersion: v,
			State:            json.RawMessage(`{}`),
			CreatedAtUtc:     time.Now().UTC(),
		}))
	}

	loaded, err := store.LoadLatestSnapshot(ctx, eventstore.StreamResource, streamID)
	require.NoError(t, err)
	require.Equal(t, 4, loaded.SnapshotVersion)
}
