package runner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservecore/internal/eventstore"
	"reservecore/internal/eventstore/memobjectstore"
	"reservecore/internal/queue/memqueue"
	"reservecore/internal/resource"
	"reservecore/internal/runner"
)

func decideResource(state *resource.State, cmd resource.Command) runner.Decision {
	d := resource.Decide(state, cmd)
	return runner.Decision{EventType: d.EventType, Payload: d.Payload, Err: d.Err}
}

func newResourceRunner(t *testing.T, cfg runner.Config) (*runner.Runner[resource.State, resource.Command], *eventstore.Store, *memqueue.Queue) {
	t.Helper()
	store := eventstore.New(memobjectstore.New())
	q := memqueue.New()
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	}
	return runner.New[resource.State, resource.Command](store, q, resource.Fold, decideResource, cfg), store, q
}

func TestExecute_CreateResource_AppendsEventAndPublishes(t *testing.T) {
	cfg := runner.NewConfig(eventstore.StreamResource, 0, 1, false)
	r, _, q := newResourceRunner(t, cfg)

	resourceID := uuid.New()
	actor := uuid.New()

	build := func(_ context.Context, _ *resource.State) (resource.Command, error) {
		return resource.Command{
			Kind:        resource.CmdCreateResource,
			ResourceID:  resourceID,
			ActorUserID: actor,
			ActorRole:   resource.ActorAdmin,
			Name:        "SalaA",
			Details:     "Piso 1",
		}, nil
	}

	evt, err := r.Execute(context.Background(), resourceID, resource.CmdCreateResource, actor, build)
	require.NoError(t, err)
	assert.Equal(t, 1, evt.Version)
	assert.Equal(t, resource.EventResourceCreated, evt.Type)

	msgs, err := q.Receive(context.Background(), 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestExecute_RejectedDecision_ReturnsDomainErrorWithoutAppending(t *testing.T) {
	cfg := runner.NewConfig(eventstore.StreamResource, 0, 1, false)
	r, store, _ := newResourceRunner(t, cfg)

	resourceID := uuid.New()
	actor := uuid.New()

	build := func(_ context.Context, _ *resource.State) (resource.Command, error) {
		return resource.Command{Kind: resource.CmdCreateResource, ResourceID: resourceID, ActorUserID: actor, ActorRole: resource.ActorUser, Name: "SalaA"}, nil
	}

	_, err := r.Execute(context.Background(), resourceID, resource.CmdCreateResource, actor, build)
	assert.ErrorIs(t, err, resource.ErrForbidden)

	events, err := store.LoadStream(context.Background(), eventstore.StreamResource, resourceID, 1)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestExecute_SnapshotFiresAtThreshold(t *testing.T) {
	cfg := runner.NewConfig(eventstore.StreamResource, 2, 1, false)
	r, store, _ := newResourceRunner(t, cfg)

	resourceID := uuid.New()
	actor := uuid.New()

	create := func(_ context.Context, _ *resource.State) (resource.Command, error) {
		return resource.Command{Kind: resource.CmdCreateResource, ResourceID: resourceID, ActorUserID: actor, ActorRole: resource.ActorAdmin, Name: "SalaA", Details: "Piso 1"}, nil
	}
	_, err := r.Execute(context.Background(), resourceID, resource.CmdCreateResource, actor, create)
	require.NoError(t, err)

	update := func(_ context.Context, _ *resource.State) (resource.Command, error) {
		return resource.Command{Kind: resource.CmdUpdateResourceMetadata, ResourceID: resourceID, ActorUserID: actor, ActorRole: resource.ActorAdmin, Name: "SalaB", Details: "Piso 2"}, nil
	}
	_, err = r.Execute(context.Background(), resourceID, resource.CmdUpdateResourceMetadata, actor, update)
	require.NoError(t, err)

	snap, err := store.LoadLatestSnapshot(context.Background(), eventstore.StreamResource, resourceID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.SnapshotVersion)
	assert.Equal(t, 2, snap.LastEventVersion)
}

func TestExecute_ConcurrentWriters_EachSucceedsOrReportsVersionConflict(t *testing.T) {
	cfg := runner.NewConfig(eventstore.StreamResource, 0, 1, false)
	r, _, _ := newResourceRunner(t, cfg)

	resourceID := uuid.New()
	actor := uuid.New()
	create := func(_ context.Context, _ *resource.State) (resource.Command, error) {
		return resource.Command{Kind: resource.CmdCreateResource, ResourceID: resourceID, ActorUserID: actor, ActorRole: resource.ActorAdmin, Name: "SalaA", Details: "Piso 1"}, nil
	}
	_, err := r.Execute(context.Background(), resourceID, resource.CmdCreateResource, actor, create)
	require.NoError(t, err)

	const writers = 5
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	conflicts := 0

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			build := func(_ context.Context, _ *resource.State) (resource.Command, error) {
				return resource.Command{
					Kind:        resource.CmdUpdateResourceMetadata,
					ResourceID:  resourceID,
					ActorUserID: actor,
					ActorRole:   resource.ActorAdmin,
					Name:        "concurrent-update",
					Details:     "detail",
				}, nil
			}
			_, err := r.Execute(context.Background(), resourceID, resource.CmdUpdateResourceMetadata, actor, build)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if errors.Is(err, eventstore.ErrVersionConflict) {
				conflicts++
			}
			_ = i
		}(i)
	}
	wg.Wait()

	assert.Equal(t, writers, successes+conflicts)
	assert.GreaterOrEqual(t, successes, 1)
}

func TestExecute_RetriesExhausted_EmitsConcurrencyConflictUnresolvedEvent(t *testing.T) {
	cfg := runner.NewConfig(eventstore.StreamResource, 0, 0, true)
	r, store, _ := newResourceRunner(t, cfg)

	resourceID := uuid.New()
	actor := uuid.New()
	create := func(_ context.Context, _ *resource.State) (resource.Command, error) {
		return resource.Command{Kind: resource.CmdCreateResource, ResourceID: resourceID, ActorUserID: actor, ActorRole: resource.ActorAdmin, Name: "SalaA", Details: "Piso 1"}, nil
	}
	_, err := r.Execute(context.Background(), resourceID, resource.CmdCreateResource, actor, create)
	require.NoError(t, err)

	// A build that appends a competing event out from under the runner,
	// forcing a version conflict on every one of its (here: zero) retries.
	build := func(ctx context.Context, state *resource.State) (resource.Command, error) {
		competitor, err := uuid.NewV7()
		require.NoError(t, err)
		evt := eventstore.RecordedEvent{
			EventID:       competitor,
			StreamID:      resourceID,
			StreamType:    eventstore.StreamResource,
			Version:       2,
			Type:          resource.EventResourceMetadataUpdated,
			Payload:       []byte(`{"name":"racer","details":"d"}`),
			OccurredAtUtc: time.Now().UTC(),
		}
		require.NoError(t, store.AppendEvent(ctx, evt, 1))
		return resource.Command{Kind: resource.CmdUpdateResourceMetadata, ResourceID: resourceID, ActorUserID: actor, ActorRole: resource.ActorAdmin, Name: "loser", Details: "d"}, nil
	}

	_, err = r.Execute(context.Background(), resourceID, resource.CmdUpdateResourceMetadata, actor, build)
	assert.ErrorIs(t, err, eventstore.ErrVersionConflict)

	events, err := store.LoadStream(context.Background(), eventstore.StreamResource, resourceID, 1)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, runner.EventConcurrencyConflictUnresolved, events[2].Type)
}
