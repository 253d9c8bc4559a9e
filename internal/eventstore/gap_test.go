package eventstore_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"reservecore/internal/eventstore"
	"reservecore/internal/eventstore/memobjectstore"
)

// flakyListStore drops a configured set of keys from the very first List
// call only, simulating an eventually-consistent listing that briefly omits
// a just-written object, then behaves normally on the retry.
type flakyListStore struct {
	*memobjectstore.Store
	mu        sync.Mutex
	dropOnce  map[string]bool
	listCalls int
}

func newFlakyListStore(dropOnce ...string) *flakyListStore {
	drop := make(map[string]bool, len(dropOnce))
	for _, k := range dropOnce {
		drop[k] = true
	}
	return &flakyListStore{Store: memobjectstore.New(), dropOnce: drop}
}

func (f *flakyListStore) List(ctx context.Context, prefix string) ([]eventstore.ObjectKey, error) {
	keys, err := f.Store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	firstCall := f.listCalls == 0
	f.listCalls++
	f.mu.Unlock()

	if !firstCall {
		return keys, nil
	}

	filtered := keys[:0:0]
	for _, k := range keys {
		if f.dropOnce[k.Key] {
			continue
		}
		filtered = append(filtered, k)
	}
	return filtered, nil
}

func TestLoadStream_RetriesOnceThenSucceedsIfGapWasTransient(t *testing.T) {
	ctx := context.Background()
	streamID := uuid.New()
	missingKey := "resource/" + streamID.String() + "/000000000002.json"

	flaky := newFlakyListStore(missingKey)
	store := eventstore.New(flaky)

	for v := 1; v <= 3; v++ {
		require.NoError(t, store.AppendEvent(ctx, mkEvent(streamID, v, "ResourceMetadataUpdated"), v-1))
	}

	events, err := store.LoadStream(ctx, eventstore.StreamResource, streamID, 1)
	require.NoError(t, err)
	require.Len(t, events, 3)
}

// alwaysFlakyListStore drops a key from every List call, modeling a stable
// consistency defect that does not self-heal on retry.
type alwaysFlakyListStore struct {
	*memobjectstore.Store
	drop string
}

func (f *alwaysFlakyListStore) List(ctx context.Context, prefix string) ([]eventstore.ObjectKey, error) {
	keys, err := f.Store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	filtered := keys[:0:0]
	for _, k := range keys {
		if k.Key == f.drop {
			continue
		}
		filtered = append(filtered, k)
	}
	return filtered, nil
}

func TestLoadStream_PersistentGapSurfacesAfterOneRetry(t *testing.T) {
	ctx := context.Background()
	streamID := uuid.New()
	missingKey := "resource/" + streamID.String() + "/000000000002.json"

	flaky := &alwaysFlakyListStore{Store: memobjectstore.New(), drop: missingKey}
	store := eventstore.New(flaky)

	for v := 1; v <= 3; v++ {
		require.NoError(t, store.AppendEvent(ctx, mkEvent(streamID, v, "ResourceMetadataUpdated"), v-1))
	}

	_, err := store.LoadStream(ctx, eventstore.StreamResource, streamID, 1)
	require.Error(t, err)
	var gapErr *eventstore.StreamGapError
	require.ErrorAs(t, err, &gapErr)
	require.Equal(t, 2, gapErr.Expected)
	require.Equal(t, 3, gapErr.Actual)
}
