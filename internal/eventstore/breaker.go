package eventstore

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// isConflict reports whether err is the object store's create-if-absent
// precondition failure. Both adapters translate their native signal
// (os.ErrExist for fsobjectstore, an existing map key for memobjectstore)
// to ErrAlreadyExists before returning it.
func isConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// ErrAlreadyExists is the adapter-level signal a create-if-absent write lost
// the race; eventstore normalizes it to ErrVersionConflict (append path) or
// swallows it (snapshot path). See breaker.go's isConflict and store.go.
var ErrAlreadyExists = errors.New("eventstore: object already exists")

// breakerStore wraps an ObjectStore so repeated transport failures fail fast
// instead of hanging every command behind a dying blob store. Precondition
// conflicts and not-found reads are expected traffic under concurrent
// writers, not a sign the store itself is unhealthy, so they never count
// toward tripping the breaker.
type breakerStore struct {
	inner   ObjectStore
	breaker *gobreaker.CircuitBreaker[any]
}

func withBreaker(inner ObjectStore) ObjectStore {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "eventstore-object-store",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrNotFound)
		},
	})
	return &breakerStore{inner: inner, breaker: cb}
}

func (b *breakerStore) Put(ctx context.Context, key string, body []byte, contentType string, meta map[string]string, ifNoneMatch bool) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.inner.Put(ctx, key, body, contentType, meta, ifNoneMatch)
	})
	return err
}

func (b *breakerStore) Get(ctx context.Context, key string) ([]byte, map[string]string, error) {
	type result struct {
		body []byte
		meta map[string]string
	}
	r, err := b.breaker.Execute(func() (any, error) {
		body, meta, err := b.inner.Get(ctx, key)
		return result{body: body, meta: meta}, err
	})
	res, _ := r.(result)
	if err != nil {
		return nil, nil, err
	}
	return res.body, res.meta, nil
}

func (b *breakerStore) List(ctx context.Context, prefix string) ([]ObjectKey, error) {
	r, err := b.breaker.Execute(func() (any, error) {
		return b.inner.List(ctx, prefix)
	})
	if err != nil {
		return nil, err
	}
	return r.([]ObjectKey), nil
}
