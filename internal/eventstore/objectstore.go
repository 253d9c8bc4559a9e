package eventstore

import "context"

// ObjectKey is a single entry returned by a List call.
type ObjectKey struct {
	Key string
}

// ObjectStore is the abstract blob store the event store is built on: an
// append-only bucket of keyed byte blobs with a create-if-absent write
// precondition. A real deployment backs this with a cloud object store; this
// module ships an in-memory adapter (memobjectstore) and a filesystem
// adapter (fsobjectstore).
type ObjectStore interface {
	// Put writes body at key. When ifNoneMatch is true, the write only
	// succeeds if no object currently exists at key; a losing writer gets
	// ErrAlreadyExists, which Store translates for its callers.
	Put(ctx context.Context, key string, body []byte, contentType string, meta map[string]string, ifNoneMatch bool) error

	// Get fetches the object at key along with any metadata stored with it.
	Get(ctx context.Context, key string) ([]byte, map[string]string, error)

	// List returns every key under prefix, in no particular order; callers
	// that need an ordering sort the result themselves.
	List(ctx context.Context, prefix string) ([]ObjectKey, error)
}
