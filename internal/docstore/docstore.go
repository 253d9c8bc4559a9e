// Package docstore is the abstract document store the idempotency layer and
// the projection worker write through: a collection of independently-keyed
// tables supporting full-item upserts, partial attribute updates,
// insert-if-absent, point reads, and a filtered, paginated scan.
package docstore

import "context"

// Item is a single document: a loosely-typed attribute bag, the document
// store's analogue of a DynamoDB item.
type Item map[string]any

// Page is one page of a Scan, carrying an opaque cursor for the next page.
// An empty NextCursor means there is no further page.
type Page struct {
	Items      []Item
	NextCursor string
}

// Filter narrows a Scan to matching items; nil matches everything.
type Filter func(Item) bool

// Store is the document store contract.
type Store interface {
	// Get fetches the item at key in table, or found=false if none exists.
	Get(ctx context.Context, table, key string) (item Item, found bool, err error)

	// Put is a full-item overwrite upsert keyed by key. Idempotent by
	// construction: re-delivering the same Put produces the same end state.
	Put(ctx context.Context, table, key string, item Item) error

	// Update sets the given attributes on the item at key, creating the
	// item if it does not yet exist. Idempotent: setting the same
	// event-derived attributes twice is a no-op the second time.
	Update(ctx context.Context, table, key string, attrs Item) error

	// PutIfAbsent inserts item at key only if key does not already exist in
	// table; inserted is false (not an error) if another writer got there
	// first. This is the document store's attribute_not_exists precondition,
	// used by the idempotency table's insert-if-absent semantics.
	PutIfAbsent(ctx context.Context, table, key string, item Item) (inserted bool, err error)

	// Scan returns items in table matching filter, paginated via cursor
	// (empty cursor starts at the beginning), up to limit items per page.
	Scan(ctx context.Context, table string, filter Filter, cursor string, limit int) (Page, error)
}
