// Package readmodel provides narrow, advisory read-side lookups the command
// builders consult before invoking a decider (spec.md §4.3 step 2): these
// checks are advisory only, never a substitute for the decider's own
// invariant checks, since the read side can lag the event log.
package readmodel

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"reservecore/internal/docstore"
)

// Users answers questions about the users projection table.
type Users struct {
	docs  docstore.Store
	table string
}

// NewUsers returns a Users reader over the given projection table name.
func NewUsers(docs docstore.Store, table string) *Users {
	return &Users{docs: docs, table: table}
}

// EmailExists reports whether any projected user row carries email. This is
// a best-effort pre-check; the decider's own USER_ALREADY_EXISTS rejection
// (keyed on stream existence, not email) is the source of truth.
func (u *Users) EmailExists(ctx context.Context, email string) (bool, error) {
	cursor := ""
	for {
		page, err := u.docs.Scan(ctx, u.table, func(item docstore.Item) bool {
			existing, _ := item["email"].(string)
			return existing == email
		}, cursor, 50)
		if err != nil {
			return false, fmt.Errorf("readmodel: scan users for email: %w", err)
		}
		if len(page.Items) > 0 {
			return true, nil
		}
		if page.NextCursor == "" {
			return false, nil
		}
		cursor = page.NextCursor
	}
}

// FindIDByEmail returns the userId of the projected row with the given
// email, if any. Like EmailExists, this is advisory: callers that need an
// authoritative answer rehydrate the user stream itself.
func (u *Users) FindIDByEmail(ctx context.Context, email string) (uuid.UUID, bool, error) {
	cursor := ""
	for {
		page, err := u.docs.Scan(ctx, u.table, func(item docstore.Item) bool {
			existing, _ := item["email"].(string)
			return existing == email
		}, cursor, 50)
		if err != nil {
			return uuid.UUID{}, false, fmt.Errorf("readmodel: scan users for email: %w", err)
		}
		for _, item := range page.Items {
			idStr, _ := item["userId"].(string)
			id, err := uuid.Parse(idStr)
			if err != nil {
				continue
			}
			return id, true, nil
		}
		if page.NextCursor == "" {
			return uuid.UUID{}, false, nil
		}
		cursor = page.NextCursor
	}
}

// Resources answers questions about the resources projection table.
type Resources struct {
	docs  docstore.Store
	table string
}

// NewResources returns a Resources reader over the given projection table
// name.
func NewResources(docs docstore.Store, table string) *Resources {
	return &Resources{docs: docs, table: table}
}

// Exists reports whether resourceID has a projected row. Like EmailExists,
// this is advisory: the decider's RESOURCE_NOT_FOUND rejection against the
// rehydrated event-sourced state is authoritative.
func (r *Resources) Exists(ctx context.Context, resourceID uuid.UUID) (bool, error) {
	_, ok, err := r.docs.Get(ctx, r.table, resourceID.String())
	if err != nil {
		return false, fmt.Errorf("readmodel: get resource: %w", err)
	}
	return ok, nil
}

// NameExists reports whether any projected resource row carries name. The
// command builder consults this before minting a new resourceId, ahead of
// the decider's own stream-existence check (which can't see name
// collisions, since every CreateResource command gets a fresh resourceId).
func (r *Resources) NameExists(ctx context.Context, name string) (bool, error) {
	cursor := ""
	for {
		page, err := r.docs.Scan(ctx, r.table, func(item docstore.Item) bool {
			existing, _ := item["name"].(string)
			return existing == name
		}, cursor, 50)
		if err != nil {
			return false, fmt.Errorf("readmodel: scan resources for name: %w", err)
		}
		if len(page.Items) > 0 {
			return true, nil
		}
		if page.NextCursor == "" {
			return false, nil
		}
		cursor = page.NextCursor
	}
}
