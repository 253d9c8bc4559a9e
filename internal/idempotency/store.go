package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reservecore/internal/docstore"
)

// Record is what is persisted under an idempotency key: the content hash it
// was first seen with, and the response to replay on a subsequent request
// presenting the same key.
type Record struct {
	Key            string          `json:"key"`
	ContentHash    string          `json:"contentHash"`
	ResponseStatus int             `json:"responseStatus"`
	ResponseBody   json.RawMessage `json:"responseBody"`
	CreatedAtUtc   time.Time       `json:"createdAtUtc"`
}

// Store persists idempotency records in a docstore.Store table.
type Store struct {
	docs  docstore.Store
	table string
}

// NewStore returns a Store backed by docs, reading and writing the given
// table (spec.md's IDEMPOTENCY_TABLE).
func NewStore(docs docstore.Store, table string) *Store {
	return &Store{docs: docs, table: table}
}

// Load returns the record stored under key, if any.
func (s *Store) Load(ctx context.Context, key string) (*Record, bool, error) {
	item, ok, err := s.docs.Get(ctx, s.table, key)
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: load: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return decodeRecord(item)
}

// Reserve attempts to claim key for this request, recording contentHash but
// no response yet (the command has not run). It returns ok=false without
// error if the key was already claimed by a concurrent or prior request; the
// caller must then load the existing record to decide replay vs. mismatch.
func (s *Store) Reserve(ctx context.Context, key, contentHash string, now time.Time) (bool, error) {
	item, err := encodeRecord(Record{Key: key, ContentHash: contentHash, CreatedAtUtc: now})
	if err != nil {
		return false, err
	}
	ok, err := s.docs.PutIfAbsent(ctx, s.table, key, item)
	if err != nil {
		return false, fmt.Errorf("idempotency: reserve: %w", err)
	}
	return ok, nil
}

func (s *Store) recordResponse(ctx context.Context, key string, status int, body json.RawMessage) error {
	err := s.docs.Update(ctx, s.table, key, docstore.Item{
		"responseStatus": status,
		"responseBody":   json.RawMessage(body),
	})
	if err != nil {
		return fmt.Errorf("idempotency: record response: %w", err)
	}
	return nil
}

func encodeRecord(r Record) (docstore.Item, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("idempotency: marshal record: %w", err)
	}
	item := docstore.Item{}
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("idempotency: unmarshal record: %w", err)
	}
	return item, nil
}

func decodeRecord(item docstore.Item) (*Record, bool, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: marshal item: %w", err)
	}
	var r Record
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, false, fmt.Errorf("idempotency: unmarshal item: %w", err)
	}
	return &r, true, nil
}
