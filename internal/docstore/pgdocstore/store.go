// Package pgdocstore is a PostgreSQL-backed docstore.Store: one physical
// table per document-store table, each holding a primary key column and a
// JSONB attribute bag, scanned with sqlx.
package pgdocstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"reservecore/internal/docstore"
)

// Store is a sqlx-backed docstore.Store. Tables are created lazily via
// EnsureTable; callers typically call it once per table at startup.
type Store struct {
	db *sqlx.DB
}

// New wraps an existing *sql.DB (e.g. opened with "postgres" via lib/pq) in
// a Store.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

type row struct {
	Key        string `db:"doc_key"`
	Attributes []byte `db:"attributes"`
}

func quoteTable(table string) string {
	return `"` + table + `"`
}

// EnsureTable creates the backing table for a document-store table name if
// it does not already exist.
func (s *Store) EnsureTable(ctx context.Context, table string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			doc_key TEXT PRIMARY KEY,
			attributes JSONB NOT NULL
		)
	`, quoteTable(table)))
	return err
}

func (s *Store) Get(ctx context.Context, table, key string) (docstore.Item, bool, error) {
	var r row
	err := s.db.GetContext(ctx, &r, fmt.Sprintf(`SELECT doc_key, attributes FROM %s WHERE doc_key = $1`, quoteTable(table)), key)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pgdocstore: get: %w", err)
	}
	item, err := decodeItem(r.Attributes)
	if err != nil {
		return nil, false, err
	}
	return item, true, nil
}

func (s *Store) Put(ctx context.Context, table, key string, item docstore.Item) error {
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("pgdocstore: marshal item: %w", err)
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (doc_key, attributes) VALUES ($1, $2)
		ON CONFLICT (doc_key) DO UPDATE SET attributes = EXCLUDED.attributes
	`, quoteTable(table)), key, body)
	if err != nil {
		return fmt.Errorf("pgdocstore: put: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table, key string, attrs docstore.Item) error {
	body, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("pgdocstore: marshal attrs: %w", err)
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (doc_key, attributes) VALUES ($1, $2)
		ON CONFLICT (doc_key) DO UPDATE SET attributes = %s.attributes || EXCLUDED.attributes
	`, quoteTable(table), quoteTable(table)), key, body)
	if err != nil {
		return fmt.Errorf("pgdocstore: update: %w", err)
	}
	return nil
}

func (s *Store) PutIfAbsent(ctx context.Context, table, key string, item docstore.Item) (bool, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return false, fmt.Errorf("pgdocstore: marshal item: %w", err)
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (doc_key, attributes) VALUES ($1, $2)
		ON CONFLICT (doc_key) DO NOTHING
	`, quoteTable(table)), key, body)
	if err != nil {
		return false, fmt.Errorf("pgdocstore: put-if-absent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgdocstore: rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *Store) Scan(ctx context.Context, table string, filter docstore.Filter, cursor string, limit int) (docstore.Page, error) {
	query := fmt.Sprintf(`SELECT doc_key, attributes FROM %s WHERE doc_key > $1 ORDER BY doc_key LIMIT $2`, quoteTable(table))
	// Over-fetch since filter is applied in process; the document store's
	// native filter expressions are out of scope for this adapter.
	rows := []row{}
	fetchLimit := limit*4 + limit
	err := s.db.SelectContext(ctx, &rows, query, cursor, fetchLimit)
	if err != nil {
		return docstore.Page{}, fmt.Errorf("pgdocstore: scan: %w", err)
	}

	var items []docstore.Item
	next := ""
	lastKey := ""
	for _, r := range rows {
		item, err := decodeItem(r.Attributes)
		if err != nil {
			return docstore.Page{}, err
		}
		if filter != nil && !filter(item) {
			lastKey = r.Key
			continue
		}
		if len(items) == limit {
			next = lastKey
			break
		}
		items = append(items, item)
		lastKey = r.Key
	}
	if next == "" && len(rows) == fetchLimit {
		// The over-fetch ended before the table did; resume after the last row examined.
		next = lastKey
	}
	return docstore.Page{Items: items, NextCursor: next}, nil
}

func decodeItem(raw []byte) (docstore.Item, error) {
	item := docstore.Item{}
	if len(raw) == 0 {
		return item, nil
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("pgdocstore: decode attributes: %w", err)
	}
	return item, nil
}
