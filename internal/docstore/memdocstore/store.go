// Package memdocstore is an in-memory docstore.Store used by unit and
// property tests.
package memdocstore

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"reservecore/internal/docstore"
)

// Store is a map-of-maps docstore.Store; safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	tables map[string]map[string]docstore.Item
}

// New returns an empty Store.
func New() *Store {
	return &Store{tables: make(map[string]map[string]docstore.Item)}
}

func (s *Store) table(name string) map[string]docstore.Item {
	t, ok := s.tables[name]
	if !ok {
		t = make(map[string]docstore.Item)
		s.tables[name] = t
	}
	return t
}

func (s *Store) Get(_ context.Context, table, key string) (docstore.Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.table(table)[key]
	if !ok {
		return nil, false, nil
	}
	return cloneItem(item), true, nil
}

func (s *Store) Put(_ context.Context, table, key string, item docstore.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.table(table)[key] = cloneItem(item)
	return nil
}

func (s *Store) Update(_ context.Context, table, key string, attrs docstore.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(table)
	existing, ok := t[key]
	if !ok {
		existing = docstore.Item{}
	}
	merged := cloneItem(existing)
	for k, v := range attrs {
		merged[k] = v
	}
	t[key] = merged
	return nil
}

func (s *Store) PutIfAbsent(_ context.Context, table, key string, item docstore.Item) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(table)
	if _, exists := t[key]; exists {
		return false, nil
	}
	t[key] = cloneItem(item)
	return true, nil
}

func (s *Store) Scan(_ context.Context, table string, filter docstore.Filter, cursor string, limit int) (docstore.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(table)
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if cursor != "" {
		if idx, err := strconv.Atoi(cursor); err == nil {
			start = idx
		}
	}

	var items []docstore.Item
	i := start
	for ; i < len(keys) && len(items) < limit; i++ {
		item := t[keys[i]]
		if filter == nil || filter(item) {
			items = append(items, cloneItem(item))
		}
	}

	next := ""
	if i < len(keys) {
		next = strconv.Itoa(i)
	}
	return docstore.Page{Items: items, NextCursor: next}, nil
}

func cloneItem(item docstore.Item) docstore.Item {
	out := make(docstore.Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
