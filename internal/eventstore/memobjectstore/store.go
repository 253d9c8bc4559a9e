// Package memobjectstore is an in-memory ObjectStore used by unit and
// property tests and by single-process deployments.
package memobjectstore

import (
	"context"
	"strings"
	"sync"

	"reservecore/internal/eventstore"
)

type object struct {
	body []byte
	meta map[string]string
}

// Store is a map-backed ObjectStore guarded by a mutex; Put's existence
// check under that lock is its create-if-absent primitive, the in-memory
// analogue of a blob store's If-None-Match: *.
type Store struct {
	mu      sync.Mutex
	objects map[string]object
}

// New returns an empty Store.
func New() *Store {
	return &Store{objects: make(map[string]object)}
}

func (s *Store) Put(_ context.Context, key string, body []byte, _ string, meta map[string]string, ifNoneMatch bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ifNoneMatch {
		if _, exists := s.objects[key]; exists {
			return eventstore.ErrAlreadyExists
		}
	}

	bodyCopy := make([]byte, len(body))
	copy(bodyCopy, body)
	s.objects[key] = object{body: bodyCopy, meta: meta}
	return nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, nil, eventstore.ErrNotFound
	}
	bodyCopy := make([]byte, len(obj.body))
	copy(bodyCopy, obj.body)
	return bodyCopy, obj.meta, nil
}

func (s *Store) List(_ context.Context, prefix string) ([]eventstore.ObjectKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []eventstore.ObjectKey
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, eventstore.ObjectKey{Key: k})
		}
	}
	return keys, nil
}
