// Package memstore is an in-memory objectstore.Store double used by the
// engine's tests and by the example CLI's fixture mode. It is test/demo
// tooling, not a production adapter.
package memstore

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"

	"github.com/coldvault/coldvault/objectstore"
)

// Store is a goroutine-safe, fully in-memory object store.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// Put inserts or replaces an object. It is a fixture-building helper, not
// part of objectstore.Store.
func (s *Store) Put(key string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(body))
	copy(cp, body)
	s.objects[key] = cp
}

func (s *Store) List(_ context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.mu.RLock()
		keys := make([]string, 0, len(s.objects))
		for k := range s.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		s.mu.RUnlock()
		sort.Strings(keys)
		for _, k := range keys {
			if !yield(k, nil) {
				return
			}
		}
	}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.objects[key]
	if !ok {
		return nil, &objectstore.Error{Op: "get", Key: key, Err: fmt.Errorf("not found")}
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

func (s *Store) GetRange(_ context.Context, key string, offset, length int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.objects[key]
	if !ok {
		return nil, &objectstore.Error{Op: "get_range", Key: key, Err: fmt.Errorf("not found")}
	}
	if offset < 0 || length < 0 || offset+length > int64(len(body)) {
		return nil, &objectstore.Error{Op: "get_range", Key: key, Err: fmt.Errorf("range [%d,%d) out of bounds (size %d)", offset, offset+length, len(body))}
	}
	out := make([]byte, length)
	copy(out, body[offset:offset+length])
	return out, nil
}

func (s *Store) Head(_ context.Context, key string) (objectstore.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.objects[key]
	if !ok {
		return objectstore.ObjectInfo{}, &objectstore.Error{Op: "head", Key: key, Err: fmt.Errorf("not found")}
	}
	return objectstore.ObjectInfo{Size: int64(len(body))}, nil
}
