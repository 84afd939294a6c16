package repository

import (
	"context"
	"strconv"
	"sync"
)

// MemoryStore keeps the key space in process memory. It backs tests and the
// "memory" ledger backend, and loses everything on restart.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string][]byte
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, wrapKV("get", key, ErrKeyNotFound)
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryStore) Increment(ctx context.Context, key string, seed int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := seed
	if raw, ok := s.values[key]; ok {
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, wrapKV("increment", key, ErrCorruptCounter)
		}
		current = n
	}
	current++
	s.values[key] = []byte(strconv.FormatInt(current, 10))
	return current, nil
}
