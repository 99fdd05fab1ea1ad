package formstate

import (
	"context"
	"sync"

	"marketplace-pricing/decision/marketplace"
)

// MemoryStore keeps forms in process memory. It is the default backend.
type MemoryStore struct {
	mu    sync.RWMutex
	forms map[string]marketplace.Form
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{forms: make(map[string]marketplace.Form)}
}

func (s *MemoryStore) Save(_ context.Context, k marketplace.Kind, form marketplace.Form) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forms[Key(k)] = clean(k, form)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, k marketplace.Kind) (marketplace.Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(marketplace.Form)
	for name, v := range s.forms[Key(k)] {
		out[name] = v
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
