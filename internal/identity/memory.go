package identity

import (
	"context"
	"sync"

	"github.com/example/memtest/pkg/models"
)

// MemoryStore keeps identities in process memory
type MemoryStore struct {
	mu         sync.Mutex
	identities map[string]models.Identity
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{identities: make(map[string]models.Identity)}
}

func (s *MemoryStore) GetByContext(_ context.Context, contextKey string) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[contextKey]
	if !ok {
		return nil, nil
	}
	return &identity, nil
}

func (s *MemoryStore) CreateIfAbsent(_ context.Context, identity models.Identity) (models.Identity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.identities[identity.ContextKey]; ok {
		return existing, false, nil
	}
	s.identities[identity.ContextKey] = identity
	return identity, true, nil
}
