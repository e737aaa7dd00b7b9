package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/storage"
)

// IdentityStore keeps identities in memory. Logins compare
// case-insensitively.
type IdentityStore struct {
	lock    sync.RWMutex
	byID    map[string]domain.Identity
	byLogin map[string]string
}

// NewIdentityStore returns an empty IdentityStore.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		byID:    make(map[string]domain.Identity),
		byLogin: make(map[string]string),
	}
}

// FindByID retrieves an identity by its id.
func (s *IdentityStore) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	identity, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &identity, nil
}

// FindByLogin retrieves an identity by its login identifier.
func (s *IdentityStore) FindByLogin(ctx context.Context, login string) (*domain.Identity, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	id, ok := s.byLogin[strings.ToLower(login)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	identity := s.byID[id]
	return &identity, nil
}

// Create stores a new identity, assigning an id when none is set.
func (s *IdentityStore) Create(ctx context.Context, identity domain.Identity) (*domain.Identity, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	key := strings.ToLower(identity.Login)
	if _, ok := s.byLogin[key]; ok {
		return nil, storage.ErrDuplicateLogin
	}
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	s.byID[identity.ID] = identity
	s.byLogin[key] = identity.ID
	return &identity, nil
}

// Delete removes an identity. Tokens issued to it stop resolving.
func (s *IdentityStore) Delete(ctx context.Context, id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	identity, ok := s.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byLogin, strings.ToLower(identity.Login))
	return nil
}
