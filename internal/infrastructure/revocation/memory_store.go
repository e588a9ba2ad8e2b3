package revocation

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore is a process-local denylist. Entries expire with their tokens.
type MemoryStore struct {
	cache *cache.Cache
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: cache.New(cache.NoExpiration, 10*time.Minute),
		now:   time.Now,
	}
}

func (s *MemoryStore) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	if err := validateJTI(jti); err != nil {
		return err
	}
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	s.cache.Set(jti, struct{}{}, ttl)
	return nil
}

// Claim uses cache.Add, which fails when a live entry already exists.
func (s *MemoryStore) Claim(_ context.Context, jti string, expiresAt time.Time) (bool, error) {
	if err := validateJTI(jti); err != nil {
		return false, err
	}
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		// Expired tokens never validate, so there is nothing to race for.
		return true, nil
	}
	return s.cache.Add(jti, struct{}{}, ttl) == nil, nil
}

func (s *MemoryStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	_, found := s.cache.Get(jti)
	return found, nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}
