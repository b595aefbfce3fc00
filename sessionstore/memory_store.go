package sessionstore

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryBackend keeps pending authorizations in process memory with expiry
type MemoryBackend struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryBackend{
		cache: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

func (b *MemoryBackend) Store(sessionID string) Store {
	return &memoryStore{backend: b, sessionID: sessionID}
}

type memoryStore struct {
	backend   *MemoryBackend
	sessionID string
}

func (s *memoryStore) key(k string) string {
	return s.sessionID + ":" + k
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := s.backend.cache.Get(s.key(key))
	if !ok {
		return "", ErrNotFound
	}
	str, ok := v.(string)
	if !ok {
		return "", ErrNotFound
	}
	return str, nil
}

func (s *memoryStore) Set(_ context.Context, key, value string) error {
	s.backend.cache.Set(s.key(key), value, s.backend.ttl)
	return nil
}

func (s *memoryStore) Clear(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.backend.cache.Delete(s.key(key))
	}
	return nil
}
