package sessionstore

import (
	"context"
	"fmt"

	"gitea.com/go-chi/session"
)

// ChiStore adapts a go-chi cookie session
type ChiStore struct {
	sess session.Store
}

func NewChiStore(sess session.Store) *ChiStore {
	return &ChiStore{sess: sess}
}

func (s *ChiStore) Get(_ context.Context, key string) (string, error) {
	v, ok := s.sess.Get(key).(string)
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *ChiStore) Set(_ context.Context, key, value string) error {
	if err := s.sess.Set(key, value); err != nil {
		return fmt.Errorf("session: set %s: %w", key, err)
	}
	return nil
}

func (s *ChiStore) Clear(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := s.sess.Delete(key); err != nil {
			return fmt.Errorf("session: delete %s: %w", key, err)
		}
	}
	return nil
}
