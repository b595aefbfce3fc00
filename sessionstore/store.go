// Package sessionstore holds the pending authorization data of a browser
// session: the CSRF state issued with the redirect and the access token
// obtained on callback.
package sessionstore

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gitea.com/go-chi/session"
)

const (
	KeyState       = "oauth2state"
	KeyAccessToken = "access_token"
)

// DefaultTTL bounds how long a pending authorization survives
const DefaultTTL = 10 * time.Minute

var ErrNotFound = errors.New("session: key not found")

// Store is a per-session key-value capability with last-write-wins semantics
type Store interface {
	// Get returns ErrNotFound when the key is absent
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context, keys ...string) error
}

// Backend hands out the Store of one session
type Backend interface {
	Store(sessionID string) Store
}

// Resolver returns the Store for the session of a request
type Resolver func(r *http.Request) Store

// NewResolver keeps pending data in the cookie session itself when backend is
// nil, or in the backend keyed by the cookie session id otherwise.
func NewResolver(backend Backend) Resolver {
	return func(r *http.Request) Store {
		sess := session.GetSession(r)
		if backend == nil {
			return NewChiStore(sess)
		}
		return backend.Store(sess.ID())
	}
}
