package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or has expired
var ErrNotFound = errors.New("storage: key not found")

// Store is a key-expiring map shared by every request the broker serves.
// It is the only place where state crosses request boundaries.
//
// Implementations must be safe for concurrent use. Put overwrites the whole
// value; Delete of an absent key succeeds. A Get racing a Delete returns
// either the full value or ErrNotFound, never a partial value.
//
// Expiry is best effort at the granularity of the backend, so callers that
// embed their own deadline in the value must still check it.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Key namespaces. Every key the broker writes goes through one of the
// helpers below so the prefixes cannot collide with other store users.
const (
	statePrefix   = "oauth_state:"
	sessionPrefix = "session:"
)

// Lifetimes of the two kinds of entries.
const (
	StateTTL   = 10 * time.Minute
	SessionTTL = time.Hour
)

// StateKey is the key of a pending authorization request stashed under a one-time state value
func StateKey(state string) string {
	return statePrefix + state
}

// SessionKey is the key of a browser login session
func SessionKey(token string) string {
	return sessionPrefix + token
}
