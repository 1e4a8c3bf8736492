// Package session tracks which token is the current one for each principal
// and remembers revoked token ids. Both concerns are keyed by short-lived
// state that expires on its own, so the backends are caches, not durable
// stores.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks a backend failure. Callers must treat it as "unable to
// decide", never as "token is fine": the check fails closed.
var ErrUnavailable = errors.New("session: backend unavailable")

// Registry tracks the single current token per principal and token kind.
// SetCurrent is last-writer-wins: issuing a new token silently supersedes the
// previous one.
type Registry interface {
	// SetCurrent records jti as the current token for the principal and
	// kind. The entry expires after ttl.
	SetCurrent(ctx context.Context, kind string, principalID int64, jti string, ttl time.Duration) error

	// IsCurrent reports whether jti is still the current token. An absent
	// entry means the token was superseded, cleared or expired.
	IsCurrent(ctx context.Context, kind string, principalID int64, jti string) (bool, error)

	// Clear drops the current-token entry, e.g. on logout.
	Clear(ctx context.Context, kind string, principalID int64) error
}

// RevocationList remembers revoked token ids. Entries only need to live until
// the token would have expired anyway, so every Revoke carries a ttl.
type RevocationList interface {
	// Revoke marks jti as revoked for ttl. Revoking an already-revoked id
	// is a no-op.
	Revoke(ctx context.Context, jti string, ttl time.Duration) error

	// IsRevoked reports whether jti is on the list.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Store bundles both session concerns behind one backend.
type Store interface {
	Registry
	RevocationList

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
