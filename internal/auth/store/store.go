package store

import (
	"context"
	"errors"
	"time"

	"github.com/saatphere/saatphere/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers implement this.
// Sub-repositories are exposed as methods to keep concerns tidy and testable.
type Store interface {
	Principals() Principals
	Audit() Audit

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store scope.
type Tx interface {
	Principals() Principals
	Audit() Audit
}

type Principals interface {
	// GetByID returns a principal by its numeric id.
	GetByID(ctx context.Context, id int64) (domain.Principal, error)

	// GetByUsername is used during credential verification.
	GetByUsername(ctx context.Context, username string) (domain.Principal, error)

	// Create inserts a new principal and returns the assigned id.
	// A duplicate username fails with ErrAlreadyExists.
	Create(ctx context.Context, p domain.Principal) (int64, error)

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, id int64, newHash string) error

	// SetEnabled flips the enabled flag, e.g. when an admin suspends an
	// account.
	SetEnabled(ctx context.Context, id int64, enabled bool) error

	// SetProfileID links the principal to its matrimonial profile.
	SetProfileID(ctx context.Context, id int64, profileID int64) error

	// IsEmpty returns true if there are no principals (fresh database).
	IsEmpty(ctx context.Context) (bool, error)
}

type Audit interface {
	// Record appends an audit event. The event's ID and CreatedAt are
	// assigned by the driver.
	Record(ctx context.Context, e domain.AuditEvent) error

	// ListRecent returns the newest events in a bucket, newest first.
	ListRecent(ctx context.Context, bucket string, limit int) ([]domain.AuditEvent, error)

	// PruneOlderThan deletes events created before cutoff. Housekeeping.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
