// Package audit records security-relevant operations. Every operation maps to
// a bucket through an explicit table; an operation without a bucket entry is a
// programming error caught at record time, not silently misfiled.
package audit

import (
	"context"

	"github.com/saatphere/saatphere/internal/auth/domain"
	"github.com/saatphere/saatphere/internal/auth/store"
	"github.com/saatphere/saatphere/pkg/slogx"
)

// Buckets group related operations for retention and review.
const (
	BucketSessions = "sessions"
	BucketAccounts = "accounts"
	BucketTokens   = "tokens"
)

// Operations.
const (
	OpLogin           = "login"
	OpLoginFailed     = "login_failed"
	OpRefresh         = "refresh"
	OpLogout          = "logout"
	OpTokenRevoked    = "token_revoked"
	OpRegister        = "register"
	OpBulkRegister    = "bulk_register"
	OpAccountDisabled = "account_disabled"
	OpPasswordChanged = "password_changed"
	OpProfileAttached = "profile_attached"
)

var buckets = map[string]string{
	OpLogin:           BucketSessions,
	OpLoginFailed:     BucketSessions,
	OpRefresh:         BucketSessions,
	OpLogout:          BucketSessions,
	OpTokenRevoked:    BucketTokens,
	OpRegister:        BucketAccounts,
	OpBulkRegister:    BucketAccounts,
	OpAccountDisabled: BucketAccounts,
	OpPasswordChanged: BucketAccounts,
	OpProfileAttached: BucketAccounts,
}

// Recorder appends audit events. Recording is best-effort: a failed write is
// logged and dropped rather than failing the operation being audited.
type Recorder struct {
	store store.Audit
}

func NewRecorder(s store.Audit) *Recorder {
	return &Recorder{store: s}
}

// Record writes one event. actorID may be nil for unauthenticated operations.
func (r *Recorder) Record(ctx context.Context, op string, actorID *int64, detail string) {
	log := slogx.FromContext(ctx)

	bucket, ok := buckets[op]
	if !ok {
		log.Error("audit: operation has no bucket", "op", op)
		return
	}

	err := r.store.Record(ctx, domain.AuditEvent{
		Bucket:    bucket,
		Operation: op,
		ActorID:   actorID,
		Detail:    detail,
	})
	if err != nil {
		log.Warn("audit: record failed", "op", op, "err", err)
	}
}
