package domain

import "time"

// AuditEvent records a security-relevant operation. Bucket groups related
// operations (e.g. all token issuance events land in "tokens").
type AuditEvent struct {
	ID        int64
	Bucket    string
	Operation string
	ActorID   *int64 // nil for unauthenticated operations
	Detail    string
	CreatedAt time.Time
}
