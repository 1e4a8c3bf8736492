package domain

import "time"

// Principal is an account that can authenticate. Authorities use the
// ROLE_-prefixed uppercase convention, e.g. ROLE_USER, ROLE_ADMIN.
type Principal struct {
	ID           int64
	Username     string
	PasswordHash string // argon2 encoded
	Authorities  []string
	ProfileID    *int64 // matrimonial profile, nullable until created
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identifier returns the principal's stable numeric id.
func (p Principal) Identifier() int64 { return p.ID }

// Identifiable is implemented by domain records that carry a stable numeric
// id. Generic code (audit, ownership checks) depends on this instead of
// inspecting concrete types.
type Identifiable interface {
	Identifier() int64
}

// HasAuthority reports whether the principal holds the given authority.
func (p Principal) HasAuthority(authority string) bool {
	for _, a := range p.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}
