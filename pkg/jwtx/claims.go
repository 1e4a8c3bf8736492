package jwtx

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds carried in the "token_type" claim. The kind is fixed at mint
// time; a refresh token is never accepted where an access token is required.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims is the signed token payload. The wire schema is part of the service
// contract: userId is an integer, authorities is a list of uppercase role
// strings, token_type is either "access" or "refresh".
type Claims struct {
	jwt.RegisteredClaims

	// UserID is the principal's stable numeric id.
	UserID int64 `json:"userId"`

	// Authorities is the ordered role list, e.g. ["ROLE_USER"].
	Authorities []string `json:"authorities"`

	// TokenKind is KindAccess or KindRefresh.
	TokenKind string `json:"token_type"`

	// ProfileID references the principal's matrimonial profile, when one
	// exists.
	ProfileID *int64 `json:"userProfileId,omitempty"`

	// Fingerprint is the device fingerprint hash the token is bound to.
	Fingerprint string `json:"dfp,omitempty"`
}

// NewClaims builds a minimally-correct claims set for a token of the given
// kind. ProfileID and Fingerprint are left for the caller to set.
func NewClaims(
	subject, jti, kind string,
	userID int64,
	authorities []string,
	ttl time.Duration,
	issuer, audience string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
		UserID:      userID,
		Authorities: authorities,
		TokenKind:   kind,
	}
}

var authorityPattern = regexp.MustCompile(`^[A-Z_]+$`)

// ValidateForIssue enforces the mint-time principal invariant: a token is
// never signed for an anonymous or incomplete principal. The subject, numeric
// id, token id, kind and at least one authority must all be present, and the
// authorities must pass the character-class check.
func ValidateForIssue(c Claims) error {
	switch {
	case c.Subject == "":
		return fmt.Errorf("%w: empty subject", ErrBadPrincipal)
	case c.UserID <= 0:
		return fmt.Errorf("%w: user id %d", ErrBadPrincipal, c.UserID)
	case c.ID == "":
		return fmt.Errorf("%w: empty token id", ErrBadPrincipal)
	case c.TokenKind != KindAccess && c.TokenKind != KindRefresh:
		return fmt.Errorf("%w: kind %q", ErrBadPrincipal, c.TokenKind)
	case len(c.Authorities) == 0:
		return fmt.Errorf("%w: no authorities", ErrBadPrincipal)
	}
	return ValidateAuthorities(c.Authorities)
}

// ValidateAuthorities enforces the authority character-class invariant: every
// entry matches ^[A-Z_]+$ and carries no NUL or replacement characters. A
// violation means a corrupted authority and must never reach the signing step.
func ValidateAuthorities(authorities []string) error {
	for _, a := range authorities {
		if strings.ContainsRune(a, '\x00') || strings.ContainsRune(a, '�') {
			return fmt.Errorf("%w: %q", ErrBadAuthority, a)
		}
		if !authorityPattern.MatchString(a) {
			return fmt.Errorf("%w: %q", ErrBadAuthority, a)
		}
	}
	return nil
}

// RemainingLife reports the time until expiry at now, or zero when the claims
// carry no expiry or are already expired.
func (c Claims) RemainingLife(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	remaining := c.ExpiresAt.Time.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
