package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/saatphere/saatphere/internal/auth/audit"
	"github.com/saatphere/saatphere/internal/auth/domain"
	"github.com/saatphere/saatphere/internal/auth/metrics"
	"github.com/saatphere/saatphere/internal/auth/session"
	"github.com/saatphere/saatphere/internal/auth/store"
	"github.com/saatphere/saatphere/pkg/fingerprint"
	"github.com/saatphere/saatphere/pkg/idx"
	"github.com/saatphere/saatphere/pkg/jwtx"
	"github.com/saatphere/saatphere/pkg/slogx"
)

type TokenService struct {
	Codec    *jwtx.Codec
	Sessions session.Store
	Store    store.Store
	Audit    *audit.Recorder

	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// SingleSession enforces one active token per principal and kind.
	// Issuing a new token silently supersedes the previous one.
	SingleSession bool

	// DeviceBinding rejects tokens presented from a device other than the
	// one they were minted for.
	DeviceBinding bool

	// FailOpen skips the revocation and session checks when the session
	// backend is down, instead of failing the request. Off by default.
	FailOpen bool

	// StoreTimeout bounds each session backend call.
	StoreTimeout time.Duration
}

// Issue mints an access/refresh token pair for the principal and registers
// both as the current tokens of their kind.
func (s *TokenService) Issue(ctx context.Context, p domain.Principal, deviceFP string) (*domain.TokenPair, error) {
	now := time.Now().UTC()

	access, accessClaims, err := s.mint(p, jwtx.KindAccess, s.AccessTTL, deviceFP, now)
	if err != nil {
		return nil, err
	}
	refresh, refreshClaims, err := s.mint(p, jwtx.KindRefresh, s.RefreshTTL, deviceFP, now)
	if err != nil {
		return nil, err
	}

	if s.SingleSession {
		if err := s.register(ctx, p.ID, accessClaims, refreshClaims); err != nil {
			return nil, err
		}
	}

	metrics.TokensIssued.WithLabelValues(jwtx.KindAccess).Inc()
	metrics.TokensIssued.WithLabelValues(jwtx.KindRefresh).Inc()

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.AccessTTL.Seconds()),
	}, nil
}

func (s *TokenService) mint(p domain.Principal, kind string, ttl time.Duration, deviceFP string, now time.Time) (string, jwtx.Claims, error) {
	claims := jwtx.NewClaims(
		p.Username,
		idx.New().String(),
		kind,
		p.ID,
		p.Authorities,
		ttl,
		s.Issuer,
		s.Audience,
		now,
	)
	claims.ProfileID = p.ProfileID
	if s.DeviceBinding && deviceFP != fingerprint.None {
		claims.Fingerprint = deviceFP
	}

	token, err := s.Codec.Encode(claims)
	if err != nil {
		if errors.Is(err, jwtx.ErrBadAuthority) || errors.Is(err, jwtx.ErrBadPrincipal) {
			return "", jwtx.Claims{}, err
		}
		return "", jwtx.Claims{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return token, claims, nil
}

func (s *TokenService) register(ctx context.Context, principalID int64, claims ...jwtx.Claims) error {
	for _, c := range claims {
		sessionCtx, cancel := s.sessionCtx(ctx)
		err := s.Sessions.SetCurrent(sessionCtx, c.TokenKind, principalID, c.ID, c.RemainingLife(time.Now().UTC()))
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate runs the full check sequence on a presented token. The checks run
// in a fixed order: revocation first (even for tokens that will not verify),
// then signature and time window, then claim schema, kind, device binding and
// finally the single-session check.
func (s *TokenService) Validate(ctx context.Context, token, kind, deviceFP string) (jwtx.Claims, error) {
	log := slogx.FromContext(ctx)

	// 1. Revocation. Uses the unverified jti so a revoked token is refused
	// no matter what else is wrong with it.
	if jti, ok := jwtx.ExtractTokenID(token); ok {
		revoked, err := s.isRevoked(ctx, jti)
		if err != nil {
			if !s.FailOpen {
				metrics.Validations.WithLabelValues("backend_error").Inc()
				return jwtx.Claims{}, err
			}
			log.Warn("revocation check unavailable, continuing", "err", err)
		}
		if revoked {
			metrics.Validations.WithLabelValues("revoked").Inc()
			return jwtx.Claims{}, ErrRevoked
		}
	}

	// 2. Signature, time window and claim schema.
	claims, err := s.Codec.Decode(token)
	if err != nil {
		metrics.Validations.WithLabelValues(outcomeLabel(err)).Inc()
		return jwtx.Claims{}, err
	}

	// 3. Kind. A refresh token is never accepted as an access token, or
	// the other way around.
	if claims.TokenKind != kind {
		metrics.Validations.WithLabelValues("wrong_kind").Inc()
		return jwtx.Claims{}, ErrWrongKind
	}

	// 4. Device binding. Tokens minted without a fingerprint, and requests
	// from clients that send no identifying headers, skip the check. The
	// skip is logged so degraded bindings stay visible.
	if s.DeviceBinding && claims.Fingerprint != "" {
		switch {
		case deviceFP == fingerprint.None:
			log.Warn("device binding skipped, no computable fingerprint on request", "jti", claims.ID)
		case claims.Fingerprint != deviceFP:
			metrics.Validations.WithLabelValues("device_mismatch").Inc()
			return jwtx.Claims{}, ErrDeviceMismatch
		}
	}

	// 5. Single session. The token must still be the current one of its
	// kind for this principal.
	if s.SingleSession {
		sessionCtx, cancel := s.sessionCtx(ctx)
		current, err := s.Sessions.IsCurrent(sessionCtx, claims.TokenKind, claims.UserID, claims.ID)
		cancel()
		if err != nil {
			if !s.FailOpen {
				metrics.Validations.WithLabelValues("backend_error").Inc()
				return jwtx.Claims{}, err
			}
			log.Warn("session check unavailable, continuing", "err", err)
		} else if !current {
			metrics.Validations.WithLabelValues("superseded").Inc()
			return jwtx.Claims{}, ErrSessionSuperseded
		}
	}

	metrics.Validations.WithLabelValues("ok").Inc()
	return claims, nil
}

// Refresh rotates a token pair. The old refresh token is revoked for the rest
// of its life so it cannot be replayed, and the new pair supersedes both
// current sessions.
func (s *TokenService) Refresh(ctx context.Context, refreshToken, deviceFP string) (*domain.TokenPair, error) {
	claims, err := s.Validate(ctx, refreshToken, jwtx.KindRefresh, deviceFP)
	if err != nil {
		return nil, err
	}

	p, err := s.Store.Principals().GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !p.Enabled {
		return nil, ErrAccountDisabled
	}

	if err := s.revoke(ctx, claims); err != nil {
		return nil, err
	}

	pair, err := s.Issue(ctx, p, deviceFP)
	if err != nil {
		return nil, err
	}

	s.Audit.Record(ctx, audit.OpRefresh, &p.ID, "jti="+claims.ID)
	return pair, nil
}

// Revoke puts the token on the revocation list for the rest of its life.
// Revoking an expired or already-revoked token is a no-op; the operation is
// idempotent.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	claims, err := s.Codec.Decode(token)
	if err != nil {
		if errors.Is(err, jwtx.ErrExpired) {
			// Nothing left to deny.
			return nil
		}
		return err
	}
	if err := s.revoke(ctx, claims); err != nil {
		return err
	}

	metrics.Revocations.Inc()
	s.Audit.Record(ctx, audit.OpTokenRevoked, &claims.UserID, "jti="+claims.ID)
	return nil
}

func (s *TokenService) revoke(ctx context.Context, claims jwtx.Claims) error {
	sessionCtx, cancel := s.sessionCtx(ctx)
	defer cancel()
	return s.Sessions.Revoke(sessionCtx, claims.ID, claims.RemainingLife(time.Now().UTC()))
}

// ClearSessions drops the current-token entries for both kinds, e.g. on
// logout.
func (s *TokenService) ClearSessions(ctx context.Context, principalID int64) error {
	for _, kind := range []string{jwtx.KindAccess, jwtx.KindRefresh} {
		sessionCtx, cancel := s.sessionCtx(ctx)
		err := s.Sessions.Clear(sessionCtx, kind, principalID)
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *TokenService) isRevoked(ctx context.Context, jti string) (bool, error) {
	sessionCtx, cancel := s.sessionCtx(ctx)
	defer cancel()
	return s.Sessions.IsRevoked(sessionCtx, jti)
}

func (s *TokenService) sessionCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.StoreTimeout)
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, jwtx.ErrExpired):
		return "expired"
	case errors.Is(err, jwtx.ErrNotYetValid):
		return "not_yet_valid"
	case errors.Is(err, jwtx.ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, jwtx.ErrUnsupportedAlgorithm):
		return "unsupported_algorithm"
	case errors.Is(err, jwtx.ErrSchemaViolation):
		return "schema_violation"
	case errors.Is(err, jwtx.ErrMalformed):
		return "malformed"
	default:
		return "error"
	}
}
