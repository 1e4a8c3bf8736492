package service

import (
	"context"
	"errors"

	"github.com/saatphere/saatphere/internal/auth/audit"
	"github.com/saatphere/saatphere/internal/auth/domain"
	"github.com/saatphere/saatphere/internal/auth/metrics"
	"github.com/saatphere/saatphere/internal/auth/store"
	"github.com/saatphere/saatphere/pkg/cryptox"
	"github.com/saatphere/saatphere/pkg/jwtx"
	"github.com/saatphere/saatphere/pkg/slogx"
)

type LoginService struct {
	Store  store.Store
	Tokens *TokenService
	Audit  *audit.Recorder
}

// Login verifies the credentials and issues a fresh token pair. Under
// single-session mode this supersedes any tokens issued earlier.
func (s *LoginService) Login(ctx context.Context, username, password, deviceFP string) (*domain.TokenPair, domain.Principal, error) {
	log := slogx.FromContext(ctx)

	p, err := s.Store.Principals().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.Logins.WithLabelValues("bad_credentials").Inc()
			s.Audit.Record(ctx, audit.OpLoginFailed, nil, "username="+username)
			return nil, domain.Principal{}, ErrInvalidCredentials
		}
		metrics.Logins.WithLabelValues("error").Inc()
		return nil, domain.Principal{}, err
	}

	if err := cryptox.VerifyPassword(password, p.PasswordHash); err != nil {
		metrics.Logins.WithLabelValues("bad_credentials").Inc()
		s.Audit.Record(ctx, audit.OpLoginFailed, &p.ID, "")
		log.Info("login rejected", "username", username)
		return nil, domain.Principal{}, ErrInvalidCredentials
	}

	if !p.Enabled {
		metrics.Logins.WithLabelValues("disabled").Inc()
		s.Audit.Record(ctx, audit.OpLoginFailed, &p.ID, "account disabled")
		return nil, domain.Principal{}, ErrAccountDisabled
	}

	pair, err := s.Tokens.Issue(ctx, p, deviceFP)
	if err != nil {
		metrics.Logins.WithLabelValues("error").Inc()
		return nil, domain.Principal{}, err
	}

	metrics.Logins.WithLabelValues("ok").Inc()
	s.Audit.Record(ctx, audit.OpLogin, &p.ID, "")
	return pair, p, nil
}

// Logout revokes the presented token for the rest of its life and clears both
// session slots, so the paired refresh token stops working too.
func (s *LoginService) Logout(ctx context.Context, claims jwtx.Claims) error {
	if err := s.Tokens.revoke(ctx, claims); err != nil {
		return err
	}
	if err := s.Tokens.ClearSessions(ctx, claims.UserID); err != nil {
		return err
	}

	s.Audit.Record(ctx, audit.OpLogout, &claims.UserID, "")
	return nil
}
