package service_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/saatphere/saatphere/internal/auth/audit"
	"github.com/saatphere/saatphere/internal/auth/domain"
	"github.com/saatphere/saatphere/internal/auth/service"
	"github.com/saatphere/saatphere/internal/auth/session"
	"github.com/saatphere/saatphere/internal/auth/store"
	"github.com/saatphere/saatphere/internal/auth/store/drivers/sqlite"
	"github.com/saatphere/saatphere/pkg/cryptox"
	"github.com/saatphere/saatphere/pkg/fingerprint"
	"github.com/saatphere/saatphere/pkg/jwtx"
	"github.com/saatphere/saatphere/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "service-pepper")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type services struct {
	tokens   *service.TokenService
	login    *service.LoginService
	register *service.RegistrationService
	store    store.Store
	sessions session.Store
}

func newServices(t *testing.T) *services {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	codec, err := jwtx.NewCodec([]byte("test-signing-key-test-signing-key-test"), 0)
	require.NoError(t, err)

	sessions := session.NewMemory()
	t.Cleanup(func() { _ = sessions.Close() })

	recorder := audit.NewRecorder(st.Audit())

	tokens := &service.TokenService{
		Codec:         codec,
		Sessions:      sessions,
		Store:         st,
		Audit:         recorder,
		Issuer:        "saatphere-auth",
		Audience:      "saatphere-api",
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    time.Hour,
		SingleSession: true,
		DeviceBinding: true,
		StoreTimeout:  2 * time.Second,
	}

	return &services{
		tokens:   tokens,
		login:    &service.LoginService{Store: st, Tokens: tokens, Audit: recorder},
		register: &service.RegistrationService{Store: st, Audit: recorder},
		store:    st,
		sessions: sessions,
	}
}

func createAccount(t *testing.T, s *services, username, password string) domain.Principal {
	t.Helper()
	res, err := s.register.Register(context.Background(), service.Registration{
		Username: username,
		Password: password,
	}, false)
	require.NoError(t, err)
	return res.Principal
}

func deviceFP(ua string) string {
	h := http.Header{}
	h.Set("User-Agent", ua)
	h.Set("Accept-Language", "en-IN")
	h.Set("Accept-Encoding", "gzip")
	return fingerprint.Compute(h)
}

func TestLoginAndValidate(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	createAccount(t, s, "asha.rao", "S3cret-password")

	fp := deviceFP("firefox")
	pair, p, err := s.login.Login(ctx, "asha.rao", "S3cret-password", fp)
	require.NoError(t, err)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, int64(300), pair.ExpiresIn)

	claims, err := s.tokens.Validate(ctx, pair.AccessToken, jwtx.KindAccess, fp)
	require.NoError(t, err)
	require.Equal(t, p.ID, claims.UserID)
	require.Equal(t, "asha.rao", claims.Subject)
	require.Equal(t, []string{service.RoleUser}, claims.Authorities)
}

func TestLoginRejections(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	p := createAccount(t, s, "asha.rao", "S3cret-password")

	t.Run("unknown user", func(t *testing.T) {
		_, _, err := s.login.Login(ctx, "nobody", "whatever", fingerprint.None)
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := s.login.Login(ctx, "asha.rao", "wrong", fingerprint.None)
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	})

	t.Run("disabled account", func(t *testing.T) {
		require.NoError(t, s.register.Disable(ctx, p.ID))
		_, _, err := s.login.Login(ctx, "asha.rao", "S3cret-password", fingerprint.None)
		require.ErrorIs(t, err, service.ErrAccountDisabled)
	})
}

func TestSingleSessionSupersedes(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	createAccount(t, s, "asha.rao", "S3cret-password")

	fp := deviceFP("firefox")
	first, _, err := s.login.Login(ctx, "asha.rao", "S3cret-password", fp)
	require.NoError(t, err)
	second, _, err := s.login.Login(ctx, "asha.rao", "S3cret-password", fp)
	require.NoError(t, err)

	// The second login silently supersedes the first.
	_, err = s.tokens.Validate(ctx, first.AccessToken, jwtx.KindAccess, fp)
	require.ErrorIs(t, err, service.ErrSessionSuperseded)

	_, err = s.tokens.Validate(ctx, second.AccessToken, jwtx.KindAccess, fp)
	require.NoError(t, err)

	t.Run("refresh session superseded too", func(t *testing.T) {
		_, err := s.tokens.Refresh(ctx, first.RefreshToken, fp)
		require.ErrorIs(t, err, service.ErrSessionSuperseded)
	})
}

func TestDeviceBinding(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	createAccount(t, s, "asha.rao", "S3cret-password")

	fp := deviceFP("firefox")
	pair, _, err := s.login.Login(ctx, "asha.rao", "S3cret-password", fp)
	require.NoError(t, err)

	t.Run("same device accepted", func(t *testing.T) {
		_, err := s.tokens.Validate(ctx, pair.AccessToken, jwtx.KindAccess, fp)
		require.NoError(t, err)
	})

	t.Run("different device rejected", func(t *testing.T) {
		_, err := s.tokens.Validate(ctx, pair.AccessToken, jwtx.KindAccess, deviceFP("chrome"))
		require.ErrorIs(t, err, service.ErrDeviceMismatch)
	})

	t.Run("headerless client skips the check", func(t *testing.T) {
		_, err := s.tokens.Validate(ctx, pair.AccessToken, jwtx.KindAccess, fingerprint.None)
		require.NoError(t, err)
	})

	t.Run("token minted without fingerprint skips the check", func(t *testing.T) {
		pair, _, err := s.login.Login(ctx, "asha.rao", "S3cret-password", fingerprint.None)
		require.NoError(t, err)

		_, err = s.tokens.Validate(ctx, pair.AccessToken, jwtx.KindAccess, deviceFP("chrome"))
		require.NoError(t, err)
	})
}

func TestValidateRejectsWrongKind(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	createAccount(t, s, "asha.rao", "S3cret-password")

	pair, _, err := s.login.Login(ctx, "asha.rao", "S3cret-password", fingerprint.None)
	require.NoError(t, err)

	_, err = s.tokens.Validate(ctx, pair.RefreshToken, jwtx.KindAccess, fingerprint.None)
	require.ErrorIs(t, err, service.ErrWrongKind)

	_, err = s.tokens.Validate(ctx, pair.AccessToken, jwtx.KindRefresh, fingerprint.None)
	require.ErrorIs(t, err, service.ErrWrongKind)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	createAccount(t, s, "asha.rao", "S3cret-password")

	pair, _, err := s.login.Login(ctx, "asha.rao", "S3cret-password", fingerprint.None)
	require.NoError(t, err)

	require.NoError(t, s.tokens.Revoke(ctx, pair.AccessToken))

	_, err = s.tokens.Validate(ctx, pair.AccessToken, jwtx.KindAccess, fingerprint.None)
	require.ErrorIs(t, err, service.ErrRevoked)

	t.Run("revoke is idempotent", func(t *testing.T) {
		require.NoError(t, s.tokens.Revoke(ctx, pair.AccessToken))
	})

	t.Run("revocation beats every other failure", func(t *testing.T) {
		// Present the revoked token with a tampered signature; the
		// revocation check still fires first.
		tampered := pair.AccessToken + "x"
		_, err := s.tokens.Validate(ctx, tampered, jwtx.KindAccess, fingerprint.None)
		require.ErrorIs(t, err, service.ErrRevoked)
	})
}

func TestRefreshRotation(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	createAccount(t, s, "asha.rao", "S3cret-password")

	fp := deviceFP("firefox")
	old, _, err := s.login.Login(ctx, "asha.rao", "S3cret-password", fp)
	require.NoError(t, err)

	fresh, err := s.tokens.Refresh(ctx, old.RefreshToken, fp)
	require.NoError(t, err)
	require.NotEqual(t, old.AccessToken, fresh.AccessToken)
	require.NotEqual(t, old.RefreshToken, fresh.RefreshToken)

	t.Run("new pair is valid", func(t *testing.T) {
		_, err := s.tokens.Validate(ctx, fresh.AccessToken, jwtx.KindAccess, fp)
		require.NoError(t, err)
	})

	t.Run("old refresh token cannot be replayed", func(t *testing.T) {
		_, err := s.tokens.Refresh(ctx, old.RefreshToken, fp)
		require.ErrorIs(t, err, service.ErrRevoked)
	})

	t.Run("old access token is superseded", func(t *testing.T) {
		_, err := s.tokens.Validate(ctx, old.AccessToken, jwtx.KindAccess, fp)
		require.ErrorIs(t, err, service.ErrSessionSuperseded)
	})

	t.Run("disabled account cannot refresh", func(t *testing.T) {
		p, err := s.store.Principals().GetByUsername(ctx, "asha.rao")
		require.NoError(t, err)
		require.NoError(t, s.register.Disable(ctx, p.ID))

		_, err = s.tokens.Refresh(ctx, fresh.RefreshToken, fp)
		require.ErrorIs(t, err, service.ErrAccountDisabled)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	createAccount(t, s, "asha.rao", "S3cret-password")

	pair, _, err := s.login.Login(ctx, "asha.rao", "S3cret-password", fingerprint.None)
	require.NoError(t, err)

	claims, err := s.tokens.Validate(ctx, pair.AccessToken, jwtx.KindAccess, fingerprint.None)
	require.NoError(t, err)

	require.NoError(t, s.login.Logout(ctx, claims))

	_, err = s.tokens.Validate(ctx, pair.AccessToken, jwtx.KindAccess, fingerprint.None)
	require.ErrorIs(t, err, service.ErrRevoked)

	// The paired refresh token stops working because its session slot is
	// cleared.
	_, err = s.tokens.Refresh(ctx, pair.RefreshToken, fingerprint.None)
	require.ErrorIs(t, err, service.ErrSessionSuperseded)
}

// brokenSessions fails every call, simulating an unreachable backend.
type brokenSessions struct{}

func (brokenSessions) SetCurrent(context.Context, string, int64, string, time.Duration) error {
	return session.ErrUnavailable
}

func (brokenSessions) IsCurrent(context.Context, string, int64, string) (bool, error) {
	return false, session.ErrUnavailable
}

func (brokenSessions) Clear(context.Context, string, int64) error {
	return session.ErrUnavailable
}

func (brokenSessions) Revoke(context.Context, string, time.Duration) error {
	return session.ErrUnavailable
}

func (brokenSessions) IsRevoked(context.Context, string) (bool, error) {
	return false, session.ErrUnavailable
}

func (brokenSessions) Ping(context.Context) error { return session.ErrUnavailable }
func (brokenSessions) Close() error               { return nil }

func TestBackendOutageFailsClosed(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	createAccount(t, s, "asha.rao", "S3cret-password")

	pair, _, err := s.login.Login(ctx, "asha.rao", "S3cret-password", fingerprint.None)
	require.NoError(t, err)

	s.tokens.Sessions = brokenSessions{}

	t.Run("fail closed by default", func(t *testing.T) {
		_, err := s.tokens.Validate(ctx, pair.AccessToken, jwtx.KindAccess, fingerprint.None)
		require.ErrorIs(t, err, session.ErrUnavailable)
	})

	t.Run("fail open when configured", func(t *testing.T) {
		s.tokens.FailOpen = true
		defer func() { s.tokens.FailOpen = false }()

		_, err := s.tokens.Validate(ctx, pair.AccessToken, jwtx.KindAccess, fingerprint.None)
		require.NoError(t, err)
	})
}

func TestValidateExpiredToken(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	createAccount(t, s, "asha.rao", "S3cret-password")

	s.tokens.AccessTTL = -time.Minute
	pair, _, err := s.login.Login(ctx, "asha.rao", "S3cret-password", fingerprint.None)
	require.NoError(t, err)

	_, err = s.tokens.Validate(ctx, pair.AccessToken, jwtx.KindAccess, fingerprint.None)
	require.ErrorIs(t, err, jwtx.ErrExpired)

	t.Run("revoking an expired token is a no-op", func(t *testing.T) {
		require.NoError(t, s.tokens.Revoke(ctx, pair.AccessToken))
	})
}

func TestIssueRejectsIncompletePrincipal(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)

	cases := map[string]domain.Principal{
		"zero id":        {Username: "asha.rao", Authorities: []string{service.RoleUser}, Enabled: true},
		"empty username": {ID: 7, Authorities: []string{service.RoleUser}, Enabled: true},
		"no authorities": {ID: 7, Username: "asha.rao", Enabled: true},
	}

	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.tokens.Issue(ctx, p, fingerprint.None)
			require.ErrorIs(t, err, jwtx.ErrBadPrincipal)
		})
	}
}

func TestValidateLogsSkippedDeviceBinding(t *testing.T) {
	s := newServices(t)
	createAccount(t, s, "asha.rao", "S3cret-password")

	fp := deviceFP("firefox")
	pair, _, err := s.login.Login(context.Background(), "asha.rao", "S3cret-password", fp)
	require.NoError(t, err)

	var buf bytes.Buffer
	ctx := slogx.WithContext(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	// A bound token presented without a computable fingerprint still
	// validates, but the skipped check leaves a trace in the logs.
	_, err = s.tokens.Validate(ctx, pair.AccessToken, jwtx.KindAccess, fingerprint.None)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "device binding skipped")
}
