package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/saatphere/saatphere/internal/auth/audit"
	"github.com/saatphere/saatphere/internal/auth/domain"
	authhttp "github.com/saatphere/saatphere/internal/auth/http"
	"github.com/saatphere/saatphere/internal/auth/service"
	"github.com/saatphere/saatphere/internal/auth/session"
	"github.com/saatphere/saatphere/internal/auth/store/drivers/sqlite"
	"github.com/saatphere/saatphere/pkg/cryptox"
	"github.com/saatphere/saatphere/pkg/jwtx"
	"github.com/saatphere/saatphere/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const cookieName = "sp_session"

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "http-pepper")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type harness struct {
	router   *authhttp.Router
	tokens   *service.TokenService
	sessions session.Store
}

func newHarness(t *testing.T) *harness {
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
	login := &service.LoginService{Store: st, Tokens: tokens, Audit: recorder}
	register := &service.RegistrationService{Store: st, Audit: recorder}

	require.NoError(t, register.EnsureAdmin(context.Background(), "admin", "admin-password"))

	logger := slogx.New(slogx.Config{Service: "auth-test", Level: "error", Format: "text"})
	router := authhttp.NewRouter("test", cookieName, 5*time.Minute, st, sessions, logger)
	router.TokenService = tokens
	router.LoginService = login
	router.RegistrationService = register
	router.ApplyRoutes()

	return &harness{router: router, tokens: tokens, sessions: sessions}
}

func (h *harness) do(t *testing.T, method, path, body string, mod func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if mod != nil {
		mod(r)
	}

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, r)
	return rec
}

func asDevice(ua, addr string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("User-Agent", ua)
		r.Header.Set("Accept-Language", "en-IN")
		r.Header.Set("Accept-Encoding", "gzip")
		if addr != "" {
			r.RemoteAddr = addr
		}
	}
}

func withBearer(token string, mods ...func(*http.Request)) func(*http.Request) {
	return func(r *http.Request) {
		for _, mod := range mods {
			mod(r)
		}
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func (h *harness) login(t *testing.T, username, password, ua, addr string) domain.TokenPair {
	t.Helper()

	rec := h.do(t, http.MethodPost, "/v1/auth/login",
		`{"username":"`+username+`","password":"`+password+`"}`,
		asDevice(ua, addr))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pair domain.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	return pair
}

func TestLoginEndpoint(t *testing.T) {
	h := newHarness(t)

	t.Run("success sets cookie", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/v1/auth/login",
			`{"username":"admin","password":"admin-password"}`,
			asDevice("firefox", "10.1.0.1:1000"))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		var found bool
		for _, c := range rec.Result().Cookies() {
			if c.Name == cookieName && c.Value != "" {
				found = true
				require.True(t, c.HttpOnly)
			}
		}
		require.True(t, found, "session cookie not set")
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/v1/auth/login",
			`{"username":"admin","password":"nope"}`,
			asDevice("firefox", "10.1.0.2:1000"))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Body.String(), "invalid_credentials")
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/v1/auth/login", `{}`,
			asDevice("firefox", "10.1.0.3:1000"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUserInfoEndpoint(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "admin", "admin-password", "firefox", "10.2.0.1:1000")

	t.Run("bearer header", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/v1/userinfo", "",
			withBearer(pair.AccessToken, asDevice("firefox", "")))
		require.Equal(t, http.StatusOK, rec.Code)

		var info authhttp.UserInfoResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
		require.Equal(t, "admin", info.Username)
		require.Contains(t, info.Authorities, service.RoleAdmin)
	})

	t.Run("cookie fallback", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/v1/userinfo", "", func(r *http.Request) {
			asDevice("firefox", "")(r)
			r.AddCookie(&http.Cookie{Name: cookieName, Value: pair.AccessToken})
		})
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("no token", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/v1/userinfo", "", asDevice("firefox", ""))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token leaves request unauthenticated", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/v1/userinfo", "",
			withBearer("not-a-token", asDevice("firefox", "")))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "authentication required")
	})
}

func TestDeviceMismatchTerminatesRequest(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "admin", "admin-password", "firefox", "10.3.0.1:1000")

	rec := h.do(t, http.MethodGet, "/v1/userinfo", "",
		withBearer(pair.AccessToken, asDevice("chrome", "")))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "not valid for this device")
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "device mismatch")
}

func TestBackendOutageIsServerError(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "admin", "admin-password", "firefox", "10.4.0.1:1000")

	// Kill the backend out from under the service.
	require.NoError(t, h.sessions.Close())
	h.tokens.Sessions = unreachableSessions{}

	rec := h.do(t, http.MethodGet, "/v1/userinfo", "",
		withBearer(pair.AccessToken, asDevice("firefox", "")))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "server_error")
}

type unreachableSessions struct{}

func (unreachableSessions) SetCurrent(context.Context, string, int64, string, time.Duration) error {
	return session.ErrUnavailable
}

func (unreachableSessions) IsCurrent(context.Context, string, int64, string) (bool, error) {
	return false, session.ErrUnavailable
}

func (unreachableSessions) Clear(context.Context, string, int64) error {
	return session.ErrUnavailable
}

func (unreachableSessions) Revoke(context.Context, string, time.Duration) error {
	return session.ErrUnavailable
}

func (unreachableSessions) IsRevoked(context.Context, string) (bool, error) {
	return false, session.ErrUnavailable
}

func (unreachableSessions) Ping(context.Context) error { return session.ErrUnavailable }
func (unreachableSessions) Close() error               { return nil }

func TestRefreshEndpoint(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "admin", "admin-password", "firefox", "10.5.0.1:1000")

	rec := h.do(t, http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"`+pair.RefreshToken+`"}`,
		asDevice("firefox", "10.5.0.1:1000"))
	require.Equal(t, http.StatusOK, rec.Code)

	var fresh domain.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fresh))
	require.NotEqual(t, pair.RefreshToken, fresh.RefreshToken)

	t.Run("replay of rotated token rejected", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/v1/auth/refresh",
			`{"refresh_token":"`+pair.RefreshToken+`"}`,
			asDevice("firefox", "10.5.0.2:1000"))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Body.String(), "invalid_grant")
	})

	t.Run("missing body", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/v1/auth/refresh", `{}`,
			asDevice("firefox", "10.5.0.3:1000"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogoutEndpoint(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "admin", "admin-password", "firefox", "10.6.0.1:1000")

	rec := h.do(t, http.MethodPost, "/v1/auth/logout", "",
		withBearer(pair.AccessToken, asDevice("firefox", "")))
	require.Equal(t, http.StatusNoContent, rec.Code)

	t.Run("clears cookie", func(t *testing.T) {
		var cleared bool
		for _, c := range rec.Result().Cookies() {
			if c.Name == cookieName && c.MaxAge < 0 {
				cleared = true
			}
		}
		require.True(t, cleared)
	})

	t.Run("token is dead afterwards", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/v1/userinfo", "",
			withBearer(pair.AccessToken, asDevice("firefox", "")))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRevokeEndpoint(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "admin", "admin-password", "firefox", "10.7.0.1:1000")

	rec := h.do(t, http.MethodPost, "/v1/auth/revoke",
		`{"token":"`+pair.AccessToken+`"}`,
		asDevice("firefox", "10.7.0.1:1000"))
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("unknown token still returns 200", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/v1/auth/revoke",
			`{"token":"ey.not.real"}`,
			asDevice("firefox", "10.7.0.2:1000"))
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAdminEndpoints(t *testing.T) {
	h := newHarness(t)
	adminPair := h.login(t, "admin", "admin-password", "firefox", "10.8.0.1:1000")

	t.Run("bulk register", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/v1/admin/users",
			`{"users":[{"username":"import.one"},{"username":"import.two","password":"chosen-pass"}]}`,
			withBearer(adminPair.AccessToken, asDevice("firefox", "")))
		require.Equal(t, http.StatusCreated, rec.Code)

		var out struct {
			Created []struct {
				Username     string `json:"username"`
				TempPassword string `json:"tempPassword"`
			} `json:"created"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		require.Len(t, out.Created, 2)
		require.NotEmpty(t, out.Created[0].TempPassword)
		require.Empty(t, out.Created[1].TempPassword)
	})

	t.Run("non-admin forbidden", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/v1/auth/register",
			`{"username":"plain.user","password":"plain-password"}`,
			asDevice("safari", "10.8.0.2:1000"))
		require.Equal(t, http.StatusCreated, rec.Code)

		userPair := h.login(t, "plain.user", "plain-password", "safari", "10.8.0.3:1000")

		rec = h.do(t, http.MethodPost, "/v1/admin/users",
			`{"users":[{"username":"sneaky"}]}`,
			withBearer(userPair.AccessToken, asDevice("safari", "")))
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("audit trail", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/v1/admin/audit/accounts", "",
			withBearer(adminPair.AccessToken, asDevice("firefox", "")))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "bulk_register")
	})
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = h.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOptionsSkipsAuthn(t *testing.T) {
	h := newHarness(t)

	reached := false
	handler := authhttp.AuthnMiddleware(h.tokens, cookieName)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			w.WriteHeader(http.StatusOK)
		}))

	// Preflight with a garbage cookie must pass straight through without
	// touching the token checks.
	r := httptest.NewRequest(http.MethodOptions, "/v1/auth/logout", nil)
	r.AddCookie(&http.Cookie{Name: cookieName, Value: "garbage"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	require.True(t, reached)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPasswordChangeEndpoint(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "admin", "admin-password", "firefox", "10.30.0.1:1000")

	t.Run("wrong current password", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/v1/auth/password",
			`{"current_password":"not-the-password","new_password":"brand-new-password"}`,
			withBearer(pair.AccessToken, asDevice("firefox", "10.30.0.2:1000")))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Body.String(), "invalid_grant")
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/v1/auth/password",
			`{"current_password":"admin-password"}`,
			withBearer(pair.AccessToken, asDevice("firefox", "10.30.0.3:1000")))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("success kills every session", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/v1/auth/password",
			`{"current_password":"admin-password","new_password":"brand-new-password"}`,
			withBearer(pair.AccessToken, asDevice("firefox", "10.30.0.4:1000")))
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		// The token used for the change is dead too.
		rec = h.do(t, http.MethodGet, "/v1/userinfo", "",
			withBearer(pair.AccessToken, asDevice("firefox", "10.30.0.5:1000")))
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = h.do(t, http.MethodPost, "/v1/auth/login",
			`{"username":"admin","password":"admin-password"}`,
			asDevice("firefox", "10.30.0.6:1000"))
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		h.login(t, "admin", "brand-new-password", "firefox", "10.30.0.7:1000")
	})
}

func TestAttachProfileEndpoint(t *testing.T) {
	h := newHarness(t)
	adminPair := h.login(t, "admin", "admin-password", "firefox", "10.31.0.1:1000")

	rec := h.do(t, http.MethodPost, "/v1/auth/register",
		`{"username":"meera.k","password":"S3cret-password"}`,
		asDevice("chrome", "10.31.0.2:1000"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		UserID int64 `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = h.do(t, http.MethodPost, fmt.Sprintf("/v1/admin/users/%d/profile", created.UserID),
		`{"profileId":7}`,
		withBearer(adminPair.AccessToken, asDevice("firefox", "10.31.0.3:1000")))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	// Tokens minted after the attach carry the profile id claim.
	pair := h.login(t, "meera.k", "S3cret-password", "chrome", "10.31.0.4:1000")
	rec = h.do(t, http.MethodGet, "/v1/userinfo", "",
		withBearer(pair.AccessToken, asDevice("chrome", "10.31.0.5:1000")))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"userProfileId":7`)

	t.Run("unknown account", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/v1/admin/users/999999/profile",
			`{"profileId":7}`,
			withBearer(adminPair.AccessToken, asDevice("firefox", "10.31.0.6:1000")))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}
