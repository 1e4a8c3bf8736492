package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/saatphere/saatphere/internal/auth/service"
	"github.com/saatphere/saatphere/internal/auth/session"
	"github.com/saatphere/saatphere/pkg/fingerprint"
	"github.com/saatphere/saatphere/pkg/httpx"
	"github.com/saatphere/saatphere/pkg/jwtx"
	"github.com/saatphere/saatphere/pkg/slogx"
)

// AuthnMiddleware runs the token checks on every request and injects the
// verified claims into the context.
//
// Most failures leave the request unauthenticated instead of terminating it:
// a downstream RequireAuthentication gate decides whether anonymous access is
// acceptable for the route. Two cases are different. A device mismatch is
// refused on the spot, because the token itself is fine and would otherwise
// reach handlers from the wrong device. A backend or configuration failure is
// a 500, because the service cannot tell a good token from a bad one and must
// not guess.
func AuthnMiddleware(tokens *service.TokenService, cookieName string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			// CORS preflights carry no credentials.
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := extractToken(r, cookieName)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			if !jwtx.WellFormed(raw) {
				log.Warn("authn: token not well-formed")
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.Validate(ctx, raw, jwtx.KindAccess, fingerprint.FromRequest(r))
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(httpx.ContextWithAuth(ctx, claims)))

			case errors.Is(err, service.ErrDeviceMismatch):
				log.Warn("authn: device mismatch")
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="device mismatch"`)
				httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "token not valid for this device")

			case errors.Is(err, session.ErrUnavailable), errors.Is(err, service.ErrConfiguration):
				log.Error("authn: cannot evaluate token", "err", err)
				httpx.WriteError(w, http.StatusInternalServerError, "server_error", "unable to evaluate credentials")

			default:
				// Expired, revoked, superseded, bad signature and the
				// rest: continue unauthenticated.
				log.Warn("authn: token rejected", "err", err)
				next.ServeHTTP(w, r)
			}
		})
	}
}

// extractToken pulls the access token from the Authorization header, falling
// back to the session cookie for browser clients.
func extractToken(r *http.Request, cookieName string) (string, bool) {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))
		return raw, raw != ""
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}
