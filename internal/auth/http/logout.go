package http

import (
	"net/http"

	"github.com/saatphere/saatphere/internal/auth/service"
	"github.com/saatphere/saatphere/pkg/httpx"
	"github.com/saatphere/saatphere/pkg/slogx"
)

// LogoutHandler serves POST /v1/auth/logout. The presented access token is
// revoked and both session slots are cleared, which also kills the paired
// refresh token.
type LogoutHandler struct {
	LoginService *service.LoginService
	CookieName   string
}

// ServeHTTP godoc
//
//	@Summary		Logout
//	@Description	Revokes the current token pair and clears the session cookie.
//	@Tags			Auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		204	"Logged out"
//	@Failure		401	{object}	httpx.ErrorResponse
//	@Router			/v1/auth/logout [post].
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	claims, ok := httpx.ClaimsFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	if err := h.LoginService.Logout(ctx, claims); err != nil {
		log.Error("logout failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	if h.CookieName != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     h.CookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}
