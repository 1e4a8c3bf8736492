package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/saatphere/saatphere/internal/auth/domain"
	"github.com/saatphere/saatphere/internal/auth/service"
	"github.com/saatphere/saatphere/pkg/fingerprint"
	"github.com/saatphere/saatphere/pkg/httpx"
	"github.com/saatphere/saatphere/pkg/slogx"
)

// LoginHandler serves POST /v1/auth/login. A successful login issues a fresh
// token pair and, when a cookie name is configured, mirrors the access token
// into an HttpOnly cookie for browser clients.
type LoginHandler struct {
	LoginService *service.LoginService
	CookieName   string
	CookieTTL    time.Duration
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ServeHTTP godoc
//
//	@Summary		Login
//	@Description	Verifies credentials and issues an access/refresh token pair.
//	@Description	Only one session per account is active at a time: logging in again supersedes earlier tokens.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		loginRequest	true	"Credentials"
//	@Success		200		{object}	domain.TokenPair
//	@Failure		400		{object}	httpx.ErrorResponse
//	@Failure		401		{object}	httpx.ErrorResponse
//	@Router			/v1/auth/login [post].
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	pair, _, err := h.LoginService.Login(ctx, req.Username, req.Password, fingerprint.FromRequest(r))
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "username or password is incorrect")
		return
	case errors.Is(err, service.ErrAccountDisabled):
		httpx.WriteError(w, http.StatusUnauthorized, "account_disabled", "account is disabled")
		return
	case err != nil:
		log.Error("login failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	h.setCookie(w, pair)
	httpx.WriteJSON(w, http.StatusOK, pair)
}

func (h *LoginHandler) setCookie(w http.ResponseWriter, pair *domain.TokenPair) {
	if h.CookieName == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.CookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		MaxAge:   int(h.CookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
