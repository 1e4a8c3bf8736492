package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/saatphere/saatphere/internal/auth/service"
	"github.com/saatphere/saatphere/internal/auth/session"
	"github.com/saatphere/saatphere/pkg/fingerprint"
	"github.com/saatphere/saatphere/pkg/httpx"
	"github.com/saatphere/saatphere/pkg/jwtx"
	"github.com/saatphere/saatphere/pkg/slogx"
)

// RefreshHandler serves POST /v1/auth/refresh. The old refresh token is
// revoked as part of the rotation; replaying it fails.
type RefreshHandler struct {
	TokenService *service.TokenService
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ServeHTTP godoc
//
//	@Summary		Refresh tokens
//	@Description	Exchanges a valid refresh token for a new access/refresh pair and revokes the old refresh token.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		refreshRequest	true	"Refresh token"
//	@Success		200		{object}	domain.TokenPair
//	@Failure		400		{object}	httpx.ErrorResponse
//	@Failure		401		{object}	httpx.ErrorResponse
//	@Router			/v1/auth/refresh [post].
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	pair, err := h.TokenService.Refresh(ctx, req.RefreshToken, fingerprint.FromRequest(r))
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, pair)

	case errors.Is(err, session.ErrUnavailable), errors.Is(err, service.ErrConfiguration):
		log.Error("refresh failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "unable to evaluate credentials")

	case errors.Is(err, jwtx.ErrSchemaViolation), errors.Is(err, jwtx.ErrMalformed):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh token is not usable")

	default:
		// Expired, revoked, superseded, wrong kind, device mismatch:
		// the client must log in again.
		log.Warn("refresh rejected", "err", err)
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_grant", "refresh token is no longer valid")
	}
}
