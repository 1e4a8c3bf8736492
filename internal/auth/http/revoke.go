package http

import (
	"encoding/json"
	"net/http"

	"github.com/saatphere/saatphere/internal/auth/service"
	"github.com/saatphere/saatphere/pkg/httpx"
	"github.com/saatphere/saatphere/pkg/slogx"
)

// RevokeHandler serves POST /v1/auth/revoke. Invalid or already-revoked
// tokens still return 200 so the endpoint cannot be used to probe which
// tokens exist.
type RevokeHandler struct {
	TokenService *service.TokenService
}

type revokeRequest struct {
	Token string `json:"token"`
}

// ServeHTTP godoc
//
//	@Summary		Revoke a token
//	@Description	Puts the token on the revocation list for the rest of its lifetime. Idempotent.
//	@Description	Returns 200 even for unknown tokens to prevent token scanning.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body	revokeRequest	true	"Token to revoke"
//	@Success		200		"Token revoked (or was already unusable)"
//	@Failure		400		{object}	httpx.ErrorResponse
//	@Router			/v1/auth/revoke [post].
func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}

	if err := h.TokenService.Revoke(ctx, req.Token); err != nil {
		// 200 regardless; a token we cannot decode is a token that
		// cannot be presented successfully either.
		log.Warn("revoke failed", "err", err)
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}"))
}
