package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/saatphere/saatphere/internal/auth/service"
	"github.com/saatphere/saatphere/pkg/httpx"
	"github.com/saatphere/saatphere/pkg/slogx"
)

// PasswordHandler changes the password of the authenticated caller.
type PasswordHandler struct {
	RegistrationService *service.RegistrationService
	TokenService        *service.TokenService
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ServeHTTP godoc
//
//	@Summary		Change password
//	@Description	Verifies the current password and replaces it. All active sessions are cleared,
//	@Description	so every device has to log in again with the new password.
//	@Tags			Auth
//	@Accept			json
//	@Security		BearerAuth
//	@Param			request	body	passwordChangeRequest	true	"Current and new password"
//	@Success		204		"Password changed"
//	@Failure		400		{object}	httpx.ErrorResponse
//	@Failure		401		{object}	httpx.ErrorResponse
//	@Router			/v1/auth/password [post].
func (h *PasswordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	claims, ok := httpx.ClaimsFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "")
		return
	}

	var req passwordChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "current_password and new_password are required")
		return
	}

	err := h.RegistrationService.ChangePassword(ctx, claims.UserID, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_grant", "current password is wrong")
		return
	case errors.Is(err, service.ErrWeakPassword):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "new password does not meet the policy")
		return
	case err != nil:
		log.Error("password change failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	// Old-password tokens die here, including the one used for this call.
	if err := h.TokenService.ClearSessions(ctx, claims.UserID); err != nil {
		log.Warn("session clear after password change failed", "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}
