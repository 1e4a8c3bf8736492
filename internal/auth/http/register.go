package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/saatphere/saatphere/internal/auth/service"
	"github.com/saatphere/saatphere/pkg/httpx"
	"github.com/saatphere/saatphere/pkg/slogx"
)

// RegisterHandler serves POST /v1/auth/register, the public self-registration
// endpoint.
type RegisterHandler struct {
	RegistrationService *service.RegistrationService
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerResponse struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

// ServeHTTP godoc
//
//	@Summary		Register an account
//	@Description	Creates an account with the default ROLE_USER authority.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		registerRequest	true	"New account"
//	@Success		201		{object}	registerResponse
//	@Failure		400		{object}	httpx.ErrorResponse
//	@Failure		409		{object}	httpx.ErrorResponse
//	@Router			/v1/auth/register [post].
func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	res, err := h.RegistrationService.Register(ctx, service.Registration{
		Username: req.Username,
		Password: req.Password,
	}, false)
	switch {
	case errors.Is(err, service.ErrUsernameTaken):
		httpx.WriteError(w, http.StatusConflict, "username_taken", "username is already registered")
		return
	case errors.Is(err, service.ErrWeakPassword):
		httpx.WriteError(w, http.StatusBadRequest, "weak_password", "password does not meet the minimum length")
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "username is not acceptable")
		return
	case err != nil:
		log.Error("registration failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, registerResponse{
		UserID:   res.Principal.ID,
		Username: res.Principal.Username,
	})
}
