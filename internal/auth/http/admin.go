package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/saatphere/saatphere/internal/auth/service"
	"github.com/saatphere/saatphere/internal/auth/store"
	"github.com/saatphere/saatphere/pkg/httpx"
	"github.com/saatphere/saatphere/pkg/slogx"
)

// AdminHandler bundles the ROLE_ADMIN account management endpoints.
type AdminHandler struct {
	RegistrationService *service.RegistrationService
	Store               store.Store
}

type bulkRegisterRequest struct {
	Users []registerRequest `json:"users"`
}

type bulkRegisterResponse struct {
	Created []bulkRegisterEntry `json:"created"`
}

type bulkRegisterEntry struct {
	UserID       int64  `json:"userId"`
	Username     string `json:"username"`
	TempPassword string `json:"tempPassword,omitempty"`
}

// HandleBulkRegister godoc
//
//	@Summary		Bulk account import
//	@Description	Creates many accounts in one transaction. Accounts without a password get a generated temporary one,
//	@Description	returned once in the response. Either every account is created or none are.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		bulkRegisterRequest	true	"Accounts to create"
//	@Success		201		{object}	bulkRegisterResponse
//	@Failure		400		{object}	httpx.ErrorResponse
//	@Failure		409		{object}	httpx.ErrorResponse
//	@Router			/v1/admin/users [post].
func (h *AdminHandler) HandleBulkRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req bulkRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Users) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "users list is required")
		return
	}

	regs := make([]service.Registration, 0, len(req.Users))
	for _, u := range req.Users {
		regs = append(regs, service.Registration{Username: u.Username, Password: u.Password})
	}

	results, err := h.RegistrationService.RegisterBatch(ctx, regs)
	switch {
	case errors.Is(err, service.ErrUsernameTaken):
		httpx.WriteError(w, http.StatusConflict, "username_taken", "a username in the batch is already registered")
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "a username in the batch is not acceptable")
		return
	case err != nil:
		log.Error("bulk registration failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	out := bulkRegisterResponse{Created: make([]bulkRegisterEntry, 0, len(results))}
	for _, res := range results {
		out.Created = append(out.Created, bulkRegisterEntry{
			UserID:       res.Principal.ID,
			Username:     res.Principal.Username,
			TempPassword: res.TempPassword,
		})
	}
	httpx.WriteJSON(w, http.StatusCreated, out)
}

// HandleDisable godoc
//
//	@Summary		Disable an account
//	@Description	Suspends the account. Outstanding tokens stop working at the next refresh or login.
//	@Tags			Admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path	int	true	"Account id"
//	@Success		204	"Account disabled"
//	@Failure		404	{object}	httpx.ErrorResponse
//	@Router			/v1/admin/users/{id}/disable [post].
func (h *AdminHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "id must be numeric")
		return
	}

	if err := h.RegistrationService.Disable(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "no such account")
			return
		}
		log.Error("disable failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type attachProfileRequest struct {
	ProfileID int64 `json:"profileId"`
}

// HandleAttachProfile godoc
//
//	@Summary		Attach a matrimonial profile
//	@Description	Links the account to its profile. Tokens minted after this carry the profile id claim.
//	@Tags			Admin
//	@Accept			json
//	@Security		BearerAuth
//	@Param			id		path	int						true	"Account id"
//	@Param			request	body	attachProfileRequest	true	"Profile to link"
//	@Success		204		"Profile attached"
//	@Failure		404		{object}	httpx.ErrorResponse
//	@Router			/v1/admin/users/{id}/profile [post].
func (h *AdminHandler) HandleAttachProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "id must be numeric")
		return
	}

	var req attachProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProfileID <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "profileId is required")
		return
	}

	if err := h.RegistrationService.AttachProfile(ctx, id, req.ProfileID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "no such account")
			return
		}
		log.Error("profile attach failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type auditListResponse struct {
	Events []auditEntry `json:"events"`
}

type auditEntry struct {
	ID        int64  `json:"id"`
	Operation string `json:"operation"`
	ActorID   *int64 `json:"actorId,omitempty"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// HandleAuditList godoc
//
//	@Summary		Recent audit events
//	@Description	Lists the newest audit events in a bucket (sessions, accounts, tokens), newest first.
//	@Tags			Admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			bucket	path		string	true	"Audit bucket"	Enums(sessions, accounts, tokens)
//	@Param			limit	query		int		false	"Max events (default 50)"
//	@Success		200		{object}	auditListResponse
//	@Router			/v1/admin/audit/{bucket} [get].
func (h *AdminHandler) HandleAuditList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}

	events, err := h.Store.Audit().ListRecent(ctx, r.PathValue("bucket"), limit)
	if err != nil {
		log.Error("audit list failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	out := auditListResponse{Events: make([]auditEntry, 0, len(events))}
	for _, e := range events {
		out.Events = append(out.Events, auditEntry{
			ID:        e.ID,
			Operation: e.Operation,
			ActorID:   e.ActorID,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
