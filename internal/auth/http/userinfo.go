package http

import (
	"net/http"

	"github.com/saatphere/saatphere/pkg/httpx"
)

// UserInfoResponse mirrors the verified claims of the caller.
type UserInfoResponse struct {
	UserID      int64    `json:"userId"`
	Username    string   `json:"username"`
	Authorities []string `json:"authorities"`
	ProfileID   *int64   `json:"userProfileId,omitempty"`
}

// UserInfoHandler godoc
//
//	@Summary		Current user info
//	@Description	Returns the identity and authorities of the authenticated caller, as carried in the verified token.
//	@Tags			Auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	UserInfoResponse
//	@Failure		401	{object}	httpx.ErrorResponse
//	@Router			/v1/userinfo [get].
func UserInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := httpx.ClaimsFromContext(r.Context())
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
			return
		}

		httpx.WriteJSON(w, http.StatusOK, UserInfoResponse{
			UserID:      claims.UserID,
			Username:    claims.Subject,
			Authorities: claims.Authorities,
			ProfileID:   claims.ProfileID,
		})
	}
}
