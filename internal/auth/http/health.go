package http

import (
	"net/http"
	"time"

	"github.com/saatphere/saatphere/internal/auth/session"
	"github.com/saatphere/saatphere/internal/auth/store"
	"github.com/saatphere/saatphere/pkg/httpx"
	"github.com/saatphere/saatphere/pkg/slogx"
)

// HealthResponse reports service health for the probe endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// LivezHandler godoc
//
//	@Summary		Liveness probe
//	@Description	Always returns 200 while the process is running.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/livez [get].
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler godoc
//
//	@Summary		Readiness probe
//	@Description	Returns 200 only when the database and the session backend are reachable.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/readyz [get].
func ReadyzHandler(startTime time.Time, version string, st store.Store, sessions session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := slogx.FromContext(ctx)

		status := "ok"
		code := http.StatusOK

		if err := st.Ping(ctx); err != nil {
			log.Error("readyz: database unreachable", "err", err)
			status, code = "degraded", http.StatusServiceUnavailable
		}
		if err := sessions.Ping(ctx); err != nil {
			log.Error("readyz: session backend unreachable", "err", err)
			status, code = "degraded", http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}
