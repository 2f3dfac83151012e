package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/store"
	"github.com/aussiebroadwan/bookshelf/pkg/authsdk"
	"github.com/aussiebroadwan/bookshelf/pkg/httpx"
	"github.com/aussiebroadwan/bookshelf/pkg/jwtx"
	"github.com/aussiebroadwan/bookshelf/pkg/slogx"
)

const readyzPingTimeout = 2 * time.Second

func healthBody(status string, startTime time.Time, version string) authsdk.HealthResponse {
	return authsdk.HealthResponse{
		Status:  status,
		Uptime:  time.Since(startTime).Round(time.Second).String(),
		Version: version,
	}
}

// LivezHandler godoc
//
//	@Summary		Liveness Check Endpoint
//	@Description	Answers 200 while the process is serving; dependencies are not consulted
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version"
//	@Router			/livez [get].
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, healthBody("ok", startTime, version))
	}
}

// ReadyzHandler godoc
//
//	@Summary		Readiness Check Endpoint
//	@Description	Readiness probe reporting whether the session store answers and a signing secret is loaded
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	authsdk.HealthResponse	"status, uptime, version, checks - service not ready"
//	@Router			/readyz [get].
func ReadyzHandler(startTime time.Time, version string, st store.Store, ring *jwtx.SecretRing) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &authsdk.HealthChecks{Database: "ok", Signer: "ok"}

		ctx, cancel := context.WithTimeout(r.Context(), readyzPingTimeout)
		defer cancel()

		// The error text stays in the log; probes only see that it failed.
		if err := st.Ping(ctx); err != nil {
			slogx.FromContext(r.Context()).Warn("readiness: store ping failed", "err", err)
			checks.Database = "error: unreachable"
		}
		if !ring.IsReady() {
			checks.Signer = "error: no signing secret loaded"
		}

		body := healthBody("ok", startTime, version)
		body.Checks = checks
		code := http.StatusOK
		if checks.Database != "ok" || checks.Signer != "ok" {
			body.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		httpx.WriteJSON(w, code, body)
	}
}
