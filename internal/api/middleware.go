package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dcops/pdumonitor/internal/config"
)

type roleContextKey struct{}

// requestIDHeader carries a per-request correlation id through logs and
// back to the caller, generated with google/uuid the way the teacher's
// internal/config.go mints ids for generated records.
const requestIDHeader = "X-Request-ID"

// roleHeader is the identity seam this core consumes: an upstream
// session/auth layer (out of scope per spec.md §1) is expected to
// resolve the caller and set this header before the request reaches
// the core's router — the core never authenticates, it only gates.
const roleHeader = "X-PDU-Role"

// requireRole builds a single auth-gate middleware, per spec.md §9's
// "centralise in a single middleware that maps identity -> role ->
// allowed mutation set". A request from a role lacking permission
// fails with Forbidden and never reaches the handler, so it has no
// side effects (spec.md §7).
func requireRole(cfg *config.Config, op config.Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := config.Role(r.Header.Get(roleHeader))
			if !cfg.IsPermitted(role, op) {
				writeMessage(w, http.StatusForbidden, "role is not permitted to perform this operation")
				return
			}
			ctx := context.WithValue(r.Context(), roleContextKey{}, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestLogger logs each request's method, path, status, and
// duration through zerolog with structured fields, matching the
// teacher's logging style throughout monitor.go/alerts.go. It also
// stamps a generated request id on the response for correlation with
// the log line, minting it with google/uuid the way the teacher mints
// record ids in internal/config.go.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set(requestIDHeader, reqID)

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Info().
			Str("requestId", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// mutationRateLimiter throttles the Mutation API with a shared token
// bucket (golang.org/x/time/rate), bounding how fast any caller already
// past the role gate may issue writes. The teacher's go.mod carries
// golang.org/x/time without ever constructing a limiter from it; this
// is where this core exercises it.
func mutationRateLimiter(cfg *config.Config) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(cfg.MutationRateLimitPerSec), cfg.MutationRateLimitBurst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeMessage(w, http.StatusTooManyRequests, "mutation rate limit exceeded, retry shortly")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestTimeout bounds every handler to the 30s overall request
// timeout spec.md §5 names; an HTTP client disconnect cancels this
// context, which cascades to any in-flight DB statement (pgx honors
// ctx on every call, per spec.md §5).
func requestTimeout(next http.Handler) http.Handler {
	return http.TimeoutHandler(next, 30*time.Second, `{"success":false,"message":"request timed out"}`)
}
