package apiserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/moolen/jiotty/internal/logging"
)

// requestLogger logs each request at DEBUG with status and duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.DebugWithFields("API request completed",
			logging.Field("request_id", middleware.GetReqID(r.Context())),
			logging.Field("method", r.Method),
			logging.Field("path", r.URL.Path),
			logging.Field("status", ww.Status()),
			logging.Field("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

// rateLimit rejects requests beyond the control limiter with 429.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many control requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
