package apiserver

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moolen/jiotty/internal/lifecycle"
)

// routes builds the router.
//
//   - GET  /health       liveness
//   - GET  /ready        200 only while the current cycle is RUNNING
//   - GET  /status       supervisor status as JSON
//   - GET  /metrics      Prometheus exposition
//   - POST /v1/restart   request a restart (409 when rejected)
//   - POST /v1/shutdown  request shutdown
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleMethodNotAllowed)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/status", s.handleStatus)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/restart", s.handleRestart)
		r.Post("/shutdown", s.handleShutdown)
	})

	return r
}

func (s *Server) status() (lifecycle.Status, bool) {
	reporter, ok := s.control.(lifecycle.StatusReporter)
	if !ok {
		return lifecycle.Status{}, false
	}
	return reporter.Status(), true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	st, ok := s.status()
	ready := ok && st.State == lifecycle.StateRunning

	code := http.StatusServiceUnavailable
	if ready {
		code = http.StatusOK
	}
	body := map[string]interface{}{"ready": ready}
	if ok {
		body["state"] = st.State
	}
	writeJSON(w, code, body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := s.status()
	if !ok {
		writeError(w, http.StatusNotImplemented, "STATUS_UNAVAILABLE", "supervisor does not report status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	err := s.control.InitiateRestart()
	switch {
	case err == nil:
		s.logger.Info("Restart requested via API (request_id=%s)", middleware.GetReqID(r.Context()))
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "restarting"})
	case errors.Is(err, lifecycle.ErrRestartPending):
		writeError(w, http.StatusConflict, "RESTART_PENDING", err.Error())
	case errors.Is(err, lifecycle.ErrShuttingDown):
		writeError(w, http.StatusConflict, "SHUTTING_DOWN", err.Error())
	case errors.Is(err, lifecycle.ErrNotRunning):
		writeError(w, http.StatusConflict, "NOT_RUNNING", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Shutdown requested via API (request_id=%s)", middleware.GetReqID(r.Context()))
	s.control.InitiateShutdown()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "shutting down"})
}
