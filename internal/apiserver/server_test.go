package apiserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/jiotty/internal/integration"
	"github.com/moolen/jiotty/internal/lifecycle"
)

type stubControl struct {
	status     lifecycle.Status
	restartErr error
	restarts   atomic.Int32
	shutdowns  atomic.Int32
}

func (s *stubControl) InitiateShutdown() { s.shutdowns.Add(1) }

func (s *stubControl) InitiateRestart() error {
	s.restarts.Add(1)
	return s.restartErr
}

func (s *stubControl) Status() lifecycle.Status { return s.status }

// controlOnly hides Status.
type controlOnly struct{ lifecycle.Control }

func newTestServer(ctl lifecycle.Control) *Server {
	return New("api", Config{ControlRate: 100, ControlBurst: 100}, ctl, prometheus.NewRegistry())
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	s := newTestServer(&stubControl{})
	rec := do(t, s.Handler(), http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestReady(t *testing.T) {
	tests := []struct {
		name  string
		ctl   lifecycle.Control
		code  int
		ready bool
	}{
		{"running", &stubControl{status: lifecycle.Status{State: lifecycle.StateRunning}}, http.StatusOK, true},
		{"starting", &stubControl{status: lifecycle.Status{State: lifecycle.StateStarting}}, http.StatusServiceUnavailable, false},
		{"stopping", &stubControl{status: lifecycle.Status{State: lifecycle.StateStopping}}, http.StatusServiceUnavailable, false},
		{"no status", controlOnly{&stubControl{}}, http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(tt.ctl).Handler(), http.MethodGet, "/ready")
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.ready, decode(t, rec)["ready"])
		})
	}
}

func TestStatus(t *testing.T) {
	ctl := &stubControl{status: lifecycle.Status{
		State:     lifecycle.StateRunning,
		Cycle:     2,
		Attempted: []string{"a", "b"},
	}}
	rec := do(t, newTestServer(ctl).Handler(), http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var st lifecycle.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, lifecycle.StateRunning, st.State)
	assert.Equal(t, 2, st.Cycle)
	assert.Equal(t, []string{"a", "b"}, st.Attempted)
}

func TestStatusUnavailable(t *testing.T) {
	rec := do(t, newTestServer(controlOnly{&stubControl{}}).Handler(), http.MethodGet, "/status")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "STATUS_UNAVAILABLE", decode(t, rec)["error"])
}

func TestRestart(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		errCode string
	}{
		{"accepted", nil, http.StatusAccepted, ""},
		{"pending", lifecycle.ErrRestartPending, http.StatusConflict, "RESTART_PENDING"},
		{"shutting down", lifecycle.ErrShuttingDown, http.StatusConflict, "SHUTTING_DOWN"},
		{"not running", lifecycle.ErrNotRunning, http.StatusConflict, "NOT_RUNNING"},
		{"wrapped", fmt.Errorf("ctl: %w", lifecycle.ErrRestartPending), http.StatusConflict, "RESTART_PENDING"},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := &stubControl{restartErr: tt.err}
			rec := do(t, newTestServer(ctl).Handler(), http.MethodPost, "/v1/restart")

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, int32(1), ctl.restarts.Load())
			if tt.errCode != "" {
				assert.Equal(t, tt.errCode, decode(t, rec)["error"])
			}
		})
	}
}

func TestShutdown(t *testing.T) {
	ctl := &stubControl{}
	rec := do(t, newTestServer(ctl).Handler(), http.MethodPost, "/v1/shutdown")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, int32(1), ctl.shutdowns.Load())
}

func TestMethodNotAllowed(t *testing.T) {
	ctl := &stubControl{}
	rec := do(t, newTestServer(ctl).Handler(), http.MethodGet, "/v1/restart")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", decode(t, rec)["error"])
	assert.Zero(t, ctl.restarts.Load())
}

func TestNotFound(t *testing.T) {
	rec := do(t, newTestServer(&stubControl{}).Handler(), http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, rec)["error"])
}

func TestControlRateLimit(t *testing.T) {
	ctl := &stubControl{}
	s := New("api", Config{ControlRate: 0.001, ControlBurst: 2}, ctl, nil)

	assert.Equal(t, http.StatusAccepted, do(t, s.Handler(), http.MethodPost, "/v1/shutdown").Code)
	assert.Equal(t, http.StatusAccepted, do(t, s.Handler(), http.MethodPost, "/v1/shutdown").Code)

	rec := do(t, s.Handler(), http.MethodPost, "/v1/shutdown")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, int32(2), ctl.shutdowns.Load())

	// Probes are not limited.
	assert.Equal(t, http.StatusOK, do(t, s.Handler(), http.MethodGet, "/health").Code)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "apiserver_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := New("api", Config{}, &stubControl{}, reg)
	rec := do(t, s.Handler(), http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "apiserver_test_total 1")
}

func TestMetricsDisabledWithoutGatherer(t *testing.T) {
	s := New("api", Config{}, &stubControl{}, nil)
	assert.Equal(t, http.StatusNotFound, do(t, s.Handler(), http.MethodGet, "/metrics").Code)
}

func TestStartStop(t *testing.T) {
	s := New("api", Config{Address: "127.0.0.1", Port: 0}, &stubControl{}, nil)
	assert.Empty(t, s.Addr())

	require.NoError(t, s.Start(context.Background()))
	addr := s.Addr()
	require.NotEmpty(t, addr)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	_, err = client.Get("http://" + addr + "/health")
	assert.Error(t, err)
}

func TestStartFailsWhenPortTaken(t *testing.T) {
	first := New("first", Config{Address: "127.0.0.1"}, &stubControl{}, nil)
	require.NoError(t, first.Start(context.Background()))
	defer func() { _ = first.Stop(context.Background()) }()

	port := first.Addr()[strings.LastIndex(first.Addr(), ":")+1:]
	var p int
	_, err := fmt.Sscanf(port, "%d", &p)
	require.NoError(t, err)

	second := New("second", Config{Address: "127.0.0.1", Port: p}, &stubControl{}, nil)
	err = second.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listening on")
}

func TestStopWithoutStart(t *testing.T) {
	s := New("api", Config{}, &stubControl{}, nil)
	assert.NoError(t, s.Stop(context.Background()))
}

func TestStartCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New("api", Config{Address: "127.0.0.1"}, &stubControl{}, nil)
	assert.ErrorIs(t, s.Start(ctx), context.Canceled)
	assert.Empty(t, s.Addr())
}

func TestFactoryRegistered(t *testing.T) {
	f, ok := integration.DefaultRegistry().Get(ComponentType)
	require.True(t, ok)

	c, err := f.New("api", map[string]interface{}{"port": 9000, "address": "127.0.0.1"}, &stubControl{})
	require.NoError(t, err)
	assert.Equal(t, "api", c.Name())

	srv := c.(*Server)
	assert.Equal(t, 9000, srv.cfg.Port)
	assert.Equal(t, 1.0, srv.cfg.ControlRate)
	assert.Equal(t, 3, srv.cfg.ControlBurst)
}

func TestFactoryRejectsBadConfig(t *testing.T) {
	f, ok := integration.DefaultRegistry().Get(ComponentType)
	require.True(t, ok)

	_, err := f.New("api", map[string]interface{}{"port": 70000}, &stubControl{})
	assert.ErrorContains(t, err, "port must be between")

	_, err = f.New("api", map[string]interface{}{"bogus": true}, &stubControl{})
	assert.ErrorContains(t, err, "invalid config")
}
