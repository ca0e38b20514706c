// Package heartbeat provides a component that periodically reports that the
// application is alive.
package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/moolen/jiotty/internal/integration"
	"github.com/moolen/jiotty/internal/lifecycle"
	"github.com/moolen/jiotty/internal/logging"
)

// ComponentType is the config type of the heartbeat.
const ComponentType = "heartbeat"

// DefaultInterval is used when no interval is configured.
const DefaultInterval = time.Minute

// Config holds heartbeat settings.
type Config struct {
	Interval time.Duration `mapstructure:"interval"`
}

func init() {
	integration.MustRegisterFactory(ComponentType, integration.Factory{
		Version:     "1.0.0",
		Description: "Periodic liveness log line and uptime metrics",
		New:         newComponent,
	})
}

func newComponent(name string, settings map[string]interface{}, _ lifecycle.Control) (lifecycle.Component, error) {
	var cfg Config
	if err := integration.DecodeConfig(settings, &cfg); err != nil {
		return nil, fmt.Errorf("heartbeat %s: %w", name, err)
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("heartbeat %s: interval must be positive", name)
	}
	return New(name, cfg, NewMetrics(prometheus.DefaultRegisterer, name)), nil
}

// Heartbeat ticks on a fixed interval while running.
type Heartbeat struct {
	name     string
	interval time.Duration
	metrics  *Metrics
	logger   *logging.Logger
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

// New creates a heartbeat.
func New(name string, cfg Config, metrics *Metrics) *Heartbeat {
	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	return &Heartbeat{
		name:     name,
		interval: interval,
		metrics:  metrics,
		logger:   logging.GetLogger("heartbeat").WithField("component", name),
		now:      time.Now,
	}
}

// Name implements lifecycle.Component.
func (h *Heartbeat) Name() string { return h.name }

// Interval returns the tick interval.
func (h *Heartbeat) Interval() time.Duration { return h.interval }

// Start launches the ticker. The ticker runs on its own context so that
// cancelling the start context does not stop it.
func (h *Heartbeat) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		return fmt.Errorf("heartbeat %s already started", h.name)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	h.started = h.now()

	go h.run(runCtx, h.done)

	h.logger.Info("Heartbeat started (interval %s)", h.interval)
	return nil
}

// Stop halts the ticker and waits for it to exit.
func (h *Heartbeat) Stop(ctx context.Context) error {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel = nil
	h.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		h.logger.Info("Heartbeat stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Heartbeat) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat()
		}
	}
}

func (h *Heartbeat) beat() {
	now := h.now()
	h.mu.Lock()
	uptime := now.Sub(h.started)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Beats.Inc()
		h.metrics.UptimeSeconds.Set(uptime.Seconds())
		h.metrics.LastBeat.Set(float64(now.Unix()))
	}
	h.logger.Info("Alive (uptime %s)", uptime.Truncate(time.Second))
}
