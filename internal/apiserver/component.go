package apiserver

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/moolen/jiotty/internal/integration"
	"github.com/moolen/jiotty/internal/lifecycle"
)

// ComponentType is the config type of the control API.
const ComponentType = "http"

func init() {
	integration.MustRegisterFactory(ComponentType, integration.Factory{
		Version:     "1.0.0",
		Description: "HTTP control API (health, status, metrics, restart)",
		New:         newComponent,
	})
}

func newComponent(name string, settings map[string]interface{}, ctl lifecycle.Control) (lifecycle.Component, error) {
	var cfg Config
	if err := integration.DecodeConfig(settings, &cfg); err != nil {
		return nil, fmt.Errorf("http component %s: %w", name, err)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("http component %s: port must be between 0 and 65535", name)
	}
	return New(name, cfg, ctl, prometheus.DefaultGatherer), nil
}
