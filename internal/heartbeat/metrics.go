package heartbeat

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for a heartbeat instance.
type Metrics struct {
	Beats         prometheus.Counter // Total number of heartbeats
	UptimeSeconds prometheus.Gauge   // Seconds since the current cycle started the heartbeat
	LastBeat      prometheus.Gauge   // Unix time of the last heartbeat
}

// NewMetrics creates the metrics for one heartbeat instance, labelled by
// instance name. A restart creates a new component with the same name, so
// collectors that are already registered are reused.
func NewMetrics(reg prometheus.Registerer, instanceName string) *Metrics {
	labels := prometheus.Labels{"instance": instanceName}

	beats := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "jiotty_heartbeat_beats_total",
		Help:        "Total number of heartbeats",
		ConstLabels: labels,
	})).(prometheus.Counter)

	uptime := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "jiotty_heartbeat_uptime_seconds",
		Help:        "Seconds since the heartbeat was started",
		ConstLabels: labels,
	})).(prometheus.Gauge)

	lastBeat := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "jiotty_heartbeat_last_beat_timestamp_seconds",
		Help:        "Unix time of the last heartbeat",
		ConstLabels: labels,
	})).(prometheus.Gauge)

	return &Metrics{
		Beats:         beats,
		UptimeSeconds: uptime,
		LastBeat:      lastBeat,
	}
}

func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}
