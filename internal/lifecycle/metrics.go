package lifecycle

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	cycles        prometheus.Counter
	restarts      prometheus.Counter
	startFailures *prometheus.CounterVec
	stopFailures  *prometheus.CounterVec
	started       prometheus.Gauge
	state         prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jiotty_lifecycle_cycles_total",
			Help: "Number of start/stop cycles begun",
		}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jiotty_lifecycle_restarts_total",
			Help: "Number of cycles begun because of a restart request",
		}),
		startFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jiotty_lifecycle_component_start_failures_total",
			Help: "Number of failed component starts",
		}, []string{"component"}),
		stopFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jiotty_lifecycle_component_stop_failures_total",
			Help: "Number of failed component stops",
		}, []string{"component"}),
		started: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jiotty_lifecycle_components_started",
			Help: "Number of components started in the current cycle",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jiotty_lifecycle_state",
			Help: "Current cycle state (0=INIT 1=STARTING 2=RUNNING 3=START_FAILED 4=STOPPING 5=STOPPED)",
		}),
	}

	reg.MustRegister(m.cycles, m.restarts, m.startFailures, m.stopFailures, m.started, m.state)
	return m
}
