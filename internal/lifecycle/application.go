package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/moolen/jiotty/internal/logging"
)

// Defaults for WithExitTimeout and WithStopTimeout.
const (
	DefaultExitTimeout = time.Minute
	DefaultStopTimeout = 30 * time.Second
)

const (
	defaultHistorySize = 16
	tracerName         = "github.com/moolen/jiotty/internal/lifecycle"
)

type options struct {
	exitTimeout time.Duration
	stopTimeout time.Duration
	signals     []os.Signal
	registerer  prometheus.Registerer
	logger      *logging.Logger
	historySize int
}

// Option configures an Application.
type Option func(*options)

// WithExitTimeout bounds how long the exit hook waits for teardown.
func WithExitTimeout(d time.Duration) Option {
	return func(o *options) { o.exitTimeout = d }
}

// WithStopTimeout sets the deadline given to each component's Stop.
func WithStopTimeout(d time.Duration) Option {
	return func(o *options) { o.stopTimeout = d }
}

// WithSignals replaces the signals that trigger the exit hook.
// Passing none disables the hook.
func WithSignals(signals ...os.Signal) Option {
	return func(o *options) { o.signals = signals }
}

// WithRegisterer registers the supervisor metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithLogger replaces the supervisor logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHistorySize sets how many finished cycles Status reports.
func WithHistorySize(n int) Option {
	return func(o *options) { o.historySize = n }
}

// Application supervises the components supplied by a Source through
// repeated start/run/stop cycles. It implements Control and StatusReporter.
type Application struct {
	source  Source
	opts    options
	logger  *logging.Logger
	metrics *metrics
	tracer  trace.Tracer
	history *lru.Cache[int, CycleRecord]

	runCalled       atomic.Bool
	shuttingDown    atomic.Bool
	shutdownPending atomic.Bool
	hookInstalled atomic.Bool
	cycles        atomic.Int64
	current       atomic.Pointer[cycle]
	done          chan struct{}
}

var _ Control = (*Application)(nil)
var _ StatusReporter = (*Application)(nil)

// New creates an Application and installs its process exit hook.
func New(source Source, opts ...Option) *Application {
	o := options{
		exitTimeout: DefaultExitTimeout,
		stopTimeout: DefaultStopTimeout,
		signals:     []os.Signal{os.Interrupt, syscall.SIGTERM},
		historySize: defaultHistorySize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registerer == nil {
		o.registerer = prometheus.NewRegistry()
	}
	if o.logger == nil {
		o.logger = logging.GetLogger("lifecycle")
	}
	if o.historySize <= 0 {
		o.historySize = defaultHistorySize
	}

	history, err := lru.New[int, CycleRecord](o.historySize)
	if err != nil {
		panic(fmt.Sprintf("lifecycle: creating history cache: %v", err))
	}

	a := &Application{
		source:  source,
		opts:    o,
		logger:  o.logger,
		metrics: newMetrics(o.registerer),
		tracer:  otel.Tracer(tracerName),
		history: history,
		done:    make(chan struct{}),
	}
	a.installExitHook()
	return a
}

// Run executes cycles until one finishes without a pending restart. It can
// be called once; later calls return ErrAlreadyRun. Component failures are
// logged, never returned. Cancelling ctx shuts the application down.
func (a *Application) Run(ctx context.Context) error {
	if !a.runCalled.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	defer close(a.done)

	for {
		if !a.runCycle(ctx) {
			a.logger.Info("Application stopped")
			return nil
		}
		if a.shuttingDown.Load() {
			a.logger.Info("Restart skipped, process is shutting down")
			return nil
		}
		if ctx.Err() != nil {
			a.logger.Info("Restart skipped, context done: %v", ctx.Err())
			return nil
		}
		a.metrics.restarts.Inc()
		a.logger.Info("Restarting application")
	}
}

// runCycle performs one full cycle and reports whether a restart was
// admitted during it.
func (a *Application) runCycle(ctx context.Context) bool {
	number := int(a.cycles.Add(1))
	ctx, span := a.tracer.Start(ctx, "lifecycle.cycle", trace.WithAttributes(attribute.Int("cycle", number)))
	defer span.End()

	startCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := newCycle(number, startCtx, cancel)
	logger := a.logger.WithContext(ctx).WithFields(
		logging.Field("cycle", number),
		logging.Field("cycle_id", c.id),
	)
	a.current.Store(c)
	a.metrics.cycles.Inc()
	a.setState(c, StateStarting)

	// The exit hook may have fired between cycles, or InitiateShutdown may
	// have run before this cycle was current.
	if a.shuttingDown.Load() || a.shutdownPending.Swap(false) {
		c.requestStop()
	}

	var startErr error
	if err := a.startAll(startCtx, c, logger); err != nil {
		startErr = err
		a.setState(c, StateStartFailed)
		span.RecordError(err)
		var interrupted *InterruptedError
		if errors.As(err, &interrupted) {
			logger.Warn("Startup interrupted: %v", err)
		} else {
			logger.ErrorWithErr("Startup failed, shutting down", err)
		}
		c.triggerShutdown()
	} else {
		c.startedAll.Store(true)
		a.setState(c, StateRunning)
		attempted, _ := c.counts()
		logger.Info("All %d components started", attempted)

		select {
		case <-c.shutdown:
		case <-startCtx.Done():
		}
		logger.Info("Shutdown requested")
	}

	a.setState(c, StateStopping)
	a.stopAll(context.WithoutCancel(ctx), c, logger)
	a.setState(c, StateStopped)
	a.metrics.started.Set(0)
	c.markStopped()

	restart := c.restarting.Load()
	a.recordHistory(c, startErr, restart)
	span.SetAttributes(attribute.Bool("restart", restart))
	return restart
}

func (a *Application) startAll(ctx context.Context, c *cycle, logger *logging.Logger) error {
	components, err := a.resolveComponents()
	if err != nil {
		return err
	}
	c.setTotal(len(components))
	logger.Info("Starting %d components", len(components))

	for _, component := range components {
		if ctx.Err() != nil {
			attempted, total := c.counts()
			return &InterruptedError{Attempted: attempted, Total: total}
		}
		c.attempt(component)

		logger.Info("Starting %s", component.Name())
		startTime := time.Now()
		if err := a.callComponent(ctx, "lifecycle.start", component, component.Start); err != nil {
			a.metrics.startFailures.WithLabelValues(component.Name()).Inc()
			return fmt.Errorf("starting %s: %w", component.Name(), err)
		}
		a.metrics.started.Inc()
		logger.Info("%s started successfully (took %dms)", component.Name(), time.Since(startTime).Milliseconds())
	}
	return nil
}

// stopAll stops every attempted component in reverse order, each under its
// own deadline.
func (a *Application) stopAll(ctx context.Context, c *cycle, logger *logging.Logger) {
	attempted := c.attemptedComponents()
	logger.Info("Stopping %d components", len(attempted))

	for i := len(attempted) - 1; i >= 0; i-- {
		component := attempted[i]
		logger.Info("Stopping %s", component.Name())
		startTime := time.Now()

		stopCtx, cancel := context.WithTimeout(ctx, a.opts.stopTimeout)
		err := a.callComponent(stopCtx, "lifecycle.stop", component, component.Stop)
		cancel()

		if err != nil {
			a.metrics.stopFailures.WithLabelValues(component.Name()).Inc()
			if errors.Is(err, context.DeadlineExceeded) {
				logger.Warn("Component %s exceeded grace period (%dms timeout)",
					component.Name(), a.opts.stopTimeout.Milliseconds())
			} else {
				logger.ErrorWithErr("Error stopping %s", err, component.Name())
			}
			continue
		}
		logger.Info("%s stopped successfully (took %dms)", component.Name(), time.Since(startTime).Milliseconds())
	}
}

// resolveComponents queries the source, converting a panic in a provider
// into an error.
func (a *Application) resolveComponents() (components []Component, err error) {
	defer func() {
		if r := recover(); r != nil {
			components, err = nil, fmt.Errorf("resolving components: panic: %v", r)
		}
	}()
	components, err = a.source.Components(a)
	if err != nil {
		return nil, fmt.Errorf("resolving components: %w", err)
	}
	return components, nil
}

// callComponent runs fn inside a span and converts a panic into an error.
func (a *Application) callComponent(ctx context.Context, spanName string, component Component, fn func(context.Context) error) (err error) {
	ctx, span := a.tracer.Start(ctx, spanName, trace.WithAttributes(attribute.String("component", component.Name())))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", component.Name(), r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	return fn(ctx)
}

func (a *Application) setState(c *cycle, s State) {
	c.setState(s)
	a.metrics.state.Set(float64(s))
}

func (a *Application) recordHistory(c *cycle, startErr error, restart bool) {
	attempted, total := c.counts()
	rec := CycleRecord{
		Number:    c.number,
		ID:        c.id,
		StartedAt: c.startedAt,
		StoppedAt: time.Now(),
		Attempted: attempted,
		Total:     total,
		Restarted: restart,
	}
	if startErr != nil {
		rec.StartError = startErr.Error()
	}
	a.history.Add(c.number, rec)
}

// InitiateShutdown stops the current cycle. Before every component has
// started it interrupts the startup sequence instead. Called before Run has
// begun a cycle, it makes the next cycle stop before starting anything.
func (a *Application) InitiateShutdown() {
	c := a.current.Load()
	if c == nil {
		a.shutdownPending.Store(true)
		// Run may have stored the first cycle after the load above.
		if c = a.current.Load(); c == nil {
			a.logger.Info("Shutdown requested before the first cycle")
			return
		}
		a.shutdownPending.CompareAndSwap(true, false)
	}
	a.logger.Info("Shutdown initiated (cycle %d)", c.number)
	c.requestStop()
}

// InitiateRestart stops the current cycle and schedules a new one.
func (a *Application) InitiateRestart() error {
	if a.shuttingDown.Load() {
		return ErrShuttingDown
	}
	c := a.current.Load()
	if c == nil || c.isStopped() {
		return ErrNotRunning
	}
	if !c.restarting.CompareAndSwap(false, true) {
		return ErrRestartPending
	}
	a.logger.Info("Restart initiated (cycle %d)", c.number)
	c.requestStop()
	return nil
}

// Status returns a snapshot of the current cycle and recent history.
func (a *Application) Status() Status {
	s := Status{
		State:        StateInit,
		Attempted:    []string{},
		ShuttingDown: a.shuttingDown.Load(),
	}
	if c := a.current.Load(); c != nil {
		s.State = c.getState()
		s.Cycle = c.number
		s.CycleID = c.id
		s.Attempted = c.attemptedNames()
		s.RestartPending = c.restarting.Load()
	}

	keys := a.history.Keys()
	sort.Ints(keys)
	for _, k := range keys {
		if rec, ok := a.history.Peek(k); ok {
			s.History = append(s.History, rec)
		}
	}
	return s
}

// Done is closed when Run returns.
func (a *Application) Done() <-chan struct{} {
	return a.done
}
