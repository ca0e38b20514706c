package lifecycle

import "context"

// Component is a unit of work supervised by an Application.
// A fresh set of components is obtained from the Source for every cycle,
// so implementations never need to support being started twice.
type Component interface {
	// Start brings the component up. The context is cancelled if startup of
	// the application is interrupted and once the cycle ends; components that
	// run background work should derive their own context instead of keeping
	// this one.
	Start(ctx context.Context) error

	// Stop tears the component down within the context deadline.
	// Stop is called for every component whose Start was attempted, including
	// one whose Start failed, so it must tolerate partial initialisation.
	// A returned error is logged and never prevents other components from
	// stopping.
	Stop(ctx context.Context) error

	// Name returns the human-readable name used in logs, metrics and status.
	Name() string
}

// Control lets components request shutdown or restart of the whole
// application. Both calls return immediately.
type Control interface {
	// InitiateShutdown stops the current cycle without restarting.
	InitiateShutdown()

	// InitiateRestart stops the current cycle and starts a new one with a
	// freshly obtained set of components. Only one restart is admitted per
	// cycle; see ErrRestartPending and ErrShuttingDown.
	InitiateRestart() error
}

// StatusReporter is implemented by controls that can describe the
// supervisor's current state.
type StatusReporter interface {
	Status() Status
}

type funcComponent struct {
	name  string
	start func(context.Context) error
	stop  func(context.Context) error
}

// NewComponent builds a Component from a pair of functions. A nil function is
// treated as a no-op.
func NewComponent(name string, start, stop func(ctx context.Context) error) Component {
	return &funcComponent{name: name, start: start, stop: stop}
}

func (c *funcComponent) Name() string { return c.name }

func (c *funcComponent) Start(ctx context.Context) error {
	if c.start == nil {
		return nil
	}
	return c.start(ctx)
}

func (c *funcComponent) Stop(ctx context.Context) error {
	if c.stop == nil {
		return nil
	}
	return c.stop(ctx)
}
