package lifecycle

import (
	"os"
	"os/signal"
	"time"
)

// Process-wide hooks. Tests replace them.
var (
	exitFunc      = os.Exit
	notifySignals = signal.Notify
	stopSignals   = signal.Stop
)

// installExitHook subscribes to the configured signals once per
// Application. After the first signal the subscription is dropped, so a
// second signal gets the default behaviour.
func (a *Application) installExitHook() {
	if len(a.opts.signals) == 0 {
		a.logger.Debug("No exit signals configured, exit hook disabled")
		return
	}
	if !a.hookInstalled.CompareAndSwap(false, true) {
		return
	}

	ch := make(chan os.Signal, 1)
	notifySignals(ch, a.opts.signals...)
	go func() {
		sig := <-ch
		stopSignals(ch)
		a.onExitSignal(sig)
	}()
}

// onExitSignal marks the process as shutting down and waits, bounded by the
// exit timeout, for the active cycle to finish its teardown.
func (a *Application) onExitSignal(sig os.Signal) {
	a.shuttingDown.Store(true)
	a.logger.Info("Received %v, shutting down", sig)

	if !a.runCalled.Load() || a.finished() {
		a.logger.Info("No active cycle, exiting")
		exitFunc(0)
		return
	}

	wait := a.done
	if c := a.current.Load(); c != nil && !c.isStopped() {
		c.requestStop()
		wait = c.stopped
	}

	timer := time.NewTimer(a.opts.exitTimeout)
	defer timer.Stop()
	select {
	case <-wait:
		a.logger.Info("Teardown finished")
	case <-timer.C:
		a.logger.Warn("Teardown did not finish within %s, exiting anyway", a.opts.exitTimeout)
		exitFunc(1)
	}
}

func (a *Application) finished() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}
