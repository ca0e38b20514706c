package lifecycle

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRun is returned by Run when it was already called on the
	// same Application.
	ErrAlreadyRun = errors.New("application has already been run")

	// ErrShuttingDown rejects a restart once the process exit hook fired.
	ErrShuttingDown = errors.New("process is shutting down")

	// ErrRestartPending rejects a restart when one was already admitted in
	// the current cycle.
	ErrRestartPending = errors.New("restart already pending")

	// ErrNotRunning rejects a restart when no cycle is active.
	ErrNotRunning = errors.New("application is not running")
)

// InterruptedError reports that startup was cancelled before every
// component had been attempted.
type InterruptedError struct {
	Attempted int
	Total     int
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("interrupted during startup after attempting %d of %d components", e.Attempted, e.Total)
}

// Unwrap makes InterruptedError match context.Canceled.
func (e *InterruptedError) Unwrap() error {
	return context.Canceled
}
