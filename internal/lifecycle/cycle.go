package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// cycle is the state of one start/run/stop pass. A new value is created for
// every cycle so triggers are never reused.
type cycle struct {
	number    int
	id        string
	startedAt time.Time

	startCtx    context.Context
	cancelStart context.CancelFunc

	shutdown     chan struct{}
	shutdownOnce sync.Once
	stopped      chan struct{}
	stoppedOnce  sync.Once

	startedAll atomic.Bool
	restarting atomic.Bool
	state      atomic.Int32

	mu        sync.Mutex
	attempted []Component
	total     int
}

func newCycle(number int, startCtx context.Context, cancel context.CancelFunc) *cycle {
	return &cycle{
		number:      number,
		id:          uuid.NewString(),
		startedAt:   time.Now(),
		startCtx:    startCtx,
		cancelStart: cancel,
		shutdown:    make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// requestStop fires the shutdown trigger once every component started, and
// interrupts the startup sequence before that.
func (c *cycle) requestStop() {
	if c.startedAll.Load() {
		c.triggerShutdown()
		return
	}
	c.cancelStart()
}

func (c *cycle) triggerShutdown() {
	c.shutdownOnce.Do(func() { close(c.shutdown) })
}

func (c *cycle) markStopped() {
	c.stoppedOnce.Do(func() { close(c.stopped) })
}

func (c *cycle) isStopped() bool {
	select {
	case <-c.stopped:
		return true
	default:
		return false
	}
}

func (c *cycle) setState(s State) {
	c.state.Store(int32(s))
}

func (c *cycle) getState() State {
	return State(c.state.Load())
}

func (c *cycle) attempt(component Component) {
	c.mu.Lock()
	c.attempted = append(c.attempted, component)
	c.mu.Unlock()
}

func (c *cycle) setTotal(n int) {
	c.mu.Lock()
	c.total = n
	c.mu.Unlock()
}

func (c *cycle) attemptedComponents() []Component {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Component(nil), c.attempted...)
}

func (c *cycle) attemptedNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, len(c.attempted))
	for i, component := range c.attempted {
		names[i] = component.Name()
	}
	return names
}

func (c *cycle) counts() (attempted, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.attempted), c.total
}
