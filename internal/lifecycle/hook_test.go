package lifecycle

import (
	"context"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/jiotty/internal/logging"
)

// fakeProcess stands in for signal delivery and os.Exit.
type fakeProcess struct {
	mu          sync.Mutex
	ch          chan<- os.Signal
	notifyCalls int
	stopCalls   int
	exits       chan int
}

func installFakeProcess(t *testing.T) *fakeProcess {
	t.Helper()
	fp := &fakeProcess{exits: make(chan int, 4)}

	prevNotify, prevStop, prevExit := notifySignals, stopSignals, exitFunc
	notifySignals = func(c chan<- os.Signal, _ ...os.Signal) {
		fp.mu.Lock()
		defer fp.mu.Unlock()
		fp.ch = c
		fp.notifyCalls++
	}
	stopSignals = func(chan<- os.Signal) {
		fp.mu.Lock()
		defer fp.mu.Unlock()
		fp.stopCalls++
	}
	exitFunc = func(code int) { fp.exits <- code }
	t.Cleanup(func() {
		notifySignals, stopSignals, exitFunc = prevNotify, prevStop, prevExit
	})
	return fp
}

func (fp *fakeProcess) send(sig os.Signal) {
	fp.mu.Lock()
	ch := fp.ch
	fp.mu.Unlock()
	ch <- sig
}

func (fp *fakeProcess) counts() (notify, stop int) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.notifyCalls, fp.stopCalls
}

func newHookedApp(source Source, opts ...Option) *Application {
	all := append([]Option{
		WithSignals(syscall.SIGTERM),
		WithRegisterer(prometheus.NewRegistry()),
		WithLogger(logging.GetLogger("lifecycle.hook")),
	}, opts...)
	return New(source, all...)
}

func TestExitHookInstalledOnce(t *testing.T) {
	fp := installFakeProcess(t)

	var ctl Control
	calls := 0
	source := SourceFunc(func(c Control) ([]Component, error) {
		ctl = c
		calls++
		return []Component{NewComponent("A", func(context.Context) error {
			if calls < 3 {
				return ctl.InitiateRestart()
			}
			ctl.InitiateShutdown()
			return nil
		}, nil)}, nil
	})
	app := newHookedApp(source)
	app.installExitHook()

	require.NoError(t, app.Run(context.Background()))
	assert.Equal(t, 3, calls)

	notify, _ := fp.counts()
	assert.Equal(t, 1, notify)
	assert.Equal(t, "lifecycle.hook", app.logger.Name())
}

func TestExitHookStopsActiveCycle(t *testing.T) {
	fp := installFakeProcess(t)
	rec := &recorder{}
	release := make(chan struct{})
	app := newHookedApp(staticSource(
		&probe{name: "A", rec: rec},
		&probe{name: "B", rec: rec, stopRelease: release},
	))

	done := runAsync(app, context.Background())
	waitState(t, app, 1, StateRunning)

	fp.send(syscall.SIGTERM)
	require.Eventually(t, func() bool { return app.Status().State == StateStopping }, 2*time.Second, 5*time.Millisecond)

	assert.True(t, app.Status().ShuttingDown)
	assert.ErrorIs(t, app.InitiateRestart(), ErrShuttingDown)

	close(release)
	require.NoError(t, waitRun(t, done))
	assert.Equal(t, []string{"start:A", "start:B", "stop:B", "stop:A"}, rec.list())
	assert.Equal(t, 1, app.Status().Cycle)

	_, stop := fp.counts()
	assert.Equal(t, 1, stop)
	select {
	case code := <-fp.exits:
		t.Fatalf("unexpected exit(%d) after clean teardown", code)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestExitHookTimeout(t *testing.T) {
	fp := installFakeProcess(t)
	rec := &recorder{}
	release := make(chan struct{})
	app := newHookedApp(staticSource(&probe{name: "A", rec: rec, stopRelease: release}),
		WithExitTimeout(30*time.Millisecond))

	done := runAsync(app, context.Background())
	waitState(t, app, 1, StateRunning)
	fp.send(syscall.SIGTERM)

	select {
	case code := <-fp.exits:
		assert.Equal(t, 1, code)
	case <-time.After(2 * time.Second):
		t.Fatal("exit hook did not give up")
	}

	close(release)
	require.NoError(t, waitRun(t, done))
}

func TestExitHookWithoutRun(t *testing.T) {
	fp := installFakeProcess(t)
	app := newHookedApp(staticSource())

	fp.send(syscall.SIGTERM)

	select {
	case code := <-fp.exits:
		assert.Equal(t, 0, code)
	case <-time.After(2 * time.Second):
		t.Fatal("exit hook did not exit")
	}
	assert.True(t, app.Status().ShuttingDown)
	assert.ErrorIs(t, app.InitiateRestart(), ErrShuttingDown)
}

func TestExitHookCancelsStartup(t *testing.T) {
	fp := installFakeProcess(t)
	rec := &recorder{}
	var app *Application
	app = newHookedApp(SourceFunc(func(Control) ([]Component, error) {
		return []Component{
			&probe{name: "A", rec: rec, onStart: func() {
				fp.send(syscall.SIGTERM)
				select {
				case <-app.current.Load().startCtx.Done():
				case <-time.After(2 * time.Second):
					t.Error("startup was not cancelled")
				}
			}},
			&probe{name: "B", rec: rec},
		}, nil
	}))

	require.NoError(t, app.Run(context.Background()))
	assert.Equal(t, []string{"start:A", "stop:A"}, rec.list())
	assert.Contains(t, app.Status().History[0].StartError, "attempting 1 of 2")
}

func TestNoSignalsDisablesHook(t *testing.T) {
	fp := installFakeProcess(t)
	New(staticSource(), WithSignals(), WithRegisterer(prometheus.NewRegistry()))

	notify, _ := fp.counts()
	assert.Equal(t, 0, notify)
}
