// Package shutdown coordinates process termination: a signal handler that
// cancels the root context and hooks that run before it is cancelled.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
)

var (
	mut     sync.Mutex    //nolint:gochecknoglobals
	hooks   []*hook       //nolint:gochecknoglobals
	trigger chan struct{} //nolint:gochecknoglobals
	once    *sync.Once    //nolint:gochecknoglobals
)

type hook struct {
	run func()
}

// BeforeShutdown registers h to run when shutdown starts. The root context
// is still live while hooks run. Hooks run in reverse registration order,
// so later components stop before the ones they depend on.
//
// The returned function unregisters h. Components that stop on their own
// before the process does should call it.
func BeforeShutdown(h func()) (remove func()) {
	entry := &hook{run: h}

	mut.Lock()
	hooks = append(hooks, entry)
	mut.Unlock()

	return func() {
		mut.Lock()
		defer mut.Unlock()

		hooks = slices.DeleteFunc(hooks, func(e *hook) bool { return e == entry })
	}
}

// Shutdown starts the shutdown process programmatically. It is a no-op when
// no handler is installed.
func Shutdown() {
	mut.Lock()
	ch, o := trigger, once
	mut.Unlock()

	if ch != nil {
		o.Do(func() { close(ch) })
	}
}

// SetupHandler installs a SIGINT/SIGTERM handler and returns a context that
// is cancelled, after all hooks have run, once a signal arrives or Shutdown
// is called.
func SetupHandler() context.Context {
	return SetupHandlerWithParent(context.Background())
}

// SetupHandlerWithParent is SetupHandler with an explicit parent context.
// Cancelling the parent also runs the hooks.
func SetupHandlerWithParent(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	mut.Lock()
	trigger = make(chan struct{})
	once = &sync.Once{}
	ch := trigger
	mut.Unlock()

	go func() {
		defer signal.Stop(signals)

		select {
		case sig := <-signals:
			slog.Warn("Received " + sig.String() + ", shutting down...")
		case <-ch:
			slog.Info("Shutdown requested")
		case <-parent.Done():
		}

		runHooks()
		cancel()
	}()

	return ctx
}

func runHooks() {
	mut.Lock()
	pending := hooks
	hooks = nil
	mut.Unlock()

	for i := len(pending) - 1; i >= 0; i-- {
		pending[i].run()
	}
}
