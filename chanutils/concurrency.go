package chanutils

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrGroup iterates through the values of s and calls f on each of them in its
// own goroutine, then waits for all goroutines to report back. The number of
// active goroutines is limited to the number of CPUs. The context passed to f
// is canceled the first time a call returns a non-nil error, which is then
// returned.
func ErrGroup[V any, S []V](ctx context.Context,
	f func(context.Context, V) error, s S) error {

	errGroup, ctx := errgroup.WithContext(ctx)
	errGroup.SetLimit(runtime.NumCPU())

	for _, v := range s {
		v := v
		errGroup.Go(func() error {
			return f(ctx, v)
		})
	}

	return errGroup.Wait()
}

// ContextGuard is an embeddable struct that provides a wait group and main
// quit channel that can be used to create guarded contexts.
type ContextGuard struct {
	// DefaultTimeout is the timeout applied to contexts created with
	// WithCtxQuit.
	DefaultTimeout time.Duration

	// Wg tracks the goroutines of the embedding subsystem.
	Wg sync.WaitGroup

	// Quit is closed when the embedding subsystem shuts down.
	Quit chan struct{}
}

// NewContextGuard returns a guard with an open quit channel.
func NewContextGuard(defaultTimeout time.Duration) *ContextGuard {
	return &ContextGuard{
		DefaultTimeout: defaultTimeout,
		Quit:           make(chan struct{}),
	}
}

// WithCtxQuit is used to create a cancellable context that will be cancelled
// if the main quit signal is triggered or after the default timeout occurred.
func (g *ContextGuard) WithCtxQuit() (context.Context, func()) {
	ctx, cancel := context.WithTimeout(
		context.Background(), g.DefaultTimeout,
	)

	g.Wg.Add(1)
	go func() {
		defer cancel()
		defer g.Wg.Done()

		select {
		case <-g.Quit:
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// WithCtxQuitNoTimeout is used to create a cancellable context that will be
// cancelled only if the main quit signal is triggered.
func (g *ContextGuard) WithCtxQuitNoTimeout() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())

	g.Wg.Add(1)
	go func() {
		defer cancel()
		defer g.Wg.Done()

		select {
		case <-g.Quit:
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// CtxBlocking is used to create a cancellable context that will NOT be
// cancelled if the main quit signal is triggered, to block shutdown of
// important tasks.
func (g *ContextGuard) CtxBlocking() (context.Context, func()) {
	return context.WithTimeout(context.Background(), g.DefaultTimeout)
}
