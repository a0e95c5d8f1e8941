// Package shutdown runs cleanup hooks, such as flushing telemetry, when the
// process receives SIGINT or SIGTERM.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/amp-labs/amp-resilience/logger"
)

// DefaultHookTimeout bounds how long the hooks may run in total.
const DefaultHookTimeout = 10 * time.Second

// Hook cleans up a resource. The context it receives outlives the
// canceled application context for up to the hook timeout.
type Hook func(ctx context.Context) error

// Handler collects hooks and runs them once, on the first signal or Trigger.
type Handler struct {
	timeout time.Duration

	mut     sync.Mutex
	hooks   []Hook
	once    sync.Once
	trigger chan os.Signal
	err     error
}

// NewHandler creates a Handler. A non-positive timeout means DefaultHookTimeout.
func NewHandler(timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = DefaultHookTimeout
	}

	return &Handler{
		timeout: timeout,
		trigger: make(chan os.Signal, 1),
	}
}

// BeforeShutdown registers a hook. Hooks run in registration order before
// the context returned by Listen is canceled.
func (h *Handler) BeforeShutdown(hook Hook) {
	h.mut.Lock()
	defer h.mut.Unlock()

	h.hooks = append(h.hooks, hook)
}

// Listen returns a context that is canceled once the hooks have run, after
// SIGINT, SIGTERM or Trigger.
func (h *Handler) Listen(ctx context.Context) context.Context {
	signal.Notify(h.trigger, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer cancel()
		defer signal.Stop(h.trigger)

		select {
		case sig := <-h.trigger:
			logger.Get(ctx).Warn("Received " + sig.String() + ", shutting down...")
		case <-ctx.Done():
		}

		h.Run(context.WithoutCancel(ctx))
	}()

	return ctx
}

// Trigger starts the shutdown without a signal.
func (h *Handler) Trigger() {
	select {
	case h.trigger <- os.Interrupt:
	default:
	}
}

// Run executes the hooks once and returns their joined errors. Later
// calls return the same result without running anything.
func (h *Handler) Run(ctx context.Context) error {
	h.once.Do(func() {
		h.mut.Lock()
		hooks := h.hooks
		h.hooks = nil
		h.mut.Unlock()

		ctx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()

		errs := make([]error, 0, len(hooks))

		for _, hook := range hooks {
			if err := hook(ctx); err != nil {
				logger.Get(ctx).Error("shutdown hook failed", "error", err)

				errs = append(errs, err)
			}
		}

		h.err = errors.Join(errs...)
	})

	return h.err
}
