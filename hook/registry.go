package hook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mzansipass/transit/id"
	"github.com/mzansipass/transit/trip"
	"github.com/mzansipass/transit/txn"
	"github.com/mzansipass/transit/types"
)

// Registry manages registered hooks and dispatches events to them.
// Interface lists are cached at registration so dispatch does no type
// assertions.
type Registry struct {
	mu     sync.RWMutex
	hooks  []Hook
	logger *slog.Logger

	onInit           []OnInit
	onShutdown       []OnShutdown
	onTripStarted    []OnTripStarted
	onTripCompleted  []OnTripCompleted
	onTripCancelled  []OnTripCancelled
	onTripRefunded   []OnTripRefunded
	onTopupInitiated []OnTopupInitiated
	onTopupSettled   []OnTopupSettled
	onFaresSettled   []OnFaresSettled
}

// NewRegistry creates a new hook registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a hook to the registry and caches its interfaces.
func (r *Registry) Register(h Hook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.hooks {
		if existing.Name() == h.Name() {
			return fmt.Errorf("hook: duplicate registration: %s", h.Name())
		}
	}

	r.hooks = append(r.hooks, h)

	if v, ok := h.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := h.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := h.(OnTripStarted); ok {
		r.onTripStarted = append(r.onTripStarted, v)
	}
	if v, ok := h.(OnTripCompleted); ok {
		r.onTripCompleted = append(r.onTripCompleted, v)
	}
	if v, ok := h.(OnTripCancelled); ok {
		r.onTripCancelled = append(r.onTripCancelled, v)
	}
	if v, ok := h.(OnTripRefunded); ok {
		r.onTripRefunded = append(r.onTripRefunded, v)
	}
	if v, ok := h.(OnTopupInitiated); ok {
		r.onTopupInitiated = append(r.onTopupInitiated, v)
	}
	if v, ok := h.(OnTopupSettled); ok {
		r.onTopupSettled = append(r.onTopupSettled, v)
	}
	if v, ok := h.(OnFaresSettled); ok {
		r.onFaresSettled = append(r.onFaresSettled, v)
	}

	r.logger.Info("hook registered", "name", h.Name())

	return nil
}

// Get returns a hook by name.
func (r *Registry) Get(name string) Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, h := range r.hooks {
		if h.Name() == name {
			return h
		}
	}
	return nil
}

// List returns all registered hooks.
func (r *Registry) List() []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Hook, len(r.hooks))
	copy(result, r.hooks)
	return result
}

// Count returns the number of registered hooks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}

// ──────────────────────────────────────────────────
// Event emission
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all hooks that implement it.
func (r *Registry) EmitInit(ctx context.Context, core interface{}) {
	r.mu.RLock()
	hooks := r.onInit
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnInit(ctx, core)
		}); err != nil {
			r.logger.Warn("hook OnInit failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitShutdown calls OnShutdown for all hooks that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	hooks := r.onShutdown
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("hook OnShutdown failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitTripStarted emits a trip started event.
func (r *Registry) EmitTripStarted(ctx context.Context, t *trip.Trip) {
	r.mu.RLock()
	hooks := r.onTripStarted
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnTripStarted(ctx, t)
		}); err != nil {
			r.logger.Warn("hook OnTripStarted failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitTripCompleted emits a trip completed event.
func (r *Registry) EmitTripCompleted(ctx context.Context, t *trip.Trip, fare *txn.Transaction) {
	r.mu.RLock()
	hooks := r.onTripCompleted
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnTripCompleted(ctx, t, fare)
		}); err != nil {
			r.logger.Warn("hook OnTripCompleted failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitTripCancelled emits a trip cancelled event.
func (r *Registry) EmitTripCancelled(ctx context.Context, t *trip.Trip) {
	r.mu.RLock()
	hooks := r.onTripCancelled
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnTripCancelled(ctx, t)
		}); err != nil {
			r.logger.Warn("hook OnTripCancelled failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitTripRefunded emits a trip refunded event.
func (r *Registry) EmitTripRefunded(ctx context.Context, t *trip.Trip, refund *txn.Transaction) {
	r.mu.RLock()
	hooks := r.onTripRefunded
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnTripRefunded(ctx, t, refund)
		}); err != nil {
			r.logger.Warn("hook OnTripRefunded failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitTopupInitiated emits a top-up initiated event.
func (r *Registry) EmitTopupInitiated(ctx context.Context, t *txn.Transaction) {
	r.mu.RLock()
	hooks := r.onTopupInitiated
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnTopupInitiated(ctx, t)
		}); err != nil {
			r.logger.Warn("hook OnTopupInitiated failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitTopupSettled emits a top-up settled event.
func (r *Registry) EmitTopupSettled(ctx context.Context, t *txn.Transaction) {
	r.mu.RLock()
	hooks := r.onTopupSettled
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnTopupSettled(ctx, t)
		}); err != nil {
			r.logger.Warn("hook OnTopupSettled failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitFaresSettled emits an agency settlement event.
func (r *Registry) EmitFaresSettled(ctx context.Context, agencyID id.AgencyID, total types.Money, count int64) {
	r.mu.RLock()
	hooks := r.onFaresSettled
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnFaresSettled(ctx, agencyID, total, count)
		}); err != nil {
			r.logger.Warn("hook OnFaresSettled failed", "hook", h.Name(), "error", err)
		}
	}
}

// callWithTimeout calls a hook function with a timeout. Hooks must
// never block the fare pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, hookName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("hook timeout: %s", hookName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
