package trip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nwah/tripnav/nav"
)

// PositionOptions mirrors the browser geolocation request options
type PositionOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

// Locator is a device position source
type Locator interface {
	// CurrentPosition returns one fix honoring opts, or an error on timeout.
	CurrentPosition(ctx context.Context, opts PositionOptions) (Fix, error)
	// WatchPosition delivers fixes until the returned stop function is called.
	WatchPosition(opts PositionOptions, onFix func(Fix), onError func(error)) (stop func())
}

// Strategy options, tried in order after the cache
var (
	LowAccuracyRequest  = PositionOptions{HighAccuracy: false, Timeout: 5 * time.Second, MaximumAge: 60 * time.Second}
	HighAccuracyRequest = PositionOptions{HighAccuracy: true, Timeout: 15 * time.Second, MaximumAge: 0}
	WatchRequest        = PositionOptions{HighAccuracy: false, MaximumAge: 30 * time.Second}
)

// Resolver resolves the current position with a cache fed by a background
// watch, then a quick low accuracy request, then a slow high accuracy one.
type Resolver struct {
	locator Locator
	logger  *slog.Logger

	mu        sync.Mutex
	cached    *Fix
	listeners []func(Fix)
	stopWatch func()
}

// NewResolver creates a resolver over locator
func NewResolver(locator Locator, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		locator: locator,
		logger:  logger.With("component", "geolocation"),
	}
}

// OnFix registers fn for every successful fix, from the watch or a one-shot request
func (r *Resolver) OnFix(fn func(Fix)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Start begins the background watch. Watch errors are ignored.
func (r *Resolver) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopWatch != nil || r.locator == nil {
		return
	}
	r.stopWatch = r.locator.WatchPosition(WatchRequest, r.record, func(err error) {
		r.logger.Debug("position watch error", "error", err)
	})
}

// Stop ends the background watch
func (r *Resolver) Stop() {
	r.mu.Lock()
	stop := r.stopWatch
	r.stopWatch = nil
	r.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Cached returns the last known fix
func (r *Resolver) Cached() (Fix, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached == nil {
		return Fix{}, false
	}
	return *r.cached, true
}

func (r *Resolver) record(fix Fix) {
	r.mu.Lock()
	r.cached = &fix
	listeners := append([]func(Fix){}, r.listeners...)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(fix)
	}
}

// Resolve returns the current position. Only the failure of the last strategy
// is surfaced, wrapped in ErrLocationUnavailable.
func (r *Resolver) Resolve(ctx context.Context) (nav.Coordinates, error) {
	if fix, ok := r.Cached(); ok {
		return fix.Coords, nil
	}
	if r.locator == nil {
		return nav.Coordinates{}, ErrLocationUnavailable
	}

	var lastErr error
	for _, opts := range []PositionOptions{LowAccuracyRequest, HighAccuracyRequest} {
		fix, err := r.request(ctx, opts)
		if err == nil {
			r.record(fix)
			return fix.Coords, nil
		}
		if ctx.Err() != nil {
			return nav.Coordinates{}, fmt.Errorf("%w: %w", ErrLocationUnavailable, ctx.Err())
		}
		r.logger.Debug("position request failed", "high_accuracy", opts.HighAccuracy, "error", err)
		lastErr = err
	}

	r.logger.Warn("all geolocation strategies failed", "error", lastErr)
	if errors.Is(lastErr, ErrLocationUnavailable) {
		return nav.Coordinates{}, lastErr
	}
	return nav.Coordinates{}, fmt.Errorf("%w: %w", ErrLocationUnavailable, lastErr)
}

func (r *Resolver) request(ctx context.Context, opts PositionOptions) (Fix, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	return r.locator.CurrentPosition(ctx, opts)
}
