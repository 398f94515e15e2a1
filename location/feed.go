package location

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nwah/tripnav/trip"
)

var (
	// ErrTimeout is returned when no acceptable fix arrives within the request timeout
	ErrTimeout = errors.New("position request timed out")

	// ErrInvalidFix is returned for fixes with no usable position
	ErrInvalidFix = errors.New("invalid position fix")
)

// HighAccuracyLimit is the worst accuracy, in meters, a high accuracy request accepts.
// Fixes with unknown accuracy (zero) are accepted.
const HighAccuracyLimit = 50.0

// ValidateFix rejects fixes outside WGS84 range, at 0,0 (an unsolved position)
// or with a negative accuracy.
func ValidateFix(fix trip.Fix) error {
	c := fix.Coords
	switch {
	case math.IsNaN(c.Lng) || math.IsNaN(c.Lat):
		return fmt.Errorf("%w: not a number", ErrInvalidFix)
	case c.Lng == 0 && c.Lat == 0:
		return fmt.Errorf("%w: no solved location", ErrInvalidFix)
	case c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180:
		return fmt.Errorf("%w: out of range: %f,%f", ErrInvalidFix, c.Lng, c.Lat)
	case fix.Accuracy < 0:
		return fmt.Errorf("%w: negative accuracy", ErrInvalidFix)
	}
	return nil
}

type watcher struct {
	opts    trip.PositionOptions
	onFix   func(trip.Fix)
	onError func(error)
}

// Feed is a trip.Locator fed by pushed fixes, from a browser or a device
type Feed struct {
	now func() time.Time

	mu       sync.Mutex
	last     *trip.Fix
	notify   chan struct{}
	watchers map[int]watcher
	nextID   int
}

// NewFeed creates an empty feed
func NewFeed() *Feed {
	return &Feed{
		now:      time.Now,
		notify:   make(chan struct{}),
		watchers: make(map[int]watcher),
	}
}

func acceptable(fix trip.Fix, opts trip.PositionOptions) bool {
	return !opts.HighAccuracy || fix.Accuracy <= HighAccuracyLimit
}

// Publish records fix and hands it to waiting requests and watchers. A zero
// timestamp is set to the current time.
func (f *Feed) Publish(fix trip.Fix) {
	if fix.Timestamp.IsZero() {
		fix.Timestamp = f.now()
	}

	f.mu.Lock()
	f.last = &fix
	close(f.notify)
	f.notify = make(chan struct{})
	watchers := f.snapshotWatchers()
	f.mu.Unlock()

	for _, w := range watchers {
		if acceptable(fix, w.opts) {
			w.onFix(fix)
		}
	}
}

// Fail reports a source error to watchers
func (f *Feed) Fail(err error) {
	f.mu.Lock()
	watchers := f.snapshotWatchers()
	f.mu.Unlock()

	for _, w := range watchers {
		if w.onError != nil {
			w.onError(err)
		}
	}
}

func (f *Feed) snapshotWatchers() []watcher {
	out := make([]watcher, 0, len(f.watchers))
	for _, w := range f.watchers {
		out = append(out, w)
	}
	return out
}

// Last returns the most recent fix
func (f *Feed) Last() (trip.Fix, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return trip.Fix{}, false
	}
	return *f.last, true
}

// CurrentPosition returns the last fix when it is younger than MaximumAge,
// otherwise waits for the next acceptable one. A zero MaximumAge always waits.
func (f *Feed) CurrentPosition(ctx context.Context, opts trip.PositionOptions) (trip.Fix, error) {
	requested := f.now()

	f.mu.Lock()
	if f.last != nil && opts.MaximumAge > 0 &&
		requested.Sub(f.last.Timestamp) <= opts.MaximumAge && acceptable(*f.last, opts) {
		fix := *f.last
		f.mu.Unlock()
		return fix, nil
	}
	ch := f.notify
	f.mu.Unlock()

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return trip.Fix{}, ctx.Err()
		case <-timeout:
			return trip.Fix{}, ErrTimeout
		case <-ch:
			f.mu.Lock()
			fix := *f.last
			ch = f.notify
			f.mu.Unlock()
			if acceptable(fix, opts) {
				return fix, nil
			}
		}
	}
}

// WatchPosition delivers every acceptable fix until stop is called. A last fix
// younger than MaximumAge is delivered immediately.
func (f *Feed) WatchPosition(opts trip.PositionOptions, onFix func(trip.Fix), onError func(error)) (stop func()) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.watchers[id] = watcher{opts: opts, onFix: onFix, onError: onError}
	var initial *trip.Fix
	if f.last != nil && opts.MaximumAge > 0 &&
		f.now().Sub(f.last.Timestamp) <= opts.MaximumAge && acceptable(*f.last, opts) {
		fix := *f.last
		initial = &fix
	}
	f.mu.Unlock()

	if initial != nil {
		onFix(*initial)
	}

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.watchers, id)
	}
}
