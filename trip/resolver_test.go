package trip

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nwah/tripnav/nav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTimeout = errors.New("timeout expired")

type fakeLocator struct {
	mu       sync.Mutex
	low      func() (Fix, error)
	high     func() (Fix, error)
	requests []PositionOptions
	deadline []bool

	watchFix  func(Fix)
	watchErr  func(error)
	watchOpts PositionOptions
	stopped   bool
}

func (f *fakeLocator) CurrentPosition(ctx context.Context, opts PositionOptions) (Fix, error) {
	f.mu.Lock()
	f.requests = append(f.requests, opts)
	_, ok := ctx.Deadline()
	f.deadline = append(f.deadline, ok)
	f.mu.Unlock()

	if opts.HighAccuracy {
		return f.high()
	}
	return f.low()
}

func (f *fakeLocator) WatchPosition(opts PositionOptions, onFix func(Fix), onError func(error)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchOpts = opts
	f.watchFix = onFix
	f.watchErr = onError
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stopped = true
	}
}

func fails() (Fix, error) { return Fix{}, errTimeout }

func returns(c nav.Coordinates) func() (Fix, error) {
	return func() (Fix, error) { return Fix{Coords: c}, nil }
}

func TestResolverFallsBackToHighAccuracy(t *testing.T) {
	highFix := nav.Coordinates{Lng: 76.301, Lat: 10.002}
	locator := &fakeLocator{low: fails, high: returns(highFix)}
	r := NewResolver(locator, nil)

	store := NewStore(Options{Router: &fakeRouter{routes: []nav.RouteCandidate{candidate(600)}}, Resolver: r})
	r.OnFix(store.SetLiveFix)
	require.True(t, store.setLocationErrorFor(0, LocationErrorMessage))

	coords, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, highFix, coords)

	require.Len(t, locator.requests, 2)
	assert.Equal(t, LowAccuracyRequest, locator.requests[0])
	assert.Equal(t, HighAccuracyRequest, locator.requests[1])
	assert.Equal(t, []bool{true, true}, locator.deadline, "each strategy runs with its own timeout")

	state := store.Snapshot()
	assert.Empty(t, state.LocationError)
	assert.Equal(t, highFix, *state.LiveCoords)

	cached, ok := r.Cached()
	require.True(t, ok)
	assert.Equal(t, highFix, cached.Coords)
}

func TestResolverStrategies(t *testing.T) {
	lowFix := nav.Coordinates{Lng: 76.3, Lat: 10}
	highFix := nav.Coordinates{Lng: 76.31, Lat: 10.01}

	tests := []struct {
		name         string
		low, high    func() (Fix, error)
		want         nav.Coordinates
		wantErr      bool
		wantRequests int
	}{
		{name: "low accuracy wins", low: returns(lowFix), high: returns(highFix), want: lowFix, wantRequests: 1},
		{name: "high accuracy fallback", low: fails, high: returns(highFix), want: highFix, wantRequests: 2},
		{name: "all strategies fail", low: fails, high: fails, wantErr: true, wantRequests: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locator := &fakeLocator{low: tt.low, high: tt.high}
			r := NewResolver(locator, nil)

			coords, err := r.Resolve(context.Background())
			assert.Len(t, locator.requests, tt.wantRequests)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrLocationUnavailable)
				assert.ErrorIs(t, err, errTimeout)
				_, ok := r.Cached()
				assert.False(t, ok)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, coords)
		})
	}
}

func TestResolverUsesWatchCache(t *testing.T) {
	locator := &fakeLocator{low: fails, high: fails}
	r := NewResolver(locator, nil)

	var fixes []Fix
	r.OnFix(func(f Fix) { fixes = append(fixes, f) })

	r.Start()
	assert.Equal(t, WatchRequest, locator.watchOpts)

	locator.watchErr(errTimeout)
	watched := nav.Coordinates{Lng: 76.28, Lat: 9.99}
	locator.watchFix(Fix{Coords: watched})

	coords, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, watched, coords)
	assert.Empty(t, locator.requests, "cache hit needs no one-shot request")
	assert.Len(t, fixes, 1)

	r.Stop()
	assert.True(t, locator.stopped)
	r.Stop()
}

func TestResolverWithoutLocator(t *testing.T) {
	r := NewResolver(nil, nil)
	r.Start()
	_, err := r.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrLocationUnavailable)
}

func TestResolverHonorsCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	locator := &fakeLocator{
		low: func() (Fix, error) {
			cancel()
			return Fix{}, context.Canceled
		},
		high: returns(gps),
	}
	r := NewResolver(locator, nil)

	_, err := r.Resolve(ctx)
	assert.ErrorIs(t, err, ErrLocationUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, locator.requests, 1)
}
