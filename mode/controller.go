package mode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/nwah/tripnav/nav"
	"github.com/nwah/tripnav/trip"
)

// Mode is the visible panel of the trip planner
type Mode string

const (
	Idle          Mode = "idle"
	Searching     Mode = "searching"
	PlaceSelected Mode = "place-selected"
	Routing       Mode = "routing"
	Navigating    Mode = "navigating"
)

var (
	// ErrInvalidTransition is returned when an action is not allowed in the current mode
	ErrInvalidTransition = errors.New("invalid mode transition")
	// ErrUnknownPlace is returned when a selected place is not among the search results
	ErrUnknownPlace = errors.New("unknown place")
)

// Options configures a Controller
type Options struct {
	Store     *trip.Store
	Geocoder  nav.Geocoder
	Navigator nav.Navigator
	Debounce  time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

// Controller is the panel state machine. It never calls the store while
// holding its own lock, so store subscribers may read the panel.
type Controller struct {
	store     *trip.Store
	geocoder  nav.Geocoder
	navigator nav.Navigator
	logger    *slog.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	search     *Debouncer
	editSearch *Debouncer

	mu         sync.Mutex
	mode       Mode
	query      string
	results    []nav.Place
	open       bool
	searching  bool
	builds     int
	starting   bool
	err        error
	retry      func(context.Context) error
	navigation *nav.NavigationResponse
	editor     editor
	searchGen  uint64
	navGen     uint64
	onChange   func(Panel)
}

// NewController creates a controller in Idle mode
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		store:      opts.Store,
		geocoder:   opts.Geocoder,
		navigator:  opts.Navigator,
		logger:     logger.With("component", "mode"),
		now:        now,
		ctx:        ctx,
		cancel:     cancel,
		search:     NewDebouncer(opts.Debounce),
		editSearch: NewDebouncer(opts.Debounce),
		mode:       Idle,
	}
}

// OnChange registers fn to receive a panel snapshot after every change
func (c *Controller) OnChange(fn func(Panel)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(c.Panel())
	}
}

// Mode returns the current mode
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Close stops pending searches and aborts background geocode calls
func (c *Controller) Close() {
	c.search.Stop()
	c.editSearch.Stop()
	c.cancel()
}

func invalid(action string, m Mode) error {
	return fmt.Errorf("%w: %s in %s", ErrInvalidTransition, action, m)
}

func (c *Controller) clearError() {
	c.mu.Lock()
	c.err = nil
	c.retry = nil
	c.mu.Unlock()
}

// SetQuery updates the search input. A non-empty query enters Searching and
// schedules a debounced geocode. With submit set, the results are selected
// as soon as they arrive and the first one becomes the destination.
func (c *Controller) SetQuery(query string, submit bool) error {
	c.mu.Lock()
	switch c.mode {
	case Idle, Searching, PlaceSelected:
	default:
		m := c.mode
		c.mu.Unlock()
		return invalid("search", m)
	}

	c.searchGen++
	gen := c.searchGen
	c.query = query

	if query == "" {
		c.search.Stop()
		c.results = nil
		c.open = false
		c.searching = false
		c.mode = Idle
		c.mu.Unlock()

		c.store.SetSelections(nil)
		c.notify()
		return nil
	}

	c.mode = Searching
	c.searching = true
	c.mu.Unlock()

	c.search.Trigger(func() { c.runSearch(gen, query, submit) })
	c.notify()
	return nil
}

func (c *Controller) runSearch(gen uint64, query string, submit bool) {
	places, err := c.geocode(query)

	c.mu.Lock()
	if gen != c.searchGen || c.mode != Searching {
		c.mu.Unlock()
		return
	}
	c.searching = false
	if err != nil {
		c.err = err
		c.retry = func(context.Context) error { return c.SetQuery(query, submit) }
		c.mu.Unlock()
		c.logger.Warn("search failed", "query", query, "error", err)
		c.notify()
		return
	}

	c.err = nil
	c.retry = nil
	c.results = places
	if !submit || len(places) == 0 {
		c.open = true
		c.mu.Unlock()
		c.notify()
		return
	}
	c.mu.Unlock()

	// Selections are in place before the mode changes so a caller that sees
	// PlaceSelected can build a route right away.
	c.store.SetSelections(places)

	c.mu.Lock()
	if gen == c.searchGen && c.mode == Searching {
		c.mode = PlaceSelected
		c.open = false
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) geocode(query string) ([]nav.Place, error) {
	if c.geocoder == nil {
		return nil, nav.ErrMissingConfiguration
	}
	return c.geocoder.Geocode(c.ctx, query)
}

// SelectPlace picks a search result by id and shows the place panel
func (c *Controller) SelectPlace(id string) error {
	c.mu.Lock()
	if c.mode != Searching && c.mode != PlaceSelected {
		m := c.mode
		c.mu.Unlock()
		return invalid("select place", m)
	}
	i := slices.IndexFunc(c.results, func(p nav.Place) bool { return p.ID == id })
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownPlace, id)
	}
	place := c.results[i]
	c.searchGen++
	c.search.Stop()
	c.mu.Unlock()

	c.store.SetSelections([]nav.Place{place})

	c.mu.Lock()
	c.searching = false
	c.mode = PlaceSelected
	c.open = false
	c.mu.Unlock()
	c.notify()
	return nil
}

// ShowDirections builds a route to the selected place and enters Routing once
// it succeeds. When no origin can be determined the routing panel still opens
// so the user can set one. Other failures keep the current mode and offer a retry.
func (c *Controller) ShowDirections(ctx context.Context) error {
	c.mu.Lock()
	if c.mode != PlaceSelected {
		m := c.mode
		c.mu.Unlock()
		return invalid("show directions", m)
	}
	c.builds++
	c.err = nil
	c.retry = nil
	c.mu.Unlock()
	c.notify()

	err := c.store.BuildRoute(ctx)

	c.mu.Lock()
	c.builds--
	switch {
	case err == nil:
		if c.mode == PlaceSelected {
			c.mode = Routing
		}
	case errors.Is(err, trip.ErrSuperseded):
	case errors.Is(err, trip.ErrLocationUnavailable):
		if c.mode == PlaceSelected {
			c.mode = Routing
		}
		c.err = err
	default:
		c.err = err
		c.retry = c.ShowDirections
	}
	c.mu.Unlock()

	if err != nil && !errors.Is(err, trip.ErrSuperseded) {
		c.logger.Warn("show directions failed", "error", err)
	}
	c.notify()
	return err
}

// rebuild recomputes the route after an edit in the routing panel
func (c *Controller) rebuild(ctx context.Context, opts ...trip.BuildOption) error {
	c.mu.Lock()
	c.builds++
	c.err = nil
	c.retry = nil
	c.mu.Unlock()
	c.notify()

	err := c.store.BuildRoute(ctx, opts...)

	c.mu.Lock()
	c.builds--
	switch {
	case err == nil, errors.Is(err, trip.ErrSuperseded):
	case errors.Is(err, trip.ErrLocationUnavailable):
		c.err = err
	default:
		c.err = err
		c.retry = func(ctx context.Context) error { return c.rebuild(ctx) }
	}
	c.mu.Unlock()

	if err != nil && !errors.Is(err, trip.ErrSuperseded) {
		c.logger.Warn("route rebuild failed", "error", err)
	}
	c.notify()
	return err
}

// StartNavigation enters Navigating and fetches turn-by-turn directions for
// the current origin, stops and destination. The mode changes before the
// fetch; a failed fetch stays in Navigating with a retry.
func (c *Controller) StartNavigation(ctx context.Context) error {
	state := c.store.Snapshot()

	c.mu.Lock()
	if c.mode != Routing {
		m := c.mode
		c.mu.Unlock()
		return invalid("start navigation", m)
	}
	if state.ActiveRoute() == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: no active route", ErrInvalidTransition)
	}
	c.mode = Navigating
	c.navGen++
	gen := c.navGen
	c.editor.reset()
	c.starting = true
	c.navigation = nil
	c.err = nil
	c.retry = nil
	c.mu.Unlock()

	c.editSearch.Stop()
	c.store.SetPreview(nil)
	c.store.SetNavigating(true)
	c.notify()

	return c.fetchNavigation(ctx, gen)
}

func (c *Controller) fetchNavigation(ctx context.Context, gen uint64) error {
	resp, err := c.navigate(ctx)

	c.mu.Lock()
	if gen != c.navGen {
		c.mu.Unlock()
		return trip.ErrSuperseded
	}
	c.starting = false
	if errors.Is(err, trip.ErrSuperseded) {
		c.mu.Unlock()
		c.notify()
		return err
	}
	if err != nil {
		c.err = err
		c.retry = func(ctx context.Context) error {
			c.mu.Lock()
			if c.mode != Navigating {
				m := c.mode
				c.mu.Unlock()
				return invalid("fetch navigation", m)
			}
			c.starting = true
			g := c.navGen
			c.mu.Unlock()
			c.notify()
			return c.fetchNavigation(ctx, g)
		}
	} else {
		c.navigation = resp
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("navigation fetch failed", "error", err)
	}
	c.notify()
	return err
}

func (c *Controller) navigate(ctx context.Context) (*nav.NavigationResponse, error) {
	if c.navigator == nil {
		return nil, nav.ErrMissingConfiguration
	}
	state := c.store.Snapshot()
	dest := state.Destination()
	if dest == nil {
		return nil, trip.ErrNoDestination
	}
	start, err := c.store.ResolveOrigin(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.navigator.Navigation(ctx, start, dest.Coords(), nav.PlaceCoords(state.Stops))
	if err != nil {
		return nil, fmt.Errorf("fetching navigation: %w", err)
	}
	return resp, nil
}

// EndNavigation returns to Routing with the route still shown
func (c *Controller) EndNavigation() error {
	c.mu.Lock()
	if c.mode != Navigating {
		m := c.mode
		c.mu.Unlock()
		return invalid("end navigation", m)
	}
	c.mode = Routing
	c.navGen++
	c.starting = false
	c.navigation = nil
	c.err = nil
	c.retry = nil
	c.mu.Unlock()

	c.store.SetNavigating(false)
	c.notify()
	return nil
}

// Cancel abandons the trip from any mode: routes, layers, selections, origin
// and stops are cleared, then the panel closes and the mode returns to Idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	c.searchGen++
	c.navGen++
	c.editor.reset()
	c.mode = Idle
	c.query = ""
	c.results = nil
	c.open = false
	c.searching = false
	c.starting = false
	c.err = nil
	c.retry = nil
	c.navigation = nil
	c.mu.Unlock()

	c.search.Stop()
	c.editSearch.Stop()
	c.store.Reset()
	c.notify()
}

// Retry repeats the last failed action
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	retry := c.retry
	c.mu.Unlock()
	if retry == nil {
		return fmt.Errorf("%w: nothing to retry", ErrInvalidTransition)
	}
	c.clearError()
	return retry(ctx)
}
