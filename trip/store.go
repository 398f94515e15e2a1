package trip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/nwah/tripnav/nav"
)

// Event names a part of the trip state that subscribers can watch
type Event string

const (
	EventSelections    Event = "selections"
	EventStops         Event = "stops"
	EventPreview       Event = "preview"
	EventOrigin        Event = "origin"
	EventRoutes        Event = "routes"
	EventActiveRoute   Event = "active-route"
	EventPosition      Event = "position"
	EventLocationError Event = "location-error"
	EventNavigating    Event = "navigating"
)

// MapSync receives route layer updates. Implementations are called with the
// store lock held and must not call back into the Store.
type MapSync interface {
	ClearRoutes()
	DrawRoutes(routes []nav.RouteCandidate, active int)
	StyleRoutes(active int)
	FitRoute(geometry nav.LineString)
}

// PositionResolver resolves the current device position
type PositionResolver interface {
	Resolve(ctx context.Context) (nav.Coordinates, error)
}

// Options configures a Store
type Options struct {
	Router   nav.Router
	Resolver PositionResolver
	Logger   *slog.Logger
}

type subscriber struct {
	id int
	fn func(State)
}

// Store owns the trip state for a single planning session
type Store struct {
	router   nav.Router
	resolver PositionResolver
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	maps       MapSync
	generation uint64

	subMu  sync.Mutex
	subs   map[Event][]subscriber
	nextID int
}

// NewStore creates an empty trip store
func NewStore(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		router:   opts.Router,
		resolver: opts.Resolver,
		logger:   logger.With("component", "trip"),
		state:    State{ActiveIndex: -1},
		subs:     make(map[Event][]subscriber),
	}
}

// AttachMap sets the map synchronizer. Passing nil detaches it.
func (s *Store) AttachMap(m MapSync) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maps = m
}

// Subscribe registers fn for event and returns a function that removes it.
// Callbacks run on the goroutine that changed the state, without the store lock.
func (s *Store) Subscribe(event Event, fn func(State)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs[event] = append(s.subs[event], subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			s.subs[event] = slices.DeleteFunc(s.subs[event], func(sub subscriber) bool {
				return sub.id == id
			})
		})
	}
}

func (s *Store) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	snapshot := s.Snapshot()

	for _, event := range events {
		s.subMu.Lock()
		subs := slices.Clone(s.subs[event])
		s.subMu.Unlock()

		for _, sub := range subs {
			sub.fn(snapshot)
		}
	}
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// SetSelections replaces the selected places. The first one is the destination.
func (s *Store) SetSelections(places []nav.Place) {
	s.mu.Lock()
	s.state.Selections = slices.Clone(places)
	s.mu.Unlock()
	s.emit(EventSelections)
}

// SetDestination makes place the only selection
func (s *Store) SetDestination(place nav.Place) {
	s.SetSelections([]nav.Place{place})
}

// PromoteSelection moves the selection with the given id to the front
func (s *Store) PromoteSelection(id string) bool {
	s.mu.Lock()
	i := slices.IndexFunc(s.state.Selections, func(p nav.Place) bool { return p.ID == id })
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	if i > 0 {
		p := s.state.Selections[i]
		s.state.Selections = slices.Delete(s.state.Selections, i, i+1)
		s.state.Selections = slices.Insert(s.state.Selections, 0, p)
	}
	s.mu.Unlock()
	s.emit(EventSelections)
	return true
}

// SetOrigin sets an explicit origin. nil means the live position is used.
func (s *Store) SetOrigin(origin *nav.Place) {
	s.mu.Lock()
	if origin != nil {
		o := *origin
		origin = &o
	}
	s.state.Origin = origin
	s.mu.Unlock()
	s.emit(EventOrigin)
}

// OriginLabel returns the origin text or "My Location"
func (s *Store) OriginLabel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.OriginLabel()
}

// AddStop appends a stop and returns the new stop list. It does not rebuild the route.
func (s *Store) AddStop(place nav.Place) []nav.Place {
	s.mu.Lock()
	s.state.Stops = append(s.state.Stops, place)
	stops := slices.Clone(s.state.Stops)
	s.mu.Unlock()
	s.emit(EventStops)
	return stops
}

// RemoveStop removes the stop at index and returns the new stop list. It does not rebuild the route.
func (s *Store) RemoveStop(index int) ([]nav.Place, error) {
	s.mu.Lock()
	if index < 0 || index >= len(s.state.Stops) {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrStopIndex, index)
	}
	s.state.Stops = slices.Delete(s.state.Stops, index, index+1)
	stops := slices.Clone(s.state.Stops)
	s.mu.Unlock()
	s.emit(EventStops)
	return stops, nil
}

// SetStops replaces the stop list
func (s *Store) SetStops(stops []nav.Place) {
	s.mu.Lock()
	s.state.Stops = slices.Clone(stops)
	s.mu.Unlock()
	s.emit(EventStops)
}

// SetPreview sets the transient preview place, nil clears it
func (s *Store) SetPreview(place *nav.Place) {
	s.mu.Lock()
	if place != nil {
		p := *place
		place = &p
	}
	s.state.Preview = place
	s.mu.Unlock()
	s.emit(EventPreview)
}

// SetLiveFix records a position sample and clears any location advisory
func (s *Store) SetLiveFix(fix Fix) {
	s.mu.Lock()
	coords := fix.Coords
	s.state.LiveCoords = &coords
	if fix.Heading != nil {
		h := *fix.Heading
		s.state.Heading = &h
	}
	hadError := s.state.LocationError != ""
	s.state.LocationError = ""
	s.mu.Unlock()

	if hadError {
		s.emit(EventPosition, EventLocationError)
		return
	}
	s.emit(EventPosition)
}

// setLocationErrorFor records msg unless gen has been superseded. It reports
// whether gen is still current.
func (s *Store) setLocationErrorFor(gen uint64, msg string) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}
	changed := s.state.LocationError != msg
	s.state.LocationError = msg
	s.mu.Unlock()
	if changed {
		s.emit(EventLocationError)
	}
	return true
}

// SetNavigating toggles navigation mode
func (s *Store) SetNavigating(navigating bool) {
	s.mu.Lock()
	changed := s.state.Navigating != navigating
	s.state.Navigating = navigating
	s.mu.Unlock()
	if changed {
		s.emit(EventNavigating)
	}
}

// clearRoutesLocked drops candidates and route layers. Callers hold s.mu.
func (s *Store) clearRoutesLocked() {
	s.state.Routes = nil
	s.state.ActiveIndex = -1
	if s.maps != nil {
		s.maps.ClearRoutes()
	}
}

// ClearRoutes removes all candidate routes and their layers. In-flight builds are discarded.
func (s *Store) ClearRoutes() {
	s.mu.Lock()
	s.generation++
	s.clearRoutesLocked()
	s.mu.Unlock()
	s.emit(EventRoutes, EventActiveRoute)
}

// SelectRoute makes the candidate at index active and restyles the layers.
// index -1 clears the active route.
func (s *Store) SelectRoute(index int) error {
	s.mu.Lock()
	if index < -1 || index >= len(s.state.Routes) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownRoute, index)
	}
	s.state.ActiveIndex = index
	if s.maps != nil && len(s.state.Routes) > 0 {
		s.maps.StyleRoutes(index)
	}
	s.mu.Unlock()
	s.emit(EventActiveRoute)
	return nil
}

// Reset clears routes, selections, origin and stops, in that order, plus the
// preview and navigation flag. The live position is kept.
func (s *Store) Reset() {
	s.mu.Lock()
	s.generation++
	s.clearRoutesLocked()
	s.state.Selections = nil
	s.state.Origin = nil
	s.state.Stops = nil
	s.state.Preview = nil
	s.state.Navigating = false
	s.mu.Unlock()

	s.emit(EventRoutes, EventActiveRoute, EventSelections, EventOrigin, EventStops, EventPreview, EventNavigating)
}

type buildOptions struct {
	stops     []nav.Place
	stopsSet  bool
	origin    *nav.Place
	originSet bool
}

// BuildOption overrides stored state for a single build
type BuildOption func(*buildOptions)

// WithStops uses stops instead of the stored stop list
func WithStops(stops []nav.Place) BuildOption {
	return func(o *buildOptions) {
		o.stops = slices.Clone(stops)
		o.stopsSet = true
	}
}

// WithOrigin uses origin instead of the stored origin. nil forces the live position.
func WithOrigin(origin *nav.Place) BuildOption {
	return func(o *buildOptions) {
		o.origin = origin
		o.originSet = true
	}
}

// ResolveOrigin returns the stored origin or, without one, the live position.
// A ClearRoutes, Reset or build issued while resolving supersedes the call.
func (s *Store) ResolveOrigin(ctx context.Context) (nav.Coordinates, error) {
	s.mu.Lock()
	origin := s.state.Origin
	gen := s.generation
	s.mu.Unlock()
	return s.resolveOrigin(ctx, origin, gen)
}

func (s *Store) resolveOrigin(ctx context.Context, origin *nav.Place, gen uint64) (nav.Coordinates, error) {
	if origin != nil {
		return origin.Coords(), nil
	}
	if s.resolver == nil {
		if !s.setLocationErrorFor(gen, LocationErrorMessage) {
			return nav.Coordinates{}, ErrSuperseded
		}
		return nav.Coordinates{}, ErrLocationUnavailable
	}

	coords, err := s.resolver.Resolve(ctx)
	if err != nil {
		if !s.setLocationErrorFor(gen, LocationErrorMessage) {
			s.logger.Debug("discarding stale location failure", "generation", gen, "error", err)
			return nav.Coordinates{}, ErrSuperseded
		}
		s.logger.Warn("could not resolve origin", "error", err)
		if errors.Is(err, ErrLocationUnavailable) {
			return nav.Coordinates{}, err
		}
		return nav.Coordinates{}, fmt.Errorf("%w: %w", ErrLocationUnavailable, err)
	}
	if !s.setLocationErrorFor(gen, "") {
		return nav.Coordinates{}, ErrSuperseded
	}
	return coords, nil
}

// BuildRoute recomputes the candidate routes for the current destination.
//
// Existing routes and layers are cleared first. Each call is tagged with a
// generation; when a newer build, ClearRoutes or Reset happens before the
// directions call returns, the result is dropped and ErrSuperseded is returned.
// Origin resolution failures record the location advisory and return an error
// wrapping ErrLocationUnavailable.
func (s *Store) BuildRoute(ctx context.Context, opts ...BuildOption) error {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	dest := s.state.Destination()
	stops := slices.Clone(s.state.Stops)
	if o.stopsSet {
		stops = o.stops
	}
	origin := s.state.Origin
	if o.originSet {
		origin = o.origin
	}
	s.clearRoutesLocked()
	s.mu.Unlock()
	s.emit(EventRoutes, EventActiveRoute)

	if dest == nil {
		return ErrNoDestination
	}

	start, err := s.resolveOrigin(ctx, origin, gen)
	if err != nil {
		return err
	}

	if s.router == nil {
		return nav.ErrMissingConfiguration
	}
	routes, err := s.router.Route(ctx, start, dest.Coords(), nav.PlaceCoords(stops))
	if err != nil {
		if s.stale(gen) {
			return ErrSuperseded
		}
		return fmt.Errorf("building route: %w", err)
	}

	routes = orderCandidates(routes, len(stops) > 0)
	if len(routes) == 0 {
		if s.stale(gen) {
			return ErrSuperseded
		}
		return nav.ErrNoRouteFound
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("discarding stale route response", "generation", gen)
		return ErrSuperseded
	}
	s.state.Routes = routes
	s.state.ActiveIndex = 0
	if s.maps != nil {
		s.maps.DrawRoutes(slices.Clone(routes), 0)
		s.maps.FitRoute(routes[0].Geometry)
	}
	s.mu.Unlock()

	s.logger.Debug("route built", "candidates", len(routes), "stops", len(stops))
	s.emit(EventRoutes, EventActiveRoute)
	return nil
}

func (s *Store) stale(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != s.generation
}
