package mapsync

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nwah/tripnav/nav"
	"github.com/nwah/tripnav/trip"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Camera policy
const (
	PlaceZoom        = 14
	FitPadding       = 80
	RouteFitDuration = 800 * time.Millisecond

	NavigationZoom        = 17
	NavigationPitch       = 60
	NavigationFlyDuration = 1500 * time.Millisecond
	FollowEaseDuration    = 1000 * time.Millisecond

	ExitZoomStep = 3
	MinExitZoom  = 10
)

// Map event types
const (
	EventClick      = "click"
	EventMouseEnter = "mouseenter"
	EventMouseLeave = "mouseleave"
)

const routeLayerPrefix = "route-"

// MapEvent is a pointer event reported by the renderer. Layer or Marker name
// the hit target; a click without either is hit-tested against route lines.
type MapEvent struct {
	Type   string  `json:"type"`
	Layer  string  `json:"layer,omitempty"`
	Marker string  `json:"marker,omitempty"`
	Lng    float64 `json:"lng"`
	Lat    float64 `json:"lat"`
}

// RouteLayerID returns the source and layer id of the candidate at index
func RouteLayerID(index int) string {
	return routeLayerPrefix + strconv.Itoa(index)
}

func parseRouteLayer(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, routeLayerPrefix)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(rest)
	return i, err == nil && i >= 0
}

// Engine keeps a Surface consistent with a trip.Store
type Engine struct {
	surface Surface
	store   *trip.Store
	logger  *slog.Logger

	mu            sync.Mutex
	routeCount    int
	index         *routeIndex
	markers       map[MarkerCategory][]string
	placeByMarker map[string]string
	unsubscribe   []func()
	stopFollowing func()
	flown         bool // navigation fly done for the current navigation
}

// NewEngine creates an engine. Call Start to attach it to the store.
func NewEngine(surface Surface, store *trip.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		surface:       surface,
		store:         store,
		logger:        logger.With("component", "mapsync"),
		markers:       make(map[MarkerCategory][]string),
		placeByMarker: make(map[string]string),
	}
}

// Start attaches the engine to the store and reconciles the current state
func (e *Engine) Start() {
	e.store.AttachMap(e)

	e.mu.Lock()
	e.unsubscribe = []func(){
		e.store.Subscribe(trip.EventSelections, e.syncSelections),
		e.store.Subscribe(trip.EventStops, e.syncStops),
		e.store.Subscribe(trip.EventPreview, e.syncPreview),
		e.store.Subscribe(trip.EventNavigating, e.syncNavigation),
	}
	e.mu.Unlock()

	state := e.store.Snapshot()
	e.syncSelections(state)
	e.syncStops(state)
	e.syncPreview(state)
	e.syncNavigation(state)
}

// Close removes every store subscription, including the navigation follow camera
func (e *Engine) Close() {
	e.store.AttachMap(nil)

	e.mu.Lock()
	unsubs := e.unsubscribe
	e.unsubscribe = nil
	if e.stopFollowing != nil {
		unsubs = append(unsubs, e.stopFollowing)
		e.stopFollowing = nil
	}
	e.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// Following reports whether the navigation camera is tracking positions
func (e *Engine) Following() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopFollowing != nil
}

func paintFor(active bool) LinePaint {
	if active {
		return ActivePaint
	}
	return InactivePaint
}

// ClearRoutes removes every route source and layer
func (e *Engine) ClearRoutes() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeRoutesFrom(0)
	e.routeCount = 0
	e.index = nil
}

func (e *Engine) removeRoutesFrom(start int) {
	for i := start; ; i++ {
		id := RouteLayerID(i)
		hasLayer, hasSource := e.surface.HasLayer(id), e.surface.HasSource(id)
		if !hasLayer && !hasSource && i >= e.routeCount {
			return
		}
		if hasLayer {
			e.surface.RemoveLayer(id)
		}
		if hasSource {
			e.surface.RemoveSource(id)
		}
	}
}

// DrawRoutes creates or updates one source and line layer per candidate, then
// reapplies paint. Layers past the end of routes are removed.
func (e *Engine) DrawRoutes(routes []nav.RouteCandidate, active int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, r := range routes {
		id := RouteLayerID(i)
		data := geojson.NewFeature(r.Geometry.Orb())

		if e.surface.HasSource(id) {
			e.surface.SetSourceData(id, data)
		} else {
			e.surface.AddSource(id, data)
		}
		if !e.surface.HasLayer(id) {
			e.surface.AddLineLayer(id, id, InactivePaint)
		}
		e.surface.SetPaint(id, paintFor(i == active))
	}

	e.removeRoutesFrom(len(routes))
	e.routeCount = len(routes)
	e.index = newRouteIndex(routes)
}

// StyleRoutes repaints existing route layers without touching geometry
func (e *Engine) StyleRoutes(active int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := 0; i < e.routeCount; i++ {
		id := RouteLayerID(i)
		if !e.surface.HasLayer(id) {
			continue
		}
		e.surface.SetPaint(id, paintFor(i == active))
	}
}

// FitRoute fits the camera to a route geometry
func (e *Engine) FitRoute(geometry nav.LineString) {
	if len(geometry) == 0 {
		return
	}
	e.surface.FitBounds(geometry.Bound(), FitPadding, RouteFitDuration)
}

// replaceMarkers removes all markers of a category and adds the new set
func (e *Engine) replaceMarkers(category MarkerCategory, markers []Marker) {
	for _, id := range e.markers[category] {
		e.surface.RemoveMarker(id)
		delete(e.placeByMarker, id)
	}
	ids := make([]string, 0, len(markers))
	for _, m := range markers {
		e.surface.AddMarker(m)
		ids = append(ids, m.ID)
		if m.PlaceID != "" {
			e.placeByMarker[m.ID] = m.PlaceID
		}
	}
	e.markers[category] = ids
}

func placeMarker(category MarkerCategory, id string, p nav.Place, color string) Marker {
	return Marker{ID: id, Category: category, PlaceID: p.ID, Label: p.Text, Color: color, Coords: p.Coords()}
}

func (e *Engine) syncSelections(state trip.State) {
	markers := make([]Marker, len(state.Selections))
	for i, p := range state.Selections {
		color := ColorSelection
		if i == 0 {
			color = ColorPrimary
		}
		markers[i] = placeMarker(CategorySelection, fmt.Sprintf("selection-%d", i), p, color)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.replaceMarkers(CategorySelection, markers)

	switch len(state.Selections) {
	case 0:
	case 1:
		cam := e.surface.Camera()
		cam.Center = state.Selections[0].Coords()
		cam.Zoom = PlaceZoom
		cam.Duration = 0
		cam.Easing = ""
		e.surface.FlyTo(cam)
	default:
		var mp orb.MultiPoint
		for _, p := range state.Selections {
			mp = append(mp, p.Coords().Point())
		}
		e.surface.FitBounds(mp.Bound(), FitPadding, RouteFitDuration)
	}
}

func (e *Engine) syncStops(state trip.State) {
	markers := make([]Marker, len(state.Stops))
	for i, p := range state.Stops {
		markers[i] = placeMarker(CategoryStop, fmt.Sprintf("stop-%d", i), p, ColorStop)
		markers[i].PlaceID = ""
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.replaceMarkers(CategoryStop, markers)
}

func (e *Engine) syncPreview(state trip.State) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if state.Preview == nil {
		e.replaceMarkers(CategoryPreview, nil)
		return
	}
	m := placeMarker(CategoryPreview, "preview", *state.Preview, ColorPreview)
	m.PlaceID = ""
	e.replaceMarkers(CategoryPreview, []Marker{m})

	cam := e.surface.Camera()
	cam.Center = state.Preview.Coords()
	cam.Zoom = PlaceZoom
	cam.Duration = 0
	cam.Easing = ""
	e.surface.FlyTo(cam)
}

func (e *Engine) syncNavigation(state trip.State) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case state.Navigating && e.stopFollowing == nil:
		e.flown = false
		if state.LiveCoords != nil {
			e.flyToNavigation(*state.LiveCoords, state.Heading)
		}
		e.stopFollowing = e.store.Subscribe(trip.EventPosition, e.follow)
		e.logger.Debug("navigation camera started")

	case !state.Navigating && e.stopFollowing != nil:
		e.stopFollowing()
		e.stopFollowing = nil

		e.flown = false

		cam := e.surface.Camera()
		e.surface.EaseTo(Camera{
			Center:   cam.Center,
			Zoom:     max(NavigationZoom-ExitZoomStep, MinExitZoom),
			Pitch:    0,
			Bearing:  0,
			Duration: FollowEaseDuration,
		})
		e.logger.Debug("navigation camera stopped")
	}
}

// follow eases the camera to each new position while navigating
func (e *Engine) follow(state trip.State) {
	if state.LiveCoords == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopFollowing == nil {
		return
	}
	if !e.flown {
		e.flyToNavigation(*state.LiveCoords, state.Heading)
		return
	}
	cam := e.surface.Camera()
	e.surface.EaseTo(Camera{
		Center:   *state.LiveCoords,
		Zoom:     NavigationZoom,
		Pitch:    NavigationPitch,
		Bearing:  headingOr(state.Heading, cam.Bearing),
		Duration: FollowEaseDuration,
		Easing:   "linear",
	})
}

// flyToNavigation moves the camera into the navigation view. Callers hold e.mu.
func (e *Engine) flyToNavigation(at nav.Coordinates, heading *float64) {
	e.surface.FlyTo(Camera{
		Center:   at,
		Zoom:     NavigationZoom,
		Pitch:    NavigationPitch,
		Bearing:  headingOr(heading, 0),
		Duration: NavigationFlyDuration,
	})
	e.flown = true
}

func headingOr(heading *float64, fallback float64) float64 {
	if heading == nil {
		return fallback
	}
	return *heading
}

// HandleEvent applies a pointer event from the renderer
func (e *Engine) HandleEvent(ev MapEvent) error {
	switch ev.Type {
	case EventClick:
		return e.click(ev)
	case EventMouseEnter:
		if _, ok := parseRouteLayer(ev.Layer); ok {
			e.surface.SetCursor("pointer")
		}
	case EventMouseLeave:
		if _, ok := parseRouteLayer(ev.Layer); ok {
			e.surface.SetCursor("")
		}
	default:
		return fmt.Errorf("unknown map event %q", ev.Type)
	}
	return nil
}

func (e *Engine) click(ev MapEvent) error {
	if ev.Marker != "" {
		e.mu.Lock()
		placeID := e.placeByMarker[ev.Marker]
		e.mu.Unlock()
		if placeID != "" {
			e.store.PromoteSelection(placeID)
		}
		return nil
	}

	if ev.Layer != "" {
		i, ok := parseRouteLayer(ev.Layer)
		if !ok {
			return nil
		}
		return e.store.SelectRoute(i)
	}

	e.mu.Lock()
	ix := e.index
	e.mu.Unlock()

	i, ok := ix.nearest(orb.Point{ev.Lng, ev.Lat}, HitTolerance)
	if !ok {
		return nil
	}
	return e.store.SelectRoute(i)
}
