package mode

import (
	"context"
	"fmt"

	"github.com/nwah/tripnav/nav"
	"github.com/nwah/tripnav/trip"
)

// SearchTarget is the trip field a routing panel search will change
type SearchTarget string

const (
	TargetOrigin      SearchTarget = "origin"
	TargetStop        SearchTarget = "stop"
	TargetDestination SearchTarget = "destination"
)

// IsValid reports whether the target is supported
func (t SearchTarget) IsValid() bool {
	switch t {
	case TargetOrigin, TargetStop, TargetDestination:
		return true
	default:
		return false
	}
}

// editor is the carousel search of the routing panel
type editor struct {
	target    SearchTarget
	query     string
	results   []nav.Place
	index     int
	searching bool
	gen       uint64
}

func (e *editor) reset() {
	e.gen++
	e.target = ""
	e.query = ""
	e.results = nil
	e.index = 0
	e.searching = false
}

func (e *editor) current() (nav.Place, bool) {
	if e.index < 0 || e.index >= len(e.results) {
		return nav.Place{}, false
	}
	return e.results[e.index], true
}

// OpenSearch starts a carousel search for target
func (c *Controller) OpenSearch(target SearchTarget) error {
	if !target.IsValid() {
		return fmt.Errorf("%w: unknown search target %q", ErrInvalidTransition, target)
	}
	c.mu.Lock()
	if c.mode != Routing {
		m := c.mode
		c.mu.Unlock()
		return invalid("open search", m)
	}
	c.editor.reset()
	c.editor.target = target
	c.mu.Unlock()

	c.editSearch.Stop()
	c.store.SetPreview(nil)
	c.notify()
	return nil
}

// SetSearchQuery updates the carousel query. Results arrive after the
// debounce and the first one is previewed on the map.
func (c *Controller) SetSearchQuery(query string) error {
	c.mu.Lock()
	if c.editor.target == "" {
		c.mu.Unlock()
		return fmt.Errorf("%w: search is not open", ErrInvalidTransition)
	}
	c.editor.gen++
	gen := c.editor.gen
	c.editor.query = query
	c.editor.results = nil
	c.editor.index = 0
	c.editor.searching = query != ""
	c.mu.Unlock()

	if query == "" {
		c.editSearch.Stop()
		c.store.SetPreview(nil)
		c.notify()
		return nil
	}

	c.editSearch.Trigger(func() { c.runEditSearch(gen, query) })
	c.notify()
	return nil
}

func (c *Controller) runEditSearch(gen uint64, query string) {
	places, err := c.geocode(query)

	c.mu.Lock()
	if gen != c.editor.gen {
		c.mu.Unlock()
		return
	}
	c.editor.searching = false
	if err != nil {
		c.err = err
		c.retry = func(context.Context) error { return c.SetSearchQuery(query) }
		c.mu.Unlock()
		c.logger.Warn("carousel search failed", "query", query, "error", err)
		c.notify()
		return
	}
	c.editor.results = places
	c.editor.index = 0
	first, ok := c.editor.current()
	c.mu.Unlock()

	if ok {
		c.store.SetPreview(&first)
	}
	c.notify()
}

// NextResult previews the next carousel result, wrapping to the first
func (c *Controller) NextResult() {
	c.step(1)
}

// PrevResult previews the previous carousel result, wrapping to the last
func (c *Controller) PrevResult() {
	c.step(-1)
}

func (c *Controller) step(delta int) {
	c.mu.Lock()
	n := len(c.editor.results)
	if n == 0 {
		c.mu.Unlock()
		return
	}
	c.editor.index = (c.editor.index + delta + n) % n
	place, _ := c.editor.current()
	c.mu.Unlock()

	c.store.SetPreview(&place)
	c.notify()
}

// CloseSearch closes the carousel and removes the preview
func (c *Controller) CloseSearch() {
	c.mu.Lock()
	c.editor.reset()
	c.mu.Unlock()

	c.editSearch.Stop()
	c.store.SetPreview(nil)
	c.notify()
}

// ConfirmSearch applies the previewed result to the search target and
// rebuilds the route with the changed field passed explicitly.
func (c *Controller) ConfirmSearch(ctx context.Context) error {
	c.mu.Lock()
	place, ok := c.editor.current()
	target := c.editor.target
	if !ok || target == "" {
		c.mu.Unlock()
		return fmt.Errorf("%w: no search result to confirm", ErrInvalidTransition)
	}
	c.editor.reset()
	c.mu.Unlock()

	c.editSearch.Stop()
	c.store.SetPreview(nil)

	switch target {
	case TargetOrigin:
		c.store.SetOrigin(&place)
		return c.rebuild(ctx, trip.WithOrigin(&place))
	case TargetDestination:
		c.store.SetDestination(place)
		return c.rebuild(ctx)
	default:
		stops := c.store.AddStop(place)
		return c.rebuild(ctx, trip.WithStops(stops))
	}
}

// RemoveStop drops the stop at index and rebuilds without it
func (c *Controller) RemoveStop(ctx context.Context, index int) error {
	if m := c.Mode(); m != Routing {
		return invalid("remove stop", m)
	}
	stops, err := c.store.RemoveStop(index)
	if err != nil {
		return err
	}
	return c.rebuild(ctx, trip.WithStops(stops))
}

// ClearOrigin goes back to the live position as origin and rebuilds
func (c *Controller) ClearOrigin(ctx context.Context) error {
	if m := c.Mode(); m != Routing {
		return invalid("clear origin", m)
	}
	c.store.SetOrigin(nil)
	return c.rebuild(ctx, trip.WithOrigin(nil))
}

// SelectRoute makes the candidate at index active
func (c *Controller) SelectRoute(index int) error {
	if m := c.Mode(); m != Routing && m != Navigating {
		return invalid("select route", m)
	}
	if err := c.store.SelectRoute(index); err != nil {
		return err
	}
	c.notify()
	return nil
}
