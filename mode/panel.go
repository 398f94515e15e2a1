package mode

import (
	"errors"
	"slices"
	"time"

	"github.com/nwah/tripnav/nav"
	"github.com/nwah/tripnav/trip"
)

// RouteSummary is one entry of the route alternatives list
type RouteSummary struct {
	Index    int    `json:"index"`
	Active   bool   `json:"active"`
	Duration string `json:"duration"`
	Distance string `json:"distance"`
	Arrival  string `json:"arrival"`
}

// StepView is a turn-by-turn instruction ready for display
type StepView struct {
	Instruction string `json:"instruction"`
	Name        string `json:"name,omitempty"`
	Distance    string `json:"distance"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
}

// NavigationView summarizes the fetched turn-by-turn route
type NavigationView struct {
	Duration string     `json:"duration"`
	Distance string     `json:"distance"`
	Arrival  string     `json:"arrival"`
	Steps    []StepView `json:"steps"`
}

// SearchView is the carousel search of the routing panel
type SearchView struct {
	Target    SearchTarget `json:"target"`
	Query     string       `json:"query"`
	Current   *nav.Place   `json:"current,omitempty"`
	Position  int          `json:"position"` // 1-based, 0 without results
	Total     int          `json:"total"`
	Searching bool         `json:"searching"`
	NoResults bool         `json:"no_results"`
}

// Panel is everything the visible panel renders
type Panel struct {
	Mode      Mode        `json:"mode"`
	Query     string      `json:"query"`
	Results   []nav.Place `json:"results"`
	Open      bool        `json:"open"`
	Searching bool        `json:"searching"`
	Building  bool        `json:"building"`
	Starting  bool        `json:"starting"`

	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable"`

	Place         *nav.Place     `json:"place,omitempty"`
	Origin        string         `json:"origin"`
	HasOrigin     bool           `json:"has_origin"`
	Destination   *nav.Place     `json:"destination,omitempty"`
	Stops         []nav.Place    `json:"stops"`
	LocationError string         `json:"location_error,omitempty"`
	Routes        []RouteSummary `json:"routes"`

	Search     *SearchView     `json:"search,omitempty"`
	Navigation *NavigationView `json:"navigation,omitempty"`
}

// Panel returns a snapshot of the panel state
func (c *Controller) Panel() Panel {
	state := c.store.Snapshot()
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	p := Panel{
		Mode:          c.mode,
		Query:         c.query,
		Results:       slices.Clone(c.results),
		Open:          c.open,
		Searching:     c.searching,
		Building:      c.builds > 0,
		Starting:      c.starting,
		Retryable:     c.retry != nil,
		Origin:        state.OriginLabel(),
		HasOrigin:     state.Origin != nil,
		Destination:   state.Destination(),
		Stops:         state.Stops,
		LocationError: state.LocationError,
	}
	if p.Results == nil {
		p.Results = []nav.Place{}
	}
	if p.Stops == nil {
		p.Stops = []nav.Place{}
	}
	if c.err != nil && !errors.Is(c.err, trip.ErrLocationUnavailable) {
		p.Error = c.err.Error()
	}
	if c.mode == PlaceSelected {
		p.Place = state.Destination()
	}

	p.Routes = make([]RouteSummary, len(state.Routes))
	for i, r := range state.Routes {
		p.Routes[i] = RouteSummary{
			Index:    i,
			Active:   i == state.ActiveIndex,
			Duration: nav.FormatDuration(r.Duration),
			Distance: nav.FormatDistance(r.Distance),
			Arrival:  nav.ArrivalTime(now, r.Duration),
		}
	}

	if c.editor.target != "" {
		e := c.editor
		s := &SearchView{
			Target:    e.target,
			Query:     e.query,
			Total:     len(e.results),
			Searching: e.searching,
			NoResults: !e.searching && e.query != "" && len(e.results) == 0,
		}
		if cur, ok := e.current(); ok {
			s.Current = &cur
			s.Position = e.index + 1
		}
		p.Search = s
	}

	if c.navigation != nil {
		p.Navigation = navigationView(c.navigation, now)
	}
	return p
}

func navigationView(resp *nav.NavigationResponse, now time.Time) *NavigationView {
	steps := resp.Steps()
	v := &NavigationView{
		Duration: nav.FormatDuration(resp.Duration),
		Distance: nav.FormatDistance(resp.Distance),
		Arrival:  nav.ArrivalTime(now, resp.Duration),
		Steps:    make([]StepView, len(steps)),
	}
	for i, s := range steps {
		v.Steps[i] = StepView{
			Instruction: s.Instruction,
			Name:        s.Name,
			Distance:    nav.FormatDistance(s.Distance),
			Icon:        nav.ManeuverIcon(s.Type, s.Modifier),
			Color:       nav.ManeuverColor(s.Type, s.Modifier),
		}
	}
	return v
}
