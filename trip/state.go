package trip

import (
	"slices"
	"time"

	"github.com/nwah/tripnav/nav"
)

// DefaultOriginLabel is shown when the origin is the live location
const DefaultOriginLabel = "My Location"

// Fix is a single position sample
type Fix struct {
	Coords    nav.Coordinates `json:"coords"`
	Accuracy  float64         `json:"accuracy"`          // meters, 0 when unknown
	Heading   *float64        `json:"heading,omitempty"` // degrees clockwise from north
	Timestamp time.Time       `json:"timestamp"`
}

// State is a snapshot of the trip. Slices are copies and may be kept by the caller.
type State struct {
	Origin        *nav.Place
	Selections    []nav.Place
	Stops         []nav.Place
	Routes        []nav.RouteCandidate
	ActiveIndex   int // -1 when no route is active
	Preview       *nav.Place
	LiveCoords    *nav.Coordinates
	Heading       *float64
	LocationError string
	Navigating    bool
}

// Destination is the first selection, or nil
func (s State) Destination() *nav.Place {
	if len(s.Selections) == 0 {
		return nil
	}
	d := s.Selections[0]
	return &d
}

// ActiveRoute returns the active candidate, or nil
func (s State) ActiveRoute() *nav.RouteCandidate {
	if s.ActiveIndex < 0 || s.ActiveIndex >= len(s.Routes) {
		return nil
	}
	r := s.Routes[s.ActiveIndex]
	return &r
}

// OriginLabel is the origin text, or "My Location" when the live position is used
func (s State) OriginLabel() string {
	if s.Origin == nil {
		return DefaultOriginLabel
	}
	return s.Origin.Text
}

func (s State) clone() State {
	out := s
	out.Selections = slices.Clone(s.Selections)
	out.Stops = slices.Clone(s.Stops)
	out.Routes = slices.Clone(s.Routes)
	if s.Origin != nil {
		o := *s.Origin
		out.Origin = &o
	}
	if s.Preview != nil {
		p := *s.Preview
		out.Preview = &p
	}
	if s.LiveCoords != nil {
		c := *s.LiveCoords
		out.LiveCoords = &c
	}
	if s.Heading != nil {
		h := *s.Heading
		out.Heading = &h
	}
	return out
}

// orderCandidates applies the ordering policy. Without waypoints the candidates are
// sorted fastest first. With waypoints the provider returns no alternatives, so only
// the first candidate is kept.
func orderCandidates(routes []nav.RouteCandidate, hasWaypoints bool) []nav.RouteCandidate {
	if len(routes) == 0 {
		return nil
	}
	if hasWaypoints {
		return routes[:1:1]
	}
	out := slices.Clone(routes)
	slices.SortStableFunc(out, func(a, b nav.RouteCandidate) int {
		switch {
		case a.Duration < b.Duration:
			return -1
		case a.Duration > b.Duration:
			return 1
		}
		return 0
	})
	return out
}
