package nav

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// NavConfig holds navigation-specific configuration
type NavConfig struct {
	Provider     ProviderName `toml:"provider"`
	AccessToken  string       `toml:"access_token"`
	GoogleAPIKey string       `toml:"google_api_key"`
	BaseURL      string       `toml:"base_url"`
	Profile      Profile      `toml:"profile"`
	Country      string       `toml:"country"`
	BBox         string       `toml:"bbox"`
	Limit        int          `toml:"limit"`
	Timeout      Duration     `toml:"timeout"`
}

// Duration wraps time.Duration so it can be written as "10s" in TOML
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// Coordinates is a WGS84 position. Longitude always comes first.
type Coordinates struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// String formats the coordinates as "lng,lat", the provider convention
func (c Coordinates) String() string {
	return strconv.FormatFloat(c.Lng, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lat, 'f', -1, 64)
}

// Point converts to an orb point ([lng, lat])
func (c Coordinates) Point() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// ParseCoordinates parses a "lng,lat" pair
func ParseCoordinates(s string) (Coordinates, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Coordinates{}, fmt.Errorf("invalid lng,lat format")
	}

	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("invalid longitude: %w", err)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("invalid latitude: %w", err)
	}

	if lng < -180 || lng > 180 || lat < -90 || lat > 90 {
		return Coordinates{}, fmt.Errorf("coordinates out of range: %s", s)
	}

	return Coordinates{Lng: lng, Lat: lat}, nil
}

// ParseWaypoints parses a "lng,lat;lng,lat" list. An empty string yields no waypoints.
func ParseWaypoints(s string) ([]Coordinates, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []Coordinates
	for _, part := range strings.Split(s, ";") {
		c, err := ParseCoordinates(part)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// JoinCoordinates formats coordinates as "lng,lat;lng,lat"
func JoinCoordinates(coords []Coordinates) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = c.String()
	}
	return strings.Join(parts, ";")
}

// Place represents a geocoded point of interest. Identity is ID.
type Place struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	PlaceName string  `json:"place_name"`
	PlaceType string  `json:"place_type"`
	Lng       float64 `json:"lng"`
	Lat       float64 `json:"lat"`
}

// Coords returns the place position
func (p Place) Coords() Coordinates {
	return Coordinates{Lng: p.Lng, Lat: p.Lat}
}

// PlaceCoords maps places to their positions, keeping order
func PlaceCoords(places []Place) []Coordinates {
	if len(places) == 0 {
		return nil
	}
	out := make([]Coordinates, len(places))
	for i, p := range places {
		out[i] = p.Coords()
	}
	return out
}

// LineString is an ordered polyline. It is encoded as a GeoJSON LineString geometry.
type LineString []Coordinates

// Orb converts the polyline to an orb.LineString
func (l LineString) Orb() orb.LineString {
	ls := make(orb.LineString, len(l))
	for i, c := range l {
		ls[i] = c.Point()
	}
	return ls
}

// Bound returns the bounding box of the polyline
func (l LineString) Bound() orb.Bound {
	return l.Orb().Bound()
}

// MarshalJSON encodes the polyline as a GeoJSON geometry
func (l LineString) MarshalJSON() ([]byte, error) {
	return json.Marshal(geojson.NewGeometry(l.Orb()))
}

// UnmarshalJSON decodes a GeoJSON LineString geometry
func (l *LineString) UnmarshalJSON(data []byte) error {
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return fmt.Errorf("error decoding geometry: %w", err)
	}
	ls, ok := g.Geometry().(orb.LineString)
	if !ok {
		return fmt.Errorf("expected LineString geometry, got %s", g.Type)
	}
	out := make(LineString, len(ls))
	for i, p := range ls {
		out[i] = Coordinates{Lng: p.Lon(), Lat: p.Lat()}
	}
	*l = out
	return nil
}

// RouteCandidate is one complete path returned by a directions call
type RouteCandidate struct {
	Distance float64    `json:"distance"` // meters
	Duration float64    `json:"duration"` // seconds
	Geometry LineString `json:"geometry"`
}

// NavigationStep is a single maneuver of a turn-by-turn route
type NavigationStep struct {
	Distance     float64 `json:"distance"`
	Duration     float64 `json:"duration"`
	Name         string  `json:"name"`
	Instruction  string  `json:"instruction"`
	Type         string  `json:"type"`
	Modifier     string  `json:"modifier,omitempty"`
	BearingAfter float64 `json:"bearing_after"`
}

// NavigationLeg is the segment between two consecutive route points
type NavigationLeg struct {
	Summary  string           `json:"summary"`
	Distance float64          `json:"distance"`
	Duration float64          `json:"duration"`
	Steps    []NavigationStep `json:"steps"`
}

// NavigationResponse represents the turn-by-turn variant of a route
type NavigationResponse struct {
	Distance float64         `json:"distance"`
	Duration float64         `json:"duration"`
	Geometry LineString      `json:"geometry"`
	Legs     []NavigationLeg `json:"legs"`
}

// Steps flattens the steps of every leg
func (r *NavigationResponse) Steps() []NavigationStep {
	var out []NavigationStep
	for _, leg := range r.Legs {
		out = append(out, leg.Steps...)
	}
	return out
}

// GeocodeResponse represents the response from the geocoding endpoint
type GeocodeResponse struct {
	Places []Place `json:"places"`
}

// RouteResponse represents the response from the routing endpoint
type RouteResponse struct {
	Routes []RouteCandidate `json:"routes"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
