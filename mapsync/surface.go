package mapsync

import (
	"time"

	"github.com/nwah/tripnav/nav"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// MarkerCategory groups markers that are reconciled together
type MarkerCategory string

const (
	CategorySelection MarkerCategory = "selection"
	CategoryStop      MarkerCategory = "stop"
	CategoryPreview   MarkerCategory = "preview"
)

// Marker colors
const (
	ColorPrimary   = "#ef4444"
	ColorSelection = "#3b82f6"
	ColorStop      = "#f59e0b"
	ColorPreview   = "#22c55e"
)

// Marker is a pin on the map
type Marker struct {
	ID       string          `json:"id"`
	Category MarkerCategory  `json:"category"`
	PlaceID  string          `json:"place_id,omitempty"`
	Label    string          `json:"label,omitempty"`
	Color    string          `json:"color"`
	Coords   nav.Coordinates `json:"coords"`
}

// LinePaint holds the paint properties of a route line layer
type LinePaint struct {
	Color   string  `json:"line-color"`
	Width   float64 `json:"line-width"`
	Opacity float64 `json:"line-opacity"`
}

var (
	InactivePaint = LinePaint{Color: "#9ca3af", Width: 3, Opacity: 0.6}
	ActivePaint   = LinePaint{Color: "#3b82f6", Width: 5, Opacity: 1}
)

// Camera is the view state of the map
type Camera struct {
	Center   nav.Coordinates `json:"center"`
	Zoom     float64         `json:"zoom"`
	Pitch    float64         `json:"pitch"`
	Bearing  float64         `json:"bearing"`
	Duration time.Duration   `json:"-"`
	Easing   string          `json:"easing,omitempty"`
}

// Surface is the rendering side of the map. Sources carry GeoJSON features and
// line layers draw them.
type Surface interface {
	AddMarker(m Marker)
	RemoveMarker(id string)

	HasSource(id string) bool
	AddSource(id string, data *geojson.Feature)
	SetSourceData(id string, data *geojson.Feature)
	RemoveSource(id string)

	HasLayer(id string) bool
	AddLineLayer(id, source string, paint LinePaint)
	SetPaint(id string, paint LinePaint)
	RemoveLayer(id string)

	Camera() Camera
	FlyTo(c Camera)
	EaseTo(c Camera)
	FitBounds(b orb.Bound, padding float64, duration time.Duration)

	SetCursor(cursor string)
}
