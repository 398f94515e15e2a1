package mapsync

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Command is one surface mutation sent to a connected renderer
type Command struct {
	Op         string           `json:"op"`
	ID         string           `json:"id,omitempty"`
	Source     string           `json:"source,omitempty"`
	Marker     *Marker          `json:"marker,omitempty"`
	Data       *geojson.Feature `json:"data,omitempty"`
	Paint      *LinePaint       `json:"paint,omitempty"`
	Camera     *Camera          `json:"camera,omitempty"`
	Bounds     *[4]float64      `json:"bounds,omitempty"` // minLng, minLat, maxLng, maxLat
	Padding    float64          `json:"padding,omitempty"`
	DurationMS int64            `json:"duration,omitempty"`
	Cursor     *string          `json:"cursor,omitempty"`
}

// RemoteSurface mirrors every mutation to a renderer through send. Queries are
// answered from the in-memory shadow state.
type RemoteSurface struct {
	*MemorySurface
	send func(Command)
}

// remoteMoveHistory bounds the camera moves a remote shadow keeps. Follow mode
// eases once per position fix for the whole navigation.
const remoteMoveHistory = 8

// NewRemoteSurface creates a surface that forwards commands to send
func NewRemoteSurface(send func(Command)) *RemoteSurface {
	return &RemoteSurface{MemorySurface: newMemorySurface(remoteMoveHistory), send: send}
}

func (r *RemoteSurface) AddMarker(m Marker) {
	r.MemorySurface.AddMarker(m)
	r.send(Command{Op: "add-marker", ID: m.ID, Marker: &m})
}

func (r *RemoteSurface) RemoveMarker(id string) {
	r.MemorySurface.RemoveMarker(id)
	r.send(Command{Op: "remove-marker", ID: id})
}

func (r *RemoteSurface) AddSource(id string, data *geojson.Feature) {
	r.MemorySurface.AddSource(id, data)
	r.send(Command{Op: "add-source", ID: id, Data: data})
}

func (r *RemoteSurface) SetSourceData(id string, data *geojson.Feature) {
	r.MemorySurface.SetSourceData(id, data)
	r.send(Command{Op: "set-data", ID: id, Data: data})
}

func (r *RemoteSurface) RemoveSource(id string) {
	r.MemorySurface.RemoveSource(id)
	r.send(Command{Op: "remove-source", ID: id})
}

func (r *RemoteSurface) AddLineLayer(id, source string, paint LinePaint) {
	r.MemorySurface.AddLineLayer(id, source, paint)
	r.send(Command{Op: "add-layer", ID: id, Source: source, Paint: &paint})
}

func (r *RemoteSurface) SetPaint(id string, paint LinePaint) {
	r.MemorySurface.SetPaint(id, paint)
	r.send(Command{Op: "set-paint", ID: id, Paint: &paint})
}

func (r *RemoteSurface) RemoveLayer(id string) {
	r.MemorySurface.RemoveLayer(id)
	r.send(Command{Op: "remove-layer", ID: id})
}

func (r *RemoteSurface) FlyTo(c Camera) {
	r.MemorySurface.FlyTo(c)
	r.send(Command{Op: "fly-to", Camera: &c, DurationMS: c.Duration.Milliseconds()})
}

func (r *RemoteSurface) EaseTo(c Camera) {
	r.MemorySurface.EaseTo(c)
	r.send(Command{Op: "ease-to", Camera: &c, DurationMS: c.Duration.Milliseconds()})
}

func (r *RemoteSurface) FitBounds(b orb.Bound, padding float64, duration time.Duration) {
	r.MemorySurface.FitBounds(b, padding, duration)
	bounds := [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
	r.send(Command{Op: "fit-bounds", Bounds: &bounds, Padding: padding, DurationMS: duration.Milliseconds()})
}

func (r *RemoteSurface) SetCursor(cursor string) {
	r.MemorySurface.SetCursor(cursor)
	r.send(Command{Op: "set-cursor", Cursor: &cursor})
}
