package mapsync

import (
	"sort"
	"sync"
	"time"

	"github.com/nwah/tripnav/nav"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DefaultCamera is the initial view, centered on Kochi
var DefaultCamera = Camera{Center: nav.Coordinates{Lng: 76.27, Lat: 9.93}, Zoom: 10}

// Layer is a line layer bound to a source
type Layer struct {
	ID     string
	Source string
	Paint  LinePaint
}

// Move records a camera transition
type Move struct {
	Kind     string // fly, ease or fit
	Camera   Camera
	Bounds   orb.Bound
	Padding  float64
	Duration time.Duration
}

// MemorySurface keeps the map in memory. It is the shadow state behind
// RemoteSurface and the surface used in tests.
type MemorySurface struct {
	mu      sync.Mutex
	markers map[string]Marker
	sources map[string]*geojson.Feature
	layers  map[string]Layer
	camera  Camera
	cursor  string
	moves   []Move
	keep    int // moves retained, 0 keeps all

	sourcesAdded int
	layersAdded  int
}

// NewMemorySurface creates an empty surface with the default camera. It
// records every camera move.
func NewMemorySurface() *MemorySurface {
	return newMemorySurface(0)
}

func newMemorySurface(keep int) *MemorySurface {
	return &MemorySurface{
		keep:    keep,
		markers: make(map[string]Marker),
		sources: make(map[string]*geojson.Feature),
		layers:  make(map[string]Layer),
		camera:  DefaultCamera,
	}
}

// record appends a move, dropping the oldest beyond keep. Callers hold s.mu.
func (s *MemorySurface) record(m Move) {
	s.moves = append(s.moves, m)
	if s.keep > 0 && len(s.moves) > s.keep {
		n := copy(s.moves, s.moves[len(s.moves)-s.keep:])
		clear(s.moves[n:])
		s.moves = s.moves[:n]
	}
}

func (s *MemorySurface) AddMarker(m Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[m.ID] = m
}

func (s *MemorySurface) RemoveMarker(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, id)
}

func (s *MemorySurface) HasSource(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sources[id]
	return ok
}

func (s *MemorySurface) AddSource(id string, data *geojson.Feature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[id] = data
	s.sourcesAdded++
}

func (s *MemorySurface) SetSourceData(id string, data *geojson.Feature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[id]; ok {
		s.sources[id] = data
	}
}

func (s *MemorySurface) RemoveSource(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sources, id)
}

func (s *MemorySurface) HasLayer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.layers[id]
	return ok
}

func (s *MemorySurface) AddLineLayer(id, source string, paint LinePaint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers[id] = Layer{ID: id, Source: source, Paint: paint}
	s.layersAdded++
}

func (s *MemorySurface) SetPaint(id string, paint LinePaint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.layers[id]; ok {
		l.Paint = paint
		s.layers[id] = l
	}
}

func (s *MemorySurface) RemoveLayer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.layers, id)
}

func (s *MemorySurface) Camera() Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera
}

func (s *MemorySurface) FlyTo(c Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera = c
	s.record(Move{Kind: "fly", Camera: c, Duration: c.Duration})
}

func (s *MemorySurface) EaseTo(c Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera = c
	s.record(Move{Kind: "ease", Camera: c, Duration: c.Duration})
}

func (s *MemorySurface) FitBounds(b orb.Bound, padding float64, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	center := b.Center()
	s.camera.Center = nav.Coordinates{Lng: center.Lon(), Lat: center.Lat()}
	s.record(Move{Kind: "fit", Camera: s.camera, Bounds: b, Padding: padding, Duration: duration})
}

func (s *MemorySurface) SetCursor(cursor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = cursor
}

// Markers returns the markers sorted by id
func (s *MemorySurface) Markers() []Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Marker, 0, len(s.markers))
	for _, m := range s.markers {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Layers returns the line layers sorted by id
func (s *MemorySurface) Layers() []Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Layer, 0, len(s.layers))
	for _, l := range s.layers {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Source returns the data of a source
func (s *MemorySurface) Source(id string) (*geojson.Feature, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.sources[id]
	return f, ok
}

// SourceIDs returns the source ids, sorted
func (s *MemorySurface) SourceIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sources))
	for id := range s.sources {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Moves returns the camera transitions so far
func (s *MemorySurface) Moves() []Move {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Move(nil), s.moves...)
}

// Cursor returns the current cursor
func (s *MemorySurface) Cursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Created returns how many sources and layers were ever created
func (s *MemorySurface) Created() (sources, layers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourcesAdded, s.layersAdded
}
