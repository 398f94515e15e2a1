package mapsync

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/nwah/tripnav/nav"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// HitTolerance is the click radius in degrees, about 50 m at the equator
const HitTolerance = 0.0005

// rtreego rejects zero-length rects, so axis-aligned segments get padded
const rectPad = 1e-9

type indexedSegment struct {
	route    int
	a, b     orb.Point
	envelope rtreego.Rect
}

func (s *indexedSegment) Bounds() rtreego.Rect {
	return s.envelope
}

// routeIndex answers "which route line is under this point"
type routeIndex struct {
	tree *rtreego.Rtree
	size int
}

func newRouteIndex(routes []nav.RouteCandidate) *routeIndex {
	ix := &routeIndex{tree: rtreego.NewTree(2, 25, 50)}
	for i, r := range routes {
		line := r.Geometry.Orb()
		for j := 1; j < len(line); j++ {
			a, b := line[j-1], line[j]
			rect, err := envelope(a, b, rectPad)
			if err != nil {
				continue
			}
			ix.tree.Insert(&indexedSegment{route: i, a: a, b: b, envelope: rect})
			ix.size++
		}
	}
	return ix
}

func envelope(a, b orb.Point, pad float64) (rtreego.Rect, error) {
	minX, maxX := math.Min(a[0], b[0])-pad, math.Max(a[0], b[0])+pad
	minY, maxY := math.Min(a[1], b[1])-pad, math.Max(a[1], b[1])+pad
	return rtreego.NewRect(rtreego.Point{minX, minY}, []float64{maxX - minX, maxY - minY})
}

// nearest returns the route whose line passes closest to p within tolerance.
// Ties go to the lower route index.
func (ix *routeIndex) nearest(p orb.Point, tolerance float64) (int, bool) {
	if ix == nil || ix.size == 0 {
		return 0, false
	}
	query, err := envelope(p, p, tolerance)
	if err != nil {
		return 0, false
	}

	best, bestDist := -1, math.Inf(1)
	for _, item := range ix.tree.SearchIntersect(query) {
		seg := item.(*indexedSegment)
		d := planar.DistanceFromSegment(seg.a, seg.b, p)
		if d > tolerance {
			continue
		}
		if d < bestDist || (d == bestDist && seg.route < best) {
			best, bestDist = seg.route, d
		}
	}
	return best, best >= 0
}
