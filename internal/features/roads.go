package features

import (
	"math"

	"github.com/golang/geo/s2"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/aoi"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/quadkey"
)

// densifyStepM is the maximum gap between road points fed to the nearest
// index; longer segments are subdivided.
const densifyStepM = 200.0

// clipSegment clips the segment a→b ([lng, lat]) to box using Liang–Barsky.
// ok is false when the segment misses the box.
func clipSegment(a, b [2]float64, box quadkey.BBox) (ca, cb [2]float64, ok bool) {
	dx, dy := b[0]-a[0], b[1]-a[1]
	t0, t1 := 0.0, 1.0

	edges := [4][2]float64{
		{-dx, a[0] - box.MinLng},
		{dx, box.MaxLng - a[0]},
		{-dy, a[1] - box.MinLat},
		{dy, box.MaxLat - a[1]},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return ca, cb, false
			}
			continue
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return ca, cb, false
			}
			t0 = math.Max(t0, r)
		} else {
			if r < t0 {
				return ca, cb, false
			}
			t1 = math.Min(t1, r)
		}
	}

	ca = [2]float64{a[0] + t0*dx, a[1] + t0*dy}
	cb = [2]float64{a[0] + t1*dx, a[1] + t1*dy}
	return ca, cb, true
}

// segmentLengthM is the great-circle length of a [lng, lat] segment.
func segmentLengthM(a, b [2]float64) float64 {
	return DistanceM(a[1], a[0], b[1], b[0])
}

// accumulateLength adds the length of path falling inside each grid tile to
// lengths, indexed by grid row.
func accumulateLength(g *aoi.Grid, path [][2]float64, lengths []float64) {
	for i := 1; i < len(path); i++ {
		a, b := path[i-1], path[i]
		xa, ya := quadkey.TileXY(a[1], a[0], g.Zoom)
		xb, yb := quadkey.TileXY(b[1], b[0], g.Zoom)
		for x := min(xa, xb); x <= max(xa, xb); x++ {
			for y := min(ya, yb); y <= max(ya, yb); y++ {
				row, ok := g.Index(quadkey.FromTile(x, y, g.Zoom))
				if !ok {
					continue
				}
				ca, cb, ok := clipSegment(a, b, g.Bounds(row))
				if !ok {
					continue
				}
				lengths[row] += segmentLengthM(ca, cb)
			}
		}
	}
}

// densify returns path vertices as (lat, lng) pairs with extra points so no
// two consecutive points are more than densifyStepM apart.
func densify(path [][2]float64) [][2]float64 {
	if len(path) == 0 {
		return nil
	}
	out := [][2]float64{{path[0][1], path[0][0]}}
	for i := 1; i < len(path); i++ {
		a, b := path[i-1], path[i]
		n := int(math.Ceil(segmentLengthM(a, b) / densifyStepM))
		if n > 1 {
			pa := s2.PointFromLatLng(s2.LatLngFromDegrees(a[1], a[0]))
			pb := s2.PointFromLatLng(s2.LatLngFromDegrees(b[1], b[0]))
			for k := 1; k < n; k++ {
				ll := s2.LatLngFromPoint(s2.Interpolate(float64(k)/float64(n), pa, pb))
				out = append(out, [2]float64{ll.Lat.Degrees(), ll.Lng.Degrees()})
			}
		}
		out = append(out, [2]float64{b[1], b[0]})
	}
	return out
}
