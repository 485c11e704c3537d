package features

import (
	"math"
	"sort"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// EarthRadiusM is the mean Earth radius used for all distances.
const EarthRadiusM = 6371008.8

// nearestStartM is the first search radius of Nearest.
const nearestStartM = 500.0

func metersToAngle(m float64) s1.Angle { return s1.Angle(m / EarthRadiusM) }

func angleToMeters(a s1.Angle) float64 { return a.Radians() * EarthRadiusM }

// DistanceM returns the great-circle distance in metres between two points.
func DistanceM(lat1, lng1, lat2, lng2 float64) float64 {
	a := s2.PointFromLatLng(s2.LatLngFromDegrees(lat1, lng1))
	b := s2.PointFromLatLng(s2.LatLngFromDegrees(lat2, lng2))
	return angleToMeters(a.Distance(b))
}

// PointIndex answers nearest-point queries over a static set of points.
// Points are kept sorted by leaf cell id so any covering cell maps to a
// contiguous range.
type PointIndex struct {
	ids   []s2.CellID
	pts   []s2.Point
	level int
}

type indexEntry struct {
	id s2.CellID
	pt s2.Point
}

// NewPointIndex builds an index from (lat, lng) pairs. level bounds the
// finest covering cell used during queries.
func NewPointIndex(latlngs [][2]float64, level int) *PointIndex {
	entries := make([]indexEntry, len(latlngs))
	for i, ll := range latlngs {
		latlng := s2.LatLngFromDegrees(ll[0], ll[1])
		entries[i] = indexEntry{id: s2.CellIDFromLatLng(latlng), pt: s2.PointFromLatLng(latlng)}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	idx := &PointIndex{
		ids:   make([]s2.CellID, len(entries)),
		pts:   make([]s2.Point, len(entries)),
		level: level,
	}
	for i, e := range entries {
		idx.ids[i] = e.id
		idx.pts[i] = e.pt
	}
	return idx
}

// Len returns the number of indexed points.
func (x *PointIndex) Len() int { return len(x.ids) }

// Nearest returns the distance in metres from (lat, lng) to the closest
// indexed point, searching no further than maxM. ok is false when nothing
// lies within maxM.
func (x *PointIndex) Nearest(lat, lng, maxM float64) (dist float64, ok bool) {
	if len(x.ids) == 0 || maxM <= 0 {
		return 0, false
	}
	center := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lng))

	// Widen the radius until something is found; anything within r is
	// closer than anything outside it.
	r := math.Min(nearestStartM, maxM)
	for {
		if d, found := x.within(center, r); found {
			return d, true
		}
		if r >= maxM {
			return 0, false
		}
		r = math.Min(r*4, maxM)
	}
}

func (x *PointIndex) within(center s2.Point, radiusM float64) (float64, bool) {
	limit := metersToAngle(radiusM)
	coverer := &s2.RegionCoverer{MaxLevel: x.level, MaxCells: 16}
	covering := coverer.Covering(s2.CapFromCenterAngle(center, limit))

	best := s1.InfAngle()
	for _, cell := range covering {
		lo, hi := cell.RangeMin(), cell.RangeMax()
		start := sort.Search(len(x.ids), func(i int) bool { return x.ids[i] >= lo })
		for i := start; i < len(x.ids) && x.ids[i] <= hi; i++ {
			if d := center.Distance(x.pts[i]); d < best {
				best = d
			}
		}
	}
	if best > limit {
		return 0, false
	}
	return angleToMeters(best), true
}
