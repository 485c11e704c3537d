package aoi

import (
	"errors"
	"math"

	"github.com/rotisserie/eris"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/quadkey"
)

// ErrDuplicateQuadkey is returned when two rows share a quadkey.
var ErrDuplicateQuadkey = errors.New("aoi: duplicate quadkey")

// Grid is an ordered set of tiles at a single zoom level.
type Grid struct {
	Tiles []Tile
	Zoom  int

	index  map[string]int
	bounds []quadkey.BBox
}

// NewGrid indexes tiles and checks the grid invariants.
func NewGrid(tiles []Tile) (*Grid, error) {
	if len(tiles) == 0 {
		return nil, eris.New("aoi: grid has no tiles")
	}

	g := &Grid{
		Tiles:  tiles,
		Zoom:   len(tiles[0].Quadkey),
		index:  make(map[string]int, len(tiles)),
		bounds: make([]quadkey.BBox, len(tiles)),
	}

	for i, t := range tiles {
		if t.Quadkey == "" {
			return nil, eris.Errorf("aoi: row %d has no quadkey", i)
		}
		if len(t.Quadkey) != g.Zoom {
			return nil, eris.Errorf("aoi: quadkey %q is zoom %d, grid is zoom %d", t.Quadkey, len(t.Quadkey), g.Zoom)
		}
		if _, dup := g.index[t.Quadkey]; dup {
			return nil, eris.Wrapf(ErrDuplicateQuadkey, "quadkey %s", t.Quadkey)
		}
		b, err := quadkey.Bounds(t.Quadkey)
		if err != nil {
			return nil, eris.Wrapf(err, "aoi: row %d", i)
		}
		g.index[t.Quadkey] = i
		g.bounds[i] = b
	}

	return g, nil
}

// Len returns the number of tiles.
func (g *Grid) Len() int {
	return len(g.Tiles)
}

// Index returns the row of the tile with the given quadkey.
func (g *Grid) Index(qk string) (int, bool) {
	i, ok := g.index[qk]
	return i, ok
}

// Lookup returns the row of the tile containing the point, if the grid has one.
func (g *Grid) Lookup(lat, lng float64) (int, bool) {
	return g.Index(quadkey.FromLatLng(lat, lng, g.Zoom))
}

// Bounds returns the extent of row i.
func (g *Grid) Bounds(i int) quadkey.BBox {
	return g.bounds[i]
}

// Center returns the (lat, lng) centre of row i.
func (g *Grid) Center(i int) (float64, float64) {
	return g.bounds[i].Center()
}

// Extent returns the bounding box of the whole grid.
func (g *Grid) Extent() quadkey.BBox {
	ext := quadkey.BBox{
		MinLng: math.Inf(1), MinLat: math.Inf(1),
		MaxLng: math.Inf(-1), MaxLat: math.Inf(-1),
	}
	for _, b := range g.bounds {
		ext.MinLng = math.Min(ext.MinLng, b.MinLng)
		ext.MinLat = math.Min(ext.MinLat, b.MinLat)
		ext.MaxLng = math.Max(ext.MaxLng, b.MaxLng)
		ext.MaxLat = math.Max(ext.MaxLat, b.MaxLat)
	}
	return ext
}

// Quadkeys returns the quadkeys in row order.
func (g *Grid) Quadkeys() []string {
	out := make([]string, len(g.Tiles))
	for i, t := range g.Tiles {
		out[i] = t.Quadkey
	}
	return out
}

// TotalPopulation sums the population column.
func (g *Grid) TotalPopulation() float64 {
	var sum float64
	for _, t := range g.Tiles {
		sum += t.Population
	}
	return sum
}
