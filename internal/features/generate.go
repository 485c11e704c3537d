package features

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/aoi"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/nightlights"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/ookla"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/osm"
)

// Sources holds the raw inputs for one grid.
type Sources struct {
	POIs        []osm.POI
	Roads       []osm.Road
	Ookla       map[ookla.Kind][]ookla.Tile
	Nightlights []nightlights.Sample
}

// Generator computes the feature table for a grid.
type Generator struct {
	Catalog     Catalog
	MaxNearestM float64
	IndexLevel  int
}

// Generate returns one row per grid tile, in grid order, with every catalog
// column filled. Missing values are zero; nearest distances with nothing in
// range are MaxNearestM.
func (gen *Generator) Generate(ctx context.Context, g *aoi.Grid, src Sources) (*Table, error) {
	if gen.MaxNearestM <= 0 {
		return nil, eris.New("features: max nearest distance must be positive")
	}
	if gen.IndexLevel < 1 || gen.IndexLevel > 30 {
		return nil, eris.Errorf("features: index level %d out of range", gen.IndexLevel)
	}

	log := zap.L().With(zap.String("component", "features"), zap.Int("tiles", g.Len()))
	t := NewTable(gen.Catalog.Columns(), g.Len())

	steps := []struct {
		name string
		fn   func(*aoi.Grid, Sources, *Table) error
	}{
		{"poi", gen.addPOIs},
		{"roads", gen.addRoads},
		{"ookla", gen.addOokla},
		{"nightlights", gen.addNightlights},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "features: cancelled")
		}
		start := time.Now()
		if err := s.fn(g, src, t); err != nil {
			return nil, err
		}
		log.Info("feature step complete", zap.String("step", s.name), zap.Duration("elapsed", time.Since(start)))
	}

	if t.Len() != g.Len() {
		return nil, eris.Errorf("features: produced %d rows for %d tiles", t.Len(), g.Len())
	}
	return t, nil
}

func (gen *Generator) set(t *Table, row int, col string, v float64) error {
	j, ok := t.ColumnIndex(col)
	if !ok {
		return eris.Errorf("features: column %q not in catalog", col)
	}
	t.Rows[row][j] = v
	return nil
}

// fillNearest writes the nearest distance from every tile centre into col.
func (gen *Generator) fillNearest(g *aoi.Grid, t *Table, col string, idx *PointIndex) error {
	j, ok := t.ColumnIndex(col)
	if !ok {
		return eris.Errorf("features: column %q not in catalog", col)
	}
	for i := range g.Tiles {
		lat, lng := g.Center(i)
		d, found := idx.Nearest(lat, lng, gen.MaxNearestM)
		if !found {
			d = gen.MaxNearestM
		}
		t.Rows[i][j] = d
	}
	return nil
}

func (gen *Generator) addPOIs(g *aoi.Grid, src Sources, t *Table) error {
	byClass := make(map[string][][2]float64)
	for _, p := range src.POIs {
		byClass[norm(p.Class)] = append(byClass[norm(p.Class)], [2]float64{p.Lat, p.Lng})
	}

	for _, class := range gen.Catalog.POIClasses {
		pts := byClass[norm(class)]
		counts := make([]float64, g.Len())
		for _, p := range pts {
			if row, ok := g.Lookup(p[0], p[1]); ok {
				counts[row]++
			}
		}
		for i, c := range counts {
			if err := gen.set(t, i, POICountColumn(class), c); err != nil {
				return err
			}
		}
		if err := gen.fillNearest(g, t, POINearestColumn(class), NewPointIndex(pts, gen.IndexLevel)); err != nil {
			return err
		}
	}
	return nil
}

func (gen *Generator) addRoads(g *aoi.Grid, src Sources, t *Table) error {
	byClass := make(map[string][]osm.Road)
	for _, r := range src.Roads {
		byClass[norm(r.Class)] = append(byClass[norm(r.Class)], r)
	}

	for _, class := range gen.Catalog.RoadClasses {
		lengths := make([]float64, g.Len())
		var pts [][2]float64
		for _, r := range byClass[norm(class)] {
			accumulateLength(g, r.Path, lengths)
			pts = append(pts, densify(r.Path)...)
		}
		for i, l := range lengths {
			if err := gen.set(t, i, RoadLengthColumn(class), l); err != nil {
				return err
			}
		}
		if err := gen.fillNearest(g, t, RoadNearestColumn(class), NewPointIndex(pts, gen.IndexLevel)); err != nil {
			return err
		}
	}
	return nil
}

// assignOokla maps each Ookla tile to a grid row: by quadkey prefix when the
// grid is no finer than the Ookla tile, otherwise by tile centre.
func assignOokla(g *aoi.Grid, tiles []ookla.Tile) [][]ookla.Tile {
	out := make([][]ookla.Tile, g.Len())
	for _, ot := range tiles {
		row, ok := -1, false
		if len(ot.Quadkey) >= g.Zoom {
			row, ok = g.Index(ot.Quadkey[:g.Zoom])
		}
		if !ok {
			row, ok = g.Lookup(ot.Lat, ot.Lng)
		}
		if ok {
			out[row] = append(out[row], ot)
		}
	}
	return out
}

func (gen *Generator) addOokla(g *aoi.Grid, src Sources, t *Table) error {
	for _, kind := range ookla.Kinds {
		assigned := assignOokla(g, src.Ookla[kind])
		for i, tiles := range assigned {
			if len(tiles) == 0 {
				continue
			}
			for _, metric := range ookla.Metrics {
				vals := make([]float64, len(tiles))
				for k, ot := range tiles {
					vals[k] = ot.Metric(metric)
				}
				if err := gen.set(t, i, OoklaColumn(kind, metric, "mean"), stat.Mean(vals, nil)); err != nil {
					return err
				}
				if err := gen.set(t, i, OoklaColumn(kind, metric, "median"), Median(vals)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (gen *Generator) addNightlights(g *aoi.Grid, src Sources, t *Table) error {
	assigned := make([][]float64, g.Len())
	for _, s := range src.Nightlights {
		if row, ok := g.Lookup(s.Lat, s.Lng); ok {
			assigned[row] = append(assigned[row], s.Radiance)
		}
	}
	for i, vals := range assigned {
		if len(vals) == 0 {
			continue
		}
		_, std := stat.PopMeanStdDev(vals, nil)
		values := map[string]float64{
			"min":    floats.Min(vals),
			"max":    floats.Max(vals),
			"mean":   stat.Mean(vals, nil),
			"median": Median(vals),
			"std":    std,
			"sum":    floats.Sum(vals),
		}
		for _, name := range NightlightStats {
			if err := gen.set(t, i, NightlightColumn(name), values[name]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Median returns the middle value, averaging the two middle values for an
// even count. Empty input returns 0.
func Median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
