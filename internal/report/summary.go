// Package report summarises a rollout by category and region.
package report

import (
	"io"
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/binning"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/export"
)

// Summary is the aggregate view of an exported layer.
type Summary struct {
	RunID      string
	Model      string
	Tiles      int
	Population float64
	Thresholds [4]float64
	Categories []Group
	Regions    []Group
}

// Group aggregates tiles sharing a category or region.
type Group struct {
	Name       string
	Tiles      int
	Population float64
	MeanRWI    float64
	Counts     map[string]int
}

// Build aggregates a layer. Thresholds are recomputed from the layer's RWI,
// which reproduces the ones used to label it.
func Build(l *export.Layer, runID, model string) (*Summary, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	bins, err := binning.Quintiles(l.RWI)
	if err != nil {
		return nil, eris.Wrap(err, "report: thresholds")
	}

	s := &Summary{
		RunID:      runID,
		Model:      model,
		Tiles:      l.Grid.Len(),
		Population: l.Grid.TotalPopulation(),
		Thresholds: bins.Thresholds,
	}

	cats := make(map[string]*Group, len(binning.Labels))
	for _, label := range binning.Labels {
		cats[label] = &Group{Name: label, Counts: map[string]int{}}
	}
	regions := make(map[string]*Group)

	for i, t := range l.Grid.Tiles {
		label := l.Category[i]
		c, ok := cats[label]
		if !ok {
			c = &Group{Name: label, Counts: map[string]int{}}
			cats[label] = c
		}
		c.add(label, t.Population, l.RWI[i])

		r, ok := regions[t.ShapeName]
		if !ok {
			r = &Group{Name: t.ShapeName, Counts: binning.Counts(nil)}
			regions[t.ShapeName] = r
		}
		r.add(label, t.Population, l.RWI[i])
	}

	s.Categories = sortedGroups(cats)
	s.Regions = sortedGroups(regions)
	return s, nil
}

func (g *Group) add(label string, pop, rwi float64) {
	// Running mean.
	g.Tiles++
	g.MeanRWI += (rwi - g.MeanRWI) / float64(g.Tiles)
	g.Population += pop
	g.Counts[label]++
}

func sortedGroups(m map[string]*Group) []Group {
	out := make([]Group, 0, len(m))
	for _, g := range m {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Print writes a human-readable summary with locale-formatted numbers.
func Print(w io.Writer, s *Summary) error {
	p := message.NewPrinter(language.English)
	if _, err := p.Fprintf(w, "run %s  model %s\n%d tiles, population %.0f\n", s.RunID, s.Model, s.Tiles, s.Population); err != nil {
		return eris.Wrap(err, "report: print")
	}
	if _, err := p.Fprintf(w, "thresholds %.4f %.4f %.4f %.4f\n", s.Thresholds[0], s.Thresholds[1], s.Thresholds[2], s.Thresholds[3]); err != nil {
		return eris.Wrap(err, "report: print")
	}
	for _, c := range s.Categories {
		share := 0.0
		if s.Tiles > 0 {
			share = 100 * float64(c.Tiles) / float64(s.Tiles)
		}
		if _, err := p.Fprintf(w, "  %-2s %8d tiles (%5.1f%%)  population %14.0f\n", c.Name, c.Tiles, share, c.Population); err != nil {
			return eris.Wrap(err, "report: print")
		}
	}
	return nil
}
