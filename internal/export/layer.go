// Package export writes the annotated grid to GeoJSON, shapefile,
// GeoPackage and PostGIS.
package export

import (
	"github.com/rotisserie/eris"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/aoi"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/features"
)

// Output column names.
const (
	ColRWI      = "predicted_rwi"
	ColCategory = "predicted_rwi_category"
)

// RawSuffix marks unscaled feature columns in the features export.
const RawSuffix = "_raw"

// Column is an extra numeric attribute, one value per tile.
type Column struct {
	Name   string
	Values []float64
}

// Layer is the grid plus per-tile predictions, ready to export.
type Layer struct {
	Grid     *aoi.Grid
	RWI      []float64
	Category []string
	Columns  []Column
}

// Validate checks every per-tile slice matches the grid length.
func (l *Layer) Validate() error {
	if l.Grid == nil {
		return eris.New("export: layer has no grid")
	}
	n := l.Grid.Len()
	if len(l.RWI) != n {
		return eris.Errorf("export: %d predictions for %d tiles", len(l.RWI), n)
	}
	if len(l.Category) != n {
		return eris.Errorf("export: %d categories for %d tiles", len(l.Category), n)
	}
	for _, c := range l.Columns {
		if len(c.Values) != n {
			return eris.Errorf("export: column %s has %d values for %d tiles", c.Name, len(c.Values), n)
		}
	}
	return nil
}

// Properties returns the attribute map of row i.
func (l *Layer) Properties(i int) map[string]any {
	props := l.Grid.Tiles[i].Properties()
	for _, c := range l.Columns {
		props[c.Name] = c.Values[i]
	}
	props[ColRWI] = l.RWI[i]
	props[ColCategory] = l.Category[i]
	return props
}

// FeatureColumns returns scaled columns under their own names followed by
// raw columns suffixed with RawSuffix.
func FeatureColumns(scaled, raw *features.Table) ([]Column, error) {
	var cols []Column
	for _, t := range []struct {
		table  *features.Table
		suffix string
	}{{scaled, ""}, {raw, RawSuffix}} {
		if t.table == nil {
			continue
		}
		for _, name := range t.table.Columns {
			v, err := t.table.Column(name)
			if err != nil {
				return nil, err
			}
			cols = append(cols, Column{Name: name + t.suffix, Values: v})
		}
	}
	return cols, nil
}
