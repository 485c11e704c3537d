package export

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/aoi"
)

// WriteGeoJSON writes the layer as a FeatureCollection whose feature ids are
// the quadkeys.
func WriteGeoJSON(path string, l *Layer) error {
	if err := l.Validate(); err != nil {
		return err
	}

	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, l.Grid.Len())}
	for i, t := range l.Grid.Tiles {
		fc.Features[i] = &geojson.Feature{
			ID:         t.Quadkey,
			Geometry:   t.Geometry,
			Properties: l.Properties(i),
		}
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "export: encode geojson")
	}
	if err := writeFile(path, data); err != nil {
		return err
	}

	zap.L().Info("export: wrote geojson", zap.String("path", path), zap.Int("features", len(fc.Features)))
	return nil
}

// ReadGeoJSON loads a layer written by WriteGeoJSON. Columns other than the
// prediction pair stay in each tile's Extra map.
func ReadGeoJSON(path string) (*Layer, error) {
	g, err := aoi.LoadGeoJSON(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: read geojson")
	}

	l := &Layer{
		Grid:     g,
		RWI:      make([]float64, g.Len()),
		Category: make([]string, g.Len()),
	}
	for i := range g.Tiles {
		t := &g.Tiles[i]
		v, ok := t.Extra[ColRWI].(float64)
		if !ok {
			return nil, eris.Errorf("export: tile %s has no numeric %s", t.Quadkey, ColRWI)
		}
		l.RWI[i] = v
		l.Category[i], _ = t.Extra[ColCategory].(string)
		delete(t.Extra, ColRWI)
		delete(t.Extra, ColCategory)
	}
	return l, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create dir for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}
