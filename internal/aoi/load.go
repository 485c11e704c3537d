package aoi

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// LoadGeoJSON reads a grid from a GeoJSON FeatureCollection file.
func LoadGeoJSON(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "aoi: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	g, err := Decode(f)
	if err != nil {
		return nil, eris.Wrapf(err, "aoi: load %s", path)
	}

	zap.L().Info("aoi: loaded grid",
		zap.String("path", path),
		zap.Int("tiles", g.Len()),
		zap.Int("zoom", g.Zoom),
	)
	return g, nil
}

// Decode parses a FeatureCollection into a Grid.
func Decode(r io.Reader) (*Grid, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "aoi: read")
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "aoi: decode feature collection")
	}

	tiles := make([]Tile, 0, len(fc.Features))
	for i, f := range fc.Features {
		t, err := TileFromFeature(f)
		if err != nil {
			return nil, eris.Wrapf(err, "aoi: feature %d", i)
		}
		tiles = append(tiles, t)
	}

	return NewGrid(tiles)
}

// TileFromFeature maps a GeoJSON feature onto the grid schema.
func TileFromFeature(f *geojson.Feature) (Tile, error) {
	switch f.Geometry.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
	case nil:
		return Tile{}, eris.New("aoi: feature has no geometry")
	default:
		return Tile{}, eris.Errorf("aoi: unsupported geometry %T", f.Geometry)
	}

	qk := stringProp(f.Properties[PropQuadkey])
	if qk == "" {
		qk = f.ID
	}
	if qk == "" {
		return Tile{}, eris.New("aoi: feature has no quadkey")
	}

	pop, err := floatProp(f.Properties[PropPopulation])
	if err != nil {
		return Tile{}, eris.Wrapf(err, "aoi: %s %s", PropPopulation, qk)
	}

	t := Tile{
		Quadkey:    qk,
		ShapeName:  stringProp(f.Properties[PropShapeName]),
		ShapeISO:   stringProp(f.Properties[PropShapeISO]),
		ShapeID:    stringProp(f.Properties[PropShapeID]),
		ShapeGroup: stringProp(f.Properties[PropShapeGroup]),
		ShapeType:  stringProp(f.Properties[PropShapeType]),
		Population: pop,
		Geometry:   f.Geometry,
	}

	schema := make(map[string]bool, len(SchemaColumns))
	for _, c := range SchemaColumns {
		schema[c] = true
	}
	for k, v := range f.Properties {
		if schema[k] {
			continue
		}
		if t.Extra == nil {
			t.Extra = make(map[string]any)
		}
		t.Extra[k] = v
	}

	return t, nil
}

// stringProp renders a property as a string. Numeric quadkeys written by
// some tools come back as float64 and are printed without exponent.
func stringProp(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func floatProp(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		if x == "" {
			return 0, nil
		}
		return strconv.ParseFloat(x, 64)
	default:
		return 0, eris.Errorf("unexpected type %T", v)
	}
}
