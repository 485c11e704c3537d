package aoi

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/quadkey"
)

// tileFeature renders one grid row as GeoJSON using the tile's own extent.
func tileFeature(t *testing.T, qk, name string, pop float64) string {
	t.Helper()
	b, err := quadkey.Bounds(qk)
	require.NoError(t, err)
	return fmt.Sprintf(`{"type":"Feature","properties":{"quadkey":%q,"shapeName":%q,"shapeISO":"PH-00","shapeID":"PHL-ADM2-1","shapeGroup":"PHL","shapeType":"ADM2","pop_count":%g,"source":"grid-v1"},"geometry":{"type":"Polygon","coordinates":[[[%g,%g],[%g,%g],[%g,%g],[%g,%g],[%g,%g]]]}}`,
		qk, name, pop,
		b.MinLng, b.MinLat, b.MaxLng, b.MinLat, b.MaxLng, b.MaxLat, b.MinLng, b.MaxLat, b.MinLng, b.MinLat)
}

func collection(features ...string) string {
	return `{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`
}

func TestDecode_Schema(t *testing.T) {
	src := collection(
		tileFeature(t, "13223011", "Manila", 1200.5),
		tileFeature(t, "13223012", "Quezon", 0),
	)

	g, err := Decode(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 2, g.Len())
	assert.Equal(t, 8, g.Zoom)

	tile := g.Tiles[0]
	assert.Equal(t, "13223011", tile.Quadkey)
	assert.Equal(t, "Manila", tile.ShapeName)
	assert.Equal(t, "PH-00", tile.ShapeISO)
	assert.Equal(t, "PHL-ADM2-1", tile.ShapeID)
	assert.Equal(t, "PHL", tile.ShapeGroup)
	assert.Equal(t, "ADM2", tile.ShapeType)
	assert.InDelta(t, 1200.5, tile.Population, 1e-9)
	assert.IsType(t, &geom.Polygon{}, tile.Geometry)
	assert.Equal(t, "grid-v1", tile.Extra["source"])

	i, ok := g.Index("13223012")
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	assert.InDelta(t, 1200.5, g.TotalPopulation(), 1e-9)
	assert.Equal(t, []string{"13223011", "13223012"}, g.Quadkeys())
}

func TestDecode_DuplicateQuadkey(t *testing.T) {
	src := collection(
		tileFeature(t, "13223011", "A", 1),
		tileFeature(t, "13223011", "B", 2),
	)
	_, err := Decode(strings.NewReader(src))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicateQuadkey))
}

func TestDecode_MixedZoom(t *testing.T) {
	src := collection(
		tileFeature(t, "13223011", "A", 1),
		tileFeature(t, "132230110", "B", 2),
	)
	_, err := Decode(strings.NewReader(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grid is zoom 8")
}

func TestDecode_Empty(t *testing.T) {
	_, err := Decode(strings.NewReader(collection()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tiles")
}

func TestDecode_PointGeometryRejected(t *testing.T) {
	src := collection(`{"type":"Feature","properties":{"quadkey":"0123"},"geometry":{"type":"Point","coordinates":[1,2]}}`)
	_, err := Decode(strings.NewReader(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported geometry")
}

func TestDecode_MissingQuadkey(t *testing.T) {
	src := collection(`{"type":"Feature","properties":{"shapeName":"x"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}`)
	_, err := Decode(strings.NewReader(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no quadkey")
}

func TestDecode_NumericPropertiesCoerced(t *testing.T) {
	src := collection(`{"type":"Feature","properties":{"quadkey":1322301,"shapeID":42,"pop_count":"17.5"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}`)
	g, err := Decode(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "1322301", g.Tiles[0].Quadkey)
	assert.Equal(t, "42", g.Tiles[0].ShapeID)
	assert.InDelta(t, 17.5, g.Tiles[0].Population, 1e-9)
}

func TestGrid_LookupAndExtent(t *testing.T) {
	src := collection(
		tileFeature(t, "13223011", "A", 1),
		tileFeature(t, "13223013", "B", 2),
	)
	g, err := Decode(strings.NewReader(src))
	require.NoError(t, err)

	lat, lng := g.Center(1)
	i, ok := g.Lookup(lat, lng)
	require.True(t, ok)
	assert.Equal(t, 1, i)

	_, ok = g.Lookup(-45, -70)
	assert.False(t, ok)

	ext := g.Extent()
	assert.True(t, ext.Contains(g.Center(0)))
	assert.True(t, ext.Contains(g.Center(1)))
}

func TestLoadGeoJSON_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.geojson")
	require.NoError(t, os.WriteFile(path, []byte(collection(tileFeature(t, "0123", "A", 5))), 0o644))

	g, err := LoadGeoJSON(path)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())

	_, err = LoadGeoJSON(filepath.Join(t.TempDir(), "missing.geojson"))
	assert.Error(t, err)
}

func TestTile_PropertiesIncludeExtras(t *testing.T) {
	tile := Tile{Quadkey: "01", ShapeName: "A", Population: 3, Extra: map[string]any{"note": "x"}}
	props := tile.Properties()
	assert.Equal(t, "01", props[PropQuadkey])
	assert.Equal(t, 3.0, props[PropPopulation])
	assert.Equal(t, "x", props["note"])
}
