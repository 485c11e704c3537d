package ookla

import (
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/quadkey"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/shpio"
)

func TestURL(t *testing.T) {
	tests := []struct {
		kind    Kind
		year    int
		quarter int
		want    string
	}{
		{Fixed, 2019, 1, "https://ookla-open-data.s3.amazonaws.com/shapefiles/performance/type=fixed/year=2019/quarter=1/2019-01-01_performance_fixed_tiles.zip"},
		{Mobile, 2022, 4, "https://ookla-open-data.s3.amazonaws.com/shapefiles/performance/type=mobile/year=2022/quarter=4/2022-10-01_performance_mobile_tiles.zip"},
	}
	for _, tt := range tests {
		got, err := URL("https://ookla-open-data.s3.amazonaws.com/", tt.kind, tt.year, tt.quarter)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := URL("x", "satellite", 2020, 1)
	assert.Error(t, err)
	_, err = URL("x", Fixed, 2020, 0)
	assert.Error(t, err)
}

func TestTileMetric(t *testing.T) {
	tile := Tile{AvgDownKbps: 1, AvgUpKbps: 2, AvgLatMs: 3, Tests: 4, Devices: 5}
	var got []float64
	for _, m := range Metrics {
		got = append(got, tile.Metric(m))
	}
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, got)
	assert.Zero(t, tile.Metric("unknown"))
}

func TestReadTiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gps_fixed_tiles.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("quadkey", 16),
		shp.NumberField("avg_d_kbps", 10),
		shp.NumberField("avg_u_kbps", 10),
		shp.NumberField("avg_lat_ms", 10),
		shp.NumberField("tests", 10),
		shp.NumberField("devices", 10),
	}))

	qk := quadkey.FromLatLng(14.6, 121.0, 16)
	b, err := quadkey.Bounds(qk)
	require.NoError(t, err)
	line := shp.NewPolyLine([][]shp.Point{{
		{X: b.MinLng, Y: b.MinLat}, {X: b.MaxLng, Y: b.MinLat},
		{X: b.MaxLng, Y: b.MaxLat}, {X: b.MinLng, Y: b.MaxLat},
		{X: b.MinLng, Y: b.MinLat},
	}})
	polygon := shp.Polygon(*line)
	n := int(w.Write(&polygon))
	for i, v := range []any{qk, 25000, 8000, 12, 40, 9} {
		require.NoError(t, w.WriteAttribute(n, i, v))
	}
	require.NoError(t, shpio.Close(w, path))

	tiles, err := ReadTiles(path)
	require.NoError(t, err)
	require.Len(t, tiles, 1)
	got := tiles[0]
	assert.Equal(t, qk, got.Quadkey)
	assert.InDelta(t, 25000, got.AvgDownKbps, 1e-9)
	assert.InDelta(t, 8000, got.AvgUpKbps, 1e-9)
	assert.InDelta(t, 12, got.AvgLatMs, 1e-9)
	assert.InDelta(t, 40, got.Tests, 1e-9)
	assert.InDelta(t, 9, got.Devices, 1e-9)
	assert.True(t, b.Contains(got.Lat, got.Lng))
}
