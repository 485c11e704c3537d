package rollout

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/aoi"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/binning"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/export"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/features"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/model"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/nightlights"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/osm"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/quadkey"
)

const testZoom = 14

// writeAOI writes a 5x2 block of tiles near Manila and returns its path and
// quadkeys in file order.
func writeAOI(t *testing.T, dir string) (string, []string) {
	t.Helper()
	x0, y0 := quadkey.TileXY(14.6, 121.0, testZoom)

	type feature struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Geometry   map[string]any `json:"geometry"`
	}
	var feats []feature
	var qks []string
	for dy := 0; dy < 2; dy++ {
		for dx := 0; dx < 5; dx++ {
			qk := quadkey.FromTile(x0+dx, y0+dy, testZoom)
			b, err := quadkey.Bounds(qk)
			require.NoError(t, err)
			qks = append(qks, qk)
			feats = append(feats, feature{
				Type: "Feature",
				Properties: map[string]any{
					"quadkey":   qk,
					"shapeName": fmt.Sprintf("District %d", dx%2),
					"shapeISO":  "PH-MNL",
					"pop_count": 100 * (dx + 1),
				},
				Geometry: map[string]any{
					"type": "Polygon",
					"coordinates": [][][2]float64{{
						{b.MinLng, b.MinLat}, {b.MaxLng, b.MinLat}, {b.MaxLng, b.MaxLat},
						{b.MinLng, b.MaxLat}, {b.MinLng, b.MinLat},
					}},
				},
			})
		}
	}
	data, err := json.Marshal(map[string]any{"type": "FeatureCollection", "features": feats})
	require.NoError(t, err)
	path := filepath.Join(dir, "aoi.geojson")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path, qks
}

const testModel = `
name: test-linear
kind: linear
target: rwi
features: [poi_bank_count, viirs_mean, road_primary_length]
linear:
  intercept: 0.1
  coefficients: [0.5, 1.0, 0.25]
`

func writeModel(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testModel), 0o644))
	return path
}

// stubSources puts increasing radiance and bank counts across the grid.
type stubSources struct {
	calls int
}

func (s *stubSources) Load(_ context.Context, g *aoi.Grid) (features.Sources, error) {
	s.calls++
	var src features.Sources
	for i := range g.Tiles {
		lat, lng := g.Center(i)
		for k := 0; k <= i%3; k++ {
			src.POIs = append(src.POIs, osm.POI{Class: "bank", Lat: lat, Lng: lng})
		}
		src.Nightlights = append(src.Nightlights, nightlights.Sample{Lat: lat, Lng: lng, Radiance: float64(i)})
	}
	b := g.Bounds(0)
	src.Roads = []osm.Road{{Class: "primary", Path: [][2]float64{{b.MinLng, b.MinLat}, {b.MaxLng, b.MaxLat}}}}
	return src, nil
}

func testGenerator() *features.Generator {
	return &features.Generator{
		Catalog:     features.Catalog{POIClasses: []string{"bank"}, RoadClasses: []string{"primary"}},
		MaxNearestM: 10000,
		IndexLevel:  12,
	}
}

func testOptions(t *testing.T) (Options, *stubSources) {
	t.Helper()
	dir := t.TempDir()
	aoiPath, _ := writeAOI(t, dir)
	src := &stubSources{}
	return Options{
		AOIPath:      aoiPath,
		ModelPath:    writeModel(t, dir),
		FeaturesPath: filepath.Join(dir, "cache", "features.csv"),
		OutDir:       filepath.Join(dir, "out"),
		Name:         "manila-2019",
		Formats:      []string{"geojson", "shapefile", "gpkg"},
		Plots:        true,
		HTML:         true,
		Report:       true,
		Sources:      src,
		Generator:    testGenerator(),
	}, src
}

func TestRun(t *testing.T) {
	opts, src := testOptions(t)

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 10, res.Tiles)
	assert.Equal(t, 1, src.calls)

	total := 0
	for _, l := range binning.Labels {
		total += res.Counts[l]
	}
	assert.Equal(t, res.Tiles, total)

	for _, out := range res.Outputs {
		assert.FileExists(t, out)
	}
	for _, suffix := range []string{
		".geojson", "_features.geojson", ".shp", ".gpkg",
		"_summary.xlsx", "_rwi.png", "_categories.png", "_hist.png", "_map.html",
	} {
		assert.FileExists(t, filepath.Join(opts.OutDir, opts.Name+suffix))
	}
	assert.FileExists(t, opts.FeaturesPath)

	names := make([]string, len(res.Stages))
	for i, s := range res.Stages {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"load", "features", "predict", "bin", "export", "report", "plot"}, names)

	l, err := export.ReadGeoJSON(filepath.Join(opts.OutDir, opts.Name+".geojson"))
	require.NoError(t, err)
	require.Equal(t, res.Tiles, l.Grid.Len())
	for _, v := range l.RWI {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Contains(t, l.RWI, 0.0)
	assert.Contains(t, l.RWI, 1.0)

	fl, err := export.ReadGeoJSON(filepath.Join(opts.OutDir, opts.Name+"_features.geojson"))
	require.NoError(t, err)
	assert.Contains(t, fl.Grid.Tiles[0].Extra, "viirs_mean")
	assert.Contains(t, fl.Grid.Tiles[0].Extra, "viirs_mean_raw")
}

func TestRun_UsesFeatureCache(t *testing.T) {
	opts, src := testOptions(t)
	opts.Formats = []string{"geojson"}
	opts.Plots, opts.HTML, opts.Report = false, false, false

	first, err := Run(context.Background(), opts)
	require.NoError(t, err)

	second, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "second run reads the cache")
	assert.Equal(t, first.Thresholds, second.Thresholds)
	assert.NotEqual(t, first.RunID, second.RunID)

	opts.Sources = nil
	opts.FeaturesPath = filepath.Join(t.TempDir(), "none.csv")
	_, err = Run(context.Background(), opts)
	assert.Error(t, err)
}

func TestRun_Errors(t *testing.T) {
	opts, _ := testOptions(t)
	opts.Formats = []string{"postgis"}
	_, err := Run(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database connection")

	opts, _ = testOptions(t)
	opts.Formats = []string{"kml"}
	_, err = Run(context.Background(), opts)
	assert.Error(t, err)

	opts, _ = testOptions(t)
	opts.ModelPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = Run(context.Background(), opts)
	assert.Error(t, err)

	opts, _ = testOptions(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, opts)
	assert.Error(t, err)
}

func TestRebin_Idempotent(t *testing.T) {
	opts, _ := testOptions(t)
	opts.Formats = []string{"geojson"}
	opts.Plots, opts.HTML, opts.Report = false, false, false
	res, err := Run(context.Background(), opts)
	require.NoError(t, err)

	path := filepath.Join(opts.OutDir, opts.Name+".geojson")
	l, bins, changed, err := Rebin(path)
	require.NoError(t, err)
	assert.Zero(t, changed)
	assert.Equal(t, res.Thresholds, bins.Thresholds)
	assert.Equal(t, res.Counts, binning.Counts(l.Category))

	// Rebinning the rebinned output changes nothing either.
	require.NoError(t, export.WriteGeoJSON(path, l))
	_, again, changed, err := Rebin(path)
	require.NoError(t, err)
	assert.Zero(t, changed)
	assert.Equal(t, bins, again)
}

func TestPredict_ShapeMismatch(t *testing.T) {
	a, err := model.Parse([]byte(testModel))
	require.NoError(t, err)
	tbl := features.NewTable([]string{"poi_bank_count"}, 3)

	_, err = Predict(a, tbl)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrShapeMismatch))
}

func TestPredict_ConstantScoresMapToZero(t *testing.T) {
	a, err := model.Parse([]byte(testModel))
	require.NoError(t, err)
	tbl := features.NewTable([]string{"road_primary_length", "viirs_mean", "poi_bank_count"}, 4)

	p, err := Predict(a, tbl)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, p.RWI)
	assert.Equal(t, a.Features, p.Raw.Columns)
}

func TestPredict_NonFiniteScore(t *testing.T) {
	a, err := model.Parse([]byte(testModel))
	require.NoError(t, err)
	tbl := features.NewTable([]string{"road_primary_length", "viirs_mean", "poi_bank_count"}, 3)
	tbl.Rows[0][2] = 0
	tbl.Rows[1][2] = math.NaN()
	tbl.Rows[2][2] = 2

	_, err = Predict(a, tbl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "manila_2019", tableName("manila-2019"))
	assert.Equal(t, "_2019", tableName("2019"))
	assert.Equal(t, "rollout", tableName(""))
}

func TestPadExtent(t *testing.T) {
	b := quadkey.BBox{MinLng: 121, MinLat: 14, MaxLng: 122, MaxLat: 15}
	p := padExtent(b, 10000)
	assert.InDelta(t, 14-0.0899, p.MinLat, 1e-3)
	assert.Less(t, p.MinLng, b.MinLng-0.0899)
	assert.Equal(t, b, padExtent(b, 0))
}

func TestPathTouches(t *testing.T) {
	b := quadkey.BBox{MinLng: 0, MinLat: 0, MaxLng: 1, MaxLat: 1}
	assert.True(t, pathTouches([][2]float64{{-1, 0.5}, {2, 0.5}}, b))
	assert.False(t, pathTouches([][2]float64{{2, 2}, {3, 3}}, b))
	assert.False(t, pathTouches(nil, b))
}
