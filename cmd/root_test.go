package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/aoi"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/config"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/export"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/features"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/quadkey"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"auth", "fetch", "features", "predict", "bin", "plot", "report", "model"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "povmap", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestPredictCommand_Flags(t *testing.T) {
	for _, name := range []string{"aoi", "model", "out-dir", "features", "formats", "no-plots"} {
		assert.NotNil(t, predictCmd.Flags().Lookup(name), "predict should have --%s", name)
	}
	assert.NotNil(t, authCmd.Flags().Lookup("refresh"))
	assert.NotNil(t, featuresCmd.Flags().Lookup("out"))
}

func TestPredictOptions_LeavesConfigFormats(t *testing.T) {
	chdirTemp(t)
	c, err := config.Load()
	require.NoError(t, err)
	c.Output.Formats = []string{" GeoJSON", "GPKG"}
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })

	cmd := &cobra.Command{Use: "predict"}
	addPredictFlags(cmd)
	require.NoError(t, cmd.Flags().Set("aoi", "grid.geojson"))
	require.NoError(t, cmd.Flags().Set("model", "model.yaml"))

	for range 2 {
		opts, err := predictOptions(cmd)
		require.NoError(t, err)
		assert.Equal(t, []string{"geojson", "gpkg"}, opts.Formats)
	}
	assert.Equal(t, []string{" GeoJSON", "GPKG"}, cfg.Output.Formats)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "manila", baseName("/tmp/out/manila.geojson"))
	assert.Equal(t, "a.b", baseName("a.b.geojson"))
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

// writeFixtures writes a 10-tile grid, a feature cache for it and a linear
// model over two of the cached columns.
func writeFixtures(t *testing.T, dir string) (aoiPath, featuresPath, modelPath string) {
	t.Helper()
	x0, y0 := quadkey.TileXY(14.6, 121.0, 14)

	var feats []map[string]any
	for i := 0; i < 10; i++ {
		qk := quadkey.FromTile(x0+i%5, y0+i/5, 14)
		b, err := quadkey.Bounds(qk)
		require.NoError(t, err)
		feats = append(feats, map[string]any{
			"type":       "Feature",
			"properties": map[string]any{"quadkey": qk, "shapeName": "Region", "pop_count": 50},
			"geometry": map[string]any{
				"type": "Polygon",
				"coordinates": [][][2]float64{{
					{b.MinLng, b.MinLat}, {b.MaxLng, b.MinLat}, {b.MaxLng, b.MaxLat},
					{b.MinLng, b.MaxLat}, {b.MinLng, b.MinLat},
				}},
			},
		})
	}
	data, err := json.Marshal(map[string]any{"type": "FeatureCollection", "features": feats})
	require.NoError(t, err)
	aoiPath = filepath.Join(dir, "aoi.geojson")
	require.NoError(t, os.WriteFile(aoiPath, data, 0o644))

	g, err := aoi.LoadGeoJSON(aoiPath)
	require.NoError(t, err)
	tbl := features.NewTable([]string{"viirs_mean", "poi_bank_count"}, g.Len())
	for i := range tbl.Rows {
		tbl.Rows[i][0] = float64(i)
		tbl.Rows[i][1] = float64(i % 3)
	}
	featuresPath = filepath.Join(dir, "features.csv")
	require.NoError(t, features.WriteCSV(featuresPath, g, tbl))

	modelPath = filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(modelPath, []byte(`
name: cli-test
kind: linear
target: rwi
features: [viirs_mean, poi_bank_count]
linear:
  intercept: 0
  coefficients: [1, 0.5]
`), 0o644))
	return aoiPath, featuresPath, modelPath
}

func TestCommands_EndToEnd(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("POVMAP_LOG_LEVEL", "error")
	aoiPath, featuresPath, modelPath := writeFixtures(t, dir)
	outDir := filepath.Join(dir, "out")

	out, err := execute(t, "predict",
		"--aoi", aoiPath, "--model", modelPath, "--features", featuresPath,
		"--out-dir", outDir, "--name", "cli", "--formats", "geojson,gpkg",
		"--no-plots", "--no-html",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "10 tiles")
	assert.Contains(t, out, "predict")
	geojsonPath := filepath.Join(outDir, "cli.geojson")
	assert.FileExists(t, geojsonPath)
	assert.FileExists(t, filepath.Join(outDir, "cli.gpkg"))
	assert.FileExists(t, filepath.Join(outDir, "cli_summary.xlsx"))
	assert.NoFileExists(t, filepath.Join(outDir, "cli_rwi.png"))

	rebinned := filepath.Join(dir, "rebinned.geojson")
	out, err = execute(t, "bin", geojsonPath, "--out", rebinned)
	require.NoError(t, err, out)
	assert.Contains(t, out, "0 of 10 tiles changed")
	l, err := export.ReadGeoJSON(rebinned)
	require.NoError(t, err)
	assert.Equal(t, 10, l.Grid.Len())

	xlsxPath := filepath.Join(dir, "report.xlsx")
	out, err = execute(t, "report", geojsonPath, "--xlsx", xlsxPath, "--model", "cli-test")
	require.NoError(t, err, out)
	assert.Contains(t, out, "cli-test")
	assert.FileExists(t, xlsxPath)

	out, err = execute(t, "plot", geojsonPath, "--out-dir", filepath.Join(dir, "plots"), "--no-html")
	require.NoError(t, err, out)
	assert.FileExists(t, filepath.Join(dir, "plots", "cli_rwi.png"))
	assert.NoFileExists(t, filepath.Join(dir, "plots", "cli_map.html"))

	out, err = execute(t, "model", "inspect", modelPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "linear")
	assert.Contains(t, out, "poi_bank_count")
}

func TestCommands_InvalidConfig(t *testing.T) {
	chdirTemp(t)
	t.Setenv("POVMAP_SOURCES_OOKLA_QUARTER", "9")

	_, err := execute(t, "model", "inspect", "missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quarter")
}
