package rollout

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/aoi"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/config"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/fetcher"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/ookla"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/shpio"
)

type localSources struct {
	dir, pois, roads, fixed, mobile, nightlights string
}

// writeLocalSources writes one POI inside the grid and one far away, a road
// crossing the grid and one far away, an Ookla tile per kind, and radiance
// samples inside and outside the grid.
func writeLocalSources(t *testing.T, g *aoi.Grid) localSources {
	t.Helper()
	dir := t.TempDir()
	lat, lng := g.Center(0)
	b := g.Extent()

	ls := localSources{
		dir:         dir,
		pois:        filepath.Join(dir, "pois.shp"),
		roads:       filepath.Join(dir, "roads.shp"),
		fixed:       filepath.Join(dir, "fixed.shp"),
		mobile:      filepath.Join(dir, "mobile.shp"),
		nightlights: filepath.Join(dir, "viirs.csv"),
	}

	w, err := shp.Create(ls.pois, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("fclass", 20)}))
	for _, p := range []struct {
		x, y  float64
		class string
	}{{lng, lat, "bank"}, {lng, lat, "zoo"}, {lng + 5, lat + 5, "bank"}} {
		n := int(w.Write(&shp.Point{X: p.x, Y: p.y}))
		require.NoError(t, w.WriteAttribute(n, 0, p.class))
	}
	require.NoError(t, shpio.Close(w, ls.pois))

	w, err = shp.Create(ls.roads, shp.POLYLINE)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("fclass", 20)}))
	for _, path := range [][]shp.Point{
		{{X: b.MinLng - 0.01, Y: lat}, {X: b.MaxLng + 0.01, Y: lat}},
		{{X: lng + 5, Y: lat + 5}, {X: lng + 5.1, Y: lat + 5}},
	} {
		n := int(w.Write(shp.NewPolyLine([][]shp.Point{path})))
		require.NoError(t, w.WriteAttribute(n, 0, "primary"))
	}
	require.NoError(t, shpio.Close(w, ls.roads))

	for _, path := range []string{ls.fixed, ls.mobile} {
		w, err = shp.Create(path, shp.POLYGON)
		require.NoError(t, err)
		require.NoError(t, w.SetFields([]shp.Field{
			shp.StringField("quadkey", 20),
			shp.StringField("avg_d_kbps", 12),
			shp.StringField("tests", 12),
		}))
		d := 0.0005
		ring := shp.NewPolyLine([][]shp.Point{{
			{X: lng - d, Y: lat - d}, {X: lng - d, Y: lat + d}, {X: lng + d, Y: lat + d},
			{X: lng + d, Y: lat - d}, {X: lng - d, Y: lat - d},
		}})
		poly := shp.Polygon(*ring)
		n := int(w.Write(&poly))
		require.NoError(t, w.WriteAttribute(n, 0, g.Tiles[0].Quadkey+"00"))
		require.NoError(t, w.WriteAttribute(n, 1, "25000"))
		require.NoError(t, w.WriteAttribute(n, 2, "4"))
		require.NoError(t, shpio.Close(w, path))
	}

	csv := "lon,lat,radiance\n" +
		formatLL(lng, lat) + ",3.5\n" +
		formatLL(lng+5, lat+5) + ",9\n"
	require.NoError(t, os.WriteFile(ls.nightlights, []byte(csv), 0o644))
	return ls
}

func formatLL(lng, lat float64) string {
	return strconv.FormatFloat(lng, 'f', -1, 64) + "," + strconv.FormatFloat(lat, 'f', -1, 64)
}

func loadTestGrid(t *testing.T) *aoi.Grid {
	t.Helper()
	path, _ := writeAOI(t, t.TempDir())
	g, err := aoi.LoadGeoJSON(path)
	require.NoError(t, err)
	return g
}

func TestReadLocations(t *testing.T) {
	g := loadTestGrid(t)
	ls := writeLocalSources(t, g)

	loc := &Locations{
		POIs:        []string{ls.pois},
		Roads:       ls.roads,
		Ookla:       map[ookla.Kind]string{ookla.Fixed: ls.fixed, ookla.Mobile: ls.mobile},
		Nightlights: ls.nightlights,
	}
	src, err := ReadLocations(loc, g, []string{"bank"}, []string{"primary"}, 10000)
	require.NoError(t, err)

	require.Len(t, src.POIs, 1, "zoo filtered by class, far bank by extent")
	assert.Equal(t, "bank", src.POIs[0].Class)
	assert.Len(t, src.Roads, 1)
	assert.Len(t, src.Ookla[ookla.Fixed], 1)
	assert.Len(t, src.Ookla[ookla.Mobile], 1)
	assert.InDelta(t, 25000, src.Ookla[ookla.Fixed][0].AvgDownKbps, 1e-9)
	require.Len(t, src.Nightlights, 1)
	assert.InDelta(t, 3.5, src.Nightlights[0].Radiance, 1e-9)
}

func TestReadLocations_MissingFile(t *testing.T) {
	g := loadTestGrid(t)
	_, err := ReadLocations(&Locations{POIs: []string{filepath.Join(t.TempDir(), "nope.shp")}}, g, nil, nil, 0)
	assert.Error(t, err)
}

func TestFetchSources_LocalPaths(t *testing.T) {
	g := loadTestGrid(t)
	ls := writeLocalSources(t, g)

	s := &FetchSources{
		Cache: fetcher.NewCache(fetcher.Options{Dir: t.TempDir()}),
		Config: config.SourcesConfig{
			OSM:         config.OSMConfig{POIsPath: ls.pois, RoadsPath: ls.roads},
			Ookla:       config.OoklaConfig{FixedPath: ls.fixed, MobilePath: ls.mobile, Quarter: 1},
			Nightlights: config.NightlightsConfig{Path: ls.nightlights},
		},
		POIClasses:  []string{"bank"},
		RoadClasses: []string{"primary"},
		PadM:        1000,
	}

	loc, err := s.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{ls.pois}, loc.POIs)
	assert.Equal(t, ls.mobile, loc.Ookla[ookla.Mobile])

	src, err := s.Load(context.Background(), g)
	require.NoError(t, err)
	assert.Len(t, src.POIs, 1)
	assert.Len(t, src.Nightlights, 1)
}

func TestFetchSources_ResolveErrors(t *testing.T) {
	cache := fetcher.NewCache(fetcher.Options{Dir: t.TempDir()})
	tests := []struct {
		name    string
		cfg     config.SourcesConfig
		wantErr string
	}{
		{name: "no osm", wantErr: "sources.osm"},
		{name: "half osm paths", cfg: config.SourcesConfig{OSM: config.OSMConfig{POIsPath: "a.shp"}}, wantErr: "set together"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &FetchSources{Cache: cache, Config: tt.cfg}
			_, err := s.Resolve(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
