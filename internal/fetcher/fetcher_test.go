package fetcher

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/resilience"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) { return string(s), nil }

func testCache(t *testing.T) *Cache {
	t.Helper()
	return NewCache(Options{
		Dir: t.TempDir(),
		Retry: resilience.Policy{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		},
	})
}

func createTestZIP(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFetch_DownloadsOnceThenCaches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("radiance"))
	}))
	defer srv.Close()

	c := testCache(t)
	url := srv.URL + "/data/samples.csv"

	path, err := c.Fetch(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, "samples.csv", filepath.Base(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "radiance", string(data))

	again, err := c.Fetch(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, int32(1), calls.Load())

	_, err = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestFetchAuth_SendsBearer(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := testCache(t)
	_, err := c.FetchAuth(context.Background(), srv.URL+"/vnl.csv.gz", staticToken("tok-123"))
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", got)
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := testCache(t)
	_, err := c.Fetch(context.Background(), srv.URL+"/tiles.zip")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testCache(t)
	_, err := c.Fetch(context.Background(), srv.URL+"/missing.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.Equal(t, int32(1), calls.Load())

	path, _ := c.Path(srv.URL + "/missing.zip")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetch_LocalPath(t *testing.T) {
	c := testCache(t)
	local := filepath.Join(t.TempDir(), "grid.geojson")
	require.NoError(t, os.WriteFile(local, []byte("{}"), 0o644))

	path, err := c.Fetch(context.Background(), local)
	require.NoError(t, err)
	assert.Equal(t, local, path)

	_, err = c.Fetch(context.Background(), filepath.Join(t.TempDir(), "nope.geojson"))
	assert.Error(t, err)
}

func TestPath(t *testing.T) {
	c := NewCache(Options{Dir: "/cache"})

	p, err := c.Path("https://download.geofabrik.de/asia/philippines-latest-free.shp.zip")
	require.NoError(t, err)
	assert.Equal(t, "/cache/download.geofabrik.de/philippines-latest-free.shp.zip", p)

	p, err = c.Path("file:///data/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "/data/a.csv", p)

	_, err = c.Path("s3://bucket/key")
	assert.Error(t, err)

	_, err = c.Path("https://example.com/")
	assert.Error(t, err)
}

func TestFetchShapefile_ExtractsNamedMember(t *testing.T) {
	content := createTestZIP(t, map[string]string{
		"gis_osm_pois_free_1.shp":  "pois",
		"gis_osm_pois_free_1.dbf":  "dbf",
		"gis_osm_roads_free_1.shp": "roads",
	})
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write(content)
	}))
	defer srv.Close()

	c := testCache(t)
	url := srv.URL + "/asia/philippines-latest-free.shp.zip"

	roads, err := c.FetchShapefile(context.Background(), url, "gis_osm_roads_free_1.shp")
	require.NoError(t, err)
	data, err := os.ReadFile(roads)
	require.NoError(t, err)
	assert.Equal(t, "roads", string(data))

	pois, err := c.FetchShapefile(context.Background(), url, "GIS_OSM_POIS_FREE_1.SHP")
	require.NoError(t, err)
	assert.Equal(t, "gis_osm_pois_free_1.shp", filepath.Base(pois))
	assert.Equal(t, int32(1), calls.Load())
}

func TestExtractZIP_RejectsZipSlip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "evil.zip")
	require.NoError(t, os.WriteFile(zipPath, createTestZIP(t, map[string]string{"../escape.txt": "x"}), 0o644))

	_, err := ExtractZIP(zipPath, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip slip")
}

func TestFindExt_Missing(t *testing.T) {
	_, err := FindExt(t.TempDir(), ".shp")
	assert.Error(t, err)
}

func TestOpenMaybeGzip(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "a.csv")
	require.NoError(t, os.WriteFile(plain, []byte("lon,lat\n"), 0o644))

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("lon,lat\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	zipped := filepath.Join(dir, "a.csv.gz")
	require.NoError(t, os.WriteFile(zipped, buf.Bytes(), 0o644))

	for _, p := range []string{plain, zipped} {
		rc, err := OpenMaybeGzip(p)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, "lon,lat\n", string(data))
	}
}

func TestParseFTPURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPath string
		wantErr  bool
	}{
		{
			name:     "standard ftp url",
			url:      "ftp://ftp.ngdc.noaa.gov/STP/DMSP/F18.tar",
			wantHost: "ftp.ngdc.noaa.gov:21",
			wantPath: "/STP/DMSP/F18.tar",
		},
		{
			name:     "ftp url with port",
			url:      "ftp://ftp.example.com:2121/data/file.csv",
			wantHost: "ftp.example.com:2121",
			wantPath: "/data/file.csv",
		},
		{name: "http scheme rejected", url: "http://example.com/file.csv", wantErr: true},
		{name: "empty path", url: "ftp://ftp.example.com", wantErr: true},
		{name: "invalid url", url: "://bad", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, path, err := parseFTPURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}
