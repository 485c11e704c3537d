// Package fetcher downloads source datasets once into a local cache
// directory and hands back local paths.
package fetcher

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/resilience"
)

// TokenSource supplies bearer tokens for authenticated downloads.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Options configures a Cache.
type Options struct {
	Dir        string
	Timeout    time.Duration
	Retry      resilience.Policy
	RatePerSec float64
	UserAgent  string
}

// Cache resolves source locations to local files, downloading on first use.
type Cache struct {
	dir  string
	http *HTTPFetcher
	ftp  *FTPFetcher
}

// NewCache creates a Cache rooted at opts.Dir.
func NewCache(opts Options) *Cache {
	return &Cache{
		dir: opts.Dir,
		http: NewHTTPFetcher(HTTPOptions{
			Timeout:    opts.Timeout,
			Retry:      opts.Retry,
			RatePerSec: opts.RatePerSec,
			UserAgent:  opts.UserAgent,
		}),
		ftp: NewFTPFetcher(FTPOptions{Timeout: opts.Timeout, Retry: opts.Retry}),
	}
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns where rawURL is stored in the cache. Local paths map to themselves.
func (c *Cache) Path(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: parse %s", rawURL)
	}
	switch u.Scheme {
	case "", "file":
		return u.Path, nil
	case "http", "https", "ftp":
		name := filepath.Base(u.Path)
		if name == "." || name == "/" || name == "" {
			return "", eris.Errorf("fetcher: cannot derive file name from %s", rawURL)
		}
		return filepath.Join(c.dir, u.Host, name), nil
	default:
		return "", eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

// Fetch returns a local path for rawURL, downloading it when not cached.
func (c *Cache) Fetch(ctx context.Context, rawURL string) (string, error) {
	return c.fetch(ctx, rawURL, nil)
}

// FetchAuth is Fetch with a bearer token from tokens on HTTP requests.
func (c *Cache) FetchAuth(ctx context.Context, rawURL string, tokens TokenSource) (string, error) {
	return c.fetch(ctx, rawURL, tokens)
}

func (c *Cache) fetch(ctx context.Context, rawURL string, tokens TokenSource) (string, error) {
	path, err := c.Path(rawURL)
	if err != nil {
		return "", err
	}

	log := zap.L().With(zap.String("component", "fetcher"), zap.String("url", rawURL))

	if isLocal(rawURL) {
		if _, err := os.Stat(path); err != nil {
			return "", eris.Wrapf(err, "fetcher: local source %s", path)
		}
		return path, nil
	}

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		log.Debug("cache hit", zap.String("path", path))
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", eris.Wrap(err, "fetcher: create cache dir")
	}

	// Download beside the target and rename so a partial file never looks cached.
	part := path + ".part"
	defer os.Remove(part) //nolint:errcheck

	start := time.Now()
	var n int64
	if strings.HasPrefix(rawURL, "ftp://") {
		n, err = c.ftp.DownloadToFile(ctx, rawURL, part)
	} else {
		var token string
		if tokens != nil {
			token, err = tokens.AccessToken(ctx)
			if err != nil {
				return "", eris.Wrap(err, "fetcher: access token")
			}
		}
		n, err = c.http.DownloadToFile(ctx, rawURL, part, token)
	}
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: download %s", rawURL)
	}

	if err := os.Rename(part, path); err != nil {
		return "", eris.Wrap(err, "fetcher: finalize download")
	}

	log.Info("downloaded",
		zap.String("path", path),
		zap.Int64("bytes", n),
		zap.Duration("elapsed", time.Since(start)),
	)
	return path, nil
}

// FetchShapefile resolves src to a .shp path. A .zip source is fetched and
// extracted next to the archive; name selects the shapefile inside it (empty
// means the first one found).
func (c *Cache) FetchShapefile(ctx context.Context, src, name string) (string, error) {
	if strings.EqualFold(filepath.Ext(src), ".shp") {
		return c.Fetch(ctx, src)
	}

	zipPath, err := c.Fetch(ctx, src)
	if err != nil {
		return "", err
	}

	extractDir := strings.TrimSuffix(zipPath, filepath.Ext(zipPath))
	if name == "" {
		if shp, err := FindExt(extractDir, ".shp"); err == nil {
			return shp, nil
		}
	} else if shp, err := FindFile(extractDir, name); err == nil {
		return shp, nil
	}

	if _, err := ExtractZIP(zipPath, extractDir); err != nil {
		return "", eris.Wrapf(err, "fetcher: extract %s", zipPath)
	}

	if name == "" {
		return FindExt(extractDir, ".shp")
	}
	return FindFile(extractDir, name)
}

func isLocal(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && (u.Scheme == "" || u.Scheme == "file")
}
