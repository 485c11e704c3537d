// Package ookla reads Ookla open-data network performance tiles.
package ookla

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/shpio"
)

// Kind is the connection type of a performance dataset.
type Kind string

const (
	Fixed  Kind = "fixed"
	Mobile Kind = "mobile"
)

// Kinds lists both datasets in feature-column order.
var Kinds = []Kind{Fixed, Mobile}

// Metrics are the per-tile attributes, in feature-column order.
var Metrics = []string{"avg_d_kbps", "avg_u_kbps", "avg_lat_ms", "tests", "devices"}

// Tile is one zoom-16 performance tile.
type Tile struct {
	Quadkey     string
	AvgDownKbps float64
	AvgUpKbps   float64
	AvgLatMs    float64
	Tests       float64
	Devices     float64
	Lat         float64
	Lng         float64
}

// Metric returns the value of a named metric.
func (t Tile) Metric(name string) float64 {
	switch name {
	case "avg_d_kbps":
		return t.AvgDownKbps
	case "avg_u_kbps":
		return t.AvgUpKbps
	case "avg_lat_ms":
		return t.AvgLatMs
	case "tests":
		return t.Tests
	case "devices":
		return t.Devices
	}
	return 0
}

// URL returns the public S3 shapefile archive for a kind and quarter.
func URL(baseURL string, kind Kind, year, quarter int) (string, error) {
	if kind != Fixed && kind != Mobile {
		return "", eris.Errorf("ookla: unknown kind %q", kind)
	}
	if quarter < 1 || quarter > 4 {
		return "", eris.Errorf("ookla: quarter %d out of range", quarter)
	}
	month := (quarter-1)*3 + 1
	return fmt.Sprintf("%s/shapefiles/performance/type=%s/year=%d/quarter=%d/%d-%02d-01_performance_%s_tiles.zip",
		strings.TrimRight(baseURL, "/"), kind, year, quarter, year, month, kind), nil
}

// ShapefileName is the .shp member inside the archive returned by URL.
func ShapefileName(kind Kind) string {
	return fmt.Sprintf("gps_%s_tiles.shp", kind)
}

// ReadTiles reads a performance tile shapefile.
func ReadTiles(shpPath string) ([]Tile, error) {
	log := zap.L().With(zap.String("component", "ookla"), zap.String("path", shpPath))

	var tiles []Tile
	_, err := shpio.Each(shpPath, func(s shp.Shape, attr shpio.Attrs) error {
		qk := attr("quadkey")
		if qk == "" {
			return nil
		}
		lat, lng := shpio.Center(s)
		tiles = append(tiles, Tile{
			Quadkey:     qk,
			AvgDownKbps: number(attr("avg_d_kbps")),
			AvgUpKbps:   number(attr("avg_u_kbps")),
			AvgLatMs:    number(attr("avg_lat_ms")),
			Tests:       number(attr("tests")),
			Devices:     number(attr("devices")),
			Lat:         lat,
			Lng:         lng,
		})
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "ookla: read tiles")
	}

	log.Debug("read tiles", zap.Int("count", len(tiles)))
	return tiles, nil
}

func number(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
