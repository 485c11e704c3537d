// Package osm reads Geofabrik OpenStreetMap shapefile extracts.
package osm

import (
	"path"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/shpio"
)

// Layer names inside a Geofabrik free extract.
const (
	POILayer     = "gis_osm_pois_free_1.shp"
	POIAreaLayer = "gis_osm_pois_a_free_1.shp"
	RoadLayer    = "gis_osm_roads_free_1.shp"
)

// POI is a point of interest with its OSM feature class.
type POI struct {
	Class string
	Name  string
	Lat   float64
	Lng   float64
}

// Road is a single polyline part. Path holds [lng, lat] pairs.
type Road struct {
	Class string
	Path  [][2]float64
}

// ExtractURL returns the Geofabrik free shapefile URL for a region such as
// "asia/philippines".
func ExtractURL(baseURL, region string) (string, error) {
	region = strings.Trim(strings.TrimSpace(region), "/")
	if region == "" {
		return "", eris.New("osm: region is empty")
	}
	return strings.TrimRight(baseURL, "/") + "/" + path.Clean(region) + "-latest-free.shp.zip", nil
}

// ReadPOIs reads POIs from a points or polygons layer. Polygon POIs are
// reduced to their bbox centre.
func ReadPOIs(shpPath string) ([]POI, error) {
	log := zap.L().With(zap.String("component", "osm"), zap.String("path", shpPath))

	var pois []POI
	var skipped int
	_, err := shpio.Each(shpPath, func(s shp.Shape, attr shpio.Attrs) error {
		class := strings.ToLower(attr("fclass"))
		if class == "" {
			skipped++
			return nil
		}
		var lat, lng float64
		switch g := s.(type) {
		case *shp.Point:
			lat, lng = g.Y, g.X
		case *shp.PointZ:
			lat, lng = g.Y, g.X
		case *shp.Polygon, *shp.PolygonZ, *shp.MultiPoint:
			lat, lng = shpio.Center(g)
		default:
			skipped++
			return nil
		}
		pois = append(pois, POI{Class: class, Name: attr("name"), Lat: lat, Lng: lng})
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "osm: read pois")
	}

	log.Debug("read pois", zap.Int("count", len(pois)), zap.Int("skipped", skipped))
	return pois, nil
}

// ReadRoads reads the roads layer, one Road per polyline part.
func ReadRoads(shpPath string) ([]Road, error) {
	log := zap.L().With(zap.String("component", "osm"), zap.String("path", shpPath))

	var roads []Road
	_, err := shpio.Each(shpPath, func(s shp.Shape, attr shpio.Attrs) error {
		class := strings.ToLower(attr("fclass"))
		var parts [][]shp.Point
		switch g := s.(type) {
		case *shp.PolyLine:
			parts = shpio.Parts(g.NumParts, g.Parts, g.Points)
		case *shp.PolyLineZ:
			parts = shpio.Parts(g.NumParts, g.Parts, g.Points)
		default:
			return nil
		}
		for _, part := range parts {
			if len(part) < 2 {
				continue
			}
			p := make([][2]float64, len(part))
			for i, pt := range part {
				p[i] = [2]float64{pt.X, pt.Y}
			}
			roads = append(roads, Road{Class: class, Path: p})
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "osm: read roads")
	}

	log.Debug("read roads", zap.Int("parts", len(roads)))
	return roads, nil
}

// FilterPOIs keeps POIs whose class is in classes.
func FilterPOIs(pois []POI, classes []string) []POI {
	keep := classSet(classes)
	out := pois[:0:0]
	for _, p := range pois {
		if keep[p.Class] {
			out = append(out, p)
		}
	}
	return out
}

// FilterRoads keeps roads whose class is in classes.
func FilterRoads(roads []Road, classes []string) []Road {
	keep := classSet(classes)
	out := roads[:0:0]
	for _, r := range roads {
		if keep[r.Class] {
			out = append(out, r)
		}
	}
	return out
}

func classSet(classes []string) map[string]bool {
	m := make(map[string]bool, len(classes))
	for _, c := range classes {
		m[strings.ToLower(c)] = true
	}
	return m
}
