package rollout

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/aoi"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/config"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/features"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/fetcher"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/nightlights"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/ookla"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/osm"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/quadkey"
)

// SourceLoader provides the raw feature inputs for a grid.
type SourceLoader interface {
	Load(ctx context.Context, g *aoi.Grid) (features.Sources, error)
}

// FetchSources resolves every dataset through the download cache.
type FetchSources struct {
	Cache       *fetcher.Cache
	Tokens      fetcher.TokenSource
	Config      config.SourcesConfig
	POIClasses  []string
	RoadClasses []string
	// PadM widens the grid extent when filtering points, so nearest
	// searches from edge tiles still see neighbours outside the grid.
	PadM float64
}

// Locations lists the shapefile and sample sources that Load will read.
type Locations struct {
	POIs        []string
	Roads       string
	Ookla       map[ookla.Kind]string
	Nightlights string
}

// Resolve downloads (or locates) every source and returns local paths.
func (s *FetchSources) Resolve(ctx context.Context) (*Locations, error) {
	loc := &Locations{Ookla: make(map[ookla.Kind]string, len(ookla.Kinds))}
	osmCfg := s.Config.OSM

	switch {
	case osmCfg.POIsPath != "" || osmCfg.RoadsPath != "":
		if osmCfg.POIsPath == "" || osmCfg.RoadsPath == "" {
			return nil, eris.New("rollout: osm pois_path and roads_path must be set together")
		}
		pois, err := s.Cache.FetchShapefile(ctx, osmCfg.POIsPath, "")
		if err != nil {
			return nil, eris.Wrap(err, "rollout: osm pois")
		}
		roads, err := s.Cache.FetchShapefile(ctx, osmCfg.RoadsPath, "")
		if err != nil {
			return nil, eris.Wrap(err, "rollout: osm roads")
		}
		loc.POIs, loc.Roads = []string{pois}, roads
	case osmCfg.Region != "":
		u, err := osm.ExtractURL(osmCfg.BaseURL, osmCfg.Region)
		if err != nil {
			return nil, err
		}
		for _, layer := range []string{osm.POILayer, osm.POIAreaLayer} {
			p, err := s.Cache.FetchShapefile(ctx, u, layer)
			if err != nil {
				return nil, eris.Wrapf(err, "rollout: osm %s", layer)
			}
			loc.POIs = append(loc.POIs, p)
		}
		if loc.Roads, err = s.Cache.FetchShapefile(ctx, u, osm.RoadLayer); err != nil {
			return nil, eris.Wrap(err, "rollout: osm roads")
		}
	default:
		return nil, eris.New("rollout: set sources.osm.region or sources.osm pois_path/roads_path")
	}

	ocfg := s.Config.Ookla
	for _, kind := range ookla.Kinds {
		src := ocfg.FixedPath
		if kind == ookla.Mobile {
			src = ocfg.MobilePath
		}
		name := ""
		if src == "" {
			u, err := ookla.URL(ocfg.BaseURL, kind, ocfg.Year, ocfg.Quarter)
			if err != nil {
				return nil, err
			}
			src, name = u, ookla.ShapefileName(kind)
		}
		p, err := s.Cache.FetchShapefile(ctx, src, name)
		if err != nil {
			return nil, eris.Wrapf(err, "rollout: ookla %s", kind)
		}
		loc.Ookla[kind] = p
	}

	nl := s.Config.Nightlights
	switch {
	case nl.Path != "":
		loc.Nightlights = nl.Path
	case nl.URL != "":
		var tokens fetcher.TokenSource
		if nl.RequireAuth {
			tokens = s.Tokens
		}
		p, err := s.Cache.FetchAuth(ctx, nl.URL, tokens)
		if err != nil {
			return nil, eris.Wrap(err, "rollout: nightlights")
		}
		loc.Nightlights = p
	default:
		return nil, eris.New("rollout: set sources.nightlights.path or sources.nightlights.url")
	}

	return loc, nil
}

// Load resolves the sources, reads them, and keeps records near the grid.
func (s *FetchSources) Load(ctx context.Context, g *aoi.Grid) (features.Sources, error) {
	loc, err := s.Resolve(ctx)
	if err != nil {
		return features.Sources{}, err
	}
	return ReadLocations(loc, g, s.POIClasses, s.RoadClasses, s.PadM)
}

// ReadLocations reads local source files, dropping records outside the
// grid extent padded by padM metres.
func ReadLocations(loc *Locations, g *aoi.Grid, poiClasses, roadClasses []string, padM float64) (features.Sources, error) {
	log := zap.L().With(zap.String("component", "rollout.sources"))
	box := padExtent(g.Extent(), padM)
	var src features.Sources

	for _, p := range loc.POIs {
		pois, err := osm.ReadPOIs(p)
		if err != nil {
			return src, err
		}
		for _, poi := range osm.FilterPOIs(pois, poiClasses) {
			if box.Contains(poi.Lat, poi.Lng) {
				src.POIs = append(src.POIs, poi)
			}
		}
	}

	roads, err := osm.ReadRoads(loc.Roads)
	if err != nil {
		return src, err
	}
	for _, r := range osm.FilterRoads(roads, roadClasses) {
		if pathTouches(r.Path, box) {
			src.Roads = append(src.Roads, r)
		}
	}

	src.Ookla = make(map[ookla.Kind][]ookla.Tile, len(loc.Ookla))
	for kind, p := range loc.Ookla {
		tiles, err := ookla.ReadTiles(p)
		if err != nil {
			return src, err
		}
		for _, t := range tiles {
			if box.Contains(t.Lat, t.Lng) {
				src.Ookla[kind] = append(src.Ookla[kind], t)
			}
		}
	}

	samples, err := nightlights.ReadSamples(loc.Nightlights)
	if err != nil {
		return src, err
	}
	for _, s := range samples {
		if box.Contains(s.Lat, s.Lng) {
			src.Nightlights = append(src.Nightlights, s)
		}
	}

	log.Info("sources loaded",
		zap.Int("pois", len(src.POIs)),
		zap.Int("roads", len(src.Roads)),
		zap.Int("ookla_fixed", len(src.Ookla[ookla.Fixed])),
		zap.Int("ookla_mobile", len(src.Ookla[ookla.Mobile])),
		zap.Int("nightlights", len(src.Nightlights)),
	)
	return src, nil
}

// padExtent grows b by m metres on every side.
func padExtent(b quadkey.BBox, m float64) quadkey.BBox {
	if m <= 0 {
		return b
	}
	dLat := m / (features.EarthRadiusM * math.Pi / 180)
	maxAbsLat := math.Min(math.Max(math.Abs(b.MinLat), math.Abs(b.MaxLat))+dLat, 89)
	dLng := dLat / math.Cos(maxAbsLat*math.Pi/180)
	return quadkey.BBox{
		MinLng: b.MinLng - dLng,
		MinLat: b.MinLat - dLat,
		MaxLng: b.MaxLng + dLng,
		MaxLat: b.MaxLat + dLat,
	}
}

// pathTouches reports whether the path's bounding box overlaps b.
func pathTouches(path [][2]float64, b quadkey.BBox) bool {
	if len(path) == 0 {
		return false
	}
	minLng, minLat := path[0][0], path[0][1]
	maxLng, maxLat := minLng, minLat
	for _, p := range path[1:] {
		minLng, maxLng = math.Min(minLng, p[0]), math.Max(maxLng, p[0])
		minLat, maxLat = math.Min(minLat, p[1]), math.Max(maxLat, p[1])
	}
	return minLng <= b.MaxLng && maxLng >= b.MinLng && minLat <= b.MaxLat && maxLat >= b.MinLat
}
