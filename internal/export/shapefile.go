package export

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/aoi"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/shpio"
)

// wgs84PRJ is the .prj sidecar for EPSG:4326.
const wgs84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// DBF field names are limited to 10 characters.
var shapefileFields = []shp.Field{
	shp.StringField(aoi.PropQuadkey, 32),
	shp.StringField(aoi.PropShapeName, 120),
	shp.StringField(aoi.PropShapeISO, 16),
	shp.StringField(aoi.PropShapeID, 64),
	shp.StringField(aoi.PropShapeGroup, 16),
	shp.StringField(aoi.PropShapeType, 16),
	shp.FloatField(aoi.PropPopulation, 24, 6),
	shp.FloatField("rwi", 24, 12),
	shp.StringField("rwi_cat", 1),
}

// WriteShapefile writes the layer as a polygon shapefile with a WGS84 .prj.
// Extra feature columns are not written.
func WriteShapefile(path string, l *Layer) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "export: create shapefile dir")
	}

	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := w.SetFields(shapefileFields); err != nil {
		w.Close()
		return eris.Wrap(err, "export: set shapefile fields")
	}

	for i, t := range l.Grid.Tiles {
		poly, err := shapefilePolygon(t.Geometry)
		if err != nil {
			w.Close()
			return eris.Wrapf(err, "export: tile %s", t.Quadkey)
		}
		row := int(w.Write(poly))
		values := []any{
			t.Quadkey, t.ShapeName, t.ShapeISO, t.ShapeID, t.ShapeGroup, t.ShapeType,
			t.Population, l.RWI[i], l.Category[i],
		}
		for field, v := range values {
			if err := w.WriteAttribute(row, field, v); err != nil {
				w.Close()
				return eris.Wrapf(err, "export: tile %s field %d", t.Quadkey, field)
			}
		}
	}
	if err := shpio.Close(w, path); err != nil {
		return err
	}

	prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	if err := writeFile(prj, []byte(wgs84PRJ)); err != nil {
		return err
	}

	zap.L().Info("export: wrote shapefile", zap.String("path", path), zap.Int("features", l.Grid.Len()))
	return nil
}

// shapefilePolygon converts a (multi)polygon to a shapefile polygon with
// clockwise outer rings and counter-clockwise holes.
func shapefilePolygon(g geom.T) (*shp.Polygon, error) {
	var polys []*geom.Polygon
	switch p := g.(type) {
	case *geom.Polygon:
		polys = []*geom.Polygon{p}
	case *geom.MultiPolygon:
		for i := 0; i < p.NumPolygons(); i++ {
			polys = append(polys, p.Polygon(i))
		}
	default:
		return nil, eris.Errorf("unsupported geometry %T", g)
	}

	var parts [][]shp.Point
	for _, p := range polys {
		for r := 0; r < p.NumLinearRings(); r++ {
			parts = append(parts, ringPoints(p.LinearRing(r).FlatCoords(), p.Stride(), r == 0))
		}
	}
	if len(parts) == 0 {
		return nil, eris.New("polygon has no rings")
	}

	line := shp.NewPolyLine(parts)
	poly := shp.Polygon(*line)
	return &poly, nil
}

// ringPoints returns ring vertices, reversed if needed so outer rings run
// clockwise and holes counter-clockwise.
func ringPoints(flat []float64, stride int, outer bool) []shp.Point {
	pts := make([]shp.Point, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		pts = append(pts, shp.Point{X: flat[i], Y: flat[i+1]})
	}
	clockwise := signedArea(pts) < 0
	if clockwise != outer {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	return pts
}

// signedArea is positive for counter-clockwise rings.
func signedArea(pts []shp.Point) float64 {
	var a float64
	for i := range pts {
		j := (i + 1) % len(pts)
		a += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return a / 2
}
