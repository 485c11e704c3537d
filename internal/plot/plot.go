// Package plot renders rollout maps and charts.
package plot

import (
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/binning"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/export"
)

// mapWidth is the rendered width of map images.
const mapWidth = 10 * vg.Inch

// CategoryColors maps labels to fill colours, wealthiest first.
var CategoryColors = map[string]color.RGBA{
	"A": {R: 0x1a, G: 0x96, B: 0x41, A: 0xff},
	"B": {R: 0xa6, G: 0xd9, B: 0x6a, A: 0xff},
	"C": {R: 0xff, G: 0xff, B: 0xbf, A: 0xff},
	"D": {R: 0xfd, G: 0xae, B: 0x61, A: 0xff},
	"E": {R: 0xd7, G: 0x19, B: 0x1c, A: 0xff},
}

var missingColor = color.RGBA{R: 0xbb, G: 0xbb, B: 0xbb, A: 0xff}

// RWIMap draws a continuous choropleth of the relative wealth index.
func RWIMap(path, title string, l *export.Layer) error {
	if err := l.Validate(); err != nil {
		return err
	}
	cm := moreland.SmoothBlueRed()
	cm.SetMin(0)
	cm.SetMax(1)

	p := newMap(title)
	for i, t := range l.Grid.Tiles {
		c, err := cm.At(clamp01(l.RWI[i]))
		if err != nil {
			return eris.Wrapf(err, "plot: colour for %s", t.Quadkey)
		}
		if err := addTile(p, t.Geometry, c); err != nil {
			return eris.Wrapf(err, "plot: tile %s", t.Quadkey)
		}
	}
	return save(p, path, l)
}

// CategoryMap draws the quintile categories with an A–E legend.
func CategoryMap(path, title string, l *export.Layer) error {
	if err := l.Validate(); err != nil {
		return err
	}

	p := newMap(title)
	for i, t := range l.Grid.Tiles {
		c, ok := CategoryColors[l.Category[i]]
		if !ok {
			c = missingColor
		}
		if err := addTile(p, t.Geometry, c); err != nil {
			return eris.Wrapf(err, "plot: tile %s", t.Quadkey)
		}
	}

	for _, label := range binning.Labels {
		swatch, err := plotter.NewPolygon(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}})
		if err != nil {
			return eris.Wrap(err, "plot: legend swatch")
		}
		swatch.Color = CategoryColors[label]
		swatch.LineStyle.Width = 0
		p.Legend.Add(label, swatch)
	}
	p.Legend.Top = true
	return save(p, path, l)
}

// Histogram draws the distribution of RWI values.
func Histogram(path, title string, l *export.Layer, bins int) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if bins <= 0 {
		bins = 20
	}

	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.X.Label.Text = export.ColRWI
	p.Y.Label.Text = "tiles"

	h, err := plotter.NewHist(plotter.Values(l.RWI), bins)
	if err != nil {
		return eris.Wrap(err, "plot: histogram")
	}
	h.FillColor = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	p.Add(h, plotter.NewGrid())

	if err := mkdir(path); err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return eris.Wrapf(err, "plot: save %s", path)
	}
	zap.L().Info("plot: wrote histogram", zap.String("path", path))
	return nil
}

func newMap(title string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.X.Label.Text = "longitude"
	p.Y.Label.Text = "latitude"
	return p
}

// addTile adds one filled polygon per (multi)polygon part.
func addTile(p *plot.Plot, g geom.T, c color.Color) error {
	var polys []*geom.Polygon
	switch v := g.(type) {
	case *geom.Polygon:
		polys = []*geom.Polygon{v}
	case *geom.MultiPolygon:
		for i := 0; i < v.NumPolygons(); i++ {
			polys = append(polys, v.Polygon(i))
		}
	default:
		return eris.Errorf("unsupported geometry %T", g)
	}

	for _, poly := range polys {
		rings := make([]plotter.XYer, poly.NumLinearRings())
		for r := range rings {
			rings[r] = ringXYs(poly.LinearRing(r).FlatCoords(), poly.Stride())
		}
		pg, err := plotter.NewPolygon(rings...)
		if err != nil {
			return err
		}
		pg.Color = c
		pg.LineStyle.Width = 0
		p.Add(pg)
	}
	return nil
}

func ringXYs(flat []float64, stride int) plotter.XYs {
	xys := make(plotter.XYs, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		xys = append(xys, plotter.XY{X: flat[i], Y: flat[i+1]})
	}
	return xys
}

// save sizes the image to the grid's aspect ratio and writes it.
func save(p *plot.Plot, path string, l *export.Layer) error {
	ext := l.Grid.Extent()
	aspect := (ext.MaxLat - ext.MinLat) / math.Max(ext.MaxLng-ext.MinLng, 1e-9)
	aspect = math.Min(math.Max(aspect, 0.4), 2.5)

	if err := mkdir(path); err != nil {
		return err
	}
	if err := p.Save(mapWidth, vg.Length(float64(mapWidth)*aspect), path); err != nil {
		return eris.Wrapf(err, "plot: save %s", path)
	}
	zap.L().Info("plot: wrote map", zap.String("path", path), zap.Int("tiles", l.Grid.Len()))
	return nil
}

func mkdir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "plot: create dir")
	}
	return nil
}

func clamp01(x float64) float64 {
	return math.Min(math.Max(x, 0), 1)
}
