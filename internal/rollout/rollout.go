// Package rollout runs the end-to-end poverty-map rollout: grid, features,
// inference, binning, export, report and plots.
package rollout

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/aoi"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/binning"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/db"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/export"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/features"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/model"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/plot"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/report"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/scale"
)

// Output formats.
const (
	FormatGeoJSON   = "geojson"
	FormatShapefile = "shapefile"
	FormatGPKG      = "gpkg"
	FormatPostGIS   = "postgis"
)

// Options configures a rollout.
type Options struct {
	AOIPath   string
	ModelPath string

	// FeaturesPath is a feature cache: read when the file exists, written
	// after generation otherwise. Empty disables caching.
	FeaturesPath string

	OutDir  string
	Name    string
	Formats []string
	Plots   bool
	HTML    bool
	Report  bool

	Sources   SourceLoader
	Generator *features.Generator
	PostGIS   *PostGISTarget
}

// PostGISTarget is where the postgis format publishes.
type PostGISTarget struct {
	Pool   db.Pool
	Schema string
	Table  string
}

// Stage records how long one step took.
type Stage struct {
	Name       string
	DurationMs int64
}

// Result summarises a completed rollout.
type Result struct {
	RunID      string
	Tiles      int
	Thresholds [4]float64
	Counts     map[string]int
	Outputs    []string
	Stages     []Stage
	Summary    *report.Summary
}

// Run executes every stage in order. Any error stops the run.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Name == "" {
		opts.Name = "rollout"
	}
	runID := uuid.New().String()
	log := zap.L().With(zap.String("run_id", runID), zap.String("aoi", opts.AOIPath))
	log.Info("rollout: starting")

	res := &Result{RunID: runID}
	stage := func(name string, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return eris.Wrapf(err, "rollout: %s", name)
		}
		start := time.Now()
		err := fn()
		ms := time.Since(start).Milliseconds()
		if err != nil {
			log.Error("rollout: stage failed", zap.String("stage", name), zap.Int64("duration_ms", ms), zap.Error(err))
			return err
		}
		log.Info("rollout: stage complete", zap.String("stage", name), zap.Int64("duration_ms", ms))
		res.Stages = append(res.Stages, Stage{Name: name, DurationMs: ms})
		return nil
	}

	var (
		grid     *aoi.Grid
		artifact *model.Artifact
		table    *features.Table
		pred     *Prediction
		layer    *export.Layer
		bins     *binning.Result
	)

	if err := stage("load", func() error {
		var err error
		if grid, err = aoi.LoadGeoJSON(opts.AOIPath); err != nil {
			return err
		}
		artifact, err = model.Load(opts.ModelPath)
		return err
	}); err != nil {
		return nil, err
	}
	res.Tiles = grid.Len()

	if err := stage("features", func() error {
		var err error
		table, err = BuildFeatures(ctx, grid, opts.FeaturesPath, opts.Sources, opts.Generator)
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage("predict", func() error {
		var err error
		pred, err = Predict(artifact, table)
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage("bin", func() error {
		var err error
		if bins, err = binning.Quintiles(pred.RWI); err != nil {
			return err
		}
		layer = &export.Layer{Grid: grid, RWI: pred.RWI, Category: bins.Labels}
		return checkRows("bin", grid.Len(), len(bins.Labels))
	}); err != nil {
		return nil, err
	}
	res.Thresholds = bins.Thresholds
	res.Counts = binning.Counts(bins.Labels)

	if err := stage("export", func() error {
		outs, err := Export(ctx, opts, runID, layer, pred)
		res.Outputs = append(res.Outputs, outs...)
		return err
	}); err != nil {
		return nil, err
	}

	if opts.Report {
		if err := stage("report", func() error {
			s, err := report.Build(layer, runID, artifact.Name)
			if err != nil {
				return err
			}
			res.Summary = s
			path := outPath(opts, "_summary.xlsx")
			if err := report.WriteXLSX(path, s); err != nil {
				return err
			}
			res.Outputs = append(res.Outputs, path)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	if opts.Plots || opts.HTML {
		if err := stage("plot", func() error {
			outs, err := Plots(opts, layer)
			res.Outputs = append(res.Outputs, outs...)
			return err
		}); err != nil {
			return nil, err
		}
	}

	log.Info("rollout: complete",
		zap.Int("tiles", res.Tiles),
		zap.Any("counts", res.Counts),
		zap.Strings("outputs", res.Outputs),
	)
	return res, nil
}

// BuildFeatures reads the feature cache when it exists, otherwise loads
// sources and generates the table (writing the cache if a path is set).
func BuildFeatures(ctx context.Context, g *aoi.Grid, cachePath string, sources SourceLoader, gen *features.Generator) (*features.Table, error) {
	if cachePath != "" {
		if _, err := os.Stat(cachePath); err == nil {
			t, err := features.ReadCSV(cachePath, g)
			if err != nil {
				return nil, err
			}
			zap.L().Info("rollout: using feature cache", zap.String("path", cachePath))
			return t, checkRows("features", g.Len(), t.Len())
		}
	}

	if sources == nil || gen == nil {
		return nil, eris.New("rollout: no feature cache and no sources configured")
	}
	src, err := sources.Load(ctx, g)
	if err != nil {
		return nil, err
	}
	t, err := gen.Generate(ctx, g, src)
	if err != nil {
		return nil, err
	}
	if err := checkRows("features", g.Len(), t.Len()); err != nil {
		return nil, err
	}

	if cachePath != "" {
		if err := features.WriteCSV(cachePath, g, t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Prediction holds the model inputs and outputs of one run.
type Prediction struct {
	Raw    *features.Table
	Scaled *features.Table
	Scores []float64
	RWI    []float64
}

// Predict selects the model's features, scales them, runs the model and
// normalises the scores to [0, 1].
func Predict(a *model.Artifact, t *features.Table) (*Prediction, error) {
	raw, err := t.Subset(a.Features)
	if err != nil {
		return nil, eris.Wrapf(model.ErrShapeMismatch, "rollout: %v", err)
	}

	scaler, err := a.FeatureScaler()
	if err != nil {
		return nil, err
	}
	if scaler == nil {
		if scaler, err = scale.Fit(raw.Rows); err != nil {
			return nil, err
		}
	}
	rows, err := scaler.Transform(raw.Rows)
	if err != nil {
		return nil, err
	}
	scaled := &features.Table{Columns: raw.Columns, Rows: rows}

	x, err := model.Select(scaled, a.Features)
	if err != nil {
		return nil, err
	}
	predictor, err := model.NewPredictor(a)
	if err != nil {
		return nil, err
	}
	scores, err := predictor.Predict(x)
	if err != nil {
		return nil, err
	}
	if err := checkRows("predict", t.Len(), len(scores)); err != nil {
		return nil, err
	}
	for i, v := range scores {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, eris.Errorf("rollout: model produced non-finite score %g for row %d", v, i)
		}
	}

	return &Prediction{Raw: raw, Scaled: scaled, Scores: scores, RWI: scale.Vector(scores)}, nil
}

// Export writes the layer in every requested format and returns the paths
// (or table name, for PostGIS) written.
func Export(ctx context.Context, opts Options, runID string, l *export.Layer, pred *Prediction) ([]string, error) {
	var outs []string
	for _, format := range opts.Formats {
		switch strings.ToLower(format) {
		case FormatGeoJSON:
			path := outPath(opts, ".geojson")
			if err := export.WriteGeoJSON(path, l); err != nil {
				return outs, err
			}
			outs = append(outs, path)

			if pred != nil {
				cols, err := export.FeatureColumns(pred.Scaled, pred.Raw)
				if err != nil {
					return outs, err
				}
				fl := *l
				fl.Columns = cols
				path = outPath(opts, "_features.geojson")
				if err := export.WriteGeoJSON(path, &fl); err != nil {
					return outs, err
				}
				outs = append(outs, path)
			}
		case FormatShapefile:
			path := outPath(opts, ".shp")
			if err := export.WriteShapefile(path, l); err != nil {
				return outs, err
			}
			outs = append(outs, path)
		case FormatGPKG:
			path := outPath(opts, ".gpkg")
			if err := export.WriteGeoPackage(ctx, path, tableName(opts.Name), l); err != nil {
				return outs, err
			}
			outs = append(outs, path)
		case FormatPostGIS:
			if opts.PostGIS == nil || opts.PostGIS.Pool == nil {
				return outs, eris.New("rollout: postgis format needs a database connection")
			}
			t := opts.PostGIS
			if _, err := export.PublishPostGIS(ctx, t.Pool, t.Schema, t.Table, runID, l); err != nil {
				return outs, err
			}
			outs = append(outs, "postgis:"+db.Qualified(t.Schema, t.Table))
		default:
			return outs, eris.Errorf("rollout: unknown output format %q", format)
		}
	}
	return outs, nil
}

// Plots renders the static maps and histogram (opts.Plots) and the
// interactive page (opts.HTML).
func Plots(opts Options, l *export.Layer) ([]string, error) {
	var outs []string
	if opts.Plots {
		steps := []struct {
			suffix string
			fn     func(string) error
		}{
			{"_rwi.png", func(p string) error { return plot.RWIMap(p, "Relative wealth index: "+opts.Name, l) }},
			{"_categories.png", func(p string) error { return plot.CategoryMap(p, "Wealth categories: "+opts.Name, l) }},
			{"_hist.png", func(p string) error { return plot.Histogram(p, "RWI distribution: "+opts.Name, l, 20) }},
		}
		for _, s := range steps {
			path := outPath(opts, s.suffix)
			if err := s.fn(path); err != nil {
				return outs, err
			}
			outs = append(outs, path)
		}
	}
	if opts.HTML {
		path := outPath(opts, "_map.html")
		if err := plot.InteractiveMap(path, "Relative wealth index: "+opts.Name, l); err != nil {
			return outs, err
		}
		outs = append(outs, path)
	}
	return outs, nil
}

// Rebin reloads an exported GeoJSON and recomputes its categories from the
// stored RWI. changed counts tiles whose label differs from the file.
func Rebin(path string) (l *export.Layer, bins *binning.Result, changed int, err error) {
	l, err = export.ReadGeoJSON(path)
	if err != nil {
		return nil, nil, 0, err
	}
	bins, err = binning.Quintiles(l.RWI)
	if err != nil {
		return nil, nil, 0, err
	}
	for i, label := range bins.Labels {
		if l.Category[i] != label {
			changed++
		}
	}
	l.Category = bins.Labels
	return l, bins, changed, nil
}

func outPath(opts Options, suffix string) string {
	return filepath.Join(opts.OutDir, opts.Name+suffix)
}

// tableName turns an output name into a SQL identifier.
func tableName(name string) string {
	var sb strings.Builder
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				sb.WriteRune('_')
			}
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "rollout"
	}
	return sb.String()
}

func checkRows(stage string, want, got int) error {
	if want != got {
		return eris.Errorf("rollout: %s produced %d rows for %d tiles", stage, got, want)
	}
	return nil
}
