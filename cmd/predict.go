package main

import (
	"fmt"
	"io"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/binning"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/report"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/rollout"
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Run the full rollout for a grid",
	Long:  "Loads the grid and model, builds (or reuses) features, predicts and normalises RWI, bins it into categories A-E and writes the requested exports, report and plots.",
	RunE:  runPredict,
}

func init() {
	addPredictFlags(predictCmd)
	rootCmd.AddCommand(predictCmd)
}

func addPredictFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("aoi", "", "Grid GeoJSON (default aoi.path)")
	f.String("model", "", "Model artifact (default model.path)")
	f.String("out-dir", "", "Output directory (default output.dir)")
	f.String("name", "", "Output base name (default output.name)")
	f.String("features", "", "Feature cache CSV, reused when it exists (default features.cache_path)")
	f.StringSlice("formats", nil, "Export formats: geojson, shapefile, gpkg, postgis (default output.formats)")
	f.Bool("no-plots", false, "Skip the PNG maps and histogram")
	f.Bool("no-html", false, "Skip the interactive HTML map")
	f.Bool("no-report", false, "Skip the XLSX summary")
}

func runPredict(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := predictOptions(cmd)
	if err != nil {
		return err
	}

	if slices.Contains(opts.Formats, rollout.FormatPostGIS) {
		pool, err := postgisPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		opts.PostGIS = &rollout.PostGISTarget{Pool: pool, Schema: cfg.PostGIS.Schema, Table: cfg.PostGIS.Table}
	}

	res, err := rollout.Run(ctx, opts)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), res)
}

func predictOptions(cmd *cobra.Command) (rollout.Options, error) {
	noPlots, _ := cmd.Flags().GetBool("no-plots")
	noHTML, _ := cmd.Flags().GetBool("no-html")
	noReport, _ := cmd.Flags().GetBool("no-report")
	formats, _ := cmd.Flags().GetStringSlice("formats")
	if len(formats) == 0 {
		formats = slices.Clone(cfg.Output.Formats)
	}
	for i, f := range formats {
		formats[i] = strings.ToLower(strings.TrimSpace(f))
	}

	opts := rollout.Options{
		AOIPath:      flagOr(cmd, "aoi", cfg.AOI.Path),
		ModelPath:    flagOr(cmd, "model", cfg.Model.Path),
		FeaturesPath: flagOr(cmd, "features", cfg.Features.CachePath),
		OutDir:       flagOr(cmd, "out-dir", cfg.Output.Dir),
		Name:         flagOr(cmd, "name", cfg.Output.Name),
		Formats:      formats,
		Plots:        cfg.Output.Plots && !noPlots,
		HTML:         cfg.Output.HTML && !noHTML,
		Report:       cfg.Output.Report && !noReport,
		Sources:      newSources(cfg),
		Generator:    newGenerator(cfg),
	}
	if opts.AOIPath == "" || opts.ModelPath == "" {
		return opts, eris.New("predict: --aoi and --model are required")
	}
	return opts, nil
}

func printResult(out io.Writer, res *rollout.Result) error {
	if res.Summary != nil {
		if err := report.Print(out, res.Summary); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(out, "run %s: %d tiles\n", res.RunID, res.Tiles)
		printCounts(out, res.Counts)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "\nSTAGE\tDURATION")
	for _, s := range res.Stages {
		_, _ = fmt.Fprintf(w, "%s\t%dms\n", s.Name, s.DurationMs)
	}
	_ = w.Flush()

	for _, o := range res.Outputs {
		_, _ = fmt.Fprintln(out, "wrote", o)
	}
	return nil
}

func printCounts(out io.Writer, counts map[string]int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CATEGORY\tTILES")
	for _, l := range binning.Labels {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", l, counts[l])
	}
	_ = w.Flush()
}
