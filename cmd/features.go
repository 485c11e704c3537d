package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/aoi"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/features"
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Generate the feature table for a grid",
	Long:  "Computes POI, road, Ookla and VIIRS features for every tile of the grid and writes them as CSV keyed by quadkey.",
	RunE:  runFeatures,
}

func init() {
	featuresCmd.Flags().String("aoi", "", "Grid GeoJSON (default aoi.path)")
	featuresCmd.Flags().String("out", "", "Output CSV (default features.cache_path)")
	rootCmd.AddCommand(featuresCmd)
}

func runFeatures(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	aoiPath := flagOr(cmd, "aoi", cfg.AOI.Path)
	out := flagOr(cmd, "out", cfg.Features.CachePath)
	if aoiPath == "" || out == "" {
		return eris.New("features: --aoi and --out are required")
	}

	g, err := aoi.LoadGeoJSON(aoiPath)
	if err != nil {
		return err
	}
	src, err := newSources(cfg).Load(ctx, g)
	if err != nil {
		return err
	}
	t, err := newGenerator(cfg).Generate(ctx, g, src)
	if err != nil {
		return err
	}
	if err := features.WriteCSV(out, g, t); err != nil {
		return err
	}

	zap.L().Info("features written", zap.String("path", out), zap.Int("tiles", t.Len()), zap.Int("columns", len(t.Columns)))
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d tiles x %d features -> %s\n", t.Len(), len(t.Columns), out)
	return nil
}

// flagOr returns the string flag when set, otherwise fallback.
func flagOr(cmd *cobra.Command, name, fallback string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	return fallback
}
