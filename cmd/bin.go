package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/binning"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/export"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/rollout"
)

var binCmd = &cobra.Command{
	Use:   "bin <geojson>",
	Short: "Recompute wealth categories of an exported GeoJSON",
	Long:  "Reloads a rollout GeoJSON, recomputes the A-E quintile categories from predicted_rwi and writes the result back (or to --out).",
	Args:  cobra.ExactArgs(1),
	RunE:  runBin,
}

func init() {
	binCmd.Flags().String("out", "", "Write to this path instead of overwriting the input")
	rootCmd.AddCommand(binCmd)
}

func runBin(cmd *cobra.Command, args []string) error {
	l, bins, changed, err := rollout.Rebin(args[0])
	if err != nil {
		return err
	}

	out := flagOr(cmd, "out", args[0])
	if err := export.WriteGeoJSON(out, l); err != nil {
		return err
	}
	zap.L().Info("rebinned", zap.String("path", out), zap.Int("changed", changed))

	w := cmd.OutOrStdout()
	t := bins.Thresholds
	_, _ = fmt.Fprintf(w, "thresholds %.4f %.4f %.4f %.4f\n", t[0], t[1], t[2], t[3])
	_, _ = fmt.Fprintf(w, "%d of %d tiles changed category\n", changed, l.Grid.Len())
	printCounts(w, binning.Counts(l.Category))
	return nil
}
