package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/export"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/rollout"
)

var plotCmd = &cobra.Command{
	Use:   "plot <geojson>",
	Short: "Render maps of an exported GeoJSON",
	Long:  "Draws the RWI and category choropleths, the RWI histogram and the interactive Leaflet map for a rollout GeoJSON.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlot,
}

func init() {
	plotCmd.Flags().String("out-dir", "", "Output directory (default: next to the input)")
	plotCmd.Flags().String("name", "", "Output base name (default: input file name)")
	plotCmd.Flags().Bool("no-html", false, "Skip the interactive HTML map")
	rootCmd.AddCommand(plotCmd)
}

func runPlot(cmd *cobra.Command, args []string) error {
	path := args[0]
	l, err := export.ReadGeoJSON(path)
	if err != nil {
		return err
	}

	noHTML, _ := cmd.Flags().GetBool("no-html")
	outs, err := rollout.Plots(rollout.Options{
		OutDir: flagOr(cmd, "out-dir", filepath.Dir(path)),
		Name:   flagOr(cmd, "name", baseName(path)),
		Plots:  true,
		HTML:   !noHTML,
	}, l)
	if err != nil {
		return err
	}
	for _, o := range outs {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "wrote", o)
	}
	return nil
}

// baseName strips the directory and extension from path.
func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
