package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/export"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report <geojson>",
	Short: "Summarise an exported GeoJSON",
	Long:  "Prints category and population totals for a rollout GeoJSON and optionally writes the XLSX summary workbook.",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().String("xlsx", "", "Also write the summary workbook to this path")
	reportCmd.Flags().String("run-id", "", "Run ID to record in the summary")
	reportCmd.Flags().String("model", "", "Model name to record in the summary")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	l, err := export.ReadGeoJSON(args[0])
	if err != nil {
		return err
	}

	runID, _ := cmd.Flags().GetString("run-id")
	modelName, _ := cmd.Flags().GetString("model")
	s, err := report.Build(l, runID, modelName)
	if err != nil {
		return err
	}
	if err := report.Print(cmd.OutOrStdout(), s); err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("xlsx"); path != "" {
		if err := report.WriteXLSX(path, s); err != nil {
			return err
		}
		zap.L().Info("report written", zap.String("path", path))
	}
	return nil
}
