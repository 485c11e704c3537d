package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "povmap",
	Short: "Poverty-map rollout over a quadkey tile grid",
	Long:  "Builds open-data features for an area-of-interest grid, predicts a relative wealth index per tile, bins it into quintile categories and exports maps and reports.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
