package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ratemap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ratemap",
	Short: "Choropleth map engine for U.S. rate data",
	Long:  "Classifies location identifiers, assembles state/county/tract/HSA/registry boundaries from a pre-projected catalog, bins rates into categories, and emits GeoJSON.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
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
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
