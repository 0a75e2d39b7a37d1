package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/inquiry-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "inquiry-cli",
	Short: "Cited, quality-scored answers to research questions",
	Long:  "Drives a free-text research question through a fixed pipeline: classify, retrieve, fetch, analyze, format, report, validate. Returns a cited report with a credibility-weighted quality score.",
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
