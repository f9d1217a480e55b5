package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jobintel/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "jobintel",
	Short: "Job listing extraction pipeline",
	Long:  "Turns job posting URLs into structured records via a confidence cascade: ATS vendor APIs, Claude extraction, then HTML heuristics, with cached pages and a full audit trail.",
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
