package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-verify/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "nonprofit-verify",
	Short: "Nonprofit record reconciliation and retrieval",
	Long:  "Looks up US tax-exempt organizations by EIN or name, merging the IRS registry, the Nonprofit Explorer API, and e-filed Form 990 returns into one record.",
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
