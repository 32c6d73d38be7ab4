package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hvac-targets/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "hvac-targets",
	Short: "Find, score and track HVAC acquisition targets",
	Long: `Discovers residential and commercial HVAC contractors in a region through a
deep-research backend, stores them, scores each on revenue proxy, online
weakness, acquisition fit and growth signals, and exports or syncs the
prioritized list.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
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
