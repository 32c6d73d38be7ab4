package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score one business or rescore every stored business",
	Long: `Computes the revenue proxy, online weakness, acquisition fit and growth
signal components for stored businesses and saves the latest score.

Without --id every business is rescored; a business that fails is logged
and counted without stopping the run.`,
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().Int64("id", 0, "score a single business by id")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	orch, err := initPipeline(st, cfg)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if id, _ := cmd.Flags().GetInt64("id"); id > 0 {
		sc, err := orch.ScoreBusiness(ctx, id)
		if err != nil {
			return err
		}
		return eris.Wrap(enc.Encode(sc), "score: encode")
	}

	sum, err := orch.ScoreAll(ctx)
	if err != nil {
		return err
	}
	return eris.Wrap(enc.Encode(sum), "score: encode")
}
