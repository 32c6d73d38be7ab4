package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/pipeline"
)

var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Run a discovery job for a region and store the results",
	Example: `  hvac-targets research --region "Central Texas" --counties Bell,Coryell --limit 40
  hvac-targets research --niches "commercial rooftop,geothermal" --enrich`,
	RunE: runResearch,
}

func init() {
	f := researchCmd.Flags()
	f.String("region", "", "region to search (default from config)")
	f.StringSlice("counties", nil, "counties to focus on")
	f.StringSlice("niches", nil, "service niches to emphasize")
	f.Int("limit", 0, "maximum businesses to request (0 = backend default)")
	f.String("notes", "", "extra instructions for the research prompt")
	f.Bool("enrich", false, "run the enrichment adapters on stored businesses")
	rootCmd.AddCommand(researchCmd)
}

func runResearch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate("research"); err != nil {
		return err
	}

	q, err := queryFromFlags(cmd)
	if err != nil {
		return err
	}
	if enrich, _ := cmd.Flags().GetBool("enrich"); enrich {
		cfg.Research.Enrich = true
	}

	st, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	orch, err := initPipeline(st, cfg, pipeline.WithProgress(func(job model.ResearchJob) {
		zap.L().Info("research progress",
			zap.String("job_id", job.ID),
			zap.String("stage", string(job.Stage)),
			zap.Int("progress", job.Progress),
		)
	}))
	if err != nil {
		return err
	}

	job, err := orch.Run(ctx, q)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(job); err != nil {
		return eris.Wrap(err, "research: encode job")
	}
	if job.Status == model.JobStatusError {
		return eris.New(fmt.Sprintf("research job %s failed: %s", job.ID, job.Error))
	}
	return nil
}

func queryFromFlags(cmd *cobra.Command) (model.ResearchQuery, error) {
	f := cmd.Flags()
	region, _ := f.GetString("region")
	if region == "" {
		region = cfg.Research.Region
	}
	if region == "" {
		return model.ResearchQuery{}, eris.New("research: --region is required")
	}
	counties, _ := f.GetStringSlice("counties")
	niches, _ := f.GetStringSlice("niches")
	limit, _ := f.GetInt("limit")
	notes, _ := f.GetString("notes")
	if limit < 0 {
		return model.ResearchQuery{}, eris.New("research: --limit must be >= 0")
	}
	return model.ResearchQuery{
		Region:   region,
		Counties: counties,
		Niches:   niches,
		Limit:    limit,
		Notes:    notes,
	}, nil
}
