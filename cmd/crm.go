package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/hvac-targets/internal/config"
	"github.com/sells-group/hvac-targets/internal/crmsync"
	"github.com/sells-group/hvac-targets/internal/scoring"
)

var crmCmd = &cobra.Command{
	Use:   "crm",
	Short: "Push prioritized targets to Notion or Salesforce",
}

var crmSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Create or update CRM records for scored businesses",
	Example: `  hvac-targets crm sync --target notion
  hvac-targets crm sync --target salesforce --min-tier MEDIUM_PRIORITY
  hvac-targets crm sync --target all`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		target, _ := cmd.Flags().GetString("target")
		tierName, _ := cmd.Flags().GetString("min-tier")
		minTier, ok := scoring.ParseRecommendation(strings.ToUpper(tierName))
		if !ok {
			return eris.New(fmt.Sprintf("crm sync: unknown tier %q", tierName))
		}

		sinks, err := buildSinks(cfg, target)
		if err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sum, err := crmsync.Sync(ctx, st, sinks, minTier)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(sum), "crm sync: encode")
	},
}

func init() {
	crmSyncCmd.Flags().String("target", "notion", "notion, salesforce or all")
	crmSyncCmd.Flags().String("min-tier", string(scoring.HighPriority), "lowest recommendation tier to push")
	crmCmd.AddCommand(crmSyncCmd)
	rootCmd.AddCommand(crmCmd)
}

// buildSinks validates the credentials each requested target needs.
func buildSinks(c *config.Config, target string) ([]crmsync.Sink, error) {
	var names []string
	switch target {
	case "notion", "salesforce":
		names = []string{target}
	case "all":
		names = []string{"notion", "salesforce"}
	default:
		return nil, eris.New(fmt.Sprintf("crm sync: unknown target %q", target))
	}

	var sinks []crmsync.Sink
	for _, name := range names {
		if err := c.Validate("crm-" + name); err != nil {
			return nil, err
		}
		switch name {
		case "notion":
			sinks = append(sinks, crmsync.NewNotionSink(initNotion(c), c.Notion.DatabaseID))
		case "salesforce":
			sf, err := initSalesforce(c)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, crmsync.NewSalesforceSink(sf))
		}
	}
	return sinks, nil
}
