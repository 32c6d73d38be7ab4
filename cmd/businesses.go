package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/hvac-targets/internal/scoring"
	"github.com/sells-group/hvac-targets/internal/store"
)

var businessesCmd = &cobra.Command{
	Use:     "businesses",
	Aliases: []string{"biz"},
	Short:   "Inspect stored businesses",
}

// -- businesses list --

var businessesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List businesses with their latest score",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		f := cmd.Flags()

		filter := store.BusinessFilter{}
		filter.Search, _ = f.GetString("search")
		filter.City, _ = f.GetString("city")
		filter.County, _ = f.GetString("county")
		filter.Sort, _ = f.GetString("sort")
		filter.Limit, _ = f.GetInt("limit")
		asc, _ := f.GetBool("asc")
		filter.Desc = !asc
		if tier, _ := f.GetString("recommendation"); tier != "" {
			rec, ok := scoring.ParseRecommendation(strings.ToUpper(tier))
			if !ok {
				return eris.New(fmt.Sprintf("businesses list: unknown recommendation %q", tier))
			}
			filter.Recommendation = rec
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.ListBusinesses(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "businesses list")
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No businesses found.")
			return nil
		}
		formatBusinessList(os.Stdout, recs)
		return nil
	},
}

// -- businesses show --

var businessesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a business and its score breakdown as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrap(err, "businesses show: invalid id")
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		b, err := st.GetBusiness(ctx, id)
		if err != nil {
			return err
		}
		sc, err := st.GetScore(ctx, id)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(store.Record{Business: *b, Score: sc}), "businesses show: encode")
	},
}

func init() {
	f := businessesListCmd.Flags()
	f.String("search", "", "substring match on name")
	f.String("city", "", "filter by city")
	f.String("county", "", "filter by county")
	f.String("recommendation", "", "filter by tier")
	f.String("sort", store.SortScore, "score, name, city, employees or updated_at")
	f.Bool("asc", false, "sort ascending")
	f.Int("limit", 50, "maximum rows")

	businessesCmd.AddCommand(businessesListCmd, businessesShowCmd)
	rootCmd.AddCommand(businessesCmd)
}

func formatBusinessList(out io.Writer, recs []store.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLOCATION\tEMPLOYEES\tFLEET\tSCORE\tRECOMMENDATION")
	for i := range recs {
		b := &recs[i].Business
		employees, fleet, score, rec := "-", "-", "-", "-"
		if e, ok := b.LatestEmployeeEstimate(); ok {
			employees = strconv.Itoa(e.Count)
		}
		if e, ok := b.LatestFleetEstimate(); ok {
			fleet = strconv.Itoa(e.Count)
		}
		if sc := recs[i].Score; sc != nil {
			score = strconv.Itoa(sc.OverallScore)
			rec = string(sc.Recommendation)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, truncate(b.Name, 40), b.Location(), employees, fleet, score, rec)
	}
	w.Flush() //nolint:errcheck
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
