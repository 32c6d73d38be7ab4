package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hvac-targets/internal/export"
	"github.com/sells-group/hvac-targets/internal/scoring"
	"github.com/sells-group/hvac-targets/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export businesses and scores as CSV or XLSX",
	Example: `  hvac-targets export --output targets.csv
  hvac-targets export --format detailed --recommendation HIGH_PRIORITY
  hvac-targets export --format xlsx --output targets.xlsx`,
	RunE: runExport,
}

func init() {
	f := exportCmd.Flags()
	f.String("format", "standard", "standard, detailed or xlsx")
	f.String("output", "", "output file (default: stdout)")
	f.String("recommendation", "", "only export this tier")
	f.String("county", "", "only export this county")
	f.Int("min-score", 0, "only export businesses scoring at least this much")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	formatName, _ := flags.GetString("format")
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}
	filter, err := exportFilter(cmd)
	if err != nil {
		return err
	}

	st, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	var out io.Writer = os.Stdout
	output, _ := flags.GetString("output")
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return eris.Wrap(err, "export: create output")
		}
		defer f.Close() //nolint:errcheck
		out = f
	}

	n, err := writeExport(ctx, st, format, filter, out)
	if err != nil {
		return err
	}
	zap.L().Info("export complete",
		zap.String("format", string(format)),
		zap.Int("rows", n),
		zap.String("output", output),
	)
	return nil
}

func exportFilter(cmd *cobra.Command) (store.BusinessFilter, error) {
	flags := cmd.Flags()
	filter := store.BusinessFilter{Sort: store.SortScore, Desc: true}

	if tier, _ := flags.GetString("recommendation"); tier != "" {
		rec, ok := scoring.ParseRecommendation(strings.ToUpper(tier))
		if !ok {
			return filter, eris.New(fmt.Sprintf("export: unknown recommendation %q", tier))
		}
		filter.Recommendation = rec
	}
	filter.County, _ = flags.GetString("county")
	if minScore, _ := flags.GetInt("min-score"); minScore > 0 {
		filter.MinScore = &minScore
	}
	return filter, nil
}

// writeExport streams every business matching filter to w and returns the
// row count.
func writeExport(ctx context.Context, st store.Store, format export.Format, filter store.BusinessFilter, w io.Writer) (int, error) {
	rows, err := export.Collect(ctx, st, filter)
	if err != nil {
		return 0, err
	}
	if format == export.XLSX {
		err = export.WriteXLSX(w, rows)
	} else {
		err = export.WriteCSV(w, rows, format)
	}
	return len(rows), err
}
