// Package export writes stored businesses and their scores as CSV or XLSX.
package export

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/scoring"
	"github.com/sells-group/hvac-targets/internal/store"
)

// Format selects a column set or file type.
type Format string

const (
	Standard Format = "standard"
	Detailed Format = "detailed"
	XLSX     Format = "xlsx"
)

// ParseFormat validates a user supplied format name. Empty means Standard.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return Standard, nil
	case Standard, Detailed, XLSX:
		return f, nil
	default:
		return "", eris.Errorf("export: unknown format %q", s)
	}
}

// Row is one exported business with its latest score, if any.
type Row struct {
	Business model.Business
	Score    *scoring.Score
}

// RowsFromRecords converts store records to export rows.
func RowsFromRecords(recs []store.Record) []Row {
	rows := make([]Row, len(recs))
	for i, r := range recs {
		rows[i] = Row{Business: r.Business, Score: r.Score}
	}
	return rows
}

type column struct {
	header  string
	numeric bool
	value   func(r *Row) string
}

func text(header string, fn func(r *Row) string) column {
	return column{header: header, value: fn}
}

func number(header string, fn func(r *Row) string) column {
	return column{header: header, numeric: true, value: fn}
}

// standardColumns is the default export layout.
var standardColumns = []column{
	number("ID", func(r *Row) string { return strconv.FormatInt(r.Business.ID, 10) }),
	text("Name", func(r *Row) string { return r.Business.Name }),
	text("City", func(r *Row) string { return r.Business.City }),
	text("County", func(r *Row) string { return r.Business.County }),
	text("State", func(r *Row) string { return r.Business.State }),
	text("Address", func(r *Row) string { return r.Business.Address }),
	text("Phone", func(r *Row) string { return r.Business.Phone }),
	text("Website", func(r *Row) string { return deref(r.Business.Website) }),
	number("Employees", func(r *Row) string {
		if e, ok := r.Business.LatestEmployeeEstimate(); ok {
			return strconv.Itoa(e.Count)
		}
		return ""
	}),
	number("Fleet Size", func(r *Row) string {
		if e, ok := r.Business.LatestFleetEstimate(); ok {
			return strconv.Itoa(e.Count)
		}
		return ""
	}),
	number("Service Radius (mi)", func(r *Row) string { return floatPtr(r.Business.ServiceRadiusMiles) }),
	number("Founded Year", func(r *Row) string { return intPtr(r.Business.FoundedYear) }),
	text("Ownership Type", func(r *Row) string { return string(r.Business.OwnershipType) }),
	text("Succession Status", func(r *Row) string { return string(r.Business.SuccessionStatus) }),
	text("Owner Name", func(r *Row) string { return r.Business.OwnerName }),
	number("Owner Age", func(r *Row) string { return intPtr(r.Business.OwnerAge) }),
	text("Niches", func(r *Row) string { return strings.Join(r.Business.Niches, "; ") }),
	number("Total Reviews", func(r *Row) string { return strconv.Itoa(r.Business.TotalReviewCount()) }),
	number("Average Rating", func(r *Row) string { return averageRating(r.Business.Reviews) }),
	number("Permits", func(r *Row) string { return strconv.Itoa(len(r.Business.Permits)) }),
	text("License Numbers", func(r *Row) string { return licenseNumbers(r.Business.Licenses) }),
	number("Overall Score", scoreInt(func(s *scoring.Score) int { return s.OverallScore })),
	text("Recommendation", func(r *Row) string {
		if r.Score == nil {
			return ""
		}
		return string(r.Score.Recommendation)
	}),
	number("Revenue Proxy Score", scoreInt(func(s *scoring.Score) int { return s.RevenueProxy })),
	number("Online Weakness Score", scoreInt(func(s *scoring.Score) int { return s.OnlineWeakness })),
	number("Acquisition Fit Score", scoreInt(func(s *scoring.Score) int { return s.AcquisitionFit })),
	number("Growth Signals Score", scoreInt(func(s *scoring.Score) int { return s.GrowthSignals })),
	text("Scored At", func(r *Row) string {
		if r.Score == nil {
			return ""
		}
		return formatTime(r.Score.CalculatedAt)
	}),
	text("Updated At", func(r *Row) string { return formatTime(r.Business.UpdatedAt) }),
}

// detailOnlyColumns are appended to standardColumns for the detailed layout.
var detailOnlyColumns = []column{
	text("Facebook", func(r *Row) string { return r.Business.SocialURL(model.SocialFacebook) }),
	text("LinkedIn", func(r *Row) string { return r.Business.SocialURL(model.SocialLinkedIn) }),
	text("Instagram", func(r *Row) string { return r.Business.SocialURL(model.SocialInstagram) }),
	text("Employee Estimate Source", func(r *Row) string {
		e, _ := r.Business.LatestEmployeeEstimate()
		return e.Source
	}),
	number("Employee Estimate Confidence", func(r *Row) string {
		if e, ok := r.Business.LatestEmployeeEstimate(); ok {
			return formatFloat(e.Confidence)
		}
		return ""
	}),
	text("Employee Estimate Date", func(r *Row) string {
		e, _ := r.Business.LatestEmployeeEstimate()
		return formatDate(e.RecordedAt)
	}),
	text("Fleet Estimate Source", func(r *Row) string {
		e, _ := r.Business.LatestFleetEstimate()
		return e.Source
	}),
	number("Fleet Estimate Confidence", func(r *Row) string {
		if e, ok := r.Business.LatestFleetEstimate(); ok {
			return formatFloat(e.Confidence)
		}
		return ""
	}),
	text("Fleet Estimate Date", func(r *Row) string {
		e, _ := r.Business.LatestFleetEstimate()
		return formatDate(e.RecordedAt)
	}),
	number("Google Rating", reviewRating(model.ReviewGoogle)),
	number("Google Reviews", reviewCount(model.ReviewGoogle)),
	number("Yelp Rating", reviewRating(model.ReviewYelp)),
	number("Yelp Reviews", reviewCount(model.ReviewYelp)),
	number("BBB Rating", reviewRating(model.ReviewBBB)),
	number("BBB Reviews", reviewCount(model.ReviewBBB)),
	number("Facebook Rating", reviewRating(model.ReviewFacebook)),
	number("Facebook Reviews", reviewCount(model.ReviewFacebook)),
	number("Angi Rating", reviewRating(model.ReviewAngi)),
	number("Angi Reviews", reviewCount(model.ReviewAngi)),
	number("Residential Permits", permitCount(model.PermitResidential)),
	number("Commercial Permits", permitCount(model.PermitCommercial)),
	text("Latest Permit Date", func(r *Row) string {
		var latest time.Time
		for _, p := range r.Business.Permits {
			if p.IssuedAt.After(latest) {
				latest = p.IssuedAt
			}
		}
		return formatDate(latest)
	}),
	text("License Status", func(r *Row) string {
		if len(r.Business.Licenses) == 0 {
			return ""
		}
		return r.Business.Licenses[0].Status
	}),
	text("License Expires", func(r *Row) string {
		if len(r.Business.Licenses) == 0 || r.Business.Licenses[0].ExpiresAt == nil {
			return ""
		}
		return formatDate(*r.Business.Licenses[0].ExpiresAt)
	}),
	number("Confidence", func(r *Row) string { return formatFloat(r.Business.Confidence) }),
	text("Flags", func(r *Row) string { return strings.Join(r.Business.Flags, "; ") }),
	text("Notes", func(r *Row) string { return r.Business.Notes }),
	text("Source Job ID", func(r *Row) string { return r.Business.SourceJobID }),
	text("Salesforce ID", func(r *Row) string { return r.Business.SalesforceID }),
	text("Notion Page ID", func(r *Row) string { return r.Business.NotionPageID }),
	text("Scoring Config Version", func(r *Row) string {
		if r.Score == nil {
			return ""
		}
		return r.Score.ConfigVersion
	}),
	text("Created At", func(r *Row) string { return formatTime(r.Business.CreatedAt) }),
	text("Score Breakdown", func(r *Row) string {
		if r.Score == nil {
			return ""
		}
		data, err := scoring.MarshalBreakdown(r.Score.Breakdown)
		if err != nil {
			return ""
		}
		return string(data)
	}),
}

var detailedColumns = append(append([]column{}, standardColumns...), detailOnlyColumns...)

func columnsFor(f Format) []column {
	if f == Detailed || f == XLSX {
		return detailedColumns
	}
	return standardColumns
}

// Headers returns the column headers of a layout.
func Headers(f Format) []string {
	cols := columnsFor(f)
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.header
	}
	return out
}

func record(cols []column, r *Row) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.value(r)
	}
	return out
}

func scoreInt(fn func(s *scoring.Score) int) func(r *Row) string {
	return func(r *Row) string {
		if r.Score == nil {
			return ""
		}
		return strconv.Itoa(fn(r.Score))
	}
}

func reviewRating(src model.ReviewSource) func(r *Row) string {
	return func(r *Row) string {
		for _, rv := range r.Business.Reviews {
			if rv.Source == src {
				return formatFloat(rv.Rating)
			}
		}
		return ""
	}
}

func reviewCount(src model.ReviewSource) func(r *Row) string {
	return func(r *Row) string {
		for _, rv := range r.Business.Reviews {
			if rv.Source == src {
				return strconv.Itoa(rv.ReviewCount)
			}
		}
		return ""
	}
}

func permitCount(t model.PermitType) func(r *Row) string {
	return func(r *Row) string {
		n := 0
		for _, p := range r.Business.Permits {
			if p.Type == t {
				n++
			}
		}
		return strconv.Itoa(n)
	}
}

// averageRating weights each source's rating by its review count.
func averageRating(reviews []model.Review) string {
	var sum float64
	var n int
	for _, r := range reviews {
		if r.ReviewCount <= 0 {
			continue
		}
		sum += r.Rating * float64(r.ReviewCount)
		n += r.ReviewCount
	}
	if n == 0 {
		return ""
	}
	return strconv.FormatFloat(sum/float64(n), 'f', 2, 64)
}

func licenseNumbers(ls []model.License) string {
	nums := make([]string, 0, len(ls))
	for _, l := range ls {
		nums = append(nums, l.Number)
	}
	return strings.Join(nums, "; ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intPtr(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func floatPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

const collectPageSize = 500

// Collect pages through every business matching filter. Filter.Limit and
// Filter.Offset are ignored.
func Collect(ctx context.Context, st store.Store, filter store.BusinessFilter) ([]Row, error) {
	var rows []Row
	filter.Limit = collectPageSize
	for filter.Offset = 0; ; filter.Offset += collectPageSize {
		recs, err := st.ListBusinesses(ctx, filter)
		if err != nil {
			return nil, eris.Wrap(err, "export: list businesses")
		}
		rows = append(rows, RowsFromRecords(recs)...)
		if len(recs) < collectPageSize {
			return rows, nil
		}
	}
}
