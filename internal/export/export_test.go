package export

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/scoring"
	"github.com/sells-group/hvac-targets/internal/store"
)

func sampleRows() []Row {
	site := "https://acmeair.com"
	founded := 1985
	recorded := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	b := model.Business{
		ID:        7,
		Name:      "Acme Air, LLC",
		City:      "Temple",
		County:    "Bell",
		State:     "TX",
		Website:   &site,
		Niches:    []string{"residential", "refrigeration"},
		OwnerName: "Bob Acme",
		EmployeeEstimates: []model.EmployeeEstimate{
			{ID: 1, Count: 20, Source: "research", Confidence: 0.6, RecordedAt: recorded.AddDate(-1, 0, 0)},
			{ID: 2, Count: 25, Source: "research", Confidence: 0.8, RecordedAt: recorded},
		},
		FoundedYear: &founded,
		Reviews: []model.Review{
			{Source: model.ReviewGoogle, Rating: 4.5, ReviewCount: 100},
			{Source: model.ReviewYelp, Rating: 3.5, ReviewCount: 100},
		},
		Permits: []model.Permit{
			{Number: "P-1", Type: model.PermitResidential, IssuedAt: recorded},
			{Number: "P-2", Type: model.PermitCommercial, IssuedAt: recorded.AddDate(0, -2, 0)},
		},
		SocialLinks:   []model.SocialLink{{Platform: model.SocialFacebook, URL: "https://facebook.com/acmeair"}},
		OwnershipType: model.OwnershipFamilyOwned,
	}
	s := scoring.Calculate(b, scoring.DefaultConfig(), recorded)
	return []Row{
		{Business: b, Score: &s},
		{Business: model.Business{ID: 8, Name: "Unscored HVAC", City: "Waco"}},
	}
}

func readCSV(t *testing.T, data string) [][]string {
	t.Helper()
	recs, err := csv.NewReader(strings.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return recs
}

func TestHeaders_ColumnCounts(t *testing.T) {
	assert.Len(t, Headers(Standard), 29)
	assert.Len(t, Headers(Detailed), 62)
	assert.Equal(t, Headers(Detailed), Headers(XLSX))
	assert.Equal(t, Headers(Standard), Headers(Detailed)[:29])

	std := Headers(Standard)
	assert.Equal(t, "ID", std[0])
	assert.Equal(t, "Name", std[1])
	assert.Equal(t, "Overall Score", std[21])
	assert.Equal(t, "Recommendation", std[22])
	assert.Equal(t, "Updated At", std[28])
	assert.Equal(t, "Score Breakdown", Headers(Detailed)[61])

	seen := make(map[string]bool)
	for _, h := range Headers(Detailed) {
		assert.False(t, seen[h], "duplicate header %q", h)
		seen[h] = true
	}
}

func TestWriteCSV_Standard(t *testing.T) {
	var buf bytes.Buffer
	rows := sampleRows()
	require.NoError(t, WriteCSV(&buf, rows, Standard))

	recs := readCSV(t, buf.String())
	require.Len(t, recs, 3)
	for _, r := range recs {
		assert.Len(t, r, 29)
	}

	acme := recs[1]
	assert.Equal(t, "7", acme[0])
	assert.Equal(t, "Acme Air, LLC", acme[1])
	assert.Equal(t, "https://acmeair.com", acme[7])
	assert.Equal(t, "25", acme[8], "latest employee estimate")
	assert.Equal(t, "", acme[9])
	assert.Equal(t, "1985", acme[11])
	assert.Equal(t, "FAMILY_OWNED", acme[12])
	assert.Equal(t, "residential; refrigeration", acme[16])
	assert.Equal(t, "200", acme[17])
	assert.Equal(t, "4.00", acme[18])
	assert.Equal(t, "2", acme[19])
	assert.Equal(t, strconv.Itoa(rows[0].Score.OverallScore), acme[21])
	assert.Equal(t, string(rows[0].Score.Recommendation), acme[22])

	unscored := recs[2]
	assert.Equal(t, "Unscored HVAC", unscored[1])
	assert.Empty(t, unscored[21])
	assert.Empty(t, unscored[22])
	assert.Empty(t, unscored[18])
}

func TestWriteCSV_Detailed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows(), Detailed))

	recs := readCSV(t, buf.String())
	require.Len(t, recs, 3)
	for _, r := range recs {
		assert.Len(t, r, 62)
	}

	col := make(map[string]int)
	for i, h := range recs[0] {
		col[h] = i
	}
	acme := recs[1]
	assert.Equal(t, "https://facebook.com/acmeair", acme[col["Facebook"]])
	assert.Equal(t, "", acme[col["LinkedIn"]])
	assert.Equal(t, "0.8", acme[col["Employee Estimate Confidence"]])
	assert.Equal(t, "2026-03-01", acme[col["Employee Estimate Date"]])
	assert.Equal(t, "4.5", acme[col["Google Rating"]])
	assert.Equal(t, "100", acme[col["Yelp Reviews"]])
	assert.Equal(t, "", acme[col["BBB Rating"]])
	assert.Equal(t, "1", acme[col["Residential Permits"]])
	assert.Equal(t, "1", acme[col["Commercial Permits"]])
	assert.Equal(t, "2026-03-01", acme[col["Latest Permit Date"]])
	assert.Contains(t, acme[col["Score Breakdown"]], scoring.ComponentRevenueProxy)
	assert.Equal(t, scoring.DefaultConfigVersion, acme[col["Scoring Config Version"]])
}

func TestWriteCSV_NoRows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil, Standard))
	recs := readCSV(t, buf.String())
	require.Len(t, recs, 1)
	assert.Equal(t, Headers(Standard), recs[0])
}

func TestWriteCSV_RejectsXLSX(t *testing.T) {
	require.Error(t, WriteCSV(&bytes.Buffer{}, nil, XLSX))
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	rows := sampleRows()
	require.NoError(t, WriteXLSX(&buf, rows))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	sheet, ok := f.Sheet[SheetName]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)
	assert.Len(t, sheet.Rows[0].Cells, 62)
	assert.Equal(t, "Name", sheet.Rows[0].Cells[1].Value)
	assert.Equal(t, "Acme Air, LLC", sheet.Rows[1].Cells[1].Value)

	overall, err := sheet.Rows[1].Cells[21].Float()
	require.NoError(t, err)
	assert.InDelta(t, float64(rows[0].Score.OverallScore), overall, 1e-9)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", Standard, false},
		{"standard", Standard, false},
		{" Detailed ", Detailed, false},
		{"XLSX", XLSX, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRowsFromRecords(t *testing.T) {
	s := scoring.Score{BusinessID: 1, OverallScore: 80}
	rows := RowsFromRecords([]store.Record{
		{Business: model.Business{ID: 1, Name: "A"}, Score: &s},
		{Business: model.Business{ID: 2, Name: "B"}},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, 80, rows[0].Score.OverallScore)
	assert.Nil(t, rows[1].Score)
}
