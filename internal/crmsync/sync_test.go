package crmsync

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hvac-targets/internal/metrics"
	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/scoring"
	"github.com/sells-group/hvac-targets/internal/store"
)

// recordingSink assigns a remote ID on first push and can fail by name.
type recordingSink struct {
	name   string
	pushed []string
	failOn string
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Push(_ context.Context, b *model.Business, _ *scoring.Score) error {
	if b.Name == s.failOn {
		return errors.New("rejected")
	}
	s.pushed = append(s.pushed, b.Name)
	if b.NotionPageID == "" {
		b.NotionPageID = "page-" + b.Name
	}
	return nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "crm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seed(t *testing.T, st store.Store, name string, overall int, rec scoring.Recommendation) int64 {
	t.Helper()
	ctx := context.Background()
	b := &model.Business{Name: name, City: "Temple", County: "Bell"}
	require.NoError(t, st.CreateBusiness(ctx, b))
	if rec != "" {
		require.NoError(t, st.SaveScore(ctx, scoring.Score{
			BusinessID:     b.ID,
			OverallScore:   overall,
			Recommendation: rec,
			ConfigVersion:  scoring.DefaultConfigVersion,
			CalculatedAt:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		}))
	}
	return b.ID
}

func TestSync_FiltersByTier(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	highID := seed(t, st, "High Co", 80, scoring.HighPriority)
	seed(t, st, "Medium Co", 60, scoring.MediumPriority)
	seed(t, st, "Low Co", 40, scoring.LowPriority)
	seed(t, st, "Unscored Co", 0, "")

	sink := &recordingSink{name: "test-tier"}
	sum, err := Sync(ctx, st, []Sink{sink}, scoring.MediumPriority)
	require.NoError(t, err)
	assert.Equal(t, Summary{Considered: 2, Pushed: 2}, sum)
	assert.Equal(t, []string{"High Co", "Medium Co"}, sink.pushed)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.CRMPushes.WithLabelValues("test-tier", "ok")), 0.001)

	b, err := st.GetBusiness(ctx, highID)
	require.NoError(t, err)
	assert.Equal(t, "page-High Co", b.NotionPageID, "remote id is saved")
}

func TestSync_IsolatesFailures(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seed(t, st, "Good Co", 80, scoring.HighPriority)
	seed(t, st, "Bad Co", 70, scoring.HighPriority)

	first := &recordingSink{name: "test-a", failOn: "Bad Co"}
	second := &recordingSink{name: "test-b"}
	sum, err := Sync(ctx, st, []Sink{first, second}, scoring.HighPriority)
	require.NoError(t, err)
	assert.Equal(t, Summary{Considered: 2, Pushed: 1, Failed: 1}, sum)
	assert.Equal(t, []string{"Good Co", "Bad Co"}, second.pushed, "other sinks still receive the failed business")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.CRMPushes.WithLabelValues("test-a", "error")), 0.001)
}

func TestSync_NotRecommendedIncludesAll(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "Low Co", 40, scoring.LowPriority)
	seed(t, st, "Skip Co", 10, scoring.NotRecommended)

	sink := &recordingSink{name: "test-all"}
	sum, err := Sync(context.Background(), st, []Sink{sink}, scoring.NotRecommended)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Pushed)
}

func TestSync_NoSinks(t *testing.T) {
	_, err := Sync(context.Background(), newTestStore(t), nil, scoring.HighPriority)
	assert.ErrorContains(t, err, "no sinks")
}

func TestSync_Canceled(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "High Co", 80, scoring.HighPriority)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Sync(ctx, st, []Sink{&recordingSink{name: "test-cancel"}}, scoring.HighPriority)
	require.Error(t, err)
}
