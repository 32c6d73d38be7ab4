package crmsync

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hvac-targets/internal/metrics"
	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/scoring"
	"github.com/sells-group/hvac-targets/internal/store"
)

const syncPageSize = 200

// Summary counts the outcome of a sync run. A business counts as Failed when
// any sink rejects it.
type Summary struct {
	Considered int `json:"considered"`
	Pushed     int `json:"pushed"`
	Failed     int `json:"failed"`
}

// Sync pushes every scored business at or above minTier to each sink. A
// failing business or sink is logged and counted; Sync only returns an error
// when the store cannot be read or ctx ends.
func Sync(ctx context.Context, st store.Store, sinks []Sink, minTier scoring.Recommendation) (Summary, error) {
	var sum Summary
	if len(sinks) == 0 {
		return sum, eris.New("crmsync: no sinks configured")
	}

	filter := store.BusinessFilter{Sort: store.SortScore, Desc: true, Limit: syncPageSize}
	for {
		recs, err := st.ListBusinesses(ctx, filter)
		if err != nil {
			return sum, eris.Wrap(err, "crmsync: list businesses")
		}
		for i := range recs {
			if err := ctx.Err(); err != nil {
				return sum, eris.Wrap(err, "crmsync: canceled")
			}
			sc := recs[i].Score
			if sc == nil || sc.Recommendation.Rank() < minTier.Rank() {
				continue
			}
			sum.Considered++
			if pushOne(ctx, st, sinks, &recs[i].Business, sc) {
				sum.Pushed++
			} else {
				sum.Failed++
			}
		}
		if len(recs) < syncPageSize {
			break
		}
		filter.Offset += syncPageSize
	}

	zap.L().Info("crmsync: complete",
		zap.String("min_tier", string(minTier)),
		zap.Int("considered", sum.Considered),
		zap.Int("pushed", sum.Pushed),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

// pushOne sends b to every sink and saves any new remote IDs. It reports
// whether all sinks accepted the business.
func pushOne(ctx context.Context, st store.Store, sinks []Sink, b *model.Business, sc *scoring.Score) bool {
	log := zap.L().With(zap.Int64("business_id", b.ID), zap.String("name", b.Name))
	sfID, pageID := b.SalesforceID, b.NotionPageID

	ok := true
	for _, s := range sinks {
		if err := s.Push(ctx, b, sc); err != nil {
			metrics.CRMPushes.WithLabelValues(s.Name(), "error").Inc()
			log.Warn("crmsync: push failed", zap.String("sink", s.Name()), zap.Error(err))
			ok = false
			continue
		}
		metrics.CRMPushes.WithLabelValues(s.Name(), "ok").Inc()
	}

	if b.SalesforceID != sfID || b.NotionPageID != pageID {
		if err := st.UpdateBusiness(ctx, b); err != nil {
			log.Error("crmsync: save remote ids", zap.Error(err))
			return false
		}
	}
	return ok
}
