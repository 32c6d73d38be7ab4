package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hvac-targets/internal/extract"
	"github.com/sells-group/hvac-targets/internal/metrics"
	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/research"
)

// Reasons reported by the candidates-dropped metric.
const (
	dropNoName        = "no_name"
	dropLowConfidence = "low_confidence"
	dropDuplicate     = "duplicate"
)

// run is the state of one job execution.
type run struct {
	o          *Orchestrator
	job        *model.ResearchJob
	persistCtx context.Context
	log        *zap.Logger

	stage      model.JobStage
	stageStart time.Time
}

func (r *run) execute(ctx context.Context) error {
	r.enter(model.StageDiscovery)
	text, err := r.discover(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: discovery")
	}

	r.enter(model.StageExtraction)
	candidates, err := extract.Parse(text)
	if err != nil {
		return eris.Wrap(err, "pipeline: extraction")
	}
	r.job.BusinessesFound = len(candidates)

	r.enter(model.StageValidation)
	kept := r.validate(candidates)

	r.enter(model.StageStorage)
	stored, err := r.storeAll(ctx, kept)
	if err != nil {
		return eris.Wrap(err, "pipeline: storage")
	}
	if r.o.cfg.Enrich && r.o.enricher != nil {
		r.enrich(ctx, stored)
	}

	r.enter(model.StageScoring)
	scored, err := r.o.scoreBusinesses(ctx, stored)
	r.job.BusinessesScored = scored
	if err != nil {
		return eris.Wrap(err, "pipeline: scoring")
	}
	return nil
}

// enter closes the current stage and publishes the checkpoint for the next.
func (r *run) enter(stage model.JobStage) {
	r.closeStage()
	r.stage = stage
	r.job.Stage = stage
	r.job.Progress = model.StageProgress[stage]
	r.persist()
	r.o.publish(r.job)
}

func (r *run) closeStage() {
	d := time.Since(r.stageStart)
	metrics.ObserveStage(r.stage, d)
	if r.stage != model.StageInit {
		r.log.Info("pipeline: stage complete",
			zap.String("stage", string(r.stage)),
			zap.Int64("duration_ms", d.Milliseconds()),
		)
	}
	r.stageStart = time.Now()
}

func (r *run) persist() {
	if err := r.o.store.UpdateJob(r.persistCtx, r.job); err != nil {
		r.log.Warn("pipeline: failed to update job", zap.String("stage", string(r.job.Stage)), zap.Error(err))
	}
}

func (r *run) fail(err error) {
	metrics.ObserveStage(r.stage, time.Since(r.stageStart))
	r.log.Error("pipeline: stage failed", zap.String("stage", string(r.stage)), zap.Error(err))

	now := r.o.now()
	r.job.Stage = model.StageError
	r.job.Status = model.JobStatusError
	r.job.Error = err.Error()
	r.job.CompletedAt = &now
	r.persist()
	r.o.publish(r.job)
	metrics.JobsFinished.WithLabelValues(string(model.JobStatusError)).Inc()
}

func (r *run) complete() {
	r.closeStage()
	now := r.o.now()
	r.job.Stage = model.StageComplete
	r.job.Status = model.JobStatusComplete
	r.job.Progress = model.StageProgress[model.StageComplete]
	r.job.CompletedAt = &now
	r.persist()
	r.o.publish(r.job)
	metrics.JobsFinished.WithLabelValues(string(model.JobStatusComplete)).Inc()

	r.log.Info("pipeline: research job complete",
		zap.Int("found", r.job.BusinessesFound),
		zap.Int("stored", r.job.BusinessesStored),
		zap.Int("scored", r.job.BusinessesScored),
	)
}

// discover submits the single research task for the job and waits for it.
func (r *run) discover(ctx context.Context) (string, error) {
	prompt, err := research.DiscoveryPrompt(r.job.ID, r.job.Query)
	if err != nil {
		return "", err
	}

	h, err := r.o.backend.Submit(ctx, prompt)
	if err != nil {
		return "", err
	}
	r.job.ExternalTaskID = h.ID
	r.persist()
	r.log.Info("pipeline: research task submitted", zap.String("task_id", h.ID))

	return research.Wait(ctx, r.o.backend, h, r.o.cfg.Poll)
}

// validate flags anomalies and drops candidates without a name, below the
// confidence floor, or repeating a natural key seen earlier in the batch.
func (r *run) validate(candidates []extract.Candidate) []extract.Candidate {
	seen := make(map[string]bool, len(candidates))
	kept := make([]extract.Candidate, 0, len(candidates))
	for _, c := range candidates {
		var reason string
		switch {
		case !extract.HasName(c):
			reason = dropNoName
		case c.Confidence < r.o.cfg.MinConfidence:
			reason = dropLowConfidence
		case seen[c.NaturalKey()]:
			reason = dropDuplicate
		}
		if reason != "" {
			metrics.CandidatesDropped.WithLabelValues(reason).Inc()
			r.log.Debug("pipeline: candidate dropped",
				zap.String("business", c.Name),
				zap.String("reason", reason),
				zap.Float64("confidence", c.Confidence),
			)
			continue
		}
		seen[c.NaturalKey()] = true

		c.Flags = extract.Validate(c)
		if len(c.Flags) > 0 {
			r.log.Info("pipeline: candidate flagged", zap.String("business", c.Name), zap.Strings("flags", c.Flags))
		}
		kept = append(kept, c)
	}
	return kept
}

// storeAll upserts each candidate by natural key. The first storage error
// aborts the stage; businesses already written stay written.
func (r *run) storeAll(ctx context.Context, candidates []extract.Candidate) ([]model.Business, error) {
	asOf := r.o.now()
	stored := make([]model.Business, 0, len(candidates))
	for _, c := range candidates {
		b := extract.ToBusiness(c, r.job.ID, asOf)
		created, err := r.o.store.UpsertBusiness(ctx, &b)
		if err != nil {
			return stored, eris.Wrapf(err, "pipeline: upsert %q", b.Name)
		}
		outcome := "updated"
		if created {
			outcome = "created"
		}
		metrics.BusinessesStored.WithLabelValues(outcome).Inc()
		stored = append(stored, b)
		r.job.BusinessesStored = len(stored)
	}
	return stored, nil
}

// enrich runs the source adapters for each stored business. Adapter and
// write failures are logged; the business keeps what it had.
func (r *run) enrich(ctx context.Context, stored []model.Business) {
	for i := range stored {
		if ctx.Err() != nil {
			return
		}
		if err := r.o.enrichOne(ctx, &stored[i]); err != nil {
			r.log.Warn("pipeline: enrichment not saved", zap.Int64("business_id", stored[i].ID), zap.Error(err))
		}
	}
}

// EnrichBusiness runs the source adapters for one stored business and saves
// whatever they found.
func (o *Orchestrator) EnrichBusiness(ctx context.Context, id int64) (*model.Business, error) {
	if o.enricher == nil {
		return nil, eris.New("pipeline: enrichment is not configured")
	}
	b, err := o.store.GetBusiness(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load business %d", id)
	}
	if err := o.enrichOne(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (o *Orchestrator) enrichOne(ctx context.Context, b *model.Business) error {
	en := o.enricher.Enrich(ctx, b)
	for _, adapter := range en.Failed {
		metrics.EnrichmentFailures.WithLabelValues(adapter).Inc()
	}
	if !en.Apply(b) {
		return nil
	}
	return eris.Wrapf(o.store.UpdateBusiness(ctx, b), "pipeline: save enrichment for %d", b.ID)
}
