// Package metrics defines the Prometheus collectors for research jobs,
// scoring, enrichment, CRM sync and the HTTP server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/scoring"
)

var (
	JobsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hvac_research_jobs_started_total",
			Help: "Total number of research jobs started",
		},
	)

	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hvac_research_jobs_finished_total",
			Help: "Total number of research jobs finished, by final status",
		},
		[]string{"status"},
	)

	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hvac_research_jobs_active",
			Help: "Number of research jobs currently running",
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hvac_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 4, 9),
		},
		[]string{"stage"},
	)

	BusinessesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hvac_businesses_stored_total",
			Help: "Businesses written by research jobs, by outcome",
		},
		[]string{"result"},
	)

	CandidatesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hvac_candidates_dropped_total",
			Help: "Extracted candidates dropped during validation, by reason",
		},
		[]string{"reason"},
	)

	ScoresCalculated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hvac_scores_calculated_total",
			Help: "Scores calculated, by recommendation tier",
		},
		[]string{"recommendation"},
	)

	OverallScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hvac_overall_score",
			Help:    "Distribution of overall acquisition scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	ScoreFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hvac_score_failures_total",
			Help: "Businesses whose score could not be calculated or saved",
		},
	)

	EnrichmentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hvac_enrichment_failures_total",
			Help: "Enrichment adapter failures, by adapter",
		},
		[]string{"adapter"},
	)

	CRMPushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hvac_crm_pushes_total",
			Help: "CRM pushes, by sink and result",
		},
		[]string{"sink", "result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hvac_http_requests_total",
			Help: "HTTP requests served, by method, route and status code",
		},
		[]string{"method", "route", "code"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hvac_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScore records a calculated score.
func ObserveScore(s scoring.Score) {
	ScoresCalculated.WithLabelValues(string(s.Recommendation)).Inc()
	OverallScore.Observe(float64(s.OverallScore))
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage model.JobStage, d time.Duration) {
	StageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, code int, d time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
