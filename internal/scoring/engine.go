package scoring

import (
	"math"
	"time"

	"github.com/sells-group/hvac-targets/internal/model"
)

// Factor names as they appear in breakdowns.
const (
	FactorEmployeeCount       = "employee_count"
	FactorFleetSize           = "fleet_size"
	FactorPermitVolume        = "permit_volume"
	FactorServiceRadius       = "service_radius"
	FactorWebsitePresence     = "website_presence"
	FactorSocialPresence      = "social_presence"
	FactorReviewVolume        = "review_volume"
	FactorOwnershipType       = "ownership_type"
	FactorBusinessAge         = "business_age"
	FactorNicheSpecialization = "niche_specialization"
	FactorSuccession          = "succession"
	FactorPermitTrend         = "permit_trend"
	FactorReviewTrend         = "review_trend"
	FactorHiringActivity      = "hiring_activity"
	FactorFleetGrowth         = "fleet_growth"
)

// Calculate scores b under cfg. asOf fixes the current calendar year and the
// permit look-back window, which keeps the result a function of its inputs
// alone. Calculate never fails and does not validate cfg.
func Calculate(b model.Business, cfg Config, asOf time.Time) Score {
	bd := Breakdown{
		RevenueProxy:   revenueProxy(&b, cfg, asOf),
		OnlineWeakness: onlineWeakness(&b, cfg),
		AcquisitionFit: acquisitionFit(&b, cfg, asOf),
		GrowthSignals:  growthSignals(&b, cfg, asOf),
	}

	weighted := 0.0
	for _, c := range bd.Components() {
		weighted += float64(c.Score) * c.Weight
	}
	overall := clamp(roundHalfUp(weighted))

	return Score{
		BusinessID:     b.ID,
		RevenueProxy:   bd.RevenueProxy.Score,
		OnlineWeakness: bd.OnlineWeakness.Score,
		AcquisitionFit: bd.AcquisitionFit.Score,
		GrowthSignals:  bd.GrowthSignals.Score,
		OverallScore:   overall,
		Recommendation: Recommend(overall, cfg),
		Breakdown:      bd,
		ConfigVersion:  cfg.Version,
		CalculatedAt:   asOf,
	}
}

func revenueProxy(b *model.Business, cfg Config, asOf time.Time) ComponentBreakdown {
	w := cfg.Factors.RevenueProxy
	c := newComponent(ComponentRevenueProxy, cfg.Weights.RevenueProxy)
	c.add(FactorEmployeeCount, w.EmployeeCount, scoreEmployeeCount(b))
	c.add(FactorFleetSize, w.FleetSize, scoreFleetSize(b))
	c.add(FactorPermitVolume, w.PermitVolume, scorePermitVolume(b, asOf))
	c.add(FactorServiceRadius, w.ServiceRadius, scoreServiceRadius(b))
	return c.build()
}

func onlineWeakness(b *model.Business, cfg Config) ComponentBreakdown {
	w := cfg.Factors.OnlineWeakness
	c := newComponent(ComponentOnlineWeakness, cfg.Weights.OnlineWeakness)
	c.add(FactorWebsitePresence, w.WebsitePresence, scoreWebsitePresence(b))
	c.add(FactorSocialPresence, w.SocialPresence, scoreSocialPresence(b))
	c.add(FactorReviewVolume, w.ReviewVolume, scoreReviewVolume(b))
	return c.build()
}

func acquisitionFit(b *model.Business, cfg Config, asOf time.Time) ComponentBreakdown {
	w := cfg.Factors.AcquisitionFit
	c := newComponent(ComponentAcquisitionFit, cfg.Weights.AcquisitionFit)
	c.add(FactorOwnershipType, w.OwnershipType, scoreOwnershipType(b))
	c.add(FactorBusinessAge, w.BusinessAge, scoreBusinessAge(b, asOf))
	c.add(FactorNicheSpecialization, w.NicheSpecialization, scoreNicheSpecialization(b))
	c.add(FactorSuccession, w.Succession, scoreSuccession(b))
	return c.build()
}

func growthSignals(b *model.Business, cfg Config, asOf time.Time) ComponentBreakdown {
	w := cfg.Factors.GrowthSignals
	c := newComponent(ComponentGrowthSignals, cfg.Weights.GrowthSignals)
	c.add(FactorPermitTrend, w.PermitTrend, scorePermitTrend(b, asOf))
	c.add(FactorReviewTrend, w.ReviewTrend, scoreReviewTrend(b))
	c.add(FactorHiringActivity, w.HiringActivity, scoreHiringActivity())
	c.add(FactorFleetGrowth, w.FleetGrowth, scoreFleetGrowth())
	return c.build()
}

// componentBuilder accumulates weighted factors for one component.
type componentBuilder struct {
	name    string
	weight  float64
	sum     float64
	factors []Factor
}

func newComponent(name string, weight float64) *componentBuilder {
	return &componentBuilder{name: name, weight: weight}
}

func (c *componentBuilder) add(name string, weight float64, r factorResult) {
	score := r.score
	if math.IsNaN(score) {
		score = 0
	}
	c.sum += score * weight
	c.factors = append(c.factors, Factor{
		Name:        name,
		Value:       r.value,
		Score:       score,
		Weight:      weight,
		Explanation: r.explanation,
	})
}

func (c *componentBuilder) build() ComponentBreakdown {
	return ComponentBreakdown{
		Component: c.name,
		Weight:    c.weight,
		Score:     clamp(roundHalfUp(c.sum)),
		Factors:   c.factors,
	}
}

// roundHalfUp rounds to the nearest integer with halves going up. The small
// epsilon absorbs float error in sums like 48.75 that are exact in decimal.
func roundHalfUp(x float64) int {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return int(math.Floor(x + 0.5 + 1e-9))
}

func clamp(n int) int {
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	default:
		return n
	}
}

// Engine scores businesses under a fixed Config using a clock for asOf.
type Engine struct {
	cfg Config
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an Engine for cfg. The config is copied.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Config returns a copy of the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Score calculates b as of the engine clock's current time (UTC).
func (e *Engine) Score(b model.Business) Score {
	return Calculate(b, e.cfg, e.now().UTC())
}
