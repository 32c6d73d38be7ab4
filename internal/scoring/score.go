package scoring

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// Recommendation is the discrete priority tier derived from the overall score.
type Recommendation string

const (
	HighPriority   Recommendation = "HIGH_PRIORITY"
	MediumPriority Recommendation = "MEDIUM_PRIORITY"
	LowPriority    Recommendation = "LOW_PRIORITY"
	NotRecommended Recommendation = "NOT_RECOMMENDED"
)

// Rank orders tiers from NotRecommended (0) to HighPriority (3).
func (r Recommendation) Rank() int {
	switch r {
	case HighPriority:
		return 3
	case MediumPriority:
		return 2
	case LowPriority:
		return 1
	default:
		return 0
	}
}

// ParseRecommendation returns the tier named by s, or NotRecommended.
func ParseRecommendation(s string) (Recommendation, bool) {
	switch Recommendation(s) {
	case HighPriority, MediumPriority, LowPriority, NotRecommended:
		return Recommendation(s), true
	}
	return NotRecommended, false
}

// Component names used in breakdowns and exports.
const (
	ComponentRevenueProxy   = "revenue_proxy"
	ComponentOnlineWeakness = "online_weakness"
	ComponentAcquisitionFit = "acquisition_fit"
	ComponentGrowthSignals  = "growth_signals"
)

// Factor is one named, weighted input to a component score.
type Factor struct {
	Name        string  `json:"name"`
	Value       Value   `json:"value"`
	Score       float64 `json:"score"`
	Weight      float64 `json:"weight"`
	Explanation string  `json:"explanation"`
}

// ComponentBreakdown lists the factors behind one component score.
type ComponentBreakdown struct {
	Component string   `json:"component"`
	Weight    float64  `json:"weight"`
	Score     int      `json:"score"`
	Factors   []Factor `json:"factors"`
}

// Breakdown is the full audit trail of a Score.
type Breakdown struct {
	RevenueProxy   ComponentBreakdown `json:"revenue_proxy"`
	OnlineWeakness ComponentBreakdown `json:"online_weakness"`
	AcquisitionFit ComponentBreakdown `json:"acquisition_fit"`
	GrowthSignals  ComponentBreakdown `json:"growth_signals"`
}

// Components returns the four component breakdowns in display order.
func (b Breakdown) Components() []ComponentBreakdown {
	return []ComponentBreakdown{b.RevenueProxy, b.OnlineWeakness, b.AcquisitionFit, b.GrowthSignals}
}

// Score is the engine's output for one business.
type Score struct {
	BusinessID     int64          `json:"business_id"`
	RevenueProxy   int            `json:"revenue_proxy_score"`
	OnlineWeakness int            `json:"online_weakness_score"`
	AcquisitionFit int            `json:"acquisition_fit_score"`
	GrowthSignals  int            `json:"growth_signals_score"`
	OverallScore   int            `json:"overall_score"`
	Recommendation Recommendation `json:"recommendation"`
	Breakdown      Breakdown      `json:"breakdown"`
	ConfigVersion  string         `json:"config_version"`
	CalculatedAt   time.Time      `json:"calculated_at"`
}

// MarshalBreakdown serializes a breakdown for storage.
func MarshalBreakdown(b Breakdown) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, eris.Wrap(err, "scoring: marshal breakdown")
	}
	return data, nil
}

// UnmarshalBreakdown restores a breakdown written by MarshalBreakdown.
func UnmarshalBreakdown(data []byte) (Breakdown, error) {
	var b Breakdown
	if len(data) == 0 {
		return b, nil
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return Breakdown{}, eris.Wrap(err, "scoring: unmarshal breakdown")
	}
	return b, nil
}

// Recommend maps an overall score to a tier. Each threshold is inclusive.
func Recommend(overallScore int, cfg Config) Recommendation {
	s := float64(overallScore)
	switch {
	case s >= cfg.Thresholds.HighPriority:
		return HighPriority
	case s >= cfg.Thresholds.MediumPriority:
		return MediumPriority
	case s >= cfg.Thresholds.LowPriority:
		return LowPriority
	default:
		return NotRecommended
	}
}
