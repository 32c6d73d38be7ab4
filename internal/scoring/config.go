// Package scoring computes the weighted acquisition-fit score for HVAC targets.
package scoring

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultConfigVersion identifies the built-in weights and thresholds. Stored
// scores computed under it must stay reproducible, so the defaults below are
// never edited in place; a change ships as a new version.
const DefaultConfigVersion = "v1"

// weightTolerance is the allowed drift when checking that weights sum to 1.0.
const weightTolerance = 0.001

// Config is a versioned, immutable scoring configuration. Callers receive
// copies; nothing in this package holds a mutable instance.
type Config struct {
	Version    string           `yaml:"version" json:"version"`
	Weights    ComponentWeights `yaml:"weights" json:"weights"`
	Thresholds Thresholds       `yaml:"thresholds" json:"thresholds"`
	Factors    FactorWeights    `yaml:"factors" json:"factors"`
}

// ComponentWeights are the top-level weights of the four components.
type ComponentWeights struct {
	RevenueProxy   float64 `yaml:"revenue_proxy" json:"revenue_proxy"`
	OnlineWeakness float64 `yaml:"online_weakness" json:"online_weakness"`
	AcquisitionFit float64 `yaml:"acquisition_fit" json:"acquisition_fit"`
	GrowthSignals  float64 `yaml:"growth_signals" json:"growth_signals"`
}

// Sum returns the total of the component weights.
func (w ComponentWeights) Sum() float64 {
	return w.RevenueProxy + w.OnlineWeakness + w.AcquisitionFit + w.GrowthSignals
}

// Thresholds are the ascending cut-offs for the recommendation tiers.
type Thresholds struct {
	LowPriority    float64 `yaml:"low_priority" json:"low_priority"`
	MediumPriority float64 `yaml:"medium_priority" json:"medium_priority"`
	HighPriority   float64 `yaml:"high_priority" json:"high_priority"`
}

// RevenueProxyWeights weight the factors of the Revenue Proxy component.
type RevenueProxyWeights struct {
	EmployeeCount float64 `yaml:"employee_count" json:"employee_count"`
	FleetSize     float64 `yaml:"fleet_size" json:"fleet_size"`
	PermitVolume  float64 `yaml:"permit_volume" json:"permit_volume"`
	ServiceRadius float64 `yaml:"service_radius" json:"service_radius"`
}

// OnlineWeaknessWeights weight the factors of the Online Weakness component.
type OnlineWeaknessWeights struct {
	WebsitePresence float64 `yaml:"website_presence" json:"website_presence"`
	SocialPresence  float64 `yaml:"social_presence" json:"social_presence"`
	ReviewVolume    float64 `yaml:"review_volume" json:"review_volume"`
}

// AcquisitionFitWeights weight the factors of the Acquisition Fit component.
type AcquisitionFitWeights struct {
	OwnershipType       float64 `yaml:"ownership_type" json:"ownership_type"`
	BusinessAge         float64 `yaml:"business_age" json:"business_age"`
	NicheSpecialization float64 `yaml:"niche_specialization" json:"niche_specialization"`
	Succession          float64 `yaml:"succession" json:"succession"`
}

// GrowthSignalsWeights weight the factors of the Growth Signals component.
type GrowthSignalsWeights struct {
	PermitTrend    float64 `yaml:"permit_trend" json:"permit_trend"`
	ReviewTrend    float64 `yaml:"review_trend" json:"review_trend"`
	HiringActivity float64 `yaml:"hiring_activity" json:"hiring_activity"`
	FleetGrowth    float64 `yaml:"fleet_growth" json:"fleet_growth"`
}

// FactorWeights holds the per-component factor weight tables.
type FactorWeights struct {
	RevenueProxy   RevenueProxyWeights   `yaml:"revenue_proxy" json:"revenue_proxy"`
	OnlineWeakness OnlineWeaknessWeights `yaml:"online_weakness" json:"online_weakness"`
	AcquisitionFit AcquisitionFitWeights `yaml:"acquisition_fit" json:"acquisition_fit"`
	GrowthSignals  GrowthSignalsWeights  `yaml:"growth_signals" json:"growth_signals"`
}

// DefaultConfig returns a fresh copy of the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Version: DefaultConfigVersion,
		Weights: ComponentWeights{
			RevenueProxy:   0.30,
			OnlineWeakness: 0.25,
			AcquisitionFit: 0.25,
			GrowthSignals:  0.20,
		},
		Thresholds: Thresholds{
			LowPriority:    25,
			MediumPriority: 50,
			HighPriority:   75,
		},
		Factors: FactorWeights{
			RevenueProxy: RevenueProxyWeights{
				EmployeeCount: 0.30,
				FleetSize:     0.25,
				PermitVolume:  0.25,
				ServiceRadius: 0.20,
			},
			OnlineWeakness: OnlineWeaknessWeights{
				WebsitePresence: 0.40,
				SocialPresence:  0.30,
				ReviewVolume:    0.30,
			},
			AcquisitionFit: AcquisitionFitWeights{
				OwnershipType:       0.30,
				BusinessAge:         0.20,
				NicheSpecialization: 0.30,
				Succession:          0.20,
			},
			GrowthSignals: GrowthSignalsWeights{
				PermitTrend:    0.35,
				ReviewTrend:    0.25,
				HiringActivity: 0.25,
				FleetGrowth:    0.15,
			},
		},
	}
}

// Validate checks that a Config is internally consistent. It is meant for
// config-load time; Calculate never calls it.
func Validate(c Config) error {
	var errs []string

	if strings.TrimSpace(c.Version) == "" {
		errs = append(errs, "version is required")
	}

	checkTable := func(table string, weights map[string]float64) {
		sum := 0.0
		for name, w := range weights {
			if w < 0 {
				errs = append(errs, fmt.Sprintf("%s.%s must be >= 0", table, name))
			}
			sum += w
		}
		if math.Abs(sum-1.0) > weightTolerance {
			errs = append(errs, fmt.Sprintf("%s weights should sum to 1.0, got %.4f", table, sum))
		}
	}

	checkTable("weights", map[string]float64{
		"revenue_proxy":   c.Weights.RevenueProxy,
		"online_weakness": c.Weights.OnlineWeakness,
		"acquisition_fit": c.Weights.AcquisitionFit,
		"growth_signals":  c.Weights.GrowthSignals,
	})
	checkTable("factors.revenue_proxy", map[string]float64{
		"employee_count": c.Factors.RevenueProxy.EmployeeCount,
		"fleet_size":     c.Factors.RevenueProxy.FleetSize,
		"permit_volume":  c.Factors.RevenueProxy.PermitVolume,
		"service_radius": c.Factors.RevenueProxy.ServiceRadius,
	})
	checkTable("factors.online_weakness", map[string]float64{
		"website_presence": c.Factors.OnlineWeakness.WebsitePresence,
		"social_presence":  c.Factors.OnlineWeakness.SocialPresence,
		"review_volume":    c.Factors.OnlineWeakness.ReviewVolume,
	})
	checkTable("factors.acquisition_fit", map[string]float64{
		"ownership_type":       c.Factors.AcquisitionFit.OwnershipType,
		"business_age":         c.Factors.AcquisitionFit.BusinessAge,
		"niche_specialization": c.Factors.AcquisitionFit.NicheSpecialization,
		"succession":           c.Factors.AcquisitionFit.Succession,
	})
	checkTable("factors.growth_signals", map[string]float64{
		"permit_trend":    c.Factors.GrowthSignals.PermitTrend,
		"review_trend":    c.Factors.GrowthSignals.ReviewTrend,
		"hiring_activity": c.Factors.GrowthSignals.HiringActivity,
		"fleet_growth":    c.Factors.GrowthSignals.FleetGrowth,
	})

	t := c.Thresholds
	for name, v := range map[string]float64{
		"low_priority":    t.LowPriority,
		"medium_priority": t.MediumPriority,
		"high_priority":   t.HighPriority,
	} {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Sprintf("thresholds.%s must be between 0 and 100", name))
		}
	}
	if !(t.LowPriority < t.MediumPriority && t.MediumPriority < t.HighPriority) {
		errs = append(errs, "thresholds must be ascending: low_priority < medium_priority < high_priority")
	}

	if len(errs) > 0 {
		// Map iteration order is random; keep the message stable.
		slices.Sort(errs)
		return eris.Errorf("scoring: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ConfigHash returns a short SHA-256 fingerprint of the config's weights and
// thresholds. The version string itself is excluded.
func ConfigHash(c Config) string {
	c.Version = ""
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// LoadConfig reads a YAML override file on top of DefaultConfig. Fields the
// file omits keep their default values. When the file does not name a
// version and its values differ from the defaults, the version becomes
// "custom-<hash>" so stored scores can be traced to the exact weights.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, eris.Wrapf(err, "scoring: read config %s", path)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML overrides on top of DefaultConfig and validates
// the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	cfg.Version = ""
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, eris.Wrap(err, "scoring: parse config")
	}

	if cfg.Version == "" {
		if ConfigHash(cfg) == ConfigHash(DefaultConfig()) {
			cfg.Version = DefaultConfigVersion
		} else {
			cfg.Version = "custom-" + ConfigHash(cfg)
		}
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
