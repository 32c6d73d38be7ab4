// Package extract turns free-form research output into candidate business
// records, validates them and converts them to model.Business values.
package extract

import (
	"math"
	"strings"
	"time"

	"github.com/sells-group/hvac-targets/internal/model"
)

// SourceResearch labels estimates that came from a discovery task.
const SourceResearch = "research"

// Candidate is one business as reported by the research backend, before
// dedupe and storage.
type Candidate struct {
	Name               string            `json:"name"`
	City               string            `json:"city,omitempty"`
	County             string            `json:"county,omitempty"`
	State              string            `json:"state,omitempty"`
	Address            string            `json:"address,omitempty"`
	Phone              string            `json:"phone,omitempty"`
	Website            string            `json:"website,omitempty"`
	EmployeeCount      *int              `json:"employee_count,omitempty"`
	FleetSize          *int              `json:"fleet_size,omitempty"`
	ServiceRadiusMiles *float64          `json:"service_radius_miles,omitempty"`
	FoundedYear        *int              `json:"founded_year,omitempty"`
	OwnershipType      string            `json:"ownership_type,omitempty"`
	SuccessionStatus   string            `json:"succession_status,omitempty"`
	OwnerName          string            `json:"owner_name,omitempty"`
	OwnerAge           *int              `json:"owner_age,omitempty"`
	Niches             []string          `json:"niches,omitempty"`
	SocialLinks        map[string]string `json:"social_links,omitempty"`
	Reviews            []model.Review    `json:"reviews,omitempty"`
	Permits            []model.Permit    `json:"permits,omitempty"`
	Licenses           []model.License   `json:"licenses,omitempty"`
	Notes              string            `json:"notes,omitempty"`
	Confidence         float64           `json:"confidence"`

	// Flags holds validation anomalies; set by the caller from Validate.
	Flags []string `json:"-"`
}

// NaturalKey returns the dedupe key the store uses for this candidate.
func (c *Candidate) NaturalKey() string {
	return model.NaturalKey(c.Name, c.City, normalizeCounty(c.County))
}

// coverageFields are the attributes whose presence drives computed
// confidence.
var coverageFields = []func(c *Candidate) bool{
	func(c *Candidate) bool { return c.Name != "" },
	func(c *Candidate) bool { return c.City != "" },
	func(c *Candidate) bool { return c.County != "" },
	func(c *Candidate) bool { return c.Website != "" || c.Phone != "" },
	func(c *Candidate) bool { return c.EmployeeCount != nil },
	func(c *Candidate) bool { return c.FleetSize != nil },
	func(c *Candidate) bool { return c.FoundedYear != nil },
	func(c *Candidate) bool {
		return model.ParseOwnershipType(c.OwnershipType) != model.OwnershipUnknown
	},
	func(c *Candidate) bool { return c.OwnerName != "" },
	func(c *Candidate) bool { return len(c.Reviews) > 0 },
}

// maxCoverageConfidence caps the confidence of records the model did not
// rate itself.
const maxCoverageConfidence = 0.8

// CoverageConfidence estimates confidence from how many key attributes are
// filled in, in [0, 0.8].
func CoverageConfidence(c *Candidate) float64 {
	filled := 0
	for _, has := range coverageFields {
		if has(c) {
			filled++
		}
	}
	v := maxCoverageConfidence * float64(filled) / float64(len(coverageFields))
	return math.Round(v*100) / 100
}

// ToBusiness converts c into a new Business record. asOf timestamps the
// initial employee and fleet estimates.
func ToBusiness(c Candidate, jobID string, asOf time.Time) model.Business {
	b := model.Business{
		Name:               strings.TrimSpace(c.Name),
		City:               strings.TrimSpace(c.City),
		County:             normalizeCounty(c.County),
		State:              normalizeState(c.State),
		Address:            strings.TrimSpace(c.Address),
		Phone:              strings.TrimSpace(c.Phone),
		ServiceRadiusMiles: c.ServiceRadiusMiles,
		FoundedYear:        c.FoundedYear,
		OwnershipType:      model.ParseOwnershipType(c.OwnershipType),
		SuccessionStatus:   model.ParseSuccessionStatus(c.SuccessionStatus),
		OwnerName:          strings.TrimSpace(c.OwnerName),
		OwnerAge:           c.OwnerAge,
		Niches:             c.Niches,
		Reviews:            c.Reviews,
		Permits:            c.Permits,
		Licenses:           c.Licenses,
		Notes:              strings.TrimSpace(c.Notes),
		Confidence:         c.Confidence,
		Flags:              c.Flags,
		SourceJobID:        jobID,
	}

	for _, p := range []model.SocialPlatform{model.SocialFacebook, model.SocialLinkedIn, model.SocialInstagram} {
		if u := strings.TrimSpace(c.SocialLinks[string(p)]); u != "" {
			b.SocialLinks = append(b.SocialLinks, model.SocialLink{Platform: p, URL: u})
		}
	}

	if c.Website != "" {
		switch p, ok := SocialPlatformFor(c.Website); {
		case ok:
			if b.SocialURL(p) == "" {
				b.SocialLinks = append(b.SocialLinks, model.SocialLink{Platform: p, URL: c.Website})
			}
		case IsDirectoryListing(c.Website):
			// listing pages are not the company's own site
		default:
			if site, err := NormalizeWebsite(c.Website); err == nil {
				b.Website = &site
			}
		}
	}

	if c.EmployeeCount != nil {
		b.EmployeeEstimates = []model.EmployeeEstimate{{
			Count: *c.EmployeeCount, Source: SourceResearch, Confidence: c.Confidence, RecordedAt: asOf,
		}}
	}
	if c.FleetSize != nil {
		b.FleetEstimates = []model.FleetEstimate{{
			Count: *c.FleetSize, Source: SourceResearch, Confidence: c.Confidence, RecordedAt: asOf,
		}}
	}
	return b
}

func normalizeCounty(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(strings.ToLower(s), " county"); i > 0 && i == len(s)-len(" county") {
		s = s[:i]
	}
	return s
}

func normalizeState(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "", "TX", "TEXAS", "TEX":
		return "TX"
	default:
		return s
	}
}
