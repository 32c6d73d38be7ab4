package model

import (
	"strings"
	"time"
)

// OwnershipType classifies who owns a business.
type OwnershipType string

const (
	OwnershipFamilyOwned   OwnershipType = "FAMILY_OWNED"
	OwnershipFranchise     OwnershipType = "FRANCHISE"
	OwnershipPrivateEquity OwnershipType = "PRIVATE_EQUITY"
	OwnershipCorporate     OwnershipType = "CORPORATE"
	OwnershipUnknown       OwnershipType = "UNKNOWN"
)

// ParseOwnershipType maps free text to an OwnershipType. Unrecognized values
// map to OwnershipUnknown.
func ParseOwnershipType(s string) OwnershipType {
	switch normalizeEnum(s) {
	case "FAMILY_OWNED", "FAMILY", "OWNER_OPERATED", "INDEPENDENT":
		return OwnershipFamilyOwned
	case "FRANCHISE":
		return OwnershipFranchise
	case "PRIVATE_EQUITY", "PE", "PE_BACKED":
		return OwnershipPrivateEquity
	case "CORPORATE", "PUBLIC":
		return OwnershipCorporate
	default:
		return OwnershipUnknown
	}
}

// SuccessionStatus captures what is known about ownership transition.
type SuccessionStatus string

const (
	SuccessionOwnerRetiring        SuccessionStatus = "OWNER_RETIRING"
	SuccessionPlanned              SuccessionStatus = "SUCCESSION_PLANNED"
	SuccessionNoSuccessor          SuccessionStatus = "NO_SUCCESSOR"
	SuccessionRecentlyTransitioned SuccessionStatus = "RECENTLY_TRANSITIONED"
	SuccessionUnknown              SuccessionStatus = "UNKNOWN"
)

// ParseSuccessionStatus maps free text to a SuccessionStatus.
func ParseSuccessionStatus(s string) SuccessionStatus {
	switch normalizeEnum(s) {
	case "OWNER_RETIRING", "RETIRING":
		return SuccessionOwnerRetiring
	case "SUCCESSION_PLANNED", "PLANNED":
		return SuccessionPlanned
	case "NO_SUCCESSOR":
		return SuccessionNoSuccessor
	case "RECENTLY_TRANSITIONED", "TRANSITIONED":
		return SuccessionRecentlyTransitioned
	default:
		return SuccessionUnknown
	}
}

// ReviewSource identifies where a rating came from.
type ReviewSource string

const (
	ReviewGoogle   ReviewSource = "GOOGLE"
	ReviewYelp     ReviewSource = "YELP"
	ReviewBBB      ReviewSource = "BBB"
	ReviewFacebook ReviewSource = "FACEBOOK"
	ReviewAngi     ReviewSource = "ANGI"
	ReviewOther    ReviewSource = "OTHER"
)

// ParseReviewSource maps free text to a ReviewSource.
func ParseReviewSource(s string) ReviewSource {
	switch normalizeEnum(s) {
	case "GOOGLE", "GOOGLE_MAPS", "GOOGLE_BUSINESS":
		return ReviewGoogle
	case "YELP":
		return ReviewYelp
	case "BBB", "BETTER_BUSINESS_BUREAU":
		return ReviewBBB
	case "FACEBOOK":
		return ReviewFacebook
	case "ANGI", "ANGIES_LIST", "ANGI'S_LIST":
		return ReviewAngi
	default:
		return ReviewOther
	}
}

// PermitType is the coarse classification of a building permit.
type PermitType string

const (
	PermitResidential PermitType = "residential"
	PermitCommercial  PermitType = "commercial"
	PermitIndustrial  PermitType = "industrial"
	PermitOther       PermitType = "other"
)

// ParsePermitType maps free text to a PermitType.
func ParsePermitType(s string) PermitType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "residential", "res":
		return PermitResidential
	case "commercial", "com":
		return PermitCommercial
	case "industrial", "ind":
		return PermitIndustrial
	default:
		return PermitOther
	}
}

// SocialPlatform is one of the tracked social networks.
type SocialPlatform string

const (
	SocialFacebook  SocialPlatform = "facebook"
	SocialLinkedIn  SocialPlatform = "linkedin"
	SocialInstagram SocialPlatform = "instagram"
)

// SocialLink is a profile URL on a tracked platform.
type SocialLink struct {
	Platform SocialPlatform `json:"platform"`
	URL      string         `json:"url"`
}

// EmployeeEstimate is one recorded headcount estimate.
type EmployeeEstimate struct {
	ID         int64     `json:"id"`
	Count      int       `json:"count"`
	Source     string    `json:"source,omitempty"`
	Confidence float64   `json:"confidence"`
	RecordedAt time.Time `json:"recorded_at"`
}

// FleetEstimate is one recorded service-vehicle count estimate.
type FleetEstimate struct {
	ID         int64     `json:"id"`
	Count      int       `json:"count"`
	Source     string    `json:"source,omitempty"`
	Confidence float64   `json:"confidence"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Permit is a mechanical permit pulled by the business.
type Permit struct {
	Number    string     `json:"number,omitempty"`
	IssuedAt  time.Time  `json:"issued_at"`
	Type      PermitType `json:"type"`
	Valuation float64    `json:"valuation,omitempty"`
	City      string     `json:"city,omitempty"`
}

// Review is an aggregate rating from one review source.
type Review struct {
	Source      ReviewSource `json:"source"`
	Rating      float64      `json:"rating"`
	ReviewCount int          `json:"review_count"`
	URL         string       `json:"url,omitempty"`
}

// License is a state contractor license held by the business or its owner.
type License struct {
	Number    string     `json:"number"`
	Holder    string     `json:"holder,omitempty"`
	Type      string     `json:"type,omitempty"`
	Status    string     `json:"status,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Business is a prospective acquisition target.
type Business struct {
	ID                 int64              `json:"id"`
	Name               string             `json:"name"`
	City               string             `json:"city"`
	County             string             `json:"county"`
	State              string             `json:"state"`
	Address            string             `json:"address,omitempty"`
	Phone              string             `json:"phone,omitempty"`
	Website            *string            `json:"website,omitempty"`
	SocialLinks        []SocialLink       `json:"social_links,omitempty"`
	EmployeeEstimates  []EmployeeEstimate `json:"employee_estimates,omitempty"`
	FleetEstimates     []FleetEstimate    `json:"fleet_estimates,omitempty"`
	Permits            []Permit           `json:"permits,omitempty"`
	Licenses           []License          `json:"licenses,omitempty"`
	ServiceRadiusMiles *float64           `json:"service_radius_miles,omitempty"`
	Reviews            []Review           `json:"reviews,omitempty"`
	OwnershipType      OwnershipType      `json:"ownership_type"`
	FoundedYear        *int               `json:"founded_year,omitempty"`
	Niches             []string           `json:"niches,omitempty"`
	SuccessionStatus   SuccessionStatus   `json:"succession_status"`
	OwnerName          string             `json:"owner_name,omitempty"`
	OwnerAge           *int               `json:"owner_age,omitempty"`
	SalesforceID       string             `json:"salesforce_id,omitempty"`
	NotionPageID       string             `json:"notion_page_id,omitempty"`
	Notes              string             `json:"notes,omitempty"`
	Confidence         float64            `json:"confidence"`
	Flags              []string           `json:"flags,omitempty"`
	SourceJobID        string             `json:"source_job_id,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// LatestEmployeeEstimate returns the most recently recorded employee estimate.
// Estimates recorded at the same instant are ordered by ID, highest wins.
func (b *Business) LatestEmployeeEstimate() (EmployeeEstimate, bool) {
	var latest EmployeeEstimate
	found := false
	for _, e := range b.EmployeeEstimates {
		if !found || newer(e.RecordedAt, e.ID, latest.RecordedAt, latest.ID) {
			latest = e
			found = true
		}
	}
	return latest, found
}

// LatestFleetEstimate returns the most recently recorded fleet estimate, with
// the same tie-break as LatestEmployeeEstimate.
func (b *Business) LatestFleetEstimate() (FleetEstimate, bool) {
	var latest FleetEstimate
	found := false
	for _, e := range b.FleetEstimates {
		if !found || newer(e.RecordedAt, e.ID, latest.RecordedAt, latest.ID) {
			latest = e
			found = true
		}
	}
	return latest, found
}

func newer(at time.Time, id int64, curAt time.Time, curID int64) bool {
	if at.Equal(curAt) {
		return id > curID
	}
	return at.After(curAt)
}

// HasWebsite reports whether a non-blank website is recorded.
func (b *Business) HasWebsite() bool {
	return b.Website != nil && strings.TrimSpace(*b.Website) != ""
}

// TotalReviewCount sums review counts across all sources.
func (b *Business) TotalReviewCount() int {
	total := 0
	for _, r := range b.Reviews {
		if r.ReviewCount > 0 {
			total += r.ReviewCount
		}
	}
	return total
}

// SocialURL returns the first recorded link for the given platform.
func (b *Business) SocialURL(p SocialPlatform) string {
	for _, l := range b.SocialLinks {
		if l.Platform == p {
			return l.URL
		}
	}
	return ""
}

// Location renders "City, County County, State" for display.
func (b *Business) Location() string {
	parts := make([]string, 0, 3)
	if b.City != "" {
		parts = append(parts, b.City)
	}
	if b.County != "" {
		parts = append(parts, b.County+" County")
	}
	if b.State != "" {
		parts = append(parts, b.State)
	}
	return strings.Join(parts, ", ")
}

func normalizeEnum(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}

// FillFrom copies values from prev into fields b leaves empty. It is used
// when a rediscovered business is merged onto its stored record; history
// slices (estimates) are not merged here.
func (b *Business) FillFrom(prev *Business) {
	if prev == nil {
		return
	}
	b.ID = prev.ID
	b.CreatedAt = prev.CreatedAt
	fillString(&b.Address, prev.Address)
	fillString(&b.Phone, prev.Phone)
	fillString(&b.State, prev.State)
	fillString(&b.OwnerName, prev.OwnerName)
	fillString(&b.SalesforceID, prev.SalesforceID)
	fillString(&b.NotionPageID, prev.NotionPageID)
	fillString(&b.Notes, prev.Notes)
	if !b.HasWebsite() {
		b.Website = prev.Website
	}
	if len(b.SocialLinks) == 0 {
		b.SocialLinks = prev.SocialLinks
	}
	if len(b.Permits) == 0 {
		b.Permits = prev.Permits
	}
	if len(b.Licenses) == 0 {
		b.Licenses = prev.Licenses
	}
	if len(b.Reviews) == 0 {
		b.Reviews = prev.Reviews
	}
	if len(b.Niches) == 0 {
		b.Niches = prev.Niches
	}
	if b.ServiceRadiusMiles == nil {
		b.ServiceRadiusMiles = prev.ServiceRadiusMiles
	}
	if b.FoundedYear == nil {
		b.FoundedYear = prev.FoundedYear
	}
	if b.OwnerAge == nil {
		b.OwnerAge = prev.OwnerAge
	}
	if b.OwnershipType == "" || b.OwnershipType == OwnershipUnknown {
		b.OwnershipType = prev.OwnershipType
	}
	if b.SuccessionStatus == "" || b.SuccessionStatus == SuccessionUnknown {
		b.SuccessionStatus = prev.SuccessionStatus
	}
	if b.SourceJobID == "" {
		b.SourceJobID = prev.SourceJobID
	}
}

func fillString(dst *string, prev string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = prev
	}
}
