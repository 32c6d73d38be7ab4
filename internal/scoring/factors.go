package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sells-group/hvac-targets/internal/model"
)

// Fixed scores for the two growth factors that have no data source. Nothing
// upstream ever populates hiring or fleet history; these are not implemented
// upstream and stay neutral until a source exists.
const (
	hiringActivityPlaceholder = 60.0
	fleetGrowthPlaceholder    = 60.0
)

// Niches that score as premium specializations. Matched as case-insensitive
// substrings of the business's niche tags.
var premiumNiches = []string{"refrigeration", "clean_rooms", "industrial", "restaurants"}

// permitWindow is the look-back for the permit volume factor.
const permitWindow = 365 * 24 * time.Hour

// factorResult is one evaluated factor before weighting.
type factorResult struct {
	value       Value
	score       float64
	explanation string
}

// describe renders a factor value for an explanation string.
func describe(v Value, unit string) string {
	switch v.Kind() {
	case KindNumeric:
		if unit == "" {
			return v.Display()
		}
		return v.Display() + " " + unit
	case KindText:
		s, _ := v.Str()
		return s
	default:
		return "Unknown"
	}
}

// --- Revenue proxy ---

func scoreEmployeeCount(b *model.Business) factorResult {
	est, ok := b.LatestEmployeeEstimate()
	if !ok {
		return factorResult{Unset(), 0, "Employee count unknown"}
	}
	v := Numeric(float64(est.Count))
	count := float64(est.Count)

	switch {
	case count < 5:
		return factorResult{v, math.Max(0, 12*count), describe(v, "employees") + ", below the 5-50 target range"}
	case count <= 50:
		return factorResult{v, 100 - 2*math.Abs(count-25), describe(v, "employees") + ", within the 5-50 target range (peak at 25)"}
	default:
		return factorResult{v, 50, describe(v, "employees") + ", above the 5-50 target range"}
	}
}

func scoreFleetSize(b *model.Business) factorResult {
	est, ok := b.LatestFleetEstimate()
	if !ok || est.Count <= 0 {
		v := Unset()
		if ok {
			v = Numeric(float64(est.Count))
		}
		return factorResult{v, 0, "No service vehicles recorded"}
	}
	v := Numeric(float64(est.Count))

	var score float64
	switch {
	case est.Count >= 10:
		score = 100
	case est.Count >= 5:
		score = 80
	case est.Count >= 2:
		score = 60
	default:
		score = 40
	}
	return factorResult{v, score, describe(v, "service vehicles")}
}

// recentPermits counts permits issued in the window ending at asOf.
func recentPermits(permits []model.Permit, asOf time.Time) int {
	from := asOf.Add(-permitWindow)
	n := 0
	for _, p := range permits {
		if p.IssuedAt.After(from) && !p.IssuedAt.After(asOf) {
			n++
		}
	}
	return n
}

func scorePermitVolume(b *model.Business, asOf time.Time) factorResult {
	n := recentPermits(b.Permits, asOf)
	v := Numeric(float64(n))

	var score float64
	switch {
	case n >= 100:
		score = 100
	case n >= 50:
		score = 85
	case n >= 20:
		score = 70
	case n >= 5:
		score = 50
	case n >= 1:
		score = 30
	default:
		return factorResult{v, 0, "No permits in the last 12 months"}
	}
	return factorResult{v, score, describe(v, "permits in the last 12 months")}
}

func scoreServiceRadius(b *model.Business) factorResult {
	if b.ServiceRadiusMiles == nil {
		return factorResult{Unset(), 0, "Service radius unknown"}
	}
	r := *b.ServiceRadiusMiles
	v := Numeric(r)

	var score float64
	switch {
	case r >= 50:
		score = 100
	case r >= 25:
		score = 80
	case r >= 10:
		score = 60
	case r > 0:
		score = 40
	default:
		score = 0
	}
	return factorResult{v, score, describe(v, "mile service radius")}
}

// --- Online weakness ---

func scoreWebsitePresence(b *model.Business) factorResult {
	if !b.HasWebsite() {
		return factorResult{Unset(), 100, "No website found"}
	}
	v := Text(strings.TrimSpace(*b.Website))
	return factorResult{v, 40, "Website present at " + describe(v, "")}
}

func scoreSocialPresence(b *model.Business) factorResult {
	if len(b.SocialLinks) == 0 {
		return factorResult{Numeric(0), 90, "No social media profiles"}
	}
	v := Numeric(float64(len(b.SocialLinks)))
	return factorResult{v, 50, describe(v, "social media profiles")}
}

func scoreReviewVolume(b *model.Business) factorResult {
	total := b.TotalReviewCount()
	v := Numeric(float64(total))

	var score float64
	switch {
	case total == 0:
		return factorResult{v, 100, "No online reviews"}
	case total < 10:
		score = 90
	case total < 25:
		score = 75
	case total < 50:
		score = 60
	case total < 100:
		score = 40
	default:
		score = 20
	}
	return factorResult{v, score, describe(v, "total reviews")}
}

// --- Acquisition fit ---

func scoreOwnershipType(b *model.Business) factorResult {
	ot := b.OwnershipType
	if ot == "" {
		ot = model.OwnershipUnknown
	}
	v := Text(string(ot))

	switch ot {
	case model.OwnershipFamilyOwned:
		return factorResult{v, 100, "Family owned"}
	case model.OwnershipFranchise:
		return factorResult{v, 40, "Franchise"}
	case model.OwnershipCorporate:
		return factorResult{v, 20, "Corporate owned"}
	case model.OwnershipPrivateEquity:
		return factorResult{v, 10, "Already private-equity backed"}
	default:
		return factorResult{v, 50, "Ownership unknown"}
	}
}

func scoreBusinessAge(b *model.Business, asOf time.Time) factorResult {
	if b.FoundedYear == nil {
		return factorResult{Unset(), 50, "Founding year unknown"}
	}
	age := asOf.Year() - *b.FoundedYear
	v := Numeric(float64(age))

	var score float64
	switch {
	case age >= 15:
		score = 100
	case age >= 10:
		score = 85
	case age >= 5:
		score = 60
	default:
		score = 30
	}
	return factorResult{v, score, fmt.Sprintf("%s in business (founded %d)", describe(v, "years"), *b.FoundedYear)}
}

func scoreNicheSpecialization(b *model.Business) factorResult {
	var tags []string
	for _, n := range b.Niches {
		if t := strings.TrimSpace(n); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		return factorResult{Unset(), 50, "No niche specialization recorded"}
	}
	v := Text(strings.Join(tags, ", "))

	for _, t := range tags {
		lower := strings.ToLower(t)
		for _, p := range premiumNiches {
			if strings.Contains(lower, p) {
				return factorResult{v, 100, "Premium niche: " + describe(v, "")}
			}
		}
	}
	return factorResult{v, 80, "Specialized in " + describe(v, "")}
}

func scoreSuccession(b *model.Business) factorResult {
	status := b.SuccessionStatus
	if status == "" {
		status = model.SuccessionUnknown
	}
	v := Text(string(status))

	var score float64
	switch status {
	case model.SuccessionOwnerRetiring:
		score = 100
	case model.SuccessionNoSuccessor:
		score = 90
	case model.SuccessionPlanned:
		score = 40
	case model.SuccessionRecentlyTransitioned:
		score = 20
	default:
		score = 50
	}
	explanation := "Succession status " + describe(v, "")

	// Owner age can only raise the status-derived score.
	if b.OwnerAge != nil {
		age := *b.OwnerAge
		switch {
		case age >= 60:
			score = math.Max(score, 85)
		case age >= 55:
			score = math.Max(score, 70)
		}
		explanation += fmt.Sprintf(", owner age %d", age)
	}
	return factorResult{v, score, explanation}
}

// --- Growth signals ---

func permitsInYear(permits []model.Permit, year int) int {
	n := 0
	for _, p := range permits {
		if p.IssuedAt.Year() == year {
			n++
		}
	}
	return n
}

func scorePermitTrend(b *model.Business, asOf time.Time) factorResult {
	current := permitsInYear(b.Permits, asOf.Year())
	prior := permitsInYear(b.Permits, asOf.Year()-1)
	if prior == 0 {
		return factorResult{Unset(), 60, "Insufficient permit history"}
	}

	growth := float64(current-prior) * 100 / float64(prior)
	v := Numeric(math.Round(growth*10) / 10)

	var score float64
	switch {
	case growth >= 20:
		score = 100
	case growth >= 10:
		score = 85
	case growth >= 0:
		score = 70
	case growth >= -10:
		score = 50
	default:
		score = 30
	}
	return factorResult{v, score, fmt.Sprintf("%s%% permit growth year over year (%d vs %d)", describe(v, ""), current, prior)}
}

// averageRating is the plain mean over every rated source. A rating of 0
// means the source has no rating and is skipped; review counts play no part.
func averageRating(reviews []model.Review) (float64, bool) {
	var sum float64
	var n int
	for _, r := range reviews {
		if r.Rating <= 0 {
			continue
		}
		sum += r.Rating
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func scoreReviewTrend(b *model.Business) factorResult {
	avg, ok := averageRating(b.Reviews)
	if !ok {
		return factorResult{Unset(), 60, "No rating data"}
	}
	v := Numeric(math.Round(avg*100) / 100)

	var score float64
	switch {
	case avg >= 4.5:
		score = 90
	case avg >= 4.0:
		score = 75
	case avg >= 3.5:
		score = 60
	default:
		score = 40
	}
	return factorResult{v, score, describe(v, "average rating")}
}

func scoreHiringActivity() factorResult {
	return factorResult{Unset(), hiringActivityPlaceholder, "Hiring data not available (neutral placeholder)"}
}

func scoreFleetGrowth() factorResult {
	return factorResult{Unset(), fleetGrowthPlaceholder, "Fleet history not available (neutral placeholder)"}
}
