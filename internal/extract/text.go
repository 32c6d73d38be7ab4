package extract

import (
	"regexp"
	"strings"

	"github.com/sells-group/hvac-targets/internal/model"
)

var (
	headingRe = regexp.MustCompile(`^\s*(?:#{1,4}\s*)?(?:\d+[.)]|#{1,4})\s+(.+)$`)
	fieldRe   = regexp.MustCompile(`^\s*(?:[-*•]\s*)?\**([A-Za-z][A-Za-z /'()]{0,30}?)\**\s*:\s*\**\s*(.*)$`)
	reviewRe  = regexp.MustCompile(`(?i)\b(google|yelp|bbb|better business bureau|facebook|angi(?:'?s list)?|angie'?s list)\b[^0-9\n;,]{0,20}?(\d(?:\.\d+)?)\b\s*(?:/\s*5|stars?)?[^0-9\n;]{0,12}?(\d[\d,]*)\s*(?:reviews?|ratings?)`)
	boldRe    = regexp.MustCompile(`\*\*|__`)
)

// parseText reads "Label: value" lines grouped into blocks. A numbered or
// markdown heading starts a block and names it; a blank line after at least
// one field, or a second name line, ends one.
func parseText(text string) []Candidate {
	var (
		cands         []Candidate
		cur           *Candidate
		fields        int
		hasConfidence bool
	)
	flush := func() {
		if cur != nil && cur.Name != "" {
			if !hasConfidence {
				cur.Confidence = CoverageConfidence(cur)
			}
			cands = append(cands, *cur)
		}
		cur = nil
		fields = 0
		hasConfidence = false
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if cur != nil && cur.Name != "" && fields > 0 {
				flush()
			}
			continue
		}
		if m := fieldRe.FindStringSubmatch(line); m != nil {
			label := strings.ToLower(strings.TrimSpace(m[1]))
			if isNameLabel(label) && cur != nil && cur.Name != "" {
				flush()
			}
			if cur == nil {
				cur = &Candidate{}
			}
			fields++
			if applyField(cur, label, strings.TrimSpace(boldRe.ReplaceAllString(m[2], ""))) {
				hasConfidence = true
			}
			continue
		}
		if m := headingRe.FindStringSubmatch(line); m != nil {
			flush()
			cur = &Candidate{Name: headingName(m[1])}
		}
	}
	flush()
	return cands
}

func isNameLabel(label string) bool {
	switch label {
	case "name", "company", "business", "company name", "business name":
		return true
	}
	return false
}

// headingName strips markdown and trailing descriptions from a heading.
func headingName(s string) string {
	s = boldRe.ReplaceAllString(s, "")
	for _, sep := range []string{" - ", " – ", " — ", " ("} {
		if i := strings.Index(s, sep); i > 0 {
			s = s[:i]
		}
	}
	return clean(s)
}

// applyField sets the attribute named by label. It reports whether the
// label carried an explicit confidence.
func applyField(c *Candidate, label, value string) bool {
	value = clean(value)
	if value == "" {
		return false
	}

	switch {
	case isNameLabel(label):
		c.Name = value
	case label == "city":
		c.City = value
	case label == "county":
		c.County = value
	case label == "state":
		c.State = value
	case label == "address":
		c.Address = value
	case label == "phone" || label == "telephone":
		c.Phone = value
	case label == "website" || label == "url" || label == "web":
		c.Website = value
	case strings.Contains(label, "employee") || label == "headcount" || label == "staff":
		c.EmployeeCount = parseInt(value)
	case strings.Contains(label, "fleet") || strings.Contains(label, "vehicle") || strings.Contains(label, "trucks"):
		c.FleetSize = parseInt(value)
	case strings.Contains(label, "radius") || label == "service area":
		if f, ok := parseNumber(value); ok {
			c.ServiceRadiusMiles = &f
		}
	case strings.Contains(label, "founded") || strings.Contains(label, "established"):
		c.FoundedYear = parseInt(value)
	case strings.Contains(label, "ownership"):
		c.OwnershipType = value
	case strings.Contains(label, "succession"):
		c.SuccessionStatus = value
	case label == "owner age":
		c.OwnerAge = parseInt(value)
	case label == "owner" || label == "owner name":
		c.OwnerName = value
	case strings.HasPrefix(label, "niche") || strings.HasPrefix(label, "specialt"):
		c.Niches = splitList(value)
	case isPlatform(label) && !strings.Contains(value, " "):
		if c.SocialLinks == nil {
			c.SocialLinks = make(map[string]string)
		}
		c.SocialLinks[label] = value
	case strings.Contains(label, "review") || strings.Contains(label, "rating"):
		c.Reviews = append(c.Reviews, ParseReviews(label+": "+value)...)
	case label == "notes":
		c.Notes = value
	case label == "confidence":
		if f, ok := parseNumber(value); ok {
			c.Confidence = normalizeConfidence(f)
			return true
		}
	default:
		if rv, ok := parseReviewLine(label + ": " + value); ok {
			c.Reviews = append(c.Reviews, rv)
		}
	}
	return false
}

// ParseReviews finds every "<source>: <rating> (<count> reviews)" mention
// in text, e.g. "Google: 4.6 (213 reviews)". The first mention per source
// wins.
func ParseReviews(text string) []model.Review {
	var out []model.Review
	seen := make(map[model.ReviewSource]bool)
	for _, m := range reviewRe.FindAllStringSubmatch(text, -1) {
		rv, ok := reviewFromMatch(m)
		if !ok || seen[rv.Source] {
			continue
		}
		seen[rv.Source] = true
		out = append(out, rv)
	}
	return out
}

func parseReviewLine(s string) (model.Review, bool) {
	m := reviewRe.FindStringSubmatch(s)
	if m == nil {
		return model.Review{}, false
	}
	return reviewFromMatch(m)
}

func reviewFromMatch(m []string) (model.Review, bool) {
	rating, ok := parseNumber(m[2])
	if !ok {
		return model.Review{}, false
	}
	count := parseInt(m[3])
	if count == nil {
		return model.Review{}, false
	}
	source := strings.ToLower(m[1])
	if strings.HasPrefix(source, "ang") {
		source = "angi"
	}
	return model.Review{
		Source:      model.ParseReviewSource(source),
		Rating:      rating,
		ReviewCount: *count,
	}, true
}
