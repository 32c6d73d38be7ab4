package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/sells-group/hvac-targets/internal/model"
)

// ErrNoCandidates is returned when text holds neither a JSON array nor any
// recognizable business block.
var ErrNoCandidates = eris.New("extract: no candidates found")

var (
	fencedRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n(.*?)```")
	numberRe = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)(?:\s*(?:-|–|to)\s*(\d[\d,]*(?:\.\d+)?))?`)
)

// wrapperKeys are object keys a model sometimes nests the array under.
var wrapperKeys = []string{"businesses", "companies", "contractors", "results"}

// Parse extracts candidates from research output. A fenced ```json block or
// a bare top-level JSON array is preferred; otherwise the text is read as
// "Label: value" blocks. An empty JSON array yields no candidates and no
// error.
func Parse(text string) ([]Candidate, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoCandidates
	}
	if arr, ok := findJSONArray(text); ok {
		return parseJSON(arr), nil
	}
	cands := parseText(text)
	if len(cands) == 0 {
		return nil, ErrNoCandidates
	}
	return cands, nil
}

// findJSONArray returns the first JSON array in text: inside a fenced block,
// as the whole text, under a wrapper key, or between the outermost brackets.
func findJSONArray(text string) (gjson.Result, bool) {
	var blocks []string
	for _, m := range fencedRe.FindAllStringSubmatch(text, -1) {
		blocks = append(blocks, m[1])
	}
	blocks = append(blocks, text)

	for _, b := range blocks {
		if r, ok := arrayIn(strings.TrimSpace(b)); ok {
			return r, true
		}
	}
	if i, j := strings.Index(text, "["), strings.LastIndex(text, "]"); i >= 0 && j > i {
		if r, ok := arrayIn(text[i : j+1]); ok {
			return r, true
		}
	}
	return gjson.Result{}, false
}

func arrayIn(s string) (gjson.Result, bool) {
	if !gjson.Valid(s) {
		return gjson.Result{}, false
	}
	r := gjson.Parse(s)
	if r.IsArray() {
		return r, true
	}
	if r.IsObject() {
		for _, k := range wrapperKeys {
			if v := r.Get(k); v.IsArray() {
				return v, true
			}
		}
	}
	return gjson.Result{}, false
}

func parseJSON(arr gjson.Result) []Candidate {
	cands := make([]Candidate, 0)
	arr.ForEach(func(_, v gjson.Result) bool {
		if v.IsObject() {
			cands = append(cands, candidateFromJSON(v))
		}
		return true
	})
	return cands
}

func candidateFromJSON(v gjson.Result) Candidate {
	c := Candidate{
		Name:               str(v, "name"),
		City:               str(v, "city"),
		County:             str(v, "county"),
		State:              str(v, "state"),
		Address:            str(v, "address"),
		Phone:              str(v, "phone"),
		Website:            str(v, "website"),
		EmployeeCount:      intField(v.Get("employee_count")),
		FleetSize:          intField(v.Get("fleet_size")),
		ServiceRadiusMiles: floatField(v.Get("service_radius_miles")),
		FoundedYear:        intField(v.Get("founded_year")),
		OwnershipType:      str(v, "ownership_type"),
		SuccessionStatus:   str(v, "succession_status"),
		OwnerName:          str(v, "owner_name"),
		OwnerAge:           intField(v.Get("owner_age")),
		Notes:              str(v, "notes"),
	}

	niches := v.Get("niches")
	if niches.IsArray() {
		for _, n := range niches.Array() {
			if s := clean(n.String()); s != "" {
				c.Niches = append(c.Niches, s)
			}
		}
	} else if niches.Type == gjson.String {
		c.Niches = splitList(niches.Str)
	}

	c.SocialLinks = socialFromJSON(v.Get("social_links"))

	v.Get("reviews").ForEach(func(_, r gjson.Result) bool {
		rv := model.Review{
			Source: model.ParseReviewSource(r.Get("source").String()),
			Rating: r.Get("rating").Float(),
			URL:    clean(r.Get("url").String()),
		}
		if n := intField(r.Get("review_count")); n != nil {
			rv.ReviewCount = *n
		}
		c.Reviews = append(c.Reviews, rv)
		return true
	})

	v.Get("permits").ForEach(func(_, p gjson.Result) bool {
		issued, ok := parseDate(p.Get("issued_at").String())
		if !ok {
			return true
		}
		c.Permits = append(c.Permits, model.Permit{
			Number:    clean(p.Get("number").String()),
			IssuedAt:  issued,
			Type:      model.ParsePermitType(p.Get("type").String()),
			Valuation: p.Get("valuation").Float(),
			City:      clean(p.Get("city").String()),
		})
		return true
	})

	v.Get("licenses").ForEach(func(_, l gjson.Result) bool {
		lic := model.License{
			Number: clean(l.Get("number").String()),
			Holder: clean(l.Get("holder").String()),
			Type:   clean(l.Get("type").String()),
			Status: clean(l.Get("status").String()),
		}
		if exp, ok := parseDate(l.Get("expires_at").String()); ok {
			lic.ExpiresAt = &exp
		}
		if lic.Number != "" {
			c.Licenses = append(c.Licenses, lic)
		}
		return true
	})

	if conf := v.Get("confidence"); conf.Type == gjson.Number {
		c.Confidence = normalizeConfidence(conf.Float())
	} else {
		c.Confidence = CoverageConfidence(&c)
	}
	return c
}

// socialFromJSON accepts {"facebook": url}, [url, ...] or
// [{"platform": p, "url": u}, ...].
func socialFromJSON(v gjson.Result) map[string]string {
	links := make(map[string]string)
	switch {
	case v.IsObject():
		v.ForEach(func(k, u gjson.Result) bool {
			p := strings.ToLower(k.String())
			if s := clean(u.String()); s != "" && isPlatform(p) {
				links[p] = s
			}
			return true
		})
	case v.IsArray():
		v.ForEach(func(_, item gjson.Result) bool {
			u := item.String()
			if item.IsObject() {
				u = item.Get("url").String()
			}
			u = clean(u)
			if p, ok := SocialPlatformFor(u); ok {
				links[string(p)] = u
			}
			return true
		})
	}
	if len(links) == 0 {
		return nil
	}
	return links
}

func isPlatform(p string) bool {
	switch model.SocialPlatform(p) {
	case model.SocialFacebook, model.SocialLinkedIn, model.SocialInstagram:
		return true
	}
	return false
}

func str(v gjson.Result, path string) string {
	return clean(v.Get(path).String())
}

// clean trims s and blanks out placeholder values models emit for unknowns.
func clean(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "null", "none", "n/a", "na", "unknown", "not found", "-":
		return ""
	}
	return s
}

func intField(r gjson.Result) *int {
	f := floatField(r)
	if f == nil {
		return nil
	}
	n := int(math.Round(*f))
	return &n
}

func floatField(r gjson.Result) *float64 {
	switch r.Type {
	case gjson.Number:
		f := r.Float()
		return &f
	case gjson.String:
		if f, ok := parseNumber(r.Str); ok {
			return &f
		}
	}
	return nil
}

// parseNumber reads the first number in s. A range such as "15-20" or
// "10 to 12" yields its midpoint.
func parseNumber(s string) (float64, bool) {
	m := numberRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	lo, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	if m[2] == "" {
		return lo, true
	}
	hi, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
	if err != nil || hi < lo {
		return lo, true
	}
	return (lo + hi) / 2, true
}

func parseInt(s string) *int {
	f, ok := parseNumber(s)
	if !ok {
		return nil
	}
	n := int(math.Round(f))
	return &n
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "01/02/2006", "1/2/2006", "Jan 2, 2006", "January 2, 2006"}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// normalizeConfidence maps a model-reported confidence to [0,1]; values on
// a 0-100 scale are divided down.
func normalizeConfidence(f float64) float64 {
	if f > 1 && f <= 100 {
		f /= 100
	}
	return math.Max(0, math.Min(1, f))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '/' }) {
		if p := clean(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
