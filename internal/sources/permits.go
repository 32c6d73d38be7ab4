package sources

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/pkg/perplexity"
)

const permitPrompt = `List the mechanical (HVAC) building permits pulled by "{{.Name}}" in
{{.City}}{{if .County}} ({{.County}} County){{end}}, Texas issued between {{.Since}} and {{.Until}}.
Use municipal permit portals and open data. One permit per line as:
permit <number> issued <YYYY-MM-DD> type <residential|commercial|industrial> valuation $<amount>`

var (
	permitRe          = regexp.MustCompile(`(?i)permit\s*(?:no\.?|number|#)?\s*:?\s*([A-Z0-9][A-Z0-9-]*)\s*,?\s+issued\s*:?\s*` + datePattern + `(?:\s*,?\s*type\s*:?\s*([a-z]+))?`)
	permitValuationRe = regexp.MustCompile(`(?i)valuation\s*:?\s*\$?\s*([\d,]+(?:\.\d+)?)`)
)

// Permits looks up municipal permits.
type Permits struct {
	asker *asker
	now   func() time.Time
}

// NewPermits creates a permit lookup over client.
func NewPermits(client perplexity.Client) *Permits {
	return &Permits{asker: newAsker(client, "permit", permitPrompt), now: time.Now}
}

// Lookup returns permits issued to b since January 1 of last year, which
// covers both years the permit trend compares.
func (p *Permits) Lookup(ctx context.Context, b *model.Business) ([]model.Permit, error) {
	now := p.now().UTC()
	s := subjectOf(b)
	s.Since = time.Date(now.Year()-1, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
	s.Until = now.Format("2006-01-02")

	text, err := p.asker.ask(ctx, s)
	if err != nil {
		return nil, err
	}
	permits := ParsePermits(text)
	for i := range permits {
		permits[i].City = b.City
	}
	return permits, nil
}

// ParsePermits reads "permit <number> issued <date> type <type>" lines.
// Lines without a parseable issue date are skipped.
func ParsePermits(text string) []model.Permit {
	var out []model.Permit
	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		m := permitRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		issued, ok := parseDate(m[2])
		if !ok {
			continue
		}
		number := strings.ToUpper(m[1])
		if seen[number] {
			continue
		}
		seen[number] = true

		p := model.Permit{Number: number, IssuedAt: issued, Type: model.ParsePermitType(m[3])}
		if v := permitValuationRe.FindStringSubmatch(line); v != nil {
			p.Valuation, _ = strconv.ParseFloat(strings.ReplaceAll(v[1], ",", ""), 64)
		}
		out = append(out, p)
	}
	return out
}
