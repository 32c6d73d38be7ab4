package sources

import (
	"context"
	"regexp"
	"strings"

	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/pkg/perplexity"
)

const licensePrompt = `Search the Texas Department of Licensing and Regulation (TDLR) Air
Conditioning and Refrigeration Contractor license records for "{{.Name}}" in
{{.City}}, Texas{{if .OwnerName}}, including licenses held by {{.OwnerName}}{{end}}.
List each license on its own line as:
<license number> | <holder> | <status> | expires <YYYY-MM-DD>`

var (
	licenseNumberRe = regexp.MustCompile(`(?i)\b(TACL[AB]\d+[A-Z]?)\b`)
	licenseStatusRe = regexp.MustCompile(`(?i)\b(active|expired|inactive|revoked|suspended)\b`)
	licenseExpiryRe = regexp.MustCompile(`(?i)expir\w*\s*:?\s*` + datePattern)
)

// Licenses looks up TDLR ACR contractor licenses.
type Licenses struct {
	asker *asker
}

// NewLicenses creates a license lookup over client.
func NewLicenses(client perplexity.Client) *Licenses {
	return &Licenses{asker: newAsker(client, "license", licensePrompt)}
}

// Lookup returns the licenses found for b.
func (l *Licenses) Lookup(ctx context.Context, b *model.Business) ([]model.License, error) {
	text, err := l.asker.ask(ctx, subjectOf(b))
	if err != nil {
		return nil, err
	}
	return ParseLicenses(text), nil
}

// ParseLicenses reads one license per line. Lines without a TACLA/TACLB
// number are ignored; duplicates keep the first occurrence.
func ParseLicenses(text string) []model.License {
	var out []model.License
	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		m := licenseNumberRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		number := strings.ToUpper(m[1])
		if seen[number] {
			continue
		}
		seen[number] = true

		lic := model.License{Number: number, Type: licenseClass(number)}
		if s := licenseStatusRe.FindStringSubmatch(line); s != nil {
			lic.Status = strings.ToLower(s[1])
		}
		if e := licenseExpiryRe.FindStringSubmatch(line); e != nil {
			if t, ok := parseDate(e[1]); ok {
				lic.ExpiresAt = &t
			}
		}
		if parts := strings.Split(line, "|"); len(parts) > 1 {
			lic.Holder = strings.TrimSpace(parts[1])
		}
		out = append(out, lic)
	}
	return out
}

// licenseClass maps the TACLA/TACLB prefix to the license class.
func licenseClass(number string) string {
	switch {
	case strings.HasPrefix(number, "TACLA"):
		return "Class A"
	case strings.HasPrefix(number, "TACLB"):
		return "Class B"
	default:
		return ""
	}
}
