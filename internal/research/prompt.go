package research

import (
	"strings"
	"text/template"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hvac-targets/internal/model"
)

const discoverySystem = `You are an M&A research analyst sourcing acquisition targets among
residential and light-commercial HVAC contractors in Texas. Prefer owner-operated
businesses with 10-75 employees. Only report facts you found in public sources:
state license records (TDLR), municipal permit data, review sites, company websites,
social profiles and news. Leave a field null when you could not verify it.`

const discoveryTemplate = `Find up to {{.Limit}} HVAC contractors operating in {{.Region}}
{{- if .Counties}} (counties: {{join .Counties ", "}}){{end}}.
{{- if .Niches}}
Prioritize companies specializing in: {{join .Niches ", "}}.
{{- end}}
{{- if .Notes}}
Additional guidance: {{.Notes}}
{{- end}}

For each company, research ownership, approximate headcount, service vehicles,
service area, founding year, online presence and any signs that the owner is
preparing to retire or sell.

Return the results as a single fenced JSON array:

` + "```json" + `
[
  {
    "name": "string",
    "city": "string",
    "county": "string",
    "state": "TX",
    "address": "string|null",
    "phone": "string|null",
    "website": "string|null",
    "employee_count": 0,
    "fleet_size": 0,
    "service_radius_miles": 0,
    "founded_year": 0,
    "ownership_type": "FAMILY_OWNED|FRANCHISE|PRIVATE_EQUITY|CORPORATE|UNKNOWN",
    "succession_status": "OWNER_RETIRING|SUCCESSION_PLANNED|NO_SUCCESSOR|RECENTLY_TRANSITIONED|UNKNOWN",
    "owner_name": "string|null",
    "owner_age": 0,
    "niches": ["string"],
    "social_links": {"facebook": "url", "linkedin": "url", "instagram": "url"},
    "reviews": [{"source": "GOOGLE|YELP|BBB|FACEBOOK|ANGI|OTHER", "rating": 0.0, "review_count": 0}],
    "permits": [{"number": "string", "issued_at": "YYYY-MM-DD", "type": "residential|commercial|industrial|other"}],
    "licenses": [{"number": "TACLA00000C", "status": "string"}],
    "notes": "string",
    "confidence": 0.0
  }
]
` + "```" + `

confidence is your 0-1 estimate that the record is accurate. Do not include
companies outside Texas.`

var discoveryTmpl = template.Must(template.New("discovery").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(discoveryTemplate))

// DefaultLimit caps the number of companies requested per job.
const DefaultLimit = 25

// DiscoveryPrompt renders the discovery prompt for a job.
func DiscoveryPrompt(jobID string, q model.ResearchQuery) (Prompt, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if strings.TrimSpace(q.Region) == "" {
		return Prompt{}, eris.New("research: query region is required")
	}

	var sb strings.Builder
	if err := discoveryTmpl.Execute(&sb, q); err != nil {
		return Prompt{}, eris.Wrap(err, "research: render discovery prompt")
	}
	return Prompt{JobID: jobID, System: discoverySystem, User: sb.String()}, nil
}
