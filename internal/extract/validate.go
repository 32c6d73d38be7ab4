package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// Anomaly flags attached to candidates and stored on the business.
const (
	FlagEmployeesHigh    = "employee_count_over_1000"
	FlagFoundedFuture    = "founded_year_in_future"
	FlagFoundedEarly     = "founded_year_before_1900"
	FlagRatingRange      = "rating_out_of_range"
	FlagOwnerAgeRange    = "owner_age_out_of_range"
	FlagNonTexas         = "non_texas_state"
	FlagWebsiteIsListing = "website_is_listing"
	FlagSchemaPrefix     = "schema: "
)

const candidateSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "city": {"type": "string"},
    "county": {"type": "string"},
    "state": {"type": "string"},
    "website": {"type": "string"},
    "employee_count": {"type": "integer", "minimum": 0},
    "fleet_size": {"type": "integer", "minimum": 0},
    "service_radius_miles": {"type": "number", "minimum": 0},
    "founded_year": {"type": "integer"},
    "owner_age": {"type": "integer"},
    "niches": {"type": "array", "items": {"type": "string"}},
    "reviews": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["source"],
        "properties": {
          "source": {"type": "string"},
          "rating": {"type": "number"},
          "review_count": {"type": "integer", "minimum": 0}
        }
      }
    },
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

var candidateSchema = mustSchema(candidateSchemaJSON)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("extract: compile candidate schema: %v", err))
	}
	return schema
}

// Validate checks c against the candidate schema and domain anomaly rules
// and returns the flags raised. An empty result means the record is clean.
func Validate(c Candidate) []string {
	return validateAt(c, time.Now())
}

func validateAt(c Candidate, now time.Time) []string {
	var flags []string

	result, err := candidateSchema.Validate(gojsonschema.NewGoLoader(c))
	if err != nil {
		zap.L().Warn("extract: schema validation failed to run", zap.String("name", c.Name), zap.Error(err))
	} else if !result.Valid() {
		for _, desc := range result.Errors() {
			flags = append(flags, FlagSchemaPrefix+desc.String())
		}
	}

	if c.EmployeeCount != nil && *c.EmployeeCount > 1000 {
		flags = append(flags, FlagEmployeesHigh)
	}
	if c.FoundedYear != nil {
		switch {
		case *c.FoundedYear > now.Year():
			flags = append(flags, FlagFoundedFuture)
		case *c.FoundedYear < 1900:
			flags = append(flags, FlagFoundedEarly)
		}
	}
	for _, r := range c.Reviews {
		if r.Rating < 0 || r.Rating > 5 {
			flags = append(flags, FlagRatingRange)
			break
		}
	}
	if c.OwnerAge != nil && (*c.OwnerAge < 18 || *c.OwnerAge > 100) {
		flags = append(flags, FlagOwnerAgeRange)
	}
	if normalizeState(c.State) != "TX" {
		flags = append(flags, FlagNonTexas)
	}
	if c.Website != "" && IsDirectoryListing(c.Website) {
		flags = append(flags, FlagWebsiteIsListing)
	}
	return flags
}

// HasName reports whether c has a usable name.
func HasName(c Candidate) bool {
	return strings.TrimSpace(c.Name) != ""
}
