package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/scoring"
)

// ErrNotFound is wrapped by lookups of a missing business or job.
var ErrNotFound = eris.New("store: not found")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return eris.Is(err, ErrNotFound)
}

// Sort keys accepted by BusinessFilter.Sort.
const (
	SortScore     = "score"
	SortName      = "name"
	SortCity      = "city"
	SortUpdatedAt = "updated_at"
	SortEmployees = "employees"
)

// BusinessFilter specifies criteria for listing businesses.
type BusinessFilter struct {
	Search         string                 `json:"search,omitempty"`
	City           string                 `json:"city,omitempty"`
	County         string                 `json:"county,omitempty"`
	Recommendation scoring.Recommendation `json:"recommendation,omitempty"`
	MinScore       *int                   `json:"min_score,omitempty"`
	Ownership      model.OwnershipType    `json:"ownership,omitempty"`
	Succession     model.SuccessionStatus `json:"succession,omitempty"`
	Sort           string                 `json:"sort,omitempty"`
	Desc           bool                   `json:"desc,omitempty"`
	Limit          int                    `json:"limit,omitempty"`
	Offset         int                    `json:"offset,omitempty"`
}

// Record is a business together with its latest score, if one exists.
type Record struct {
	Business model.Business `json:"business"`
	Score    *scoring.Score `json:"score,omitempty"`
}

// Store defines the persistence interface for businesses, scores and jobs.
type Store interface {
	// Businesses
	GetBusiness(ctx context.Context, id int64) (*model.Business, error)
	FindByNaturalKey(ctx context.Context, name, city, county string) (*model.Business, error)
	CreateBusiness(ctx context.Context, b *model.Business) error
	UpdateBusiness(ctx context.Context, b *model.Business) error
	UpsertBusiness(ctx context.Context, b *model.Business) (created bool, err error)
	ListBusinesses(ctx context.Context, filter BusinessFilter) ([]Record, error)
	CountBusinesses(ctx context.Context, filter BusinessFilter) (int, error)
	DeleteBusiness(ctx context.Context, id int64) error

	// Sub-records
	AddEmployeeEstimate(ctx context.Context, businessID int64, e *model.EmployeeEstimate) error
	AddFleetEstimate(ctx context.Context, businessID int64, e *model.FleetEstimate) error
	ReplacePermits(ctx context.Context, businessID int64, permits []model.Permit) error
	ReplaceReviews(ctx context.Context, businessID int64, reviews []model.Review) error
	ReplaceLicenses(ctx context.Context, businessID int64, licenses []model.License) error

	// Scores
	SaveScore(ctx context.Context, s scoring.Score) error
	GetScore(ctx context.Context, businessID int64) (*scoring.Score, error)

	// Research jobs
	CreateJob(ctx context.Context, job *model.ResearchJob) error
	UpdateJob(ctx context.Context, job *model.ResearchJob) error
	GetJob(ctx context.Context, id string) (*model.ResearchJob, error)
	ListJobs(ctx context.Context, limit int) ([]model.ResearchJob, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
