package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/scoring"
)

// Queries in this file use ? placeholders; the Postgres store rebinds them.

const businessColumns = `natural_key, name, city, county, state, address, phone, website,
	social_links, permits, licenses, reviews, service_radius_miles, ownership_type,
	founded_year, niches, succession_status, owner_name, owner_age, salesforce_id,
	notion_page_id, notes, confidence, flags, source_job_id, created_at, updated_at`

const businessSelect = `b.id, b.natural_key, b.name, b.city, b.county, b.state, b.address, b.phone, b.website,
	b.social_links, b.permits, b.licenses, b.reviews, b.service_radius_miles, b.ownership_type,
	b.founded_year, b.niches, b.succession_status, b.owner_name, b.owner_age, b.salesforce_id,
	b.notion_page_id, b.notes, b.confidence, b.flags, b.source_job_id, b.created_at, b.updated_at`

const scoreSelect = `s.business_id, s.revenue_proxy, s.online_weakness, s.acquisition_fit, s.growth_signals,
	s.overall_score, s.recommendation, s.breakdown, s.config_version, s.calculated_at`

const jobColumns = `id, query, stage, status, progress, external_task_id, error,
	businesses_found, businesses_stored, businesses_scored, created_at, updated_at, completed_at`

var scoreColumns = []string{
	"business_id", "revenue_proxy", "online_weakness", "acquisition_fit", "growth_signals",
	"overall_score", "recommendation", "breakdown", "config_version", "calculated_at",
}

const insertBusinessSQL = `INSERT INTO businesses (` + businessColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const updateBusinessSQL = `UPDATE businesses SET natural_key = ?, name = ?, city = ?, county = ?, state = ?,
	address = ?, phone = ?, website = ?, social_links = ?, permits = ?, licenses = ?, reviews = ?,
	service_radius_miles = ?, ownership_type = ?, founded_year = ?, niches = ?, succession_status = ?,
	owner_name = ?, owner_age = ?, salesforce_id = ?, notion_page_id = ?, notes = ?, confidence = ?,
	flags = ?, source_job_id = ?, created_at = ?, updated_at = ? WHERE id = ?`

const getBusinessSQL = `SELECT ` + businessSelect + ` FROM businesses b WHERE b.id = ?`

const findByKeySQL = `SELECT ` + businessSelect + ` FROM businesses b WHERE b.natural_key = ?`

const insertEmployeeSQL = `INSERT INTO employee_estimates (business_id, count, source, confidence, recorded_at) VALUES (?, ?, ?, ?, ?)`

const insertFleetSQL = `INSERT INTO fleet_estimates (business_id, count, source, confidence, recorded_at) VALUES (?, ?, ?, ?, ?)`

const selectEmployeesSQL = `SELECT id, count, source, confidence, recorded_at FROM employee_estimates WHERE business_id = ? ORDER BY recorded_at, id`

const selectFleetSQL = `SELECT id, count, source, confidence, recorded_at FROM fleet_estimates WHERE business_id = ? ORDER BY recorded_at, id`

const getScoreSQL = `SELECT ` + scoreSelect + ` FROM scores s WHERE s.business_id = ?`

const insertJobSQL = `INSERT INTO research_jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const updateJobSQL = `UPDATE research_jobs SET query = ?, stage = ?, status = ?, progress = ?, external_task_id = ?,
	error = ?, businesses_found = ?, businesses_stored = ?, businesses_scored = ?, updated_at = ?, completed_at = ?
	WHERE id = ?`

const deleteBusinessSQL = `DELETE FROM businesses WHERE id = ?`

var deleteChildrenSQL = []string{
	`DELETE FROM employee_estimates WHERE business_id = ?`,
	`DELETE FROM fleet_estimates WHERE business_id = ?`,
	`DELETE FROM scores WHERE business_id = ?`,
}

const getJobSQL = `SELECT ` + jobColumns + ` FROM research_jobs WHERE id = ?`

const listJobsSQL = `SELECT ` + jobColumns + ` FROM research_jobs ORDER BY created_at DESC LIMIT ?`

type scannable interface {
	Scan(dest ...any) error
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal json")
	}
	return string(data), nil
}

func unmarshalJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return eris.Wrap(json.Unmarshal(data, v), "store: unmarshal json")
}

// businessArgs returns bind values in businessColumns order.
func businessArgs(b *model.Business) ([]any, error) {
	encoded := make([]string, 0, 6)
	for _, v := range []any{b.SocialLinks, b.Permits, b.Licenses, b.Reviews, b.Niches, b.Flags} {
		s, err := marshalJSON(v)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, s)
	}
	ownership := b.OwnershipType
	if ownership == "" {
		ownership = model.OwnershipUnknown
	}
	succession := b.SuccessionStatus
	if succession == "" {
		succession = model.SuccessionUnknown
	}
	return []any{
		b.NaturalKey(), b.Name, b.City, b.County, b.State, b.Address, b.Phone, b.Website,
		encoded[0], encoded[1], encoded[2], encoded[3], b.ServiceRadiusMiles, string(ownership),
		b.FoundedYear, encoded[4], string(succession), b.OwnerName, b.OwnerAge, b.SalesforceID,
		b.NotionPageID, b.Notes, b.Confidence, encoded[5], b.SourceJobID, b.CreatedAt, b.UpdatedAt,
	}, nil
}

// businessDest returns scan targets in businessSelect order plus a finish
// func that decodes the JSON columns.
func businessDest(b *model.Business) ([]any, func() error) {
	var naturalKey, ownership, succession string
	var social, permits, licenses, reviews, niches, flags []byte
	dest := []any{
		&b.ID, &naturalKey, &b.Name, &b.City, &b.County, &b.State, &b.Address, &b.Phone, &b.Website,
		&social, &permits, &licenses, &reviews, &b.ServiceRadiusMiles, &ownership,
		&b.FoundedYear, &niches, &succession, &b.OwnerName, &b.OwnerAge, &b.SalesforceID,
		&b.NotionPageID, &b.Notes, &b.Confidence, &flags, &b.SourceJobID, &b.CreatedAt, &b.UpdatedAt,
	}
	finish := func() error {
		b.OwnershipType = model.OwnershipType(ownership)
		b.SuccessionStatus = model.SuccessionStatus(succession)
		for _, f := range []struct {
			data []byte
			v    any
		}{
			{social, &b.SocialLinks}, {permits, &b.Permits}, {licenses, &b.Licenses},
			{reviews, &b.Reviews}, {niches, &b.Niches}, {flags, &b.Flags},
		} {
			if err := unmarshalJSON(f.data, f.v); err != nil {
				return err
			}
		}
		b.CreatedAt = b.CreatedAt.UTC()
		b.UpdatedAt = b.UpdatedAt.UTC()
		return nil
	}
	return dest, finish
}

func scanBusiness(row scannable) (*model.Business, error) {
	var b model.Business
	dest, finish := businessDest(&b)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return &b, nil
}

// nullableScore holds the LEFT JOINed score columns of a list row.
type nullableScore struct {
	businessID     *int64
	revenue        *int
	online         *int
	acquisition    *int
	growth         *int
	overall        *int
	recommendation *string
	breakdown      []byte
	configVersion  *string
	calculatedAt   *time.Time
}

func (n *nullableScore) dest() []any {
	return []any{
		&n.businessID, &n.revenue, &n.online, &n.acquisition, &n.growth,
		&n.overall, &n.recommendation, &n.breakdown, &n.configVersion, &n.calculatedAt,
	}
}

func (n *nullableScore) score() (*scoring.Score, error) {
	if n.businessID == nil {
		return nil, nil
	}
	bd, err := scoring.UnmarshalBreakdown(n.breakdown)
	if err != nil {
		return nil, err
	}
	s := &scoring.Score{
		BusinessID:     *n.businessID,
		RevenueProxy:   deref(n.revenue),
		OnlineWeakness: deref(n.online),
		AcquisitionFit: deref(n.acquisition),
		GrowthSignals:  deref(n.growth),
		OverallScore:   deref(n.overall),
		Recommendation: scoring.Recommendation(deref(n.recommendation)),
		Breakdown:      bd,
		ConfigVersion:  deref(n.configVersion),
	}
	if n.calculatedAt != nil {
		s.CalculatedAt = n.calculatedAt.UTC()
	}
	return s, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func scanRecord(row scannable) (*Record, error) {
	var r Record
	dest, finish := businessDest(&r.Business)
	var ns nullableScore
	if err := row.Scan(append(dest, ns.dest()...)...); err != nil {
		return nil, err
	}
	if err := finish(); err != nil {
		return nil, err
	}
	s, err := ns.score()
	if err != nil {
		return nil, err
	}
	r.Score = s
	return &r, nil
}

func scanScore(row scannable) (*scoring.Score, error) {
	var ns nullableScore
	if err := row.Scan(ns.dest()...); err != nil {
		return nil, err
	}
	return ns.score()
}

func scoreArgs(s scoring.Score) ([]any, error) {
	bd, err := scoring.MarshalBreakdown(s.Breakdown)
	if err != nil {
		return nil, err
	}
	return []any{
		s.BusinessID, s.RevenueProxy, s.OnlineWeakness, s.AcquisitionFit, s.GrowthSignals,
		s.OverallScore, string(s.Recommendation), string(bd), s.ConfigVersion, s.CalculatedAt.UTC(),
	}, nil
}

func scanEstimate(row scannable) (model.EmployeeEstimate, error) {
	var e model.EmployeeEstimate
	err := row.Scan(&e.ID, &e.Count, &e.Source, &e.Confidence, &e.RecordedAt)
	e.RecordedAt = e.RecordedAt.UTC()
	return e, err
}

func jobArgs(j *model.ResearchJob) ([]any, error) {
	q, err := marshalJSON(j.Query)
	if err != nil {
		return nil, err
	}
	return []any{
		j.ID, q, string(j.Stage), string(j.Status), j.Progress, j.ExternalTaskID, j.Error,
		j.BusinessesFound, j.BusinessesStored, j.BusinessesScored, j.CreatedAt, j.UpdatedAt, j.CompletedAt,
	}, nil
}

// jobUpdateArgs returns bind values for updateJobSQL.
func jobUpdateArgs(j *model.ResearchJob) ([]any, error) {
	q, err := marshalJSON(j.Query)
	if err != nil {
		return nil, err
	}
	return []any{
		q, string(j.Stage), string(j.Status), j.Progress, j.ExternalTaskID, j.Error,
		j.BusinessesFound, j.BusinessesStored, j.BusinessesScored, j.UpdatedAt, j.CompletedAt, j.ID,
	}, nil
}

func scanJob(row scannable) (*model.ResearchJob, error) {
	var j model.ResearchJob
	var query []byte
	var stage, status string
	err := row.Scan(&j.ID, &query, &stage, &status, &j.Progress, &j.ExternalTaskID, &j.Error,
		&j.BusinessesFound, &j.BusinessesStored, &j.BusinessesScored, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	j.Stage = model.JobStage(stage)
	j.Status = model.JobStatus(status)
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	if j.CompletedAt != nil {
		t := j.CompletedAt.UTC()
		j.CompletedAt = &t
	}
	if err := unmarshalJSON(query, &j.Query); err != nil {
		return nil, err
	}
	return &j, nil
}

// latestEmployeesSQL selects a business's latest employee count, matching
// model.Business.LatestEmployeeEstimate's tie-break.
const latestEmployeesSQL = `(SELECT e.count FROM employee_estimates e WHERE e.business_id = b.id
	ORDER BY e.recorded_at DESC, e.id DESC LIMIT 1)`

// listQuery builds the WHERE and ORDER BY clauses for a filter.
func listQuery(f BusinessFilter, count bool) (string, []any) {
	var where []string
	var args []any

	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		where = append(where, "(LOWER(b.name) LIKE ? OR LOWER(b.city) LIKE ? OR LOWER(b.county) LIKE ?)")
		args = append(args, like, like, like)
	}
	if f.City != "" {
		where = append(where, "LOWER(b.city) = ?")
		args = append(args, strings.ToLower(f.City))
	}
	if f.County != "" {
		where = append(where, "LOWER(b.county) = ?")
		args = append(args, strings.ToLower(f.County))
	}
	if f.Recommendation != "" {
		where = append(where, "s.recommendation = ?")
		args = append(args, string(f.Recommendation))
	}
	if f.MinScore != nil {
		where = append(where, "s.overall_score >= ?")
		args = append(args, *f.MinScore)
	}
	if f.Ownership != "" {
		where = append(where, "b.ownership_type = ?")
		args = append(args, string(f.Ownership))
	}
	if f.Succession != "" {
		where = append(where, "b.succession_status = ?")
		args = append(args, string(f.Succession))
	}

	var q strings.Builder
	if count {
		q.WriteString("SELECT COUNT(*) FROM businesses b LEFT JOIN scores s ON s.business_id = b.id")
	} else {
		q.WriteString("SELECT " + businessSelect + ", " + scoreSelect +
			" FROM businesses b LEFT JOIN scores s ON s.business_id = b.id")
	}
	if len(where) > 0 {
		q.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if count {
		return q.String(), args
	}

	desc := f.Desc
	var order string
	switch f.Sort {
	case SortName:
		order = "LOWER(b.name)"
	case SortCity:
		order = "LOWER(b.city)"
	case SortUpdatedAt:
		order = "b.updated_at"
	case SortEmployees:
		order = "COALESCE(" + latestEmployeesSQL + ", -1)"
	default:
		order = "COALESCE(s.overall_score, -1)"
		if f.Sort == "" {
			desc = true
		}
	}
	dir := " ASC"
	if desc {
		dir = " DESC"
	}
	q.WriteString(" ORDER BY " + order + dir + ", b.id ASC")

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q.WriteString(" LIMIT ?")
	args = append(args, limit)
	if f.Offset > 0 {
		q.WriteString(" OFFSET ?")
		args = append(args, f.Offset)
	}
	return q.String(), args
}
