package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hvac-targets/internal/db"
	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/scoring"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

func pg(q string) string { return db.Rebind(db.Postgres, q) }

var (
	pgInsertBusiness  = pg(insertBusinessSQL) + " RETURNING id"
	pgUpdateBusiness  = pg(updateBusinessSQL)
	pgGetBusiness     = pg(getBusinessSQL)
	pgFindByKey       = pg(findByKeySQL)
	pgInsertEmployee  = pg(insertEmployeeSQL) + " RETURNING id"
	pgInsertFleet     = pg(insertFleetSQL) + " RETURNING id"
	pgSelectEmployees = pg(selectEmployeesSQL)
	pgSelectFleet     = pg(selectFleetSQL)
	pgGetScore        = pg(getScoreSQL)
	pgUpsertScore     = mustUpsertSQL(db.Postgres)
	pgInsertJob       = pg(insertJobSQL)
	pgUpdateJob       = pg(updateJobSQL)
	pgGetJob          = pg(getJobSQL)
	pgListJobs        = pg(listJobsSQL)
	pgDeleteBusiness  = pg(deleteBusinessSQL)
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id                   BIGSERIAL PRIMARY KEY,
	natural_key          TEXT NOT NULL UNIQUE,
	name                 TEXT NOT NULL,
	city                 TEXT NOT NULL DEFAULT '',
	county               TEXT NOT NULL DEFAULT '',
	state                TEXT NOT NULL DEFAULT 'TX',
	address              TEXT NOT NULL DEFAULT '',
	phone                TEXT NOT NULL DEFAULT '',
	website              TEXT,
	social_links         JSONB NOT NULL DEFAULT '[]',
	permits              JSONB NOT NULL DEFAULT '[]',
	licenses             JSONB NOT NULL DEFAULT '[]',
	reviews              JSONB NOT NULL DEFAULT '[]',
	service_radius_miles DOUBLE PRECISION,
	ownership_type       TEXT NOT NULL DEFAULT 'UNKNOWN',
	founded_year         INTEGER,
	niches               JSONB NOT NULL DEFAULT '[]',
	succession_status    TEXT NOT NULL DEFAULT 'UNKNOWN',
	owner_name           TEXT NOT NULL DEFAULT '',
	owner_age            INTEGER,
	salesforce_id        TEXT NOT NULL DEFAULT '',
	notion_page_id       TEXT NOT NULL DEFAULT '',
	notes                TEXT NOT NULL DEFAULT '',
	confidence           DOUBLE PRECISION NOT NULL DEFAULT 0,
	flags                JSONB NOT NULL DEFAULT '[]',
	source_job_id        TEXT NOT NULL DEFAULT '',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS employee_estimates (
	id          BIGSERIAL PRIMARY KEY,
	business_id BIGINT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
	count       INTEGER NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS fleet_estimates (
	id          BIGSERIAL PRIMARY KEY,
	business_id BIGINT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
	count       INTEGER NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scores (
	business_id     BIGINT PRIMARY KEY REFERENCES businesses(id) ON DELETE CASCADE,
	revenue_proxy   INTEGER NOT NULL,
	online_weakness INTEGER NOT NULL,
	acquisition_fit INTEGER NOT NULL,
	growth_signals  INTEGER NOT NULL,
	overall_score   INTEGER NOT NULL,
	recommendation  TEXT NOT NULL,
	breakdown       JSONB NOT NULL,
	config_version  TEXT NOT NULL,
	calculated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS research_jobs (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	query             JSONB NOT NULL,
	stage             TEXT NOT NULL,
	status            TEXT NOT NULL,
	progress          INTEGER NOT NULL DEFAULT 0,
	external_task_id  TEXT NOT NULL DEFAULT '',
	error             TEXT NOT NULL DEFAULT '',
	businesses_found  INTEGER NOT NULL DEFAULT 0,
	businesses_stored INTEGER NOT NULL DEFAULT 0,
	businesses_scored INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_businesses_city ON businesses(city);
CREATE INDEX IF NOT EXISTS idx_businesses_county ON businesses(county);
CREATE INDEX IF NOT EXISTS idx_employee_estimates_business ON employee_estimates(business_id, recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_fleet_estimates_business ON fleet_estimates(business_id, recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_scores_overall ON scores(overall_score DESC);
CREATE INDEX IF NOT EXISTS idx_research_jobs_created ON research_jobs(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetBusiness(ctx context.Context, id int64) (*model.Business, error) {
	b, err := scanBusiness(s.pool.QueryRow(ctx, pgGetBusiness, id))
	if isNoRows(err) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: business %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get business %d", id)
	}
	if err := s.loadEstimates(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// FindByNaturalKey returns nil, nil when no business matches.
func (s *PostgresStore) FindByNaturalKey(ctx context.Context, name, city, county string) (*model.Business, error) {
	b, err := scanBusiness(s.pool.QueryRow(ctx, pgFindByKey, model.NaturalKey(name, city, county)))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find business by key")
	}
	if err := s.loadEstimates(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *PostgresStore) CreateBusiness(ctx context.Context, b *model.Business) error {
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	if b.State == "" {
		b.State = "TX"
	}

	args, err := businessArgs(b)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := tx.QueryRow(ctx, pgInsertBusiness, args...).Scan(&b.ID); err != nil {
		return eris.Wrapf(err, "postgres: insert business %q", b.Name)
	}
	if err := insertNewEstimatesTx(ctx, tx, b); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit business")
}

func (s *PostgresStore) UpdateBusiness(ctx context.Context, b *model.Business) error {
	b.UpdatedAt = time.Now().UTC()
	args, err := businessArgs(b)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, pgUpdateBusiness, append(args, b.ID)...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update business %d", b.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: business %d", b.ID)
	}
	return nil
}

// UpsertBusiness merges b onto the stored business with the same natural
// key, or creates it. Estimates on b without an ID are appended.
func (s *PostgresStore) UpsertBusiness(ctx context.Context, b *model.Business) (bool, error) {
	existing, err := s.FindByNaturalKey(ctx, b.Name, b.City, b.County)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return true, s.CreateBusiness(ctx, b)
	}

	b.FillFrom(existing)
	if err := s.UpdateBusiness(ctx, b); err != nil {
		return false, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	if err := insertNewEstimatesTx(ctx, tx, b); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, eris.Wrap(err, "postgres: commit estimates")
	}
	return false, s.loadEstimates(ctx, b)
}

func (s *PostgresStore) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]Record, error) {
	query, args := listQuery(filter, false)
	rows, err := s.pool.Query(ctx, pg(query), args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list businesses")
	}

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan business")
		}
		records = append(records, *r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list businesses iterate")
	}

	for i := range records {
		if err := s.loadEstimates(ctx, &records[i].Business); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *PostgresStore) CountBusinesses(ctx context.Context, filter BusinessFilter) (int, error) {
	query, args := listQuery(filter, true)
	var n int
	err := s.pool.QueryRow(ctx, pg(query), args...).Scan(&n)
	return n, eris.Wrap(err, "postgres: count businesses")
}

// DeleteBusiness removes the business; estimates and score cascade.
func (s *PostgresStore) DeleteBusiness(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, pgDeleteBusiness, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete business %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: business %d", id)
	}
	return nil
}

func (s *PostgresStore) AddEmployeeEstimate(ctx context.Context, businessID int64, e *model.EmployeeEstimate) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx, pgInsertEmployee, businessID, e.Count, e.Source, e.Confidence, e.RecordedAt.UTC()).Scan(&e.ID)
	return eris.Wrapf(err, "postgres: add employee estimate for %d", businessID)
}

func (s *PostgresStore) AddFleetEstimate(ctx context.Context, businessID int64, e *model.FleetEstimate) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx, pgInsertFleet, businessID, e.Count, e.Source, e.Confidence, e.RecordedAt.UTC()).Scan(&e.ID)
	return eris.Wrapf(err, "postgres: add fleet estimate for %d", businessID)
}

func (s *PostgresStore) ReplacePermits(ctx context.Context, businessID int64, permits []model.Permit) error {
	return s.replaceJSON(ctx, businessID, "permits", permits)
}

func (s *PostgresStore) ReplaceReviews(ctx context.Context, businessID int64, reviews []model.Review) error {
	return s.replaceJSON(ctx, businessID, "reviews", reviews)
}

func (s *PostgresStore) ReplaceLicenses(ctx context.Context, businessID int64, licenses []model.License) error {
	return s.replaceJSON(ctx, businessID, "licenses", licenses)
}

// replaceJSON overwrites one of the JSONB list columns. column is never user input.
func (s *PostgresStore) replaceJSON(ctx context.Context, businessID int64, column string, v any) error {
	data, err := marshalJSON(v)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE businesses SET `+column+` = $1, updated_at = $2 WHERE id = $3`,
		data, time.Now().UTC(), businessID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: replace %s for %d", column, businessID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: business %d", businessID)
	}
	return nil
}

// SaveScore overwrites the business's latest score.
func (s *PostgresStore) SaveScore(ctx context.Context, sc scoring.Score) error {
	args, err := scoreArgs(sc)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, pgUpsertScore, args...)
	return eris.Wrapf(err, "postgres: save score for %d", sc.BusinessID)
}

// GetScore returns nil, nil when the business has never been scored.
func (s *PostgresStore) GetScore(ctx context.Context, businessID int64) (*scoring.Score, error) {
	sc, err := scanScore(s.pool.QueryRow(ctx, pgGetScore, businessID))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get score %d", businessID)
	}
	return sc, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.ResearchJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.CreatedAt, job.UpdatedAt = now, now
	if job.Stage == "" {
		job.Stage = model.StageInit
	}
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}

	args, err := jobArgs(job)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, pgInsertJob, args...)
	return eris.Wrap(err, "postgres: insert job")
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *model.ResearchJob) error {
	job.UpdatedAt = time.Now().UTC()
	args, err := jobUpdateArgs(job)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, pgUpdateJob, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: job %s", job.ID)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.ResearchJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, pgGetJob, id))
	if isNoRows(err) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, limit int) ([]model.ResearchJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, pgListJobs, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.ResearchJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

// helpers

func (s *PostgresStore) loadEstimates(ctx context.Context, b *model.Business) error {
	emps, err := s.queryEstimates(ctx, pgSelectEmployees, b.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: load employee estimates for %d", b.ID)
	}
	fleet, err := s.queryEstimates(ctx, pgSelectFleet, b.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: load fleet estimates for %d", b.ID)
	}
	b.EmployeeEstimates = emps
	b.FleetEstimates = toFleet(fleet)
	return nil
}

func (s *PostgresStore) queryEstimates(ctx context.Context, query string, businessID int64) ([]model.EmployeeEstimate, error) {
	rows, err := s.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EmployeeEstimate
	for rows.Next() {
		e, err := scanEstimate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertNewEstimatesTx(ctx context.Context, tx pgx.Tx, b *model.Business) error {
	for i := range b.EmployeeEstimates {
		e := &b.EmployeeEstimates[i]
		if e.ID != 0 {
			continue
		}
		if e.RecordedAt.IsZero() {
			e.RecordedAt = b.UpdatedAt
		}
		if err := tx.QueryRow(ctx, pgInsertEmployee, b.ID, e.Count, e.Source, e.Confidence, e.RecordedAt.UTC()).Scan(&e.ID); err != nil {
			return eris.Wrapf(err, "postgres: insert employee estimate for %d", b.ID)
		}
	}
	for i := range b.FleetEstimates {
		e := &b.FleetEstimates[i]
		if e.ID != 0 {
			continue
		}
		if e.RecordedAt.IsZero() {
			e.RecordedAt = b.UpdatedAt
		}
		if err := tx.QueryRow(ctx, pgInsertFleet, b.ID, e.Count, e.Source, e.Confidence, e.RecordedAt.UTC()).Scan(&e.ID); err != nil {
			return eris.Wrapf(err, "postgres: insert fleet estimate for %d", b.ID)
		}
	}
	return nil
}
