package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/hvac-targets/internal/db"
	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/scoring"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	natural_key          TEXT NOT NULL UNIQUE,
	name                 TEXT NOT NULL,
	city                 TEXT NOT NULL DEFAULT '',
	county               TEXT NOT NULL DEFAULT '',
	state                TEXT NOT NULL DEFAULT 'TX',
	address              TEXT NOT NULL DEFAULT '',
	phone                TEXT NOT NULL DEFAULT '',
	website              TEXT,
	social_links         TEXT NOT NULL DEFAULT '[]',
	permits              TEXT NOT NULL DEFAULT '[]',
	licenses             TEXT NOT NULL DEFAULT '[]',
	reviews              TEXT NOT NULL DEFAULT '[]',
	service_radius_miles REAL,
	ownership_type       TEXT NOT NULL DEFAULT 'UNKNOWN',
	founded_year         INTEGER,
	niches               TEXT NOT NULL DEFAULT '[]',
	succession_status    TEXT NOT NULL DEFAULT 'UNKNOWN',
	owner_name           TEXT NOT NULL DEFAULT '',
	owner_age            INTEGER,
	salesforce_id        TEXT NOT NULL DEFAULT '',
	notion_page_id       TEXT NOT NULL DEFAULT '',
	notes                TEXT NOT NULL DEFAULT '',
	confidence           REAL NOT NULL DEFAULT 0,
	flags                TEXT NOT NULL DEFAULT '[]',
	source_job_id        TEXT NOT NULL DEFAULT '',
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS employee_estimates (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	business_id INTEGER NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
	count       INTEGER NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	confidence  REAL NOT NULL DEFAULT 0,
	recorded_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS fleet_estimates (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	business_id INTEGER NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
	count       INTEGER NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	confidence  REAL NOT NULL DEFAULT 0,
	recorded_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS scores (
	business_id     INTEGER PRIMARY KEY REFERENCES businesses(id) ON DELETE CASCADE,
	revenue_proxy   INTEGER NOT NULL,
	online_weakness INTEGER NOT NULL,
	acquisition_fit INTEGER NOT NULL,
	growth_signals  INTEGER NOT NULL,
	overall_score   INTEGER NOT NULL,
	recommendation  TEXT NOT NULL,
	breakdown       TEXT NOT NULL,
	config_version  TEXT NOT NULL,
	calculated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS research_jobs (
	id                TEXT PRIMARY KEY,
	query             TEXT NOT NULL,
	stage             TEXT NOT NULL,
	status            TEXT NOT NULL,
	progress          INTEGER NOT NULL DEFAULT 0,
	external_task_id  TEXT NOT NULL DEFAULT '',
	error             TEXT NOT NULL DEFAULT '',
	businesses_found  INTEGER NOT NULL DEFAULT 0,
	businesses_stored INTEGER NOT NULL DEFAULT 0,
	businesses_scored INTEGER NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL,
	completed_at      DATETIME
);

CREATE INDEX IF NOT EXISTS idx_businesses_city ON businesses(city);
CREATE INDEX IF NOT EXISTS idx_businesses_county ON businesses(county);
CREATE INDEX IF NOT EXISTS idx_employee_estimates_business ON employee_estimates(business_id, recorded_at);
CREATE INDEX IF NOT EXISTS idx_fleet_estimates_business ON fleet_estimates(business_id, recorded_at);
CREATE INDEX IF NOT EXISTS idx_scores_overall ON scores(overall_score);
CREATE INDEX IF NOT EXISTS idx_research_jobs_created ON research_jobs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetBusiness(ctx context.Context, id int64) (*model.Business, error) {
	b, err := scanBusiness(s.db.QueryRowContext(ctx, getBusinessSQL, id))
	if isNoRows(err) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: business %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get business %d", id)
	}
	if err := s.loadEstimates(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// FindByNaturalKey returns nil, nil when no business matches.
func (s *SQLiteStore) FindByNaturalKey(ctx context.Context, name, city, county string) (*model.Business, error) {
	b, err := scanBusiness(s.db.QueryRowContext(ctx, findByKeySQL, model.NaturalKey(name, city, county)))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find business by key")
	}
	if err := s.loadEstimates(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *SQLiteStore) CreateBusiness(ctx context.Context, b *model.Business) error {
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	if b.State == "" {
		b.State = "TX"
	}

	args, err := businessArgs(b)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, insertBusinessSQL, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert business %q", b.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: last insert id")
	}
	b.ID = id

	if err := s.insertNewEstimates(ctx, tx, b); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit business")
}

func (s *SQLiteStore) UpdateBusiness(ctx context.Context, b *model.Business) error {
	b.UpdatedAt = time.Now().UTC()
	args, err := businessArgs(b)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, updateBusinessSQL, append(args, b.ID)...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update business %d", b.ID)
	}
	return checkRowsAffected(res, "business", b.ID)
}

// UpsertBusiness merges b onto the stored business with the same natural
// key, or creates it. Estimates on b without an ID are appended.
func (s *SQLiteStore) UpsertBusiness(ctx context.Context, b *model.Business) (bool, error) {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck
	if err := s.insertNewEstimates(ctx, tx, b); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: commit estimates")
	}
	return false, s.loadEstimates(ctx, b)
}

func (s *SQLiteStore) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]Record, error) {
	query, args := listQuery(filter, false)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list businesses")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan business")
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list businesses iterate")
	}
	rows.Close()

	for i := range records {
		if err := s.loadEstimates(ctx, &records[i].Business); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *SQLiteStore) CountBusinesses(ctx context.Context, filter BusinessFilter) (int, error) {
	query, args := listQuery(filter, true)
	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count businesses")
}

// DeleteBusiness removes the business with its estimates and score.
func (s *SQLiteStore) DeleteBusiness(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, q := range deleteChildrenSQL {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return eris.Wrapf(err, "sqlite: delete children of business %d", id)
		}
	}
	res, err := tx.ExecContext(ctx, deleteBusinessSQL, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete business %d", id)
	}
	if err := checkRowsAffected(res, "business", id); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit delete")
}

func (s *SQLiteStore) AddEmployeeEstimate(ctx context.Context, businessID int64, e *model.EmployeeEstimate) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, insertEmployeeSQL, businessID, e.Count, e.Source, e.Confidence, e.RecordedAt.UTC())
	if err != nil {
		return eris.Wrapf(err, "sqlite: add employee estimate for %d", businessID)
	}
	e.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: last insert id")
}

func (s *SQLiteStore) AddFleetEstimate(ctx context.Context, businessID int64, e *model.FleetEstimate) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, insertFleetSQL, businessID, e.Count, e.Source, e.Confidence, e.RecordedAt.UTC())
	if err != nil {
		return eris.Wrapf(err, "sqlite: add fleet estimate for %d", businessID)
	}
	e.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: last insert id")
}

func (s *SQLiteStore) ReplacePermits(ctx context.Context, businessID int64, permits []model.Permit) error {
	return s.replaceJSON(ctx, businessID, "permits", permits)
}

func (s *SQLiteStore) ReplaceReviews(ctx context.Context, businessID int64, reviews []model.Review) error {
	return s.replaceJSON(ctx, businessID, "reviews", reviews)
}

func (s *SQLiteStore) ReplaceLicenses(ctx context.Context, businessID int64, licenses []model.License) error {
	return s.replaceJSON(ctx, businessID, "licenses", licenses)
}

// replaceJSON overwrites one of the JSON list columns. column is never user input.
func (s *SQLiteStore) replaceJSON(ctx context.Context, businessID int64, column string, v any) error {
	data, err := marshalJSON(v)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE businesses SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		data, time.Now().UTC(), businessID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: replace %s for %d", column, businessID)
	}
	return checkRowsAffected(res, "business", businessID)
}

var sqliteUpsertScore = mustUpsertSQL(db.SQLite)

// SaveScore overwrites the business's latest score.
func (s *SQLiteStore) SaveScore(ctx context.Context, sc scoring.Score) error {
	args, err := scoreArgs(sc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, sqliteUpsertScore, args...)
	return eris.Wrapf(err, "sqlite: save score for %d", sc.BusinessID)
}

// GetScore returns nil, nil when the business has never been scored.
func (s *SQLiteStore) GetScore(ctx context.Context, businessID int64) (*scoring.Score, error) {
	sc, err := scanScore(s.db.QueryRowContext(ctx, getScoreSQL, businessID))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get score %d", businessID)
	}
	return sc, nil
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.ResearchJob) error {
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
	_, err = s.db.ExecContext(ctx, insertJobSQL, args...)
	return eris.Wrap(err, "sqlite: insert job")
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.ResearchJob) error {
	job.UpdatedAt = time.Now().UTC()
	args, err := jobUpdateArgs(job)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, updateJobSQL, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", job.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: job %s", job.ID)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.ResearchJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, getJobSQL, id))
	if isNoRows(err) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	return j, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]model.ResearchJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, listJobsSQL, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.ResearchJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

// helpers

func (s *SQLiteStore) loadEstimates(ctx context.Context, b *model.Business) error {
	emps, err := s.queryEstimates(ctx, selectEmployeesSQL, b.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: load employee estimates for %d", b.ID)
	}
	fleet, err := s.queryEstimates(ctx, selectFleetSQL, b.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: load fleet estimates for %d", b.ID)
	}
	b.EmployeeEstimates = emps
	b.FleetEstimates = toFleet(fleet)
	return nil
}

func (s *SQLiteStore) queryEstimates(ctx context.Context, query string, businessID int64) ([]model.EmployeeEstimate, error) {
	rows, err := s.db.QueryContext(ctx, query, businessID)
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

func (s *SQLiteStore) insertNewEstimates(ctx context.Context, tx *sql.Tx, b *model.Business) error {
	for i := range b.EmployeeEstimates {
		e := &b.EmployeeEstimates[i]
		if e.ID != 0 {
			continue
		}
		if e.RecordedAt.IsZero() {
			e.RecordedAt = b.UpdatedAt
		}
		res, err := tx.ExecContext(ctx, insertEmployeeSQL, b.ID, e.Count, e.Source, e.Confidence, e.RecordedAt.UTC())
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert employee estimate for %d", b.ID)
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return eris.Wrap(err, "sqlite: last insert id")
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
		res, err := tx.ExecContext(ctx, insertFleetSQL, b.ID, e.Count, e.Source, e.Confidence, e.RecordedAt.UTC())
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert fleet estimate for %d", b.ID)
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return eris.Wrap(err, "sqlite: last insert id")
		}
	}
	return nil
}

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", entity, id)
	}
	return nil
}

func toFleet(in []model.EmployeeEstimate) []model.FleetEstimate {
	if in == nil {
		return nil
	}
	out := make([]model.FleetEstimate, len(in))
	for i, e := range in {
		out[i] = model.FleetEstimate(e)
	}
	return out
}

func mustUpsertSQL(d db.Dialect) string {
	q, err := db.UpsertSQL(db.UpsertConfig{
		Table:        "scores",
		Columns:      scoreColumns,
		ConflictKeys: []string{"business_id"},
	}, d)
	if err != nil {
		panic(err)
	}
	return q
}
