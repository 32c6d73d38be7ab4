package server

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/pipeline"
	"github.com/sells-group/hvac-targets/internal/research"
	"github.com/sells-group/hvac-targets/internal/scoring"
	"github.com/sells-group/hvac-targets/internal/sources"
	"github.com/sells-group/hvac-targets/internal/store"
)

const researchText = "```json\n" +
	`[{"name": "Polar Mechanical", "city": "Waco", "county": "McLennan", "employee_count": 40, "confidence": 0.8}]` +
	"\n```"

type instantBackend struct{}

func (instantBackend) Submit(context.Context, research.Prompt) (research.TaskHandle, error) {
	return research.TaskHandle{ID: "task-1"}, nil
}

func (instantBackend) Status(context.Context, research.TaskHandle) (research.TaskStatus, error) {
	return research.TaskCompleted, nil
}

func (instantBackend) Result(context.Context, research.TaskHandle) (string, error) {
	return researchText, nil
}

type stubEnricher struct{}

func (stubEnricher) Enrich(context.Context, *model.Business) sources.Enrichment {
	return sources.Enrichment{Reviews: []model.Review{{Source: model.ReviewGoogle, Rating: 4.8, ReviewCount: 310}}}
}

type testEnv struct {
	srv  *httptest.Server
	st   store.Store
	orch *pipeline.Orchestrator
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	cfg := pipeline.DefaultConfig()
	cfg.Poll = research.PollConfig{Initial: time.Millisecond, Max: time.Millisecond, Timeout: time.Second}
	orch := pipeline.New(st, instantBackend{}, scoring.NewEngine(scoring.DefaultConfig()), cfg,
		pipeline.WithEnricher(stubEnricher{}))

	srv := httptest.NewServer(New(st, orch, opts...).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, st: st, orch: orch}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) create(t *testing.T, body string) store.Record {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/businesses", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[store.Record](t, resp)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, resp))
}

func TestCreateBusiness(t *testing.T) {
	env := newTestEnv(t)
	rec := env.create(t, `{"name": " Acme Air ", "city": "Temple", "county": "Bell", "ownership_type": "family owned", "employee_count": 25}`)

	assert.NotZero(t, rec.Business.ID)
	assert.Equal(t, "Acme Air", rec.Business.Name)
	assert.Equal(t, model.OwnershipFamilyOwned, rec.Business.OwnershipType)
	assert.Equal(t, model.SuccessionUnknown, rec.Business.SuccessionStatus)
	require.Len(t, rec.Business.EmployeeEstimates, 1)
	assert.Equal(t, "manual", rec.Business.EmployeeEstimates[0].Source)
	require.NotNil(t, rec.Score, "new businesses are scored")
	assert.Equal(t, rec.Business.ID, rec.Score.BusinessID)
}

func TestCreateBusiness_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, `{"name": "Acme Air", "city": "Temple", "county": "Bell"}`)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"missing name", `{"city": "Temple"}`, http.StatusBadRequest},
		{"malformed", `{"name": `, http.StatusBadRequest},
		{"unknown field", `{"name": "X", "revenue": 5}`, http.StatusBadRequest},
		{"duplicate natural key", `{"name": "ACME AIR, LLC", "city": "temple", "county": "Bell"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/businesses", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, decode[map[string]string](t, resp)["error"])
		})
	}
}

func TestGetBusiness(t *testing.T) {
	env := newTestEnv(t)
	rec := env.create(t, `{"name": "Acme Air", "city": "Temple"}`)

	resp := env.do(t, http.MethodGet, "/api/businesses/"+itoa(rec.Business.ID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[store.Record](t, resp)
	assert.Equal(t, "Acme Air", got.Business.Name)
	assert.NotNil(t, got.Score)

	resp = env.do(t, http.MethodGet, "/api/businesses/9999", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not found", decode[map[string]string](t, resp)["error"])

	resp = env.do(t, http.MethodGet, "/api/businesses/abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListBusinesses(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, `{"name": "Cool Breeze", "city": "Killeen", "county": "Bell"}`)
	env.create(t, `{"name": "Acme Air", "city": "Temple", "county": "Bell"}`)
	env.create(t, `{"name": "Polar Mechanical", "city": "Waco", "county": "McLennan"}`)

	resp := env.do(t, http.MethodGet, "/api/businesses?county=bell&sort=name&order=asc", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[listResponse](t, resp)
	assert.Equal(t, 2, list.Total)
	require.Len(t, list.Businesses, 2)
	assert.Equal(t, "Acme Air", list.Businesses[0].Business.Name)
	assert.Equal(t, "Cool Breeze", list.Businesses[1].Business.Name)

	resp = env.do(t, http.MethodGet, "/api/businesses?limit=1&offset=1&sort=name&order=asc", "")
	list = decode[listResponse](t, resp)
	assert.Equal(t, 3, list.Total)
	require.Len(t, list.Businesses, 1)
	assert.Equal(t, "Cool Breeze", list.Businesses[0].Business.Name)

	for _, q := range []string{"sort=revenue", "order=sideways", "min_score=101", "recommendation=maybe", "limit=0"} {
		resp := env.do(t, http.MethodGet, "/api/businesses?"+q, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestParseFilter_DefaultOrder(t *testing.T) {
	f, err := parseFilter(map[string][]string{}, 50)
	require.NoError(t, err)
	assert.True(t, f.Desc, "score sorts highest first by default")
	assert.Equal(t, 50, f.Limit)

	f, err = parseFilter(map[string][]string{"sort": {"name"}, "limit": {"9000"}, "recommendation": {"high_priority"}}, 50)
	require.NoError(t, err)
	assert.False(t, f.Desc)
	assert.Equal(t, maxPageSize, f.Limit)
	assert.Equal(t, scoring.HighPriority, f.Recommendation)
}

func TestUpdateBusiness(t *testing.T) {
	env := newTestEnv(t)
	rec := env.create(t, `{"name": "Acme Air", "city": "Temple", "county": "Bell", "owner_name": "Bob", "employee_count": 10}`)
	path := "/api/businesses/" + itoa(rec.Business.ID)

	resp := env.do(t, http.MethodPut, path, `{"owner_age": 71, "succession_status": "retiring", "employee_count": 30}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[store.Record](t, resp)

	assert.Equal(t, "Acme Air", got.Business.Name, "omitted fields keep stored values")
	assert.Equal(t, "Bob", got.Business.OwnerName)
	require.NotNil(t, got.Business.OwnerAge)
	assert.Equal(t, 71, *got.Business.OwnerAge)
	assert.Equal(t, model.SuccessionOwnerRetiring, got.Business.SuccessionStatus)
	assert.Len(t, got.Business.EmployeeEstimates, 2)

	resp = env.do(t, http.MethodPut, "/api/businesses/9999", `{"name": "Ghost"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteBusiness(t *testing.T) {
	env := newTestEnv(t)
	rec := env.create(t, `{"name": "Acme Air", "city": "Temple"}`)
	path := "/api/businesses/" + itoa(rec.Business.ID)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, "").StatusCode)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, "").StatusCode)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, "").StatusCode)
}

func TestScoreEndpoints(t *testing.T) {
	env := newTestEnv(t)
	rec := env.create(t, `{"name": "Acme Air", "city": "Temple"}`)
	env.create(t, `{"name": "Cool Breeze", "city": "Killeen"}`)

	resp := env.do(t, http.MethodPost, "/api/businesses/"+itoa(rec.Business.ID)+"/score", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sc := decode[scoring.Score](t, resp)
	assert.Equal(t, rec.Business.ID, sc.BusinessID)
	assert.NotEmpty(t, sc.Recommendation)

	resp = env.do(t, http.MethodPost, "/api/score", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, pipeline.ScoreSummary{Total: 2, Scored: 2}, decode[pipeline.ScoreSummary](t, resp))

	resp = env.do(t, http.MethodPost, "/api/businesses/9999/score", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEnrichBusiness(t *testing.T) {
	env := newTestEnv(t)
	rec := env.create(t, `{"name": "Acme Air", "city": "Temple"}`)

	resp := env.do(t, http.MethodPost, "/api/businesses/"+itoa(rec.Business.ID)+"/enrich", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[store.Record](t, resp)
	assert.Equal(t, 310, got.Business.TotalReviewCount())
}

func TestStartResearch(t *testing.T) {
	env := newTestEnv(t, WithDefaultRegion("Central Texas"))

	resp := env.do(t, http.MethodPost, "/api/research", `{"counties": ["McLennan"]}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	job := decode[model.ResearchJob](t, resp)
	assert.Equal(t, "Central Texas", job.Query.Region)
	assert.NotEmpty(t, job.ID)

	env.orch.Wait()

	resp = env.do(t, http.MethodGet, "/api/jobs/"+job.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	done := decode[model.ResearchJob](t, resp)
	assert.Equal(t, model.JobStatusComplete, done.Status)
	assert.Equal(t, 1, done.BusinessesStored)

	resp = env.do(t, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]model.ResearchJob](t, resp), 1)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/jobs/nope", "").StatusCode)
}

func TestStartResearch_RequiresRegion(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/research", `{"limit": 5}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "region is required", decode[map[string]string](t, resp)["error"])
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, `{"name": "Acme Air", "city": "Temple", "employee_count": 12}`)

	resp := env.do(t, http.MethodGet, "/api/export.csv", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "hvac-targets-standard.csv")
	recs, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Len(t, recs[0], 29)
	assert.Equal(t, "Acme Air", recs[1][1])

	resp = env.do(t, http.MethodGet, "/api/export.csv?format=detailed", "")
	recs, err = csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, recs[0], 62)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/export.csv?format=pdf", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/export.csv?format=xlsx", "").StatusCode)

	resp = env.do(t, http.MethodGet, "/api/export.xlsx", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "PK"), "xlsx is a zip archive")
}

func TestPages(t *testing.T) {
	env := newTestEnv(t)
	rec := env.create(t, `{"name": "Acme <Air>", "city": "Temple", "county": "Bell", "employee_count": 18}`)

	resp := env.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Acme &lt;Air&gt;")
	assert.Contains(t, string(body), "/businesses/"+itoa(rec.Business.ID))

	resp = env.do(t, http.MethodGet, "/businesses/"+itoa(rec.Business.ID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Temple, Bell")
	assert.Contains(t, string(body), scoring.ComponentRevenueProxy)
	assert.Contains(t, string(body), "employee_count")

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/businesses/9999", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/?sort=bogus", "").StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/health", "")

	resp := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `hvac_http_requests_total{code="200",method="GET",route="/health"}`)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, WithCORSOrigins([]string{"https://dash.example.com"}))

	req, err := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/businesses", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "https://dash.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
