package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hvac-targets/internal/export"
	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/scoring"
	"github.com/sells-group/hvac-targets/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	defaultJobLimit = 20
	manualSource    = "manual"
)

// businessRequest is the body of create and update calls. The counts, when
// present, are recorded as new manual estimates.
type businessRequest struct {
	model.Business
	EmployeeCount *int `json:"employee_count,omitempty"`
	FleetSize     *int `json:"fleet_size,omitempty"`
}

type listResponse struct {
	Businesses []store.Record `json:"businesses"`
	Total      int            `json:"total"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps store and pipeline errors to a status code.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	if store.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	zap.L().Error("server: request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Errorf("invalid id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return eris.New("request body is empty")
		}
		return eris.Errorf("invalid request body: %v", err)
	}
	return nil
}

// parseFilter reads list filters from query parameters.
func parseFilter(q url.Values, defaultLimit int) (store.BusinessFilter, error) {
	f := store.BusinessFilter{
		Search: strings.TrimSpace(q.Get("search")),
		City:   strings.TrimSpace(q.Get("city")),
		County: strings.TrimSpace(q.Get("county")),
		Limit:  defaultLimit,
	}

	if v := q.Get("recommendation"); v != "" {
		rec, ok := scoring.ParseRecommendation(strings.ToUpper(v))
		if !ok {
			return f, eris.Errorf("unknown recommendation %q", v)
		}
		f.Recommendation = rec
	}
	if v := q.Get("min_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			return f, eris.Errorf("min_score must be between 0 and 100")
		}
		f.MinScore = &n
	}
	if v := q.Get("ownership"); v != "" {
		f.Ownership = model.ParseOwnershipType(v)
	}
	if v := q.Get("succession"); v != "" {
		f.Succession = model.ParseSuccessionStatus(v)
	}

	switch sort := q.Get("sort"); sort {
	case "", store.SortScore, store.SortName, store.SortCity, store.SortUpdatedAt, store.SortEmployees:
		f.Sort = sort
	default:
		return f, eris.Errorf("unknown sort %q", sort)
	}
	switch order := strings.ToLower(q.Get("order")); order {
	case "":
		f.Desc = f.Sort == "" || f.Sort == store.SortScore
	case "asc":
	case "desc":
		f.Desc = true
	default:
		return f, eris.Errorf("order must be asc or desc")
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, eris.Errorf("limit must be a positive integer")
		}
		f.Limit = min(n, maxPageSize)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, eris.Errorf("offset must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}

func (s *Server) loadRecord(ctx context.Context, id int64) (*store.Record, error) {
	b, err := s.store.GetBusiness(ctx, id)
	if err != nil {
		return nil, err
	}
	sc, err := s.store.GetScore(ctx, id)
	if err != nil && !store.IsNotFound(err) {
		return nil, err
	}
	return &store.Record{Business: *b, Score: sc}, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListBusinesses(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query(), defaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := s.store.ListBusinesses(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	total, err := s.store.CountBusinesses(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	writeJSON(w, http.StatusOK, listResponse{Businesses: recs, Total: total, Limit: f.Limit, Offset: f.Offset})
}

func (s *Server) handleGetBusiness(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.loadRecord(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// normalize cleans enum and identity fields of a manually entered business.
func normalize(b *model.Business) {
	b.Name = strings.TrimSpace(b.Name)
	b.City = strings.TrimSpace(b.City)
	b.County = strings.TrimSpace(b.County)
	if b.OwnershipType != "" {
		b.OwnershipType = model.ParseOwnershipType(string(b.OwnershipType))
	}
	if b.SuccessionStatus != "" {
		b.SuccessionStatus = model.ParseSuccessionStatus(string(b.SuccessionStatus))
	}
}

func (req *businessRequest) estimates(b *model.Business) {
	if req.EmployeeCount != nil {
		b.EmployeeEstimates = append(b.EmployeeEstimates, model.EmployeeEstimate{
			Count: *req.EmployeeCount, Source: manualSource, Confidence: 1,
		})
	}
	if req.FleetSize != nil {
		b.FleetEstimates = append(b.FleetEstimates, model.FleetEstimate{
			Count: *req.FleetSize, Source: manualSource, Confidence: 1,
		})
	}
}

func (s *Server) handleCreateBusiness(w http.ResponseWriter, r *http.Request) {
	var req businessRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b := req.Business
	b.ID = 0
	b.EmployeeEstimates, b.FleetEstimates = nil, nil
	normalize(&b)
	if b.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if b.OwnershipType == "" {
		b.OwnershipType = model.OwnershipUnknown
	}
	if b.SuccessionStatus == "" {
		b.SuccessionStatus = model.SuccessionUnknown
	}
	req.estimates(&b)

	existing, err := s.store.FindByNaturalKey(r.Context(), b.Name, b.City, b.County)
	if err != nil {
		fail(w, r, err)
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("business already exists with id %d", existing.ID))
		return
	}

	if err := s.store.CreateBusiness(r.Context(), &b); err != nil {
		fail(w, r, err)
		return
	}
	s.respondScored(w, r, b.ID, http.StatusCreated)
}

// handleUpdateBusiness applies the body to the stored business. Omitted
// fields keep their stored values.
func (s *Server) handleUpdateBusiness(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req businessRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := s.store.GetBusiness(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}

	b := req.Business
	b.EmployeeEstimates, b.FleetEstimates = nil, nil
	normalize(&b)
	if b.Name == "" {
		b.Name = existing.Name
	}
	if b.City == "" {
		b.City = existing.City
	}
	if b.County == "" {
		b.County = existing.County
	}
	if len(b.Flags) == 0 {
		b.Flags = existing.Flags
	}
	if b.Confidence == 0 {
		b.Confidence = existing.Confidence
	}
	b.FillFrom(existing)

	if err := s.store.UpdateBusiness(r.Context(), &b); err != nil {
		fail(w, r, err)
		return
	}

	var added model.Business
	req.estimates(&added)
	for i := range added.EmployeeEstimates {
		if err := s.store.AddEmployeeEstimate(r.Context(), id, &added.EmployeeEstimates[i]); err != nil {
			fail(w, r, err)
			return
		}
	}
	for i := range added.FleetEstimates {
		if err := s.store.AddFleetEstimate(r.Context(), id, &added.FleetEstimates[i]); err != nil {
			fail(w, r, err)
			return
		}
	}
	s.respondScored(w, r, id, http.StatusOK)
}

// respondScored rescores a changed business and writes its record. A scoring
// failure is logged; the record is still returned.
func (s *Server) respondScored(w http.ResponseWriter, r *http.Request, id int64, status int) {
	if _, err := s.pipeline.ScoreBusiness(r.Context(), id); err != nil {
		zap.L().Warn("server: rescore after write", zap.Int64("business_id", id), zap.Error(err))
	}
	rec, err := s.loadRecord(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, status, rec)
}

func (s *Server) handleDeleteBusiness(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeleteBusiness(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScoreBusiness(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sc, err := s.pipeline.ScoreBusiness(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleEnrichBusiness(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.pipeline.EnrichBusiness(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	s.respondScored(w, r, id, http.StatusOK)
}

func (s *Server) handleScoreAll(w http.ResponseWriter, r *http.Request) {
	summary, err := s.pipeline.ScoreAll(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStartResearch(w http.ResponseWriter, r *http.Request) {
	var q model.ResearchQuery
	if r.ContentLength != 0 {
		if err := decodeBody(r, &q); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	q.Region = strings.TrimSpace(q.Region)
	if q.Region == "" {
		q.Region = s.defaultRegion
	}
	if q.Region == "" {
		writeError(w, http.StatusBadRequest, "region is required")
		return
	}
	if q.Limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must not be negative")
		return
	}

	job, err := s.pipeline.Launch(s.jobCtx, q)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultJobLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxPageSize)
	}
	jobs, err := s.store.ListJobs(r.Context(), limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []model.ResearchJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) exportRows(w http.ResponseWriter, r *http.Request) ([]export.Row, bool) {
	f, err := parseFilter(r.URL.Query(), maxPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	rows, err := export.Collect(r.Context(), s.store, f)
	if err != nil {
		fail(w, r, err)
		return nil, false
	}
	return rows, true
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err == nil && format == export.XLSX {
		err = eris.New("use /api/export.xlsx for workbooks")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, ok := s.exportRows(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="hvac-targets-%s.csv"`, format))
	if err := export.WriteCSV(w, rows, format); err != nil {
		zap.L().Error("server: write csv export", zap.Error(err))
	}
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.exportRows(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="hvac-targets.xlsx"`)
	if err := export.WriteXLSX(w, rows); err != nil {
		zap.L().Error("server: write xlsx export", zap.Error(err))
	}
}
