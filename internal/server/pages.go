package server

import (
	"bytes"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/scoring"
	"github.com/sells-group/hvac-targets/internal/store"
)

const dashboardJobs = 5

type dashboardRow struct {
	ID             int64
	Name           string
	City           string
	County         string
	Employees      string
	Fleet          string
	Ownership      model.OwnershipType
	Score          string
	Recommendation scoring.Recommendation
}

type dashboardPage struct {
	Filter store.BusinessFilter
	Rows   []dashboardRow
	Total  int
	Jobs   []model.ResearchJob
	Tiers  []scoring.Recommendation
	Sorts  []string
}

type businessPage struct {
	Business  model.Business
	Score     *scoring.Score
	Website   string
	Employees string
	Fleet     string
	Founded   string
	OwnerAge  string
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		zap.L().Error("server: render page", zap.String("page", name), zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query(), 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
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
	jobs, err := s.store.ListJobs(r.Context(), dashboardJobs)
	if err != nil {
		fail(w, r, err)
		return
	}

	page := &dashboardPage{
		Filter: f,
		Total:  total,
		Jobs:   jobs,
		Tiers:  []scoring.Recommendation{scoring.HighPriority, scoring.MediumPriority, scoring.LowPriority, scoring.NotRecommended},
		Sorts:  []string{store.SortScore, store.SortName, store.SortCity, store.SortEmployees, store.SortUpdatedAt},
	}
	for i := range recs {
		b := &recs[i].Business
		row := dashboardRow{
			ID:        b.ID,
			Name:      b.Name,
			City:      b.City,
			County:    b.County,
			Ownership: b.OwnershipType,
		}
		if e, ok := b.LatestEmployeeEstimate(); ok {
			row.Employees = strconv.Itoa(e.Count)
		}
		if e, ok := b.LatestFleetEstimate(); ok {
			row.Fleet = strconv.Itoa(e.Count)
		}
		if sc := recs[i].Score; sc != nil {
			row.Score = strconv.Itoa(sc.OverallScore)
			row.Recommendation = sc.Recommendation
		}
		page.Rows = append(page.Rows, row)
	}
	s.render(w, "dashboard", page)
}

func (s *Server) handleBusinessPage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := s.loadRecord(r.Context(), id)
	if store.IsNotFound(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	page := &businessPage{Business: rec.Business, Score: rec.Score}
	b := &page.Business
	if b.HasWebsite() {
		page.Website = *b.Website
	}
	if e, ok := b.LatestEmployeeEstimate(); ok {
		page.Employees = strconv.Itoa(e.Count)
	}
	if e, ok := b.LatestFleetEstimate(); ok {
		page.Fleet = strconv.Itoa(e.Count)
	}
	if b.FoundedYear != nil {
		page.Founded = strconv.Itoa(*b.FoundedYear)
	}
	if b.OwnerAge != nil {
		page.OwnerAge = strconv.Itoa(*b.OwnerAge)
	}
	s.render(w, "business", page)
}
