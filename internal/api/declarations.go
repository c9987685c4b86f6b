package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"docvat/internal/vat"
)

type openRequest struct {
	Year               int        `json:"year"`
	Period             string     `json:"period"`
	Method             vat.Method `json:"method,omitempty"`
	LoadFromAccounting bool       `json:"load_from_accounting"`
}

type declarationResponse struct {
	Declaration  *vat.Declaration `json:"declaration"`
	UsedFallback bool             `json:"used_fallback,omitempty"`
	Controls     []vat.Control    `json:"controls,omitempty"`
}

// declarationStatus maps engine errors to HTTP statuses.
func declarationStatus(err error) int {
	switch {
	case errors.Is(err, vat.ErrUnknownPeriod), errors.Is(err, vat.ErrUnknownCategory):
		return http.StatusBadRequest
	case errors.Is(err, vat.ErrNoCurrentDeclaration):
		return http.StatusNotFound
	case errors.Is(err, vat.ErrDeclarationLocked), errors.Is(err, vat.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, vat.ErrCoherenceFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, vat.ErrPersistenceFailure):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func yearParam(raw string) (int, error) {
	year, err := strconv.Atoi(raw)
	if err != nil || year < 2000 || year > 2100 {
		return 0, fmt.Errorf("invalid year %q", raw)
	}
	return year, nil
}

func (s *Server) pathPeriod(w http.ResponseWriter, r *http.Request) (int, string, bool) {
	year, err := yearParam(chi.URLParam(r, "year"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return 0, "", false
	}
	return year, chi.URLParam(r, "period"), true
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	year := s.engineYear()
	if raw := r.URL.Query().Get("year"); raw != "" {
		var err error
		if year, err = yearParam(raw); err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
	}

	periods, err := vat.PeriodsOf(year, vat.PeriodType(r.URL.Query().Get("type")))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, periods)
}

func (s *Server) engineYear() int {
	if decl, err := s.engine.Current(); err == nil {
		return decl.Period.Year
	}
	return vat.CurrentQuarter(s.engine.Now()).Year
}

func (s *Server) handleOpenDeclaration(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Year == 0 && req.Period == "" {
		q := vat.CurrentQuarter(s.engine.Now())
		req.Year, req.Period = q.Year, q.Code
	}

	if req.LoadFromAccounting {
		result, err := s.engine.LoadFromAccounting(r.Context(), req.Year, req.Period)
		if err != nil {
			s.writeError(w, r, declarationStatus(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, declarationResponse{Declaration: result.Declaration, UsedFallback: result.UsedFallback})
		return
	}

	decl, err := s.engine.Open(req.Year, req.Period, req.Method)
	if err != nil {
		s.writeError(w, r, declarationStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, declarationResponse{Declaration: decl})
}

func (s *Server) handleCurrentDeclaration(w http.ResponseWriter, r *http.Request) {
	decl, err := s.engine.Current()
	if err != nil {
		s.writeError(w, r, declarationStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, declarationResponse{Declaration: decl})
}

func (s *Server) handleGetDeclaration(w http.ResponseWriter, r *http.Request) {
	year, period, ok := s.pathPeriod(w, r)
	if !ok {
		return
	}
	decl, err := s.engine.Get(year, period)
	if err != nil {
		s.writeError(w, r, declarationStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, declarationResponse{Declaration: decl})
}

func (s *Server) handleUpdateDeclaration(w http.ResponseWriter, r *http.Request) {
	year, period, ok := s.pathPeriod(w, r)
	if !ok {
		return
	}

	var amounts vat.Amounts
	if err := json.NewDecoder(r.Body).Decode(&amounts); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	decl, err := s.engine.Update(year, period,
		vat.Section(chi.URLParam(r, "section")),
		vat.Category(chi.URLParam(r, "category")),
		amounts)
	if err != nil {
		s.writeError(w, r, declarationStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, declarationResponse{Declaration: decl})
}

func (s *Server) handleControls(w http.ResponseWriter, r *http.Request) {
	year, period, ok := s.pathPeriod(w, r)
	if !ok {
		return
	}
	controls, err := s.engine.Controls(year, period)
	if err != nil {
		s.writeError(w, r, declarationStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"controls": controls,
		"ok":       !vat.HasErrors(controls),
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	year, period, ok := s.pathPeriod(w, r)
	if !ok {
		return
	}
	decl, err := s.engine.Submit(r.Context(), year, period)
	if err != nil {
		s.writeError(w, r, declarationStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, declarationResponse{Declaration: decl})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	year, period, ok := s.pathPeriod(w, r)
	if !ok {
		return
	}
	decl, err := s.engine.Archive(r.Context(), year, period)
	if err != nil {
		s.writeError(w, r, declarationStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, declarationResponse{Declaration: decl})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	year, period, ok := s.pathPeriod(w, r)
	if !ok {
		return
	}
	decl, err := s.engine.Get(year, period)
	if err != nil {
		s.writeError(w, r, declarationStatus(err), err)
		return
	}
	out, err := decl.ExportAFC()
	if err != nil {
		s.writeError(w, r, declarationStatus(err), err)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", decl.ID+".xml"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("revenue")
	revenue, err := strconv.ParseFloat(raw, 64)
	if err != nil || revenue < 0 {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid revenue %q", raw))
		return
	}
	writeJSON(w, http.StatusOK, s.engine.CompareMethods(revenue))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	year := 0
	if raw := r.URL.Query().Get("year"); raw != "" {
		var err error
		if year, err = yearParam(raw); err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
	}
	entries, err := s.engine.History(r.Context(), year)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
