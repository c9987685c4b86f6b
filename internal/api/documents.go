package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"docvat/internal/ocr"
	"docvat/internal/pipeline"
	"docvat/pkg/models"
)

type textRequest struct {
	Name   string `json:"name"`
	Text   string `json:"text"`
	Enrich *bool  `json:"enrich,omitempty"`
}

// skipEnrichment reads ?enrich=false.
func skipEnrichment(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("enrich")
	if raw == "" {
		return false, nil
	}
	enrich, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid enrich value %q", raw)
	}
	return !enrich, nil
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	skip, err := skipEnrichment(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("failed to parse form or request too large (max %d MB)", s.maxUploadBytes>>20))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, errors.New("failed to retrieve file from request, ensure 'file' field is used"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	result, err := s.processor.Process(r.Context(), pipeline.Document{
		Name:           header.Filename,
		Data:           data,
		ContentType:    header.Header.Get("Content-Type"),
		SkipEnrichment: skip,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ocr.ErrAcquisitionFailure) {
			status = http.StatusUnprocessableEntity
		}
		s.writeError(w, r, status, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleProcessText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Text == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("text is required"))
		return
	}

	result, err := s.processor.ProcessText(r.Context(), pipeline.Document{
		Name:           req.Name,
		SkipEnrichment: req.Enrich != nil && !*req.Enrich,
	}, req.Text)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	documentType := models.DocumentType(r.URL.Query().Get("type"))
	if documentType != "" && !documentType.Valid() {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("unknown document type %q", documentType))
		return
	}

	records, err := s.processor.Records(r.Context(), documentType)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrStoreDisabled) {
			status = http.StatusServiceUnavailable
		}
		s.writeError(w, r, status, err)
		return
	}

	writeJSON(w, http.StatusOK, records)
}
