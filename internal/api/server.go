// Package api exposes the document pipeline and the VAT declaration engine
// over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"docvat/internal/logger"
	"docvat/internal/pipeline"
	"docvat/internal/vat"
	"docvat/pkg/models"
)

// DefaultMaxUploadBytes bounds multipart uploads.
const DefaultMaxUploadBytes = 20 << 20

// DocumentProcessor is the part of the pipeline the API drives.
type DocumentProcessor interface {
	Process(ctx context.Context, doc pipeline.Document) (*pipeline.Result, error)
	ProcessText(ctx context.Context, doc pipeline.Document, text string) (*pipeline.Result, error)
	Records(ctx context.Context, documentType models.DocumentType) ([]pipeline.StoredRecord, error)
}

// Server holds the HTTP handlers.
type Server struct {
	processor      DocumentProcessor
	engine         *vat.Engine
	maxUploadBytes int64
	log            zerolog.Logger
}

// New returns a Server over processor and engine.
func New(processor DocumentProcessor, engine *vat.Engine) *Server {
	return &Server{
		processor:      processor,
		engine:         engine,
		maxUploadBytes: DefaultMaxUploadBytes,
		log:            logger.WithComponent("api"),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/documents", func(r chi.Router) {
		r.Get("/", s.handleListDocuments)
		r.Post("/", s.handleUploadDocument)
		r.Post("/text", s.handleProcessText)
	})

	r.Route("/api/vat", func(r chi.Router) {
		r.Get("/periods", s.handlePeriods)
		r.Get("/compare", s.handleCompare)
		r.Get("/history", s.handleHistory)

		r.Post("/declarations", s.handleOpenDeclaration)
		r.Get("/declarations/current", s.handleCurrentDeclaration)
		r.Route("/declarations/{year}/{period}", func(r chi.Router) {
			r.Get("/", s.handleGetDeclaration)
			r.Put("/{section}/{category}", s.handleUpdateDeclaration)
			r.Get("/controls", s.handleControls)
			r.Post("/submit", s.handleSubmit)
			r.Post("/archive", s.handleArchive)
			r.Get("/export.xml", s.handleExport)
		})
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log := logger.WithRequestID(middleware.GetReqID(r.Context()))
		log.Debug().
			Str("component", "api").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

type errorResponse struct {
	Error    string        `json:"error"`
	Controls []vat.Control `json:"controls,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	resp := errorResponse{Error: err.Error()}

	var declErr *vat.DeclarationError
	if errors.As(err, &declErr) {
		resp.Controls = declErr.Controls
	}

	event := s.log.Warn()
	if status >= http.StatusInternalServerError {
		event = s.log.Error()
	}
	event.
		Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("Request failed")

	writeJSON(w, status, resp)
}
