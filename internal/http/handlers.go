package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"litminer/internal/repo"
	"litminer/internal/services/biomarker"
	"litminer/internal/services/research"
)

// ResearchHandler serves search runs, stored records and ad hoc extraction.
type ResearchHandler struct {
	service  *research.Service
	analyzer *biomarker.Analyzer
	repo     repo.Repository
	validate *validator.Validate
}

func NewResearchHandler(service *research.Service, analyzer *biomarker.Analyzer, repository repo.Repository) *ResearchHandler {
	return &ResearchHandler{
		service:  service,
		analyzer: analyzer,
		repo:     repository,
		validate: validator.New(),
	}
}

// RegisterRoutes registers all research routes
func (h *ResearchHandler) RegisterRoutes(r chi.Router) {
	r.Post("/search", h.Search)

	r.Get("/articles", list(h.repo.ListArticles))
	r.Get("/entities", list(h.repo.ListEntities))
	r.Get("/statistics", list(h.repo.ListStatistics))

	r.Get("/drugs", storedOrAdhoc(h.repo.ListDrugs, h.service.Drugs))
	r.Get("/disease", storedOrAdhoc(h.repo.ListDiseases, h.service.Diseases))
	r.Get("/co-biomarkers", storedOrAdhoc(h.repo.ListCoBiomarkers, h.service.CoBiomarkers))

	r.Get("/biomarkers", adhoc(h.service.Biomarkers))
	r.Post("/biomarkers", h.AnalyzeBiomarkers)
	r.Get("/getqna", adhoc(h.service.QnA))
	r.Get("/summary", adhoc(h.service.Summary))
	r.Get("/key_findings", adhoc(h.service.KeyFindings))
	r.Get("/key_entities", adhoc(h.service.KeyEntities))

	r.Get("/process-article", h.ProcessArticle)
}

// Search runs the full pipeline for a query and replaces the stored run.
func (h *ResearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	result, err := h.service.Search(r.Context(), req.Query)
	if err != nil {
		log.Error().Err(err).Str("query", req.Query).Msg("Search run failed")
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to process search")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// AnalyzeBiomarkers interprets the posted biomarker values.
func (h *ResearchHandler) AnalyzeBiomarkers(w http.ResponseWriter, r *http.Request) {
	var inputs []biomarker.Input
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	analysis, err := h.analyzer.Analyze(r.Context(), inputs)
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, verrs.Error())
		return
	case err != nil:
		log.Error().Err(err).Msg("Biomarker analysis failed")
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to analyze biomarkers")
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// ProcessArticle digests one PubMed article given its URL.
func (h *ResearchHandler) ProcessArticle(w http.ResponseWriter, r *http.Request) {
	articleURL := r.URL.Query().Get("url")
	if articleURL == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "url parameter is required")
		return
	}
	writeJSON(w, http.StatusOK, h.service.ProcessArticle(r.Context(), articleURL))
}

func list[T any](load func(context.Context) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := load(r.Context())
		if err != nil {
			log.Error().Err(err).Str("path", r.URL.Path).Msg("Failed to list stored records")
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load records")
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func adhoc[T any](run func(context.Context, string) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("query"))
		if query == "" {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "query parameter is required")
			return
		}
		result, err := run(r.Context(), query)
		switch {
		case errors.Is(err, research.ErrNoArticles):
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "No articles found")
			return
		case err != nil:
			log.Error().Err(err).Str("path", r.URL.Path).Msg("Extraction failed")
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to extract records")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// storedOrAdhoc lists the stored records, or extracts afresh when a query is
// given.
func storedOrAdhoc[T any](load func(context.Context) ([]T, error), run func(context.Context, string) ([]T, error)) http.HandlerFunc {
	listed, extracted := list(load), adhoc(run)
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("query") {
			extracted(w, r)
			return
		}
		listed(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, NewErrorResponse(code, message))
}
