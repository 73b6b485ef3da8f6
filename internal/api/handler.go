// Package api exposes the brainstorming steps over HTTP. Each step is one
// request against a session id; the client decides the order.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/nidhogg/brainstorm/internal/brainstorm"
	"github.com/nidhogg/brainstorm/internal/generation"
	"github.com/nidhogg/brainstorm/internal/index"
	"github.com/nidhogg/brainstorm/internal/session"
	"go.uber.org/zap"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine   *brainstorm.Engine
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(engine *brainstorm.Engine, logger *zap.Logger) *Handler {
	return &Handler{
		engine:   engine,
		validate: validator.New(),
		logger:   logger,
	}
}

type purposeRequest struct {
	Purpose string `json:"purpose" validate:"required"`
}

type associationsRequest struct {
	Items []string `json:"items" validate:"required,min=1"`
}

type ideasRequest struct {
	// Keywords are optional; without them the session's keywords are extracted first.
	Keywords []index.Keyword `json:"keywords"`
}

type ideasResponse struct {
	Keywords []index.Keyword `json:"keywords"`
	Ideas    []session.Idea  `json:"ideas"`
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Post("/sessions", h.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.endSession)
			r.Post("/purpose", h.setPurpose)
			r.Post("/warmup", h.warmup)
			r.Post("/associations", h.addAssociations)
			r.Get("/keywords", h.keywords)
			r.Get("/search", h.search)
			r.Post("/ideas", h.ideas)
			r.Post("/analysis", h.analysis)
		})
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.StartSession(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.Session(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	// Teardown runs to completion even if the client goes away.
	ctx := context.WithoutCancel(r.Context())
	if !h.engine.EndSession(ctx, chi.URLParam(r, "id")) {
		h.writeError(w, session.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setPurpose(w http.ResponseWriter, r *http.Request) {
	var req purposeRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.engine.SetPurpose(r.Context(), chi.URLParam(r, "id"), req.Purpose)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) warmup(w http.ResponseWriter, r *http.Request) {
	questions, err := h.engine.GenerateWarmup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"questions": questions})
}

func (h *Handler) addAssociations(w http.ResponseWriter, r *http.Request) {
	var req associationsRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.engine.AddAssociations(r.Context(), chi.URLParam(r, "id"), req.Items)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) keywords(w http.ResponseWriter, r *http.Request) {
	keywords, err := h.engine.ExtractKeywords(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keywords)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
		return
	}
	topK := h.engine.Config().KeywordTopK
	if s := r.URL.Query().Get("top_k"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top_k must be a positive integer"})
			return
		}
		topK = n
	}
	keywords, err := h.engine.SearchAssociations(r.Context(), chi.URLParam(r, "id"), q, topK)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keywords)
}

func (h *Handler) ideas(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req ideasRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	keywords := req.Keywords
	if len(keywords) == 0 {
		var err error
		if keywords, err = h.engine.ExtractKeywords(r.Context(), id); err != nil {
			h.writeError(w, err)
			return
		}
	}
	ideas, err := h.engine.GenerateIdeas(r.Context(), id, keywords)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ideasResponse{Keywords: keywords, Ideas: ideas})
}

func (h *Handler) analysis(w http.ResponseWriter, r *http.Request) {
	ideas, err := h.engine.AnalyzeIdeas(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ideas)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, brainstorm.ErrEmptyPurpose),
		errors.Is(err, brainstorm.ErrInsufficientInput),
		errors.Is(err, session.ErrTooManyAssociations):
		status = http.StatusBadRequest
	case errors.Is(err, brainstorm.ErrNoPurpose),
		errors.Is(err, brainstorm.ErrNoIdeas),
		errors.Is(err, index.ErrTornDown):
		status = http.StatusConflict
	case errors.Is(err, generation.ErrGenerationExhausted),
		errors.Is(err, index.ErrEmbedding):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
