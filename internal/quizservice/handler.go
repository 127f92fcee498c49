// Package quizservice serves the quiz REST API: quiz lookup, grading of
// submissions and per-user result history.
package quizservice

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavelanni/learnquiz/internal/grading"
	"github.com/pavelanni/learnquiz/internal/model"
	"github.com/pavelanni/learnquiz/internal/store"
)

const (
	idempotencyHeader = "Idempotency-Key"

	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store   *store.Store
	config  model.ServiceConfig
	metrics *metrics
}

// New creates a new Handler.
func New(s *store.Store, cfg model.ServiceConfig) (*Handler, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return &Handler{store: s, config: cfg, metrics: newMetrics()}, nil
}

// Router returns the full HTTP handler with the API mounted under prefix
// (e.g. "/api/v1") and metrics at /metrics.
func (h *Handler) Router(prefix string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := h.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", idempotencyHeader},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(h.metrics.registry, promhttp.HandlerOpts{}))

	if prefix == "" || prefix == "/" {
		h.Routes(r)
	} else {
		r.Route(prefix, h.Routes)
	}
	return r
}

// Routes registers all API routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/quiz", h.handleListQuizzes)
		r.Get("/quiz/history", h.handleHistoryList)
		r.Get("/quiz/history/{historyID}", h.handleHistoryDetail)
		r.With(requireRole(model.UserRoleTeacher, model.UserRoleAdmin)).Post("/quiz/manual", h.handleCreateQuiz)
		r.Post("/quiz/generate", h.handleGenerateQuiz)
		r.Get("/quiz/{quizID}", h.handleGetQuiz)
		r.Get("/quiz/{quizID}/questions", h.handleGetQuestions)
		r.Post("/quiz/{quizID}/submit", h.handleSubmit)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/users", h.handleListUsers)
			r.Post("/users", h.handleCreateUser)
			r.Patch("/users/{userID}", h.handleSetUserActive)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError sends a {"detail": msg} body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (h *Handler) handleListQuizzes(w http.ResponseWriter, r *http.Request) {
	skip, ok := queryInt(r, "skip", 0)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "skip must be a non-negative integer")
		return
	}
	limit, ok := queryInt(r, "limit", defaultHistoryLimit)
	if !ok || limit < 1 || limit > maxHistoryLimit {
		writeError(w, http.StatusUnprocessableEntity, "limit must be between 1 and 100")
		return
	}

	quizzes, err := h.store.ListQuizzes(r.URL.Query().Get("course_id"), skip, limit)
	if err != nil {
		slog.Error("failed to list quizzes", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if quizzes == nil {
		quizzes = []model.Quiz{}
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *Handler) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.store.GetQuiz(chi.URLParam(r, "quizID"))
	if err != nil {
		slog.Error("failed to get quiz", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if quiz == nil {
		writeError(w, http.StatusNotFound, "Quiz not found")
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) handleGetQuestions(w http.ResponseWriter, r *http.Request) {
	quizID := chi.URLParam(r, "quizID")
	quiz, err := h.store.GetQuiz(quizID)
	if err != nil {
		slog.Error("failed to get quiz", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if quiz == nil {
		writeError(w, http.StatusNotFound, "Quiz not found")
		return
	}

	questions, err := h.store.GetQuestions(quizID)
	if err != nil {
		slog.Error("failed to get questions", "quiz_id", quizID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	quizID := chi.URLParam(r, "quizID")

	var sub model.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.metrics.submissions.WithLabelValues(outcomeRejected).Inc()
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	quiz, err := h.store.GetQuiz(quizID)
	if err != nil {
		slog.Error("failed to get quiz", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if quiz == nil {
		h.metrics.submissions.WithLabelValues(outcomeRejected).Inc()
		writeError(w, http.StatusNotFound, "Quiz not found")
		return
	}

	questions, err := h.store.GetQuestions(quizID)
	if err != nil {
		slog.Error("failed to get questions", "quiz_id", quizID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(questions) == 0 {
		h.metrics.submissions.WithLabelValues(outcomeRejected).Inc()
		writeError(w, http.StatusBadRequest, "Quiz has no questions")
		return
	}

	out := grading.Grade(questions, sub.Answers)
	res := model.Result{
		QuizID:         quizID,
		Score:          out.Score,
		TotalQuestions: out.TotalQuestions,
		CorrectAnswers: out.CorrectAnswers,
		Answers:        out.Answers,
	}

	key := r.Header.Get(idempotencyHeader)
	saved, duplicate, err := h.store.SaveResult(res, user.ID, key)
	if errors.Is(err, store.ErrKeyReused) {
		h.metrics.submissions.WithLabelValues(outcomeRejected).Inc()
		slog.Warn("idempotency key reused across quizzes", "quiz_id", quizID, "user_id", user.ID, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "Idempotency-Key was already used for another quiz")
		return
	}
	if err != nil {
		slog.Error("failed to save result", "quiz_id", quizID, "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if duplicate {
		h.metrics.submissions.WithLabelValues(outcomeDuplicate).Inc()
		slog.Info("duplicate submission", "quiz_id", quizID, "user_id", user.ID, "result_id", saved.ID)
	} else {
		h.metrics.submissions.WithLabelValues(outcomeGraded).Inc()
		h.metrics.scores.Observe(saved.Score)
		slog.Info("graded submission", "quiz_id", quizID, "user_id", user.ID,
			"score", saved.Score, "correct", saved.CorrectAnswers, "total", saved.TotalQuestions)
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	skip, ok := queryInt(r, "skip", 0)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "skip must be a non-negative integer")
		return
	}
	limit, ok := queryInt(r, "limit", defaultHistoryLimit)
	if !ok || limit < 1 || limit > maxHistoryLimit {
		writeError(w, http.StatusUnprocessableEntity, "limit must be between 1 and 100")
		return
	}

	entries, err := h.store.ListResults(user.ID, skip, limit)
	if err != nil {
		slog.Error("failed to list results", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleHistoryDetail(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	res, err := h.store.GetResult(chi.URLParam(r, "historyID"))
	if err != nil {
		slog.Error("failed to get result", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// Other users' results are reported as missing.
	if res == nil || res.UserID != strconv.FormatInt(user.ID, 10) {
		writeError(w, http.StatusNotFound, "Quiz history not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleCreateQuiz(w http.ResponseWriter, r *http.Request) {
	var req model.QuizImport
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	req.ID = ""
	if err := req.Validate(); err != nil {
		var e *model.Error
		if errors.As(err, &e) {
			writeError(w, http.StatusUnprocessableEntity, e.Msg)
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	quiz, questions := req.Build()
	saved, err := h.store.InsertQuiz(quiz, questions)
	if err != nil {
		slog.Error("failed to create quiz", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	slog.Info("created quiz", "quiz_id", saved.ID, "title", saved.Title, "questions", len(questions))
	writeJSON(w, http.StatusOK, saved)
}

// handleGenerateQuiz always answers 501; quizzes are created manually or imported.
func (h *Handler) handleGenerateQuiz(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotImplemented, "Quiz generation is not available on this server")
}
