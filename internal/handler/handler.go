package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/preupac/simulador/internal/auth"
	"github.com/preupac/simulador/internal/exam"
	"github.com/preupac/simulador/internal/handler/views"
	appI18n "github.com/preupac/simulador/internal/i18n"
	"github.com/preupac/simulador/internal/llm"
	"github.com/preupac/simulador/internal/model"
	"github.com/preupac/simulador/internal/sheet"
	"github.com/preupac/simulador/internal/store"
)

// Drafter suggests questions for tutors. *llm.Client implements it.
type Drafter interface {
	DraftQuestion(ctx context.Context, req llm.DraftRequest) (model.Question, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	exams    *exam.Registry
	sessions *auth.Sessions
	drafter  Drafter
	config   model.AppConfig
}

// New creates a new Handler. drafter may be nil to disable question drafting.
func New(s *store.Store, exams *exam.Registry, sessions *auth.Sessions, drafter Drafter, cfg model.AppConfig) (*Handler, error) {
	if s == nil || exams == nil || sessions == nil {
		return nil, errors.New("handler: store, exam registry and sessions are required")
	}
	cfg.BasePath = strings.TrimRight(cfg.BasePath, "/")
	cfg.DraftingEnabled = drafter != nil
	h := &Handler{store: s, exams: exams, sessions: sessions, drafter: drafter, config: cfg}
	exams.OnExpire(h.flushResult)
	return h, nil
}

// Routes registers all HTTP routes. corsOrigins lists the origins allowed
// to call the exam widget API from another site.
func (h *Handler) Routes(r chi.Router, corsOrigins []string) {
	r.Handle("/static/*", http.StripPrefix(h.path("/static/"), views.Static()))

	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/", h.handleHome)
			r.Get("/exam", h.handleExamSetup)
			r.Post("/exam/start", h.handleStartExam)
			r.Get("/exam/{examID}", h.handleExamPage)
			r.Post("/exam/{examID}/finish", h.handleFinishExam)
			r.Get("/results", h.handleResults)
			r.Get("/settings", h.handleSettingsPage)
			r.Post("/settings", h.handleSaveSettings)

			r.Route("/tutor", func(r chi.Router) {
				r.Use(requireRole(model.RoleTutor))
				r.Get("/questions", h.handleQuestionsPage)
				r.Post("/questions", h.handleCreateQuestion)
				r.Post("/questions/upload", h.handleUploadQuestions)
				r.Post("/questions/draft", h.handleDraftQuestion)
				r.Get("/users", h.handleUsersPage)
				r.Post("/users", h.handleCreateUser)
			})
		})
	})

	r.Route("/api/exam/{examID}", func(r chi.Router) {
		if len(corsOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   corsOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders:   []string{"Content-Type", csrfHeaderName},
				ExposedHeaders:   []string{csrfHeaderName},
				AllowCredentials: true,
				MaxAge:           300,
			}))
		}
		r.Use(h.csrfMiddleware)
		r.Use(h.requireAuth)
		r.Get("/", h.apiState)
		r.Post("/answer", h.apiAnswer)
		r.Post("/clear", h.apiClear)
		r.Post("/pause", h.apiPause)
		r.Post("/resume", h.apiResume)
		r.Post("/finish", h.apiFinish)
	})
}

// BasePathMiddleware stores the configured URL prefix in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// path prefixes an absolute application path with the base path.
func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// sheetMessage turns a spreadsheet or store error into an inline message
// and the status code to send with it.
func sheetMessage(ctx context.Context, err error) (string, int) {
	var (
		mc *sheet.MissingColumnError
		mw *sheet.WorksheetError
	)
	switch {
	case errors.As(err, &mc):
		return appI18n.Td(ctx, "ErrColumnMissing", map[string]any{"Worksheet": mc.Worksheet, "Column": mc.Column}), http.StatusInternalServerError
	case errors.As(err, &mw):
		return appI18n.Td(ctx, "ErrWorksheetMissing", map[string]any{"Worksheet": mw.Worksheet}), http.StatusInternalServerError
	case errors.Is(err, store.ErrInvalid):
		return appI18n.Td(ctx, "ErrInvalidInput", map[string]any{"Detail": detail(err)}), http.StatusBadRequest
	case errors.Is(err, store.ErrUserExists):
		return appI18n.T(ctx, "ErrUserExists"), http.StatusConflict
	}
	return appI18n.T(ctx, "ErrSheetUnavailable"), http.StatusBadGateway
}

// detail drops the sentinel text from a validation error.
func detail(err error) string {
	return strings.Replace(err.Error(), store.ErrInvalid.Error()+": ", "", 1)
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := model.UserFromContext(ctx)

	var d views.HomeData
	count, err := h.store.QuestionCount(ctx)
	if err != nil {
		slog.Error("failed to count questions", "error", err)
		msg, _ := sheetMessage(ctx, err)
		h.render(w, r, http.StatusOK, views.HomePage(d, msg))
		return
	}
	d.QuestionCount = count

	results, err := h.store.ListResults(ctx, user.Username)
	if err != nil {
		slog.Error("failed to list results", "error", err)
		msg, _ := sheetMessage(ctx, err)
		h.render(w, r, http.StatusOK, views.HomePage(d, msg))
		return
	}
	d.Attempts = len(results)
	d.Average, d.Best = store.Summarize(results)
	if len(results) > 5 {
		results = results[:5]
	}
	d.Recent = results

	h.render(w, r, http.StatusOK, views.HomePage(d, ""))
}
