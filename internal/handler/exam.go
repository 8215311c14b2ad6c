package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/preupac/simulador/internal/exam"
	"github.com/preupac/simulador/internal/handler/views"
	appI18n "github.com/preupac/simulador/internal/i18n"
	"github.com/preupac/simulador/internal/model"
)

func presetViews() []views.PresetView {
	out := make([]views.PresetView, 0, len(model.Subjects))
	for _, s := range model.Subjects {
		p := exam.Presets[s]
		out = append(out, views.PresetView{Subject: s, Questions: p.Questions, Minutes: int(p.Duration / time.Minute)})
	}
	return out
}

func defaultSetup() views.SetupData {
	p := exam.Presets[model.SubjectMath]
	return views.SetupData{
		Presets:      presetViews(),
		Subject:      model.SubjectMath,
		Mode:         model.ModeSheet,
		Count:        p.Questions,
		Minutes:      int(p.Duration / time.Minute),
		MaxQuestions: exam.MaxQuestions,
	}
}

func (h *Handler) handleExamSetup(w http.ResponseWriter, r *http.Request) {
	d := defaultSetup()
	n, err := h.store.QuestionCount(r.Context())
	if err != nil {
		slog.Error("failed to count questions", "error", err)
		msg, _ := sheetMessage(r.Context(), err)
		h.render(w, r, http.StatusOK, views.ExamSetupPage(d, msg))
		return
	}
	d.BankSize = n
	h.render(w, r, http.StatusOK, views.ExamSetupPage(d, ""))
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := model.UserFromContext(ctx)

	d := defaultSetup()
	d.Key = strings.TrimSpace(r.FormValue("key"))
	d.Count, _ = strconv.Atoi(r.FormValue("count"))
	d.Minutes, _ = strconv.Atoi(r.FormValue("minutes"))
	d.Mode = model.ExamMode(r.FormValue("mode"))

	fail := func(status int, msg string) {
		h.render(w, r, status, views.ExamSetupPage(d, msg))
	}
	invalid := func(err error) {
		fail(http.StatusBadRequest, appI18n.Td(ctx, "ErrInvalidInput", map[string]any{"Detail": err.Error()}))
	}

	subject, err := model.ParseSubject(r.FormValue("subject"))
	if err != nil {
		invalid(err)
		return
	}
	d.Subject = subject

	setup := exam.Setup{
		Subject:  subject,
		Mode:     d.Mode,
		Count:    d.Count,
		Duration: time.Duration(d.Minutes) * time.Minute,
	}
	switch d.Mode {
	case model.ModeBank:
		questions, err := h.store.ListQuestions(ctx)
		if err != nil {
			slog.Error("failed to list questions", "error", err)
			msg, status := sheetMessage(ctx, err)
			fail(status, msg)
			return
		}
		d.BankSize = len(questions)
		if len(questions) == 0 {
			fail(http.StatusBadRequest, appI18n.T(ctx, "ErrNoBankQuestions"))
			return
		}
		setup.Bank = exam.PickBank(questions, d.Count, h.config.ShuffleBank)
	default:
		key, err := exam.ParseKey(d.Key)
		if err != nil {
			invalid(err)
			return
		}
		setup.Key = key
	}

	s := h.exams.Create(user.Username)
	if err := s.Configure(setup); err != nil {
		h.exams.Remove(s.ID())
		invalid(err)
		return
	}
	if err := s.Start(); err != nil {
		h.exams.Remove(s.ID())
		slog.Error("failed to start exam", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	slog.Info("exam started", "id", s.ID(), "usuario", user.Username, "materia", subject, "modo", setup.Mode)
	http.Redirect(w, r, h.path("/exam/"+s.ID()), http.StatusSeeOther)
}

// session looks up the exam in the URL for the logged-in user.
func (h *Handler) session(r *http.Request) (*exam.Session, error) {
	user := model.UserFromContext(r.Context())
	return h.exams.Get(chi.URLParam(r, "examID"), user.Username)
}

// handleExamPage shows the taking screen, or the review once the exam is
// over (finished by the student or by the clock).
func (h *Handler) handleExamPage(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		http.Error(w, appI18n.T(r.Context(), "ErrExamNotFound"), http.StatusNotFound)
		return
	}
	if s.Phase() == exam.PhaseTaking {
		h.render(w, r, http.StatusOK, views.ExamPage(views.NewExamData(s.State())))
		return
	}
	h.renderReview(w, r, s)
}

func (h *Handler) handleFinishExam(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		http.Error(w, appI18n.T(r.Context(), "ErrExamNotFound"), http.StatusNotFound)
		return
	}
	if _, err := s.Finish(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	http.Redirect(w, r, h.path("/exam/"+s.ID()), http.StatusSeeOther)
}

func (h *Handler) renderReview(w http.ResponseWriter, r *http.Request, s *exam.Session) {
	sum, err := s.Summary()
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	saveErr := ""
	if err := h.saveResult(r.Context(), s, sum); err != nil {
		saveErr = resultWarning(r, err)
	}
	h.render(w, r, http.StatusOK, views.ReviewPage(views.ReviewData{ID: s.ID(), Summary: sum, Saved: saveErr == ""}, saveErr))
}

// saveResult appends the result row once per session. A failed write is
// retried the next time the review is shown.
func (h *Handler) saveResult(ctx context.Context, s *exam.Session, sum exam.Summary) error {
	if !s.MarkSaved() {
		return nil
	}
	res := sum.Result(uuid.NewString(), s.Owner(), time.Now())
	if err := h.store.InsertResult(ctx, res); err != nil {
		s.UnmarkSaved()
		slog.Error("failed to save result", "exam", s.ID(), "error", err)
		return err
	}
	slog.Info("exam finished", "id", s.ID(), "usuario", s.Owner(), "respondidas", sum.Answered, "puntaje", sum.Score)
	return nil
}

// flushResult saves the result of a finished session whose student never
// came back to the review page.
func (h *Handler) flushResult(ctx context.Context, s *exam.Session) error {
	sum, err := s.Summary()
	if err != nil {
		return nil
	}
	return h.saveResult(ctx, s, sum)
}

// resultWarning explains a result that could not be saved.
func resultWarning(r *http.Request, err error) string {
	msg, _ := sheetMessage(r.Context(), err)
	return appI18n.T(r.Context(), "ErrResultNotSaved") + " " + msg
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, exam.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, exam.ErrWrongPhase), errors.Is(err, exam.ErrPaused):
		return http.StatusConflict
	case errors.Is(err, exam.ErrQuestionRange), errors.Is(err, exam.ErrInvalidOption):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
