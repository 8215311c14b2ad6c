package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/preupac/simulador/internal/auth"
	"github.com/preupac/simulador/internal/handler/views"
	appI18n "github.com/preupac/simulador/internal/i18n"
	"github.com/preupac/simulador/internal/llm"
	"github.com/preupac/simulador/internal/llm/prompts"
	"github.com/preupac/simulador/internal/model"
	"github.com/preupac/simulador/internal/store"
)

const (
	maxUploadBytes = 10 << 20
	draftTimeout   = 60 * time.Second
)

func (h *Handler) questionsData(ctx context.Context, form views.QuestionForm) (views.QuestionsData, error) {
	d := views.QuestionsData{
		Form:     form,
		Subjects: model.Subjects,
		Drafting: h.config.DraftingEnabled,
	}
	for _, v := range prompts.Difficulties {
		d.Difficulties = append(d.Difficulties, string(v))
	}
	questions, err := h.store.ListQuestions(ctx)
	d.Questions = questions
	return d, err
}

// renderQuestions shows the question page. A failed listing is reported
// inline unless errMsg already carries an error.
func (h *Handler) renderQuestions(w http.ResponseWriter, r *http.Request, status int, form views.QuestionForm, flash, errMsg string) {
	d, err := h.questionsData(r.Context(), form)
	if err != nil {
		slog.Error("failed to list questions", "error", err)
		if errMsg == "" {
			errMsg, _ = sheetMessage(r.Context(), err)
		}
	}
	h.render(w, r, status, views.QuestionsPage(d, flash, errMsg))
}

func (h *Handler) handleQuestionsPage(w http.ResponseWriter, r *http.Request) {
	h.renderQuestions(w, r, http.StatusOK, views.QuestionForm{Correct: model.OptionA}, "", "")
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form := views.QuestionForm{
		Text:    r.FormValue("texto"),
		OptionA: r.FormValue("op_a"),
		OptionB: r.FormValue("op_b"),
		OptionC: r.FormValue("op_c"),
		Correct: model.Option(r.FormValue("correcta")),
	}

	_, err := h.store.InsertQuestion(ctx, model.Question{
		Text:    form.Text,
		OptionA: form.OptionA,
		OptionB: form.OptionB,
		OptionC: form.OptionC,
		Correct: form.Correct,
	})
	if err != nil {
		slog.Error("failed to insert question", "error", err)
		msg, status := sheetMessage(ctx, err)
		h.renderQuestions(w, r, status, form, "", msg)
		return
	}
	h.renderQuestions(w, r, http.StatusOK, views.QuestionForm{Correct: model.OptionA}, appI18n.T(ctx, "QuestionSaved"), "")
}

func (h *Handler) handleUploadQuestions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	empty := views.QuestionForm{Correct: model.OptionA}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "file too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("questions_file")
	if err != nil {
		http.Error(w, "no file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	var questions []model.QuestionImport
	if err := json.Unmarshal(data, &questions); err != nil {
		slog.Warn("invalid questions upload", "filename", header.Filename, "error", err)
		h.renderQuestions(w, r, http.StatusBadRequest, empty, "", appI18n.T(ctx, "ErrUploadInvalid"))
		return
	}

	n, err := h.store.ImportQuestions(ctx, questions)
	if err != nil {
		slog.Error("failed to import questions", "filename", header.Filename, "error", err)
		msg, status := sheetMessage(ctx, err)
		h.renderQuestions(w, r, status, empty, "", msg)
		return
	}

	slog.Info("uploaded questions via tutor page", "filename", header.Filename, "count", n)
	h.renderQuestions(w, r, http.StatusOK, empty, appI18n.Tp(ctx, "UploadDone", n), "")
}

func (h *Handler) handleDraftQuestion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	empty := views.QuestionForm{Correct: model.OptionA}
	if h.drafter == nil {
		http.Error(w, "question drafting is disabled", http.StatusNotFound)
		return
	}

	subject, err := model.ParseSubject(r.FormValue("subject"))
	if err != nil {
		h.renderQuestions(w, r, http.StatusBadRequest, empty, "", appI18n.Td(ctx, "ErrInvalidInput", map[string]any{"Detail": err.Error()}))
		return
	}
	difficulty := prompts.Difficulty(r.FormValue("difficulty"))
	if !prompts.IsValidDifficulty(string(difficulty)) {
		difficulty = prompts.DifficultyMedium
	}

	dctx, cancel := context.WithTimeout(ctx, draftTimeout)
	defer cancel()
	q, err := h.drafter.DraftQuestion(dctx, llm.DraftRequest{
		Subject:    subject,
		Topic:      r.FormValue("topic"),
		Difficulty: difficulty,
		Lang:       appI18n.Lang(ctx),
	})
	if err != nil {
		slog.Error("question draft failed", "error", err)
		h.renderQuestions(w, r, http.StatusBadGateway, empty, "", appI18n.T(ctx, "DraftFailed"))
		return
	}

	form := views.QuestionForm{Text: q.Text, OptionA: q.OptionA, OptionB: q.OptionB, OptionC: q.OptionC, Correct: q.Correct}
	h.renderQuestions(w, r, http.StatusOK, form, appI18n.T(ctx, "DraftReady"), "")
}

func (h *Handler) renderUsers(w http.ResponseWriter, r *http.Request, status int, flash, errMsg string) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		slog.Error("failed to list users", "error", err)
		if errMsg == "" {
			errMsg, _ = sheetMessage(r.Context(), err)
		}
	}
	d := views.UsersData{Users: users, Roles: []model.Role{model.RoleStudent, model.RoleTutor}}
	h.render(w, r, status, views.UsersPage(d, flash, errMsg))
}

func (h *Handler) handleUsersPage(w http.ResponseWriter, r *http.Request) {
	h.renderUsers(w, r, http.StatusOK, "", "")
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := strings.TrimSpace(r.FormValue("usuario"))
	name := strings.TrimSpace(r.FormValue("nombre"))
	password := r.FormValue("password")

	role, err := model.ParseRole(r.FormValue("rol"))
	if err != nil {
		h.renderUsers(w, r, http.StatusBadRequest, "", appI18n.Td(ctx, "ErrInvalidInput", map[string]any{"Detail": err.Error()}))
		return
	}

	if password != "" && r.FormValue("hash") != "" {
		hash, err := auth.HashPassword(password)
		if err != nil {
			slog.Error("failed to hash password", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		password = hash
	}

	err = h.store.CreateUser(ctx, model.User{Username: username, Password: password, Name: name, Role: role})
	if err != nil {
		msg, status := sheetMessage(ctx, err)
		if !errors.Is(err, store.ErrUserExists) && !errors.Is(err, store.ErrInvalid) {
			slog.Error("failed to create user", "error", err)
		}
		h.renderUsers(w, r, status, "", msg)
		return
	}
	h.renderUsers(w, r, http.StatusOK, appI18n.T(ctx, "UserCreated"), "")
}
