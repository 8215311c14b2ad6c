package handler

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/preupac/simulador/internal/handler/views"
	appI18n "github.com/preupac/simulador/internal/i18n"
	"github.com/preupac/simulador/internal/model"
	"github.com/preupac/simulador/internal/store"
)

// handleResults lists the user's finished ensayos; tutors see everyone's.
func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := model.UserFromContext(ctx)

	d := views.ResultsData{All: user.IsTutor()}
	filter := user.Username
	if d.All {
		filter = ""
	}
	results, err := h.store.ListResults(ctx, filter)
	if err != nil {
		slog.Error("failed to list results", "error", err)
		msg, _ := sheetMessage(ctx, err)
		h.render(w, r, http.StatusOK, views.ResultsPage(d, msg))
		return
	}
	d.Results = results
	d.Average, d.Best = store.Summarize(results)

	if d.All {
		users, err := h.store.ListUsers(ctx)
		if err != nil {
			slog.Warn("failed to list users for names", "error", err)
		}
		d.Names = make(map[string]string, len(users))
		for _, u := range users {
			d.Names[u.Username] = u.Name
		}
	}
	h.render(w, r, http.StatusOK, views.ResultsPage(d, ""))
}

func (h *Handler) handleSettingsPage(w http.ResponseWriter, r *http.Request) {
	d := views.SettingsData{Languages: appI18n.Languages(), Current: appI18n.Lang(r.Context())}
	h.render(w, r, http.StatusOK, views.SettingsPage(d, ""))
}

func (h *Handler) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	lang := r.FormValue("lang")
	if !slices.Contains(appI18n.Languages(), lang) {
		http.Error(w, "unsupported language", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     appI18n.CookieName,
		Value:    lang,
		Path:     h.cookiePath(),
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	// Render in the new language right away.
	ctx := appI18n.WithLanguage(r.Context(), lang)
	r = r.WithContext(ctx)
	d := views.SettingsData{Languages: appI18n.Languages(), Current: lang}
	h.render(w, r, http.StatusOK, views.SettingsPage(d, appI18n.T(ctx, "SettingsSaved")))
}
