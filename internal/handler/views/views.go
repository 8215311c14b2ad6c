// Package views renders the HTML pages as templ components. The *.templ
// sources are compiled to *_templ.go with `templ generate`.
package views

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	appI18n "github.com/preupac/simulador/internal/i18n"
	"github.com/preupac/simulador/internal/model"
)

//go:generate go run github.com/a-h/templ/cmd/templ@v0.3.977 generate

//go:embed static
var staticFS embed.FS

// Static serves widget.js and app.css.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServerFS(sub)
}

// Nav identifies the active sidebar entry.
type Nav string

const (
	NavNone      Nav = ""
	NavHome      Nav = "home"
	NavExam      Nav = "exam"
	NavResults   Nav = "results"
	NavSettings  Nav = "settings"
	NavQuestions Nav = "questions"
	NavUsers     Nav = "users"
)

// Page carries what the layout needs.
type Page struct {
	Title  string // message ID
	Active Nav
	Flash  string // translated success message
	Error  string // translated inline error
}

func tr(ctx context.Context, id string) string { return appI18n.T(ctx, id) }

func trd(ctx context.Context, id string, data map[string]any) string {
	return appI18n.Td(ctx, id, data)
}

func trn(ctx context.Context, id string, n int) string { return appI18n.Tp(ctx, id, n) }

// path prefixes an app path with the deployment base path.
func path(ctx context.Context, p string) string { return model.BasePathFromContext(ctx) + p }

func csrf(ctx context.Context) string { return model.CSRFTokenFromContext(ctx) }

func currentUser(ctx context.Context) *model.User { return model.UserFromContext(ctx) }

func lang(ctx context.Context) string { return appI18n.Lang(ctx) }

func pct(v float64) string { return fmt.Sprintf("%.1f%%", v) }

func seconds(d time.Duration) int { return int(d / time.Second) }

func date(t time.Time) string { return t.Local().Format("2006-01-02 15:04") }

// resultScore is the percentage of a graded result, or answered/total.
func resultScore(r model.Result) string {
	if r.Graded {
		return pct(r.Score)
	}
	return strconv.Itoa(r.Answered) + "/" + strconv.Itoa(r.Total)
}

// gradedOr returns v for graded results and "-" otherwise.
func gradedOr(r model.Result, v string) string {
	if !r.Graded {
		return "-"
	}
	return v
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatClock renders seconds as H:MM:SS or MM:SS.
func formatClock(secs int) string {
	if secs < 0 {
		secs = 0
	}
	h, m, s := secs/3600, secs/60%60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
