package i18n

import (
	"context"
	"net/http"
)

// CookieName holds the language picked on the settings page.
const CookieName = "lang"

type langCtxKey struct{}

// Middleware injects a localizer into every request context. The language
// comes from the settings cookie, then Accept-Language, then the default.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var pref string
		if c, err := r.Cookie(CookieName); err == nil {
			pref = c.Value
		}
		lang := Match(pref, r.Header.Get("Accept-Language"))
		next.ServeHTTP(w, r.WithContext(WithLanguage(r.Context(), lang)))
	})
}

// WithLanguage stores the language and its localizer in ctx.
func WithLanguage(ctx context.Context, lang string) context.Context {
	ctx = WithLocalizer(ctx, NewLocalizer(lang))
	return context.WithValue(ctx, langCtxKey{}, lang)
}

// Lang returns the language chosen for the request.
func Lang(ctx context.Context) string {
	if l, ok := ctx.Value(langCtxKey{}).(string); ok {
		return l
	}
	return defaultLang
}
