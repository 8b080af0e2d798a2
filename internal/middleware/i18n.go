package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}

var LocaleKey = localeContextKey{}

// SupportedLocales lists the locales user-facing messages are translated to.
var SupportedLocales = []language.Tag{language.English, language.Spanish}

var matcher = language.NewMatcher(SupportedLocales)

// I18N stores the negotiated locale ("en" or "es") in the request context.
func I18N(defaultLocale string) func(http.Handler) http.Handler {
	fallback := normalizeLocale(defaultLocale)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := detectLocale(r, fallback)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			w.Header().Set("Content-Language", locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func detectLocale(r *http.Request, fallback string) string {
	if fallback == "" {
		fallback = "en"
	}
	hints := make([]string, 0, 2)
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		hints = append(hints, v)
	}
	if v := strings.TrimSpace(r.Header.Get("Accept-Language")); v != "" {
		hints = append(hints, v)
	}
	if len(hints) == 0 {
		return fallback
	}
	tag, _, confidence := language.MatchStrings(matcher, hints...)
	if confidence == language.No {
		return fallback
	}
	base, _ := tag.Base()
	return base.String()
}

func normalizeLocale(locale string) string {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return "en"
	}
	_, idx, confidence := matcher.Match(tag)
	if confidence == language.No {
		return "en"
	}
	base, _ := SupportedLocales[idx].Base()
	return base.String()
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return "en"
}
