package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"photobooth/internal/http/handlers"
	"photobooth/internal/middleware"
)

// NewRouter wires the photobooth routes. metricsHandler may be nil, in which
// case /metrics is not exposed.
func NewRouter(app *handlers.App, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	origins := []string{"*"}
	locale := "en"
	rateLimit := 0
	if app.Config != nil {
		origins = app.Config.CORSOrigins
		locale = app.Config.DefaultLocale
		rateLimit = app.Config.RateLimitPerMin
	}

	r.Use(middleware.RequestID)
	if app.Config != nil && app.Config.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(
		middleware.Logger(app.Logger),
		chimw.Recoverer,
		middleware.CORS(origins),
		middleware.I18N(locale),
	)

	r.Get("/api/health", app.Health)
	r.With(middleware.RateLimit(rateLimit, time.Minute)).Post("/api/generate", app.Generate)
	r.Get("/download/{id}", app.Download)

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	return r
}
