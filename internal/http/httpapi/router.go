package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/goonidz/purple-sub000/internal/http/handlers"
	"github.com/goonidz/purple-sub000/internal/infra"
	"github.com/goonidz/purple-sub000/internal/middleware"
	"github.com/goonidz/purple-sub000/internal/telemetry"
)

// NewRouter wires the HTTP surface: job submission and inspection under /v1,
// plus health, metrics and the static asset mount.
func NewRouter(app *handlers.App, cfg *infra.Config, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(log),
		middleware.CORS(cfg.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/projects/{projectID}/jobs", func(r chi.Router) {
			r.With(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)).
				Post("/", app.SubmitJob)
			r.Get("/active", app.ListActiveJobs)
		})
		r.Route("/jobs/{jobID}", func(r chi.Router) {
			r.Get("/", app.GetJob)
			r.Post("/cancel", app.CancelJob)
		})
	})

	if cfg.StoragePath != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StoragePath)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}
