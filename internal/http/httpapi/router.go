package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hadiwinata/mediaforge/internal/http/handlers"
	"github.com/hadiwinata/mediaforge/internal/middleware"
)

// Options carries router-level settings.
type Options struct {
	AdminToken      string
	SubmitPerMinute int
}

// NewRouter wires the public and operator surfaces.
func NewRouter(app *handlers.App, opts Options) http.Handler {
	if opts.SubmitPerMinute <= 0 {
		opts.SubmitPerMinute = 60
	}

	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestID,
		middleware.Logger(app.Logger),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.WithIdentity)

			r.Route("/jobs", func(r chi.Router) {
				r.With(middleware.RateLimit(opts.SubmitPerMinute, time.Minute)).Post("/", app.SubmitJob)
				r.Get("/", app.ListJobs)
				r.Get("/{job_id}", app.GetJob)
				r.Post("/{job_id}/cancel", app.CancelJob)
			})

			r.Route("/credits", func(r chi.Router) {
				r.Get("/balance", app.CreditBalance)
				r.Get("/transactions", app.CreditTransactions)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminToken(opts.AdminToken))
			r.Get("/jobs", app.AdminListJobs)
			r.Post("/credits/grant", app.AdminGrant)
			r.Post("/jobs/{job_id}/cancel", app.AdminCancelJob)
			r.Put("/maintenance", app.AdminMaintenance)
		})
	})

	return r
}
