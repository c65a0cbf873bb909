package reconcilehttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers the rollup endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(5, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Route("/rollups", func(r chi.Router) {
		r.Get("/summary", h.handleSummary)
		r.Get("/{dimension}", h.handleRollup)
		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Post("/invalidate", h.handleInvalidate)
		})
	})
}
