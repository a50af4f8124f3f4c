package settlementhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers settlement endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(30, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/sellers/{sellerID}/settlements", h.handleQuery)
	r.Post("/sellers/{sellerID}/dashboard", h.handleCreateSession)

	r.Route("/dashboard/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleDeleteSession)
		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Post("/period", h.handleSetPeriod)
			gr.Post("/range", h.handleSetRange)
			gr.Post("/status", h.handleSetStatus)
			gr.Post("/page", h.handleSetPage)
			gr.Post("/page-size", h.handleSetPageSize)
			gr.Post("/drill", h.handleDrill)
			gr.Post("/back", h.handleBack)
		})
	})
}

// rateLimitKey throttles dashboard mutations per session, falling back to the client IP.
func rateLimitKey(r *http.Request) (string, error) {
	if id := chi.URLParam(r, "sessionID"); id != "" {
		return "session:" + id, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
