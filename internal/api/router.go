package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/ideahub/internal/api/middleware"
	"github.com/kiranshivaraju/ideahub/internal/api/handler"
	"github.com/kiranshivaraju/ideahub/internal/api/response"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth       *mw.Auth
	RateLimit  *mw.RateLimit
	IPThrottle func(http.Handler) http.Handler
	CORSOrigin string

	Ideas         *handler.Ideas
	HealthHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Metrics)
	r.Use(mw.Recovery)
	r.Use(mw.CORS(deps.CORSOrigin))

	r.MethodNotAllowed(handler.MethodNotAllowed)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not found", nil)
	})

	// Public endpoints
	r.Get("/health", orNotImplemented(deps.HealthHandler))
	r.Handle("/metrics", promhttp.Handler())

	// Protected routes. Middleware on the sub-router runs before method
	// matching, so unsupported verbs still authenticate first.
	r.Route("/ideas", func(r chi.Router) {
		if deps.IPThrottle != nil {
			r.Use(deps.IPThrottle)
		}
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.Auth.RequirePermission)
		r.Use(deps.RateLimit.Limit)

		r.MethodNotAllowed(handler.MethodNotAllowed)

		r.Get("/", orNotImplemented(handlerFunc(deps.Ideas, (*handler.Ideas).List)))
		r.Post("/", orNotImplemented(handlerFunc(deps.Ideas, (*handler.Ideas).Create)))
		r.Put("/", handler.MissingID)
		r.Delete("/", handler.MissingID)

		r.Get("/{id}", orNotImplemented(handlerFunc(deps.Ideas, (*handler.Ideas).Get)))
		r.Put("/{id}", orNotImplemented(handlerFunc(deps.Ideas, (*handler.Ideas).Update)))
		r.Delete("/{id}", orNotImplemented(handlerFunc(deps.Ideas, (*handler.Ideas).Delete)))
	})

	return r
}

// handlerFunc binds method to h, or returns nil when h is nil.
func handlerFunc(h *handler.Ideas, method func(*handler.Ideas, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	if h == nil {
		return nil
	}
	return func(w http.ResponseWriter, r *http.Request) { method(h, w, r) }
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "Endpoint not yet implemented", nil)
	}
}
