package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ratepath/internal/api/http/handlers"
	"ratepath/internal/api/http/mw"
	"ratepath/internal/metrics"
)

func BuildRouter(
	h *handlers.Handler,
	logMW *mw.LoggingMiddleware,
	gzipMW *mw.GzipMiddleware,
	rateLimitMW *mw.RateLimitMiddleware,
	jwtMW *mw.JWTMiddleware,
	corsMW *mw.CORSMiddleware,
) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	if logMW != nil {
		r.Use(logMW.Handler)
	}
	if gzipMW != nil {
		r.Use(gzipMW.Handler)
	}
	if corsMW != nil {
		r.Use(corsMW.Handler())
	}

	// tech endpoint not auth
	r.Get("/healthz", h.Healthz)
	r.Get("/readiness", h.Readiness)
	r.Mount("/metrics", metrics.Handler())

	// conversion endpoints behind rate limit and jwt
	protected := chi.NewRouter()
	if rateLimitMW != nil {
		protected.Use(rateLimitMW.Handler)
	}
	if jwtMW != nil {
		protected.Use(jwtMW.Handler)
	}

	protected.Route("/tokens", func(tt chi.Router) {
		tt.Get("/{token0}/to/{token1}", h.Convert)
	})

	r.Mount("/", protected)
	return r
}
