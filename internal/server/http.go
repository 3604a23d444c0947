package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/certprep/internal/auth"
	"github.com/gokatarajesh/certprep/internal/config"
	"github.com/gokatarajesh/certprep/internal/logging"
	"github.com/gokatarajesh/certprep/internal/metrics"
	"github.com/gokatarajesh/certprep/internal/report"
	"github.com/gokatarajesh/certprep/internal/session"
	httperrors "github.com/gokatarajesh/certprep/pkg/http/errors"
)

// Pinger checks one upstream dependency.
type Pinger func(ctx context.Context) error

// Deps carries everything the router mounts. Nil handlers leave their routes unmounted.
type Deps struct {
	Logger    zerolog.Logger
	Validator auth.TokenValidator
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	CORS      config.CORS
	Limiter   *UserLimiter
	Pingers   map[string]Pinger

	Sessions  *session.HTTPHandlers
	SessionWS http.Handler
	Reports   *report.HTTPHandlers
}

// NewRouter wires health, metrics, the authenticated REST API and the session socket.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(d.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORS.AllowedOrigins,
		AllowedMethods:   d.CORS.AllowedMethods,
		AllowedHeaders:   d.CORS.AllowedHeaders,
		AllowCredentials: d.CORS.AllowCredentials,
		MaxAge:           d.CORS.MaxAge,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httperrors.RespondNotFound(w, httperrors.ErrCodeNotFound, "Route not found")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(logging.IntoContext(r.Context(), d.Logger), 3*time.Second)
		defer cancel()
		if err := pingDependencies(ctx, d.Pingers); err != nil {
			d.Logger.Error().Err(err).Msg("dependency ping failed")
			httperrors.RespondError(w, http.StatusBadGateway, httperrors.ErrCodeUpstreamError, "upstream error")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	if d.SessionWS != nil {
		r.Handle("/ws/sessions", d.SessionWS)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(d.Validator, d.Logger))
		r.Use(auth.RequireAuth)

		if h := d.Sessions; h != nil {
			start := http.Handler(http.HandlerFunc(h.Start))
			if d.Limiter != nil {
				start = d.Limiter.Middleware(start)
			}
			r.Method(http.MethodPost, "/modules/{moduleID}/tests", start)

			r.Route("/sessions/{sessionID}", func(r chi.Router) {
				r.Get("/", h.Get)
				r.Delete("/", h.Abandon)
				r.Put("/answers/{questionID}", h.SelectAnswer)
				r.Post("/next", h.Next)
				r.Post("/previous", h.Previous)
				r.Post("/goto", h.GoTo)
				r.Post("/submit", h.Submit)
			})
		}

		if h := d.Reports; h != nil {
			r.Get("/results", h.History)
			r.Route("/results/{resultID}", func(r chi.Router) {
				r.Get("/", h.Open)
				r.Delete("/", h.Close)
				r.Post("/export", h.Export)
			})
		}
	})

	return r
}

// NewHTTPServer wraps the router with the configured listen address.
func NewHTTPServer(cfg *config.App, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func pingDependencies(ctx context.Context, pingers map[string]Pinger) error {
	for name, ping := range pingers {
		if err := ping(ctx); err != nil {
			return &dependencyError{name: name, err: err}
		}
	}
	return nil
}

type dependencyError struct {
	name string
	err  error
}

func (e *dependencyError) Error() string { return e.name + ": " + e.err.Error() }
func (e *dependencyError) Unwrap() error { return e.err }
