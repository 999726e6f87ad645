package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appai "github.com/depscan-io/depscan/internal/application/ai"
	appauth "github.com/depscan-io/depscan/internal/application/auth"
	appintegrations "github.com/depscan-io/depscan/internal/application/integrations"
	appscans "github.com/depscan-io/depscan/internal/application/scans"
	domai "github.com/depscan-io/depscan/internal/domain/ai"
	"github.com/depscan-io/depscan/internal/middleware"
)

type Router struct {
	authSvc         *appauth.Service
	scansSvc        *appscans.Service
	aiSvc           *appai.Service
	integrationsSvc *appintegrations.Service

	jwtSecret      []byte
	maxUploadBytes int64
}

type Options struct {
	AllowedOrigins []string
	Metrics        *middleware.Metrics
	HealthCheckers map[string]middleware.HealthChecker
}

func NewRouter(authSvc *appauth.Service, scansSvc *appscans.Service, aiSvc *appai.Service, integrationsSvc *appintegrations.Service, jwtSecret []byte, maxUploadBytes int64, opts Options) http.Handler {
	r := &Router{
		authSvc:         authSvc,
		scansSvc:        scansSvc,
		aiSvc:           aiSvc,
		integrationsSvc: integrationsSvc,
		jwtSecret:       jwtSecret,
		maxUploadBytes:  maxUploadBytes,
	}

	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware)
	if opts.Metrics != nil {
		mux.Use(opts.Metrics.Middleware(func(req *http.Request) string {
			return chi.RouteContext(req.Context()).RoutePattern()
		}))
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	mux.Use(middleware.RateLimitMiddleware(20, 40))

	mux.Get("/health", middleware.HealthHandler(opts.HealthCheckers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics.Handler())
	}

	mux.Route("/api", func(api chi.Router) {
		api.Post("/auth/register", r.wrap(r.handleRegister))
		api.Post("/auth/login", r.wrap(r.handleLogin))

		// CI/CD systems call this with the integration's token, no JWT.
		api.Post("/integrations/webhook/{token}", r.wrap(r.handleWebhook))

		api.Group(func(authed chi.Router) {
			authed.Use(middleware.JWTAuth(r.jwtSecret))

			authed.Post("/auth/logout", r.wrap(r.handleLogout))
			authed.Get("/auth/profile", r.wrap(r.handleProfile))

			authed.Route("/scans", func(rt chi.Router) {
				rt.Post("/upload", r.wrap(r.handleUpload))
				rt.Get("/", r.wrap(r.handleListScans))
				rt.Get("/summary", r.wrap(r.handleSummary))
				rt.Get("/{id}", r.wrap(r.handleGetScan))
				rt.Delete("/{id}", r.wrap(r.handleDeleteScan))
				rt.Get("/{id}/log", r.wrap(r.handleScanLog))
				rt.Get("/{id}/report", r.wrap(r.handleScanReport))
				rt.Get("/{id}/export/csv", r.wrap(r.handleExportCSV))
				rt.Post("/{id}/analyze", r.wrap(r.handleAnalyze))
				rt.Get("/{id}/analyses", r.wrap(r.handleAnalysisHistory))
				rt.Patch("/{id}/vulnerabilities/{vulnID}/suppress", r.wrap(r.handleSuppress))
			})

			authed.Route("/integrations", func(rt chi.Router) {
				rt.Post("/", r.wrap(r.handleCreateIntegration))
				rt.Get("/", r.wrap(r.handleListIntegrations))
				rt.Get("/{id}", r.wrap(r.handleGetIntegration))
				rt.Delete("/{id}", r.wrap(r.handleDeleteIntegration))
				rt.Post("/{id}/trigger", r.wrap(r.handleTriggerPipeline))
				rt.Post("/{id}/list-resources", r.wrap(r.handleListPipelineResources))
			})
		})
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequestError marks handler-level validation failures.
type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return badRequestError{msg: msg} }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			var br badRequestError
			switch {
			case errors.As(err, &br):
				http.Error(w, br.msg, http.StatusBadRequest)
			case errors.Is(err, appscans.ErrUnsupportedFile):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, appauth.ErrUserExists):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, appscans.ErrFileTooLarge):
				http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			case errors.Is(err, appauth.ErrInvalidCredentials), errors.Is(err, appauth.ErrInactiveUser):
				http.Error(w, err.Error(), http.StatusUnauthorized)
			case errors.Is(err, sql.ErrNoRows):
				http.Error(w, "not found", http.StatusNotFound)
			case errors.Is(err, domai.ErrQuotaExceeded):
				http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
			case errors.Is(err, domai.ErrNotConfigured):
				http.Error(w, "ai analysis is not configured", http.StatusServiceUnavailable)
			case errors.Is(err, appintegrations.ErrUpstream):
				http.Error(w, err.Error(), http.StatusBadGateway)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
