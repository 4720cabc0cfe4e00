// Package controlapi implements the REST API of the Tally Control Plane.
// It manages variable definitions, serves evaluations and accepts record
// mutations, forwarding each committed mutation to the variable graph.
package controlapi

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/tally/internal/graph"
	"github.com/rafaeljc/tally/internal/lifecycle"
	"github.com/rafaeljc/tally/internal/store"
	"github.com/rafaeljc/tally/internal/timescope"
	"github.com/rafaeljc/tally/internal/validation"
)

// Config tunes the API surface. It is derived from config.ControlPlaneConfig
// and config.EngineConfig by the serve command.
type Config struct {
	// APIKeyHash is the SHA-256 hex digest of the accepted API key.
	APIKeyHash string

	// SkipAuth disables authentication (USE ONLY IN TESTS).
	SkipAuth bool

	// MaxBodyBytes caps request bodies. Zero means no limit.
	MaxBodyBytes int64

	// WeekStart anchors weekly scopes requested as a bare period.
	WeekStart timescope.WeekStart
}

// API is the main struct that holds dependencies and the router for the Control Plane.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	logger    *slog.Logger
	graph     *graph.Graph
	variables *lifecycle.Service
	records   store.RecordWriter
	cfg       Config

	// recordMu serializes a record commit with its graph notification, so
	// the graph observes mutations in commit order.
	recordMu sync.Mutex
}

// NewAPI creates a new API instance.
//
// Panics if any dependency is nil, or if cfg.APIKeyHash is empty while
// authentication is enabled.
func NewAPI(logger *slog.Logger, g *graph.Graph, variables *lifecycle.Service, records store.RecordWriter, cfg Config) *API {
	validation.AssertNotNil(logger, "logger")
	validation.AssertNotNil(g, "graph")
	validation.AssertNotNil(variables, "lifecycle service")
	validation.AssertPresent(records, "record writer")

	if !cfg.SkipAuth && cfg.APIKeyHash == "" {
		panic("controlapi: apiKeyHash cannot be empty when authentication is enabled")
	}
	if !cfg.WeekStart.Valid() {
		cfg.WeekStart = timescope.Monday
	}

	api := &API{
		Router:    chi.NewRouter(),
		logger:    logger,
		graph:     g,
		variables: variables,
		records:   records,
		cfg:       cfg,
	}

	api.configureRoutes()
	return api
}

// configureRoutes registers the global middleware stack and API endpoints.
func (a *API) configureRoutes() {
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(a.requestLogger)
	a.Router.Use(metricsMiddleware)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	a.Router.NotFound(handleNotFound)
	a.Router.MethodNotAllowed(handleMethodNotAllowed)

	a.Router.Get("/health", a.handleHealthCheck)

	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(a.authenticateAPIKey)
		if a.cfg.MaxBodyBytes > 0 {
			r.Use(limitBody(a.cfg.MaxBodyBytes))
		}

		r.Route("/variables", func(r chi.Router) {
			r.Post("/", a.handleCreateVariable)
			r.Get("/", a.handleListVariables)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.handleGetVariable)
				r.Put("/", a.handleUpdateVariable)
				r.Delete("/", a.handleDeleteVariable)
				r.Post("/evaluate", a.handleEvaluateVariable)
				r.Get("/dependents", a.handleListDependents)
			})
		})

		r.Post("/trackables", a.handleCreateTrackable)

		r.Route("/journal-entries/{id}", func(r chi.Router) {
			r.Put("/", a.handlePutJournalEntry)
			r.Delete("/", a.handleDeleteJournalEntry)
		})
		r.Route("/tag-entries/{id}", func(r chi.Router) {
			r.Put("/", a.handlePutTagEntry)
			r.Delete("/", a.handleDeleteTagEntry)
		})

		r.Delete("/indices", a.handleDeleteIndices)
	})
}

// handleHealthCheck reports that the HTTP server is serving. Dependency
// checks live on the observability server's readiness probe.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, ErrorResponse{Code: CodeNotFound, Message: "Route not found"})
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, ErrorResponse{Code: CodeMethodNotAllowed, Message: "Method not allowed"})
}
