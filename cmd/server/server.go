package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"golang.org/x/time/rate"

	"github.com/liamcoop/classifier/classification"
	"github.com/liamcoop/classifier/internal/config"
	"github.com/liamcoop/classifier/internal/logger"
	"github.com/liamcoop/classifier/rules"
)

// maxBodyBytes bounds request bodies, including rule imports.
const maxBodyBytes = 4 << 20

type Server struct {
	db       *sqlx.DB
	registry *rules.Registry
	engine   *classification.Engine
	cfg      *config.Config
	limiter  *rate.Limiter
	started  time.Time
	router   *chi.Mux
}

// NewServer wires the HTTP routes. database may be nil when rules and
// results are kept in memory.
func NewServer(cfg *config.Config, registry *rules.Registry, engine *classification.Engine, database *sqlx.DB) *Server {
	s := &Server{
		db:       database,
		registry: registry,
		engine:   engine,
		cfg:      cfg,
		started:  time.Now(),
	}
	if cfg.RateLimit.RPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.cfg.Server.SlowRequestThreshold))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	// Health check
	r.Get("/api/v1/health", s.handleHealth)

	// Classification
	r.Route("/api/v1/classify", func(r chi.Router) {
		r.Use(rateLimit(s.limiter))

		r.Post("/", s.handleClassify)
		r.Post("/dry-run", s.handleDryRun)
		r.Get("/results/{hash}", s.handleGetResult)
		r.Get("/statistics", s.handleStatistics)
	})

	// Rule management
	r.Route("/api/v1/rules", func(r chi.Router) {
		r.Get("/", s.handleListRules)
		r.Post("/", s.handleCreateRule)
		r.Post("/import", s.handleImportRules)
		r.Get("/export", s.handleExportRules)

		r.Route("/{ruleId}", func(r chi.Router) {
			r.Get("/", s.handleGetRule)
			r.Put("/", s.handleUpdateRule)
			r.Delete("/", s.handleDeleteRule)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		CachedResults: s.engine.CachedResults(),
		Counters:      logger.Counters(),
	}

	set, err := s.registry.Snapshot()
	if err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.ActiveRules = set.Len()
	resp.InvalidRules = len(set.Invalid())
	resp.RulesBuiltAt = set.BuiltAt()

	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Debug("failed to write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	if status >= 500 {
		logger.Error(message, "status", status, "error", err)
	} else {
		logger.Debug(message, "status", status, "error", err)
	}
	respondJSON(w, status, response)
}
