// Package server provides the HTTP server and routing for Quantfolio.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/config"
	"github.com/quantfolio/quantfolio/internal/database"
	"github.com/quantfolio/quantfolio/internal/modules/backtest"
	backtesthandlers "github.com/quantfolio/quantfolio/internal/modules/backtest/handlers"
	"github.com/quantfolio/quantfolio/internal/modules/calculations"
	"github.com/quantfolio/quantfolio/internal/modules/history"
	historyhandlers "github.com/quantfolio/quantfolio/internal/modules/history/handlers"
	"github.com/quantfolio/quantfolio/internal/modules/metrics"
	"github.com/quantfolio/quantfolio/internal/modules/optimization"
	optimizationhandlers "github.com/quantfolio/quantfolio/internal/modules/optimization/handlers"
	"github.com/quantfolio/quantfolio/internal/modules/risk"
	riskhandlers "github.com/quantfolio/quantfolio/internal/modules/risk/handlers"
	"github.com/quantfolio/quantfolio/internal/modules/runs"
	runshandlers "github.com/quantfolio/quantfolio/internal/modules/runs/handlers"
	"github.com/quantfolio/quantfolio/internal/modules/walkforward"
	walkforwardhandlers "github.com/quantfolio/quantfolio/internal/modules/walkforward/handlers"
	"github.com/quantfolio/quantfolio/internal/services"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	HistoryDB *database.DB
	RunsDB    *database.DB
	Config    *config.Config
	Port      int
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	historyDB      *database.DB
	runsDB         *database.DB
	cfg            *config.Config
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server and wires the module handlers.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		historyDB: cfg.HistoryDB,
		runsDB:    cfg.RunsDB,
		cfg:       cfg.Config,
	}

	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.HistoryDB, cfg.RunsDB)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes wires module handlers under /api.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.systemHandlers.HandleHealth)

	log := s.log
	historyRepo := history.NewRepository(s.historyDB.Conn(), log)
	runsRepo := runs.NewRepository(s.runsDB.Conn(), log)
	cache := calculations.NewCache(s.runsDB.Conn(), log)
	datasets := services.NewDatasetService(historyRepo, s.cfg.DefaultLookback, log)

	estimator := risk.NewEstimator(log)
	optimizer := optimization.NewOptimizer(log)
	simulator := backtest.NewSimulator(log, metrics.Options{DrawdownFloor: s.cfg.DrawdownFloor})
	validator := walkforward.NewValidator(log)
	thresholds := walkforward.Thresholds{Low: s.cfg.DegradationLow, High: s.cfg.DegradationHigh}

	s.router.Route("/api", func(r chi.Router) {
		historyhandlers.NewHandler(historyRepo, log).RegisterRoutes(r)
		riskhandlers.NewHandler(datasets, estimator, cache, log).RegisterRoutes(r)
		optimizationhandlers.NewHandler(datasets, estimator, optimizer, runsRepo, log).RegisterRoutes(r)
		backtesthandlers.NewHandler(datasets, simulator, runsRepo, log).RegisterRoutes(r)
		walkforwardhandlers.NewHandler(datasets, validator, estimator, optimizer, runsRepo, thresholds, log).RegisterRoutes(r)
		runshandlers.NewHandler(runsRepo, log).RegisterRoutes(r)

		r.Route("/system", func(r chi.Router) {
			r.Get("/health", s.systemHandlers.HandleHealth)
			r.Get("/stats", s.systemHandlers.HandleDatabaseStats)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the router for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
