// Package server provides the HTTP server and routing for Ballast.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aristath/ballast/internal/database"
	ledgerhandlers "github.com/aristath/ballast/internal/modules/ledger/handlers"
	riskhandlers "github.com/aristath/ballast/internal/modules/risk/handlers"
	targetshandlers "github.com/aristath/ballast/internal/modules/targets/handlers"
	tradinghandlers "github.com/aristath/ballast/internal/modules/trading/handlers"
	"github.com/aristath/ballast/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log      zerolog.Logger
	LedgerDB *database.DB
	ConfigDB *database.DB
	Port     int
	DevMode  bool

	LedgerHandlers  *ledgerhandlers.Handler
	RiskHandlers    *riskhandlers.Handler
	TradingHandlers *tradinghandlers.Handler
	TargetsHandlers *targetshandlers.Handler

	// Optional: enables POST /api/jobs/rebalance
	Scheduler    *scheduler.Scheduler
	RebalanceJob *scheduler.RebalanceJob
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            Config
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg,
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.LedgerDB, cfg.ConfigDB),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
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

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		if s.cfg.LedgerHandlers != nil {
			s.cfg.LedgerHandlers.RegisterRoutes(r)
		}
		if s.cfg.RiskHandlers != nil {
			s.cfg.RiskHandlers.RegisterRoutes(r)
		}
		if s.cfg.TradingHandlers != nil {
			s.cfg.TradingHandlers.RegisterRoutes(r)
		}
		if s.cfg.TargetsHandlers != nil {
			s.cfg.TargetsHandlers.RegisterRoutes(r)
		}

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
		})

		if s.cfg.Scheduler != nil && s.cfg.RebalanceJob != nil {
			r.Post("/jobs/rebalance", s.handleTriggerRebalance)
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleTriggerRebalance runs the rebalance sweep immediately
func (s *Server) handleTriggerRebalance(w http.ResponseWriter, r *http.Request) {
	s.log.Info().Msg("Manual rebalance triggered")

	if err := s.cfg.Scheduler.RunNow(s.cfg.RebalanceJob); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
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
