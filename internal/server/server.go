package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fiado/internal/cache"
	"fiado/internal/config"
	"fiado/internal/credit"
	"fiado/internal/db"
	"fiado/internal/handler"
	"fiado/internal/ledger"
	"fiado/internal/repository"
)

// Server represents the HTTP server.
type Server struct {
	httpServer  *http.Server
	logger      *zap.Logger
	database    *db.DB
	cacheClient *cache.Client
}

// Config holds server configuration.
type Config struct {
	Port         int
	DB           *db.DB
	Service      *credit.Service
	CacheClient  *cache.Client
	LedgerClient *ledger.Client
	Credit       config.CreditConfig
	Logger       *zap.Logger
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		logger:      cfg.Logger,
		database:    cfg.DB,
		cacheClient: cfg.CacheClient,
	}

	accountRepo := repository.NewAccountRepository(cfg.DB)

	creditHandler := handler.NewCreditHandler(cfg.Service, cfg.Credit.StaleAge)
	accountHandler := handler.NewAccountHandler(accountRepo)

	// Setup chi router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.zapLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health check endpoints
	r.Get("/health", s.healthCheck)
	r.Get("/ready", s.readyCheck)
	r.Handle("/metrics", promhttp.Handler())

	// API v1 routes
	r.Route("/api/v1/credit", func(r chi.Router) {
		// Accounts (administrative)
		r.Post("/accounts", accountHandler.Create)
		r.Get("/accounts", accountHandler.Get)
		r.Patch("/accounts", accountHandler.Update)

		// Reservation lifecycle
		r.Post("/check", creditHandler.Check)
		r.Post("/reservations", creditHandler.Reserve)
		r.Post("/reservations/{orderID}/release", creditHandler.Release)
		r.Post("/reservations/{orderID}/convert", creditHandler.Convert)
		r.Get("/reservations", creditHandler.Reservations)
		r.Get("/reservations/stale", creditHandler.StaleReservations)

		// Ledger
		r.Post("/payments", creditHandler.RecordPayment)
		r.Get("/available", creditHandler.Availability)
		r.Get("/statement", creditHandler.Statement)

		// Accounting replica (only when the mirror is configured)
		if cfg.LedgerClient != nil {
			mirrorHandler := handler.NewMirrorHandler(cfg.LedgerClient)
			r.Get("/mirror", mirrorHandler.Position)
		}
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// healthCheck returns basic health status.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readyCheck returns readiness status (all dependencies available).
func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Check PostgreSQL
	if err := s.database.Pool().Ping(ctx); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready","reason":"database unavailable"}`))
		return
	}

	// Check Redis
	if s.cacheClient != nil {
		if err := s.cacheClient.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready","reason":"cache unavailable"}`))
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// zapLogger is a middleware that logs requests using zap.
func (s *Server) zapLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
