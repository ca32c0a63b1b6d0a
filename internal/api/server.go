// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wallet-insight/internal/logging"
	"github.com/wallet-insight/internal/models"
	"github.com/wallet-insight/internal/types"
)

// Service interfaces for dependency injection and testing

// WalletStatsService serves cached or recomputed wallet snapshots
type WalletStatsService interface {
	GetWalletStats(ctx context.Context, address string, chain types.ChainID) (*models.WalletSnapshot, bool, error)
	ListHistory(ctx context.Context, address string, chain types.ChainID, limit int) ([]models.SnapshotHistoryEntry, error)
}

// PerformanceReporter builds per-asset P&L reports
type PerformanceReporter interface {
	GetPerformance(ctx context.Context, address string, chain types.ChainID) (*models.PerformanceReport, error)
}

// TransactionLister lists recent wallet transactions
type TransactionLister interface {
	GetRecentTransactions(ctx context.Context, address string, chain types.ChainID) ([]models.WalletTransaction, error)
}

// PriceQuoter quotes USD spot prices
type PriceQuoter interface {
	GetSpotPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// Services groups the handlers' dependencies
type Services struct {
	Wallet       WalletStatsService
	Performance  PerformanceReporter
	Transactions TransactionLister
	Prices       PriceQuoter
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration // Deadline applied to each API request
	RateLimitRPS    float64       // Per-client requests per second
	RateLimitBurst  int
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	services   Services
	config     *ServerConfig
	logger     *logging.Logger
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, services Services, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &Server{
		router:   mux.NewRouter(),
		services: services,
		config:   config,
		logger:   logger,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)

	// order matters: recovery must sit inside logging so panics are logged with a status
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(TimeoutMiddleware(s.config.RequestTimeout))

	api.HandleFunc("/wallet/{address}/stats", s.handleGetWalletStats).Methods("GET")
	api.HandleFunc("/wallet/{address}/performance", s.handleGetPerformance).Methods("GET")
	api.HandleFunc("/wallet/{address}/transactions", s.handleGetTransactions).Methods("GET")
	api.HandleFunc("/wallet/{address}/history", s.handleGetHistory).Methods("GET")
	api.HandleFunc("/prices", s.handleGetPrices).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(handleNotFound)
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "wallet-insight",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
