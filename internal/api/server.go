package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
}

// NewServer creates a new API server with all routes configured.
func NewServer(addr string, h *Handler) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(RecoverMiddleware)
	r.Use(CORSMiddleware)
	r.Use(TracingMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Compress(5))

	// Health endpoints are not tenant scoped.
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", h.CreateTransaction)
			r.Post("/batch", h.CreateTransactionBatch)
			r.Get("/", h.ListTransactions)
		})

		r.Route("/recurring", func(r chi.Router) {
			r.Post("/", h.CreateRecurring)
			r.Post("/batch", h.CreateRecurringBatch)
			r.Get("/", h.ListRecurring)
			r.Get("/cash-flow", h.CashFlowForecast)
		})

		r.Route("/metrics", func(r chi.Router) {
			r.Post("/", h.RecordMetric)
			r.Post("/batch", h.RecordMetricBatch)
			r.Get("/", h.ListMetrics)
			r.Get("/cash-runway", h.CashRunway)
			r.Get("/clv", h.CustomerLifetimeValue)
			r.Get("/revenue-by-category", h.RevenueByCategory)
			r.Get("/expenses-by-cost-type", h.ExpensesByCostType)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.ListAlerts)
			r.Post("/", h.CreateAlert)
			r.Delete("/{id}", h.DeleteAlert)
			r.Post("/evaluate", h.EvaluateAlerts)
		})
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		router: r,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying router, for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
