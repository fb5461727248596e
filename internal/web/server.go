package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/crypto_grid_bot/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router *http.ServeMux
	server *http.Server
	engine *usecase.GridEngine
	logger *zap.Logger
}

func NewServer(port int, engine *usecase.GridEngine, logger *zap.Logger) *Server {
	s := &Server{
		router: http.NewServeMux(),
		engine: engine,
		logger: logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)

	// Open grid slots
	s.router.HandleFunc("GET /api/slots", s.handleSlots)

	// Prometheus scrape
	s.router.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
