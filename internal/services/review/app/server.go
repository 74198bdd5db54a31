// Package app wires the review runtime: storage, the workflow service, the
// JSON API, and the gRPC health surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/standardsja/pms-sub000/internal/services/review/domain"
	reviewsqlite "github.com/standardsja/pms-sub000/internal/services/review/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const httpShutdownTimeout = 10 * time.Second

// Config defines the inputs for the review server process.
type Config struct {
	HTTPAddr string
	GRPCAddr string
	DBPath   string
	// JWTSecret verifies bearer tokens issued by the identity provider.
	JWTSecret string
}

// Server hosts the review JSON API plus a gRPC health endpoint for probes.
type Server struct {
	httpListener net.Listener
	grpcListener net.Listener
	httpServer   *http.Server
	grpcServer   *grpc.Server
	health       *health.Server
	store        *reviewsqlite.Store
	service      *domain.Service
}

// New creates a configured review server with its listeners bound.
func New(cfg Config) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = httpListener.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}

	store, err := reviewsqlite.Open(cfg.DBPath)
	if err != nil {
		_ = httpListener.Close()
		_ = grpcListener.Close()
		return nil, err
	}

	service := domain.NewService(store, logNotifier{}, nil, nil)

	httpServer := &http.Server{
		Handler:           newMux(service, []byte(cfg.JWTSecret)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("pms.review.v1.ReviewService", grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		httpListener: httpListener,
		grpcListener: grpcListener,
		httpServer:   httpServer,
		grpcServer:   grpcServer,
		health:       healthServer,
		store:        store,
		service:      service,
	}, nil
}

// HTTPAddr returns the bound JSON API address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// GRPCAddr returns the bound health endpoint address.
func (s *Server) GRPCAddr() string {
	if s == nil || s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// Service exposes the workflow service for in-process callers and tests.
func (s *Server) Service() *domain.Service {
	if s == nil {
		return nil
	}
	return s.service
}

// Run creates and serves a review server until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts both listeners until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("review api listening at %v", s.httpListener.Addr())
	log.Printf("review health listening at %v", s.grpcListener.Addr())

	serveErr := make(chan error, 2)
	go func() {
		err := s.httpServer.Serve(s.httpListener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()
	go func() {
		serveErr <- s.grpcServer.Serve(s.grpcListener)
	}()

	select {
	case <-ctx.Done():
		s.shutdown()
		<-serveErr
		<-serveErr
		return nil
	case err := <-serveErr:
		s.shutdown()
		<-serveErr
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	}
}

func (s *Server) shutdown() {
	if s.health != nil {
		s.health.Shutdown()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("review http shutdown: %v", err)
	}
	s.grpcServer.GracefulStop()
}

// Close releases the server's resources.
func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
