package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"venturedesk/internal/infra/middleware"
)

// Server is the HTTP transport in front of the supervisor.
type Server struct {
	asker   Asker
	auth    Authenticator
	limiter *clientLimiter
	logger  *slog.Logger

	addr      string
	httpSrv   *http.Server
	boundAddr string
}

// Options configures the server beyond its collaborators.
type Options struct {
	Addr  string
	RPS   float64 // per-client requests per second, 0 = unlimited
	Burst int
}

// NewServer creates an HTTP gateway server. A nil auth admits everyone.
func NewServer(asker Asker, auth Authenticator, opts Options, logger *slog.Logger) *Server {
	if auth == nil {
		auth = NoAuth{}
	}
	return &Server{
		asker:   asker,
		auth:    auth,
		limiter: newClientLimiter(opts.RPS, opts.Burst),
		logger:  logger,
		addr:    opts.Addr,
	}
}

// Handler returns the route mux with the middleware stack applied. Exposed
// for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/ask", s.handleAsk)
	mux.HandleFunc("GET /v1/domains", s.handleDomains)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return middleware.SecurityHeaders(middleware.RequestLogging(s.logger)(mux))
}

// Start begins serving. Blocks until the context is cancelled or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()

	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// BoundAddr returns the listening address. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }
