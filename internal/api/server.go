package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"oracle/internal/election"
)

// Pinger reports whether the record store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// NodeInfo identifies this node on the operator endpoints
type NodeInfo struct {
	NodeID    int
	PublicKey string
}

// Server represents the HTTP server of one oracle node.
// It carries peer JSON-RPC on /rpc next to health and Prometheus metrics.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	node       NodeInfo
	elector    *election.Elector
	store      Pinger
	port       int
}

// NewServer creates a new server instance.
// rpcHandler serves peer requests; store may be nil.
func NewServer(port int, node NodeInfo, elector *election.Elector, rpcHandler http.Handler, store Pinger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		mux:     mux,
		node:    node,
		elector: elector,
		store:   store,
		port:    port,
	}

	s.registerRoutes(rpcHandler)

	return s
}

func (s *Server) registerRoutes(rpcHandler http.Handler) {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.handleMetrics())
	s.mux.HandleFunc("/roles/", s.handleRoles)

	if rpcHandler != nil {
		s.mux.Handle("/rpc", rpcHandler)
	}
}

// Handler exposes the route table (for testing)
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start binds the port and serves in a goroutine.
// A bind failure is returned instead of logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}

	go func() {
		slog.Info("Node server starting",
			"port", s.port,
			"endpoints", []string{"/", "/health", "/metrics", "/roles/{call}", "/rpc"},
		)

		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Node server error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the HTTP server
// Waits for active connections to close or context to timeout
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Node server shutting down...")
	return s.httpServer.Shutdown(ctx)
}

func callIDFromPath(path string) string {
	return strings.Trim(strings.TrimPrefix(path, "/roles/"), "/")
}
