package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handleIndex returns basic node information
// GET / - Returns service info and available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	info := map[string]interface{}{
		"service":   "Oracle Node",
		"nodeId":    s.node.NodeID,
		"publicKey": s.node.PublicKey,
		"endpoints": map[string]string{
			"GET /":             "This page - Service information",
			"GET /health":       "Health check endpoint",
			"GET /metrics":      "Prometheus metrics for monitoring",
			"GET /roles/{call}": "Leader and backup for a call",
			"POST /rpc":         "Peer JSON-RPC (oracle.Validate, oracle.Sign)",
		},
	}

	s.sendJSON(w, info, http.StatusOK)
}

// handleHealth returns health status
// GET /health - Health check for monitoring systems
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "ok",
		"nodeId":    s.node.NodeID,
		"publicKey": s.node.PublicKey,
		"timestamp": time.Now().UTC(),
	}
	status := http.StatusOK

	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			slog.Warn("Record store unreachable", "error", err)
			health["status"] = "degraded"
			health["store"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	s.sendJSON(w, health, status)
}

// handleMetrics returns Prometheus metrics
// GET /metrics - Prometheus scraping endpoint
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// handleRoles reports which node leads and which backs up a call
// GET /roles/{call}
func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.elector == nil {
		s.sendError(w, "Elector not configured", http.StatusServiceUnavailable)
		return
	}

	callID := callIDFromPath(r.URL.Path)
	if callID == "" {
		s.sendError(w, "Call id is required", http.StatusBadRequest)
		return
	}

	s.sendJSON(w, map[string]interface{}{
		"call":   callID,
		"leader": s.elector.Leader(callID),
		"backup": s.elector.Backup(callID),
		"self":   s.elector.RoleOf(callID, s.node.NodeID).String(),
	}, http.StatusOK)
}

func (s *Server) sendJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, status int) {
	s.sendJSON(w, map[string]string{"error": message}, status)
}
