package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/markmyw0rd/digital-declaration101/internal/version"
)

// handleHealth godoc
//
//	@Summary		Health (liveness) check
//	@Description	Check if the HTTP service is alive and responding.
//	@Tags			System
//	@Produce		plain
//	@Success		200	{string}	string	"OK"
//	@Router			/health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReadiness godoc
//
//	@Summary		Readiness check
//	@Description	Checks if the service is ready to accept traffic (includes database connectivity)
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	map[string]string	"status ready"
//	@Failure		503	{object}	map[string]string	"status not ready"
//	@Router			/ready [get]
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), s.config.DatabasePingTimeout)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready","reason":"database unavailable"}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// handleVersion godoc
//
//	@Summary		Get version information
//	@Description	Returns the version and build information for the service
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	version.Info	"Version information"
//	@Router			/version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(version.Get()); err != nil {
		http.Error(w, "Failed to encode version", http.StatusInternalServerError)
	}
}

// handleJWKS godoc
//
//	@Summary		Public signing keys
//	@Description	Serves the JWK Set containing the public key used to verify
//	@Description	completion manifests.
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	map[string]any	"JWK Set"
//	@Router			/.well-known/jwks.json [get]
func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.jwks)
}
