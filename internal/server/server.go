// Package server wires the HTTP surface of the declaration service: routing,
// middleware, and the handlers that translate requests into workflow engine
// calls.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/markmyw0rd/digital-declaration101/internal/artifact"
	"github.com/markmyw0rd/digital-declaration101/internal/blob"
	"github.com/markmyw0rd/digital-declaration101/internal/config"
	"github.com/markmyw0rd/digital-declaration101/internal/crypto"
	"github.com/markmyw0rd/digital-declaration101/internal/notify"
	"github.com/markmyw0rd/digital-declaration101/internal/server/middleware"
	"github.com/markmyw0rd/digital-declaration101/internal/store"
	"github.com/markmyw0rd/digital-declaration101/internal/token"
	"github.com/markmyw0rd/digital-declaration101/internal/workflow"
)

// PrivateKeyFilename is the JWK file the server loads its manifest signing
// key from, relative to SIGNING_KEYS_DIR.
const PrivateKeyFilename = "private.jwk"

type Server struct {
	pool   *pgxpool.Pool
	config *config.ServerEnvironment
	logger *slog.Logger
	router *chi.Mux
	engine *workflow.Engine
	blobs  *blob.FSStore
	jwks   []byte
}

func NewServer(
	pool *pgxpool.Pool,
	cfg *config.ServerEnvironment,
	logger *slog.Logger,
) (*Server, error) {
	privateKey, keyID, err := crypto.ReadEd25519PrivateKeyFromJWKFile(cfg.SigningKeysDir, PrivateKeyFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}

	jwkSet, err := crypto.PublicJWKSet(privateKey, keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to build public JWK set: %w", err)
	}
	jwks, err := json.Marshal(jwkSet)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JWK set: %w", err)
	}

	blobs, err := blob.NewFSStore(cfg.ArtifactDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact directory: %w", err)
	}

	notifier, err := notify.NewNotifier(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure notifier: %w", err)
	}

	engine := workflow.NewEngine(
		store.NewPostgresStore(pool),
		token.NewCodec([]byte(cfg.TokenSecret)),
		notifier,
		blobs,
		artifact.NewSigner(privateKey, keyID),
		workflow.Config{
			PublicOrigin:     cfg.PublicOrigin,
			LinkTokenTTL:     cfg.LinkTokenTTL,
			NotifyOnComplete: cfg.NotifyOnComplete,
		},
	)

	server := &Server{
		pool:   pool,
		config: cfg,
		logger: logger,
		router: chi.NewRouter(),
		engine: engine,
		blobs:  blobs,
		jwks:   jwks,
	}

	server.setupMiddleware()
	server.registerRoutes()

	return server, nil
}

// Router exposes the configured handler, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.RequestLogging(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.Timeout(60 * time.Second))
	s.router.Use(middleware.SecurityHeaders(s.config.Environment))
	s.router.Use(middleware.RateLimit(s.config.RateLimitRPS, s.config.RateLimitBurst))
	s.router.Use(middleware.RequestSizeLimit(s.config.MaxRequestBodyBytes))
}

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReadiness)
	s.router.Get("/version", s.handleVersion)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/envelopes", s.handleCreateEnvelope)
		r.Get("/envelopes/{envelopeID}", s.handleGetEnvelope)
		r.Post("/envelopes/sign", s.handleSignEnvelope)
		r.Post("/envelopes/complete", s.handleCompleteEnvelope)
		r.Post("/whoami", s.handleWhoami)
	})

	s.router.Get("/e/{token}", s.handleLinkEntry)

	// Completed declaration artifacts and signature images are served
	// directly off the blob store.
	s.router.Handle("/files/*", http.StripPrefix("/files/",
		http.FileServer(http.Dir(s.blobs.BaseDir()))))

	s.router.Get("/.well-known/jwks.json", s.handleJWKS)
}

func (s *Server) Start(ctx context.Context) error {
	serverAddr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("service listening",
			slog.String("environment", s.config.Environment),
			slog.String("address", serverAddr))

		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ServerShutdownTimeout)
	defer shutdownCancel()

	s.logger.Info("shutting down HTTP server")

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.logger.Warn("HTTP server shutdown error",
			slog.String("error", err.Error()))
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

func (s *Server) DatabaseShutdown() {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("database connection closed")
	}
}
