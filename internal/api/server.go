package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"pharmatrace/internal/batch"
	"pharmatrace/internal/custody"
	"pharmatrace/internal/identity"
	"pharmatrace/internal/resolve"
	"pharmatrace/internal/signature"
	"pharmatrace/internal/storage"
)

// Services bundles the domain services the HTTP layer fronts.
type Services struct {
	Batches    *batch.Service
	Custody    *custody.Service
	Resolver   *resolve.Engine
	Signatures *signature.Service
	Identities *identity.Service
}

// Server represents the HTTP API server
// Provides endpoints for Prometheus metrics, health checks, and the
// traceability REST API
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	repository storage.Repository

	batches    *batch.Service
	custody    *custody.Service
	resolver   *resolve.Engine
	signatures *signature.Service
	identities *identity.Service

	port string
}

// NewServer creates a new API server instance
func NewServer(port string, repository storage.Repository, services Services) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         ":" + port,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		mux:        mux,
		repository: repository,
		batches:    services.Batches,
		custody:    services.Custody,
		resolver:   services.Resolver,
		signatures: services.Signatures,
		identities: services.Identities,
		port:       port,
	}

	s.registerRoutes()

	return s
}

// registerRoutes sets up all HTTP routes
func (s *Server) registerRoutes() {
	// Core endpoints
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.handleMetrics())

	// Domain endpoints
	s.mux.HandleFunc("/batches", s.handleBatches)
	s.mux.HandleFunc("/batches/", s.handleBatchRoutes)
	s.mux.HandleFunc("/ledgers", s.handleLedgers)
	s.mux.HandleFunc("/ledgers/", s.handleLedgerRoutes)
	s.mux.HandleFunc("/resolve", s.handleResolve)
	s.mux.HandleFunc("/signatures", s.handleSignatures)
	s.mux.HandleFunc("/signatures/", s.handleSignatureRoutes)
	s.mux.HandleFunc("/organizations", s.handleRegisterOrganization)
	s.mux.HandleFunc("/patients", s.handleRegisterPatient)
}

// handleBatches routes the collection endpoint (without trailing slash)
func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.handleCreateBatch(w, r)
}

// handleBatchRoutes routes batch sub-endpoints (with trailing slash)
func (s *Server) handleBatchRoutes(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/batches/")

	// GET /batches/{id}
	if len(parts) == 1 && r.Method == http.MethodGet {
		s.handleGetBatch(w, r, parts[0])
		return
	}

	// GET /batches/{id}/ledger
	if len(parts) == 2 && parts[1] == "ledger" && r.Method == http.MethodGet {
		s.handleGetBatchLedger(w, r, parts[0])
		return
	}

	if len(parts) == 2 && r.Method == http.MethodPost {
		switch parts[1] {
		case "recall":
			s.handleRecallBatch(w, r, parts[0])
			return
		case "status":
			s.handleBatchStatus(w, r, parts[0])
			return
		}
	}

	s.sendError(w, "Endpoint not found", http.StatusNotFound)
}

// handleLedgers routes the collection endpoint (without trailing slash)
func (s *Server) handleLedgers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.handleCreateLedger(w, r)
}

// handleLedgerRoutes routes ledger sub-endpoints (with trailing slash)
func (s *Server) handleLedgerRoutes(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/ledgers/")

	// GET /ledgers/{id}
	if len(parts) == 1 && r.Method == http.MethodGet {
		s.handleGetLedger(w, r, parts[0])
		return
	}

	if len(parts) == 2 && r.Method == http.MethodPost {
		switch parts[1] {
		case "steps":
			s.handleAddStep(w, r, parts[0])
			return
		case "checks":
			s.handleAddCheck(w, r, parts[0])
			return
		case "recall":
			s.handleRecallLedger(w, r, parts[0])
			return
		}
	}

	s.sendError(w, "Endpoint not found", http.StatusNotFound)
}

// handleSignatures routes the collection endpoint (without trailing slash)
func (s *Server) handleSignatures(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSign(w, r)
	case http.MethodGet:
		s.handleListSignatures(w, r)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSignatureRoutes routes signature sub-endpoints (with trailing slash)
func (s *Server) handleSignatureRoutes(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/signatures/")

	if len(parts) == 2 {
		switch {
		case parts[1] == "verify" && r.Method == http.MethodGet:
			s.handleVerifySignature(w, r, parts[0])
			return
		case parts[1] == "revoke" && r.Method == http.MethodPost:
			s.handleRevokeSignature(w, r, parts[0])
			return
		}
	}

	s.sendError(w, "Endpoint not found", http.StatusNotFound)
}

// Start starts the HTTP server in a goroutine
// Returns immediately after starting the server
func (s *Server) Start() error {
	go func() {
		slog.Info("API server starting",
			"port", s.port,
			"endpoints", []string{"/", "/health", "/metrics", "/batches", "/ledgers", "/resolve", "/signatures"},
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	// Give the server a moment to start
	time.Sleep(100 * time.Millisecond)

	return nil
}

// Shutdown gracefully shuts down the HTTP server
// Waits for active connections to close or context to timeout
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down...")
	return s.httpServer.Shutdown(ctx)
}
