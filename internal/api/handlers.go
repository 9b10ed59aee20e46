package api

import (
	"net/http"
	"strings"
	"time"

	"pharmatrace/internal/apperr"
	"pharmatrace/internal/custody"
	"pharmatrace/internal/models"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handleIndex returns basic service information
// GET / - Returns service info and available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.sendError(w, "Endpoint not found", http.StatusNotFound)
		return
	}

	info := map[string]interface{}{
		"service":     "PharmaTrace",
		"version":     "1.0.0",
		"description": "Pharmaceutical batch traceability and custody tracking",
		"endpoints": map[string]string{
			"GET /":                            "This page - Service information",
			"GET /health":                      "Health check endpoint",
			"GET /metrics":                     "Prometheus metrics for monitoring",
			"POST /batches":                    "Register a batch and anchor it",
			"GET /batches/{id}":                "Get batch details",
			"GET /batches/{id}/ledger":         "Get the batch's custody ledger (requires ?actor_id=&actor_role=)",
			"POST /batches/{id}/recall":        "Recall a batch",
			"POST /batches/{id}/status":        "Append a distribution status update",
			"POST /ledgers":                    "Create a custody ledger for a batch",
			"GET /ledgers/{id}":                "Get a role-aware view of a ledger (requires ?actor_id=&actor_role=)",
			"POST /ledgers/{id}/steps":         "Append a custody step",
			"POST /ledgers/{id}/checks":        "Append a quality check",
			"POST /ledgers/{id}/recall":        "Mark a ledger recalled",
			"GET /resolve":                     "Resolve a scanned code (?code=&actor_id=&actor_role=)",
			"POST /signatures":                 "Sign a batch or custody ledger",
			"GET /signatures":                  "List signatures for a target (?target_type=&target_id=)",
			"GET /signatures/{id}/verify":      "Verify a stored signature",
			"POST /signatures/{id}/revoke":     "Revoke a signature",
			"POST /organizations":              "Register an organization",
			"POST /patients":                   "Register a patient",
		},
	}

	s.sendJSON(w, http.StatusOK, info)
}

// handleHealth returns health status, including database reachability
// GET /health - Health check for monitoring systems
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.repository.Ping(r.Context()); err != nil {
		s.sendJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"timestamp": time.Now().UTC(),
			"service":   "pharmatrace",
		})
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "pharmatrace",
	})
}

// handleMetrics returns Prometheus metrics
// GET /metrics - Prometheus scraping endpoint
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// =============================================================================
// BATCH ENDPOINTS
// =============================================================================

// handleCreateBatch registers a batch, anchors it, and generates its code
// POST /batches
func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, err)
		return
	}
	actor, err := req.Actor.toModel()
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	input, err := req.toInput()
	if err != nil {
		s.sendAppError(w, err)
		return
	}

	created, err := s.batches.Create(r.Context(), input, actor)
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, created)
}

// handleGetBatch returns one batch by internal id
// GET /batches/{id}
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request, batchID string) {
	found, err := s.batches.Get(r.Context(), batchID)
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, found)
}

// handleRecallBatch marks a batch recalled
// POST /batches/{id}/recall
func (s *Server) handleRecallBatch(w http.ResponseWriter, r *http.Request, batchID string) {
	var req recallRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, err)
		return
	}
	actor, err := req.Actor.toModel()
	if err != nil {
		s.sendAppError(w, err)
		return
	}

	recalled, err := s.batches.Recall(r.Context(), batchID, req.Reason, actor)
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, recalled)
}

// handleBatchStatus appends a distribution status update
// POST /batches/{id}/status
func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request, batchID string) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, err)
		return
	}
	actor, err := req.Actor.toModel()
	if err != nil {
		s.sendAppError(w, err)
		return
	}

	if err := s.batches.UpdateDistributionStatus(r.Context(), batchID, req.Status, req.Location, actor); err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

// =============================================================================
// CUSTODY LEDGER ENDPOINTS
// =============================================================================

// handleCreateLedger creates the custody ledger for a batch
// POST /ledgers
func (s *Server) handleCreateLedger(w http.ResponseWriter, r *http.Request) {
	var req createLedgerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, err)
		return
	}
	actor, err := req.Actor.toModel()
	if err != nil {
		s.sendAppError(w, err)
		return
	}

	ledger, err := s.custody.CreateLedger(r.Context(), req.BatchID, req.BatchNumber, actor)
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, ledger)
}

// handleGetLedger returns the role-aware projection of a ledger
// GET /ledgers/{id}?actor_id=&actor_role=
func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request, ledgerID string) {
	viewer, err := actorFromQuery(r)
	if err != nil {
		s.sendAppError(w, err)
		return
	}

	ledger, err := s.custody.Get(r.Context(), ledgerID, viewer)
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, custody.Project(ledger, viewer))
}

// handleAddStep appends a custody step to a ledger
// POST /ledgers/{id}/steps
func (s *Server) handleAddStep(w http.ResponseWriter, r *http.Request, ledgerID string) {
	var req addStepRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, err)
		return
	}
	actor, err := req.Actor.toModel()
	if err != nil {
		s.sendAppError(w, err)
		return
	}

	step, err := s.custody.AddStep(r.Context(), ledgerID, req.toInput(), actor)
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, step)
}

// handleAddCheck appends a quality check to a ledger
// POST /ledgers/{id}/checks
func (s *Server) handleAddCheck(w http.ResponseWriter, r *http.Request, ledgerID string) {
	var req addCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, err)
		return
	}
	actor, err := req.Actor.toModel()
	if err != nil {
		s.sendAppError(w, err)
		return
	}

	if err := s.custody.AddQualityCheck(r.Context(), ledgerID, req.Check, actor); err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, map[string]string{"result": string(req.Check.Result)})
}

// handleRecallLedger marks a ledger recalled
// POST /ledgers/{id}/recall
func (s *Server) handleRecallLedger(w http.ResponseWriter, r *http.Request, ledgerID string) {
	var req recallRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, err)
		return
	}
	actor, err := req.Actor.toModel()
	if err != nil {
		s.sendAppError(w, err)
		return
	}

	if err := s.custody.Recall(r.Context(), ledgerID, req.Reason, req.Action, req.AffectedUnits, actor); err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": string(models.LedgerRecalled)})
}

// handleGetBatchLedger returns the role-aware projection of the ledger
// belonging to a batch
// GET /batches/{id}/ledger?actor_id=&actor_role=
func (s *Server) handleGetBatchLedger(w http.ResponseWriter, r *http.Request, batchID string) {
	viewer, err := actorFromQuery(r)
	if err != nil {
		s.sendAppError(w, err)
		return
	}

	ledger, err := s.custody.GetByBatch(r.Context(), batchID, viewer)
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, custody.Project(ledger, viewer))
}

// =============================================================================
// RESOLUTION ENDPOINT
// =============================================================================

// handleResolve resolves a scanned code to a batch with safety alerts
// GET /resolve?code=...&actor_id=...&actor_role=...
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		s.sendAppError(w, &apperr.ValidationError{Field: "code", Reason: "required"})
		return
	}
	actor, err := actorFromQuery(r)
	if err != nil {
		s.sendAppError(w, err)
		return
	}

	resolution, err := s.resolver.Resolve(r.Context(), code, actor)
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, resolution)
}

// =============================================================================
// SIGNATURE ENDPOINTS
// =============================================================================

// handleSign signs a batch or custody ledger
// POST /signatures
func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, err)
		return
	}
	actor, err := req.Actor.toModel()
	if err != nil {
		s.sendAppError(w, err)
		return
	}

	record, err := s.signatures.Sign(r.Context(), req.TargetType, req.TargetID, actor)
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, record)
}

// handleListSignatures lists every signature recorded against one target
// GET /signatures?target_type=batch&target_id=...
func (s *Server) handleListSignatures(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	targetType := query.Get("target_type")
	targetID := query.Get("target_id")
	if targetID == "" {
		s.sendAppError(w, &apperr.ValidationError{Field: "target_id", Reason: "required"})
		return
	}

	records, err := s.signatures.ListForTarget(r.Context(), targetType, targetID)
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"signatures": records,
		"total":      len(records),
	})
}

// handleVerifySignature re-verifies a stored signature against current data.
// An invalid signature is reported with 422 so monitoring can distinguish
// verification failures from transport errors.
// GET /signatures/{id}/verify
func (s *Server) handleVerifySignature(w http.ResponseWriter, r *http.Request, signatureID string) {
	result, err := s.signatures.Verify(r.Context(), signatureID)
	if err != nil {
		s.sendAppError(w, err)
		return
	}

	code := http.StatusOK
	if !result.Valid {
		code = apperr.HTTPStatus(&apperr.SignatureVerificationError{
			SignatureID: signatureID,
			Reason:      result.Reason,
		})
	}
	s.sendJSON(w, code, result)
}

// handleRevokeSignature revokes a signature
// POST /signatures/{id}/revoke
func (s *Server) handleRevokeSignature(w http.ResponseWriter, r *http.Request, signatureID string) {
	var req recallRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, err)
		return
	}
	actor, err := req.Actor.toModel()
	if err != nil {
		s.sendAppError(w, err)
		return
	}

	if err := s.signatures.Revoke(r.Context(), signatureID, req.Reason, actor); err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": string(models.SignatureRevoked)})
}

// =============================================================================
// IDENTITY ENDPOINTS
// =============================================================================

// handleRegisterOrganization registers an organization
// POST /organizations
func (s *Server) handleRegisterOrganization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerOrganizationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, err)
		return
	}

	org, err := s.identities.RegisterOrganization(r.Context(), req.OrganizationID, req.Name, models.Role(req.Role))
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, org)
}

// handleRegisterPatient registers a patient with a generated identifier
// POST /patients
func (s *Server) handleRegisterPatient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerPatientRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, err)
		return
	}

	patient, err := s.identities.RegisterPatient(r.Context(), req.LoginName, req.DisplayName)
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, patient)
}

// splitPath trims a prefix and splits the remainder into non-empty segments.
func splitPath(path, prefix string) []string {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
