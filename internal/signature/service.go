package signature

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pharmatrace/internal/apperr"
	"pharmatrace/internal/events"
	"pharmatrace/internal/metrics"
	"pharmatrace/internal/models"
	"pharmatrace/internal/storage"

	"github.com/google/uuid"
)

// Verification failure reasons returned in VerificationResult.Reason.
const (
	ReasonTampered     = "data hash mismatch: target changed after signing"
	ReasonBadSignature = "signature does not verify against the signing key"
	ReasonCertNotYet   = "certificate not yet valid"
	ReasonCertExpired  = "certificate expired"
	ReasonRevoked      = "signature revoked"
	ReasonInactive     = "signature not active"
)

// Service signs, verifies and revokes signature records over target entities.
type Service struct {
	repo       storage.Repository
	signer     Signer
	dispatcher *events.Dispatcher

	caProvider   string
	tsAuthority  string
	certValidity time.Duration

	now func() time.Time
}

// Config carries the certificate metadata attached to new signatures.
type Config struct {
	CAProvider   string
	TSAuthority  string
	CertValidity time.Duration
}

// NewService creates a signature service
func NewService(repo storage.Repository, signer Signer, dispatcher *events.Dispatcher, cfg Config) *Service {
	if cfg.CertValidity <= 0 {
		cfg.CertValidity = 365 * 24 * time.Hour
	}
	if cfg.CAProvider == "" {
		cfg.CAProvider = "pharmatrace-internal-ca"
	}
	if cfg.TSAuthority == "" {
		cfg.TSAuthority = "pharmatrace-tsa"
	}
	return &Service{
		repo:         repo,
		signer:       signer,
		dispatcher:   dispatcher,
		caProvider:   cfg.CAProvider,
		tsAuthority:  cfg.TSAuthority,
		certValidity: cfg.CertValidity,
		now:          time.Now,
	}
}

// SetClock overrides the wall clock. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// targetDigest loads the current target state and hashes its canonical subset
func (s *Service) targetDigest(ctx context.Context, targetType, targetID string) (string, error) {
	switch targetType {
	case TargetBatch:
		batch, err := s.repo.GetBatch(ctx, targetID)
		if err != nil {
			return "", err
		}
		return BatchDigest(batch)
	case TargetLedger:
		ledger, err := s.repo.GetLedger(ctx, targetID)
		if err != nil {
			return "", err
		}
		return LedgerDigest(ledger)
	default:
		return "", &apperr.ValidationError{Field: "target_type", Reason: fmt.Sprintf("unknown target type %q", targetType)}
	}
}

// Sign hashes the target's canonical field subset, signs the hash, and
// persists an independent append-only signature record.
func (s *Service) Sign(ctx context.Context, targetType, targetID string, signer models.Actor) (*models.SignatureRecord, error) {
	dataHash, err := s.targetDigest(ctx, targetType, targetID)
	if err != nil {
		return nil, err
	}

	sig, err := s.signer.Sign(dataHash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign data hash: %w", err)
	}

	now := s.now().UTC()
	record := &models.SignatureRecord{
		ID:         uuid.NewString(),
		TargetType: targetType,
		TargetID:   targetID,
		SignedBy:   signer.ID,
		DataHash:   dataHash,
		Signature:  sig,
		PublicKey:  s.signer.PublicKey(),
		Certificate: models.Certificate{
			Serial:     uuid.NewString(),
			CAProvider: s.caProvider,
			ValidFrom:  now,
			ValidTo:    now.Add(s.certValidity),
			Status:     models.SignatureActive,
		},
		TimestampProof: models.TimestampProof{
			Authority: s.tsAuthority,
			Token:     timestampToken(dataHash, now),
			IssuedAt:  now,
		},
		Status:    models.SignatureActive,
		CreatedAt: now,
	}

	if err := s.repo.CreateSignature(ctx, record); err != nil {
		return nil, err
	}

	s.dispatcher.Emit(ctx, &events.Event{
		Type:    events.SignatureSigned,
		ActorID: signer.ID,
		Payload: map[string]any{
			"signature_id": record.ID,
			"target_type":  targetType,
			"target_id":    targetID,
		},
	})

	slog.Info("Signed target",
		"signature_id", record.ID,
		"target_type", targetType,
		"target_id", targetID,
		"signed_by", signer.ID,
	)

	return record, nil
}

// Verify recomputes the data hash from the current target state using the
// same canonical subset as sign-time and compares it to the stored hash.
// Certificate validity is rechecked against the wall clock; the cached
// certificate status column is only refreshed out of band and is not trusted.
func (s *Service) Verify(ctx context.Context, signatureID string) (*models.VerificationResult, error) {
	record, err := s.repo.GetSignature(ctx, signatureID)
	if err != nil {
		return nil, err
	}

	result := s.verifyRecord(ctx, record)
	if result.Valid {
		metrics.SignatureVerifications.WithLabelValues("valid").Inc()
	} else {
		metrics.SignatureVerifications.WithLabelValues("invalid").Inc()
		slog.Warn("Signature verification failed",
			"signature_id", signatureID,
			"reason", result.Reason,
		)
	}
	return result, nil
}

func (s *Service) verifyRecord(ctx context.Context, record *models.SignatureRecord) *models.VerificationResult {
	// Tamper detection against current stored state
	currentHash, err := s.targetDigest(ctx, record.TargetType, record.TargetID)
	if err != nil {
		return &models.VerificationResult{Valid: false, Reason: fmt.Sprintf("target unavailable: %v", err)}
	}
	if currentHash != record.DataHash {
		return &models.VerificationResult{Valid: false, Reason: ReasonTampered}
	}

	if !verifyWithKey(record.PublicKey, record.DataHash, record.Signature) {
		return &models.VerificationResult{Valid: false, Reason: ReasonBadSignature}
	}

	// Wall-clock certificate validity, not the cached status column
	now := s.now().UTC()
	if now.Before(record.Certificate.ValidFrom) {
		return &models.VerificationResult{Valid: false, Reason: ReasonCertNotYet}
	}
	if now.After(record.Certificate.ValidTo) {
		return &models.VerificationResult{Valid: false, Reason: ReasonCertExpired}
	}

	switch record.Status {
	case models.SignatureActive:
	case models.SignatureRevoked:
		return &models.VerificationResult{Valid: false, Reason: ReasonRevoked}
	default:
		return &models.VerificationResult{Valid: false, Reason: ReasonInactive}
	}

	return &models.VerificationResult{Valid: true}
}

// ListForTarget returns every signature recorded against one target, newest
// first per storage ordering.
func (s *Service) ListForTarget(ctx context.Context, targetType, targetID string) ([]*models.SignatureRecord, error) {
	switch targetType {
	case TargetBatch, TargetLedger:
	default:
		return nil, &apperr.ValidationError{Field: "target_type", Reason: fmt.Sprintf("unknown target type %q", targetType)}
	}
	return s.repo.ListSignaturesByTarget(ctx, targetType, targetID)
}

// Revoke irreversibly marks a signature revoked. Admin only.
func (s *Service) Revoke(ctx context.Context, signatureID, reason string, admin models.Actor) error {
	if !admin.IsAdmin() {
		return &apperr.AuthorizationError{ActorID: admin.ID, Role: string(admin.Role), Action: "revoke signature"}
	}
	if err := s.repo.RevokeSignature(ctx, signatureID, reason, admin.ID); err != nil {
		return err
	}

	slog.Info("Revoked signature",
		"signature_id", signatureID,
		"revoked_by", admin.ID,
		"reason", reason,
	)
	return nil
}
