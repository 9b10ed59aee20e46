package signature

import (
	"context"
	"testing"
	"time"

	"pharmatrace/internal/apperr"
	"pharmatrace/internal/models"
	"pharmatrace/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var signTime = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, repo storage.Repository) *Service {
	t.Helper()
	signer, err := NewEd25519Signer()
	require.NoError(t, err)
	svc := NewService(repo, signer, nil, Config{})
	svc.SetClock(func() time.Time { return signTime })
	return svc
}

func seedBatch(t *testing.T, repo storage.Repository) *models.Batch {
	t.Helper()
	batch := &models.Batch{
		ID:               "b-1",
		BatchNumber:      "BATCH100",
		Name:             "Paracetamol 500mg",
		ActiveIngredient: "Paracetamol",
		Dosage:           "500mg",
		Form:             "tablet",
		ProductionDate:   signTime.AddDate(0, -1, 0),
		ExpiryDate:       signTime.AddDate(2, 0, 0),
		ManufacturerID:   "ORG-PHARMA-1",
	}
	require.NoError(t, repo.CreateBatch(context.Background(), batch))
	return batch
}

func signingActor() models.Actor {
	return models.Actor{ID: "mfg-1", Role: models.RoleManufacturer, OrganizationID: "ORG-PHARMA-1"}
}

func TestSignAndVerifyBatch(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := newTestService(t, repo)
	seedBatch(t, repo)

	record, err := svc.Sign(context.Background(), TargetBatch, "b-1", signingActor())
	require.NoError(t, err)
	assert.Equal(t, models.SignatureActive, record.Status)
	assert.NotEmpty(t, record.DataHash)
	assert.NotEmpty(t, record.Signature)
	assert.NotEmpty(t, record.PublicKey)
	assert.Equal(t, "pharmatrace-internal-ca", record.Certificate.CAProvider)
	assert.Equal(t, signTime, record.Certificate.ValidFrom)

	result, err := svc.Verify(context.Background(), record.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Reason)
}

// Records carry the public key they were signed under, so verification must
// survive a signing key rotation, as happens on restart with an ephemeral key.
func TestVerifySurvivesKeyRotation(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := newTestService(t, repo)
	seedBatch(t, repo)

	record, err := svc.Sign(context.Background(), TargetBatch, "b-1", signingActor())
	require.NoError(t, err)

	rotated := newTestService(t, repo)
	result, err := rotated.Verify(context.Background(), record.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid, "verification must use the record's own key")

	// A forged signature still fails against the persisted key.
	forgedSig := []byte(record.Signature)
	if forgedSig[0] == '0' {
		forgedSig[0] = '1'
	} else {
		forgedSig[0] = '0'
	}
	record.Signature = string(forgedSig)
	forged := storage.NewMemoryRepository()
	seedBatch(t, forged)
	require.NoError(t, forged.CreateSignature(context.Background(), record))
	forgedSvc := newTestService(t, forged)
	result, err = forgedSvc.Verify(context.Background(), record.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonBadSignature, result.Reason)
}

// Mutating a canonical field after signing must invalidate verification even
// though the stored signature record is untouched.
func TestVerifyDetectsTampering(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := newTestService(t, repo)
	seedBatch(t, repo)

	record, err := svc.Sign(context.Background(), TargetBatch, "b-1", signingActor())
	require.NoError(t, err)

	// A distribution update touches no canonical field.
	err = repo.AppendDistributionEvent(context.Background(), "b-1", models.DistributionEvent{
		Status: "in_distribution", ActorID: "dist-1", Timestamp: signTime,
	})
	require.NoError(t, err)
	result, err := svc.Verify(context.Background(), record.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid, "non-canonical mutation must not invalidate")

	// Recall does not invalidate the production attestation either.
	require.NoError(t, repo.MarkBatchRecalled(context.Background(), "b-1", "contamination", "admin-1"))
	result, err = svc.Verify(context.Background(), record.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestVerifyDetectsCanonicalMutation(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := newTestService(t, repo)
	seedBatch(t, repo)

	record, err := svc.Sign(context.Background(), TargetBatch, "b-1", signingActor())
	require.NoError(t, err)

	// Simulate direct tampering with a canonical field.
	stored, err := repo.GetBatch(context.Background(), "b-1")
	require.NoError(t, err)
	stored.Dosage = "1000mg"
	tampered := storage.NewMemoryRepository()
	require.NoError(t, tampered.CreateBatch(context.Background(), stored))
	require.NoError(t, tampered.CreateSignature(context.Background(), record))

	tamperedSvc := NewService(tampered, mustSigner(t, svc), nil, Config{})
	tamperedSvc.SetClock(func() time.Time { return signTime })

	result, err := tamperedSvc.Verify(context.Background(), record.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonTampered, result.Reason)
}

func mustSigner(t *testing.T, svc *Service) Signer {
	t.Helper()
	return svc.signer
}

func TestVerifyCertificateExpiry(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := newTestService(t, repo)
	seedBatch(t, repo)

	record, err := svc.Sign(context.Background(), TargetBatch, "b-1", signingActor())
	require.NoError(t, err)

	// Advance the clock past the certificate window.
	svc.SetClock(func() time.Time { return signTime.Add(366 * 24 * time.Hour) })
	result, err := svc.Verify(context.Background(), record.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonCertExpired, result.Reason)
}

func TestSignLedger(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := newTestService(t, repo)

	ledger := &models.CustodyLedger{
		ID:          "ledger-1",
		BatchID:     "b-1",
		BatchNumber: "BATCH100",
		Steps: []models.CustodyStep{
			{ActorID: "mfg-1", Action: models.ActionCreated, Timestamp: signTime},
		},
		Status: models.LedgerActive,
	}
	require.NoError(t, repo.CreateLedger(context.Background(), ledger))

	record, err := svc.Sign(context.Background(), TargetLedger, "ledger-1", signingActor())
	require.NoError(t, err)

	result, err := svc.Verify(context.Background(), record.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	// Appending a step changes the canonical subset: the old signature no
	// longer attests the current custody history.
	step := models.CustodyStep{ActorID: "dist-1", Action: models.ActionReceived, Timestamp: signTime.Add(time.Hour)}
	require.NoError(t, repo.AppendStep(context.Background(), "ledger-1", step, models.CurrentLocation{ActorID: "dist-1"}))

	result, err = svc.Verify(context.Background(), record.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonTampered, result.Reason)
}

func TestSignUnknownTargetType(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := newTestService(t, repo)

	_, err := svc.Sign(context.Background(), "invoice", "x", signingActor())
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestRevoke(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := newTestService(t, repo)
	seedBatch(t, repo)

	record, err := svc.Sign(context.Background(), TargetBatch, "b-1", signingActor())
	require.NoError(t, err)

	// Only admins revoke.
	err = svc.Revoke(context.Background(), record.ID, "key compromise", signingActor())
	var authErr *apperr.AuthorizationError
	require.ErrorAs(t, err, &authErr)

	adminActor := models.Actor{ID: "admin-1", Role: models.RoleAdmin}
	require.NoError(t, svc.Revoke(context.Background(), record.ID, "key compromise", adminActor))

	result, err := svc.Verify(context.Background(), record.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonRevoked, result.Reason)
}

func TestListForTarget(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := newTestService(t, repo)
	seedBatch(t, repo)

	_, err := svc.Sign(context.Background(), TargetBatch, "b-1", signingActor())
	require.NoError(t, err)
	_, err = svc.Sign(context.Background(), TargetBatch, "b-1", signingActor())
	require.NoError(t, err)

	records, err := svc.ListForTarget(context.Background(), TargetBatch, "b-1")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = svc.ListForTarget(context.Background(), "invoice", "b-1")
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestBatchDigestStable(t *testing.T) {
	batch := &models.Batch{
		ID:               "b-1",
		BatchNumber:      "BATCH100",
		Name:             "Paracetamol 500mg",
		ActiveIngredient: "Paracetamol",
		ProductionDate:   signTime,
		ExpiryDate:       signTime.AddDate(2, 0, 0),
	}

	first, err := BatchDigest(batch)
	require.NoError(t, err)
	second, err := BatchDigest(batch)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Mutating operational state leaves the digest unchanged.
	batch.DistributionStatus = "in_distribution"
	batch.IsRecalled = true
	third, err := BatchDigest(batch)
	require.NoError(t, err)
	assert.Equal(t, first, third)

	// Mutating a canonical field changes it.
	batch.Dosage = "500mg"
	fourth, err := BatchDigest(batch)
	require.NoError(t, err)
	assert.NotEqual(t, first, fourth)
}
