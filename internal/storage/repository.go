package storage

import (
	"context"

	"pharmatrace/internal/models"
)

// Repository defines the interface for all storage operations
type Repository interface {
	// Batches
	CreateBatch(ctx context.Context, batch *models.Batch) error
	GetBatch(ctx context.Context, id string) (*models.Batch, error)
	GetBatchByNumber(ctx context.Context, batchNumber string) (*models.Batch, error)
	GetBatchByAnchorID(ctx context.Context, anchorID string) (*models.Batch, error)
	GetBatchByAnchorIDFold(ctx context.Context, anchorID string) (*models.Batch, error)
	UpdateBatchAnchor(ctx context.Context, id string, anchor models.Anchor) error
	UpdateBatchCode(ctx context.Context, id string, code models.ScannableCode) error
	AppendDistributionEvent(ctx context.Context, id string, event models.DistributionEvent) error
	MarkBatchRecalled(ctx context.Context, id, reason, actorID string) error

	// Custody ledgers
	CreateLedger(ctx context.Context, ledger *models.CustodyLedger) error
	GetLedger(ctx context.Context, id string) (*models.CustodyLedger, error)
	GetLedgerByBatch(ctx context.Context, batchID string) (*models.CustodyLedger, error)
	AppendStep(ctx context.Context, ledgerID string, step models.CustodyStep, current models.CurrentLocation) error
	AppendQualityCheck(ctx context.Context, ledgerID string, check models.QualityCheck) error
	AppendAccessEntry(ctx context.Context, ledgerID string, entry models.AccessEntry) error
	MarkLedgerRecalled(ctx context.Context, ledgerID string, recall models.RecallNotice) error

	// Signatures
	CreateSignature(ctx context.Context, record *models.SignatureRecord) error
	GetSignature(ctx context.Context, id string) (*models.SignatureRecord, error)
	ListSignaturesByTarget(ctx context.Context, targetType, targetID string) ([]*models.SignatureRecord, error)
	RevokeSignature(ctx context.Context, id, reason, actorID string) error

	// Scan logs (write-only)
	SaveScanLog(ctx context.Context, entry *models.ScanLogEntry) error

	// Identity
	CreateOrganization(ctx context.Context, org *models.Organization) error
	CreatePatient(ctx context.Context, patient *models.Patient) error

	// Health & Maintenance
	Ping(ctx context.Context) error
	Close() error
}
