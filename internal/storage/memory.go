package storage

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"pharmatrace/internal/apperr"
	"pharmatrace/internal/models"
)

// MemoryRepository is an in-memory Repository used by tests and dev mode.
// It enforces the same uniqueness and append-only semantics as the Postgres
// implementation so service tests exercise identical behavior.
type MemoryRepository struct {
	mu sync.RWMutex

	batches       map[string]*models.Batch
	ledgers       map[string]*models.CustodyLedger
	signatures    map[string]*models.SignatureRecord
	scanLogs      []*models.ScanLogEntry
	organizations map[string]*models.Organization
	patients      map[string]*models.Patient
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		batches:       make(map[string]*models.Batch),
		ledgers:       make(map[string]*models.CustodyLedger),
		signatures:    make(map[string]*models.SignatureRecord),
		organizations: make(map[string]*models.Organization),
		patients:      make(map[string]*models.Patient),
	}
}

// clone round-trips through JSON so callers never share memory with the store,
// mirroring the serialization boundary of the Postgres implementation.
func clone[T any](in *T) *T {
	raw, err := json.Marshal(in)
	if err != nil {
		panic(err)
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic(err)
	}
	return out
}

func (r *MemoryRepository) CreateBatch(ctx context.Context, batch *models.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.batches[batch.ID]; ok {
		return &apperr.DuplicateKeyError{Field: "id", Value: batch.ID}
	}
	for _, existing := range r.batches {
		if existing.BatchNumber == batch.BatchNumber {
			return &apperr.DuplicateKeyError{Field: "batch_number", Value: batch.BatchNumber}
		}
	}
	r.batches[batch.ID] = clone(batch)
	return nil
}

func (r *MemoryRepository) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	batch, ok := r.batches[id]
	if !ok {
		return nil, &apperr.NotFoundError{Entity: "batch", ID: id}
	}
	return clone(batch), nil
}

func (r *MemoryRepository) GetBatchByNumber(ctx context.Context, batchNumber string) (*models.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, batch := range r.batches {
		if batch.BatchNumber == batchNumber {
			return clone(batch), nil
		}
	}
	return nil, &apperr.NotFoundError{Entity: "batch", ID: batchNumber}
}

func (r *MemoryRepository) GetBatchByAnchorID(ctx context.Context, anchorID string) (*models.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, batch := range r.batches {
		if batch.Anchor.AnchorID != "" && batch.Anchor.AnchorID == anchorID {
			return clone(batch), nil
		}
	}
	return nil, &apperr.NotFoundError{Entity: "batch", ID: anchorID}
}

func (r *MemoryRepository) GetBatchByAnchorIDFold(ctx context.Context, anchorID string) (*models.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Map iteration order is random; resolve case-only collisions by lowest
	// batch id so repeated scans of the same code hit the same batch.
	var match *models.Batch
	for _, batch := range r.batches {
		if batch.Anchor.AnchorID == "" || !strings.EqualFold(batch.Anchor.AnchorID, anchorID) {
			continue
		}
		if match == nil || batch.ID < match.ID {
			match = batch
		}
	}
	if match == nil {
		return nil, &apperr.NotFoundError{Entity: "batch", ID: anchorID}
	}
	return clone(match), nil
}

func (r *MemoryRepository) UpdateBatchAnchor(ctx context.Context, id string, anchor models.Anchor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch, ok := r.batches[id]
	if !ok {
		return &apperr.NotFoundError{Entity: "batch", ID: id}
	}
	batch.Anchor = *clone(&anchor)
	batch.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) UpdateBatchCode(ctx context.Context, id string, code models.ScannableCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch, ok := r.batches[id]
	if !ok {
		return &apperr.NotFoundError{Entity: "batch", ID: id}
	}
	batch.Code = clone(&code)
	batch.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) AppendDistributionEvent(ctx context.Context, id string, event models.DistributionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch, ok := r.batches[id]
	if !ok {
		return &apperr.NotFoundError{Entity: "batch", ID: id}
	}
	batch.DistributionStatus = event.Status
	batch.DistributionHistory = append(batch.DistributionHistory, event)
	batch.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) MarkBatchRecalled(ctx context.Context, id, reason, actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch, ok := r.batches[id]
	if !ok {
		return &apperr.NotFoundError{Entity: "batch", ID: id}
	}
	if batch.IsRecalled {
		return nil
	}
	now := time.Now().UTC()
	batch.IsRecalled = true
	batch.RecallReason = reason
	batch.RecalledAt = &now
	batch.UpdatedAt = now
	return nil
}

func (r *MemoryRepository) CreateLedger(ctx context.Context, ledger *models.CustodyLedger) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ledgers[ledger.ID]; ok {
		return &apperr.DuplicateKeyError{Field: "id", Value: ledger.ID}
	}
	for _, existing := range r.ledgers {
		if existing.BatchID == ledger.BatchID && existing.BatchNumber == ledger.BatchNumber {
			return &apperr.DuplicateKeyError{Field: "batch_id", Value: ledger.BatchID}
		}
	}
	r.ledgers[ledger.ID] = clone(ledger)
	return nil
}

func (r *MemoryRepository) GetLedger(ctx context.Context, id string) (*models.CustodyLedger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ledger, ok := r.ledgers[id]
	if !ok {
		return nil, &apperr.NotFoundError{Entity: "custody ledger", ID: id}
	}
	return clone(ledger), nil
}

func (r *MemoryRepository) GetLedgerByBatch(ctx context.Context, batchID string) (*models.CustodyLedger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ledger := range r.ledgers {
		if ledger.BatchID == batchID {
			return clone(ledger), nil
		}
	}
	return nil, &apperr.NotFoundError{Entity: "custody ledger", ID: batchID}
}

func (r *MemoryRepository) AppendStep(ctx context.Context, ledgerID string, step models.CustodyStep, current models.CurrentLocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ledger, ok := r.ledgers[ledgerID]
	if !ok {
		return &apperr.NotFoundError{Entity: "custody ledger", ID: ledgerID}
	}
	ledger.Steps = append(ledger.Steps, step)
	ledger.CurrentLocation = clone(&current)
	ledger.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) AppendQualityCheck(ctx context.Context, ledgerID string, check models.QualityCheck) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ledger, ok := r.ledgers[ledgerID]
	if !ok {
		return &apperr.NotFoundError{Entity: "custody ledger", ID: ledgerID}
	}
	ledger.QualityChecks = append(ledger.QualityChecks, check)
	ledger.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) AppendAccessEntry(ctx context.Context, ledgerID string, entry models.AccessEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ledger, ok := r.ledgers[ledgerID]
	if !ok {
		return &apperr.NotFoundError{Entity: "custody ledger", ID: ledgerID}
	}
	ledger.AccessLog = append(ledger.AccessLog, entry)
	return nil
}

func (r *MemoryRepository) MarkLedgerRecalled(ctx context.Context, ledgerID string, recall models.RecallNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ledger, ok := r.ledgers[ledgerID]
	if !ok {
		return &apperr.NotFoundError{Entity: "custody ledger", ID: ledgerID}
	}
	if ledger.Status == models.LedgerRecalled {
		return nil
	}
	ledger.Status = models.LedgerRecalled
	ledger.Recall = *clone(&recall)
	ledger.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) CreateSignature(ctx context.Context, record *models.SignatureRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.signatures[record.ID]; ok {
		return &apperr.DuplicateKeyError{Field: "id", Value: record.ID}
	}
	r.signatures[record.ID] = clone(record)
	return nil
}

func (r *MemoryRepository) GetSignature(ctx context.Context, id string) (*models.SignatureRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.signatures[id]
	if !ok {
		return nil, &apperr.NotFoundError{Entity: "signature", ID: id}
	}
	return clone(record), nil
}

func (r *MemoryRepository) ListSignaturesByTarget(ctx context.Context, targetType, targetID string) ([]*models.SignatureRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []*models.SignatureRecord
	for _, record := range r.signatures {
		if record.TargetType == targetType && record.TargetID == targetID {
			records = append(records, clone(record))
		}
	}
	return records, nil
}

func (r *MemoryRepository) RevokeSignature(ctx context.Context, id, reason, actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.signatures[id]
	if !ok {
		return &apperr.NotFoundError{Entity: "signature", ID: id}
	}
	if record.Status == models.SignatureRevoked {
		return nil
	}
	now := time.Now().UTC()
	record.Status = models.SignatureRevoked
	record.RevocationReason = reason
	record.RevokedBy = actorID
	record.RevokedAt = &now
	return nil
}

func (r *MemoryRepository) SaveScanLog(ctx context.Context, entry *models.ScanLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scanLogs = append(r.scanLogs, clone(entry))
	return nil
}

// ScanLogs returns a copy of the recorded scan logs. Test-only accessor; the
// engine itself never reads scan logs back.
func (r *MemoryRepository) ScanLogs() []*models.ScanLogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.ScanLogEntry, 0, len(r.scanLogs))
	for _, entry := range r.scanLogs {
		out = append(out, clone(entry))
	}
	return out
}

func (r *MemoryRepository) CreateOrganization(ctx context.Context, org *models.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.organizations {
		if existing.OrganizationID == org.OrganizationID {
			return &apperr.DuplicateKeyError{Field: "organization_id", Value: org.OrganizationID}
		}
	}
	r.organizations[org.ID] = clone(org)
	return nil
}

func (r *MemoryRepository) CreatePatient(ctx context.Context, patient *models.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.patients {
		if existing.PatientID == patient.PatientID {
			return &apperr.DuplicateKeyError{Field: "patient_id", Value: patient.PatientID}
		}
	}
	r.patients[patient.ID] = clone(patient)
	return nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }

func (r *MemoryRepository) Close() error { return nil }
