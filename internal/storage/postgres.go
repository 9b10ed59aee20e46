package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"pharmatrace/internal/apperr"
	"pharmatrace/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository and applies the schema
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, ddl := range schema {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return &PostgresRepository{
		pool: pool,
	}, nil
}

// translateUnique converts a SQLSTATE 23505 violation into a typed
// DuplicateKeyError naming the offending field. Other errors pass through.
func translateUnique(err error, value string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		field := uniqueConstraintFields[pgErr.ConstraintName]
		if field == "" {
			field = pgErr.ConstraintName
		}
		return &apperr.DuplicateKeyError{Field: field, Value: value}
	}
	return err
}

const batchColumns = `
	id, batch_number, name, active_ingredient, dosage, form,
	production_date, expiry_date, quality_test, storage_conditions,
	manufacturer_id, distribution_status, distribution_history,
	is_recalled, recall_reason, recalled_at, anchor, code,
	created_by, created_at, updated_at`

// CreateBatch inserts a new batch record. Uniqueness of batch_number is
// enforced by the table constraint, not by a prior existence check.
func (r *PostgresRepository) CreateBatch(ctx context.Context, batch *models.Batch) error {
	qualityJSON, err := json.Marshal(batch.QualityTest)
	if err != nil {
		return fmt.Errorf("failed to marshal quality_test: %w", err)
	}
	storageJSON, err := json.Marshal(batch.StorageConditions)
	if err != nil {
		return fmt.Errorf("failed to marshal storage_conditions: %w", err)
	}
	historyJSON, err := json.Marshal(nonNilEvents(batch.DistributionHistory))
	if err != nil {
		return fmt.Errorf("failed to marshal distribution_history: %w", err)
	}
	anchorJSON, err := json.Marshal(batch.Anchor)
	if err != nil {
		return fmt.Errorf("failed to marshal anchor: %w", err)
	}

	query := `
		INSERT INTO batches (
			id, batch_number, name, active_ingredient, dosage, form,
			production_date, expiry_date, quality_test, storage_conditions,
			manufacturer_id, distribution_status, distribution_history,
			anchor, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
	`

	_, err = r.pool.Exec(ctx, query,
		batch.ID,
		batch.BatchNumber,
		batch.Name,
		batch.ActiveIngredient,
		batch.Dosage,
		batch.Form,
		batch.ProductionDate,
		batch.ExpiryDate,
		qualityJSON,
		storageJSON,
		batch.ManufacturerID,
		batch.DistributionStatus,
		historyJSON,
		anchorJSON,
		batch.CreatedBy,
		batch.CreatedAt,
	)
	if err != nil {
		if terr := translateUnique(err, batch.BatchNumber); terr != err {
			return terr
		}
		return fmt.Errorf("failed to insert batch: %w", err)
	}

	return nil
}

func (r *PostgresRepository) getBatchWhere(ctx context.Context, where string, arg any) (*models.Batch, error) {
	query := `SELECT` + batchColumns + ` FROM batches WHERE ` + where
	row := r.pool.QueryRow(ctx, query, arg)
	return scanBatch(row)
}

// GetBatch fetches a batch by its immutable id
func (r *PostgresRepository) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := r.getBatchWhere(ctx, `id = $1`, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperr.NotFoundError{Entity: "batch", ID: id}
	}
	return batch, err
}

// GetBatchByNumber fetches a batch by its globally unique batch number
func (r *PostgresRepository) GetBatchByNumber(ctx context.Context, batchNumber string) (*models.Batch, error) {
	batch, err := r.getBatchWhere(ctx, `batch_number = $1`, batchNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperr.NotFoundError{Entity: "batch", ID: batchNumber}
	}
	return batch, err
}

// GetBatchByAnchorID fetches a batch by exact anchor id match
func (r *PostgresRepository) GetBatchByAnchorID(ctx context.Context, anchorID string) (*models.Batch, error) {
	batch, err := r.getBatchWhere(ctx, `anchor->>'anchor_id' = $1`, anchorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperr.NotFoundError{Entity: "batch", ID: anchorID}
	}
	return batch, err
}

// GetBatchByAnchorIDFold fetches a batch by case-insensitive, full-length
// anchor id match (defends against scanner/OCR case noise). Anchor ids that
// differ only by case are resolved by lowest batch id so repeated scans of
// the same code hit the same batch.
func (r *PostgresRepository) GetBatchByAnchorIDFold(ctx context.Context, anchorID string) (*models.Batch, error) {
	batch, err := r.getBatchWhere(ctx, `lower(anchor->>'anchor_id') = lower($1) ORDER BY id LIMIT 1`, anchorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperr.NotFoundError{Entity: "batch", ID: anchorID}
	}
	return batch, err
}

// UpdateBatchAnchor applies the anchor outcome as a follow-up update.
// The batch row stays readable and unlocked while the ledger call is in flight.
func (r *PostgresRepository) UpdateBatchAnchor(ctx context.Context, id string, anchor models.Anchor) error {
	anchorJSON, err := json.Marshal(anchor)
	if err != nil {
		return fmt.Errorf("failed to marshal anchor: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE batches SET anchor = $2, updated_at = now() WHERE id = $1`,
		id, anchorJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch anchor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &apperr.NotFoundError{Entity: "batch", ID: id}
	}
	return nil
}

// UpdateBatchCode persists the generated scannable-code payload
func (r *PostgresRepository) UpdateBatchCode(ctx context.Context, id string, code models.ScannableCode) error {
	codeJSON, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to marshal code: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE batches SET code = $2, updated_at = now() WHERE id = $1`,
		id, codeJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &apperr.NotFoundError{Entity: "batch", ID: id}
	}
	return nil
}

// AppendDistributionEvent appends a history entry and sets the derived
// distribution_status in a single atomic statement
func (r *PostgresRepository) AppendDistributionEvent(ctx context.Context, id string, event models.DistributionEvent) error {
	eventJSON, err := json.Marshal([]models.DistributionEvent{event})
	if err != nil {
		return fmt.Errorf("failed to marshal distribution event: %w", err)
	}

	query := `
		UPDATE batches
		SET distribution_status = $2,
		    distribution_history = distribution_history || $3::jsonb,
		    updated_at = now()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, event.Status, eventJSON)
	if err != nil {
		return fmt.Errorf("failed to append distribution event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &apperr.NotFoundError{Entity: "batch", ID: id}
	}
	return nil
}

// MarkBatchRecalled sets the recall flag. The flag is irreversible; a second
// recall is a no-op and the first reason wins.
func (r *PostgresRepository) MarkBatchRecalled(ctx context.Context, id, reason, actorID string) error {
	query := `
		UPDATE batches
		SET is_recalled = TRUE, recall_reason = $2, recalled_at = now(), updated_at = now()
		WHERE id = $1 AND is_recalled = FALSE
	`
	tag, err := r.pool.Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("failed to mark batch recalled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already recalled; only the former is an error.
		if _, err := r.GetBatch(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// scanBatch reads one batch row, unmarshalling the JSONB sub-records
func scanBatch(row pgx.Row) (*models.Batch, error) {
	var (
		batch       models.Batch
		qualityJSON []byte
		storageJSON []byte
		historyJSON []byte
		anchorJSON  []byte
		codeJSON    []byte
	)

	err := row.Scan(
		&batch.ID,
		&batch.BatchNumber,
		&batch.Name,
		&batch.ActiveIngredient,
		&batch.Dosage,
		&batch.Form,
		&batch.ProductionDate,
		&batch.ExpiryDate,
		&qualityJSON,
		&storageJSON,
		&batch.ManufacturerID,
		&batch.DistributionStatus,
		&historyJSON,
		&batch.IsRecalled,
		&batch.RecallReason,
		&batch.RecalledAt,
		&anchorJSON,
		&codeJSON,
		&batch.CreatedBy,
		&batch.CreatedAt,
		&batch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(qualityJSON, &batch.QualityTest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quality_test: %w", err)
	}
	if err := json.Unmarshal(storageJSON, &batch.StorageConditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal storage_conditions: %w", err)
	}
	if err := json.Unmarshal(historyJSON, &batch.DistributionHistory); err != nil {
		return nil, fmt.Errorf("failed to unmarshal distribution_history: %w", err)
	}
	if err := json.Unmarshal(anchorJSON, &batch.Anchor); err != nil {
		return nil, fmt.Errorf("failed to unmarshal anchor: %w", err)
	}
	if codeJSON != nil {
		batch.Code = &models.ScannableCode{}
		if err := json.Unmarshal(codeJSON, batch.Code); err != nil {
			return nil, fmt.Errorf("failed to unmarshal code: %w", err)
		}
	}

	return &batch, nil
}

// CreateLedger inserts a custody ledger. The one-ledger-per-batch invariant
// is the (batch_id, batch_number) unique constraint.
func (r *PostgresRepository) CreateLedger(ctx context.Context, ledger *models.CustodyLedger) error {
	stepsJSON, err := json.Marshal(nonNilSteps(ledger.Steps))
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}
	recallJSON, err := json.Marshal(ledger.Recall)
	if err != nil {
		return fmt.Errorf("failed to marshal recall: %w", err)
	}
	var currentJSON []byte
	if ledger.CurrentLocation != nil {
		currentJSON, err = json.Marshal(ledger.CurrentLocation)
		if err != nil {
			return fmt.Errorf("failed to marshal current_location: %w", err)
		}
	}

	query := `
		INSERT INTO custody_ledgers (
			id, batch_id, batch_number, steps, current_location,
			status, recall, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		ledger.ID,
		ledger.BatchID,
		ledger.BatchNumber,
		stepsJSON,
		currentJSON,
		ledger.Status,
		recallJSON,
		ledger.CreatedBy,
		ledger.CreatedAt,
	)
	if err != nil {
		if terr := translateUnique(err, ledger.BatchID); terr != err {
			return terr
		}
		return fmt.Errorf("failed to insert custody ledger: %w", err)
	}

	return nil
}

const ledgerColumns = `
	id, batch_id, batch_number, steps, current_location,
	quality_checks, access_log, status, recall,
	created_by, created_at, updated_at`

func (r *PostgresRepository) getLedgerWhere(ctx context.Context, where string, arg any) (*models.CustodyLedger, error) {
	query := `SELECT` + ledgerColumns + ` FROM custody_ledgers WHERE ` + where
	row := r.pool.QueryRow(ctx, query, arg)
	return scanLedger(row)
}

// GetLedger fetches a custody ledger by id
func (r *PostgresRepository) GetLedger(ctx context.Context, id string) (*models.CustodyLedger, error) {
	ledger, err := r.getLedgerWhere(ctx, `id = $1`, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperr.NotFoundError{Entity: "custody ledger", ID: id}
	}
	return ledger, err
}

// GetLedgerByBatch fetches the custody ledger owned by a batch
func (r *PostgresRepository) GetLedgerByBatch(ctx context.Context, batchID string) (*models.CustodyLedger, error) {
	ledger, err := r.getLedgerWhere(ctx, `batch_id = $1`, batchID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperr.NotFoundError{Entity: "custody ledger", ID: batchID}
	}
	return ledger, err
}

// AppendStep pushes one custody step and recomputes the current-location
// snapshot in a single atomic statement. Two actors appending concurrently
// both land; neither overwrites the other's step.
func (r *PostgresRepository) AppendStep(ctx context.Context, ledgerID string, step models.CustodyStep, current models.CurrentLocation) error {
	stepJSON, err := json.Marshal([]models.CustodyStep{step})
	if err != nil {
		return fmt.Errorf("failed to marshal step: %w", err)
	}
	currentJSON, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("failed to marshal current_location: %w", err)
	}

	query := `
		UPDATE custody_ledgers
		SET steps = steps || $2::jsonb,
		    current_location = $3,
		    updated_at = now()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, ledgerID, stepJSON, currentJSON)
	if err != nil {
		return fmt.Errorf("failed to append step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &apperr.NotFoundError{Entity: "custody ledger", ID: ledgerID}
	}
	return nil
}

// AppendQualityCheck appends one quality-check entry atomically
func (r *PostgresRepository) AppendQualityCheck(ctx context.Context, ledgerID string, check models.QualityCheck) error {
	checkJSON, err := json.Marshal([]models.QualityCheck{check})
	if err != nil {
		return fmt.Errorf("failed to marshal quality check: %w", err)
	}

	query := `
		UPDATE custody_ledgers
		SET quality_checks = quality_checks || $2::jsonb, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, ledgerID, checkJSON)
	if err != nil {
		return fmt.Errorf("failed to append quality check: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &apperr.NotFoundError{Entity: "custody ledger", ID: ledgerID}
	}
	return nil
}

// AppendAccessEntry appends one access-log entry atomically
func (r *PostgresRepository) AppendAccessEntry(ctx context.Context, ledgerID string, entry models.AccessEntry) error {
	entryJSON, err := json.Marshal([]models.AccessEntry{entry})
	if err != nil {
		return fmt.Errorf("failed to marshal access entry: %w", err)
	}

	query := `
		UPDATE custody_ledgers
		SET access_log = access_log || $2::jsonb
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, ledgerID, entryJSON)
	if err != nil {
		return fmt.Errorf("failed to append access entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &apperr.NotFoundError{Entity: "custody ledger", ID: ledgerID}
	}
	return nil
}

// MarkLedgerRecalled sets the ledger-level recall sub-record and flips the
// status to recalled. Terminal for normal flow; the first recall wins.
func (r *PostgresRepository) MarkLedgerRecalled(ctx context.Context, ledgerID string, recall models.RecallNotice) error {
	recallJSON, err := json.Marshal(recall)
	if err != nil {
		return fmt.Errorf("failed to marshal recall: %w", err)
	}

	query := `
		UPDATE custody_ledgers
		SET status = 'recalled', recall = $2, updated_at = now()
		WHERE id = $1 AND status <> 'recalled'
	`
	tag, err := r.pool.Exec(ctx, query, ledgerID, recallJSON)
	if err != nil {
		return fmt.Errorf("failed to mark ledger recalled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetLedger(ctx, ledgerID); err != nil {
			return err
		}
	}
	return nil
}

// scanLedger reads one custody ledger row
func scanLedger(row pgx.Row) (*models.CustodyLedger, error) {
	var (
		ledger      models.CustodyLedger
		stepsJSON   []byte
		currentJSON []byte
		checksJSON  []byte
		accessJSON  []byte
		recallJSON  []byte
	)

	err := row.Scan(
		&ledger.ID,
		&ledger.BatchID,
		&ledger.BatchNumber,
		&stepsJSON,
		&currentJSON,
		&checksJSON,
		&accessJSON,
		&ledger.Status,
		&recallJSON,
		&ledger.CreatedBy,
		&ledger.CreatedAt,
		&ledger.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(stepsJSON, &ledger.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}
	if currentJSON != nil {
		ledger.CurrentLocation = &models.CurrentLocation{}
		if err := json.Unmarshal(currentJSON, ledger.CurrentLocation); err != nil {
			return nil, fmt.Errorf("failed to unmarshal current_location: %w", err)
		}
	}
	if err := json.Unmarshal(checksJSON, &ledger.QualityChecks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quality_checks: %w", err)
	}
	if err := json.Unmarshal(accessJSON, &ledger.AccessLog); err != nil {
		return nil, fmt.Errorf("failed to unmarshal access_log: %w", err)
	}
	if err := json.Unmarshal(recallJSON, &ledger.Recall); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recall: %w", err)
	}

	return &ledger, nil
}

// CreateSignature inserts one append-only signature record
func (r *PostgresRepository) CreateSignature(ctx context.Context, record *models.SignatureRecord) error {
	certJSON, err := json.Marshal(record.Certificate)
	if err != nil {
		return fmt.Errorf("failed to marshal certificate: %w", err)
	}
	proofJSON, err := json.Marshal(record.TimestampProof)
	if err != nil {
		return fmt.Errorf("failed to marshal timestamp_proof: %w", err)
	}

	query := `
		INSERT INTO signatures (
			id, target_type, target_id, signed_by, data_hash, signature,
			public_key, certificate, timestamp_proof, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.pool.Exec(ctx, query,
		record.ID,
		record.TargetType,
		record.TargetID,
		record.SignedBy,
		record.DataHash,
		record.Signature,
		record.PublicKey,
		certJSON,
		proofJSON,
		record.Status,
		record.CreatedAt,
	)
	if err != nil {
		if terr := translateUnique(err, record.ID); terr != err {
			return terr
		}
		return fmt.Errorf("failed to insert signature: %w", err)
	}
	return nil
}

const signatureColumns = `
	id, target_type, target_id, signed_by, data_hash, signature, public_key,
	certificate, timestamp_proof, status, revocation_reason, revoked_at,
	revoked_by, created_at`

// GetSignature fetches a signature record by id
func (r *PostgresRepository) GetSignature(ctx context.Context, id string) (*models.SignatureRecord, error) {
	query := `SELECT` + signatureColumns + ` FROM signatures WHERE id = $1`
	record, err := scanSignature(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperr.NotFoundError{Entity: "signature", ID: id}
	}
	return record, err
}

// ListSignaturesByTarget lists all signing events for a target, newest first
func (r *PostgresRepository) ListSignaturesByTarget(ctx context.Context, targetType, targetID string) ([]*models.SignatureRecord, error) {
	query := `SELECT` + signatureColumns + `
		FROM signatures
		WHERE target_type = $1 AND target_id = $2
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, targetType, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list signatures: %w", err)
	}
	defer rows.Close()

	var records []*models.SignatureRecord
	for rows.Next() {
		record, err := scanSignature(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signature: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signatures: %w", err)
	}
	return records, nil
}

// RevokeSignature irreversibly marks a signature revoked. A second revoke is
// a no-op; the first reason wins.
func (r *PostgresRepository) RevokeSignature(ctx context.Context, id, reason, actorID string) error {
	query := `
		UPDATE signatures
		SET status = 'revoked', revocation_reason = $2, revoked_by = $3, revoked_at = now()
		WHERE id = $1 AND status <> 'revoked'
	`
	tag, err := r.pool.Exec(ctx, query, id, reason, actorID)
	if err != nil {
		return fmt.Errorf("failed to revoke signature: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetSignature(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func scanSignature(row pgx.Row) (*models.SignatureRecord, error) {
	var (
		record    models.SignatureRecord
		certJSON  []byte
		proofJSON []byte
	)

	err := row.Scan(
		&record.ID,
		&record.TargetType,
		&record.TargetID,
		&record.SignedBy,
		&record.DataHash,
		&record.Signature,
		&record.PublicKey,
		&certJSON,
		&proofJSON,
		&record.Status,
		&record.RevocationReason,
		&record.RevokedAt,
		&record.RevokedBy,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(certJSON, &record.Certificate); err != nil {
		return nil, fmt.Errorf("failed to unmarshal certificate: %w", err)
	}
	if err := json.Unmarshal(proofJSON, &record.TimestampProof); err != nil {
		return nil, fmt.Errorf("failed to unmarshal timestamp_proof: %w", err)
	}
	return &record, nil
}

// SaveScanLog inserts one scan-log row. Scan logs are write-only.
func (r *PostgresRepository) SaveScanLog(ctx context.Context, entry *models.ScanLogEntry) error {
	strategiesJSON, err := json.Marshal(entry.StrategiesTried)
	if err != nil {
		return fmt.Errorf("failed to marshal strategies_tried: %w", err)
	}

	var batchID *string
	if entry.BatchID != "" {
		batchID = &entry.BatchID
	}

	query := `
		INSERT INTO scan_logs (
			id, raw_input, batch_id, outcome, alert_type, error_text,
			strategies_tried, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		entry.ID,
		entry.RawInput,
		batchID,
		entry.Outcome,
		entry.AlertType,
		entry.Error,
		strategiesJSON,
		entry.ActorID,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert scan log: %w", err)
	}
	return nil
}

// CreateOrganization inserts an organization, relying on the unique
// organization_id constraint
func (r *PostgresRepository) CreateOrganization(ctx context.Context, org *models.Organization) error {
	query := `INSERT INTO organizations (id, organization_id, name, role) VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, org.ID, org.OrganizationID, org.Name, org.Role)
	if err != nil {
		if terr := translateUnique(err, org.OrganizationID); terr != err {
			return terr
		}
		return fmt.Errorf("failed to insert organization: %w", err)
	}
	return nil
}

// CreatePatient inserts a patient, relying on the unique patient_id constraint
func (r *PostgresRepository) CreatePatient(ctx context.Context, patient *models.Patient) error {
	query := `INSERT INTO patients (id, patient_id, name) VALUES ($1, $2, $3)`
	_, err := r.pool.Exec(ctx, query, patient.ID, patient.PatientID, patient.Name)
	if err != nil {
		if terr := translateUnique(err, patient.PatientID); terr != err {
			return terr
		}
		return fmt.Errorf("failed to insert patient: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func nonNilEvents(events []models.DistributionEvent) []models.DistributionEvent {
	if events == nil {
		return []models.DistributionEvent{}
	}
	return events
}

func nonNilSteps(steps []models.CustodyStep) []models.CustodyStep {
	if steps == nil {
		return []models.CustodyStep{}
	}
	return steps
}
