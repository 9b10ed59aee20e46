// Package batch owns the batch lifecycle and the anchoring pipeline. The
// local record is the source of truth; the external ledger anchor is
// enrichment, and a failed anchor never blocks batch creation.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"pharmatrace/internal/anchor"
	"pharmatrace/internal/apperr"
	"pharmatrace/internal/events"
	"pharmatrace/internal/metrics"
	"pharmatrace/internal/models"
	"pharmatrace/internal/signature"
	"pharmatrace/internal/storage"

	"github.com/google/uuid"
)

// Service is the batch record and anchoring pipeline.
type Service struct {
	repo       storage.Repository
	anchors    anchor.Client
	store      ObjectStore
	dispatcher *events.Dispatcher

	verificationBaseURL string
	now                 func() time.Time
}

// NewService creates the batch pipeline
func NewService(repo storage.Repository, anchors anchor.Client, store ObjectStore, dispatcher *events.Dispatcher, verificationBaseURL string) *Service {
	if store == nil {
		store = NullObjectStore{}
	}
	return &Service{
		repo:                repo,
		anchors:             anchors,
		store:               store,
		dispatcher:          dispatcher,
		verificationBaseURL: verificationBaseURL,
		now:                 time.Now,
	}
}

// SetClock overrides the wall clock. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// CreateInput is the caller-supplied portion of a new batch.
type CreateInput struct {
	BatchNumber      string
	Name             string
	ActiveIngredient string
	Dosage           string
	Form             string
	ProductionDate   time.Time
	ExpiryDate       time.Time

	QualityTest       models.QualityTest
	StorageConditions models.StorageConditions
}

func (in *CreateInput) validate() error {
	switch {
	case in.BatchNumber == "":
		return &apperr.ValidationError{Field: "batch_number", Reason: "required"}
	case in.Name == "":
		return &apperr.ValidationError{Field: "name", Reason: "required"}
	case in.ActiveIngredient == "":
		return &apperr.ValidationError{Field: "active_ingredient", Reason: "required"}
	case in.ProductionDate.IsZero():
		return &apperr.ValidationError{Field: "production_date", Reason: "required"}
	case in.ExpiryDate.IsZero():
		return &apperr.ValidationError{Field: "expiry_date", Reason: "required"}
	case !in.ExpiryDate.After(in.ProductionDate):
		return &apperr.ValidationError{Field: "expiry_date", Reason: "must be after production date"}
	}
	return nil
}

// Create validates and persists a new batch, then anchors it and generates
// the scannable code payload. Uniqueness of the batch number is the storage
// constraint's job, not a read-then-write check; a lost race surfaces as
// DuplicateKeyError.
//
// The batch is persisted and returned as successful regardless of the anchor
// outcome: anchor failure only downgrades anchor.state, with an error note.
func (s *Service) Create(ctx context.Context, input CreateInput, creator models.Actor) (*models.Batch, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	batch := &models.Batch{
		ID:                 uuid.NewString(),
		BatchNumber:        input.BatchNumber,
		Name:               input.Name,
		ActiveIngredient:   input.ActiveIngredient,
		Dosage:             input.Dosage,
		Form:               input.Form,
		ProductionDate:     input.ProductionDate.UTC(),
		ExpiryDate:         input.ExpiryDate.UTC(),
		QualityTest:        input.QualityTest,
		StorageConditions:  input.StorageConditions,
		ManufacturerID:     creator.OrganizationID,
		DistributionStatus: "manufactured",
		Anchor: models.Anchor{
			State: models.AnchorPending,
			History: []models.AnchorEvent{
				{State: models.AnchorPending, Timestamp: now},
			},
		},
		CreatedBy: creator.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}
	metrics.BatchesCreated.Inc()

	// The record is committed and readable; the anchor call happens without
	// any lock held and its result lands via a follow-up update.
	s.anchorBatch(ctx, batch)
	s.attachCode(ctx, batch)

	s.dispatcher.Emit(ctx, &events.Event{
		Type:    events.BatchCreated,
		BatchID: batch.ID,
		ActorID: creator.ID,
		Payload: map[string]any{"batch_number": batch.BatchNumber},
	})

	slog.Info("Created batch",
		"batch_id", batch.ID,
		"batch_number", batch.BatchNumber,
		"anchor_state", batch.Anchor.State,
	)

	return batch, nil
}

// anchorBatch runs the single external-ledger call for a new batch and
// applies the outcome. Transport-level failures leave the anchor pending for
// out-of-band reconciliation; definitive rejections mark it failed. Neither
// is surfaced to the Create caller.
func (s *Service) anchorBatch(ctx context.Context, batch *models.Batch) {
	dataHash, err := signature.BatchDigest(batch)
	if err != nil {
		s.downgradeAnchor(ctx, batch, models.AnchorFailed, "hashing failed: "+err.Error())
		return
	}
	batch.Anchor.DataHash = dataHash

	receipt, err := s.anchors.Anchor(ctx, anchor.Payload{
		BatchID:     batch.ID,
		BatchNumber: batch.BatchNumber,
		DataHash:    dataHash,
	})
	if err != nil {
		state := models.AnchorFailed
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			state = models.AnchorPending
		}
		s.downgradeAnchor(ctx, batch, state, err.Error())
		return
	}

	now := s.now().UTC()
	batch.Anchor.AnchorID = receipt.AnchorID
	batch.Anchor.TxRef = receipt.TxRef
	batch.Anchor.BlockRef = receipt.BlockRef
	batch.Anchor.State = models.AnchorConfirmed
	batch.Anchor.Error = ""
	batch.Anchor.History = append(batch.Anchor.History, models.AnchorEvent{
		State:     models.AnchorConfirmed,
		Timestamp: now,
	})

	if err := s.repo.UpdateBatchAnchor(ctx, batch.ID, batch.Anchor); err != nil {
		slog.Error("Failed to store anchor result", "batch_id", batch.ID, "error", err)
	}
	metrics.AnchorAttempts.WithLabelValues(string(models.AnchorConfirmed)).Inc()

	s.dispatcher.Emit(ctx, &events.Event{
		Type:    events.BatchAnchored,
		BatchID: batch.ID,
		Payload: map[string]any{"anchor_id": receipt.AnchorID, "tx_ref": receipt.TxRef},
	})
}

func (s *Service) downgradeAnchor(ctx context.Context, batch *models.Batch, state models.AnchorState, note string) {
	batch.Anchor.State = state
	batch.Anchor.Error = note
	batch.Anchor.History = append(batch.Anchor.History, models.AnchorEvent{
		State:     state,
		Note:      note,
		Timestamp: s.now().UTC(),
	})

	if err := s.repo.UpdateBatchAnchor(ctx, batch.ID, batch.Anchor); err != nil {
		slog.Error("Failed to store anchor downgrade", "batch_id", batch.ID, "error", err)
	}
	metrics.AnchorAttempts.WithLabelValues(string(state)).Inc()

	slog.Warn("Anchor attempt downgraded",
		"batch_id", batch.ID,
		"state", state,
		"note", note,
	)
}

// attachCode generates and persists the scannable payload after the anchor
// attempt completes, so the payload embeds the final identifier.
func (s *Service) attachCode(ctx context.Context, batch *models.Batch) {
	code, err := buildCode(batch.ID, batch.BatchNumber, batch.Anchor.AnchorID, s.verificationBaseURL)
	if err != nil {
		slog.Error("Failed to build code payload", "batch_id", batch.ID, "error", err)
		return
	}

	// Image rendering/storage is a collaborator concern; an empty reference
	// just means no image was stored.
	if ref, err := s.store.Put(ctx, "codes/"+batch.ID+".png", []byte(code.Data)); err != nil {
		slog.Warn("Failed to store code image", "batch_id", batch.ID, "error", err)
	} else {
		code.ImageRef = ref
	}

	if err := s.repo.UpdateBatchCode(ctx, batch.ID, code); err != nil {
		slog.Error("Failed to store code payload", "batch_id", batch.ID, "error", err)
		return
	}
	batch.Code = &code
}

// Recall irreversibly flags the batch as recalled. Admin or the owning
// manufacturer only. The custody ledger's own recall is a separate explicit
// call; the emitted event lets operators follow up with it.
func (s *Service) Recall(ctx context.Context, batchID, reason string, actor models.Actor) (*models.Batch, error) {
	if reason == "" {
		return nil, &apperr.ValidationError{Field: "reason", Reason: "required"}
	}

	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		if actor.Role != models.RoleManufacturer || actor.OrganizationID != batch.ManufacturerID {
			return nil, &apperr.AuthorizationError{ActorID: actor.ID, Role: string(actor.Role), Action: "recall batch"}
		}
	}

	if err := s.repo.MarkBatchRecalled(ctx, batchID, reason, actor.ID); err != nil {
		return nil, err
	}

	s.dispatcher.Emit(ctx, &events.Event{
		Type:    events.BatchRecalled,
		BatchID: batchID,
		ActorID: actor.ID,
		Payload: map[string]any{"reason": reason},
	})

	slog.Info("Recalled batch", "batch_id", batchID, "recalled_by", actor.ID, "reason", reason)

	return s.repo.GetBatch(ctx, batchID)
}

// UpdateDistributionStatus appends a location/ownership change and sets the
// derived status in one atomic storage update.
func (s *Service) UpdateDistributionStatus(ctx context.Context, batchID, status, location string, actor models.Actor) error {
	if status == "" {
		return &apperr.ValidationError{Field: "status", Reason: "required"}
	}
	if !actor.Role.Valid() || actor.Role == models.RolePatient {
		return &apperr.AuthorizationError{ActorID: actor.ID, Role: string(actor.Role), Action: "update distribution status"}
	}

	event := models.DistributionEvent{
		Status:    status,
		Location:  location,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Timestamp: s.now().UTC(),
	}
	return s.repo.AppendDistributionEvent(ctx, batchID, event)
}

// Get fetches a batch by id.
func (s *Service) Get(ctx context.Context, batchID string) (*models.Batch, error) {
	return s.repo.GetBatch(ctx, batchID)
}
