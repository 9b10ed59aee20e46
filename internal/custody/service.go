package custody

import (
	"context"
	"log/slog"
	"time"

	"pharmatrace/internal/apperr"
	"pharmatrace/internal/events"
	"pharmatrace/internal/metrics"
	"pharmatrace/internal/models"
	"pharmatrace/internal/storage"

	"github.com/google/uuid"
)

// AccessRecorder persists access-log entries best-effort, off the primary
// path. audit.Recorder implements it.
type AccessRecorder interface {
	RecordAccess(ledgerID string, entry models.AccessEntry)
}

// Service owns custody-ledger lifecycle and the append-only discipline.
type Service struct {
	repo       storage.Repository
	access     AccessRecorder
	dispatcher *events.Dispatcher
	now        func() time.Time
}

// NewService creates a custody service
func NewService(repo storage.Repository, access AccessRecorder, dispatcher *events.Dispatcher) *Service {
	return &Service{
		repo:       repo,
		access:     access,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// SetClock overrides the wall clock. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// CreateLedger creates the single custody ledger for a batch. The
// one-ledger-per-batch invariant is the storage unique constraint on
// (batch_id, batch_number); a lost race surfaces as DuplicateKeyError.
func (s *Service) CreateLedger(ctx context.Context, batchID, batchNumber string, creator models.Actor) (*models.CustodyLedger, error) {
	if batchID == "" {
		return nil, &apperr.ValidationError{Field: "batch_id", Reason: "required"}
	}
	if batchNumber == "" {
		return nil, &apperr.ValidationError{Field: "batch_number", Reason: "required"}
	}

	now := s.now().UTC()
	ledger := &models.CustodyLedger{
		ID:          uuid.NewString(),
		BatchID:     batchID,
		BatchNumber: batchNumber,
		Steps:       []models.CustodyStep{},
		Status:      models.LedgerActive,
		Recall:      models.RecallNotice{Recalled: false},
		CreatedBy:   creator.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.CreateLedger(ctx, ledger); err != nil {
		return nil, err
	}

	slog.Info("Created custody ledger",
		"ledger_id", ledger.ID,
		"batch_id", batchID,
		"batch_number", batchNumber,
	)
	return ledger, nil
}

// StepInput is the caller-supplied portion of a custody step. StepType is
// absent on purpose: it is derived from the actor's role.
type StepInput struct {
	Action             models.StepAction
	Location           models.StepLocation
	Conditions         models.StepConditions
	Metadata           map[string]any
	Verified           bool
	VerificationMethod string
}

// AddStep appends one custody step. The acting role must permit the action;
// the step and the recomputed current-location snapshot are written in a
// single atomic storage update so concurrent appends never lose a step.
func (s *Service) AddStep(ctx context.Context, ledgerID string, input StepInput, actor models.Actor) (*models.CustodyStep, error) {
	if input.Action == "" {
		return nil, &apperr.ValidationError{Field: "action", Reason: "required"}
	}
	if !Permitted(actor.Role, input.Action) {
		return nil, &apperr.AuthorizationError{
			ActorID: actor.ID,
			Role:    string(actor.Role),
			Action:  "record step " + string(input.Action),
		}
	}
	stepType, ok := StepTypeFor(actor.Role)
	if !ok {
		return nil, &apperr.AuthorizationError{ActorID: actor.ID, Role: string(actor.Role), Action: "record step"}
	}

	now := s.now().UTC()
	step := models.CustodyStep{
		StepType:           stepType,
		ActorID:            actor.ID,
		ActorName:          actor.Name,
		ActorRole:          actor.Role,
		Action:             input.Action,
		Timestamp:          now,
		Location:           input.Location,
		Conditions:         input.Conditions,
		Metadata:           input.Metadata,
		Verified:           input.Verified,
		VerificationMethod: input.VerificationMethod,
	}

	current := CurrentLocationOf(step)
	if err := s.repo.AppendStep(ctx, ledgerID, step, current); err != nil {
		return nil, err
	}

	metrics.CustodySteps.WithLabelValues(string(input.Action)).Inc()
	s.recordAccess(ledgerID, actor, "update")
	s.dispatcher.Emit(ctx, &events.Event{
		Type:     events.StepAppended,
		LedgerID: ledgerID,
		ActorID:  actor.ID,
		Payload:  map[string]any{"action": string(input.Action)},
	})

	return &step, nil
}

// CurrentLocationOf is the pure projection deriving the current-location
// snapshot from the latest appended step. The snapshot is never settable on
// its own, so it cannot diverge from the step list.
func CurrentLocationOf(step models.CustodyStep) models.CurrentLocation {
	return models.CurrentLocation{
		ActorID:   step.ActorID,
		ActorName: step.ActorName,
		ActorRole: step.ActorRole,
		Location:  step.Location,
		Since:     step.Timestamp,
	}
}

// AddQualityCheck appends one quality-check entry. Same append-only
// discipline as steps; quality_check must be permitted for the role.
func (s *Service) AddQualityCheck(ctx context.Context, ledgerID string, check models.QualityCheck, actor models.Actor) error {
	if !Permitted(actor.Role, models.ActionQualityCheck) {
		return &apperr.AuthorizationError{ActorID: actor.ID, Role: string(actor.Role), Action: "record quality check"}
	}
	switch check.Result {
	case models.CheckPass, models.CheckFail, models.CheckWarning:
	default:
		return &apperr.ValidationError{Field: "result", Reason: "must be pass, fail or warning"}
	}

	check.CheckedBy = actor.ID
	check.CheckedAt = s.now().UTC()

	if err := s.repo.AppendQualityCheck(ctx, ledgerID, check); err != nil {
		return err
	}
	s.recordAccess(ledgerID, actor, "update")
	return nil
}

// LogAccess records a view event best-effort. Failures never reach the caller.
func (s *Service) LogAccess(ledgerID string, actor models.Actor) {
	s.recordAccess(ledgerID, actor, "view")
}

func (s *Service) recordAccess(ledgerID string, actor models.Actor, kind string) {
	if s.access == nil {
		return
	}
	s.access.RecordAccess(ledgerID, models.AccessEntry{
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Kind:      kind,
		Timestamp: s.now().UTC(),
	})
}

// Recall sets the ledger-level recall sub-record. Admin or manufacturer only;
// terminal for normal flow and independent of the batch-level recall flag.
func (s *Service) Recall(ctx context.Context, ledgerID, reason, action string, affectedUnits int, actor models.Actor) error {
	if !actor.IsAdmin() && actor.Role != models.RoleManufacturer {
		return &apperr.AuthorizationError{ActorID: actor.ID, Role: string(actor.Role), Action: "recall ledger"}
	}
	if reason == "" {
		return &apperr.ValidationError{Field: "reason", Reason: "required"}
	}

	recalledAt := s.now().UTC()
	recall := models.RecallNotice{
		Recalled:      true,
		Reason:        reason,
		Action:        action,
		AffectedUnits: affectedUnits,
		RecalledBy:    actor.ID,
		RecalledAt:    &recalledAt,
	}
	if err := s.repo.MarkLedgerRecalled(ctx, ledgerID, recall); err != nil {
		return err
	}

	s.dispatcher.Emit(ctx, &events.Event{
		Type:     events.LedgerRecalled,
		LedgerID: ledgerID,
		ActorID:  actor.ID,
		Payload:  map[string]any{"reason": reason},
	})

	slog.Info("Recalled custody ledger",
		"ledger_id", ledgerID,
		"recalled_by", actor.ID,
		"reason", reason,
	)
	return nil
}

// Get fetches a ledger and logs the access best-effort.
func (s *Service) Get(ctx context.Context, ledgerID string, viewer models.Actor) (*models.CustodyLedger, error) {
	ledger, err := s.repo.GetLedger(ctx, ledgerID)
	if err != nil {
		return nil, err
	}
	s.recordAccess(ledgerID, viewer, "view")
	return ledger, nil
}

// GetByBatch fetches the ledger belonging to a batch and logs the access
// best-effort.
func (s *Service) GetByBatch(ctx context.Context, batchID string, viewer models.Actor) (*models.CustodyLedger, error) {
	ledger, err := s.repo.GetLedgerByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	s.recordAccess(ledger.ID, viewer, "view")
	return ledger, nil
}
