package custody

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"pharmatrace/internal/apperr"
	"pharmatrace/internal/models"
	"pharmatrace/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func admin() models.Actor {
	return models.Actor{ID: "admin-1", Name: "Root", Role: models.RoleAdmin}
}

func maker() models.Actor {
	return models.Actor{ID: "mfg-1", Name: "Maria", Role: models.RoleManufacturer, OrganizationID: "ORG-PHARMA-1"}
}

func newLedger(t *testing.T, svc *Service) *models.CustodyLedger {
	t.Helper()
	ledger, err := svc.CreateLedger(context.Background(), "batch-1", "BATCH100", maker())
	require.NoError(t, err)
	return ledger
}

func TestCreateLedger(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewService(repo, nil, nil)

	ledger := newLedger(t, svc)
	assert.Equal(t, models.LedgerActive, ledger.Status)
	assert.Empty(t, ledger.Steps)
	assert.False(t, ledger.Recall.Recalled)

	// One ledger per batch.
	_, err := svc.CreateLedger(context.Background(), "batch-1", "BATCH100", maker())
	var dup *apperr.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
}

func TestAddStepDerivesTypeFromRole(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewService(repo, nil, nil)
	ledger := newLedger(t, svc)

	step, err := svc.AddStep(context.Background(), ledger.ID, StepInput{
		Action:   models.ActionCreated,
		Location: models.StepLocation{Facility: "Plant 7", Address: "Milan"},
	}, maker())
	require.NoError(t, err)
	assert.Equal(t, models.StepProduction, step.StepType)
	assert.Equal(t, models.RoleManufacturer, step.ActorRole)

	distributor := models.Actor{ID: "dist-1", Name: "Depot", Role: models.RoleDistributor}
	step, err = svc.AddStep(context.Background(), ledger.ID, StepInput{
		Action:   models.ActionReceived,
		Location: models.StepLocation{Facility: "Central Depot"},
	}, distributor)
	require.NoError(t, err)
	assert.Equal(t, models.StepDistribution, step.StepType)

	// Steps only grow, and the snapshot follows the latest step.
	stored, err := repo.GetLedger(context.Background(), ledger.ID)
	require.NoError(t, err)
	require.Len(t, stored.Steps, 2)
	assert.Equal(t, "dist-1", stored.CurrentLocation.ActorID)
	assert.Equal(t, "Central Depot", stored.CurrentLocation.Location.Facility)
}

func TestAddStepAuthorization(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewService(repo, nil, nil)
	ledger := newLedger(t, svc)

	cases := []struct {
		name    string
		role    models.Role
		action  models.StepAction
		allowed bool
	}{
		{"manufacturer creates", models.RoleManufacturer, models.ActionCreated, true},
		{"manufacturer cannot ship", models.RoleManufacturer, models.ActionShipped, false},
		{"distributor ships", models.RoleDistributor, models.ActionShipped, true},
		{"distributor cannot dispense", models.RoleDistributor, models.ActionDispensed, false},
		{"hospital dispenses", models.RoleHospital, models.ActionDispensed, true},
		{"patient receives", models.RolePatient, models.ActionReceived, true},
		{"patient cannot ship", models.RolePatient, models.ActionShipped, false},
		{"admin recalls", models.RoleAdmin, models.ActionRecalled, true},
		{"unknown role denied", models.Role("courier"), models.ActionReceived, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			actor := models.Actor{ID: "actor-" + tc.name, Role: tc.role}
			_, err := svc.AddStep(context.Background(), ledger.ID, StepInput{Action: tc.action}, actor)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				var authErr *apperr.AuthorizationError
				assert.ErrorAs(t, err, &authErr)
			}
		})
	}
}

func TestAddQualityCheck(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewService(repo, nil, nil)
	ledger := newLedger(t, svc)

	err := svc.AddQualityCheck(context.Background(), ledger.ID, models.QualityCheck{
		CheckType: "temperature",
		Result:    models.CheckPass,
	}, maker())
	require.NoError(t, err)

	stored, err := repo.GetLedger(context.Background(), ledger.ID)
	require.NoError(t, err)
	require.Len(t, stored.QualityChecks, 1)
	assert.Equal(t, "mfg-1", stored.QualityChecks[0].CheckedBy)
	assert.False(t, stored.QualityChecks[0].CheckedAt.IsZero())

	// Patients have no quality_check permission.
	patient := models.Actor{ID: "pat-1", Role: models.RolePatient}
	err = svc.AddQualityCheck(context.Background(), ledger.ID, models.QualityCheck{Result: models.CheckPass}, patient)
	var authErr *apperr.AuthorizationError
	require.ErrorAs(t, err, &authErr)

	// Result outside the closed set is rejected.
	err = svc.AddQualityCheck(context.Background(), ledger.ID, models.QualityCheck{Result: "maybe"}, maker())
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestRecallLedger(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewService(repo, nil, nil)
	ledger := newLedger(t, svc)

	// Before any recall the notice serializes without a recall timestamp.
	raw, err := json.Marshal(ledger.Recall)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "recalled_at")

	distributor := models.Actor{ID: "dist-1", Role: models.RoleDistributor}
	err = svc.Recall(context.Background(), ledger.ID, "contamination", "return to depot", 500, distributor)
	var authErr *apperr.AuthorizationError
	require.ErrorAs(t, err, &authErr)

	err = svc.Recall(context.Background(), ledger.ID, "contamination", "return to depot", 500, admin())
	require.NoError(t, err)

	stored, err := repo.GetLedger(context.Background(), ledger.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerRecalled, stored.Status)
	assert.True(t, stored.Recall.Recalled)
	assert.Equal(t, 500, stored.Recall.AffectedUnits)
	assert.Equal(t, "admin-1", stored.Recall.RecalledBy)
	require.NotNil(t, stored.Recall.RecalledAt)
}

func TestProjection(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger := &models.CustodyLedger{
		ID:          "ledger-1",
		BatchID:     "batch-1",
		BatchNumber: "BATCH100",
		Steps: []models.CustodyStep{
			{
				StepType:  models.StepProduction,
				ActorID:   "mfg-1",
				ActorName: "Maria",
				ActorRole: models.RoleManufacturer,
				Action:    models.ActionCreated,
				Timestamp: now,
				Location:  models.StepLocation{Facility: "Plant 7", Address: "Milan", Country: "IT"},
				Verified:  true,
			},
		},
		QualityChecks: []models.QualityCheck{
			{CheckType: "temperature", Result: models.CheckPass, CheckedBy: "mfg-1", CheckedAt: now},
		},
		AccessLog: []models.AccessEntry{
			{ActorID: "mfg-1", ActorRole: models.RoleManufacturer, Kind: "view", Timestamp: now},
		},
		Status:    models.LedgerActive,
		CreatedBy: "mfg-1",
	}

	// Admin, creator and step participants see the full record.
	assert.NotNil(t, Project(ledger, admin()).Full)
	assert.NotNil(t, Project(ledger, models.Actor{ID: "mfg-1", Role: models.RoleManufacturer}).Full)

	// Everyone else gets the redacted projection.
	stranger := models.Actor{ID: "pat-9", Role: models.RolePatient}
	projection := Project(ledger, stranger)
	require.Nil(t, projection.Full)
	require.NotNil(t, projection.Redacted)

	redacted := projection.Redacted
	require.Len(t, redacted.Steps, 1)
	assert.Equal(t, "Maria", redacted.Steps[0].ActorName)
	assert.Equal(t, "Milan", redacted.Steps[0].Address)
	assert.Equal(t, "2026-03-01T12:00:00Z", redacted.Steps[0].Timestamp)

	require.Len(t, redacted.QualityChecks, 1)
	assert.Equal(t, models.CheckPass, redacted.QualityChecks[0].Result)
}

type capturingAccess struct {
	entries []models.AccessEntry
}

func (c *capturingAccess) RecordAccess(ledgerID string, entry models.AccessEntry) {
	c.entries = append(c.entries, entry)
}

func TestGetByBatch(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewService(repo, nil, nil)
	ledger := newLedger(t, svc)

	found, err := svc.GetByBatch(context.Background(), "batch-1", admin())
	require.NoError(t, err)
	assert.Equal(t, ledger.ID, found.ID)

	_, err = svc.GetByBatch(context.Background(), "no-such-batch", admin())
	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestGetLogsAccess(t *testing.T) {
	repo := storage.NewMemoryRepository()
	access := &capturingAccess{}
	svc := NewService(repo, access, nil)
	ledger := newLedger(t, svc)

	viewer := models.Actor{ID: "hos-1", Role: models.RoleHospital}
	_, err := svc.Get(context.Background(), ledger.ID, viewer)
	require.NoError(t, err)

	require.Len(t, access.entries, 1)
	assert.Equal(t, "hos-1", access.entries[0].ActorID)
	assert.Equal(t, "view", access.entries[0].Kind)
}
