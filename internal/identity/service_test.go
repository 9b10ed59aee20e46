package identity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pharmatrace/internal/apperr"
	"pharmatrace/internal/models"
	"pharmatrace/internal/storage"
)

func TestRegisterOrganization(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewService(repo)

	org, err := svc.RegisterOrganization(context.Background(), "ORG-PHARMA-1", "Pharma Corp", models.RoleManufacturer)
	if err != nil {
		t.Fatalf("RegisterOrganization failed: %v", err)
	}
	if org.ID == "" {
		t.Error("Expected generated internal id")
	}

	// Same external id again must surface the uniqueness violation.
	_, err = svc.RegisterOrganization(context.Background(), "ORG-PHARMA-1", "Pharma Corp Again", models.RoleManufacturer)
	var dup *apperr.DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("Expected DuplicateKeyError, got %v", err)
	}
}

func TestRegisterOrganizationValidation(t *testing.T) {
	svc := NewService(storage.NewMemoryRepository())

	_, err := svc.RegisterOrganization(context.Background(), "", "Pharma Corp", models.RoleManufacturer)
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError for empty id, got %v", err)
	}

	_, err = svc.RegisterOrganization(context.Background(), "ORG-1", "Pharma Corp", models.Role("wizard"))
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError for unknown role, got %v", err)
	}
}

func TestRegisterPatient(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewService(repo)

	p, err := svc.RegisterPatient(context.Background(), "alice.jones", "Alice Jones")
	if err != nil {
		t.Fatalf("RegisterPatient failed: %v", err)
	}
	if !strings.HasPrefix(p.PatientID, "PT-ALICEJONES-") {
		t.Errorf("Unexpected patient id %q", p.PatientID)
	}
}

// conflictingRepo forces the first insert attempts to lose the uniqueness
// race so the retry loop is exercised without depending on random collisions.
type conflictingRepo struct {
	storage.Repository
	remaining int
}

func (r *conflictingRepo) CreatePatient(ctx context.Context, p *models.Patient) error {
	if r.remaining > 0 {
		r.remaining--
		return &apperr.DuplicateKeyError{Field: "patient_id", Value: p.PatientID}
	}
	return r.Repository.CreatePatient(ctx, p)
}

func TestRegisterPatientRetriesOnConflict(t *testing.T) {
	repo := &conflictingRepo{Repository: storage.NewMemoryRepository(), remaining: 2}
	svc := NewService(repo)

	p, err := svc.RegisterPatient(context.Background(), "bob", "Bob")
	if err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if p.PatientID == "" {
		t.Error("Expected patient id after retries")
	}
}

func TestRegisterPatientExhaustsAttempts(t *testing.T) {
	repo := &conflictingRepo{Repository: storage.NewMemoryRepository(), remaining: 100}
	svc := NewService(repo)

	_, err := svc.RegisterPatient(context.Background(), "carol", "Carol")
	var dup *apperr.DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("Expected wrapped DuplicateKeyError after exhaustion, got %v", err)
	}
}
