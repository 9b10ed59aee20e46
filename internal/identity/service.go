// Package identity registers organizations and patients whose external
// identifiers must be globally unique. Generated identifiers follow the
// propose-candidate, attempt-insert, retry-on-conflict pattern: existence is
// never checked before inserting, because check-then-insert races under
// concurrent signups.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"pharmatrace/internal/apperr"
	"pharmatrace/internal/models"
	"pharmatrace/internal/retry"
	"pharmatrace/internal/storage"

	"github.com/google/uuid"
)

// maxCandidateAttempts bounds how many generated candidates are tried before
// giving up. Conflicts on random suffixes are rare; the bound exists so a
// broken store cannot loop forever.
const maxCandidateAttempts = 5

// Service registers identities backed by storage unique constraints.
type Service struct {
	repo     storage.Repository
	strategy retry.Strategy
}

// NewService creates an identity service
func NewService(repo storage.Repository) *Service {
	return &Service{
		repo:     repo,
		strategy: retry.NewConflictRetryStrategy(maxCandidateAttempts),
	}
}

// RegisterOrganization inserts an organization with the caller-supplied
// external id. The id is not generated, so a conflict is surfaced directly
// as DuplicateKeyError rather than retried.
func (s *Service) RegisterOrganization(ctx context.Context, organizationID, name string, role models.Role) (*models.Organization, error) {
	if organizationID == "" {
		return nil, &apperr.ValidationError{Field: "organization_id", Reason: "required"}
	}
	if name == "" {
		return nil, &apperr.ValidationError{Field: "name", Reason: "required"}
	}
	if !role.Valid() {
		return nil, &apperr.ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
	}

	org := &models.Organization{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		Name:           name,
		Role:           role,
	}
	if err := s.repo.CreateOrganization(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

// RegisterPatient derives a patient id from the external-identity login name
// and inserts it, retrying with a fresh suffix when a candidate loses the
// uniqueness race.
func (s *Service) RegisterPatient(ctx context.Context, loginName, displayName string) (*models.Patient, error) {
	if loginName == "" {
		return nil, &apperr.ValidationError{Field: "login_name", Reason: "required"}
	}

	var patient *models.Patient
	err := s.strategy.Execute(ctx, func() error {
		candidate := proposePatientID(loginName)
		p := &models.Patient{
			ID:        uuid.NewString(),
			PatientID: candidate,
			Name:      displayName,
		}
		if err := s.repo.CreatePatient(ctx, p); err != nil {
			return err
		}
		patient = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Registered patient", "patient_id", patient.PatientID)
	return patient, nil
}

// proposePatientID builds one candidate id from the login name plus a random
// suffix. A fresh suffix is drawn per call, which is what makes the
// retry-on-conflict loop converge.
func proposePatientID(loginName string) string {
	base := strings.ToUpper(sanitize(loginName))
	if len(base) > 12 {
		base = base[:12]
	}
	return fmt.Sprintf("PT-%s-%s", base, randomSuffix())
}

func sanitize(in string) string {
	var b strings.Builder
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "USER"
	}
	return b.String()
}

func randomSuffix() string {
	var raw [3]byte
	if _, err := rand.Read(raw[:]); err != nil {
		// crypto/rand read failures are effectively fatal elsewhere; fall
		// back to a uuid fragment rather than panicking here.
		return uuid.NewString()[:6]
	}
	return hex.EncodeToString(raw[:])
}
