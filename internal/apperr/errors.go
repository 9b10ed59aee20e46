// Package apperr defines the typed error taxonomy shared by all services.
// Callers branch on these types with errors.As rather than matching strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports malformed or missing input, including bad date ordering.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Reason)
}

// DuplicateKeyError reports a storage-level uniqueness violation.
// Field names the offending unique field (e.g. "batch_number").
type DuplicateKeyError struct {
	Field string
	Value string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate value %q for unique field %q", e.Value, e.Field)
}

// NotFoundError reports a lookup miss for a named entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// AuthorizationError reports a failed role or ownership check.
type AuthorizationError struct {
	ActorID string
	Role    string
	Action  string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %s (role %s) is not permitted to %s", e.ActorID, e.Role, e.Action)
}

// ExternalAnchorError reports a failed external-ledger call. It is never
// propagated as a request failure for batch creation; the pipeline downgrades
// the anchor state instead.
type ExternalAnchorError struct {
	Op  string
	Err error
}

func (e *ExternalAnchorError) Error() string {
	return fmt.Sprintf("anchor %s failed: %v", e.Op, e.Err)
}

func (e *ExternalAnchorError) Unwrap() error { return e.Err }

// SignatureVerificationError reports a hash mismatch or an expired/revoked
// certificate discovered during verification.
type SignatureVerificationError struct {
	SignatureID string
	Reason      string
}

func (e *SignatureVerificationError) Error() string {
	return fmt.Sprintf("signature %s failed verification: %s", e.SignatureID, e.Reason)
}

// MalformedIdentifierError reports a scanned input that is unusable even after
// normalization.
type MalformedIdentifierError struct {
	Input string
}

func (e *MalformedIdentifierError) Error() string {
	return fmt.Sprintf("scanned identifier %q is unusable after normalization", e.Input)
}

// HTTPStatus maps a taxonomy error to the status code the API layer reports.
// Wrapped errors are unwrapped; unknown errors map to 500.
func HTTPStatus(err error) int {
	var (
		validation *ValidationError
		malformed  *MalformedIdentifierError
		duplicate  *DuplicateKeyError
		notFound   *NotFoundError
		forbidden  *AuthorizationError
		badSig     *SignatureVerificationError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &malformed):
		return http.StatusBadRequest
	case errors.As(err, &duplicate):
		return http.StatusConflict
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &badSig):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
