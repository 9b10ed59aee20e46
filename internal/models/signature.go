package models

import "time"

// SignatureStatus is the lifecycle state of a signature record.
type SignatureStatus string

const (
	SignatureActive  SignatureStatus = "active"
	SignatureExpired SignatureStatus = "expired"
	SignatureRevoked SignatureStatus = "revoked"
)

// Certificate is the certificate metadata attached to a signature.
// Status is refreshed by an out-of-band job; verification always rechecks
// the validity window against the wall clock instead of trusting it.
type Certificate struct {
	Serial     string          `json:"serial"`
	CAProvider string          `json:"ca_provider"`
	ValidFrom  time.Time       `json:"valid_from"`
	ValidTo    time.Time       `json:"valid_to"`
	Status     SignatureStatus `json:"status"`
}

// TimestampProof is the timestamp-authority proof bound to a signature.
type TimestampProof struct {
	Authority string    `json:"authority"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
}

// SignatureRecord is one signing event over a target entity. Records are
// append-only and never mutated except for an explicit revoke.
type SignatureRecord struct {
	ID         string `json:"id"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	SignedBy   string `json:"signed_by"`

	DataHash  string `json:"data_hash"`
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`

	Certificate    Certificate    `json:"certificate"`
	TimestampProof TimestampProof `json:"timestamp_proof"`

	Status           SignatureStatus `json:"status"`
	RevocationReason string          `json:"revocation_reason,omitempty"`
	RevokedAt        *time.Time      `json:"revoked_at,omitempty"`
	RevokedBy        string          `json:"revoked_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// VerificationResult is the outcome of verifying a signature record.
type VerificationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}
