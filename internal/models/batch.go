package models

import "time"

// AnchorState tracks the lifecycle of the external-ledger anchor for a batch.
type AnchorState string

const (
	AnchorPending   AnchorState = "pending"
	AnchorConfirmed AnchorState = "confirmed"
	AnchorFailed    AnchorState = "failed"
)

// Anchor is the tamper-evidence proof recorded against the external ledger.
// State stays pending while the ledger call is in flight or retryable; the
// batch record is fully usable in every state.
type Anchor struct {
	AnchorID  string        `json:"anchor_id,omitempty"`
	TxRef     string        `json:"tx_ref,omitempty"`
	BlockRef  string        `json:"block_ref,omitempty"`
	DataHash  string        `json:"data_hash,omitempty"`
	Signature string        `json:"signature,omitempty"`
	State     AnchorState   `json:"state"`
	Error     string        `json:"error,omitempty"`
	History   []AnchorEvent `json:"history,omitempty"`
}

// AnchorEvent records one state transition of the anchor.
type AnchorEvent struct {
	State     AnchorState `json:"state"`
	Note      string      `json:"note,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// QualityTest is the quality-test sub-record captured at manufacture.
type QualityTest struct {
	TestedBy string    `json:"tested_by,omitempty"`
	TestedAt time.Time `json:"tested_at,omitempty"`
	Passed   bool      `json:"passed"`
	Notes    string    `json:"notes,omitempty"`
}

// StorageConditions is the storage-condition sub-record for a batch.
type StorageConditions struct {
	TemperatureMin float64 `json:"temperature_min,omitempty"`
	TemperatureMax float64 `json:"temperature_max,omitempty"`
	Humidity       string  `json:"humidity,omitempty"`
	LightSensitive bool    `json:"light_sensitive,omitempty"`
	Instructions   string  `json:"instructions,omitempty"`
}

// DistributionEvent is one append-only entry in the batch's location/ownership history.
type DistributionEvent struct {
	Status    string    `json:"status"`
	Location  string    `json:"location,omitempty"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ScannableCode is the generated code payload for a batch. Data is a JSON
// document embedding the anchor id (or batch id when no anchor exists) and the
// verification URL; it must stay parseable by the resolution engine's
// JSON-extraction fallback.
type ScannableCode struct {
	Data            string `json:"data"`
	ImageRef        string `json:"image_ref,omitempty"`
	AnchorID        string `json:"anchor_id,omitempty"`
	VerificationURL string `json:"verification_url"`
}

// Batch is the authoritative record for one pharmaceutical batch.
// ID and BatchNumber are immutable identity; BatchNumber is globally unique.
type Batch struct {
	ID          string `json:"id"`
	BatchNumber string `json:"batch_number"`

	Name             string `json:"name"`
	ActiveIngredient string `json:"active_ingredient"`
	Dosage           string `json:"dosage,omitempty"`
	Form             string `json:"form,omitempty"`

	ProductionDate time.Time `json:"production_date"`
	ExpiryDate     time.Time `json:"expiry_date"`

	QualityTest       QualityTest       `json:"quality_test"`
	StorageConditions StorageConditions `json:"storage_conditions"`

	ManufacturerID string `json:"manufacturer_id"`

	DistributionStatus  string              `json:"distribution_status"`
	DistributionHistory []DistributionEvent `json:"distribution_history,omitempty"`

	// Recall flags are set once and never cleared.
	IsRecalled   bool       `json:"is_recalled"`
	RecallReason string     `json:"recall_reason,omitempty"`
	RecalledAt   *time.Time `json:"recalled_at,omitempty"`

	Anchor Anchor         `json:"anchor"`
	Code   *ScannableCode `json:"code,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DaysUntilExpiry returns the whole days remaining before the batch expires,
// negative once expired.
func (b *Batch) DaysUntilExpiry(now time.Time) int {
	return int(b.ExpiryDate.Sub(now).Hours() / 24)
}

// Expired reports whether the batch has reached its expiry date.
func (b *Batch) Expired(now time.Time) bool {
	return !b.ExpiryDate.After(now)
}
