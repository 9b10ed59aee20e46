package models

import "time"

// StepType classifies a custody step by the stage of the chain it belongs to.
// It is derived from the acting role, never supplied by the caller.
type StepType string

const (
	StepProduction   StepType = "production"
	StepDistribution StepType = "distribution"
	StepHospital     StepType = "hospital"
	StepPatient      StepType = "patient"
)

// StepAction is the concrete action recorded in a custody step.
type StepAction string

const (
	ActionCreated      StepAction = "created"
	ActionShipped      StepAction = "shipped"
	ActionReceived     StepAction = "received"
	ActionStored       StepAction = "stored"
	ActionDispensed    StepAction = "dispensed"
	ActionQualityCheck StepAction = "quality_check"
	ActionRecalled     StepAction = "recalled"
)

// StepLocation describes where a custody step happened.
type StepLocation struct {
	Facility string `json:"facility,omitempty"`
	Address  string `json:"address,omitempty"`
	Country  string `json:"country,omitempty"`
}

// StepConditions captures the handling conditions observed during a step.
type StepConditions struct {
	Temperature float64 `json:"temperature,omitempty"`
	Humidity    string  `json:"humidity,omitempty"`
	Notes       string  `json:"notes,omitempty"`
}

// CustodyStep is one recorded handoff or action in a batch's chain of custody.
// Steps are append-only; no actor may edit or remove a prior step.
type CustodyStep struct {
	StepType   StepType       `json:"step_type"`
	ActorID    string         `json:"actor_id"`
	ActorName  string         `json:"actor_name,omitempty"`
	ActorRole  Role           `json:"actor_role"`
	Action     StepAction     `json:"action"`
	Timestamp  time.Time      `json:"timestamp"`
	Location   StepLocation   `json:"location"`
	Conditions StepConditions `json:"conditions,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	// Anchor is the optional per-step proof; most steps carry none.
	Anchor *Anchor `json:"anchor,omitempty"`

	Verified           bool   `json:"verified"`
	VerificationMethod string `json:"verification_method,omitempty"`
}

// CurrentLocation is the derived snapshot of the last step's actor and location.
// It is always recomputed from the appended step, never set independently.
type CurrentLocation struct {
	ActorID   string       `json:"actor_id"`
	ActorName string       `json:"actor_name,omitempty"`
	ActorRole Role         `json:"actor_role"`
	Location  StepLocation `json:"location"`
	Since     time.Time    `json:"since"`
}

// CheckResult is the outcome of a recorded quality check.
type CheckResult string

const (
	CheckPass    CheckResult = "pass"
	CheckFail    CheckResult = "fail"
	CheckWarning CheckResult = "warning"
)

// QualityCheck is one entry in a ledger's quality-check log.
type QualityCheck struct {
	CheckType string      `json:"check_type"`
	Result    CheckResult `json:"result"`
	Value     string      `json:"value,omitempty"`
	CheckedBy string      `json:"checked_by"`
	CheckedAt time.Time   `json:"checked_at"`
}

// AccessEntry records one view or update of a ledger. Written best-effort;
// a failed write never fails the caller's primary operation.
type AccessEntry struct {
	ActorID   string    `json:"actor_id"`
	ActorRole Role      `json:"actor_role"`
	Kind      string    `json:"kind"` // "view" or "update"
	Timestamp time.Time `json:"timestamp"`
}

// RecallNotice is the ledger-level recall sub-record. It mirrors the batch's
// recall flag but is set by a separate call; the two are not cascaded.
type RecallNotice struct {
	Recalled      bool      `json:"recalled"`
	Reason        string    `json:"reason,omitempty"`
	Action        string    `json:"action,omitempty"`
	AffectedUnits int       `json:"affected_units,omitempty"`
	RecalledBy    string    `json:"recalled_by,omitempty"`
	RecalledAt    *time.Time `json:"recalled_at,omitempty"`
}

// LedgerStatus is the coarse lifecycle state of a custody ledger.
type LedgerStatus string

const (
	LedgerActive   LedgerStatus = "active"
	LedgerRecalled LedgerStatus = "recalled"
)

// CustodyLedger holds the append-only step history and quality-check log for
// one batch. Exactly one ledger exists per (BatchID, BatchNumber) pair.
type CustodyLedger struct {
	ID          string `json:"id"`
	BatchID     string `json:"batch_id"`
	BatchNumber string `json:"batch_number"`

	Steps           []CustodyStep    `json:"steps"`
	CurrentLocation *CurrentLocation `json:"current_location,omitempty"`
	QualityChecks   []QualityCheck   `json:"quality_checks,omitempty"`
	AccessLog       []AccessEntry    `json:"access_log,omitempty"`

	Status LedgerStatus `json:"status"`
	Recall RecallNotice `json:"recall"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
