package models

import "time"

// ScanOutcome is the result class of one resolution attempt.
type ScanOutcome string

const (
	ScanResolved ScanOutcome = "resolved"
	ScanWarning  ScanOutcome = "warning"
	ScanBlocked  ScanOutcome = "blocked"
	ScanNotFound ScanOutcome = "not_found"
	ScanRejected ScanOutcome = "rejected"
)

// AlertType classifies the side-channel alert attached to a resolution.
type AlertType string

const (
	AlertRecalled   AlertType = "recalled"
	AlertExpired    AlertType = "expired"
	AlertNearExpiry AlertType = "near_expiry"
)

// ScanLogEntry records exactly one resolution attempt, success or failure.
// Entries are write-only; business logic never reads them back.
type ScanLogEntry struct {
	ID        string      `json:"id"`
	RawInput  string      `json:"raw_input"`
	BatchID   string      `json:"batch_id,omitempty"`
	Outcome   ScanOutcome `json:"outcome"`
	AlertType AlertType   `json:"alert_type,omitempty"`
	Error     string      `json:"error,omitempty"`

	// StrategiesTried lists the matching strategies attempted, in order,
	// for operational diagnosis of scanner-quality issues.
	StrategiesTried []string `json:"strategies_tried,omitempty"`

	ActorID   string    `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Resolution is what the resolution engine returns to collaborators.
type Resolution struct {
	Batch     *Batch    `json:"batch"`
	AlertType AlertType `json:"alert_type,omitempty"`
	Warning   string    `json:"warning,omitempty"`
}
