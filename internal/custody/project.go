package custody

import (
	"time"

	"pharmatrace/internal/models"
)

// RedactedStep is the reduced step view returned to non-privileged viewers.
type RedactedStep struct {
	Action    models.StepAction `json:"action"`
	Timestamp string            `json:"timestamp"`
	ActorName string            `json:"actor_name,omitempty"`
	ActorRole models.Role       `json:"actor_role"`
	Address   string            `json:"address,omitempty"`
	Verified  bool              `json:"verified"`
}

// RedactedCheck is the reduced quality-check view for non-privileged viewers.
type RedactedCheck struct {
	CheckType string             `json:"check_type"`
	Result    models.CheckResult `json:"result"`
	CheckedAt string             `json:"checked_at"`
}

// Projection is the role-aware view of a ledger. Full is set for owners,
// step participants and admins; Redacted for everyone else. The redacted
// projection never carries the access log or the creator.
type Projection struct {
	Full     *models.CustodyLedger `json:"full,omitempty"`
	Redacted *RedactedLedger       `json:"redacted,omitempty"`
}

// RedactedLedger is the non-privileged projection of a custody ledger.
type RedactedLedger struct {
	ID            string              `json:"id"`
	BatchID       string              `json:"batch_id"`
	BatchNumber   string              `json:"batch_number"`
	Steps         []RedactedStep      `json:"steps"`
	QualityChecks []RedactedCheck     `json:"quality_checks,omitempty"`
	Status        models.LedgerStatus `json:"status"`
	Recall        models.RecallNotice `json:"recall"`
}

// Project returns the view of a ledger appropriate for the viewer: the full
// ledger for the record owner, any step participant, or an admin; a redacted
// projection for everyone else.
func Project(ledger *models.CustodyLedger, viewer models.Actor) Projection {
	if canViewFull(ledger, viewer) {
		return Projection{Full: ledger}
	}
	return Projection{Redacted: redact(ledger)}
}

func canViewFull(ledger *models.CustodyLedger, viewer models.Actor) bool {
	if viewer.IsAdmin() {
		return true
	}
	if ledger.CreatedBy != "" && ledger.CreatedBy == viewer.ID {
		return true
	}
	for _, step := range ledger.Steps {
		if step.ActorID == viewer.ID {
			return true
		}
	}
	return false
}

func redact(ledger *models.CustodyLedger) *RedactedLedger {
	out := &RedactedLedger{
		ID:          ledger.ID,
		BatchID:     ledger.BatchID,
		BatchNumber: ledger.BatchNumber,
		Steps:       make([]RedactedStep, 0, len(ledger.Steps)),
		Status:      ledger.Status,
		Recall:      ledger.Recall,
	}
	for _, step := range ledger.Steps {
		out.Steps = append(out.Steps, RedactedStep{
			Action:    step.Action,
			Timestamp: step.Timestamp.UTC().Format(time.RFC3339),
			ActorName: step.ActorName,
			ActorRole: step.ActorRole,
			Address:   step.Location.Address,
			Verified:  step.Verified,
		})
	}
	for _, check := range ledger.QualityChecks {
		out.QualityChecks = append(out.QualityChecks, RedactedCheck{
			CheckType: check.CheckType,
			Result:    check.Result,
			CheckedAt: check.CheckedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
