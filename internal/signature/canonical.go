// Package signature signs and verifies canonical byte subsets of target
// entities. The canonical field subset is the contract: sign-time and
// verify-time must hash exactly the same fields, serialized the same way.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"pharmatrace/internal/models"

	"github.com/gowebpki/jcs"
)

// Target types accepted by the subsystem.
const (
	TargetBatch  = "batch"
	TargetLedger = "custody_ledger"
)

// batchSubset is the canonical field subset for a batch, version 1.
// It covers the immutable identity and the product facts a signature attests
// to. Mutable operational state (distribution status, anchor, recall flags)
// is deliberately outside the subset: a recall must not invalidate the
// manufacturer's signature over what was produced.
func batchSubset(b *models.Batch) map[string]any {
	return map[string]any{
		"v":                 1,
		"batch_id":          b.ID,
		"batch_number":      b.BatchNumber,
		"name":              b.Name,
		"active_ingredient": b.ActiveIngredient,
		"dosage":            b.Dosage,
		"form":              b.Form,
		"production_date":   b.ProductionDate.UTC().Format(time.RFC3339),
		"expiry_date":       b.ExpiryDate.UTC().Format(time.RFC3339),
		"manufacturer_id":   b.ManufacturerID,
	}
}

// ledgerSubset is the canonical field subset for a custody ledger, version 1.
// It covers the ledger identity and the core of every step: who acted, what
// they did, when. Access logs and quality-check values are outside the
// subset; they change without invalidating the custody attestation.
func ledgerSubset(l *models.CustodyLedger) map[string]any {
	steps := make([]map[string]any, 0, len(l.Steps))
	for _, s := range l.Steps {
		steps = append(steps, map[string]any{
			"actor_id":  s.ActorID,
			"action":    string(s.Action),
			"timestamp": s.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return map[string]any{
		"v":            1,
		"ledger_id":    l.ID,
		"batch_id":     l.BatchID,
		"batch_number": l.BatchNumber,
		"steps":        steps,
	}
}

// digest canonicalizes the subset per RFC 8785 and returns its SHA-256 hex.
func digest(subset map[string]any) (string, error) {
	raw, err := json.Marshal(subset)
	if err != nil {
		return "", fmt.Errorf("failed to marshal canonical subset: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize subset: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// BatchDigest returns the canonical hash of a batch's signed field subset.
// The anchoring pipeline uses the same digest for the ledger anchor, so the
// anchor and any signature over the batch attest to identical bytes.
func BatchDigest(b *models.Batch) (string, error) {
	return digest(batchSubset(b))
}

// LedgerDigest returns the canonical hash of a custody ledger's signed field
// subset.
func LedgerDigest(l *models.CustodyLedger) (string, error) {
	return digest(ledgerSubset(l))
}
