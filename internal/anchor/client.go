// Package anchor wraps the external ledger used for tamper-evidence proofs.
// The ledger is an opaque, slow, sometimes-failing dependency: callers treat
// every anchor attempt as enrichment, never as a precondition.
package anchor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Payload is the canonical subset handed to the ledger for one batch.
type Payload struct {
	BatchID     string `json:"batch_id"`
	BatchNumber string `json:"batch_number"`
	DataHash    string `json:"data_hash"`
}

// Receipt is what a successful anchor call returns.
type Receipt struct {
	AnchorID string
	TxRef    string
	BlockRef string
}

// Client submits one anchor to the external ledger. Implementations must be
// safe for concurrent use; callers hold no locks while a call is in flight.
type Client interface {
	Anchor(ctx context.Context, payload Payload) (*Receipt, error)
}

// AnchorIDFor derives the stable anchor id for a payload. The id is a pure
// function of the data hash so re-anchoring the same content yields the same
// id on every ledger backend.
func AnchorIDFor(payload Payload) string {
	sum := sha256.Sum256([]byte(payload.BatchID + "|" + payload.DataHash))
	return "BC_" + hex.EncodeToString(sum[:])[:20]
}

// LocalClient fabricates receipts without touching any network. Used in dev
// mode and tests when no ledger account is configured.
type LocalClient struct{}

// Anchor returns a deterministic receipt for the payload
func (LocalClient) Anchor(ctx context.Context, payload Payload) (*Receipt, error) {
	if payload.DataHash == "" {
		return nil, fmt.Errorf("anchor payload has no data hash")
	}
	return &Receipt{
		AnchorID: AnchorIDFor(payload),
		TxRef:    "local-" + payload.DataHash[:12],
		BlockRef: fmt.Sprintf("local-%d", time.Now().Unix()),
	}, nil
}
