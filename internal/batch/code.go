package batch

import (
	"context"
	"encoding/json"
	"fmt"

	"pharmatrace/internal/models"
)

// ObjectStore is the external file/object store collaborator: it persists a
// rendered code image and returns a stable reference. Rendering itself is
// outside this core.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}

// NullObjectStore satisfies ObjectStore without persisting anything.
// Used when no store collaborator is configured.
type NullObjectStore struct{}

func (NullObjectStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	return "", nil
}

// codePayload is the wire document embedded in the scannable code. The keys
// are a compatibility contract: the resolution engine's JSON-extraction
// fallback parses exactly these camelCase names, so additional fields may be
// added but these may never be renamed.
type codePayload struct {
	AnchorID        string `json:"anchorId,omitempty"`
	BatchID         string `json:"batchId"`
	BatchNumber     string `json:"batchNumber"`
	VerificationURL string `json:"verificationUrl"`
}

// buildCode assembles the scannable payload for a batch. The embedded primary
// identifier is the anchor id when one exists, else the batch id, so the
// payload always points at the final identifier rather than a stale
// placeholder.
func buildCode(batchID, batchNumber, anchorID, baseURL string) (models.ScannableCode, error) {
	primary := anchorID
	if primary == "" {
		primary = batchID
	}
	payload := codePayload{
		AnchorID:        anchorID,
		BatchID:         batchID,
		BatchNumber:     batchNumber,
		VerificationURL: fmt.Sprintf("%s/verify/%s", baseURL, primary),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.ScannableCode{}, fmt.Errorf("failed to marshal code payload: %w", err)
	}
	return models.ScannableCode{
		Data:            string(raw),
		AnchorID:        anchorID,
		VerificationURL: payload.VerificationURL,
	}, nil
}
