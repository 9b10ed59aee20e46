package anchor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"pharmatrace/internal/apperr"
	"pharmatrace/internal/metrics"

	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
)

// txTimeoutSeconds bounds the validity window of a submitted anchor
// transaction so a stuck submission cannot land arbitrarily late.
const txTimeoutSeconds = 300

// StellarClient anchors batch hashes to the Stellar network. Each anchor is a
// single ManageData operation recording the data hash under a key derived
// from the batch number; the transaction hash and ledger sequence become the
// anchor's tx and block references.
type StellarClient struct {
	horizon    *horizonclient.Client
	keys       *keypair.Full
	passphrase string
}

// StellarClientOptions configures a StellarClient.
type StellarClientOptions struct {
	HorizonURL        string
	NetworkPassphrase string
	// Seed is the secret seed of the funded account anchors are submitted from
	Seed string
}

// NewStellarClient creates a StellarClient from options
func NewStellarClient(opts StellarClientOptions) (*StellarClient, error) {
	keys, err := keypair.ParseFull(opts.Seed)
	if err != nil {
		return nil, fmt.Errorf("invalid anchor account seed: %w", err)
	}

	return &StellarClient{
		horizon: &horizonclient.Client{
			HorizonURL: opts.HorizonURL,
			HTTP:       &http.Client{Timeout: 30 * time.Second},
		},
		keys:       keys,
		passphrase: opts.NetworkPassphrase,
	}, nil
}

// Anchor submits one anchor transaction and waits for the ledger response.
// Every failure is returned as an ExternalAnchorError; the caller decides how
// to downgrade the anchor state.
func (c *StellarClient) Anchor(ctx context.Context, payload Payload) (*Receipt, error) {
	started := time.Now()
	defer func() {
		metrics.AnchorDuration.Observe(time.Since(started).Seconds())
	}()

	account, err := c.horizon.AccountDetail(horizonclient.AccountRequest{
		AccountID: c.keys.Address(),
	})
	if err != nil {
		return nil, &apperr.ExternalAnchorError{Op: "account lookup", Err: err}
	}

	// ManageData keys and values are capped at 64 bytes; the SHA-256 hex
	// digest is exactly 64 characters.
	key := dataKeyFor(payload.BatchNumber)

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &account,
		IncrementSequenceNum: true,
		BaseFee:              txnbuild.MinBaseFee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(txTimeoutSeconds),
		},
		Operations: []txnbuild.Operation{
			&txnbuild.ManageData{
				Name:  key,
				Value: []byte(payload.DataHash),
			},
		},
	})
	if err != nil {
		return nil, &apperr.ExternalAnchorError{Op: "build transaction", Err: err}
	}

	tx, err = tx.Sign(c.passphrase, c.keys)
	if err != nil {
		return nil, &apperr.ExternalAnchorError{Op: "sign transaction", Err: err}
	}

	resp, err := c.horizon.SubmitTransaction(tx)
	if err != nil {
		return nil, &apperr.ExternalAnchorError{Op: "submit transaction", Err: err}
	}

	receipt := &Receipt{
		AnchorID: AnchorIDFor(payload),
		TxRef:    resp.Hash,
		BlockRef: strconv.FormatInt(int64(resp.Ledger), 10),
	}

	slog.Info("Anchored batch to ledger",
		"batch_id", payload.BatchID,
		"anchor_id", receipt.AnchorID,
		"tx_ref", receipt.TxRef,
		"block_ref", receipt.BlockRef,
	)

	return receipt, nil
}

// dataKeyFor derives the ManageData key for a batch, truncated to the 64-byte
// protocol limit.
func dataKeyFor(batchNumber string) string {
	key := "pharmatrace:" + batchNumber
	if len(key) > 64 {
		key = key[:64]
	}
	return key
}
