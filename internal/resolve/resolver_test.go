package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"pharmatrace/internal/apperr"
	"pharmatrace/internal/models"
	"pharmatrace/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scanTime = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type capturingScans struct {
	entries []*models.ScanLogEntry
}

func (c *capturingScans) RecordScan(entry *models.ScanLogEntry) {
	c.entries = append(c.entries, entry)
}

func seedBatch(t *testing.T, repo storage.Repository, mutate func(*models.Batch)) *models.Batch {
	t.Helper()
	batch := &models.Batch{
		ID:             "b-1",
		BatchNumber:    "BATCH100",
		Name:           "Paracetamol 500mg",
		ProductionDate: scanTime.AddDate(-1, 0, 0),
		ExpiryDate:     scanTime.AddDate(1, 0, 0),
		Anchor: models.Anchor{
			AnchorID: "BC_123abc",
			State:    models.AnchorConfirmed,
		},
	}
	if mutate != nil {
		mutate(batch)
	}
	require.NoError(t, repo.CreateBatch(context.Background(), batch))
	return batch
}

func newEngine(repo storage.Repository, scans ScanRecorder) *Engine {
	e := NewEngine(repo, scans)
	e.SetClock(func() time.Time { return scanTime })
	return e
}

func scanner() models.Actor {
	return models.Actor{ID: "pharm-1", Role: models.RoleHospital}
}

func TestResolveStrategies(t *testing.T) {
	repo := storage.NewMemoryRepository()
	seedBatch(t, repo, nil)
	engine := newEngine(repo, nil)

	cases := []struct {
		name string
		raw  string
	}{
		{"anchor id exact", "BC_123abc"},
		{"anchor id case folded", "bc_123ABC"},
		{"batch id", "b-1"},
		{"batch number", "BATCH100"},
		{"anchor id with stray quote", "BC_123abc'"},
		{"full code payload", `{"anchorId":"BC_123abc","batchId":"b-1","batchNumber":"BATCH100","verificationUrl":"https://trace.example.com/verify/BC_123abc"}`},
		{"json with batch number only", `{"batchNumber":"BATCH100"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resolution, err := engine.Resolve(context.Background(), tc.raw, scanner())
			require.NoError(t, err)
			assert.Equal(t, "b-1", resolution.Batch.ID)
			assert.Empty(t, resolution.AlertType)
		})
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	repo := storage.NewMemoryRepository()
	seedBatch(t, repo, nil)
	engine := newEngine(repo, nil)

	first, err := engine.Resolve(context.Background(), "BC_123abc", scanner())
	require.NoError(t, err)
	second, err := engine.Resolve(context.Background(), "BC_123abc", scanner())
	require.NoError(t, err)

	assert.Equal(t, first.Batch.ID, second.Batch.ID)
	assert.Equal(t, first.AlertType, second.AlertType)
	assert.Equal(t, first.Warning, second.Warning)
}

// An anchor-id match outranks a batch-number match when one string could be
// either identifier.
func TestResolveAnchorOutranksBatchNumber(t *testing.T) {
	repo := storage.NewMemoryRepository()
	seedBatch(t, repo, nil)
	require.NoError(t, repo.CreateBatch(context.Background(), &models.Batch{
		ID:          "b-2",
		BatchNumber: "BC_123abc",
		Name:        "Decoy",
		ExpiryDate:  scanTime.AddDate(1, 0, 0),
	}))

	engine := newEngine(repo, nil)
	resolution, err := engine.Resolve(context.Background(), "BC_123abc", scanner())
	require.NoError(t, err)
	assert.Equal(t, "b-1", resolution.Batch.ID)
}

func TestResolveAlerts(t *testing.T) {
	t.Run("recalled outranks expired", func(t *testing.T) {
		repo := storage.NewMemoryRepository()
		seedBatch(t, repo, func(b *models.Batch) {
			b.IsRecalled = true
			b.RecallReason = "contamination"
			b.ExpiryDate = scanTime.AddDate(-1, 0, 0)
		})
		scans := &capturingScans{}
		engine := newEngine(repo, scans)

		resolution, err := engine.Resolve(context.Background(), "BC_123abc", scanner())
		require.NoError(t, err)
		assert.Equal(t, models.AlertRecalled, resolution.AlertType)
		require.Len(t, scans.entries, 1)
		assert.Equal(t, models.ScanBlocked, scans.entries[0].Outcome)
	})

	t.Run("expired", func(t *testing.T) {
		repo := storage.NewMemoryRepository()
		seedBatch(t, repo, func(b *models.Batch) {
			b.ExpiryDate = scanTime.AddDate(0, 0, -1)
		})
		engine := newEngine(repo, nil)

		resolution, err := engine.Resolve(context.Background(), "BC_123abc", scanner())
		require.NoError(t, err)
		assert.Equal(t, models.AlertExpired, resolution.AlertType)
	})

	t.Run("near expiry warns without blocking", func(t *testing.T) {
		repo := storage.NewMemoryRepository()
		seedBatch(t, repo, func(b *models.Batch) {
			b.ExpiryDate = scanTime.AddDate(0, 0, 10)
		})
		scans := &capturingScans{}
		engine := newEngine(repo, scans)

		resolution, err := engine.Resolve(context.Background(), "BC_123abc", scanner())
		require.NoError(t, err)
		assert.Equal(t, models.AlertNearExpiry, resolution.AlertType)
		assert.Contains(t, resolution.Warning, "expires in")
		require.Len(t, scans.entries, 1)
		assert.Equal(t, models.ScanWarning, scans.entries[0].Outcome)
	})

	t.Run("far from expiry resolves clean", func(t *testing.T) {
		repo := storage.NewMemoryRepository()
		seedBatch(t, repo, func(b *models.Batch) {
			b.ExpiryDate = scanTime.AddDate(0, 2, 0)
		})
		engine := newEngine(repo, nil)

		resolution, err := engine.Resolve(context.Background(), "BC_123abc", scanner())
		require.NoError(t, err)
		assert.Empty(t, resolution.AlertType)
	})
}

func TestResolveNotFound(t *testing.T) {
	repo := storage.NewMemoryRepository()
	scans := &capturingScans{}
	engine := newEngine(repo, scans)

	_, err := engine.Resolve(context.Background(), "BC_unknown", scanner())
	var nf *apperr.NotFoundError
	require.True(t, errors.As(err, &nf))

	require.Len(t, scans.entries, 1)
	entry := scans.entries[0]
	assert.Equal(t, models.ScanNotFound, entry.Outcome)
	// The log names every strategy attempted before giving up.
	assert.Contains(t, entry.StrategiesTried, strategyAnchorExact)
	assert.Contains(t, entry.StrategiesTried, strategyBatchNumber)
}

func TestResolveMalformedInput(t *testing.T) {
	repo := storage.NewMemoryRepository()
	scans := &capturingScans{}
	engine := newEngine(repo, scans)

	_, err := engine.Resolve(context.Background(), `"' {}`, scanner())
	var malformed *apperr.MalformedIdentifierError
	require.ErrorAs(t, err, &malformed)

	require.Len(t, scans.entries, 1)
	assert.Equal(t, models.ScanRejected, scans.entries[0].Outcome)
	assert.NotEmpty(t, scans.entries[0].Error)
}

// Exactly one scan-log entry per Resolve call, success or failure.
func TestResolveLogsExactlyOnce(t *testing.T) {
	repo := storage.NewMemoryRepository()
	seedBatch(t, repo, nil)
	scans := &capturingScans{}
	engine := newEngine(repo, scans)

	_, _ = engine.Resolve(context.Background(), "BC_123abc", scanner())
	_, _ = engine.Resolve(context.Background(), "BC_unknown", scanner())
	_, _ = engine.Resolve(context.Background(), `"' {}`, scanner())

	assert.Len(t, scans.entries, 3)
}
