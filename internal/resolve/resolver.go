package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pharmatrace/internal/apperr"
	"pharmatrace/internal/metrics"
	"pharmatrace/internal/models"
	"pharmatrace/internal/storage"

	"github.com/google/uuid"
)

// nearExpiryWindow is the period before expiry during which resolution
// succeeds with a non-blocking warning.
const nearExpiryWindow = 30

// Matching strategy names, recorded in scan-log order.
const (
	strategyAnchorExact = "anchor_exact"
	strategyAnchorFold  = "anchor_fold"
	strategyBatchID     = "batch_id"
	strategyBatchNumber = "batch_number"
	strategyJSONExtract = "json_extract"
)

// ScanRecorder persists scan-log entries best-effort. audit.Recorder
// implements it.
type ScanRecorder interface {
	RecordScan(entry *models.ScanLogEntry)
}

// Engine resolves scanned identifiers against the batch store. Resolution is
// a pure function of the stored state and the normalized token: identical
// input against unchanged state yields the identical result.
type Engine struct {
	repo  storage.Repository
	scans ScanRecorder
	now   func() time.Time
}

// NewEngine creates a resolution engine
func NewEngine(repo storage.Repository, scans ScanRecorder) *Engine {
	return &Engine{
		repo:  repo,
		scans: scans,
		now:   time.Now,
	}
}

// SetClock overrides the wall clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Resolve maps a raw scanned string to one batch, or fails with NotFound.
// Exactly one ScanLogEntry is recorded per call, success or failure.
func (e *Engine) Resolve(ctx context.Context, raw string, actor models.Actor) (*models.Resolution, error) {
	started := time.Now()
	defer func() {
		metrics.ResolveDuration.Observe(time.Since(started).Seconds())
	}()

	entry := &models.ScanLogEntry{
		ID:        uuid.NewString(),
		RawInput:  raw,
		ActorID:   actor.ID,
		Timestamp: e.now().UTC(),
	}
	defer func() {
		if e.scans != nil {
			e.scans.RecordScan(entry)
		}
	}()

	token, method := Normalize(raw)
	entry.StrategiesTried = append(entry.StrategiesTried, method)
	if token == "" {
		err := &apperr.MalformedIdentifierError{Input: raw}
		entry.Outcome = models.ScanRejected
		entry.Error = err.Error()
		return nil, err
	}

	batch, winner, tried := e.match(ctx, raw, token)
	entry.StrategiesTried = append(entry.StrategiesTried, tried...)

	if batch == nil {
		entry.Outcome = models.ScanNotFound
		err := fmt.Errorf("strategies tried [%s]: %w",
			strings.Join(entry.StrategiesTried, ", "),
			&apperr.NotFoundError{Entity: "batch", ID: token},
		)
		entry.Error = err.Error()
		metrics.ScanFailures.Inc()
		return nil, err
	}

	entry.BatchID = batch.ID
	metrics.ScansResolved.WithLabelValues(winner).Inc()

	resolution := e.applyAlerts(batch)
	switch resolution.AlertType {
	case models.AlertRecalled, models.AlertExpired:
		entry.Outcome = models.ScanBlocked
		entry.AlertType = resolution.AlertType
		metrics.ScanAlerts.WithLabelValues(string(resolution.AlertType)).Inc()
	case models.AlertNearExpiry:
		entry.Outcome = models.ScanWarning
		entry.AlertType = resolution.AlertType
		metrics.ScanAlerts.WithLabelValues(string(resolution.AlertType)).Inc()
	default:
		entry.Outcome = models.ScanResolved
	}

	slog.Debug("Resolved scanned identifier",
		"batch_id", batch.ID,
		"strategy", winner,
		"outcome", entry.Outcome,
	)

	return resolution, nil
}

// match runs the ordered strategies and stops at the first hit. The returned
// slice lists every strategy attempted, for operational diagnosis.
func (e *Engine) match(ctx context.Context, raw, token string) (*models.Batch, string, []string) {
	var tried []string

	type strategy struct {
		name   string
		lookup func() (*models.Batch, error)
	}

	strategies := []strategy{
		{strategyAnchorExact, func() (*models.Batch, error) { return e.repo.GetBatchByAnchorID(ctx, token) }},
		{strategyAnchorFold, func() (*models.Batch, error) { return e.repo.GetBatchByAnchorIDFold(ctx, token) }},
		{strategyBatchID, func() (*models.Batch, error) { return e.repo.GetBatch(ctx, token) }},
		{strategyBatchNumber, func() (*models.Batch, error) { return e.repo.GetBatchByNumber(ctx, token) }},
	}

	for _, s := range strategies {
		tried = append(tried, s.name)
		batch, err := s.lookup()
		if err == nil {
			return batch, s.name, tried
		}
		if !isNotFound(err) {
			slog.Warn("Lookup failed during resolution", "strategy", s.name, "error", err)
		}
	}

	// Structured-data fallback over the raw input, in fixed priority order
	if ids, ok := parseEmbedded(raw); ok {
		tried = append(tried, strategyJSONExtract)
		embedded := []struct {
			value  string
			lookup func(string) (*models.Batch, error)
		}{
			{ids.AnchorID, func(v string) (*models.Batch, error) { return e.repo.GetBatchByAnchorID(ctx, v) }},
			{ids.BatchID, func(v string) (*models.Batch, error) { return e.repo.GetBatch(ctx, v) }},
			{ids.BatchNumber, func(v string) (*models.Batch, error) { return e.repo.GetBatchByNumber(ctx, v) }},
		}
		for _, em := range embedded {
			if em.value == "" {
				continue
			}
			batch, err := em.lookup(em.value)
			if err == nil {
				return batch, strategyJSONExtract, tried
			}
			if !isNotFound(err) {
				slog.Warn("Lookup failed during resolution", "strategy", strategyJSONExtract, "error", err)
			}
		}
	}

	return nil, "", tried
}

// applyAlerts runs the side-channel checks in fixed priority order: recalled
// outranks expired, which outranks the near-expiry warning. The order is a
// tested contract.
func (e *Engine) applyAlerts(batch *models.Batch) *models.Resolution {
	now := e.now().UTC()

	if batch.IsRecalled {
		return &models.Resolution{Batch: batch, AlertType: models.AlertRecalled}
	}
	if batch.Expired(now) {
		return &models.Resolution{Batch: batch, AlertType: models.AlertExpired}
	}
	if days := batch.DaysUntilExpiry(now); days >= 0 && days <= nearExpiryWindow {
		return &models.Resolution{
			Batch:     batch,
			AlertType: models.AlertNearExpiry,
			Warning:   fmt.Sprintf("batch expires in %d days", days),
		}
	}
	return &models.Resolution{Batch: batch}
}

func isNotFound(err error) bool {
	var nf *apperr.NotFoundError
	return errors.As(err, &nf)
}
