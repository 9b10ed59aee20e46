// Package audit persists best-effort side logs (scan logs, ledger access
// logs) off the primary request path. A full buffer drops the entry; a failed
// write is counted and logged. Neither ever surfaces to the caller.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pharmatrace/internal/metrics"
	"pharmatrace/internal/models"
	"pharmatrace/internal/storage"
)

// writeTimeout bounds each background write so a stuck store cannot wedge
// the drain goroutine.
const writeTimeout = 5 * time.Second

type entryKind int

const (
	kindScan entryKind = iota
	kindAccess
)

type entry struct {
	kind     entryKind
	scan     *models.ScanLogEntry
	ledgerID string
	access   models.AccessEntry
}

// Recorder is the buffered fire-and-forget writer for side logs.
type Recorder struct {
	repo storage.Repository
	ch   chan entry
	wg   sync.WaitGroup

	closeOnce sync.Once
}

// NewRecorder creates a Recorder and starts its drain goroutine.
// bufferSize bounds how many pending entries may queue before drops begin.
func NewRecorder(repo storage.Repository, bufferSize int) *Recorder {
	if bufferSize < 1 {
		bufferSize = 64
	}
	r := &Recorder{
		repo: repo,
		ch:   make(chan entry, bufferSize),
	}
	r.wg.Add(1)
	go r.drain()
	return r
}

// RecordScan enqueues one scan-log entry. Never blocks: on a full buffer the
// entry is dropped and counted.
func (r *Recorder) RecordScan(scan *models.ScanLogEntry) {
	r.enqueue(entry{kind: kindScan, scan: scan})
}

// RecordAccess enqueues one ledger access-log entry. Never blocks.
func (r *Recorder) RecordAccess(ledgerID string, access models.AccessEntry) {
	r.enqueue(entry{kind: kindAccess, ledgerID: ledgerID, access: access})
}

func (r *Recorder) enqueue(e entry) {
	select {
	case r.ch <- e:
	default:
		metrics.AuditDropped.Inc()
		slog.Warn("Audit buffer full, dropping entry", "kind", e.kind)
	}
}

func (r *Recorder) drain() {
	defer r.wg.Done()

	for e := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)

		var err error
		switch e.kind {
		case kindScan:
			err = r.repo.SaveScanLog(ctx, e.scan)
		case kindAccess:
			err = r.repo.AppendAccessEntry(ctx, e.ledgerID, e.access)
		}
		cancel()

		if err != nil {
			metrics.AuditWriteFailures.Inc()
			slog.Warn("Best-effort audit write failed", "kind", e.kind, "error", err)
		}
	}
}

// Close stops accepting entries and waits for the queue to drain.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.ch)
	})
	r.wg.Wait()
}
