package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Throughput metrics - Track pipeline volume
var (
	BatchesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pharmatrace_batches_created_total",
		Help: "Total number of batch records created",
	})

	AnchorAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmatrace_anchor_attempts_total",
			Help: "Total number of external-ledger anchor attempts by resulting state",
		},
		[]string{"state"},
	)

	CustodySteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmatrace_custody_steps_total",
			Help: "Total number of custody steps appended by action",
		},
		[]string{"action"},
	)

	ScansResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmatrace_scans_resolved_total",
			Help: "Total number of scan resolutions by winning strategy",
		},
		[]string{"strategy"},
	)

	ScanAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmatrace_scan_alerts_total",
			Help: "Total number of scan alerts by type",
		},
		[]string{"alert"},
	)

	ScanFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pharmatrace_scan_failures_total",
		Help: "Total number of scans that resolved to no batch",
	})

	SignatureVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmatrace_signature_verifications_total",
			Help: "Total number of signature verifications by result",
		},
		[]string{"result"},
	)
)

// Performance metrics - Track external-call and resolution latency
var (
	AnchorDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pharmatrace_anchor_duration_seconds",
		Help:    "Time taken by one external-ledger anchor call",
		Buckets: prometheus.DefBuckets,
	})

	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pharmatrace_resolve_duration_seconds",
		Help:    "Time taken to resolve a scanned identifier",
		Buckets: prometheus.DefBuckets,
	})
)

// Reliability metrics - Track best-effort paths
var (
	AuditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pharmatrace_audit_entries_dropped_total",
		Help: "Total number of best-effort audit entries dropped on a full buffer",
	})

	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pharmatrace_audit_write_failures_total",
		Help: "Total number of best-effort audit writes that failed",
	})
)

// Error metrics - Track failures
var (
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmatrace_errors_total",
			Help: "Total number of errors by service",
		},
		[]string{"service"},
	)
)
