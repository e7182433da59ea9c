package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BackupMetrics tracks snapshot output and retention.
type BackupMetrics struct {
	snapshotBytes prometheus.Gauge
	lastSuccess   prometheus.Gauge
	snapshots     prometheus.Gauge
	pruned        prometheus.Counter
	failures      *prometheus.CounterVec
}

func NewBackupMetrics(reg prometheus.Registerer) *BackupMetrics {
	if reg == nil {
		return &BackupMetrics{}
	}
	m := &BackupMetrics{
		snapshotBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "last_snapshot_bytes",
			Help:      "Size of the most recent snapshot.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the most recent successful snapshot.",
		}),
		snapshots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "retained_files",
			Help:      "Files left in the backup directory after pruning.",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "pruned_files_total",
			Help:      "Expired files removed from the backup directory.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "step_failures_total",
			Help:      "Backup step failures by step.",
		}, []string{"step"}),
	}
	reg.MustRegister(m.snapshotBytes, m.lastSuccess, m.snapshots, m.pruned, m.failures)
	return m
}

// SnapshotWritten records a completed copy.
func (m *BackupMetrics) SnapshotWritten(size int64, at time.Time) {
	if m == nil || m.snapshotBytes == nil {
		return
	}
	m.snapshotBytes.Set(float64(size))
	m.lastSuccess.Set(float64(at.Unix()))
}

// Pruned records a completed prune pass.
func (m *BackupMetrics) Pruned(removed, retained int) {
	if m == nil || m.pruned == nil {
		return
	}
	m.pruned.Add(float64(removed))
	m.snapshots.Set(float64(retained))
}

// StepFailed counts a failed copy or prune step.
func (m *BackupMetrics) StepFailed(step string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(step)).Inc()
}
