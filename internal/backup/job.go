package backup

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/cartwatch/pkg/errors"
	"github.com/angelmondragon/cartwatch/pkg/logger"
	"github.com/angelmondragon/cartwatch/pkg/metrics"
	"go.uber.org/multierr"
)

// JobName identifies the backup job in logs, metrics and locks.
const JobName = "store-backup"

const defaultRetention = 7 * 24 * time.Hour

// State is the phase of a backup run.
type State string

const (
	StateIdle    State = "idle"
	StateCopying State = "copying"
	StatePruning State = "pruning"
	StateFailed  State = "failed"
)

// Status is a point-in-time view of the job.
type Status struct {
	State        State      `json:"state"`
	Runs         int        `json:"runs"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	LastSnapshot *Snapshot  `json:"last_snapshot,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	LastPruned   []string   `json:"last_pruned,omitempty"`
}

// JobParams configure the backup job.
type JobParams struct {
	Logger    *logger.Logger
	Metrics   *metrics.BackupMetrics
	Source    string
	Dir       string
	Retention time.Duration
	// Now overrides the clock used for snapshot names and retention.
	Now func() time.Time
	// OnTransition observes every state change.
	OnTransition func(from, to State)
}

// Job copies the store file and prunes expired snapshots.
type Job struct {
	logg         *logger.Logger
	metrics      *metrics.BackupMetrics
	copier       *Copier
	pruner       *Pruner
	dir          string
	now          func() time.Time
	onTransition func(from, to State)

	run    sync.Mutex
	mu     sync.RWMutex
	status Status
}

// NewJob validates params and creates the backup directory if needed.
func NewJob(params JobParams) (*Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(params.Source) == "" {
		return nil, fmt.Errorf("backup source path required")
	}
	if strings.TrimSpace(params.Dir) == "" {
		return nil, fmt.Errorf("backup directory required")
	}
	if err := os.MkdirAll(params.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Job{
		logg:         params.Logger,
		metrics:      params.Metrics,
		copier:       NewCopier(params.Source, params.Dir),
		pruner:       NewPruner(params.Dir, retention),
		dir:          params.Dir,
		now:          now,
		onTransition: params.OnTransition,
		status:       Status{State: StateIdle},
	}, nil
}

func (j *Job) Name() string { return JobName }

// Dir is the directory snapshots are written to.
func (j *Job) Dir() string { return j.dir }

// Run performs one backup: copy, then prune. Prune runs even when the copy
// failed. Errors from both steps are combined into one BACKUP_ERROR; the job
// is Idle again when Run returns.
func (j *Job) Run(ctx context.Context) error {
	j.run.Lock()
	defer j.run.Unlock()

	now := j.now()
	ctx = j.logg.WithJob(ctx, JobName)

	var errs error
	var snapshot *Snapshot

	j.transition(ctx, StateCopying)
	snap, err := j.copier.Copy(ctx, now)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("copy: %w", err))
		j.metrics.StepFailed("copy")
		j.logg.Error(ctx, "backup copy failed", err)
		j.transition(ctx, StateFailed)
	} else {
		snapshot = &snap
		j.metrics.SnapshotWritten(snap.Size, now)
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"snapshot": snap.Path,
			"bytes":    snap.Size,
		}), "backup snapshot written")
	}

	j.transition(ctx, StatePruning)
	result, err := j.pruner.Prune(ctx, now)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("prune: %w", err))
		j.metrics.StepFailed("prune")
		j.logg.Error(ctx, "backup prune failed", err)
		j.transition(ctx, StateFailed)
	}
	j.metrics.Pruned(len(result.Removed), result.Retained)
	if len(result.Removed) > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"removed":  result.Removed,
			"retained": result.Retained,
		}), "expired snapshots pruned")
	}

	j.mu.Lock()
	j.status.Runs++
	j.status.LastRunAt = &now
	if snapshot != nil {
		j.status.LastSnapshot = snapshot
	}
	j.status.LastPruned = result.Removed
	j.status.LastError = ""
	if errs != nil {
		j.status.LastError = errs.Error()
	}
	j.mu.Unlock()

	j.transition(ctx, StateIdle)

	if errs != nil {
		return pkgerrors.Wrap(pkgerrors.CodeBackup, errs, "backup run failed")
	}
	return nil
}

// Status returns a copy of the job's current status.
func (j *Job) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	status := j.status
	if status.LastPruned != nil {
		status.LastPruned = append([]string(nil), status.LastPruned...)
	}
	return status
}

func (j *Job) transition(ctx context.Context, to State) {
	j.mu.Lock()
	from := j.status.State
	j.status.State = to
	j.mu.Unlock()

	if from == to {
		return
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"event": "backup.state",
		"from":  string(from),
		"to":    string(to),
	}), "backup state changed")
	if j.onTransition != nil {
		j.onTransition(from, to)
	}
}
