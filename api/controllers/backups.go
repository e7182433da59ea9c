package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/angelmondragon/cartwatch/api/responses"
	"github.com/angelmondragon/cartwatch/internal/backup"
	"github.com/angelmondragon/cartwatch/internal/cron"
	pkgerrors "github.com/angelmondragon/cartwatch/pkg/errors"
	"github.com/angelmondragon/cartwatch/pkg/logger"
)

// BackupInspector exposes the backup job's state.
type BackupInspector interface {
	Status() backup.Status
	Dir() string
}

// BackupRunner triggers an immediate scheduler cycle.
type BackupRunner interface {
	RunNow(ctx context.Context) error
}

type backupOverview struct {
	Status    backup.Status     `json:"status"`
	Snapshots []backup.Snapshot `json:"snapshots"`
}

var errBackupsDisabled = pkgerrors.New(pkgerrors.CodeNotFound, "backups are disabled")

func BackupStatus(job BackupInspector, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if job == nil {
			responses.WriteError(r.Context(), logg, w, errBackupsDisabled)
			return
		}
		snapshots, err := backup.ListSnapshots(job.Dir())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeBackup, err, "list snapshots"))
			return
		}
		if snapshots == nil {
			snapshots = []backup.Snapshot{}
		}
		responses.WriteSuccess(w, backupOverview{Status: job.Status(), Snapshots: snapshots})
	}
}

// RunBackup runs the scheduler once and reports the resulting job status.
func RunBackup(runner BackupRunner, job BackupInspector, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runner == nil || job == nil {
			responses.WriteError(r.Context(), logg, w, errBackupsDisabled)
			return
		}
		if err := runner.RunNow(r.Context()); err != nil {
			if errors.Is(err, cron.ErrCycleSkipped) {
				err = pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a backup run is already in progress")
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, job.Status())
	}
}
