package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
)

// PruneResult reports what a prune pass did.
type PruneResult struct {
	Removed  []string
	Retained int
}

// Pruner removes files whose modification time falls outside the retention window.
type Pruner struct {
	dir       string
	retention time.Duration
}

func NewPruner(dir string, retention time.Duration) *Pruner {
	return &Pruner{dir: dir, retention: retention}
}

// Prune deletes every regular file in the directory last modified strictly
// before now minus the retention window. A failure on one file does not stop
// the pass; all failures are returned together.
func (p *Pruner) Prune(ctx context.Context, now time.Time) (PruneResult, error) {
	var result PruneResult

	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return result, fmt.Errorf("read backup dir: %w", err)
	}

	cutoff := now.Add(-p.retention)
	var errs error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, multierr.Append(errs, err)
		}
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("stat %s: %w", entry.Name(), err))
			continue
		}
		if !info.ModTime().Before(cutoff) {
			result.Retained++
			continue
		}
		if err := os.Remove(filepath.Join(p.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			errs = multierr.Append(errs, fmt.Errorf("remove %s: %w", entry.Name(), err))
			result.Retained++
			continue
		}
		result.Removed = append(result.Removed, entry.Name())
	}
	return result, errs
}
