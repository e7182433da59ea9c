package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"
)

const (
	snapshotPrefix   = "cart_backup_"
	snapshotLayout   = "20060102150405"
	defaultExtension = ".db"
)

var snapshotRe = regexp.MustCompile(`^cart_backup_(\d{14})(\.[A-Za-z0-9]+)?$`)

// Snapshot describes one backup file.
type Snapshot struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// SnapshotName formats the file name for a snapshot taken at t.
func SnapshotName(t time.Time, ext string) string {
	if ext == "" {
		ext = defaultExtension
	}
	return snapshotPrefix + t.UTC().Format(snapshotLayout) + ext
}

// Copier writes byte copies of the store file into the backup directory.
//
// The copy is a plain read of the live file. A writer committing during the
// read can leave the snapshot internally inconsistent; SQLite rollback-journal
// mode keeps that window to the duration of a single commit.
type Copier struct {
	source  string
	dir     string
	chtimes func(name string, atime, mtime time.Time) error
}

func NewCopier(source, dir string) *Copier {
	return &Copier{source: source, dir: dir, chtimes: os.Chtimes}
}

// Copy snapshots the source file. The data lands in a temp file first and is
// renamed into place after fsync, so a failed copy never leaves a file under a
// snapshot name.
func (c *Copier) Copy(ctx context.Context, now time.Time) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	src, err := os.Open(c.source)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(c.dir, ".cart_backup_*.tmp")
	if err != nil {
		return Snapshot{}, fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	size, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: src})
	if err != nil {
		return Snapshot{}, fmt.Errorf("copy source: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return Snapshot{}, fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Snapshot{}, fmt.Errorf("close snapshot: %w", err)
	}
	// mtime drives retention, keep it on the job clock. Rename preserves it.
	if err := c.chtimes(tmpPath, now, now); err != nil {
		return Snapshot{}, fmt.Errorf("stamp snapshot: %w", err)
	}

	name := SnapshotName(now, filepath.Ext(c.source))
	final := filepath.Join(c.dir, name)
	if err := os.Rename(tmpPath, final); err != nil {
		return Snapshot{}, fmt.Errorf("rename snapshot: %w", err)
	}
	renamed = true

	return Snapshot{Name: name, Path: final, Size: size, CreatedAt: now}, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// ListSnapshots returns the snapshots in dir, newest first. Other files are ignored.
func ListSnapshots(dir string) ([]Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	snapshots := make([]Snapshot, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		m := snapshotRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		created, err := time.ParseInLocation(snapshotLayout, m[1], time.UTC)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, Snapshot{
			Name:      entry.Name(),
			Path:      filepath.Join(dir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: created,
		})
	}

	slices.SortFunc(snapshots, func(a, b Snapshot) int {
		return strings.Compare(b.Name, a.Name)
	})
	return snapshots, nil
}
