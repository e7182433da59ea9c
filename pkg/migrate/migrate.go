package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strconv"

	"github.com/angelmondragon/cartwatch/pkg/config"
	"github.com/pressly/goose/v3"
)

// DefaultDir is where new migrations are created, one subdirectory per driver.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var embedded embed.FS

// DialectDir returns the per-driver subdirectory below a migrations root.
func DialectDir(root, driver string) string {
	return path.Join(root, driver)
}

func newProvider(db *sql.DB, driver string) (*goose.Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	var dialect goose.Dialect
	switch driver {
	case config.DriverSQLite, "":
		driver = config.DriverSQLite
		dialect = goose.DialectSQLite3
	case config.DriverPostgres:
		dialect = goose.DialectPostgres
	default:
		return nil, fmt.Errorf("unsupported migration driver %q", driver)
	}
	fsys, err := fs.Sub(embedded, DialectDir("migrations", driver))
	if err != nil {
		return nil, fmt.Errorf("migration fs for %s: %w", driver, err)
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// Up applies every pending migration for the driver.
func Up(ctx context.Context, db *sql.DB, driver string) ([]*goose.MigrationResult, error) {
	provider, err := newProvider(db, driver)
	if err != nil {
		return nil, err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return results, fmt.Errorf("goose up: %w", err)
	}
	return results, nil
}

// Run executes a goose command (up|down|status|version) against the embedded migrations.
func Run(ctx context.Context, db *sql.DB, driver string, command string) (string, error) {
	provider, err := newProvider(db, driver)
	if err != nil {
		return "", err
	}

	switch command {
	case "up":
		results, err := provider.Up(ctx)
		if err != nil {
			return "", fmt.Errorf("goose up: %w", err)
		}
		return fmt.Sprintf("applied %d migration(s)", len(results)), nil

	case "down":
		result, err := provider.Down(ctx)
		if err != nil {
			return "", fmt.Errorf("goose down: %w", err)
		}
		return fmt.Sprintf("rolled back %s", result.Source.Path), nil

	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return "", fmt.Errorf("goose status: %w", err)
		}
		out := ""
		for _, st := range statuses {
			out += fmt.Sprintf("%-8s %s\n", st.State, st.Source.Path)
		}
		return out, nil

	case "version":
		version, err := provider.GetDBVersion(ctx)
		if err != nil {
			return "", fmt.Errorf("goose version: %w", err)
		}
		return strconv.FormatInt(version, 10), nil
	}
	return "", fmt.Errorf("unknown goose command %q", command)
}

// MigrateToVersion migrates up/down to the requested version by comparing current DB version.
func MigrateToVersion(ctx context.Context, db *sql.DB, driver string, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}

	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	provider, err := newProvider(db, driver)
	if err != nil {
		return err
	}

	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil

	case current < target:
		if _, err := provider.UpTo(ctx, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return nil

	default:
		if _, err := provider.DownTo(ctx, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return nil
	}
}
