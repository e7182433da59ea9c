package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/angelmondragon/cartwatch/pkg/config"
)

// Dialects lists the drivers that carry their own migration directory.
var Dialects = []string{config.DriverSQLite, config.DriverPostgres}

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

// CreateSQLMigration writes one goose migration per dialect under root, all
// sharing a version so the stores stay in lockstep:
//
//	<root>/sqlite/<YYYYMMDDHHMMSS>_<name>.sql
//	<root>/postgres/<YYYYMMDDHHMMSS>_<name>.sql
func CreateSQLMigration(root, name string) ([]string, error) {
	if root == "" {
		return nil, fmt.Errorf("migrations root is required")
	}
	slug := migrationSlug(name)
	if slug == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}

	filename := fmt.Sprintf("%s_%s.sql", time.Now().UTC().Format("20060102150405"), slug)
	paths := make([]string, 0, len(Dialects))
	for _, dialect := range Dialects {
		path := filepath.Join(DialectDir(root, dialect), filename)
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("migration already exists: %s", path)
		}
		paths = append(paths, path)
	}

	for i, dialect := range Dialects {
		if err := os.MkdirAll(filepath.Dir(paths[i]), 0o755); err != nil {
			return nil, fmt.Errorf("create %s migrations dir: %w", dialect, err)
		}
		if err := os.WriteFile(paths[i], []byte(migrationTemplate(dialect, slug)), 0o644); err != nil {
			return nil, fmt.Errorf("write %s migration: %w", dialect, err)
		}
	}
	return paths, nil
}

func migrationSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = nameSanitizeRe.ReplaceAllString(slug, "_")
	return strings.Trim(slug, "_")
}

func migrationTemplate(dialect, slug string) string {
	return fmt.Sprintf(`-- %s: %s
-- +goose Up
-- +goose StatementBegin
SELECT 1;
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
SELECT 1;
-- +goose StatementEnd
`, dialect, slug)
}
