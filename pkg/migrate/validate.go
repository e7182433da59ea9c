package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks every dialect directory under root: file names, goose
// annotations, unique versions, and that each dialect carries the same set of
// migrations.
func ValidateDir(root string) error {
	if root == "" {
		return fmt.Errorf("migrations root is required")
	}

	var (
		reference     []string
		referenceName string
	)
	for _, dialect := range Dialects {
		files, err := dialectMigrations(DialectDir(root, dialect))
		if err != nil {
			return fmt.Errorf("%s migrations: %w", dialect, err)
		}
		if reference == nil {
			reference, referenceName = files, dialect
			continue
		}
		if strings.Join(files, ",") != strings.Join(reference, ",") {
			return fmt.Errorf("%s and %s migrations differ: %v vs %v", referenceName, dialect, reference, files)
		}
	}
	return nil
}

// dialectMigrations returns the sorted migration file names in dir.
func dialectMigrations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	versions := map[string]string{}
	files := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := versions[m[1]]; ok {
			return nil, fmt.Errorf("duplicate version %s in %q and %q", m[1], prev, name)
		}
		versions[m[1]] = name

		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(string(b), marker) {
				return nil, fmt.Errorf("migration %q missing %q", name, marker)
			}
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}
