package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	fileNameRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	slugRe     = regexp.MustCompile(`[^a-z0-9]+`)
)

const fileTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- undo %[1]s
-- +goose StatementEnd
`

// Validate checks that every .sql file is named <14 digit version>_<slug>.sql,
// that versions are unique and that both goose sections are present.
func Validate(migrations fs.FS) error {
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	versions := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}
		match := fileNameRe.FindStringSubmatch(name)
		if match == nil {
			return fmt.Errorf("%s: expected YYYYMMDDHHMMSS_name.sql", name)
		}
		if other, dup := versions[match[1]]; dup {
			return fmt.Errorf("%s: version %s already used by %s", name, match[1], other)
		}
		versions[match[1]] = name

		body, err := fs.ReadFile(migrations, name)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(string(body), marker) {
				return fmt.Errorf("%s: missing %q", name, marker)
			}
		}
	}
	return nil
}

// Create writes an empty timestamped migration into dir and returns its path.
func Create(dir, name string, now time.Time) (string, error) {
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", now.UTC().Format("20060102150405"), slug))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, fileTemplate, slug); err != nil {
		return "", fmt.Errorf("write migration: %w", err)
	}
	return path, nil
}
