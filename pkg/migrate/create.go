package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// dialectDirs are the per-driver subdirectories every migration must exist in.
var dialectDirs = []string{"postgres", "sqlite"}

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s (%[2]s)
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s (%[2]s)
-- +goose StatementEnd
`

// CreateSQLMigration writes one goose file per dialect under root, all
// sharing the same version:
//
//	<root>/{postgres,sqlite}/<YYYYMMDDHHMMSS>_<name>.sql
//
// Nothing is written if any target already exists.
func CreateSQLMigration(root string, name string) ([]string, error) {
	if root == "" {
		return nil, errors.New("dir is required")
	}
	safe := sanitizeMigrationName(name)
	if safe == "" {
		return nil, fmt.Errorf("name %q results in empty sanitized filename", name)
	}

	filename := fmt.Sprintf("%s_%s.sql", time.Now().UTC().Format("20060102150405"), safe)
	paths := make([]string, 0, len(dialectDirs))
	for _, dialect := range dialectDirs {
		full := filepath.Join(root, dialect, filename)
		if _, err := os.Stat(full); err == nil {
			return nil, fmt.Errorf("migration already exists: %s", full)
		}
		paths = append(paths, full)
	}

	for i, dialect := range dialectDirs {
		if err := os.MkdirAll(filepath.Dir(paths[i]), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %q: %w", filepath.Dir(paths[i]), err)
		}
		body := fmt.Sprintf(migrationTemplate, safe, dialect)
		if err := os.WriteFile(paths[i], []byte(body), 0o644); err != nil {
			return nil, fmt.Errorf("write migration %q: %w", paths[i], err)
		}
	}
	return paths, nil
}

func sanitizeMigrationName(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}
