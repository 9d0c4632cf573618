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

// ValidateDir checks every dialect directory under root and then that the
// dialects carry the same migration files, so sqlite tests and postgres
// deployments never drift apart.
func ValidateDir(root string) error {
	if root == "" {
		return fmt.Errorf("dir is required")
	}

	var reference []string
	for _, dialect := range dialectDirs {
		names, err := validateDialectDir(filepath.Join(root, dialect))
		if err != nil {
			return err
		}
		if reference == nil {
			reference = names
			continue
		}
		if missing := diffNames(reference, names); len(missing) > 0 {
			return fmt.Errorf("%s migrations out of sync with %s: %s", dialect, dialectDirs[0], strings.Join(missing, ", "))
		}
	}
	return nil
}

// validateDialectDir checks filenames, unique versions and goose headers,
// returning the sorted file names.
func validateDialectDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return nil, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		full := filepath.Join(dir, name)
		b, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("read file %q: %w", full, err)
		}
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(string(b), marker) {
				return nil, fmt.Errorf("migration %q missing %q", full, marker)
			}
		}
		names = append(names, name)
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("no migrations found in %q", dir)
	}
	sort.Strings(names)
	return names, nil
}

// diffNames lists names present in exactly one of a or b.
func diffNames(a, b []string) []string {
	count := map[string]int{}
	for _, n := range a {
		count[n]++
	}
	for _, n := range b {
		count[n]--
	}
	var out []string
	for n, c := range count {
		if c != 0 {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
