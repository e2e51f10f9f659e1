package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pressly/goose/v3"
)

// CreateSQLMigration writes a fresh timestamped SQL migration into dir and
// returns its path.
func CreateSQLMigration(dir, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("name is required")
	}
	if err := goose.Create(nil, dir, name, "sql"); err != nil {
		return "", fmt.Errorf("goose create: %w", err)
	}

	// goose doesn't return the generated path; pick the newest match.
	pattern := filepath.Join(dir, fmt.Sprintf("*_%s.sql", snakeCase(name)))
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return dir, nil
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// ValidateDir checks that the migrations directory exists and parses cleanly.
func ValidateDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("migrations dir %q: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("migrations path %q is not a directory", dir)
	}
	if _, err := goose.CollectMigrations(dir, 0, goose.MaxVersion); err != nil {
		return fmt.Errorf("collect migrations: %w", err)
	}
	return nil
}

func snakeCase(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(strings.ToLower(name)), " ", "_")
}
