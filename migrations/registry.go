// Package migrations resolves the embedded DCB schema for each supported SQL
// dialect and hands it to a persistence client.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	dcb "github.com/goliatone/go-dcb"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

var dialectDirs = map[string]string{
	DialectPostgres: "data/sql/migrations",
	DialectSQLite:   "data/sql/migrations/sqlite",
}

// RegisterFunc receives the migration files of one dialect.
type RegisterFunc func(ctx context.Context, dialect string, fsys fs.FS) error

// ForDialect returns the DCB migration files for dialect.
func ForDialect(dialect string) (fs.FS, error) {
	dialect = strings.TrimSpace(strings.ToLower(dialect))
	dir, ok := dialectDirs[dialect]
	if !ok {
		return nil, fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
	sub, err := fs.Sub(dcb.GetMigrationsFS(), dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s filesystem: %w", dialect, err)
	}
	matches, err := fs.Glob(sub, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: glob %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("migrations: %s has no *.up.sql files", dir)
	}
	return sub, nil
}

// Register passes each requested dialect to registerFn, postgres and sqlite
// when none are named.
func Register(ctx context.Context, registerFn RegisterFunc, dialects ...string) error {
	if registerFn == nil {
		return fmt.Errorf("migrations: register function is required")
	}
	if len(dialects) == 0 {
		dialects = []string{DialectPostgres, DialectSQLite}
	}
	seen := make(map[string]struct{}, len(dialects))
	for _, dialect := range dialects {
		dialect = strings.TrimSpace(strings.ToLower(dialect))
		if _, done := seen[dialect]; done {
			continue
		}
		seen[dialect] = struct{}{}

		fsys, err := ForDialect(dialect)
		if err != nil {
			return err
		}
		if err := registerFn(ctx, dialect, fsys); err != nil {
			return fmt.Errorf("migrations: register %s: %w", dialect, err)
		}
	}
	return nil
}
