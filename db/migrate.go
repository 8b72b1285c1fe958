package db

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"docketflow/migrations"
)

// ApplyMigrations executes every embedded .sql file in lexical order. The
// statements are idempotent so reapplying against a migrated schema is safe.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	return ExecDir(ctx, pool, migrations.FS, ".")
}

// ExecDir runs the .sql files found in dir of fsys against the pool.
func ExecDir(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("db: read migrations %s: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}

		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("db: read %s: %w", e.Name(), err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("db: apply %s: %w", e.Name(), err)
		}
	}

	return nil
}
