package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

// Files exposes embedded SQL migration files, one directory per SQL dialect,
// ordered lexicographically within each.
//
//go:embed sqlite/*.sql postgres/*.sql
var Files embed.FS

// For returns the migrations of one dialect ("sqlite" or "postgres").
func For(dialect string) (fs.FS, error) {
	sub, err := fs.Sub(Files, dialect)
	if err != nil {
		return nil, fmt.Errorf("migrations for %s: %w", dialect, err)
	}
	return sub, nil
}
