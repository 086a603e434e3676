package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"free-shipping-bar/internal/domain"
	"free-shipping-bar/internal/ports"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

var _ ports.Repository = (*SQLiteRepository)(nil)

// SQLiteRepository implements Repository on a local SQLite file.
// Timestamps are stored as unix milliseconds.
type SQLiteRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteRepository opens the SQLite database at path.
func NewSQLiteRepository(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteRepository, error) {
	path = strings.TrimSpace(strings.TrimPrefix(path, "sqlite://"))
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is empty")
	}
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	// WAL plus a busy timeout lets concurrent requests share one file.
	dsn = fmt.Sprintf("%s%s_pragma=busy_timeout=10000&_pragma=journal_mode=WAL&_pragma=foreign_keys=ON", dsn, sep)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteRepository{
		db:     db,
		logger: logger.With().Str("component", "repo_sqlite").Logger(),
	}, nil
}

// Ping ensures the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the database connection.
func (r *SQLiteRepository) Close(context.Context) error {
	return r.db.Close()
}

// Migrate applies every .sql file in migrations in lexicographical order.
func (r *SQLiteRepository) Migrate(ctx context.Context, migrations fs.FS) error {
	return applyMigrations(migrations, func(name, stmt string) error {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
		r.logger.Debug().Str("migration", name).Msg("Applied migration")
		return nil
	})
}

// SaveShop inserts or updates a shop. installed_at is kept from the first install.
func (r *SQLiteRepository) SaveShop(ctx context.Context, shop *domain.Shop) error {
	now := time.Now()
	if shop.InstalledAt.IsZero() {
		shop.InstalledAt = now
	}
	shop.UpdatedAt = now

	const q = `
INSERT INTO shops (domain, access_token, scope, installed_at, updated_at, uninstalled)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (domain) DO UPDATE SET
    access_token = excluded.access_token,
    scope = excluded.scope,
    updated_at = excluded.updated_at,
    uninstalled = excluded.uninstalled`
	_, err := r.db.ExecContext(ctx, q,
		shop.Domain,
		shop.AccessToken,
		shop.Scope,
		shop.InstalledAt.UnixMilli(),
		shop.UpdatedAt.UnixMilli(),
		shop.Uninstalled,
	)
	if err != nil {
		return fmt.Errorf("failed to save shop: %w", err)
	}
	return nil
}

// GetShop retrieves a shop by domain
func (r *SQLiteRepository) GetShop(ctx context.Context, shopDomain string) (*domain.Shop, error) {
	const q = `SELECT domain, access_token, scope, installed_at, updated_at, uninstalled FROM shops WHERE domain = ?`

	var (
		shop                   domain.Shop
		installedAt, updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, q, shopDomain).Scan(
		&shop.Domain, &shop.AccessToken, &shop.Scope, &installedAt, &updatedAt, &shop.Uninstalled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}
	shop.InstalledAt = time.UnixMilli(installedAt)
	shop.UpdatedAt = time.UnixMilli(updatedAt)
	return &shop, nil
}

// MarkUninstalled flags the shop and reports whether it existed.
func (r *SQLiteRepository) MarkUninstalled(ctx context.Context, shopDomain string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE shops SET uninstalled = 1, updated_at = ? WHERE domain = ?`,
		time.Now().UnixMilli(), shopDomain,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark shop uninstalled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark shop uninstalled: %w", err)
	}
	return n > 0, nil
}

// GetSettings retrieves the stored settings row for shop.
func (r *SQLiteRepository) GetSettings(ctx context.Context, shop string) (*domain.Settings, error) {
	const q = `
SELECT shop, threshold_cents, position, banner_text, top_text, bottom_text, bg, fg, updated_at
FROM settings WHERE shop = ?`

	var (
		s                   domain.Settings
		position            string
		topText, bottomText sql.NullString
		updatedAt           int64
	)
	err := r.db.QueryRowContext(ctx, q, shop).Scan(
		&s.Shop, &s.ThresholdCents, &position, &s.BannerText, &topText, &bottomText, &s.Background, &s.Foreground, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	s.Position = domain.ParsePosition(position)
	s.TopText = nullableString(topText)
	s.BottomText = nullableString(bottomText)
	s.UpdatedAt = time.UnixMilli(updatedAt)
	return &s, nil
}

// SaveSettings replaces the full settings row for settings.Shop.
func (r *SQLiteRepository) SaveSettings(ctx context.Context, settings *domain.Settings) error {
	settings.UpdatedAt = time.Now()
	const q = `
INSERT INTO settings (shop, threshold_cents, position, banner_text, top_text, bottom_text, bg, fg, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (shop) DO UPDATE SET
    threshold_cents = excluded.threshold_cents,
    position = excluded.position,
    banner_text = excluded.banner_text,
    top_text = excluded.top_text,
    bottom_text = excluded.bottom_text,
    bg = excluded.bg,
    fg = excluded.fg,
    updated_at = excluded.updated_at`
	if _, err := r.db.ExecContext(ctx, q, settingsArgs(settings, settings.UpdatedAt.UnixMilli())...); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// EnsureSettings inserts settings unless the shop already has a row.
func (r *SQLiteRepository) EnsureSettings(ctx context.Context, settings *domain.Settings) error {
	settings.UpdatedAt = time.Now()
	const q = `
INSERT INTO settings (shop, threshold_cents, position, banner_text, top_text, bottom_text, bg, fg, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (shop) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, q, settingsArgs(settings, settings.UpdatedAt.UnixMilli())...); err != nil {
		return fmt.Errorf("failed to ensure settings: %w", err)
	}
	return nil
}

func settingsArgs(s *domain.Settings, updatedAt any) []any {
	return []any{
		s.Shop,
		s.ThresholdCents,
		string(domain.ParsePosition(string(s.Position))),
		s.BannerText,
		derefOrNil(s.TopText),
		derefOrNil(s.BottomText),
		s.Background,
		s.Foreground,
		updatedAt,
	}
}

func derefOrNil(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return domain.StringPtr(ns.String)
}

// applyMigrations runs each file of migrations through exec in name order.
func applyMigrations(migrations fs.FS, exec func(name, stmt string) error) error {
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		sqlBytes, err := fs.ReadFile(migrations, entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if len(strings.TrimSpace(string(sqlBytes))) == 0 {
			continue
		}
		if err := exec(entry.Name(), string(sqlBytes)); err != nil {
			return fmt.Errorf("execute migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}
