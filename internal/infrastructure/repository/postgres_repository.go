package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"free-shipping-bar/internal/domain"
	"free-shipping-bar/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var _ ports.Repository = (*PostgresRepository)(nil)

// PostgresRepository implements Repository on a pgx connection pool.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresRepository opens a new connection pool to the database.
func NewPostgresRepository(ctx context.Context, databaseURL string, logger zerolog.Logger) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		logger: logger.With().Str("component", "repo_postgres").Logger(),
	}
	if err := r.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// Ping ensures the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the connection pool.
func (r *PostgresRepository) Close(context.Context) error {
	r.pool.Close()
	return nil
}

// Migrate executes each migration file in its own transaction.
func (r *PostgresRepository) Migrate(ctx context.Context, migrations fs.FS) error {
	return applyMigrations(migrations, func(name, stmt string) error {
		err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, stmt)
			return err
		})
		if err != nil {
			return err
		}
		r.logger.Debug().Str("migration", name).Msg("Applied migration")
		return nil
	})
}

// SaveShop inserts or updates a shop. installed_at is kept from the first install.
func (r *PostgresRepository) SaveShop(ctx context.Context, shop *domain.Shop) error {
	const q = `
INSERT INTO shops (domain, access_token, scope, installed_at, updated_at, uninstalled)
VALUES ($1, $2, $3, COALESCE($4, NOW()), NOW(), $5)
ON CONFLICT (domain) DO UPDATE SET
    access_token = EXCLUDED.access_token,
    scope = EXCLUDED.scope,
    updated_at = NOW(),
    uninstalled = EXCLUDED.uninstalled
RETURNING installed_at, updated_at;
`
	var installedAt *time.Time
	if !shop.InstalledAt.IsZero() {
		installedAt = &shop.InstalledAt
	}
	row := r.pool.QueryRow(ctx, q, shop.Domain, shop.AccessToken, shop.Scope, installedAt, shop.Uninstalled)
	if err := row.Scan(&shop.InstalledAt, &shop.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save shop: %w", err)
	}
	return nil
}

// GetShop retrieves a shop by domain
func (r *PostgresRepository) GetShop(ctx context.Context, shopDomain string) (*domain.Shop, error) {
	const q = `SELECT domain, access_token, scope, installed_at, updated_at, uninstalled FROM shops WHERE domain = $1`

	var shop domain.Shop
	err := r.pool.QueryRow(ctx, q, shopDomain).Scan(
		&shop.Domain, &shop.AccessToken, &shop.Scope, &shop.InstalledAt, &shop.UpdatedAt, &shop.Uninstalled,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}
	return &shop, nil
}

// MarkUninstalled flags the shop and reports whether it existed.
func (r *PostgresRepository) MarkUninstalled(ctx context.Context, shopDomain string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE shops SET uninstalled = TRUE, updated_at = NOW() WHERE domain = $1`, shopDomain)
	if err != nil {
		return false, fmt.Errorf("failed to mark shop uninstalled: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetSettings retrieves the stored settings row for shop.
func (r *PostgresRepository) GetSettings(ctx context.Context, shop string) (*domain.Settings, error) {
	const q = `
SELECT shop, threshold_cents, position, banner_text, top_text, bottom_text, bg, fg, updated_at
FROM settings WHERE shop = $1`

	var (
		s        domain.Settings
		position string
	)
	err := r.pool.QueryRow(ctx, q, shop).Scan(
		&s.Shop, &s.ThresholdCents, &position, &s.BannerText, &s.TopText, &s.BottomText, &s.Background, &s.Foreground, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	s.Position = domain.ParsePosition(position)
	return &s, nil
}

// SaveSettings replaces the full settings row for settings.Shop.
func (r *PostgresRepository) SaveSettings(ctx context.Context, settings *domain.Settings) error {
	settings.UpdatedAt = time.Now()
	const q = `
INSERT INTO settings (shop, threshold_cents, position, banner_text, top_text, bottom_text, bg, fg, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (shop) DO UPDATE SET
    threshold_cents = EXCLUDED.threshold_cents,
    position = EXCLUDED.position,
    banner_text = EXCLUDED.banner_text,
    top_text = EXCLUDED.top_text,
    bottom_text = EXCLUDED.bottom_text,
    bg = EXCLUDED.bg,
    fg = EXCLUDED.fg,
    updated_at = EXCLUDED.updated_at;
`
	if _, err := r.pool.Exec(ctx, q, settingsArgs(settings, settings.UpdatedAt)...); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// EnsureSettings inserts settings unless the shop already has a row.
func (r *PostgresRepository) EnsureSettings(ctx context.Context, settings *domain.Settings) error {
	settings.UpdatedAt = time.Now()
	const q = `
INSERT INTO settings (shop, threshold_cents, position, banner_text, top_text, bottom_text, bg, fg, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (shop) DO NOTHING;
`
	if _, err := r.pool.Exec(ctx, q, settingsArgs(settings, settings.UpdatedAt)...); err != nil {
		return fmt.Errorf("failed to ensure settings: %w", err)
	}
	return nil
}
