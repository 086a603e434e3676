package ports

import (
	"context"
	"io/fs"

	"free-shipping-bar/internal/domain"
)

// ShopRepository persists one record per installed shop.
// Get methods return (nil, nil) when nothing is stored.
type ShopRepository interface {
	SaveShop(ctx context.Context, shop *domain.Shop) error
	GetShop(ctx context.Context, domain string) (*domain.Shop, error)
	MarkUninstalled(ctx context.Context, domain string) (bool, error)
}

// SettingsRepository persists at most one settings row per shop.
type SettingsRepository interface {
	GetSettings(ctx context.Context, shop string) (*domain.Settings, error)
	SaveSettings(ctx context.Context, settings *domain.Settings) error
	// EnsureSettings inserts settings only when the shop has no row yet.
	EnsureSettings(ctx context.Context, settings *domain.Settings) error
}

// Repository defines the interface for persistence
type Repository interface {
	ShopRepository
	SettingsRepository

	Ping(ctx context.Context) error
	Migrate(ctx context.Context, migrations fs.FS) error
	Close(ctx context.Context) error
}
