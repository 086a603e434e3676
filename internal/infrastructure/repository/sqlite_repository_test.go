package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"free-shipping-bar/internal/domain"
	"free-shipping-bar/migrations"

	"github.com/rs/zerolog"
)

func newTestSQLite(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	repo, err := NewSQLiteRepository(ctx, filepath.Join(t.TempDir(), "app.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close(ctx) })

	files, err := migrations.For("sqlite")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Migrate(ctx, files); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return repo
}

func installShop(t *testing.T, repo *SQLiteRepository, domainName string) {
	t.Helper()
	if err := repo.SaveShop(context.Background(), &domain.Shop{Domain: domainName, AccessToken: "tok", Scope: "write_script_tags"}); err != nil {
		t.Fatalf("SaveShop: %v", err)
	}
}

func TestSQLiteMigrateIsRepeatable(t *testing.T) {
	repo := newTestSQLite(t)
	files, _ := migrations.For("sqlite")
	if err := repo.Migrate(context.Background(), files); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestSQLiteShopLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestSQLite(t)

	got, err := repo.GetShop(ctx, "demo.myshopify.com")
	if err != nil || got != nil {
		t.Fatalf("GetShop on empty store = %v, %v", got, err)
	}

	installShop(t, repo, "demo.myshopify.com")
	first, err := repo.GetShop(ctx, "demo.myshopify.com")
	if err != nil || first == nil {
		t.Fatalf("GetShop = %v, %v", first, err)
	}
	if !first.Active() || first.Scope != "write_script_tags" {
		t.Errorf("shop = %+v", first)
	}

	ok, err := repo.MarkUninstalled(ctx, "demo.myshopify.com")
	if err != nil || !ok {
		t.Fatalf("MarkUninstalled = %v, %v", ok, err)
	}
	gone, _ := repo.GetShop(ctx, "demo.myshopify.com")
	if !gone.Uninstalled || gone.Active() {
		t.Errorf("shop not marked uninstalled: %+v", gone)
	}

	time.Sleep(5 * time.Millisecond)
	if err := repo.SaveShop(ctx, &domain.Shop{Domain: "demo.myshopify.com", AccessToken: "tok2"}); err != nil {
		t.Fatalf("reinstall SaveShop: %v", err)
	}
	again, _ := repo.GetShop(ctx, "demo.myshopify.com")
	if again.Uninstalled || again.AccessToken != "tok2" {
		t.Errorf("reinstall did not reactivate: %+v", again)
	}
	if !again.InstalledAt.Equal(first.InstalledAt) {
		t.Errorf("installed_at changed from %v to %v", first.InstalledAt, again.InstalledAt)
	}
	if !again.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("updated_at not advanced")
	}
}

func TestSQLiteMarkUninstalledUnknownShop(t *testing.T) {
	ok, err := newTestSQLite(t).MarkUninstalled(context.Background(), "ghost.myshopify.com")
	if err != nil || ok {
		t.Fatalf("MarkUninstalled = %v, %v", ok, err)
	}
}

func TestSQLiteSettings(t *testing.T) {
	ctx := context.Background()
	repo := newTestSQLite(t)
	installShop(t, repo, "demo.myshopify.com")

	if s, err := repo.GetSettings(ctx, "demo.myshopify.com"); err != nil || s != nil {
		t.Fatalf("GetSettings on empty store = %v, %v", s, err)
	}

	defaults := domain.DefaultSettings("demo.myshopify.com")
	if err := repo.EnsureSettings(ctx, &defaults); err != nil {
		t.Fatalf("EnsureSettings: %v", err)
	}

	custom := domain.Settings{
		Shop:           "demo.myshopify.com",
		ThresholdCents: 0,
		Position:       domain.PositionBottom,
		BannerText:     domain.DefaultBannerText,
		TopText:        domain.StringPtr(""),
		BottomText:     domain.StringPtr("Add {remaining} more"),
		Background:     "#000000",
		Foreground:     "#eeeeee",
	}
	if err := repo.SaveSettings(ctx, &custom); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	// EnsureSettings never overwrites an existing row.
	if err := repo.EnsureSettings(ctx, &defaults); err != nil {
		t.Fatalf("EnsureSettings: %v", err)
	}

	got, err := repo.GetSettings(ctx, "demo.myshopify.com")
	if err != nil || got == nil {
		t.Fatalf("GetSettings = %v, %v", got, err)
	}
	if got.ThresholdCents != 0 || got.Position != domain.PositionBottom || got.Background != "#000000" {
		t.Errorf("settings = %+v", got)
	}
	if got.TopText == nil || *got.TopText != "" {
		t.Errorf("TopText = %v, want empty string", got.TopText)
	}
	if got.BottomText == nil || *got.BottomText != "Add {remaining} more" {
		t.Errorf("BottomText = %v", got.BottomText)
	}
}

func TestSQLiteSettingsNullTexts(t *testing.T) {
	ctx := context.Background()
	repo := newTestSQLite(t)
	installShop(t, repo, "demo.myshopify.com")

	defaults := domain.DefaultSettings("demo.myshopify.com")
	if err := repo.EnsureSettings(ctx, &defaults); err != nil {
		t.Fatal(err)
	}
	got, _ := repo.GetSettings(ctx, "demo.myshopify.com")
	if got.TopText != nil || got.BottomText != nil {
		t.Errorf("expected NULL texts, got %v / %v", got.TopText, got.BottomText)
	}
}

func TestSQLiteConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	repo := newTestSQLite(t)
	installShop(t, repo, "demo.myshopify.com")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(cents int64) {
			defer wg.Done()
			s := domain.DefaultSettings("demo.myshopify.com")
			s.ThresholdCents = cents
			if err := repo.SaveSettings(ctx, &s); err != nil {
				t.Errorf("SaveSettings: %v", err)
			}
		}(int64(i * 100))
	}
	wg.Wait()

	got, err := repo.GetSettings(ctx, "demo.myshopify.com")
	if err != nil || got == nil {
		t.Fatalf("GetSettings = %v, %v", got, err)
	}
	if got.ThresholdCents%100 != 0 || got.ThresholdCents > 700 {
		t.Errorf("unexpected threshold %d", got.ThresholdCents)
	}
}
