package application

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"strings"
	"sync"

	"free-shipping-bar/internal/domain"
	"free-shipping-bar/internal/ports"
)

var errStore = errors.New("store unavailable")

// memRepository is an in-memory ports.Repository.
type memRepository struct {
	mu       sync.Mutex
	shops    map[string]domain.Shop
	settings map[string]domain.Settings
	fail     bool
}

func newMemRepository() *memRepository {
	return &memRepository{
		shops:    map[string]domain.Shop{},
		settings: map[string]domain.Settings{},
	}
}

func (r *memRepository) SaveShop(_ context.Context, shop *domain.Shop) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errStore
	}
	if prev, ok := r.shops[shop.Domain]; ok {
		shop.InstalledAt = prev.InstalledAt
	}
	r.shops[shop.Domain] = *shop
	return nil
}

func (r *memRepository) GetShop(_ context.Context, d string) (*domain.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return nil, errStore
	}
	shop, ok := r.shops[d]
	if !ok {
		return nil, nil
	}
	return &shop, nil
}

func (r *memRepository) MarkUninstalled(_ context.Context, d string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return false, errStore
	}
	shop, ok := r.shops[d]
	if !ok {
		return false, nil
	}
	shop.Uninstalled = true
	r.shops[d] = shop
	return true, nil
}

func (r *memRepository) GetSettings(_ context.Context, shop string) (*domain.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return nil, errStore
	}
	s, ok := r.settings[shop]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *memRepository) SaveSettings(_ context.Context, s *domain.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errStore
	}
	r.settings[s.Shop] = *s
	return nil
}

func (r *memRepository) EnsureSettings(_ context.Context, s *domain.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errStore
	}
	if _, ok := r.settings[s.Shop]; !ok {
		r.settings[s.Shop] = *s
	}
	return nil
}

func (r *memRepository) Ping(context.Context) error          { return nil }
func (r *memRepository) Migrate(context.Context, fs.FS) error { return nil }
func (r *memRepository) Close(context.Context) error          { return nil }

func (r *memRepository) setFail(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = v
}

// fakeShopify is a scripted ports.ShopifyClient.
type fakeShopify struct {
	mu sync.Mutex

	token         string
	exchangeErr   error
	scriptTagErr  error
	webhookErr    error
	callbackValid bool

	scriptTags []ports.ScriptTag
	webhooks   []ports.Webhook
	exchanges  int
	created    int
}

func newFakeShopify() *fakeShopify {
	return &fakeShopify{token: "shpat_test", callbackValid: true}
}

func (f *fakeShopify) AuthorizeURL(shop, state string) (string, error) {
	return "https://" + shop + "/admin/oauth/authorize?state=" + url.QueryEscape(state), nil
}

func (f *fakeShopify) VerifyCallback(url.Values) bool { return f.callbackValid }

func (f *fakeShopify) ExchangeToken(_ context.Context, shop, code string) (*ports.AccessToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges++
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &ports.AccessToken{Token: f.token, Scope: "write_script_tags"}, nil
}

func (f *fakeShopify) ListScriptTags(context.Context, string, string) ([]ports.ScriptTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scriptTagErr != nil {
		return nil, f.scriptTagErr
	}
	return append([]ports.ScriptTag(nil), f.scriptTags...), nil
}

func (f *fakeShopify) CreateScriptTag(_ context.Context, _, _, src string) (*ports.ScriptTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scriptTagErr != nil {
		return nil, f.scriptTagErr
	}
	f.created++
	tag := ports.ScriptTag{ID: uint64(len(f.scriptTags) + 1), Src: src, Event: "onload"}
	f.scriptTags = append(f.scriptTags, tag)
	return &tag, nil
}

func (f *fakeShopify) ListWebhooks(context.Context, string, string) ([]ports.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.webhookErr != nil {
		return nil, f.webhookErr
	}
	return append([]ports.Webhook(nil), f.webhooks...), nil
}

func (f *fakeShopify) CreateWebhook(_ context.Context, _, _, topic, address string) (*ports.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.webhookErr != nil {
		return nil, f.webhookErr
	}
	hook := ports.Webhook{ID: uint64(len(f.webhooks) + 1), Topic: topic, Address: address}
	f.webhooks = append(f.webhooks, hook)
	return &hook, nil
}

func (f *fakeShopify) webhookCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.webhooks)
}

// prefixCipher marks tokens as encrypted with a visible prefix.
type prefixCipher struct{}

func (prefixCipher) EncryptToken(token string) (string, error) {
	return "sealed:" + token, nil
}

func (prefixCipher) DecryptToken(stored string) (string, error) {
	if !strings.HasPrefix(stored, "sealed:") {
		return "", errors.New("not sealed")
	}
	return strings.TrimPrefix(stored, "sealed:"), nil
}
