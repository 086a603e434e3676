package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"free-shipping-bar/internal/application"
	"free-shipping-bar/internal/application/webhook_handlers"
	"free-shipping-bar/internal/domain"
	"free-shipping-bar/internal/infrastructure/repository"
	"free-shipping-bar/internal/infrastructure/shopify"
	"free-shipping-bar/internal/infrastructure/statestore"
	"free-shipping-bar/internal/metrics"
	"free-shipping-bar/internal/ports"
	"free-shipping-bar/migrations"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	clientID     = "test-client-id"
	clientSecret = "test-client-secret"
	appURL       = "https://bar.example.com"
	shopDomain   = "demo.myshopify.com"
)

// stubShopify answers every Admin API call successfully.
type stubShopify struct {
	mu         sync.Mutex
	scriptTags []ports.ScriptTag
	webhooks   []ports.Webhook
}

func (s *stubShopify) AuthorizeURL(shop, state string) (string, error) {
	return fmt.Sprintf("https://%s/admin/oauth/authorize?client_id=%s&state=%s", shop, clientID, url.QueryEscape(state)), nil
}

func (s *stubShopify) VerifyCallback(url.Values) bool { return true }

func (s *stubShopify) ExchangeToken(context.Context, string, string) (*ports.AccessToken, error) {
	return &ports.AccessToken{Token: "shpat_test", Scope: "write_script_tags"}, nil
}

func (s *stubShopify) ListScriptTags(context.Context, string, string) ([]ports.ScriptTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.ScriptTag(nil), s.scriptTags...), nil
}

func (s *stubShopify) CreateScriptTag(_ context.Context, _, _, src string) (*ports.ScriptTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag := ports.ScriptTag{ID: uint64(len(s.scriptTags) + 1), Src: src, Event: "onload"}
	s.scriptTags = append(s.scriptTags, tag)
	return &tag, nil
}

func (s *stubShopify) ListWebhooks(context.Context, string, string) ([]ports.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.Webhook(nil), s.webhooks...), nil
}

func (s *stubShopify) CreateWebhook(_ context.Context, _, _, topic, address string) (*ports.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hook := ports.Webhook{ID: uint64(len(s.webhooks) + 1), Topic: topic, Address: address}
	s.webhooks = append(s.webhooks, hook)
	return &hook, nil
}

type testServer struct {
	handler  http.Handler
	repo     *repository.SQLiteRepository
	installs *application.InstallService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	repo, err := repository.NewSQLiteRepository(ctx, filepath.Join(t.TempDir(), "app.db"), logger)
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

	tokens, err := shopify.NewTokenManager("", logger)
	if err != nil {
		t.Fatal(err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New("test", reg)

	installs := application.NewInstallService(repo, statestore.NewMemoryStore(time.Minute), &stubShopify{}, tokens, m, logger, application.InstallConfig{
		WidgetSrc:      func(shop string) string { return appURL + "/widget.js?shop=" + url.QueryEscape(shop) },
		WebhookAddress: appURL + "/webhooks/app_uninstalled",
	})
	t.Cleanup(installs.Wait)
	settings := application.NewSettingsService(repo, domain.DefaultSettings, m, logger)
	dispatcher := application.NewWebhookDispatcher(m, logger, webhook_handlers.NewAppUninstalledHandler(logger, repo))

	handler := NewRouter(RouterConfig{
		ClientID:       clientID,
		Installs:       installs,
		Settings:       settings,
		Webhooks:       dispatcher,
		Sessions:       shopify.NewSessionVerifier(clientID, clientSecret),
		WebhookAuth:    shopify.NewWebhookVerifier(clientSecret),
		AllowedOrigins: []string{"https://admin.shopify.com"},
		Metrics:        m,
		Gatherer:       reg,
		Logger:         logger,
	})
	return &testServer{handler: handler, repo: repo, installs: installs}
}

func (s *testServer) do(t *testing.T, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) install(t *testing.T, shop string) {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/install?shop="+shop, "", nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("install status = %d: %s", rec.Code, rec.Body)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	q := url.Values{"shop": {shop}, "code": {"abc"}, "state": {loc.Query().Get("state")}}
	rec = s.do(t, http.MethodGet, "/callback?"+q.Encode(), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("callback status = %d: %s", rec.Code, rec.Body)
	}
	s.installs.Wait()
}

func sessionToken(t *testing.T, shop string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":  "https://" + shop + "/admin",
		"dest": "https://" + shop,
		"aud":  clientID,
		"sub":  "1",
		"exp":  exp.Unix(),
		"nbf":  time.Now().Add(-time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(clientSecret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func signWebhook(body string) string {
	mac := hmac.New(sha256.New, []byte(clientSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func bearer(t *testing.T, shop string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + sessionToken(t, shop, time.Now().Add(time.Minute))}
}

func TestHealthAndRoot(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Errorf("health = %d %s", rec.Code, rec.Body)
	}

	rec = s.do(t, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Free Shipping Bar app") {
		t.Errorf("root = %d %s", rec.Code, rec.Body)
	}

	rec = s.do(t, http.MethodGet, "/?host=abc", "", nil)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/admin?host=abc" {
		t.Errorf("root with host = %d %s", rec.Code, rec.Header().Get("Location"))
	}
}

func TestInstallRejectsInvalidShop(t *testing.T) {
	s := newTestServer(t)
	for _, shop := range []string{"", "example.com", "a.myshopify.com.evil.io"} {
		rec := s.do(t, http.MethodGet, "/install?shop="+url.QueryEscape(shop), "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("install(%q) = %d", shop, rec.Code)
		}
	}
}

func TestInstallFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/install?shop="+shopDomain, "", nil)
	loc, _ := url.Parse(rec.Header().Get("Location"))
	state := loc.Query().Get("state")
	if loc.Host != shopDomain || state == "" {
		t.Fatalf("redirect = %s", loc)
	}

	q := url.Values{"shop": {shopDomain}, "code": {"abc"}, "state": {state}}
	rec = s.do(t, http.MethodGet, "/callback?"+q.Encode(), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("callback = %d %s", rec.Code, rec.Body)
	}
	want := "ScriptTag installed. src=" + appURL + "/widget.js?shop=demo.myshopify.com"
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}

	rec = s.do(t, http.MethodGet, "/callback?"+q.Encode(), "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("replayed callback = %d", rec.Code)
	}

	shop, err := s.repo.GetShop(context.Background(), shopDomain)
	if err != nil || !shop.Active() {
		t.Errorf("shop after install = %+v, %v", shop, err)
	}
}

func TestCallbackRejectsMissingParams(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/callback?shop="+shopDomain, "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("callback without code = %d", rec.Code)
	}
}

func TestWidgetWithoutShop(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/widget.js", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/javascript; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "var THRESHOLD_CENTS = 5000;") {
		t.Errorf("widget does not embed the default threshold")
	}
}

func TestSettingsRequireSession(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"no header", nil, http.StatusUnauthorized},
		{"garbage", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"expired", map[string]string{"Authorization": "Bearer " + sessionToken(t, shopDomain, time.Now().Add(-time.Hour))}, http.StatusUnauthorized},
		{"not installed", bearer(t, shopDomain), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := s.do(t, http.MethodGet, "/api/settings", "", tt.headers); rec.Code != tt.want {
				t.Errorf("GET = %d, want %d", rec.Code, tt.want)
			}
			if rec := s.do(t, http.MethodPost, "/api/settings", `{"threshold": 1}`, tt.headers); rec.Code != tt.want {
				t.Errorf("POST = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestServer(t)
	s.install(t, shopDomain)
	auth := bearer(t, shopDomain)

	rec := s.do(t, http.MethodGet, "/api/settings", "", auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET = %d %s", rec.Code, rec.Body)
	}
	var got settingsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Shop != shopDomain || got.ThresholdCents != 5000 || got.Position != "top" || got.TopText != nil {
		t.Errorf("defaults = %+v", got)
	}

	body := `{"threshold": 49.999, "position": "bottom", "text_top": "", "text_bottom": "Add ${remaining} more", "bg": "#000000", "fg": ""}`
	rec = s.do(t, http.MethodPost, "/api/settings", body, auth)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Fatalf("POST = %d %s", rec.Code, rec.Body)
	}

	rec = s.do(t, http.MethodGet, "/api/settings", "", auth)
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.ThresholdCents != 5000 || got.Position != "bottom" || got.BG != "#000000" || got.FG != domain.DefaultForeground {
		t.Errorf("saved = %+v", got)
	}
	if got.BottomText == nil || *got.BottomText != "Add ${remaining} more" {
		t.Errorf("bottom text = %v", got.BottomText)
	}

	first := s.do(t, http.MethodGet, "/widget.js?shop="+shopDomain, "", nil).Body.String()
	if !strings.Contains(first, `var BANNER_TEXT = "Add {remaining} more";`) || !strings.Contains(first, `var POSITION = "bottom";`) {
		t.Errorf("widget does not reflect saved settings:\n%s", first)
	}

	// Saving the same payload again changes nothing observable.
	s.do(t, http.MethodPost, "/api/settings", body, auth)
	if again := s.do(t, http.MethodGet, "/widget.js?shop="+shopDomain, "", nil).Body.String(); again != first {
		t.Errorf("widget changed after identical save")
	}
}

func TestSettingsRejectsBadPayload(t *testing.T) {
	s := newTestServer(t)
	s.install(t, shopDomain)
	auth := bearer(t, shopDomain)

	for _, body := range []string{`{"threshold": -1}`, `{"threshold": "lots"}`, `not json`} {
		if rec := s.do(t, http.MethodPost, "/api/settings", body, auth); rec.Code != http.StatusBadRequest {
			t.Errorf("POST %s = %d", body, rec.Code)
		}
	}
}

func TestSettingsAcceptAnyPositionType(t *testing.T) {
	s := newTestServer(t)
	s.install(t, shopDomain)
	auth := bearer(t, shopDomain)

	for _, position := range []string{`1`, `true`, `null`, `{"side": "bottom"}`, `"left"`} {
		body := `{"threshold": 20, "position": ` + position + `}`
		if rec := s.do(t, http.MethodPost, "/api/settings", body, auth); rec.Code != http.StatusOK {
			t.Fatalf("POST position %s = %d %s", position, rec.Code, rec.Body)
		}
		saved, _ := s.repo.GetSettings(context.Background(), shopDomain)
		if saved.Position != domain.PositionTop {
			t.Errorf("position %s saved as %q", position, saved.Position)
		}
	}
}

func TestSettingsAreScopedToTokenShop(t *testing.T) {
	s := newTestServer(t)
	s.install(t, shopDomain)
	s.install(t, "other.myshopify.com")

	other := bearer(t, "other.myshopify.com")
	s.do(t, http.MethodPost, "/api/settings", `{"threshold": 10}`, other)

	rec := s.do(t, http.MethodGet, "/api/settings?shop="+shopDomain, "", other)
	var got settingsResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Shop != "other.myshopify.com" || got.ThresholdCents != 1000 {
		t.Errorf("GET with another shop param = %+v", got)
	}

	mine, _ := s.repo.GetSettings(context.Background(), shopDomain)
	if mine.ThresholdCents != domain.DefaultThresholdCents {
		t.Errorf("other shop's save leaked: %d", mine.ThresholdCents)
	}
}

func TestAppUninstalledWebhook(t *testing.T) {
	s := newTestServer(t)
	s.install(t, shopDomain)

	payload := `{"id": 1, "myshopify_domain": "demo.myshopify.com"}`
	headers := map[string]string{
		"X-Shopify-Hmac-Sha256": signWebhook(payload),
		"X-Shopify-Shop-Domain": shopDomain,
		"X-Shopify-Topic":       domain.TopicAppUninstalled,
		"Content-Type":          "application/json",
	}

	bad := map[string]string{"X-Shopify-Hmac-Sha256": "AAAA", "X-Shopify-Shop-Domain": shopDomain}
	if rec := s.do(t, http.MethodPost, "/webhooks/app_uninstalled", payload, bad); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad hmac = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/webhooks/app_uninstalled", payload+" ", headers); rec.Code != http.StatusUnauthorized {
		t.Fatalf("mutated body = %d", rec.Code)
	}

	if rec := s.do(t, http.MethodPost, "/webhooks/app_uninstalled", payload, headers); rec.Code != http.StatusOK {
		t.Fatalf("webhook = %d %s", rec.Code, rec.Body)
	}
	shop, _ := s.repo.GetShop(context.Background(), shopDomain)
	if !shop.Uninstalled {
		t.Fatalf("shop not uninstalled")
	}
	if rec := s.do(t, http.MethodGet, "/api/settings", "", bearer(t, shopDomain)); rec.Code != http.StatusForbidden {
		t.Errorf("settings after uninstall = %d", rec.Code)
	}

	// Deliveries for unknown shops are acknowledged.
	ghost := `{"myshopify_domain": "ghost.myshopify.com"}`
	headers["X-Shopify-Hmac-Sha256"] = signWebhook(ghost)
	headers["X-Shopify-Shop-Domain"] = "ghost.myshopify.com"
	if rec := s.do(t, http.MethodPost, "/webhooks/app_uninstalled", ghost, headers); rec.Code != http.StatusOK {
		t.Errorf("unknown shop webhook = %d", rec.Code)
	}
}

func TestAppUninstalledWebhookTooLarge(t *testing.T) {
	s := newTestServer(t)
	s.install(t, shopDomain)

	payload := `{"myshopify_domain": "demo.myshopify.com", "note": "` + strings.Repeat("x", maxWebhookBody) + `"}`
	headers := map[string]string{
		"X-Shopify-Hmac-Sha256": signWebhook(payload),
		"X-Shopify-Shop-Domain": shopDomain,
	}
	if rec := s.do(t, http.MethodPost, "/webhooks/app_uninstalled", payload, headers); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized webhook = %d", rec.Code)
	}
	if shop, _ := s.repo.GetShop(context.Background(), shopDomain); shop.Uninstalled {
		t.Errorf("oversized delivery uninstalled the shop")
	}
}

func TestAdminPage(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/admin?shop="+shopDomain, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	wantCSP := "frame-ancestors https://demo.myshopify.com https://admin.shopify.com"
	if got := rec.Header().Get("Content-Security-Policy"); got != wantCSP {
		t.Errorf("CSP = %q", got)
	}
	host := base64.RawURLEncoding.EncodeToString([]byte(shopDomain + "/admin"))
	body := rec.Body.String()
	if !strings.Contains(body, `const defaultThreshold = "50.00";`) || strings.Contains(body, `|| '0'`) {
		t.Errorf("an empty threshold field does not fall back to the configured default")
	}
	if !strings.Contains(body, `"`+host+`"`) || !strings.Contains(body, `"`+clientID+`"`) {
		t.Errorf("page does not carry host and api key")
	}

	rec = s.do(t, http.MethodGet, "/admin?host="+host, "", nil)
	if got := rec.Header().Get("Content-Security-Policy"); got != wantCSP {
		t.Errorf("CSP from host = %q", got)
	}
}

func TestShopFromHost(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{base64.RawURLEncoding.EncodeToString([]byte("demo.myshopify.com/admin")), "demo.myshopify.com"},
		{base64.URLEncoding.EncodeToString([]byte("demo.myshopify.com/admin")), "demo.myshopify.com"},
		{base64.RawURLEncoding.EncodeToString([]byte("example.com/admin")), ""},
		{"%%%", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := shopFromHost(tt.host); got != tt.want {
			t.Errorf("shopFromHost(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/widget.js", "", nil)

	rec := s.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `test_widget_renders_total{source="default"} 1`) {
		t.Errorf("metrics = %d\n%s", rec.Code, rec.Body)
	}
}
