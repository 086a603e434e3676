// Package config resolves the service configuration once at startup from an
// ordered list of sources into an immutable Config value.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"free-shipping-bar/internal/domain"

	"github.com/joho/godotenv"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// OAuth state store kinds.
const (
	StateStoreMemory = "memory"
	StateStoreRedis  = "redis"
)

// Config is the resolved service configuration. It is passed by value.
type Config struct {
	ClientID     string
	ClientSecret string
	AppURL       string
	APIVersion   string
	Scopes       []string

	Port     string
	LogLevel string

	Database   DatabaseConfig
	StateStore StateStoreConfig

	TokenEncryptionKey string
	HTTPTimeout        time.Duration

	Widget WidgetDefaults

	CORSAllowedOrigins []string
	MetricsNamespace   string
}

// DatabaseConfig selects the Shop/Settings store.
type DatabaseConfig struct {
	Driver        string
	URL           string
	MongoDatabase string
}

// StateStoreConfig selects where OAuth state nonces live.
type StateStoreConfig struct {
	Kind     string
	RedisURL string
	TTL      time.Duration
}

// WidgetDefaults are the storefront values used when a shop has no stored settings.
type WidgetDefaults struct {
	ThresholdCents int64
	BannerText     string
	TopText        string
	BottomText     string
	Background     string
	Foreground     string
	Position       domain.Position
	PollInterval   time.Duration
}

// Settings converts the widget defaults into a settings value for shop.
func (w WidgetDefaults) Settings(shop string) domain.Settings {
	s := domain.DefaultSettings(shop)
	s.ThresholdCents = w.ThresholdCents
	s.Position = w.Position
	if w.BannerText != "" {
		s.BannerText = w.BannerText
	}
	if w.TopText != "" {
		s.TopText = domain.StringPtr(w.TopText)
	}
	if w.BottomText != "" {
		s.BottomText = domain.StringPtr(w.BottomText)
	}
	if w.Background != "" {
		s.Background = w.Background
	}
	if w.Foreground != "" {
		s.Foreground = w.Foreground
	}
	return s
}

// RedirectURI is the OAuth callback registered with Shopify.
func (c Config) RedirectURI() string {
	return c.AppURL + "/callback"
}

// WebhookAddress is where Shopify delivers app/uninstalled.
func (c Config) WebhookAddress() string {
	return c.AppURL + "/webhooks/app_uninstalled"
}

// WidgetURL is the script tag source registered for shop.
func (c Config) WidgetURL(shop string) string {
	return c.AppURL + "/widget.js?shop=" + url.QueryEscape(shop)
}

// Setting names, each listing the accepted keys in priority order.
var (
	keyClientID       = []string{"SHOPIFY_API_KEY", "SHOPIFY_CLIENT_ID", "CLIENT_ID"}
	keyClientSecret   = []string{"SHOPIFY_API_SECRET", "SHOPIFY_CLIENT_SECRET", "CLIENT_SECRET"}
	keyAppURL         = []string{"APP_URL", "SHOPIFY_APP_URL", "HOST"}
	keyAPIVersion     = []string{"SHOPIFY_API_VERSION"}
	keyScopes         = []string{"SHOPIFY_SCOPES", "SCOPES"}
	keyPort           = []string{"PORT"}
	keyLogLevel       = []string{"LOG_LEVEL"}
	keyDBDriver       = []string{"DATABASE_DRIVER"}
	keyDBURL          = []string{"DATABASE_URL"}
	keyMongoDatabase  = []string{"MONGODB_DATABASE"}
	keyStateStore     = []string{"STATE_STORE"}
	keyRedisURL       = []string{"REDIS_URL"}
	keyStateTTL       = []string{"OAUTH_STATE_TTL"}
	keyTokenKey       = []string{"TOKEN_ENCRYPTION_KEY"}
	keyHTTPTimeout    = []string{"SHOPIFY_HTTP_TIMEOUT"}
	keyThreshold      = []string{"FSB_THRESHOLD_CENTS"}
	keyBannerText     = []string{"FSB_BANNER_TEXT"}
	keyTopText        = []string{"FSB_TOP_TEXT"}
	keyBottomText     = []string{"FSB_BOTTOM_TEXT"}
	keyBackground     = []string{"FSB_BG"}
	keyForeground     = []string{"FSB_FG"}
	keyPosition       = []string{"FSB_POSITION"}
	keyPollMS         = []string{"FSB_POLL_MS"}
	keyCORSOrigins    = []string{"CORS_ALLOWED_ORIGINS"}
	keyMetricsNS      = []string{"METRICS_NAMESPACE"}
	defaultScopes     = "write_script_tags,read_script_tags"
	defaultCORSOrigin = "https://*.myshopify.com,https://admin.shopify.com"
)

// FromEnvironment loads .env if present, then resolves the configuration from
// the process environment followed by the optional CONFIG_FILE.
func FromEnvironment() (Config, error) {
	_ = godotenv.Load()

	sources := []Source{EnvSource()}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		file, err := FileSource(path)
		if err != nil {
			return Config{}, err
		}
		sources = append(sources, file)
	}
	return Load(sources...)
}

// Load resolves every setting from the first source, in order, that has a
// non-empty value for any of the setting's names.
func Load(sources ...Source) (Config, error) {
	r := resolver{sources: sources}

	cfg := Config{
		ClientID:           r.required(keyClientID),
		ClientSecret:       r.required(keyClientSecret),
		AppURL:             strings.TrimRight(r.required(keyAppURL), "/"),
		APIVersion:         r.get(keyAPIVersion, "2025-07"),
		Scopes:             splitList(r.get(keyScopes, defaultScopes)),
		Port:               r.get(keyPort, "8080"),
		LogLevel:           strings.ToLower(r.get(keyLogLevel, "info")),
		TokenEncryptionKey: r.get(keyTokenKey, ""),
		HTTPTimeout:        r.duration(keyHTTPTimeout, 30*time.Second),
		CORSAllowedOrigins: splitList(r.get(keyCORSOrigins, defaultCORSOrigin)),
		MetricsNamespace:   r.get(keyMetricsNS, "freeship"),
		Database: DatabaseConfig{
			Driver:        strings.ToLower(r.get(keyDBDriver, DriverSQLite)),
			URL:           r.get(keyDBURL, "./app.db"),
			MongoDatabase: r.get(keyMongoDatabase, "freeship"),
		},
		StateStore: StateStoreConfig{
			Kind:     strings.ToLower(r.get(keyStateStore, StateStoreMemory)),
			RedisURL: r.get(keyRedisURL, ""),
			TTL:      r.duration(keyStateTTL, 10*time.Minute),
		},
		Widget: WidgetDefaults{
			ThresholdCents: r.int64(keyThreshold, domain.DefaultThresholdCents),
			BannerText:     r.get(keyBannerText, domain.DefaultBannerText),
			TopText:        r.get(keyTopText, ""),
			BottomText:     r.get(keyBottomText, ""),
			Background:     r.get(keyBackground, domain.DefaultBackground),
			Foreground:     r.get(keyForeground, domain.DefaultForeground),
			Position:       domain.ParsePosition(r.get(keyPosition, string(domain.PositionTop))),
			PollInterval:   time.Duration(r.int64(keyPollMS, 2500)) * time.Millisecond,
		},
	}

	if err := cfg.validate(); err != nil {
		r.errs = append(r.errs, err)
	}
	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.AppURL != "" {
		u, err := url.Parse(c.AppURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("APP_URL must be an absolute URL, got %q", c.AppURL))
		}
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres, DriverMongo:
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be one of sqlite, postgres, mongo, got %q", c.Database.Driver))
	}
	switch c.StateStore.Kind {
	case StateStoreMemory:
	case StateStoreRedis:
		if c.StateStore.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when STATE_STORE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("STATE_STORE must be memory or redis, got %q", c.StateStore.Kind))
	}
	if c.Widget.ThresholdCents < 0 {
		errs = append(errs, errors.New("FSB_THRESHOLD_CENTS must not be negative"))
	}
	if c.Widget.PollInterval <= 0 {
		errs = append(errs, errors.New("FSB_POLL_MS must be positive"))
	}
	return errors.Join(errs...)
}

type resolver struct {
	sources []Source
	errs    []error
}

func (r *resolver) lookup(keys []string) (string, bool) {
	for _, src := range r.sources {
		for _, k := range keys {
			if v, ok := src.Lookup(k); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
	}
	return "", false
}

func (r *resolver) get(keys []string, def string) string {
	if v, ok := r.lookup(keys); ok {
		return v
	}
	return def
}

func (r *resolver) required(keys []string) string {
	v, ok := r.lookup(keys)
	if !ok {
		r.errs = append(r.errs, fmt.Errorf("missing required setting (one of %s)", strings.Join(keys, ", ")))
	}
	return v
}

func (r *resolver) duration(keys []string, def time.Duration) time.Duration {
	v, ok := r.lookup(keys)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", keys[0], v))
		return def
	}
	return d
}

func (r *resolver) int64(keys []string, def int64) int64 {
	v, ok := r.lookup(keys)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid integer %q", keys[0], v))
		return def
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
