package api

import (
	"net/http"
	"net/url"
	"time"

	"free-shipping-bar/internal/application"
	"free-shipping-bar/internal/domain"
	"free-shipping-bar/internal/infrastructure/middleware"
	"free-shipping-bar/internal/metrics"
	"free-shipping-bar/internal/widget"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterConfig carries the collaborators of the HTTP surface.
type RouterConfig struct {
	ClientID       string
	Installs       *application.InstallService
	Settings       *application.SettingsService
	Webhooks       *application.WebhookDispatcher
	Sessions       SessionVerifier
	WebhookAuth    WebhookVerifier
	Defaults       func(shop string) domain.Settings
	Widget         widget.Options
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
	Logger         zerolog.Logger
}

// NewRouter builds the chi router serving every HTTP route of the app.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if cfg.Defaults == nil {
		cfg.Defaults = domain.DefaultSettings
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.SecurityHeadersMiddleware())

	r.Get("/", rootHandler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// OAuth routes
	r.Get("/install", installHandler(cfg.Installs, logger))
	r.Get("/callback", callbackHandler(cfg.Installs, logger))

	// Storefront and embedded admin
	r.Get("/widget.js", widgetHandler(cfg.Settings, cfg.Widget, cfg.Metrics, logger))
	r.Get("/admin", adminHandler(cfg.ClientID, cfg.Defaults, logger))

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
		r.Use(requireSession(cfg.Sessions, cfg.Settings, cfg.Metrics, logger))
		r.Get("/settings", getSettingsHandler(cfg.Settings, logger))
		r.Post("/settings", saveSettingsHandler(cfg.Settings, logger))
	})

	r.Post("/webhooks/app_uninstalled", appUninstalledHandler(cfg.WebhookAuth, cfg.Webhooks, cfg.Metrics, logger))

	return r
}

// rootHandler forwards embedded loads to the admin page.
func rootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if host := r.URL.Query().Get("host"); host != "" {
			http.Redirect(w, r, "/admin?host="+url.QueryEscape(host), http.StatusFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "Free Shipping Bar app"})
	}
}
