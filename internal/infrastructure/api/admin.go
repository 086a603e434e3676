package api

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"html/template"
	"net/http"
	"strings"

	"free-shipping-bar/internal/domain"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

//go:embed admin.html.tmpl
var adminSource string

var adminTemplate = template.Must(template.New("admin").Parse(adminSource))

type adminPage struct {
	APIKey     string
	Host       string
	Threshold  string
	BannerText string
	Background string
	Foreground string
}

// shopFromHost decodes the host parameter Shopify passes to embedded apps,
// base64url("{shop}/admin"), and returns the shop when it is valid.
func shopFromHost(host string) string {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(host), "="))
	if err != nil {
		return ""
	}
	candidate, _, _ := strings.Cut(string(raw), "/")
	shop, err := domain.NormalizeShopDomain(candidate)
	if err != nil {
		return ""
	}
	return shop
}

// hostForShop builds the host parameter App Bridge expects when the page is
// opened outside the admin with ?shop=.
func hostForShop(shop string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(shop + "/admin"))
}

// adminHandler serves the embedded settings page. The page loads and saves
// settings through the session-authenticated API.
func adminHandler(apiKey string, defaults func(shop string) domain.Settings, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		host := strings.TrimSpace(q.Get("host"))

		shop := shopFromHost(host)
		if shop == "" {
			if s, err := domain.NormalizeShopDomain(q.Get("shop")); err == nil {
				shop = s
			}
		}
		if host == "" && shop != "" {
			host = hostForShop(shop)
		}

		d := defaults(shop)
		page := adminPage{
			APIKey:     apiKey,
			Host:       host,
			Threshold:  decimal.New(d.ThresholdCents, -2).StringFixed(2),
			BannerText: d.BannerText,
			Background: d.Background,
			Foreground: d.Foreground,
		}

		var buf bytes.Buffer
		if err := adminTemplate.Execute(&buf, page); err != nil {
			logger.Error().Err(err).Msg("Failed to render admin page")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if shop != "" {
			w.Header().Set("Content-Security-Policy", "frame-ancestors https://"+shop+" https://admin.shopify.com")
		} else {
			w.Header().Set("Content-Security-Policy", "frame-ancestors https://admin.shopify.com")
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}
