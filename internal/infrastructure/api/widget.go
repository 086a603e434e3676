package api

import (
	"net/http"

	"free-shipping-bar/internal/application"
	"free-shipping-bar/internal/metrics"
	"free-shipping-bar/internal/widget"

	"github.com/rs/zerolog"
)

// fallbackScript is served if even the default settings fail to render.
const fallbackScript = "/* free shipping bar unavailable */\n"

// widgetHandler serves the storefront script. It always answers 200 with a
// runnable script.
func widgetHandler(settings *application.SettingsService, opts widget.Options, m *metrics.Metrics, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, source := settings.WidgetSettings(r.Context(), r.URL.Query().Get("shop"))

		body, err := widget.Render(s, opts)
		if err != nil {
			logger.Error().Err(err).Str("shop", s.Shop).Msg("Failed to render widget")
			m.Errors.WithLabelValues("widget").Inc()
			source = "fallback"
			body = []byte(fallbackScript)
		}
		m.WidgetRenders.WithLabelValues(source).Inc()

		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}
