package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"free-shipping-bar/internal/application"
	"free-shipping-bar/internal/domain"
	"free-shipping-bar/internal/metrics"

	"github.com/rs/zerolog"
)

const maxSettingsBody = 64 << 10

// SessionVerifier resolves the shop an Authorization header was issued for.
type SessionVerifier interface {
	VerifyAuthorization(header string) (string, error)
}

type shopContextKey struct{}

// shopFromContext returns the shop authenticated by requireSession.
func shopFromContext(ctx context.Context) string {
	shop, _ := ctx.Value(shopContextKey{}).(string)
	return shop
}

// requireSession authenticates the App Bridge session token and requires the
// shop to be installed. The authenticated shop is the only shop the request
// can read or write.
func requireSession(verifier SessionVerifier, settings *application.SettingsService, m *metrics.Metrics, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			shop, err := verifier.VerifyAuthorization(r.Header.Get("Authorization"))
			if err == nil {
				err = settings.RequireInstalled(r.Context(), shop)
			}
			m.SessionVerifications.WithLabelValues(metrics.Outcome(err)).Inc()
			if err != nil {
				logger.Debug().Err(err).Str("path", r.URL.Path).Msg("Session rejected")
				writeError(w, logger, err)
				return
			}

			ctx := context.WithValue(r.Context(), shopContextKey{}, shop)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// settingsResponse is the JSON shape of GET /api/settings.
type settingsResponse struct {
	Shop           string  `json:"shop"`
	ThresholdCents int64   `json:"threshold_cents"`
	BannerText     string  `json:"banner_text"`
	BG             string  `json:"bg"`
	FG             string  `json:"fg"`
	Position       string  `json:"position"`
	TopText        *string `json:"top_text"`
	BottomText     *string `json:"bottom_text"`
}

func getSettingsHandler(settings *application.SettingsService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop := shopFromContext(r.Context())
		s, err := settings.GetSettings(r.Context(), shop)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, settingsResponse{
			Shop:           shop,
			ThresholdCents: s.ThresholdCents,
			BannerText:     s.BannerText,
			BG:             s.Background,
			FG:             s.Foreground,
			Position:       string(s.Position),
			TopText:        s.TopText,
			BottomText:     s.BottomText,
		})
	}
}

func saveSettingsHandler(settings *application.SettingsService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload application.SettingsPayload
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody)).Decode(&payload); err != nil {
			writeError(w, logger, fmt.Errorf("%w: invalid JSON body: %v", domain.ErrValidation, err))
			return
		}

		if _, err := settings.SaveSettings(r.Context(), shopFromContext(r.Context()), payload); err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}
