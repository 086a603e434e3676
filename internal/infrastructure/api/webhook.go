package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"free-shipping-bar/internal/application"
	"free-shipping-bar/internal/domain"
	"free-shipping-bar/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxWebhookBody = 1 << 20

// WebhookVerifier checks the signature Shopify attaches to webhook deliveries.
// The request body must stay readable after verification.
type WebhookVerifier interface {
	VerifyRequest(r *http.Request) error
}

// appUninstalledHandler receives app/uninstalled deliveries. A failed store
// update answers 500 so Shopify retries the delivery.
func appUninstalledHandler(verifier WebhookVerifier, dispatcher *application.WebhookDispatcher, m *metrics.Metrics, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
		if err := verifier.VerifyRequest(r); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
				return
			}
			m.WebhooksReceived.WithLabelValues(domain.TopicAppUninstalled, "rejected").Inc()
			logger.Warn().Err(err).Str("shop", r.Header.Get("X-Shopify-Shop-Domain")).Msg("Webhook signature verification failed")
			http.Error(w, "Invalid HMAC", http.StatusUnauthorized)
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to read webhook payload")
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}

		eventID := r.Header.Get("X-Shopify-Webhook-Id")
		if eventID == "" {
			eventID = uuid.NewString()
		}
		event := &domain.WebhookEvent{
			ID:         eventID,
			Topic:      domain.TopicAppUninstalled,
			Shop:       strings.TrimSpace(r.Header.Get("X-Shopify-Shop-Domain")),
			Payload:    payload,
			Verified:   true,
			ReceivedAt: time.Now(),
		}

		if err := dispatcher.Dispatch(r.Context(), event); err != nil {
			logger.Error().Err(err).Str("webhook_id", event.ID).Str("shop", event.Shop).Msg("Failed to dispatch webhook event")
			http.Error(w, "Failed to process webhook event", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
