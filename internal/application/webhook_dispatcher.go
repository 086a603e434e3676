package application

import (
	"context"
	"fmt"

	"free-shipping-bar/internal/domain"
	"free-shipping-bar/internal/metrics"

	"github.com/rs/zerolog"
)

// WebhookHandler processes verified webhook deliveries for the topics it accepts.
type WebhookHandler interface {
	CanHandle(topic string) bool
	Handle(ctx context.Context, event *domain.WebhookEvent) error
}

// WebhookDispatcher routes verified webhook events to registered handlers.
type WebhookDispatcher struct {
	handlers []WebhookHandler
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewWebhookDispatcher creates a dispatcher over handlers.
func NewWebhookDispatcher(m *metrics.Metrics, logger zerolog.Logger, handlers ...WebhookHandler) *WebhookDispatcher {
	return &WebhookDispatcher{
		handlers: handlers,
		metrics:  m,
		logger:   logger,
	}
}

// Dispatch runs every handler that accepts the event topic. Events no
// handler accepts are logged and acknowledged.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, event *domain.WebhookEvent) error {
	if !event.Verified {
		d.metrics.WebhooksReceived.WithLabelValues(event.Topic, "rejected").Inc()
		return fmt.Errorf("%w: webhook %s is not verified", domain.ErrAuth, event.ID)
	}

	handled := false
	for _, h := range d.handlers {
		if !h.CanHandle(event.Topic) {
			continue
		}
		handled = true
		if err := h.Handle(ctx, event); err != nil {
			d.metrics.WebhooksReceived.WithLabelValues(event.Topic, "error").Inc()
			d.logger.Error().
				Err(err).
				Str("webhook_id", event.ID).
				Str("topic", event.Topic).
				Str("shop", event.Shop).
				Msg("Webhook handler failed")
			return fmt.Errorf("failed to handle webhook %s: %w", event.Topic, err)
		}
	}

	if !handled {
		d.metrics.WebhooksReceived.WithLabelValues(event.Topic, "ignored").Inc()
		d.logger.Warn().Str("topic", event.Topic).Str("shop", event.Shop).Msg("No handler for webhook topic")
		return nil
	}

	d.metrics.WebhooksReceived.WithLabelValues(event.Topic, "ok").Inc()
	return nil
}
