package webhook_handlers

import (
	"context"
	"encoding/json"

	"free-shipping-bar/internal/domain"
	"free-shipping-bar/internal/ports"

	"github.com/rs/zerolog"
)

// AppUninstalledHandler flags shops as uninstalled. Shop and settings rows
// are kept so a reinstall picks up the previous configuration.
type AppUninstalledHandler struct {
	logger     zerolog.Logger
	repository ports.ShopRepository
}

// NewAppUninstalledHandler creates a new app uninstalled webhook handler
func NewAppUninstalledHandler(logger zerolog.Logger, repository ports.ShopRepository) *AppUninstalledHandler {
	return &AppUninstalledHandler{
		logger:     logger,
		repository: repository,
	}
}

// CanHandle returns true if this handler can process the given topic
func (h *AppUninstalledHandler) CanHandle(topic string) bool {
	return topic == domain.TopicAppUninstalled
}

// Handle processes an app uninstalled webhook event
func (h *AppUninstalledHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	shop, err := domain.NormalizeShopDomain(event.Shop)
	if err != nil {
		shop, err = domain.NormalizeShopDomain(shopFromPayload(event.Payload))
	}
	if err != nil {
		h.logger.Warn().Str("webhook_id", event.ID).Str("shop", event.Shop).Msg("App uninstalled webhook without a usable shop domain")
		return nil
	}

	found, err := h.repository.MarkUninstalled(ctx, shop)
	if err != nil {
		return err
	}
	if !found {
		h.logger.Info().Str("shop", shop).Msg("App uninstalled webhook for unknown shop")
		return nil
	}

	h.logger.Info().Str("shop", shop).Str("webhook_id", event.ID).Msg("App uninstalled")
	return nil
}

func shopFromPayload(payload []byte) string {
	var shopData struct {
		MyshopifyDomain string `json:"myshopify_domain"`
		Domain          string `json:"domain"`
	}
	if err := json.Unmarshal(payload, &shopData); err != nil {
		return ""
	}
	if shopData.MyshopifyDomain != "" {
		return shopData.MyshopifyDomain
	}
	return shopData.Domain
}
