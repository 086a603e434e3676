package domain

import "time"

// Webhook topics this app subscribes to.
const (
	TopicAppUninstalled = "app/uninstalled"
)

// WebhookEvent represents a verified Shopify webhook delivery
type WebhookEvent struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	Shop       string    `json:"shop"`
	Payload    []byte    `json:"payload"`
	Verified   bool      `json:"verified"`
	ReceivedAt time.Time `json:"received_at"`
}
