package ports

import (
	"context"
	"net/url"
)

// AccessToken is the result of an OAuth code exchange.
type AccessToken struct {
	Token string
	Scope string
}

// ScriptTag is a storefront script registration.
type ScriptTag struct {
	ID    uint64
	Src   string
	Event string
}

// Webhook is a webhook subscription.
type Webhook struct {
	ID      uint64
	Topic   string
	Address string
}

// ShopifyClient defines the Shopify API operations used by the install flow
type ShopifyClient interface {
	// Authentication
	AuthorizeURL(shop string, state string) (string, error)
	ExchangeToken(ctx context.Context, shop string, code string) (*AccessToken, error)
	// VerifyCallback checks the hmac parameter Shopify signs redirect queries with.
	VerifyCallback(query url.Values) bool

	// Script Tag API
	ListScriptTags(ctx context.Context, shop string, accessToken string) ([]ScriptTag, error)
	CreateScriptTag(ctx context.Context, shop string, accessToken string, src string) (*ScriptTag, error)

	// Webhook API
	ListWebhooks(ctx context.Context, shop string, accessToken string) ([]Webhook, error)
	CreateWebhook(ctx context.Context, shop string, accessToken string, topic string, address string) (*Webhook, error)
}
