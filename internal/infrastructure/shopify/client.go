package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"free-shipping-bar/internal/domain"
	"free-shipping-bar/internal/metrics"
	"free-shipping-bar/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
)

// ClientConfig carries the app credentials and API settings.
type ClientConfig struct {
	APIKey      string
	APISecret   string
	RedirectURI string
	Scopes      []string
	APIVersion  string
	// HTTPClient is used for every outbound call. Defaults to a client with a 30s timeout.
	HTTPClient *http.Client
}

var _ ports.ShopifyClient = (*Client)(nil)

// Client adapts go-shopify to the calls the install flow needs.
type Client struct {
	app        goshopify.App
	apiVersion string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewClient creates a new Shopify client adapter
func NewClient(cfg ClientConfig, m *metrics.Metrics, logger zerolog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	// Shopify expects scopes comma-separated with no spaces
	scope := strings.Join(cfg.Scopes, ",")
	app := goshopify.App{
		ApiKey:      cfg.APIKey,
		ApiSecret:   cfg.APISecret,
		RedirectUrl: cfg.RedirectURI,
		Scope:       scope,
	}
	return &Client{
		app:        app,
		apiVersion: cfg.APIVersion,
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
	}
}

// createClient is a helper to create a goshopify client
func (c *Client) createClient(shopDomain string, accessToken string) (*goshopify.Client, error) {
	opts := []goshopify.Option{goshopify.WithHTTPClient(c.httpClient)}
	if c.apiVersion != "" {
		opts = append(opts, goshopify.WithVersion(c.apiVersion))
	}
	client, err := goshopify.NewClient(c.app, shopDomain, accessToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

// Authentication methods

// AuthorizeURL builds the consent screen URL for shop.
func (c *Client) AuthorizeURL(shop string, state string) (string, error) {
	authURL, err := c.app.AuthorizeUrl(shop, state)
	if err != nil {
		return "", fmt.Errorf("build authorize url: %w", err)
	}

	c.logger.Debug().
		Str("shop", shop).
		Str("scopes", c.app.Scope).
		Msg("Generated OAuth authorization URL")

	return authURL, nil
}

// VerifyCallback reports whether the hmac parameter matches the rest of the query.
func (c *Client) VerifyCallback(query url.Values) bool {
	q := url.Values{}
	for k, v := range query {
		if k == "signature" {
			continue
		}
		q[k] = v
	}
	ok, err := c.app.VerifyAuthorizationURL(&url.URL{RawQuery: q.Encode()})
	return err == nil && ok
}

// ExchangeToken trades the authorization code for an offline access token.
// go-shopify's GetAccessToken drops the granted scope and the response body on
// failure, so the request is made directly.
func (c *Client) ExchangeToken(ctx context.Context, shop string, code string) (token *ports.AccessToken, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveShopify("token_exchange", start, err) }()

	payload, err := json.Marshal(map[string]string{
		"client_id":     c.app.ApiKey,
		"client_secret": c.app.ApiSecret,
		"code":          code,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}

	tokenURL := fmt.Sprintf("https://%s/admin/oauth/access_token", shop)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %w", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read token response: %w", domain.ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: token exchange failed: status %d, body: %s", domain.ErrUpstream, resp.StatusCode, string(body))
	}

	var tokenResponse struct {
		AccessToken string `json:"access_token"`
		Scope       string `json:"scope"`
	}
	if err := json.Unmarshal(body, &tokenResponse); err != nil {
		return nil, fmt.Errorf("%w: decode token response: %w", domain.ErrUpstream, err)
	}
	if tokenResponse.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access_token in response: %s", domain.ErrUpstream, string(body))
	}

	return &ports.AccessToken{Token: tokenResponse.AccessToken, Scope: tokenResponse.Scope}, nil
}

// Script Tag API

func (c *Client) ListScriptTags(ctx context.Context, shopDomain string, accessToken string) (tags []ports.ScriptTag, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveShopify("script_tag_list", start, err) }()

	client, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return nil, err
	}
	list, err := client.ScriptTag.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: list script tags: %w", domain.ErrUpstream, err)
	}
	tags = make([]ports.ScriptTag, 0, len(list))
	for _, t := range list {
		tags = append(tags, ports.ScriptTag{ID: t.Id, Src: t.Src, Event: t.Event})
	}
	return tags, nil
}

func (c *Client) CreateScriptTag(ctx context.Context, shopDomain string, accessToken string, src string) (tag *ports.ScriptTag, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveShopify("script_tag_create", start, err) }()

	client, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return nil, err
	}
	created, err := client.ScriptTag.Create(ctx, goshopify.ScriptTag{
		Event: "onload",
		Src:   src,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create script tag: %w", domain.ErrUpstream, err)
	}
	return &ports.ScriptTag{ID: created.Id, Src: created.Src, Event: created.Event}, nil
}

// Webhook API

func (c *Client) ListWebhooks(ctx context.Context, shopDomain string, accessToken string) (hooks []ports.Webhook, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveShopify("webhook_list", start, err) }()

	client, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return nil, err
	}
	list, err := client.Webhook.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: list webhooks: %w", domain.ErrUpstream, err)
	}
	hooks = make([]ports.Webhook, 0, len(list))
	for _, w := range list {
		hooks = append(hooks, ports.Webhook{ID: w.Id, Topic: w.Topic, Address: w.Address})
	}
	return hooks, nil
}

func (c *Client) CreateWebhook(ctx context.Context, shopDomain string, accessToken string, topic string, address string) (hook *ports.Webhook, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveShopify("webhook_create", start, err) }()

	client, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return nil, err
	}
	created, err := client.Webhook.Create(ctx, goshopify.Webhook{
		Topic:   topic,
		Address: address,
		Format:  "json",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create webhook: %w", domain.ErrUpstream, err)
	}
	return &ports.Webhook{ID: created.Id, Topic: created.Topic, Address: created.Address}, nil
}
