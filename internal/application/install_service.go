package application

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"free-shipping-bar/internal/domain"
	"free-shipping-bar/internal/metrics"
	"free-shipping-bar/internal/ports"

	"github.com/rs/zerolog"
)

// DefaultWebhookTimeout bounds the background webhook registration.
const DefaultWebhookTimeout = 20 * time.Second

// InstallConfig holds the URLs and defaults the install flow registers.
type InstallConfig struct {
	// WidgetSrc returns the script tag source for a shop.
	WidgetSrc func(shop string) string
	// WebhookAddress receives app/uninstalled deliveries.
	WebhookAddress string
	// Defaults returns the settings a freshly installed shop starts with.
	Defaults func(shop string) domain.Settings
	// WebhookTimeout bounds the detached webhook registration.
	WebhookTimeout time.Duration
}

// CallbackRequest is the query Shopify redirects back with after consent.
type CallbackRequest struct {
	Shop  string
	Code  string
	State string
	// Query is the full callback query, used to check the hmac parameter when present.
	Query url.Values
}

// InstallResult describes a completed install.
type InstallResult struct {
	Shop         string
	ScriptTagSrc string
}

// InstallService runs the OAuth install flow: consent redirect, token
// exchange, persistence and storefront registration.
type InstallService struct {
	repository ports.Repository
	states     ports.StateStore
	client     ports.ShopifyClient
	tokens     ports.TokenCipher
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	cfg        InstallConfig

	wg sync.WaitGroup
}

// NewInstallService creates a new install service
func NewInstallService(
	repository ports.Repository,
	states ports.StateStore,
	client ports.ShopifyClient,
	tokens ports.TokenCipher,
	m *metrics.Metrics,
	logger zerolog.Logger,
	cfg InstallConfig,
) *InstallService {
	if cfg.WebhookTimeout <= 0 {
		cfg.WebhookTimeout = DefaultWebhookTimeout
	}
	if cfg.Defaults == nil {
		cfg.Defaults = domain.DefaultSettings
	}
	return &InstallService{
		repository: repository,
		states:     states,
		client:     client,
		tokens:     tokens,
		metrics:    m,
		logger:     logger,
		cfg:        cfg,
	}
}

// BeginInstall validates shop, issues a state nonce and returns the URL of
// Shopify's consent screen.
func (s *InstallService) BeginInstall(ctx context.Context, shop string) (string, error) {
	shop, err := domain.NormalizeShopDomain(shop)
	if err != nil {
		return "", err
	}

	state, err := s.states.Issue(ctx, shop)
	if err != nil {
		return "", fmt.Errorf("failed to issue oauth state: %w", err)
	}

	authURL, err := s.client.AuthorizeURL(shop, state)
	if err != nil {
		return "", fmt.Errorf("failed to generate auth URL: %w", err)
	}

	s.logger.Info().Str("shop", shop).Msg("Redirecting to Shopify authorization")
	return authURL, nil
}

// CompleteInstall finishes the OAuth flow. Validation and authentication
// failures happen before anything is stored. A failed webhook registration
// never fails the install.
func (s *InstallService) CompleteInstall(ctx context.Context, req CallbackRequest) (result *InstallResult, err error) {
	defer func() {
		s.metrics.Installs.WithLabelValues(installOutcome(err)).Inc()
	}()

	shop, err := domain.NormalizeShopDomain(req.Shop)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.State) == "" {
		return nil, fmt.Errorf("%w: code and state are required", domain.ErrValidation)
	}
	if req.Query != nil && req.Query.Get("hmac") != "" && !s.client.VerifyCallback(req.Query) {
		return nil, fmt.Errorf("%w: invalid callback signature", domain.ErrAuth)
	}

	ok, err := s.states.Consume(ctx, shop, req.State)
	if err != nil {
		return nil, fmt.Errorf("failed to check oauth state: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: invalid or missing OAuth state", domain.ErrAuth)
	}

	token, err := s.client.ExchangeToken(ctx, shop, req.Code)
	if err != nil {
		return nil, err
	}

	stored, err := s.tokens.EncryptToken(token.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	if err := s.repository.SaveShop(ctx, &domain.Shop{
		Domain:      shop,
		AccessToken: stored,
		Scope:       token.Scope,
		Uninstalled: false,
	}); err != nil {
		return nil, err
	}
	defaults := s.cfg.Defaults(shop)
	if err := s.repository.EnsureSettings(ctx, &defaults); err != nil {
		return nil, err
	}

	src, err := s.ensureScriptTag(ctx, shop, token.Token)
	if err != nil {
		return nil, err
	}

	s.registerWebhookAsync(ctx, shop, token.Token)

	s.logger.Info().
		Str("shop", shop).
		Str("scope", token.Scope).
		Str("script_tag", src).
		Msg("App installed")

	return &InstallResult{Shop: shop, ScriptTagSrc: src}, nil
}

// Repair re-runs the storefront registration for an installed shop using its
// stored token. It recovers installs that stopped after the token exchange.
func (s *InstallService) Repair(ctx context.Context, shop string) (*InstallResult, error) {
	shop, err := domain.NormalizeShopDomain(shop)
	if err != nil {
		return nil, err
	}
	record, err := s.repository.GetShop(ctx, shop)
	if err != nil {
		return nil, err
	}
	if !record.Active() {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotInstalled, shop)
	}

	token, err := s.tokens.DecryptToken(record.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}

	defaults := s.cfg.Defaults(shop)
	if err := s.repository.EnsureSettings(ctx, &defaults); err != nil {
		return nil, err
	}
	src, err := s.ensureScriptTag(ctx, shop, token)
	if err != nil {
		return nil, err
	}
	s.registerWebhookAsync(ctx, shop, token)

	s.logger.Info().Str("shop", shop).Str("script_tag", src).Msg("Install repaired")
	return &InstallResult{Shop: shop, ScriptTagSrc: src}, nil
}

// Wait blocks until background webhook registrations have finished.
func (s *InstallService) Wait() {
	s.wg.Wait()
}

// ensureScriptTag creates the widget script tag unless one with the same src exists.
func (s *InstallService) ensureScriptTag(ctx context.Context, shop, token string) (string, error) {
	src := s.cfg.WidgetSrc(shop)

	tags, err := s.client.ListScriptTags(ctx, shop, token)
	if err != nil {
		return "", err
	}
	for _, tag := range tags {
		if tag.Src == src {
			s.logger.Debug().Str("shop", shop).Uint64("script_tag_id", tag.ID).Msg("Script tag already present")
			return src, nil
		}
	}

	created, err := s.client.CreateScriptTag(ctx, shop, token, src)
	if err != nil {
		return "", err
	}
	s.logger.Info().Str("shop", shop).Uint64("script_tag_id", created.ID).Msg("Script tag created")
	return src, nil
}

// registerWebhookAsync subscribes to app/uninstalled on a tracked goroutine
// detached from the request. Failures are logged and counted, never retried.
func (s *InstallService) registerWebhookAsync(ctx context.Context, shop, token string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WebhookTimeout)
		defer cancel()

		outcome, err := s.ensureWebhook(ctx, shop, token)
		s.metrics.WebhookRegistrations.WithLabelValues(outcome).Inc()
		if err != nil {
			s.logger.Warn().Err(err).Str("shop", shop).Msg("Failed to register app/uninstalled webhook")
			return
		}
		s.logger.Info().Str("shop", shop).Str("outcome", outcome).Msg("Webhook registration finished")
	}()
}

func (s *InstallService) ensureWebhook(ctx context.Context, shop, token string) (string, error) {
	hooks, err := s.client.ListWebhooks(ctx, shop, token)
	if err != nil {
		return "error", err
	}
	for _, h := range hooks {
		if h.Topic == domain.TopicAppUninstalled && h.Address == s.cfg.WebhookAddress {
			return "exists", nil
		}
	}
	if _, err := s.client.CreateWebhook(ctx, shop, token, domain.TopicAppUninstalled, s.cfg.WebhookAddress); err != nil {
		return "error", err
	}
	return "created", nil
}

func installOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrAuth):
		return "unauthorized"
	case errors.Is(err, domain.ErrUpstream):
		return "upstream_error"
	default:
		return "error"
	}
}
