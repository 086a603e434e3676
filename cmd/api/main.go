package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"free-shipping-bar/internal/application"
	"free-shipping-bar/internal/application/webhook_handlers"
	"free-shipping-bar/internal/config"
	"free-shipping-bar/internal/domain"
	apiinfra "free-shipping-bar/internal/infrastructure/api"
	shopifyinfra "free-shipping-bar/internal/infrastructure/shopify"
	"free-shipping-bar/internal/metrics"
	"free-shipping-bar/internal/widget"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "free-shipping-bar",
		Short:         "Shopify app that shows a free shipping progress bar on the storefront",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newWidgetCmd(), newRepairCmd())
	return root
}

// loadConfig resolves the configuration and the root logger. Configuration
// errors are printed since no logger exists yet.
func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.FromEnvironment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n", err)
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, newLogger(cfg.LogLevel), nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open database")
		return err
	}
	defer repo.Close(context.Background())

	states, err := openStateStore(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open OAuth state store")
		return err
	}
	defer states.Close()

	tokens, err := shopifyinfra.NewTokenManager(cfg.TokenEncryptionKey, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize token encryption")
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(cfg.MetricsNamespace, reg)

	client := shopifyinfra.NewClient(shopifyinfra.ClientConfig{
		APIKey:      cfg.ClientID,
		APISecret:   cfg.ClientSecret,
		RedirectURI: cfg.RedirectURI(),
		Scopes:      cfg.Scopes,
		APIVersion:  cfg.APIVersion,
		HTTPClient:  &http.Client{Timeout: cfg.HTTPTimeout},
	}, m, logger)

	installs := application.NewInstallService(repo, states, client, tokens, m, logger, application.InstallConfig{
		WidgetSrc:      cfg.WidgetURL,
		WebhookAddress: cfg.WebhookAddress(),
		Defaults:       cfg.Widget.Settings,
	})
	settings := application.NewSettingsService(repo, cfg.Widget.Settings, m, logger)

	// Initialize webhook dispatcher and register handlers
	dispatcher := application.NewWebhookDispatcher(m, logger,
		webhook_handlers.NewAppUninstalledHandler(logger, repo),
	)

	router := apiinfra.NewRouter(apiinfra.RouterConfig{
		ClientID:       cfg.ClientID,
		Installs:       installs,
		Settings:       settings,
		Webhooks:       dispatcher,
		Sessions:       shopifyinfra.NewSessionVerifier(cfg.ClientID, cfg.ClientSecret),
		WebhookAuth:    shopifyinfra.NewWebhookVerifier(cfg.ClientSecret),
		Defaults:       cfg.Widget.Settings,
		Widget:         widget.Options{PollInterval: cfg.Widget.PollInterval},
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Metrics:        m,
		Gatherer:       reg,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("app_url", cfg.AppURL).
			Str("api_version", cfg.APIVersion).
			Bool("token_encryption", tokens.Encrypting()).
			Msg("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("Server failed")
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
	installs.Wait()
	logger.Info().Msg("Server stopped")
	return nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := openRepository(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("Migration failed")
				return err
			}
			return repo.Close(cmd.Context())
		},
	}
}

func newWidgetCmd() *cobra.Command {
	var (
		shop      string
		cartTotal string
	)
	cmd := &cobra.Command{
		Use:   "widget",
		Short: "Print the storefront script for a shop, or preview the bar for a cart total",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			repo, err := openRepository(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer repo.Close(ctx)

			m := metrics.New(cfg.MetricsNamespace, prometheus.NewRegistry())
			s, source := application.NewSettingsService(repo, cfg.Widget.Settings, m, logger).WidgetSettings(ctx, shop)
			out := cmd.OutOrStdout()

			if cartTotal == "" {
				body, err := widget.Render(s, widget.Options{PollInterval: cfg.Widget.PollInterval})
				if err != nil {
					return err
				}
				_, err = out.Write(body)
				return err
			}

			total, err := decimal.NewFromString(cartTotal)
			if err != nil {
				return fmt.Errorf("%w: cart total %q", domain.ErrValidation, cartTotal)
			}
			cents := total.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
			_, pct := widget.Progress(s.ThresholdCents, cents)
			fmt.Fprintf(out, "settings: %s\nmessage: %s\nprogress: %.0f%%\n", source, widget.Message(s, cents), pct*100)
			return nil
		},
	}
	cmd.Flags().StringVar(&shop, "shop", "", "shop domain, e.g. your-store.myshopify.com")
	cmd.Flags().StringVar(&cartTotal, "cart-total", "", "cart total in the store currency, e.g. 32.50")
	return cmd
}

func newRepairCmd() *cobra.Command {
	var shop string
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Re-create the script tag and uninstall webhook for an installed shop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			repo, err := openRepository(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer repo.Close(ctx)

			tokens, err := shopifyinfra.NewTokenManager(cfg.TokenEncryptionKey, logger)
			if err != nil {
				return err
			}
			m := metrics.New(cfg.MetricsNamespace, prometheus.NewRegistry())
			client := shopifyinfra.NewClient(shopifyinfra.ClientConfig{
				APIKey:      cfg.ClientID,
				APISecret:   cfg.ClientSecret,
				RedirectURI: cfg.RedirectURI(),
				Scopes:      cfg.Scopes,
				APIVersion:  cfg.APIVersion,
				HTTPClient:  &http.Client{Timeout: cfg.HTTPTimeout},
			}, m, logger)

			// Repair never issues OAuth states.
			installs := application.NewInstallService(repo, nil, client, tokens, m, logger, application.InstallConfig{
				WidgetSrc:      cfg.WidgetURL,
				WebhookAddress: cfg.WebhookAddress(),
				Defaults:       cfg.Widget.Settings,
			})
			res, err := installs.Repair(ctx, shop)
			installs.Wait()
			if err != nil {
				logger.Error().Err(err).Str("shop", shop).Msg("Repair failed")
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ScriptTag ensured. src=%s\n", res.ScriptTagSrc)
			return nil
		},
	}
	cmd.Flags().StringVar(&shop, "shop", "", "shop domain, e.g. your-store.myshopify.com")
	_ = cmd.MarkFlagRequired("shop")
	return cmd
}
