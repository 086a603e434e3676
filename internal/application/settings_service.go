package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"free-shipping-bar/internal/domain"
	"free-shipping-bar/internal/metrics"
	"free-shipping-bar/internal/ports"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// maxThresholdCents caps thresholds so cents always fit an int64 with room to spare.
const maxThresholdCents = 100_000_000_000

// Exponent bounds of an accepted threshold literal, checked before any
// arithmetic so a short literal cannot expand into a huge coefficient.
const (
	minThresholdExponent = -32
	maxThresholdExponent = 12
)

var (
	hundred      = decimal.NewFromInt(100)
	maxThreshold = decimal.New(maxThresholdCents, -2)
)

// SettingsPayload is the body of a settings save from the admin page.
type SettingsPayload struct {
	// Threshold is kept raw so the decimal is parsed from the exact JSON literal.
	Threshold  json.RawMessage `json:"threshold"`
	// Position accepts any JSON value; only the string "bottom" selects the bottom.
	Position   json.RawMessage `json:"position"`
	TextTop    *string         `json:"text_top"`
	TextBottom *string         `json:"text_bottom"`
	BG         string          `json:"bg"`
	FG         string          `json:"fg"`
}

// SettingsService reads and writes per-shop bar settings.
type SettingsService struct {
	repository ports.Repository
	defaults   func(shop string) domain.Settings
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewSettingsService creates a new settings service. defaults supplies the
// values used for anything a shop has not configured.
func NewSettingsService(repository ports.Repository, defaults func(shop string) domain.Settings, m *metrics.Metrics, logger zerolog.Logger) *SettingsService {
	if defaults == nil {
		defaults = domain.DefaultSettings
	}
	return &SettingsService{
		repository: repository,
		defaults:   defaults,
		metrics:    m,
		logger:     logger,
	}
}

// RequireInstalled fails with ErrNotInstalled unless shop has an active install.
func (s *SettingsService) RequireInstalled(ctx context.Context, shop string) error {
	record, err := s.repository.GetShop(ctx, shop)
	if err != nil {
		return err
	}
	if !record.Active() {
		return fmt.Errorf("%w: %s", domain.ErrNotInstalled, shop)
	}
	return nil
}

// GetSettings returns the stored settings for shop merged with defaults.
func (s *SettingsService) GetSettings(ctx context.Context, shop string) (domain.Settings, error) {
	defaults := s.defaults(shop)
	stored, err := s.repository.GetSettings(ctx, shop)
	if err != nil {
		return domain.Settings{}, err
	}
	if stored == nil {
		return defaults, nil
	}
	return stored.Merge(defaults), nil
}

// SaveSettings replaces the settings row of shop with payload.
func (s *SettingsService) SaveSettings(ctx context.Context, shop string, payload SettingsPayload) (saved domain.Settings, err error) {
	defer func() {
		s.metrics.SettingsSaves.WithLabelValues(metrics.Outcome(err)).Inc()
	}()

	cents, err := ParseThresholdCents(payload.Threshold)
	if err != nil {
		return domain.Settings{}, err
	}

	defaults := s.defaults(shop)
	bannerText := defaults.BannerText
	existing, err := s.repository.GetSettings(ctx, shop)
	if err != nil {
		return domain.Settings{}, err
	}
	if existing != nil && strings.TrimSpace(existing.BannerText) != "" {
		bannerText = existing.BannerText
	}

	saved = domain.Settings{
		Shop:           shop,
		ThresholdCents: cents,
		Position:       positionFrom(payload.Position),
		BannerText:     bannerText,
		TopText:        domain.StringPtr(trimmed(payload.TextTop)),
		BottomText:     domain.StringPtr(trimmed(payload.TextBottom)),
		Background:     orDefault(payload.BG, defaults.Background),
		Foreground:     orDefault(payload.FG, defaults.Foreground),
	}
	if err := s.repository.SaveSettings(ctx, &saved); err != nil {
		return domain.Settings{}, err
	}

	s.logger.Info().
		Str("shop", shop).
		Int64("threshold_cents", saved.ThresholdCents).
		Str("position", string(saved.Position)).
		Msg("Settings saved")
	return saved, nil
}

// WidgetSettings resolves the settings a storefront script is rendered with.
// It never fails: unknown shops and store errors fall back to defaults. The
// second return value names where the settings came from.
func (s *SettingsService) WidgetSettings(ctx context.Context, rawShop string) (domain.Settings, string) {
	shop, err := domain.NormalizeShopDomain(rawShop)
	if err != nil {
		return s.defaults(""), "default"
	}

	stored, err := s.repository.GetSettings(ctx, shop)
	if err != nil {
		s.logger.Error().Err(err).Str("shop", shop).Msg("Failed to load widget settings, serving defaults")
		s.metrics.Errors.WithLabelValues("widget").Inc()
		return s.defaults(shop), "fallback"
	}
	if stored == nil {
		return s.defaults(shop), "default"
	}
	return stored.Merge(s.defaults(shop)), "stored"
}

// ParseThresholdCents converts a dollar amount given as a JSON number or
// string into cents, rounding half away from zero. Missing, null and empty
// values are zero.
func ParseThresholdCents(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	literal := string(raw)
	if raw[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, fmt.Errorf("%w: threshold: %v", domain.ErrValidation, err)
		}
		literal = strings.TrimSpace(str)
		if literal == "" {
			return 0, nil
		}
	}

	amount, err := decimal.NewFromString(literal)
	if err != nil {
		return 0, fmt.Errorf("%w: threshold is not a number", domain.ErrValidation)
	}
	if amount.IsNegative() {
		return 0, fmt.Errorf("%w: threshold must not be negative", domain.ErrValidation)
	}
	if amount.IsZero() {
		return 0, nil
	}
	if exp := amount.Exponent(); exp > maxThresholdExponent {
		return 0, fmt.Errorf("%w: threshold is too large", domain.ErrValidation)
	} else if exp < minThresholdExponent {
		return 0, fmt.Errorf("%w: threshold has too many decimal places", domain.ErrValidation)
	}
	if amount.GreaterThan(maxThreshold) {
		return 0, fmt.Errorf("%w: threshold is too large", domain.ErrValidation)
	}

	return amount.Mul(hundred).Round(0).IntPart(), nil
}

func positionFrom(raw json.RawMessage) domain.Position {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.PositionTop
	}
	return domain.ParsePosition(strings.TrimSpace(s))
}

func trimmed(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
