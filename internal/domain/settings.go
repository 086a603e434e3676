package domain

import (
	"strings"
	"time"
)

// Position is where the bar is pinned on the storefront.
type Position string

const (
	PositionTop    Position = "top"
	PositionBottom Position = "bottom"
)

// ParsePosition maps any value other than "bottom" to top.
func ParsePosition(s string) Position {
	if s == string(PositionBottom) {
		return PositionBottom
	}
	return PositionTop
}

// Hard-coded fallbacks used when neither storage nor configuration provide a value.
const (
	DefaultThresholdCents int64 = 5000
	DefaultBannerText           = "You're {remaining} away from FREE shipping!"
	DefaultBackground           = "#111827"
	DefaultForeground           = "#ffffff"
)

// Settings holds the per-shop display configuration of the bar
type Settings struct {
	Shop           string    `json:"shop" bson:"shop"`
	ThresholdCents int64     `json:"threshold_cents" bson:"threshold_cents"`
	Position       Position  `json:"position" bson:"position"`
	BannerText     string    `json:"banner_text" bson:"banner_text"`
	TopText        *string   `json:"top_text" bson:"top_text,omitempty"`
	BottomText     *string   `json:"bottom_text" bson:"bottom_text,omitempty"`
	Background     string    `json:"bg" bson:"bg"`
	Foreground     string    `json:"fg" bson:"fg"`
	UpdatedAt      time.Time `json:"-" bson:"updated_at"`
}

// DefaultSettings returns the hard-coded defaults for shop.
func DefaultSettings(shop string) Settings {
	return Settings{
		Shop:           shop,
		ThresholdCents: DefaultThresholdCents,
		Position:       PositionTop,
		BannerText:     DefaultBannerText,
		Background:     DefaultBackground,
		Foreground:     DefaultForeground,
	}
}

// Merge fills every unset field of s from defaults. Threshold is never
// considered unset once a row exists, so a stored 0 survives.
func (s Settings) Merge(defaults Settings) Settings {
	if s.Position == "" {
		s.Position = defaults.Position
	}
	if strings.TrimSpace(s.BannerText) == "" {
		s.BannerText = defaults.BannerText
	}
	if s.TopText == nil {
		s.TopText = defaults.TopText
	}
	if s.BottomText == nil {
		s.BottomText = defaults.BottomText
	}
	if strings.TrimSpace(s.Background) == "" {
		s.Background = defaults.Background
	}
	if strings.TrimSpace(s.Foreground) == "" {
		s.Foreground = defaults.Foreground
	}
	return s
}

// TextFor resolves the template shown at position: position-specific text,
// then the generic banner text, then the hard-coded default.
func (s Settings) TextFor(p Position) string {
	var specific *string
	if p == PositionBottom {
		specific = s.BottomText
	} else {
		specific = s.TopText
	}
	if specific != nil && strings.TrimSpace(*specific) != "" {
		return *specific
	}
	if strings.TrimSpace(s.BannerText) != "" {
		return s.BannerText
	}
	return DefaultBannerText
}

// ActiveText is the template for the configured position.
func (s Settings) ActiveText() string {
	return s.TextFor(s.Position)
}

// StringPtr returns a pointer to v.
func StringPtr(v string) *string {
	return &v
}
