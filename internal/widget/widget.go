// Package widget generates the storefront script that renders the free
// shipping progress bar. The script skeleton is fixed; only literals derived
// from a shop's settings are substituted, each JSON-encoded.
package widget

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"

	"free-shipping-bar/internal/domain"
)

const (
	// Placeholder is the single token replaced by the formatted remaining amount.
	Placeholder = "{remaining}"

	// UnlockedText is shown once the cart total reaches the threshold.
	UnlockedText = "🎉 You unlocked FREE shipping!"

	// UnlockedColor is the progress fill once the threshold is reached.
	UnlockedColor = "#22c55e"

	// DefaultPollInterval is how often the storefront re-reads /cart.js.
	DefaultPollInterval = 2500 * time.Millisecond
)

//go:embed widget.js.tmpl
var files embed.FS

var script = template.Must(template.New("widget.js.tmpl").
	Funcs(template.FuncMap{"literal": literal}).
	ParseFS(files, "widget.js.tmpl"))

// A currency symbol typed right before the placeholder, or doubled braces
// around it, collapse to the bare placeholder.
var placeholderPattern = regexp.MustCompile(`(?i)(?:\p{Sc}[ \t]?)?\{\{?\s*remaining\s*\}\}?`)

// Options tune the generated script independently of shop settings.
type Options struct {
	PollInterval time.Duration
}

type scriptData struct {
	ThresholdCents int64
	PollMS         int64
	Text           string
	UnlockedText   string
	UnlockedColor  string
	Background     string
	Foreground     string
	Position       string
	Placeholder    string
}

// Render produces the widget script for settings. Callers merge stored
// settings with defaults beforehand.
func Render(settings domain.Settings, opts Options) ([]byte, error) {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	threshold := settings.ThresholdCents
	if threshold < 0 {
		threshold = 0
	}

	data := scriptData{
		ThresholdCents: threshold,
		PollMS:         poll.Milliseconds(),
		Text:           NormalizeTemplate(settings.ActiveText()),
		UnlockedText:   UnlockedText,
		UnlockedColor:  UnlockedColor,
		Background:     orDefault(settings.Background, domain.DefaultBackground),
		Foreground:     orDefault(settings.Foreground, domain.DefaultForeground),
		Position:       string(domain.ParsePosition(string(settings.Position))),
		Placeholder:    Placeholder,
	}

	var buf bytes.Buffer
	if err := script.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render widget: %w", err)
	}
	return buf.Bytes(), nil
}

// NormalizeTemplate rewrites every placeholder spelling to the bare
// Placeholder, dropping an adjacent currency symbol.
func NormalizeTemplate(tpl string) string {
	return placeholderPattern.ReplaceAllString(tpl, Placeholder)
}

// FillTemplate substitutes remaining into the first placeholder of tpl, the
// same way the storefront script does.
func FillTemplate(tpl, remaining string) string {
	return strings.Replace(NormalizeTemplate(tpl), Placeholder, remaining, 1)
}

// Progress mirrors the storefront maths: the amount still missing and the
// filled fraction of the bar, clamped to [0, 1]. A zero threshold is always full.
func Progress(thresholdCents, totalCents int64) (remainingCents int64, pct float64) {
	if totalCents < 0 {
		totalCents = 0
	}
	if thresholdCents <= 0 {
		return 0, 1
	}
	remainingCents = max(thresholdCents-totalCents, 0)
	pct = min(float64(totalCents)/float64(thresholdCents), 1)
	return remainingCents, pct
}

// FormatCents renders cents as dollars, matching the script's fallback
// when Intl currency formatting is unavailable.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// Message is the text the bar shows for a cart total, with amounts
// formatted by FormatCents.
func Message(settings domain.Settings, totalCents int64) string {
	remaining, _ := Progress(settings.ThresholdCents, totalCents)
	if remaining == 0 {
		return UnlockedText
	}
	return FillTemplate(settings.ActiveText(), FormatCents(remaining))
}

// literal encodes v as a JavaScript literal. encoding/json escapes quotes,
// <, >, & and U+2028/U+2029, which keeps the value inert inside a script.
func literal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
