package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ShopDomainSuffix is the suffix every installable shop domain carries.
const ShopDomainSuffix = ".myshopify.com"

var shopDomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)

// Shop represents an installed (or previously installed) store
type Shop struct {
	Domain      string    `json:"domain" bson:"domain"`
	AccessToken string    `json:"-" bson:"access_token"`
	Scope       string    `json:"scope" bson:"scope"`
	InstalledAt time.Time `json:"installed_at" bson:"installed_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
	Uninstalled bool      `json:"uninstalled" bson:"uninstalled"`
}

// Active reports whether the app is currently installed on the shop.
func (s *Shop) Active() bool {
	return s != nil && !s.Uninstalled && s.AccessToken != ""
}

// IsValidShopDomain reports whether shop looks like "name.myshopify.com".
func IsValidShopDomain(shop string) bool {
	return shopDomainPattern.MatchString(shop)
}

// NormalizeShopDomain trims and lower-cases shop and validates it.
func NormalizeShopDomain(shop string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(shop))
	if !IsValidShopDomain(s) {
		return "", fmt.Errorf("%w: invalid shop %q (expected like your-store%s)", ErrValidation, shop, ShopDomainSuffix)
	}
	return s, nil
}
