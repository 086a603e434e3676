package shopify

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"free-shipping-bar/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionLeeway absorbs clock skew between Shopify and this server.
const DefaultSessionLeeway = 5 * time.Second

// sessionClaims are the claims App Bridge puts in an admin session token.
type sessionClaims struct {
	Dest string `json:"dest"`
	jwt.RegisteredClaims
}

// SessionVerifier authenticates embedded admin requests.
type SessionVerifier struct {
	clientID string
	secret   []byte
	leeway   time.Duration
	now      func() time.Time
}

// NewSessionVerifier checks tokens signed with clientSecret and addressed to clientID.
func NewSessionVerifier(clientID, clientSecret string) *SessionVerifier {
	return &SessionVerifier{
		clientID: clientID,
		secret:   []byte(clientSecret),
		leeway:   DefaultSessionLeeway,
		now:      time.Now,
	}
}

// VerifyAuthorization extracts the bearer token from an Authorization header
// value and verifies it.
func (v *SessionVerifier) VerifyAuthorization(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: missing bearer token", domain.ErrAuth)
	}
	return v.Verify(strings.TrimSpace(token))
}

// Verify validates a session token and returns the shop domain it was issued for.
func (v *SessionVerifier) Verify(token string) (string, error) {
	claims := &sessionClaims{}
	keyFunc := func(*jwt.Token) (any, error) { return v.secret, nil }
	parsed, err := jwt.ParseWithClaims(token, claims, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: token expired", domain.ErrAuth)
		}
		return "", fmt.Errorf("%w: invalid token: %w", domain.ErrAuth, err)
	}
	if !parsed.Valid {
		return "", fmt.Errorf("%w: invalid token", domain.ErrAuth)
	}
	if claims.NotBefore == nil {
		return "", fmt.Errorf("%w: token has no nbf claim", domain.ErrAuth)
	}
	if claims.Issuer == "" || claims.Dest == "" {
		return "", fmt.Errorf("%w: token has no iss or dest claim", domain.ErrAuth)
	}

	shop, err := shopFromDest(claims.Dest)
	if err != nil {
		return "", err
	}
	if issuerHost(claims.Issuer) != shop {
		return "", fmt.Errorf("%w: token issuer does not match dest", domain.ErrAuth)
	}
	return shop, nil
}

// shopFromDest turns "https://name.myshopify.com[/admin]" into "name.myshopify.com".
func shopFromDest(dest string) (string, error) {
	shop := strings.TrimPrefix(strings.TrimPrefix(dest, "https://"), "http://")
	shop = strings.TrimSuffix(strings.TrimSuffix(shop, "/"), "/admin")
	normalized, err := domain.NormalizeShopDomain(shop)
	if err != nil {
		return "", fmt.Errorf("%w: bad token dest %q", domain.ErrAuth, dest)
	}
	return normalized, nil
}

func issuerHost(iss string) string {
	u, err := url.Parse(iss)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
