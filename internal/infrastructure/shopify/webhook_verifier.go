package shopify

import (
	"errors"
	"net/http"

	goshopify "github.com/bold-commerce/go-shopify/v4"
)

// WebhookVerifier checks the X-Shopify-Hmac-Sha256 signature of webhook deliveries.
type WebhookVerifier struct {
	app goshopify.App
}

// NewWebhookVerifier verifies signatures made with the app's client secret.
func NewWebhookVerifier(clientSecret string) *WebhookVerifier {
	return &WebhookVerifier{app: goshopify.App{ApiSecret: clientSecret}}
}

// VerifyRequest reads the body of r and checks its signature. The body is
// restored, so it is still readable afterwards. Read errors, such as a body
// over an http.MaxBytesReader limit, are returned unchanged.
func (v *WebhookVerifier) VerifyRequest(r *http.Request) error {
	ok, err := v.app.VerifyWebhookRequestVerbose(r)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("webhook signature mismatch")
	}
	return nil
}
