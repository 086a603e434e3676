package api

import (
	"errors"
	"fmt"
	"net/http"

	"free-shipping-bar/internal/application"
	"free-shipping-bar/internal/domain"

	"github.com/rs/zerolog"
)

// installHandler starts the OAuth flow and redirects to Shopify's consent screen.
func installHandler(installs *application.InstallService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authURL, err := installs.BeginInstall(r.Context(), r.URL.Query().Get("shop"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// callbackHandler completes the OAuth flow. Every client-side failure is a
// 400 with the reason in a plain text body.
func callbackHandler(installs *application.InstallService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		result, err := installs.CompleteInstall(r.Context(), application.CallbackRequest{
			Shop:  q.Get("shop"),
			Code:  q.Get("code"),
			State: q.Get("state"),
			Query: q,
		})

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		switch {
		case err == nil:
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, "ScriptTag installed. src=%s", result.ScriptTagSrc)
		case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrAuth), errors.Is(err, domain.ErrUpstream):
			logger.Warn().Err(err).Str("shop", q.Get("shop")).Msg("Install callback rejected")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, err.Error())
		default:
			logger.Error().Err(err).Str("shop", q.Get("shop")).Msg("Install callback failed")
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, http.StatusText(http.StatusInternalServerError))
		}
	}
}
