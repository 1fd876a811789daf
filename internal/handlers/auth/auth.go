// Package auth implements the login callback and logout handlers.
package auth

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/lildude/workouttracker/internal/cognito"
	"github.com/lildude/workouttracker/internal/sessionauth"
)

// CodeExchanger swaps an authorization code for session tokens.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code string) (*cognito.SessionTokens, error)
}

// AuthHandler completes the hosted UI login. The tokens are stored as
// cookies and the user is sent back to the page that required the login.
// Without a code there is nothing to do.
func AuthHandler(ex CodeExchanger, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			w.WriteHeader(http.StatusOK)
			return
		}

		tokens, err := ex.ExchangeCode(r.Context(), code)
		if err != nil {
			log.WithError(err).Warn("authorization code exchange failed")
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		target := sessionauth.RedirectTarget(r)
		if target == "" {
			target = "/"
		}

		sessionauth.DeleteCookies(w, sessionauth.CookieRedirect)
		sessionauth.SetTokenCookies(w, tokens.IDToken, tokens.AccessToken, tokens.RefreshToken)
		log.WithField("redirect", target).Info("successfully authenticated")

		http.Redirect(w, r, target, http.StatusTemporaryRedirect)
	}
}

// LogoutHandler clears the session cookies.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	sessionauth.DeleteCookies(w,
		sessionauth.CookieIDToken,
		sessionauth.CookieAccessToken,
		sessionauth.CookieRefreshToken,
		sessionauth.CookieRedirect,
	)
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}
