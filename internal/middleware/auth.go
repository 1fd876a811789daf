// Package middleware holds the HTTP middleware shared by the handlers.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lildude/workouttracker/internal/cognito"
	"github.com/lildude/workouttracker/internal/metrics"
	"github.com/lildude/workouttracker/internal/sessionauth"
)

// SessionTokenProvider starts logins and refreshes sessions with the
// identity provider.
type SessionTokenProvider interface {
	LoginURI() string
	RefreshSession(ctx context.Context, refreshToken string) (*cognito.SessionTokens, error)
}

// Auth gates handlers behind a valid session.
type Auth struct {
	authn    *sessionauth.Authenticator
	provider SessionTokenProvider
	log      logrus.FieldLogger
}

func NewAuth(authn *sessionauth.Authenticator, provider SessionTokenProvider, log logrus.FieldLogger) *Auth {
	return &Auth{authn: authn, provider: provider, log: log}
}

// RequireSession is a middleware that checks the session cookies. A session
// with an invalid token is refreshed once using the refresh token cookie;
// anything else is redirected to the login page.
func (a *Auth) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := a.authn.Authenticate(r)
		if !ok {
			metrics.RecordSession("anonymous")
			a.redirectToLogin(w, r)
			return
		}

		if !session.Authenticated() {
			session = a.refresh(w, r, session)
			if session == nil {
				metrics.RecordSession("rejected")
				a.redirectToLogin(w, r)
				return
			}
			metrics.RecordSession("refreshed")
		} else {
			metrics.RecordSession("ok")
		}

		next.ServeHTTP(w, r.WithContext(sessionauth.WithSession(r.Context(), session)))
	})
}

// refresh swaps the refresh token for new tokens and sets them as cookies.
// It returns nil when the session cannot be recovered.
func (a *Auth) refresh(w http.ResponseWriter, r *http.Request, s *sessionauth.Session) *sessionauth.Session {
	log := a.log.WithFields(logrus.Fields{"id_token": s.ID.Reason.String(), "access_token": s.Access.Reason.String()})
	if s.RefreshToken == "" {
		log.Info("session invalid and no refresh token")
		return nil
	}

	tokens, err := a.provider.RefreshSession(r.Context(), s.RefreshToken)
	if err != nil {
		log.WithError(err).Warn("unable to refresh session")
		return nil
	}

	refreshed := &sessionauth.Session{
		ID:           a.authn.Validate(tokens.IDToken, sessionauth.ClaimAudience),
		Access:       a.authn.Validate(tokens.AccessToken, sessionauth.ClaimClientID),
		RefreshToken: tokens.RefreshToken,
	}
	if !refreshed.Authenticated() {
		log.WithFields(logrus.Fields{
			"refreshed_id_token":     refreshed.ID.Reason.String(),
			"refreshed_access_token": refreshed.Access.Reason.String(),
		}).Warn("refreshed session is not valid")
		return nil
	}

	sessionauth.SetTokenCookies(w, tokens.IDToken, tokens.AccessToken, tokens.RefreshToken)
	log.Debug("refreshed session")
	return refreshed
}

func (a *Auth) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	// Only set a new redirect post login if it is not already set.
	if sessionauth.RedirectTarget(r) == "" {
		sessionauth.SetRedirectCookie(w, requestURL(r))
	}
	http.Redirect(w, r, a.provider.LoginURI(), http.StatusTemporaryRedirect)
}

// requestURL rebuilds the absolute URL the client asked for. Only the first
// hop of X-Forwarded-Proto is used and only when it is http or https.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p, _, _ := strings.Cut(r.Header.Get("X-Forwarded-Proto"), ","); p != "" {
		switch p = strings.ToLower(strings.TrimSpace(p)); p {
		case "http", "https":
			scheme = p
		}
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
