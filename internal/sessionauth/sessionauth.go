// Package sessionauth validates the signed session tokens carried in the
// request cookies against the identity provider's public keys.
package sessionauth

import (
	"crypto/rsa"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Cookie names used for the session.
const (
	CookieIDToken      = "id_token"
	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"
	CookieRedirect     = "redirect_post_login"
)

// Audience claims. Id tokens carry "aud", access tokens "client_id".
const (
	ClaimAudience = "aud"
	ClaimClientID = "client_id"
)

// Reason explains why a token did not validate.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonMissing
	ReasonMalformed
	ReasonKeyNotFound
	ReasonBadSignature
	ReasonExpired
	ReasonAudienceMismatch
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "ok"
	case ReasonMissing:
		return "token missing"
	case ReasonMalformed:
		return "token malformed"
	case ReasonKeyNotFound:
		return "key not found"
	case ReasonBadSignature:
		return "signature invalid"
	case ReasonExpired:
		return "token expired"
	case ReasonAudienceMismatch:
		return "audience mismatch"
	}
	return "unknown"
}

// Result is the outcome of validating one token. Claims is nil unless the
// token is valid.
type Result struct {
	Claims jwt.MapClaims
	Reason Reason
}

// OK reports whether the token validated.
func (r Result) OK() bool {
	return r.Reason == ReasonNone && r.Claims != nil
}

// Session holds the validation results of the cookie triplet.
type Session struct {
	ID           Result
	Access       Result
	RefreshToken string
}

// Authenticated reports whether both tokens validated.
func (s *Session) Authenticated() bool {
	return s != nil && s.ID.OK() && s.Access.OK()
}

// KeyLookup finds a public key by kid.
type KeyLookup interface {
	Lookup(kid string) (*rsa.PublicKey, bool)
}

// Authenticator validates session tokens.
type Authenticator struct {
	keys     KeyLookup
	clientID string
	now      func() time.Time
	parser   *jwt.Parser
}

// New returns an Authenticator that accepts tokens issued for clientID.
func New(keys KeyLookup, clientID string) *Authenticator {
	return &Authenticator{
		keys:     keys,
		clientID: clientID,
		now:      time.Now,
		// Expiry and audience are checked by Validate so each failure keeps
		// its own reason.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// WithClock overrides the time source.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	a.now = now
	return a
}

// Authenticate validates the session cookies on r. It returns false when
// there is no id token at all.
func (a *Authenticator) Authenticate(r *http.Request) (*Session, bool) {
	idToken := cookieValue(r, CookieIDToken)
	if idToken == "" {
		return nil, false
	}

	return &Session{
		ID:           a.Validate(idToken, ClaimAudience),
		Access:       a.Validate(cookieValue(r, CookieAccessToken), ClaimClientID),
		RefreshToken: cookieValue(r, CookieRefreshToken),
	}, true
}

// Validate checks a single token. audienceClaim names the claim compared to
// the client id when present.
func (a *Authenticator) Validate(token, audienceClaim string) Result {
	if token == "" {
		return Result{Reason: ReasonMissing}
	}

	unverified, _, err := a.parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Result{Reason: ReasonMalformed}
	}
	kid, _ := unverified.Header["kid"].(string)
	key, ok := a.keys.Lookup(kid)
	if !ok {
		return Result{Reason: ReasonKeyNotFound}
	}

	parsed, err := a.parser.Parse(token, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenUnverifiable) {
			return Result{Reason: ReasonBadSignature}
		}
		return Result{Reason: ReasonMalformed}
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Result{Reason: ReasonMalformed}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Result{Reason: ReasonMalformed}
	}
	if exp == nil || a.now().After(exp.Time) {
		return Result{Reason: ReasonExpired}
	}

	if v, present := claims[audienceClaim]; present && !matchesClient(v, a.clientID) {
		return Result{Reason: ReasonAudienceMismatch}
	}

	return Result{Claims: claims}
}

func matchesClient(v any, clientID string) bool {
	switch aud := v.(type) {
	case string:
		return aud == clientID
	case []any:
		for _, item := range aud {
			if s, ok := item.(string); ok && s == clientID {
				return true
			}
		}
	}
	return false
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
