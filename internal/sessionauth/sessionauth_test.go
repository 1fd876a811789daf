package sessionauth_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lildude/workouttracker/internal/sessionauth"
	"github.com/lildude/workouttracker/internal/sessionauth/sessionauthtest"
)

const clientID = "4tq2lp5cvs0example"

func TestValidate(t *testing.T) {
	signer := sessionauthtest.NewSigner(t, "kid-1")
	other := sessionauthtest.NewSigner(t, "kid-2")
	auth := sessionauth.New(signer, clientID)
	now := time.Now()

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})
	hs.Header["kid"] = "kid-1"
	hmacToken, err := hs.SignedString([]byte("secret"))
	require.NoError(t, err)

	// Same kid, different key: the signature cannot verify.
	forged := sessionauthtest.Signer{Kid: "kid-1", Key: other.Key}

	tests := []struct {
		name   string
		token  string
		claim  string
		reason sessionauth.Reason
	}{
		{"valid id token", signer.IDToken(t, clientID), sessionauth.ClaimAudience, sessionauth.ReasonNone},
		{"valid access token", signer.AccessToken(t, clientID), sessionauth.ClaimClientID, sessionauth.ReasonNone},
		{"missing token", "", sessionauth.ClaimAudience, sessionauth.ReasonMissing},
		{"garbage", "not.a.jwt", sessionauth.ClaimAudience, sessionauth.ReasonMalformed},
		{"unknown kid", other.IDToken(t, clientID), sessionauth.ClaimAudience, sessionauth.ReasonKeyNotFound},
		{"forged signature", forged.IDToken(t, clientID), sessionauth.ClaimAudience, sessionauth.ReasonBadSignature},
		{"wrong algorithm", hmacToken, sessionauth.ClaimAudience, sessionauth.ReasonBadSignature},
		{
			"expired one second ago",
			signer.Sign(t, jwt.MapClaims{"aud": clientID, "exp": now.Add(-time.Second).Unix()}),
			sessionauth.ClaimAudience,
			sessionauth.ReasonExpired,
		},
		{
			"no expiry",
			signer.Sign(t, jwt.MapClaims{"aud": clientID}),
			sessionauth.ClaimAudience,
			sessionauth.ReasonExpired,
		},
		{
			"wrong audience",
			signer.IDToken(t, "someone-else"),
			sessionauth.ClaimAudience,
			sessionauth.ReasonAudienceMismatch,
		},
		{
			"wrong client id",
			signer.AccessToken(t, "someone-else"),
			sessionauth.ClaimClientID,
			sessionauth.ReasonAudienceMismatch,
		},
		{
			"audience list containing client",
			signer.Sign(t, jwt.MapClaims{"aud": []string{"x", clientID}, "exp": now.Add(time.Hour).Unix()}),
			sessionauth.ClaimAudience,
			sessionauth.ReasonNone,
		},
		{
			"no audience claim at all",
			signer.Sign(t, jwt.MapClaims{"sub": "abc", "exp": now.Add(time.Hour).Unix()}),
			sessionauth.ClaimClientID,
			sessionauth.ReasonNone,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := auth.Validate(tc.token, tc.claim)
			assert.Equal(t, tc.reason, res.Reason, "got %s", res.Reason)
			assert.Equal(t, tc.reason == sessionauth.ReasonNone, res.OK())
		})
	}
}

func TestValidateReturnsClaimsUnchanged(t *testing.T) {
	signer := sessionauthtest.NewSigner(t, "kid-1")
	exp := time.Now().Add(time.Hour).Unix()
	token := signer.Sign(t, jwt.MapClaims{
		"sub":            "abc-123",
		"email":          "rider@example.com",
		"aud":            clientID,
		"exp":            exp,
		"cognito:groups": []string{"admins"},
	})

	res := sessionauth.New(signer, clientID).Validate(token, sessionauth.ClaimAudience)
	require.True(t, res.OK())
	assert.Equal(t, "abc-123", res.Claims["sub"])
	assert.Equal(t, "rider@example.com", res.Claims["email"])
	assert.Equal(t, clientID, res.Claims["aud"])
	assert.Equal(t, float64(exp), res.Claims["exp"])
	assert.Equal(t, []any{"admins"}, res.Claims["cognito:groups"])
}

func TestValidateUsesClock(t *testing.T) {
	signer := sessionauthtest.NewSigner(t, "kid-1")
	token := signer.IDToken(t, clientID)

	auth := sessionauth.New(signer, clientID).WithClock(func() time.Time {
		return time.Now().Add(2 * time.Hour)
	})
	assert.Equal(t, sessionauth.ReasonExpired, auth.Validate(token, sessionauth.ClaimAudience).Reason)
}

func TestAuthenticate(t *testing.T) {
	signer := sessionauthtest.NewSigner(t, "kid-1")
	auth := sessionauth.New(signer, clientID)

	t.Run("no id token is anonymous", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/sync", http.NoBody)
		r.AddCookie(&http.Cookie{Name: sessionauth.CookieAccessToken, Value: signer.AccessToken(t, clientID)})
		s, ok := auth.Authenticate(r)
		assert.False(t, ok)
		assert.Nil(t, s)
	})

	t.Run("both tokens valid", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/sync", http.NoBody)
		r.AddCookie(&http.Cookie{Name: sessionauth.CookieIDToken, Value: signer.IDToken(t, clientID)})
		r.AddCookie(&http.Cookie{Name: sessionauth.CookieAccessToken, Value: signer.AccessToken(t, clientID)})
		r.AddCookie(&http.Cookie{Name: sessionauth.CookieRefreshToken, Value: "refresh-me"})
		s, ok := auth.Authenticate(r)
		require.True(t, ok)
		assert.True(t, s.Authenticated())
		assert.Equal(t, "refresh-me", s.RefreshToken)
	})

	t.Run("access token missing is checked independently", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/sync", http.NoBody)
		r.AddCookie(&http.Cookie{Name: sessionauth.CookieIDToken, Value: signer.IDToken(t, clientID)})
		s, ok := auth.Authenticate(r)
		require.True(t, ok)
		assert.True(t, s.ID.OK())
		assert.Equal(t, sessionauth.ReasonMissing, s.Access.Reason)
		assert.False(t, s.Authenticated())
	})
}

func TestReasonString(t *testing.T) {
	for r := sessionauth.ReasonNone; r <= sessionauth.ReasonAudienceMismatch; r++ {
		assert.NotEqual(t, "unknown", r.String())
		assert.False(t, strings.Contains(r.String(), "%"))
	}
}
