// Package sessionauthtest signs session tokens for tests.
package sessionauthtest

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer issues RS256 tokens with a fixed kid.
type Signer struct {
	Kid string
	Key *rsa.PrivateKey
}

// NewSigner generates a fresh key pair.
func NewSigner(t testing.TB, kid string) *Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return &Signer{Kid: kid, Key: key}
}

// Lookup implements sessionauth.KeyLookup for the signer's own key.
func (s *Signer) Lookup(kid string) (*rsa.PublicKey, bool) {
	if kid != s.Kid {
		return nil, false
	}
	return &s.Key.PublicKey, true
}

// Sign returns a compact token for claims.
func (s *Signer) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.Kid
	signed, err := tok.SignedString(s.Key)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

// IDToken returns a valid id token for clientID expiring in an hour.
func (s *Signer) IDToken(t testing.TB, clientID string) string {
	return s.Sign(t, jwt.MapClaims{
		"sub":       "6f1c2a9e-athlete",
		"email":     "rider@example.com",
		"aud":       clientID,
		"token_use": "id",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
}

// AccessToken returns a valid access token for clientID expiring in an hour.
func (s *Signer) AccessToken(t testing.TB, clientID string) string {
	return s.Sign(t, jwt.MapClaims{
		"sub":       "6f1c2a9e-athlete",
		"client_id": clientID,
		"token_use": "access",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
}
