// Package cognito talks to the AWS Cognito hosted UI and token endpoint that
// gate access to the service.
package cognito

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/lildude/workouttracker/internal/client"
)

// DefaultScopes are requested on every login.
var DefaultScopes = []string{"email", "aws.cognito.signin.user.admin", "openid"}

// ErrMissingRefreshToken is returned when a refresh is attempted without a
// refresh token.
var ErrMissingRefreshToken = errors.New("cognito: missing refresh token")

// ErrMissingIDToken is returned when the token endpoint response has no id token.
var ErrMissingIDToken = errors.New("cognito: token response has no id_token")

// Config describes the user pool app client.
type Config struct {
	Host         string
	ClientID     string
	ClientSecret string
	UserPoolID   string
	RedirectURI  string
	Region       string
	Scopes       []string
	// JWKSURL overrides the key set location derived from Region and UserPoolID.
	JWKSURL string
}

// SessionTokens is the token triplet handed to the browser as cookies.
type SessionTokens struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
}

// Client implements the login, code exchange, refresh and key retrieval flows.
type Client struct {
	cfg   Config
	oauth *oauth2.Config
	hc    *http.Client
}

// NewClient returns a Client. hc is used for every call to Cognito; nil means
// http.DefaultClient.
func NewClient(cfg Config, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	host := strings.TrimSuffix(cfg.Host, "/")
	return &Client{
		cfg: cfg,
		hc:  hc,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   host + "/login",
				TokenURL:  host + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
			RedirectURL: cfg.RedirectURI,
			Scopes:      cfg.Scopes,
		},
	}
}

// JWKSURL returns the location of the user pool's public keys.
func (c *Client) JWKSURL() string {
	if c.cfg.JWKSURL != "" {
		return c.cfg.JWKSURL
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s/.well-known/jwks.json", c.cfg.Region, c.cfg.UserPoolID)
}

// PublicKeys fetches the user pool's JWK Set document.
func (c *Client) PublicKeys(ctx context.Context) (json.RawMessage, error) {
	u, err := url.Parse(c.JWKSURL())
	if err != nil {
		return nil, fmt.Errorf("parsing jwks url: %w", err)
	}
	rc := client.NewClient(u, c.hc)
	req, err := rc.NewRequest(ctx, http.MethodGet, "", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("creating jwks request: %w", err)
	}

	var doc json.RawMessage
	resp, err := rc.Do(req, &doc)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("getting jwks: %w", err)
	}
	return doc, nil
}

// LoginURI returns the hosted UI URL that starts the authorization code flow.
func (c *Client) LoginURI() string {
	return c.oauth.AuthCodeURL("")
}

// ExchangeCode swaps an authorization code for session tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*SessionTokens, error) {
	tok, err := c.oauth.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return sessionTokens(tok)
}

// RefreshSession swaps a refresh token for fresh id and access tokens.
// Cognito does not rotate the refresh token so the one passed in is kept.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*SessionTokens, error) {
	if refreshToken == "" {
		return nil, ErrMissingRefreshToken
	}
	// A token without an access token is never valid, forcing the refresh grant.
	tok, err := c.oauth.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing session: %w", err)
	}
	return sessionTokens(tok)
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.hc)
}

func sessionTokens(tok *oauth2.Token) (*SessionTokens, error) {
	id, _ := tok.Extra("id_token").(string)
	if id == "" {
		return nil, ErrMissingIDToken
	}
	return &SessionTokens{
		IDToken:      id,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}, nil
}
