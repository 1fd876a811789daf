// Package strava implements the calls made to the Strava API to extract an
// athlete's activities.
package strava

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/lildude/workouttracker/internal/client"
	"github.com/lildude/workouttracker/internal/model"
)

var (
	BaseURL  = "https://www.strava.com/api/v3/"
	TokenURL = "https://www.strava.com/api/v3/oauth/token"
)

// DefaultPerPage is the page size used when ListOptions.PerPage is unset.
const DefaultPerPage = 30

// ErrMissingRefreshToken is returned when the stored credential cannot be refreshed.
var ErrMissingRefreshToken = errors.New("strava: credential has no refresh token")

// ServiceCredentialProvider hands out a valid access token for the Strava API.
type ServiceCredentialProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// SaveFunc persists a refreshed credential under name.
type SaveFunc func(ctx context.Context, name string, value any) error

// CredentialManager keeps the server to server Strava credential fresh. The
// credential is refreshed synchronously once it has expired and the new one
// is persisted through the save callback before it is used.
type CredentialManager struct {
	oauth *oauth2.Config
	hc    *http.Client
	save  SaveFunc
	log   logrus.FieldLogger
	now   func() time.Time

	mu   sync.Mutex
	cred model.StravaCredential
}

// NewCredentialManager returns a manager seeded with the stored credential.
func NewCredentialManager(clientID, clientSecret string, cred model.StravaCredential, save SaveFunc, hc *http.Client, log logrus.FieldLogger) *CredentialManager {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &CredentialManager{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		hc:   hc,
		save: save,
		log:  log,
		now:  time.Now,
		cred: cred,
	}
}

// AccessToken returns the current access token, refreshing it first when it
// has expired.
func (m *CredentialManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred.ExpiresAt <= m.now().Unix() {
		if err := m.refresh(ctx); err != nil {
			return "", err
		}
	}
	return m.cred.AccessToken, nil
}

// Credential returns a copy of the cached credential.
func (m *CredentialManager) Credential() model.StravaCredential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred
}

func (m *CredentialManager) refresh(ctx context.Context) error {
	if m.cred.RefreshToken == "" {
		return ErrMissingRefreshToken
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.hc)
	tok, err := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: m.cred.RefreshToken}).Token()
	if err != nil {
		return fmt.Errorf("refreshing strava credential: %w", err)
	}

	cred := model.StravaCredential{
		TokenType:    tok.TokenType,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt(tok),
	}
	if in, ok := tok.Extra("expires_in").(float64); ok {
		cred.ExpiresIn = int64(in)
	}

	if err := m.save(ctx, model.CredentialStrava, cred); err != nil {
		return fmt.Errorf("saving refreshed strava credential: %w", err)
	}
	m.cred = cred
	m.log.WithField("expires_at", cred.ExpiresAt).Info("refreshed strava credential")
	return nil
}

// expiresAt prefers Strava's own expires_at over the computed expiry.
func expiresAt(tok *oauth2.Token) int64 {
	switch v := tok.Extra("expires_at").(type) {
	case float64:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return tok.Expiry.Unix()
}

// ListOptions narrows an activity listing. Zero values are not sent.
type ListOptions struct {
	PerPage int
	// After and Before are epoch seconds.
	After  int64
	Before int64
}

func (o ListOptions) values(page int) url.Values {
	perPage := o.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	q := url.Values{
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(perPage)},
	}
	if o.After > 0 {
		q.Set("after", strconv.FormatInt(o.After, 10))
	}
	if o.Before > 0 {
		q.Set("before", strconv.FormatInt(o.Before, 10))
	}
	return q
}

// Client lists activities for the authenticated athlete.
type Client struct {
	baseURL *url.URL
	creds   ServiceCredentialProvider
	hc      *http.Client
}

// NewClient returns a Client. A nil baseURL uses BaseURL.
func NewClient(baseURL *url.URL, creds ServiceCredentialProvider, hc *http.Client) *Client {
	if baseURL == nil {
		baseURL, _ = url.Parse(BaseURL)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: baseURL, creds: creds, hc: hc}
}

// ListActivities returns a single page of the athlete's activities, reduced
// to the fields kept in model.Activity. Pages start at 1; an empty page
// means there are no more activities.
func (c *Client) ListActivities(ctx context.Context, page int, opts ListOptions) ([]model.Activity, error) {
	token, err := c.creds.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	tc := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c.hc), ts)
	sc := client.NewClient(c.baseURL, tc)

	req, err := sc.NewRequest(ctx, http.MethodGet, "athlete/activities", opts.values(page), nil)
	if err != nil {
		return nil, fmt.Errorf("creating list activities request: %w", err)
	}

	var activities []model.Activity
	resp, err := sc.Do(req, &activities)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("listing activities page %d: %w", page, err)
	}

	return activities, nil
}
