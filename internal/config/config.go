// Package config reads the service configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/lildude/workouttracker/internal/database"
	"github.com/lildude/workouttracker/internal/secret"
	"github.com/lildude/workouttracker/internal/sheets"
)

// Parameter names resolved through the secret backend. With the env backend
// they are read from the upper-cased last path segment.
const (
	ParamStravaClientSecret  = "/workouttracker/strava-client-secret"
	ParamCognitoClientSecret = "/workouttracker/cognito-client-secret"
	ParamMongoConnection     = "/workouttracker/mongo-connection-string"
)

const (
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultWorksheet       = "Sheet1"
	defaultUpstreamTimeout = 30 * time.Second
	defaultSyncAccount     = "default"
)

// Config is the resolved service configuration.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	StravaClientID     string
	StravaClientSecret string

	CognitoHost         string
	CognitoClientID     string
	CognitoClientSecret string
	CognitoUserPoolID   string
	CognitoRedirectURI  string
	AWSRegion           string

	DatabaseURL    string
	SheetID        string
	Worksheet      string
	RedisURL       string
	SecretsBackend string
	SyncAccount    string

	InsertPolicy    database.InsertPolicy
	ClearPolicy     sheets.ClearPolicy
	UpstreamTimeout time.Duration
}

// Load reads the configuration. Secrets the resolver reports as not set are
// left empty for the Validate methods to report; any other resolver error is
// returned.
func Load(ctx context.Context, resolver secret.Resolver) (*Config, error) {
	cfg := &Config{
		Port:               getenv("PORT", defaultPort),
		Env:                os.Getenv("ENV"),
		LogLevel:           getenv("LOG_LEVEL", defaultLogLevel),
		StravaClientID:     os.Getenv("STRAVA_CLIENT_ID"),
		CognitoHost:        os.Getenv("COGNITO_HOST"),
		CognitoClientID:    os.Getenv("COGNITO_CLIENT_ID"),
		CognitoUserPoolID:  os.Getenv("COGNITO_USERPOOL_ID"),
		CognitoRedirectURI: os.Getenv("COGNITO_REDIRECT_URI"),
		AWSRegion:          os.Getenv("AWS_REGION"),
		SheetID:            os.Getenv("GOOGLE_SHEET_ID"),
		Worksheet:          getenv("GOOGLE_SHEET_WORKSHEET", defaultWorksheet),
		RedisURL:           os.Getenv("REDIS_URL"),
		SecretsBackend:     getenv("SECRETS_BACKEND", secret.BackendEnv),
		SyncAccount:        getenv("SYNC_ACCOUNT", defaultSyncAccount),
		UpstreamTimeout:    defaultUpstreamTimeout,
	}

	var err error
	if cfg.InsertPolicy, err = database.ParseInsertPolicy(os.Getenv("INSERT_POLICY")); err != nil {
		return nil, err
	}
	if cfg.ClearPolicy, err = sheets.ParseClearPolicy(os.Getenv("SHEET_CLEAR_POLICY")); err != nil {
		return nil, err
	}
	if v := os.Getenv("UPSTREAM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid UPSTREAM_TIMEOUT %q", v)
		}
		cfg.UpstreamTimeout = d
	}

	if cfg.StravaClientSecret, err = lookup(ctx, resolver, ParamStravaClientSecret); err != nil {
		return nil, err
	}
	if cfg.CognitoClientSecret, err = lookup(ctx, resolver, ParamCognitoClientSecret); err != nil {
		return nil, err
	}
	if cfg.DatabaseURL, err = lookup(ctx, resolver, ParamMongoConnection); err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	return cfg, nil
}

func lookup(ctx context.Context, resolver secret.Resolver, name string) (string, error) {
	v, err := resolver.GetSecret(ctx, name)
	if errors.Is(err, secret.ErrNotSet) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", name, err)
	}
	return v, nil
}

// ValidatePipeline reports the settings missing for extract and load.
func (c *Config) ValidatePipeline() error {
	return required(map[string]string{
		"STRAVA_CLIENT_ID":        c.StravaClientID,
		"STRAVA_CLIENT_SECRET":    c.StravaClientSecret,
		"MONGO_CONNECTION_STRING": c.DatabaseURL,
		"GOOGLE_SHEET_ID":         c.SheetID,
	})
}

// ValidateServer reports the settings missing to serve HTTP behind the
// Cognito login.
func (c *Config) ValidateServer() error {
	return errors.Join(c.ValidatePipeline(), required(map[string]string{
		"COGNITO_HOST":          c.CognitoHost,
		"COGNITO_CLIENT_ID":     c.CognitoClientID,
		"COGNITO_CLIENT_SECRET": c.CognitoClientSecret,
		"COGNITO_USERPOOL_ID":   c.CognitoUserPoolID,
		"COGNITO_REDIRECT_URI":  c.CognitoRedirectURI,
		"AWS_REGION":            c.AWSRegion,
	}))
}

func required(vars map[string]string) error {
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(vars)) {
		if vars[name] == "" {
			errs = append(errs, fmt.Errorf("%s is not set", name))
		}
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
