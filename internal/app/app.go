// Package app wires the configured components into the pipeline and the HTTP
// router shared by the CLI, the server and the Lambda entry point.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/lildude/workouttracker/internal/cache"
	"github.com/lildude/workouttracker/internal/cognito"
	"github.com/lildude/workouttracker/internal/config"
	"github.com/lildude/workouttracker/internal/database"
	"github.com/lildude/workouttracker/internal/handlers/auth"
	"github.com/lildude/workouttracker/internal/handlers/tasks"
	"github.com/lildude/workouttracker/internal/jwks"
	"github.com/lildude/workouttracker/internal/middleware"
	"github.com/lildude/workouttracker/internal/model"
	"github.com/lildude/workouttracker/internal/pipeline"
	"github.com/lildude/workouttracker/internal/sessionauth"
	"github.com/lildude/workouttracker/internal/sheets"
	"github.com/lildude/workouttracker/internal/strava"
)

const shutdownTimeout = 10 * time.Second

// App holds the wired components.
type App struct {
	cfg   *config.Config
	log   logrus.FieldLogger
	hc    *http.Client
	store database.Store
	cache cache.Cache

	// Pipeline runs extract, load and sync.
	Pipeline *pipeline.Orchestrator

	runner    tasks.Runner
	exchanger auth.CodeExchanger
	auth      *middleware.Auth
}

// New opens the store, loads the stored credentials and builds the pipeline.
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	a := &App{
		cfg: cfg,
		log: log,
		hc:  &http.Client{Timeout: cfg.UpstreamTimeout},
	}

	store, err := database.Open(ctx, cfg.DatabaseURL, cfg.InsertPolicy)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a.store = store

	if err := a.buildPipeline(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

// NewServer is New plus the Cognito session gate needed by Router.
func NewServer(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	a, err := New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := a.enableSessions(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) buildPipeline(ctx context.Context) error {
	var cred model.StravaCredential
	if err := a.store.GetCredential(ctx, model.CredentialStrava, &cred); err != nil {
		return fmt.Errorf("loading %s credential: %w", model.CredentialStrava, err)
	}
	creds := strava.NewCredentialManager(a.cfg.StravaClientID, a.cfg.StravaClientSecret, cred, a.store.SaveCredential, a.hc, a.log)
	baseURL, err := url.Parse(strava.BaseURL)
	if err != nil {
		return err
	}
	source := strava.NewClient(baseURL, creds, a.hc)

	var sa model.ServiceAccount
	if err := a.store.GetCredential(ctx, model.CredentialGSheet, &sa); err != nil {
		return fmt.Errorf("loading %s credential: %w", model.CredentialGSheet, err)
	}
	sheetClient, err := sheets.ServiceAccountClient(ctx, sa, a.hc)
	if err != nil {
		return err
	}
	writer, err := sheets.NewSheetWriter(ctx, sheetClient, a.cfg.SheetID, a.cfg.Worksheet)
	if err != nil {
		return err
	}
	sink := sheets.NewProjector(writer, a.cfg.ClearPolicy, a.log)

	opts := []pipeline.Option{pipeline.WithAccount(a.cfg.SyncAccount)}
	if a.cfg.RedisURL != "" {
		c, err := cache.NewRedisCache(ctx, a.cfg.RedisURL)
		if err != nil {
			return err
		}
		a.cache = c
		opts = append(opts, pipeline.WithLocker(pipeline.NewRedisLocker(c)), pipeline.WithReportCache(c))
	}

	a.Pipeline = pipeline.New(source, a.store, sink, a.log, opts...)
	a.runner = a.Pipeline
	return nil
}

func (a *App) enableSessions(ctx context.Context) error {
	idp := cognito.NewClient(cognito.Config{
		Host:         a.cfg.CognitoHost,
		ClientID:     a.cfg.CognitoClientID,
		ClientSecret: a.cfg.CognitoClientSecret,
		UserPoolID:   a.cfg.CognitoUserPoolID,
		RedirectURI:  a.cfg.CognitoRedirectURI,
		Region:       a.cfg.AWSRegion,
	}, a.hc)

	keys, err := jwks.Load(ctx, idp)
	if err != nil {
		return fmt.Errorf("loading session keys: %w", err)
	}
	a.exchanger = idp
	a.auth = middleware.NewAuth(sessionauth.New(keys, a.cfg.CognitoClientID), idp, a.log)
	return nil
}

// Router returns the HTTP routes. The pipeline routes require a session.
func (a *App) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", helloHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/auth", auth.AuthHandler(a.exchanger, a.log))
	mux.HandleFunc("/logout", auth.LogoutHandler)

	protected := map[string]http.Handler{
		"/extract":    tasks.ExtractHandler(a.runner, a.log),
		"/load":       tasks.LoadHandler(a.runner, a.log),
		"/sync":       tasks.SyncHandler(a.runner, a.log),
		"/activities": tasks.ActivitiesHandler(a.runner, a.log),
		"/status":     tasks.StatusHandler(a.runner, a.log),
	}
	for path, h := range protected {
		mux.Handle(path, a.auth.RequireSession(h))
	}
	return mux
}

// ListenAndServe serves Router on the configured port until ctx is done.
func (a *App) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", srv.Addr).Info("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases the store and cache connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close(ctx))
	}
	return errors.Join(errs...)
}

func helloHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Hello"})
}
