// Package tasks implements the handlers that trigger and report on the sync
// pipeline.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/lildude/workouttracker/internal/cache"
	"github.com/lildude/workouttracker/internal/model"
	"github.com/lildude/workouttracker/internal/pipeline"
)

// defaultAfterDaysAgo applies when after_days_ago is not given.
const defaultAfterDaysAgo = 1

// Runner is the pipeline as seen by the handlers.
type Runner interface {
	Extract(ctx context.Context, opts pipeline.ExtractOptions) (*pipeline.ExtractReport, error)
	Load(ctx context.Context) (*pipeline.LoadReport, error)
	Sync(ctx context.Context, opts pipeline.ExtractOptions) (*pipeline.SyncReport, error)
	Activities(ctx context.Context) ([]model.Activity, error)
	LastReport(ctx context.Context, op string) (*pipeline.Envelope, error)
}

type loadResponse struct {
	Status string               `json:"status"`
	Load   *pipeline.LoadReport `json:"load"`
}

// ExtractHandler pulls activities from Strava into the store.
func ExtractHandler(runner Runner, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := extractOptions(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		report, err := runner.Extract(r.Context(), opts)
		if err != nil {
			writeError(w, log, pipeline.OpExtract, err)
			return
		}
		writeJSON(w, log, pipeline.Envelope{Extract: report})
	}
}

// LoadHandler publishes the stored rides to the sheet.
func LoadHandler(runner Runner, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := runner.Load(r.Context())
		if err != nil {
			writeError(w, log, pipeline.OpLoad, err)
			return
		}
		writeJSON(w, log, loadResponse{Status: "success", Load: report})
	}
}

// SyncHandler runs an extract followed by a load.
func SyncHandler(runner Runner, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := extractOptions(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		report, err := runner.Sync(r.Context(), opts)
		if err != nil {
			writeError(w, log, pipeline.OpSync, err)
			return
		}
		writeJSON(w, log, pipeline.Envelope{Sync: report})
	}
}

// ActivitiesHandler lists the stored rides.
func ActivitiesHandler(runner Runner, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activities, err := runner.Activities(r.Context())
		if err != nil {
			writeError(w, log, "activities", err)
			return
		}
		if activities == nil {
			activities = []model.Activity{}
		}
		writeJSON(w, log, activities)
	}
}

// StatusHandler returns the last report of each operation that has run.
func StatusHandler(runner Runner, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]*pipeline.Envelope{}
		for _, op := range []string{pipeline.OpExtract, pipeline.OpLoad, pipeline.OpSync} {
			env, err := runner.LastReport(r.Context(), op)
			if errors.Is(err, cache.ErrCacheMiss) {
				continue
			}
			if err != nil {
				writeError(w, log, "status", err)
				return
			}
			status[op] = env
		}
		writeJSON(w, log, status)
	}
}

func extractOptions(r *http.Request) (pipeline.ExtractOptions, error) {
	q := r.URL.Query()
	after := defaultAfterDaysAgo
	opts := pipeline.ExtractOptions{AfterDaysAgo: &after}

	if v := q.Get("after_days_ago"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("invalid after_days_ago: %q", v)
		}
		after = n
	}
	if v := q.Get("before_days_ago"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("invalid before_days_ago: %q", v)
		}
		opts.BeforeDaysAgo = &n
	}
	return opts, nil
}

func writeError(w http.ResponseWriter, log logrus.FieldLogger, op string, err error) {
	if errors.Is(err, pipeline.ErrLocked) {
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		return
	}
	log.WithError(err).WithField("op", op).Error("request failed")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, log logrus.FieldLogger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("encoding response")
	}
}
