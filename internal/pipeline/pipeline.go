// Package pipeline runs the extract, load and sync operations that move
// activities from Strava to the store and from the store to the sheet.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/lildude/workouttracker/internal/cache"
	"github.com/lildude/workouttracker/internal/metrics"
	"github.com/lildude/workouttracker/internal/model"
	"github.com/lildude/workouttracker/internal/strava"
)

// Operation names, used in reports, metrics and lock keys.
const (
	OpExtract = "extract"
	OpLoad    = "load"
	OpSync    = "sync"
)

const (
	secondsPerDay  = 24 * 60 * 60
	defaultLockTTL = 10 * time.Minute
)

// ActivityLister pages through the athlete's activities.
type ActivityLister interface {
	ListActivities(ctx context.Context, page int, opts strava.ListOptions) ([]model.Activity, error)
}

// ActivityStore is the part of the store the pipeline writes and reads.
type ActivityStore interface {
	SaveActivities(ctx context.Context, activities []model.Activity) []model.InsertResult
	FindActivities(ctx context.Context, f model.Filter) ([]model.Activity, error)
}

// SheetSaver publishes activities.
type SheetSaver interface {
	SaveActivities(ctx context.Context, activities []model.Activity) error
}

// ExtractOptions bound the activities fetched from Strava. The DaysAgo
// fields are relative to now and are only applied when set.
type ExtractOptions struct {
	AfterDaysAgo  *int
	BeforeDaysAgo *int
	PerPage       int
}

func (o ExtractOptions) key() string {
	s := fmt.Sprintf("per_page=%d", o.PerPage)
	if o.AfterDaysAgo != nil {
		s += fmt.Sprintf(",after_days_ago=%d", *o.AfterDaysAgo)
	}
	if o.BeforeDaysAgo != nil {
		s += fmt.Sprintf(",before_days_ago=%d", *o.BeforeDaysAgo)
	}
	return s
}

// listOptions converts the relative bounds into epoch seconds.
func (o ExtractOptions) listOptions(now time.Time) strava.ListOptions {
	lo := strava.ListOptions{PerPage: o.PerPage}
	if o.AfterDaysAgo != nil {
		lo.After = now.Unix() - int64(*o.AfterDaysAgo)*secondsPerDay
	}
	if o.BeforeDaysAgo != nil {
		lo.Before = now.Unix() - int64(*o.BeforeDaysAgo)*secondsPerDay
	}
	return lo
}

// Orchestrator runs the pipeline for one account. Concurrent identical calls
// share a single run and any run excludes every other run for the account.
type Orchestrator struct {
	source  ActivityLister
	store   ActivityStore
	sink    SheetSaver
	locker  Locker
	reports cache.Cache
	account string
	lockTTL time.Duration
	log     logrus.FieldLogger
	now     func() time.Time
	group   singleflight.Group
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLocker replaces the default in-process locker.
func WithLocker(l Locker) Option { return func(o *Orchestrator) { o.locker = l } }

// WithReportCache keeps the last report of each operation in c.
func WithReportCache(c cache.Cache) Option { return func(o *Orchestrator) { o.reports = c } }

// WithAccount sets the account the lock and reports are keyed on.
func WithAccount(account string) Option { return func(o *Orchestrator) { o.account = account } }

// WithLockTTL bounds how long a crashed run can hold the lock.
func WithLockTTL(d time.Duration) Option { return func(o *Orchestrator) { o.lockTTL = d } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// New returns an Orchestrator.
func New(source ActivityLister, store ActivityStore, sink SheetSaver, log logrus.FieldLogger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:  source,
		store:   store,
		sink:    sink,
		locker:  NewLocalLocker(),
		account: "default",
		lockTTL: defaultLockTTL,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Extract fetches every page of activities matching opts and stores them.
func (o *Orchestrator) Extract(ctx context.Context, opts ExtractOptions) (*ExtractReport, error) {
	return run(ctx, o, OpExtract, opts.key(), func(ctx context.Context) (*ExtractReport, error) {
		return o.extract(ctx, opts)
	})
}

// Load publishes the stored rides to the sheet.
func (o *Orchestrator) Load(ctx context.Context) (*LoadReport, error) {
	return run(ctx, o, OpLoad, "", o.load)
}

// Sync runs an extract followed by a load under a single lock.
func (o *Orchestrator) Sync(ctx context.Context, opts ExtractOptions) (*SyncReport, error) {
	return run(ctx, o, OpSync, opts.key(), func(ctx context.Context) (*SyncReport, error) {
		sw := newStopwatch(o.now)
		ex, err := o.extract(ctx, opts)
		if err != nil {
			return nil, err
		}
		sw.mark()
		ld, err := o.load(ctx)
		if err != nil {
			return nil, err
		}
		sw.mark()
		return &SyncReport{
			Timings: sw.timings(),
			Deltas:  sw.deltas(),
			Results: []Envelope{{Extract: ex}, {Load: ld}},
		}, nil
	})
}

// Activities returns the stored rides without publishing them.
func (o *Orchestrator) Activities(ctx context.Context) ([]model.Activity, error) {
	activities, err := o.store.FindActivities(ctx, model.RideTypes)
	if err != nil {
		return nil, fmt.Errorf("finding rides: %w", err)
	}
	return activities, nil
}

// LastReport decodes the most recent report of op. It returns
// cache.ErrCacheMiss when no report cache is configured or op never ran.
func (o *Orchestrator) LastReport(ctx context.Context, op string) (*Envelope, error) {
	if o.reports == nil {
		return nil, cache.ErrCacheMiss
	}
	var env Envelope
	if err := o.reports.GetJSON(ctx, o.reportKey(op), &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (o *Orchestrator) extract(ctx context.Context, opts ExtractOptions) (*ExtractReport, error) {
	sw := newStopwatch(o.now)
	lo := opts.listOptions(o.now())
	sw.mark()

	var all []model.Activity
	for page := 1; ; page++ {
		activities, err := o.source.ListActivities(ctx, page, lo)
		if err != nil {
			return nil, err
		}
		o.log.WithFields(logrus.Fields{"page": page, "count": len(activities)}).Debug("listed activities")
		if len(activities) == 0 {
			break
		}
		all = append(all, activities...)
	}
	sw.mark()
	metrics.AddActivities("extracted", len(all))

	results := o.store.SaveActivities(ctx, all)
	sw.mark()

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
			o.log.WithFields(logrus.Fields{"name": r.Name, "error": r.Err}).Warn("failed to store activity")
		}
	}
	metrics.AddActivities("stored", len(results)-failed)
	metrics.AddActivities("failed", failed)
	o.log.WithFields(logrus.Fields{"total": len(all), "failed": failed}).Info("extracted activities")

	return &ExtractReport{Timings: sw.timings(), Deltas: sw.deltas(), Activities: results}, nil
}

func (o *Orchestrator) load(ctx context.Context) (*LoadReport, error) {
	sw := newStopwatch(o.now)
	sw.mark()

	activities, err := o.store.FindActivities(ctx, model.RideTypes)
	if err != nil {
		return nil, fmt.Errorf("finding rides: %w", err)
	}
	sw.mark()

	if err := o.sink.SaveActivities(ctx, activities); err != nil {
		return nil, err
	}
	sw.mark()

	metrics.AddActivities("loaded", len(activities))
	o.log.WithField("rows", len(activities)).Info("loaded activities")

	return &LoadReport{Timings: sw.timings(), Deltas: sw.deltas(), Rows: len(activities)}, nil
}

// run executes fn once per identical in-flight call while holding the
// account lock, then records the outcome. The shared run is detached from
// the caller's cancellation so one caller going away does not fail the
// others; each caller still stops waiting when its own ctx is done.
func run[T any](ctx context.Context, o *Orchestrator, op, key string, fn func(context.Context) (*T, error)) (*T, error) {
	ch := o.group.DoChan(op+"|"+o.account+"|"+key, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		release, err := o.locker.Acquire(ctx, o.account, o.lockTTL)
		if err != nil {
			if errors.Is(err, ErrLocked) {
				metrics.RecordLockContention()
			}
			return nil, err
		}
		defer func() {
			if err := release(ctx); err != nil {
				o.log.WithError(err).Warn("failed to release lock")
			}
		}()

		start := o.now()
		r, err := fn(ctx)
		metrics.ObserveStage(op, o.now().Sub(start), err)
		if err != nil {
			o.log.WithError(err).WithField("op", op).Error("pipeline run failed")
			return nil, err
		}
		metrics.RecordSuccess(op, o.now())
		o.saveReport(ctx, op, r)
		return r, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*T), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) saveReport(ctx context.Context, op string, r any) {
	if o.reports == nil {
		return
	}
	var env Envelope
	switch v := r.(type) {
	case *ExtractReport:
		env.Extract = v
	case *LoadReport:
		env.Load = v
	case *SyncReport:
		env.Sync = v
	}
	if err := o.reports.SetJSON(ctx, o.reportKey(op), env); err != nil {
		o.log.WithError(err).WithField("op", op).Warn("failed to store report")
	}
}

func (o *Orchestrator) reportKey(op string) string {
	return "report:" + o.account + ":" + op
}
