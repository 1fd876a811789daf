// Package database stores extracted activities and the service credentials
// the pipeline runs with.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lildude/workouttracker/internal/model"
)

const databaseName = "workouttracker"

var (
	// ErrCredentialNotFound is returned when no credential is stored under a name.
	ErrCredentialNotFound = errors.New("database: credential not found")
	// ErrUnsupportedFilter is returned for filters on fields that are not queryable.
	ErrUnsupportedFilter = errors.New("database: unsupported filter field")
	// ErrUnsupportedDSN is returned by Open for unknown connection string schemes.
	ErrUnsupportedDSN = errors.New("database: unsupported connection string")
)

// InsertPolicy decides what happens when an activity is stored twice.
type InsertPolicy string

const (
	// InsertAppend stores every record as a new document, duplicates included.
	InsertAppend InsertPolicy = "append"
	// InsertUpsert replaces the stored activity with the same Strava id.
	InsertUpsert InsertPolicy = "upsert"
)

// ParseInsertPolicy returns the policy named by s. Empty means InsertAppend.
func ParseInsertPolicy(s string) (InsertPolicy, error) {
	switch p := InsertPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return InsertAppend, nil
	case InsertAppend, InsertUpsert:
		return p, nil
	default:
		return "", fmt.Errorf("unknown insert policy %q", s)
	}
}

// Store is the persistence used by the pipeline.
type Store interface {
	// SaveActivities stores each activity independently. A failure is reported
	// in that record's result and never stops the batch.
	SaveActivities(ctx context.Context, activities []model.Activity) []model.InsertResult
	// FindActivities returns the activities matching f in insertion order.
	FindActivities(ctx context.Context, f model.Filter) ([]model.Activity, error)
	// GetCredential decodes the credential stored under name into v.
	GetCredential(ctx context.Context, name string, v any) error
	// SaveCredential replaces the value of an existing credential.
	SaveCredential(ctx context.Context, name string, v any) error
	Close(ctx context.Context) error
}

// Open connects to the store named by dsn:
//
//	mongodb://... or mongodb+srv://...  MongoDB
//	postgres://... or postgresql://...  PostgreSQL
//	sqlite:path or sqlite::memory:       SQLite
func Open(ctx context.Context, dsn string, policy InsertPolicy) (Store, error) {
	var (
		s   Store
		err error
	)
	switch {
	case strings.HasPrefix(dsn, "mongodb://"), strings.HasPrefix(dsn, "mongodb+srv://"):
		s, err = NewMongoStore(ctx, dsn, policy)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		s, err = OpenPostgres(dsn, policy)
	case strings.HasPrefix(dsn, "sqlite:"):
		s, err = OpenSQLite(strings.TrimPrefix(dsn, "sqlite:"), policy)
	default:
		return nil, ErrUnsupportedDSN
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func failed(a model.Activity, err error) model.InsertResult {
	return model.InsertResult{Name: a.Name, Err: err.Error()}
}
