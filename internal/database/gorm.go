package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgtype"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lildude/workouttracker/internal/model"
)

// activityRow keeps the full activity document in Payload and copies the
// queryable fields into their own columns.
type activityRow struct {
	gorm.Model
	StravaID int64 `gorm:"index"`
	Name     string
	Type     string       `gorm:"index"`
	Payload  pgtype.JSONB `gorm:"type:jsonb;default:'{}'"`
}

func (activityRow) TableName() string { return "activities" }

type credentialRow struct {
	gorm.Model
	Name  string       `gorm:"uniqueIndex"`
	Value pgtype.JSONB `gorm:"type:jsonb;default:'{}'"`
}

func (credentialRow) TableName() string { return "credentials" }

var filterColumns = map[string]string{
	"id":   "strava_id",
	"name": "name",
	"type": "type",
}

// GormStore is a Store backed by a relational database.
type GormStore struct {
	db     *gorm.DB
	policy InsertPolicy
}

// OpenPostgres connects to PostgreSQL and migrates the schema.
func OpenPostgres(dsn string, policy InsertPolicy) (*GormStore, error) {
	return openGorm(postgres.Open(dsn), policy)
}

// OpenSQLite opens a SQLite database file, or ":memory:", and migrates the schema.
func OpenSQLite(path string, policy InsertPolicy) (*GormStore, error) {
	return openGorm(sqlite.Open(path), policy)
}

func openGorm(dialector gorm.Dialector, policy InsertPolicy) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	return NewGormStore(db, policy)
}

// NewGormStore wraps an open connection and migrates the schema.
func NewGormStore(db *gorm.DB, policy InsertPolicy) (*GormStore, error) {
	if err := db.AutoMigrate(&activityRow{}, &credentialRow{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	if policy == "" {
		policy = InsertAppend
	}
	return &GormStore{db: db, policy: policy}, nil
}

func (s *GormStore) SaveActivities(ctx context.Context, activities []model.Activity) []model.InsertResult {
	out := make([]model.InsertResult, 0, len(activities))
	for _, a := range activities {
		id, err := s.saveActivity(ctx, a)
		if err != nil {
			out = append(out, failed(a, err))
			continue
		}
		out = append(out, model.InsertResult{Name: a.Name, ID: strconv.FormatUint(uint64(id), 10)})
	}
	return out
}

func (s *GormStore) saveActivity(ctx context.Context, a model.Activity) (uint, error) {
	var payload pgtype.JSONB
	if err := payload.Set(a); err != nil {
		return 0, fmt.Errorf("encoding activity: %w", err)
	}

	db := s.db.WithContext(ctx)
	row := activityRow{}
	if s.policy == InsertUpsert {
		err := db.Where("strava_id = ?", a.ID).First(&row).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	}
	row.StravaID = a.ID
	row.Name = a.Name
	row.Type = a.Type
	row.Payload = payload

	if err := db.Save(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *GormStore) FindActivities(ctx context.Context, f model.Filter) ([]model.Activity, error) {
	col, ok := filterColumns[f.Field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, f.Field)
	}

	var rows []activityRow
	err := s.db.WithContext(ctx).Where(col+" IN ?", f.Values).Order("id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("finding activities: %w", err)
	}

	activities := make([]model.Activity, 0, len(rows))
	for _, r := range rows {
		var a model.Activity
		if err := r.Payload.AssignTo(&a); err != nil {
			return nil, fmt.Errorf("decoding activity %d: %w", r.ID, err)
		}
		a.StoreID = strconv.FormatUint(uint64(r.ID), 10)
		activities = append(activities, a)
	}
	return activities, nil
}

func (s *GormStore) GetCredential(ctx context.Context, name string, v any) error {
	row, err := s.credential(ctx, name)
	if err != nil {
		return err
	}
	if err := row.Value.AssignTo(v); err != nil {
		return fmt.Errorf("decoding credential %s: %w", name, err)
	}
	return nil
}

func (s *GormStore) SaveCredential(ctx context.Context, name string, v any) error {
	row, err := s.credential(ctx, name)
	if err != nil {
		return err
	}
	if err := row.Value.Set(v); err != nil {
		return fmt.Errorf("encoding credential %s: %w", name, err)
	}
	return s.db.WithContext(ctx).Model(row).Update("value", row.Value).Error
}

func (s *GormStore) credential(ctx context.Context, name string) (*credentialRow, error) {
	var row credentialRow
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("getting credential %s: %w", name, err)
	}
	return &row, nil
}

func (s *GormStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
