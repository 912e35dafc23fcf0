package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tempmon/models"
)

var _ Store = (*GormStore)(nil)

type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

// OpenGorm connects using the named driver ("postgres" or "sqlite").
func OpenGorm(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db handle: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// Migrate creates the samples and predictions tables if they are missing.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&models.Sample{}, &models.Prediction{})
}

func (s *GormStore) AppendSample(ctx context.Context, cpuTemp, batteryTemp float64) (models.Sample, error) {
	sample := models.Sample{
		Timestamp:   s.now().UTC(),
		CPUTemp:     cpuTemp,
		BatteryTemp: batteryTemp,
	}
	if err := s.db.WithContext(ctx).Create(&sample).Error; err != nil {
		return models.Sample{}, fmt.Errorf("insert sample: %w", err)
	}
	return sample, nil
}

func (s *GormStore) ListSamples(ctx context.Context, q Query) ([]models.Sample, error) {
	var rows []models.Sample
	if err := s.query(ctx, &models.Sample{}, q).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	return rows, nil
}

func (s *GormStore) AppendPrediction(ctx context.Context, p models.Prediction) (models.Prediction, error) {
	p.ID = 0
	p.Timestamp = p.Timestamp.UTC()
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return models.Prediction{}, fmt.Errorf("insert prediction: %w", err)
	}
	return p, nil
}

func (s *GormStore) ListPredictions(ctx context.Context, q Query) ([]models.Prediction, error) {
	var rows []models.Prediction
	if err := s.query(ctx, &models.Prediction{}, q).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	return rows, nil
}

func (s *GormStore) query(ctx context.Context, model interface{}, q Query) *gorm.DB {
	dir := q.Order.sql()
	query := s.db.WithContext(ctx).Model(model).Order("timestamp " + dir).Order("id " + dir)
	if q.Before != nil {
		query = query.Where("timestamp < ?", q.Before.UTC())
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	return query
}
