package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/carvik/geodex/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// RecordStore persists aggregated geo records. Append-only: the API
// exposes no update or delete.
type RecordStore interface {
	Create(ctx context.Context, rec *models.Record) error
	List(ctx context.Context, limit int) ([]models.Record, error)
	Get(ctx context.Context, id int) (*models.Record, error)
}

// CodeRegistry tracks consumed one-time authorization codes.
// MarkConsumed returns false when the code was seen before.
type CodeRegistry interface {
	MarkConsumed(ctx context.Context, code string) (bool, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// GormRecordStore is the Postgres-backed RecordStore.
type GormRecordStore struct {
	db *gorm.DB
}

func NewGormRecordStore(db *gorm.DB) *GormRecordStore {
	return &GormRecordStore{db: db}
}

func (s *GormRecordStore) Create(ctx context.Context, rec *models.Record) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

func (s *GormRecordStore) List(ctx context.Context, limit int) ([]models.Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var recs []models.Record
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return recs, nil
}

func (s *GormRecordStore) Get(ctx context.Context, id int) (*models.Record, error) {
	var rec models.Record
	err := s.db.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &rec, nil
}

// GormCodeRegistry is the Postgres-backed CodeRegistry. Consumed codes
// only need to outlive the provider-side code lifetime, so rows carry
// a short expiry and get purged by the cleanup job.
type GormCodeRegistry struct {
	db  *gorm.DB
	ttl time.Duration
}

func NewGormCodeRegistry(db *gorm.DB) *GormCodeRegistry {
	return &GormCodeRegistry{db: db, ttl: time.Hour}
}

func (r *GormCodeRegistry) MarkConsumed(ctx context.Context, code string) (bool, error) {
	row := models.ConsumedCode{
		Code:      code,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(r.ttl),
	}
	err := r.db.WithContext(ctx).Create(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to register consumed code: %w", err)
	}
	return true, nil
}

func (r *GormCodeRegistry) PurgeExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("expires_at < ?", time.Now()).Delete(&models.ConsumedCode{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge consumed codes: %w", result.Error)
	}
	return result.RowsAffected, nil
}
