package db

import (
	"errors"
	"fmt"

	"ytgate/internal/config"
	"ytgate/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	// ErrKeyNotFound is returned when no APIKey record matches the lookup.
	ErrKeyNotFound = errors.New("api key not found")
	// ErrKeyAlreadyExists is returned when inserting a key string that is
	// already present in the store.
	ErrKeyAlreadyExists = errors.New("api key already exists")
)

// Service defines the interface for the key store. It decouples the lifecycle
// engine, the quota gate and the scheduler from the concrete gorm
// implementation and allows mocking in tests.
type Service interface {
	CreateAPIKey(key *model.APIKey) error
	GetAPIKey(key string) (*model.APIKey, error)
	ListAPIKeys() ([]model.APIKey, error)
	ListAPIKeysPaginated(offset, limit int) ([]model.APIKey, int64, error)
	ListAPIKeysByOwner(ownerID int64) ([]model.APIKey, error)
	DeleteAPIKey(key string) error
	ConsumeAPIKeyUsage(key string) (bool, error)
	ResetAllAPIKeyUsage() (int64, error)
	GetDB() *gorm.DB
}

type gormService struct {
	db *gorm.DB
}

// NewService opens the configured database, migrates the schema and returns a
// Service backed by it.
func NewService(cfg config.DatabaseConfig) (Service, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := gormDB.AutoMigrate(&model.APIKey{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return &gormService{db: gormDB}, nil
}

// GetDB exposes the underlying gorm handle. Intended for tests and migrations.
func (s *gormService) GetDB() *gorm.DB {
	return s.db
}

// CreateAPIKey inserts a new key record. The unique index on the key column is
// the source of truth for uniqueness; a duplicate insert is reported as
// ErrKeyAlreadyExists so the caller can regenerate and retry.
func (s *gormService) CreateAPIKey(key *model.APIKey) error {
	result := s.db.Where(model.APIKey{Key: key.Key}).Attrs(key).FirstOrCreate(key)
	if result.Error != nil {
		return fmt.Errorf("failed to create api key: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrKeyAlreadyExists
	}
	return nil
}

func (s *gormService) GetAPIKey(key string) (*model.APIKey, error) {
	var apiKey model.APIKey
	result := s.db.Where("key = ?", key).First(&apiKey)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to load api key: %w", result.Error)
	}
	return &apiKey, nil
}

func (s *gormService) ListAPIKeys() ([]model.APIKey, error) {
	var keys []model.APIKey
	if err := s.db.Order("id asc").Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

// ListAPIKeysPaginated returns one page of keys plus the total record count.
func (s *gormService) ListAPIKeysPaginated(offset, limit int) ([]model.APIKey, int64, error) {
	var keys []model.APIKey
	var total int64

	if err := s.db.Model(&model.APIKey{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count api keys: %w", err)
	}
	if err := s.db.Order("id asc").Offset(offset).Limit(limit).Find(&keys).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, total, nil
}

func (s *gormService) ListAPIKeysByOwner(ownerID int64) ([]model.APIKey, error) {
	var keys []model.APIKey
	if err := s.db.Where("owner_id = ?", ownerID).Order("id asc").Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("failed to list api keys for owner %d: %w", ownerID, err)
	}
	return keys, nil
}

// DeleteAPIKey removes the record permanently. Expired keys are kept until an
// explicit delete, so this is a hard delete rather than gorm's soft delete.
func (s *gormService) DeleteAPIKey(key string) error {
	result := s.db.Unscoped().Where("key = ?", key).Delete(&model.APIKey{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete api key: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// ConsumeAPIKeyUsage atomically increments used_today by one, but only while
// the counter is still below the daily limit. It returns false when the
// conditional update matched no row, which means the quota is exhausted (or
// the key vanished between the caller's read and this update). Concurrent
// calls can never push the counter past the limit because the guard and the
// increment are a single UPDATE statement.
func (s *gormService) ConsumeAPIKeyUsage(key string) (bool, error) {
	result := s.db.Model(&model.APIKey{}).
		Where("key = ? AND used_today < daily_limit", key).
		UpdateColumn("used_today", gorm.Expr("used_today + 1"))
	if result.Error != nil {
		return false, fmt.Errorf("failed to increment usage for api key: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ResetAllAPIKeyUsage resets the usage counter of all API keys to 0 and
// returns the number of records that were updated.
func (s *gormService) ResetAllAPIKeyUsage() (int64, error) {
	result := s.db.Model(&model.APIKey{}).Where("used_today > 0").Update("used_today", 0)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset api key usage: %w", result.Error)
	}
	return result.RowsAffected, nil
}
