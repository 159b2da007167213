package db

import (
	"sync"
	"testing"
	"time"

	"ytgate/internal/config"
	"ytgate/internal/model"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

// setupTestDB creates a new in-memory SQLite database and returns a Service and the raw *gorm.DB.
func setupTestDB(t *testing.T) (Service, *gorm.DB) {
	service, err := NewService(config.DatabaseConfig{
		Type: "sqlite",
		DSN:  "file::memory:",
	})
	if err != nil {
		t.Fatalf("Failed to create test db service: %v", err)
	}
	return service, service.GetDB()
}

func testKey(key string, limit, used int) *model.APIKey {
	return &model.APIKey{
		Key:        key,
		DailyLimit: limit,
		UsedToday:  used,
		ExpiresAt:  time.Now().UTC().AddDate(0, 0, 30),
		Active:     true,
	}
}

func TestNewService(t *testing.T) {
	service, err := NewService(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	assert.NoError(t, err)
	assert.NotNil(t, service)

	_, err = NewService(config.DatabaseConfig{Type: "unsupported"})
	assert.Error(t, err)
}

func TestCreateAPIKey_Duplicate(t *testing.T) {
	service, _ := setupTestDB(t)

	err := service.CreateAPIKey(testKey("YT-AAAABBBBCCCC", 10, 0))
	assert.NoError(t, err)

	err = service.CreateAPIKey(testKey("YT-AAAABBBBCCCC", 20, 0))
	assert.ErrorIs(t, err, ErrKeyAlreadyExists)
}

func TestGetAPIKey(t *testing.T) {
	service, _ := setupTestDB(t)

	assert.NoError(t, service.CreateAPIKey(testKey("YT-GETME000000", 5, 2)))

	apiKey, err := service.GetAPIKey("YT-GETME000000")
	assert.NoError(t, err)
	assert.Equal(t, 5, apiKey.DailyLimit)
	assert.Equal(t, 2, apiKey.UsedToday)

	_, err = service.GetAPIKey("YT-MISSING00000")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestDeleteAPIKey(t *testing.T) {
	service, _ := setupTestDB(t)

	assert.NoError(t, service.CreateAPIKey(testKey("YT-DELETE000000", 5, 0)))

	// First delete succeeds, second reports not found.
	assert.NoError(t, service.DeleteAPIKey("YT-DELETE000000"))
	assert.ErrorIs(t, service.DeleteAPIKey("YT-DELETE000000"), ErrKeyNotFound)
}

func TestListAPIKeysByOwner(t *testing.T) {
	service, _ := setupTestDB(t)

	owner := int64(42)
	assigned := testKey("YT-OWNED0000000", 5, 0)
	assigned.OwnerID = &owner
	assert.NoError(t, service.CreateAPIKey(assigned))
	assert.NoError(t, service.CreateAPIKey(testKey("YT-UNOWNED00000", 5, 0)))

	keys, err := service.ListAPIKeysByOwner(owner)
	assert.NoError(t, err)
	assert.Len(t, keys, 1)
	assert.Equal(t, "YT-OWNED0000000", keys[0].Key)

	keys, err = service.ListAPIKeysByOwner(99)
	assert.NoError(t, err)
	assert.Empty(t, keys)
}

func TestListAPIKeysPaginated(t *testing.T) {
	service, _ := setupTestDB(t)

	assert.NoError(t, service.CreateAPIKey(testKey("YT-PAGE00000001", 5, 0)))
	assert.NoError(t, service.CreateAPIKey(testKey("YT-PAGE00000002", 5, 0)))
	assert.NoError(t, service.CreateAPIKey(testKey("YT-PAGE00000003", 5, 0)))

	keys, total, err := service.ListAPIKeysPaginated(0, 2)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, keys, 2)

	keys, total, err = service.ListAPIKeysPaginated(2, 2)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, keys, 1)
}

func TestConsumeAPIKeyUsage_Boundary(t *testing.T) {
	service, db := setupTestDB(t)

	assert.NoError(t, service.CreateAPIKey(testKey("YT-BOUNDARY0000", 3, 2)))

	// One unit left: the increment is admitted and lands exactly on the limit.
	admitted, err := service.ConsumeAPIKeyUsage("YT-BOUNDARY0000")
	assert.NoError(t, err)
	assert.True(t, admitted)

	var apiKey model.APIKey
	db.First(&apiKey, "key = ?", "YT-BOUNDARY0000")
	assert.Equal(t, 3, apiKey.UsedToday)

	// At the limit: rejected, counter untouched.
	admitted, err = service.ConsumeAPIKeyUsage("YT-BOUNDARY0000")
	assert.NoError(t, err)
	assert.False(t, admitted)

	db.First(&apiKey, "key = ?", "YT-BOUNDARY0000")
	assert.Equal(t, 3, apiKey.UsedToday)
}

func TestConsumeAPIKeyUsage_MissingKey(t *testing.T) {
	service, _ := setupTestDB(t)

	admitted, err := service.ConsumeAPIKeyUsage("YT-NOSUCHKEY000")
	assert.NoError(t, err)
	assert.False(t, admitted)
}

func TestConsumeAPIKeyUsage_Concurrent(t *testing.T) {
	service, db := setupTestDB(t)

	// Serialize connections so in-memory sqlite does not return busy errors;
	// the admission guarantee itself comes from the conditional UPDATE.
	sqlDB, err := db.DB()
	assert.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	assert.NoError(t, service.CreateAPIKey(testKey("YT-CONCURRENT00", 10, 9)))

	const workers = 50
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted, err := service.ConsumeAPIKeyUsage("YT-CONCURRENT00")
			assert.NoError(t, err)
			results <- admitted
		}()
	}
	wg.Wait()
	close(results)

	admittedCount := 0
	for admitted := range results {
		if admitted {
			admittedCount++
		}
	}
	if admittedCount != 1 {
		t.Errorf("Expected exactly 1 admission for the last unit of quota, got %d", admittedCount)
	}

	var apiKey model.APIKey
	db.First(&apiKey, "key = ?", "YT-CONCURRENT00")
	assert.Equal(t, 10, apiKey.UsedToday)
}

func TestResetAllAPIKeyUsage(t *testing.T) {
	service, db := setupTestDB(t)

	assert.NoError(t, service.CreateAPIKey(testKey("YT-RESET0000001", 10, 7)))
	assert.NoError(t, service.CreateAPIKey(testKey("YT-RESET0000002", 10, 1)))
	assert.NoError(t, service.CreateAPIKey(testKey("YT-RESET0000003", 10, 0)))

	count, err := service.ResetAllAPIKeyUsage()
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)

	var keys []model.APIKey
	db.Find(&keys)
	for _, key := range keys {
		assert.Equal(t, 0, key.UsedToday)
	}
}
