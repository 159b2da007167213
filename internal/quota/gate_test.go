package quota

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"ytgate/internal/config"
	"ytgate/internal/db"
	"ytgate/internal/model"

	"github.com/stretchr/testify/assert"
)

func setupGate(t *testing.T) (*Gate, db.Service) {
	dbService, err := db.NewService(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	if err != nil {
		t.Fatalf("Failed to create test db service: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGate(dbService, logger), dbService
}

func createKey(t *testing.T, dbService db.Service, key *model.APIKey) {
	if err := dbService.CreateAPIKey(key); err != nil {
		t.Fatalf("Failed to create test key: %v", err)
	}
}

func TestAuthorize_InvalidKey(t *testing.T) {
	gate, _ := setupGate(t)

	_, err := gate.Authorize("YT-DOESNOTEXIST", time.Now().UTC())
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestAuthorize_Inactive(t *testing.T) {
	gate, dbService := setupGate(t)
	now := time.Now().UTC()

	createKey(t, dbService, &model.APIKey{
		Key:        "YT-INACTIVE0000",
		DailyLimit: 10,
		ExpiresAt:  now.AddDate(0, 0, 30),
		Active:     false,
	})

	_, err := gate.Authorize("YT-INACTIVE0000", now)
	assert.ErrorIs(t, err, ErrInactive)
}

func TestAuthorize_Expired(t *testing.T) {
	gate, dbService := setupGate(t)
	now := time.Now().UTC()

	createKey(t, dbService, &model.APIKey{
		Key:        "YT-EXPIRED00000",
		DailyLimit: 10,
		ExpiresAt:  now.Add(-time.Hour),
		Active:     true,
	})

	_, err := gate.Authorize("YT-EXPIRED00000", now)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestAuthorize_ExpiryBoundaryInstant(t *testing.T) {
	gate, dbService := setupGate(t)
	expiry := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	createKey(t, dbService, &model.APIKey{
		Key:        "YT-ONBOUNDARY00",
		DailyLimit: 10,
		ExpiresAt:  expiry,
		Active:     true,
	})

	// Just before the boundary the key is valid.
	_, err := gate.Authorize("YT-ONBOUNDARY00", expiry.Add(-time.Second))
	assert.NoError(t, err)

	// The exact boundary instant counts as expired.
	_, err = gate.Authorize("YT-ONBOUNDARY00", expiry)
	assert.ErrorIs(t, err, ErrExpired)

	_, err = gate.Authorize("YT-ONBOUNDARY00", expiry.Add(time.Second))
	assert.ErrorIs(t, err, ErrExpired)
}

func TestAuthorize_InactiveReportedBeforeExpiry(t *testing.T) {
	gate, dbService := setupGate(t)
	now := time.Now().UTC()

	// Both inactive and expired: the check order makes inactive win.
	createKey(t, dbService, &model.APIKey{
		Key:        "YT-DEADANDGONE0",
		DailyLimit: 10,
		ExpiresAt:  now.Add(-time.Hour),
		Active:     false,
	})

	_, err := gate.Authorize("YT-DEADANDGONE0", now)
	assert.ErrorIs(t, err, ErrInactive)
}

func TestAuthorize_LimitBoundary(t *testing.T) {
	gate, dbService := setupGate(t)
	now := time.Now().UTC()

	createKey(t, dbService, &model.APIKey{
		Key:        "YT-LASTUNIT0000",
		DailyLimit: 5,
		UsedToday:  4,
		ExpiresAt:  now.AddDate(0, 0, 30),
		Active:     true,
	})

	// One unit left: admitted, and the returned record is pre-increment.
	apiKey, err := gate.Authorize("YT-LASTUNIT0000", now)
	assert.NoError(t, err)
	assert.Equal(t, 4, apiKey.UsedToday)

	stored, err := dbService.GetAPIKey("YT-LASTUNIT0000")
	assert.NoError(t, err)
	assert.Equal(t, 5, stored.UsedToday)

	// At the limit: rejected.
	_, err = gate.Authorize("YT-LASTUNIT0000", now)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestAuthorize_ConcurrentLastUnit(t *testing.T) {
	gate, dbService := setupGate(t)
	now := time.Now().UTC()

	sqlDB, err := dbService.GetDB().DB()
	assert.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	createKey(t, dbService, &model.APIKey{
		Key:        "YT-RACEFORLAST0",
		DailyLimit: 20,
		UsedToday:  19,
		ExpiresAt:  now.AddDate(0, 0, 30),
		Active:     true,
	})

	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, limited := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gate.Authorize("YT-RACEFORLAST0", now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case err == ErrLimitExceeded:
				limited++
			default:
				t.Errorf("Unexpected error from Authorize: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("Expected exactly 1 successful authorization, got %d", succeeded)
	}
	if limited != workers-1 {
		t.Errorf("Expected %d LimitExceeded rejections, got %d", workers-1, limited)
	}

	stored, err := dbService.GetAPIKey("YT-RACEFORLAST0")
	assert.NoError(t, err)
	assert.Equal(t, 20, stored.UsedToday)
}

func TestAuthorize_FullQuotaLifecycle(t *testing.T) {
	gate, dbService := setupGate(t)
	now := time.Now().UTC()

	createKey(t, dbService, &model.APIKey{
		Key:        "YT-SCENARIO0000",
		DailyLimit: 100,
		ExpiresAt:  now.AddDate(0, 0, 30),
		Active:     true,
	})

	// The full daily quota is admitted...
	for i := 0; i < 100; i++ {
		apiKey, err := gate.Authorize("YT-SCENARIO0000", now)
		assert.NoError(t, err)
		assert.Equal(t, i, apiKey.UsedToday)
	}

	// ...the 101st request is not...
	_, err := gate.Authorize("YT-SCENARIO0000", now)
	assert.ErrorIs(t, err, ErrLimitExceeded)

	stored, err := dbService.GetAPIKey("YT-SCENARIO0000")
	assert.NoError(t, err)
	assert.Equal(t, 100, stored.UsedToday)

	// ...and after the daily reset the key admits requests again.
	_, err = dbService.ResetAllAPIKeyUsage()
	assert.NoError(t, err)

	apiKey, err := gate.Authorize("YT-SCENARIO0000", now)
	assert.NoError(t, err)
	assert.Equal(t, 0, apiKey.UsedToday)
}
