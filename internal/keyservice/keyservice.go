package keyservice

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ytgate/internal/db"
	"ytgate/internal/model"
	"ytgate/internal/notify"
)

const (
	// keyPrefix is the fixed prefix of every issued key.
	keyPrefix = "YT-"
	// keySuffixLength is the number of random characters after the prefix.
	keySuffixLength = 12
	// maxGenerateAttempts bounds the retry loop on a uniqueness collision.
	maxGenerateAttempts = 5

	keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var (
	// ErrInvalidLimit is returned when the daily limit is not a positive integer.
	ErrInvalidLimit = errors.New("daily limit must be a positive integer")
	// ErrInvalidTTL is returned when the key lifetime is not a positive number of days.
	ErrInvalidTTL = errors.New("ttl days must be a positive integer")
)

// Service is the key lifecycle engine: it creates, assigns, revokes and lists
// API keys against the store. It is safe for concurrent use; all state lives
// in the store.
type Service struct {
	db       db.Service
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// AssignResult reports the outcome of an Assign call.
type AssignResult struct {
	Key *model.APIKey
	// ReplacedKey is the key string that was revoked to make room for the new
	// one, empty if the owner had no key before.
	ReplacedKey string
	// NotifyWarning carries a best-effort notification failure. The assignment
	// itself succeeded; the caller should surface this as a warning only.
	NotifyWarning string
}

// NewService creates a new lifecycle engine.
func NewService(dbService db.Service, notifier notify.Notifier, logger *slog.Logger) *Service {
	return &Service{
		db:       dbService,
		notifier: notifier,
		logger:   logger.With("component", "keyservice"),
		now:      time.Now,
	}
}

// generateKeyString produces a key of the form YT-XXXXXXXXXXXX with a random
// uppercase alphanumeric suffix.
func generateKeyString() (string, error) {
	buf := make([]byte, keySuffixLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return keyPrefix + string(buf), nil
}

func validate(limit, ttlDays int) error {
	if limit <= 0 {
		return ErrInvalidLimit
	}
	if ttlDays <= 0 {
		return ErrInvalidTTL
	}
	return nil
}

// create inserts a new key record, retrying with a fresh key string if the
// generated one collides with an existing record.
func (s *Service) create(ownerID *int64, limit, ttlDays int) (*model.APIKey, error) {
	now := s.now().UTC()
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		keyStr, err := generateKeyString()
		if err != nil {
			return nil, err
		}
		apiKey := &model.APIKey{
			Key:        keyStr,
			OwnerID:    ownerID,
			DailyLimit: limit,
			UsedToday:  0,
			ExpiresAt:  now.AddDate(0, 0, ttlDays),
			Active:     true,
		}
		err = s.db.CreateAPIKey(apiKey)
		if err == nil {
			return apiKey, nil
		}
		if errors.Is(err, db.ErrKeyAlreadyExists) {
			s.logger.Warn("Generated key collided with an existing record, retrying", "attempt", attempt+1)
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("failed to generate a unique key after %d attempts", maxGenerateAttempts)
}

// Generate creates a new unassigned API key.
func (s *Service) Generate(limit, ttlDays int) (*model.APIKey, error) {
	if err := validate(limit, ttlDays); err != nil {
		return nil, err
	}
	apiKey, err := s.create(nil, limit, ttlDays)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Generated new API key", "key", apiKey.Key, "limit", limit, "ttl_days", ttlDays)
	return apiKey, nil
}

// Assign creates a new API key bound to the given owner. If the owner already
// holds keys, those are revoked first: an owner has at most one key, and an
// assignment replaces rather than merges. The owner is notified about the new
// key on a best-effort basis; a notification failure is reported as a warning
// in the result, never as an error.
func (s *Service) Assign(ctx context.Context, ownerID int64, limit, ttlDays int) (*AssignResult, error) {
	if err := validate(limit, ttlDays); err != nil {
		return nil, err
	}

	existing, err := s.db.ListAPIKeysByOwner(ownerID)
	if err != nil {
		return nil, err
	}
	var replaced string
	for _, old := range existing {
		if err := s.db.DeleteAPIKey(old.Key); err != nil && !errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("failed to revoke previous key for owner %d: %w", ownerID, err)
		}
		replaced = old.Key
	}

	apiKey, err := s.create(&ownerID, limit, ttlDays)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Assigned new API key", "key", apiKey.Key, "owner_id", ownerID, "replaced", replaced != "")

	result := &AssignResult{Key: apiKey, ReplacedKey: replaced}
	msg := fmt.Sprintf("You have been issued a new API key: %s (limit %d/day, expires %s)",
		apiKey.Key, limit, apiKey.ExpiresAt.Format("2006-01-02"))
	if err := s.notifier.NotifyOwner(ctx, ownerID, msg); err != nil {
		s.logger.Warn("Failed to notify owner about new key", "owner_id", ownerID, "error", err)
		result.NotifyWarning = fmt.Sprintf("owner notification failed: %v", err)
	}
	return result, nil
}

// Revoke deletes the key record. Revoking an unknown (or already revoked) key
// reports db.ErrKeyNotFound.
func (s *Service) Revoke(key string) error {
	if err := s.db.DeleteAPIKey(key); err != nil {
		return err
	}
	s.logger.Info("Revoked API key", "key", key)
	return nil
}

// ListAll returns every key in the store in insertion order.
func (s *Service) ListAll() ([]model.APIKey, error) {
	return s.db.ListAPIKeys()
}

// ListPage returns one page of keys plus the total count.
func (s *Service) ListPage(offset, limit int) ([]model.APIKey, int64, error) {
	return s.db.ListAPIKeysPaginated(offset, limit)
}

// ListByOwner returns the keys currently assigned to an owner. The store's
// actual state is reported; the at-most-one-key invariant is maintained by
// Assign, not enforced here.
func (s *Service) ListByOwner(ownerID int64) ([]model.APIKey, error) {
	return s.db.ListAPIKeysByOwner(ownerID)
}
