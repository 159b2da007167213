package quota

import (
	"errors"
	"log/slog"
	"time"

	"ytgate/internal/db"
	"ytgate/internal/model"
)

var (
	// ErrInvalidKey means no record exists for the presented key.
	ErrInvalidKey = errors.New("invalid api key")
	// ErrInactive means the key has been administratively disabled.
	ErrInactive = errors.New("api key is not active")
	// ErrExpired means the key's lifetime has run out.
	ErrExpired = errors.New("api key has expired")
	// ErrLimitExceeded means the key has no daily quota left.
	ErrLimitExceeded = errors.New("daily usage limit exceeded")
)

// Gate authorizes protected requests against the key store and consumes one
// unit of daily quota per admitted request.
type Gate struct {
	db     db.Service
	logger *slog.Logger
}

// NewGate creates a new quota gate.
func NewGate(dbService db.Service, logger *slog.Logger) *Gate {
	return &Gate{
		db:     dbService,
		logger: logger.With("component", "quota"),
	}
}

// Authorize validates the key at the given instant and, on success, atomically
// increments its usage counter. The returned record reflects the state before
// the increment.
//
// Checks run in order existence, active, expiry, limit so the most specific
// cause is reported. The limit check is enforced again inside the store's
// conditional increment: of any number of concurrent calls competing for the
// last unit of quota, exactly one is admitted.
func (g *Gate) Authorize(key string, now time.Time) (*model.APIKey, error) {
	apiKey, err := g.db.GetAPIKey(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, err
	}

	if !apiKey.Active {
		return nil, ErrInactive
	}
	if apiKey.Expired(now) {
		return nil, ErrExpired
	}
	if apiKey.Exhausted() {
		return nil, ErrLimitExceeded
	}

	admitted, err := g.db.ConsumeAPIKeyUsage(key)
	if err != nil {
		return nil, err
	}
	if !admitted {
		// Lost the race for the last unit of quota (or the key was revoked
		// between the read and the increment).
		return nil, ErrLimitExceeded
	}

	g.logger.Debug("Request authorized", "key", apiKey.Key, "used_today", apiKey.UsedToday+1, "daily_limit", apiKey.DailyLimit)
	return apiKey, nil
}
