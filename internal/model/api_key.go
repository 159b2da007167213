package model

import (
	"time"

	"gorm.io/gorm"
)

// APIKey represents a client's API key for accessing the media lookup service.
// OwnerID is nil while the key is unassigned.
type APIKey struct {
	gorm.Model
	Key        string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	OwnerID    *int64    `gorm:"index"`
	DailyLimit int       `gorm:"default:0;not null"`
	UsedToday  int       `gorm:"default:0;not null"`
	ExpiresAt  time.Time `gorm:"not null"`
	Active     bool      `gorm:"default:true;not null"`
}

// Expired reports whether the key is no longer valid at the given instant.
// The boundary instant itself counts as expired.
func (k *APIKey) Expired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// Exhausted reports whether the key has no daily quota left.
func (k *APIKey) Exhausted() bool {
	return k.UsedToday >= k.DailyLimit
}
