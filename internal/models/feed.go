package models

import (
	"database/sql"
	"time"
)

// Feed represents a row in the 'feeds' table. The catalog owns these rows;
// the pipeline only reads them.
type Feed struct {
	ID              int64          `db:"id"`
	URL             string         `db:"url"`
	Name            string         `db:"name"`
	Language        string         `db:"language"`
	Source          sql.NullString `db:"source"`
	Category        sql.NullString `db:"category"`
	CooldownMinutes int            `db:"cooldown_minutes"`
	MaxNewsPerHour  int            `db:"max_news_per_hour"`
	IsActive        bool           `db:"is_active"`
	FailuresCount   int            `db:"failures_count"`
	LastError       sql.NullString `db:"last_error"`
	LastRetrievedAt sql.NullTime   `db:"last_retrieved_at"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
	DeletedAt       sql.NullTime   `db:"deleted_at"`
}

// Cooldown returns the feed's cooldown window as a duration.
func (f *Feed) Cooldown() time.Duration {
	return time.Duration(f.CooldownMinutes) * time.Minute
}

// NewFeed creates a new Feed with default values
func NewFeed() *Feed {
	now := time.Now()
	return &Feed{
		Language:  "en",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
