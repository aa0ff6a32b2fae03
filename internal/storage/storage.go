// Package storage defines the persistence contract the pipeline depends
// on and its SQLite implementation.
package storage

import (
	"context"
	"time"

	"firefeed/pipeline/internal/models"
)

// MatchInfo describes the stored item an incoming entry collided with.
type MatchInfo struct {
	ItemID string
	Title  string
	Reason string
}

// Duplicate-match reasons.
const (
	ReasonSameURL  = "same_url"
	ReasonSemantic = "semantic"
)

// Candidate is one neighbor returned by a vector search, ranked by
// cosine similarity to the query vector.
type Candidate struct {
	ItemID     string
	Title      string
	Similarity float64
}

// Catalog is the read-only view of the feed catalog the pipeline
// consumes. Feed definitions are owned elsewhere.
type Catalog interface {
	ListActiveFeeds(ctx context.Context) ([]models.Feed, error)
}

// Storage is everything the pipeline persists or reads back. A single
// SQLite-backed implementation lives in this package; tests substitute
// their own.
type Storage interface {
	Catalog

	// Items and translations.
	SaveItem(ctx context.Context, item *models.NewsItem) (string, error)
	SaveTranslations(ctx context.Context, itemID string, translations map[string]models.Translation) error

	// Dedup support.
	CheckDuplicateByURL(ctx context.Context, link string) (*MatchInfo, error)
	GetEmbedding(ctx context.Context, itemID string) ([]float32, error)
	SaveEmbedding(ctx context.Context, itemID string, vec []float32) error
	NearestByEmbedding(ctx context.Context, vec []float32, excludeID string, limit int) ([]Candidate, error)
	ItemsMissingEmbeddings(ctx context.Context, limit int) ([]models.NewsItem, error)

	// Admission support.
	RecentItemCount(ctx context.Context, feedID int64, window time.Duration) (int, error)
	LastPublishedTime(ctx context.Context, feedID int64) (*time.Time, error)

	// Feed health bookkeeping.
	MarkFeedSuccess(ctx context.Context, feedID int64) error
	MarkFeedFailure(ctx context.Context, feedID int64, fetchErr string, maxFailures int) error

	// Maintenance.
	CleanupDuplicates(ctx context.Context) (int64, error)
	PurgeOldItems(ctx context.Context, retentionDays int) (int64, error)
}
