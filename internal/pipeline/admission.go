// Package pipeline orchestrates the ingest cycle: admission, fetch,
// dedup, storage and the translation handoff.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"firefeed/pipeline/internal/models"
	"firefeed/pipeline/internal/storage"
)

// Admission reasons, attached to skip decisions for logging and stats.
const (
	SkipRateLimited = "rate_limited"
	SkipCooldown    = "cooldown"
)

// Decision is the outcome of an admission check. A skipped feed carries
// the reason it was held back.
type Decision struct {
	Admit  bool
	Reason string
}

// AdmissionController decides per feed, per cycle, whether the feed may
// be fetched at all. It only reads; the item counters it consults are
// written by the rest of the pipeline.
type AdmissionController struct {
	store storage.Storage
}

// NewAdmissionController creates a controller over the given storage.
func NewAdmissionController(store storage.Storage) *AdmissionController {
	return &AdmissionController{store: store}
}

// ShouldProcess applies the feed's rate limit and cooldown. The rate
// limit is checked first and short-circuits: a rate-limited feed is
// skipped without consulting its last-published time. A zero or negative
// limit disables the corresponding check.
func (a *AdmissionController) ShouldProcess(ctx context.Context, feed models.Feed) (Decision, error) {
	if feed.MaxNewsPerHour > 0 && feed.CooldownMinutes > 0 {
		count, err := a.store.RecentItemCount(ctx, feed.ID, feed.Cooldown())
		if err != nil {
			return Decision{}, fmt.Errorf("recent item count for feed %d: %w", feed.ID, err)
		}
		if count >= feed.MaxNewsPerHour {
			log.Debug().
				Int64("feed_id", feed.ID).
				Int("recent_items", count).
				Int("max_news_per_hour", feed.MaxNewsPerHour).
				Msg("Feed rate limited")
			return Decision{Reason: SkipRateLimited}, nil
		}
	}

	if feed.CooldownMinutes > 0 {
		last, err := a.store.LastPublishedTime(ctx, feed.ID)
		if err != nil {
			return Decision{}, fmt.Errorf("last published time for feed %d: %w", feed.ID, err)
		}
		if last != nil && time.Since(*last) < feed.Cooldown() {
			log.Debug().
				Int64("feed_id", feed.ID).
				Time("last_published", *last).
				Dur("cooldown", feed.Cooldown()).
				Msg("Feed in cooldown")
			return Decision{Reason: SkipCooldown}, nil
		}
	}

	return Decision{Admit: true}, nil
}
