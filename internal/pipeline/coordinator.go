package pipeline

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"firefeed/pipeline/internal/dedup"
	"firefeed/pipeline/internal/feed"
	"firefeed/pipeline/internal/models"
	"firefeed/pipeline/internal/storage"
	"firefeed/pipeline/internal/translate"
)

// Cycle outcome statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// maxFeedFailures is how many consecutive fetch failures a feed survives
// before it is deactivated.
const maxFeedFailures = 10

// Summary aggregates one processing cycle across all feeds.
type Summary struct {
	Status         string `json:"status"`
	TotalFeeds     int    `json:"total_feeds"`
	ProcessedFeeds int    `json:"processed_feeds"`
	TotalItems     int    `json:"total_items"`
}

// Options toggles optional coordinator behavior. Workers bounds how
// many feeds are processed at once; zero or less means one worker per
// CPU.
type Options struct {
	TranslationEnabled bool
	TargetLanguages    []string
	Workers            int
}

// Coordinator drives the per-feed cycle: admission, validation, fetch,
// per-entry dedup, storage and the translation handoff. Feeds are
// processed concurrently; one feed's failure never aborts its siblings.
type Coordinator struct {
	store     storage.Storage
	validator *feed.Validator
	fetcher   *feed.Fetcher
	admission *AdmissionController
	detector  *dedup.Detector
	queue     *translate.Queue
	opts      Options

	lastSummary atomic.Pointer[Summary]
}

// NewCoordinator wires the pipeline stages together.
func NewCoordinator(
	store storage.Storage,
	validator *feed.Validator,
	fetcher *feed.Fetcher,
	admission *AdmissionController,
	detector *dedup.Detector,
	queue *translate.Queue,
	opts Options,
) *Coordinator {
	return &Coordinator{
		store:     store,
		validator: validator,
		fetcher:   fetcher,
		admission: admission,
		detector:  detector,
		queue:     queue,
		opts:      opts,
	}
}

// ProcessAllFeeds runs one full cycle over every active feed and returns
// the aggregate summary. A feed that errors is excluded from the
// processed count and contributes zero items.
func (c *Coordinator) ProcessAllFeeds(ctx context.Context) (Summary, error) {
	cycleID := uuid.NewString()
	logger := log.With().Str("cycle_id", cycleID).Logger()

	feeds, err := c.store.ListActiveFeeds(ctx)
	if err != nil {
		summary := Summary{Status: StatusError}
		c.lastSummary.Store(&summary)
		return summary, err
	}

	logger.Info().Int("feeds", len(feeds)).Msg("Processing cycle started")
	start := time.Now()

	var (
		mu        sync.Mutex
		processed int
		items     int
	)

	workers := c.opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for _, fd := range feeds {
		wg.Add(1)
		go func(fd models.Feed) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			count, err := c.processFeed(ctx, logger.With().Int64("feed_id", fd.ID).Logger(), fd)
			if err != nil {
				logger.Error().Err(err).Int64("feed_id", fd.ID).Str("url", fd.URL).Msg("Feed processing failed")
				return
			}

			mu.Lock()
			processed++
			items += count
			mu.Unlock()
		}(fd)
	}
	wg.Wait()

	summary := Summary{
		Status:         StatusSuccess,
		TotalFeeds:     len(feeds),
		ProcessedFeeds: processed,
		TotalItems:     items,
	}
	c.lastSummary.Store(&summary)

	logger.Info().
		Int("total_feeds", summary.TotalFeeds).
		Int("processed_feeds", summary.ProcessedFeeds).
		Int("total_items", summary.TotalItems).
		Dur("elapsed", time.Since(start)).
		Msg("Processing cycle finished")
	return summary, nil
}

// LastSummary returns the most recent cycle summary, or nil before the
// first cycle completes.
func (c *Coordinator) LastSummary() *Summary {
	return c.lastSummary.Load()
}

// processFeed runs one feed through the full cycle and returns how many
// new items were stored. A skipped feed is still a successfully
// processed feed with zero items.
func (c *Coordinator) processFeed(ctx context.Context, logger zerolog.Logger, fd models.Feed) (int, error) {
	decision, err := c.admission.ShouldProcess(ctx, fd)
	if err != nil {
		return 0, err
	}
	if !decision.Admit {
		logger.Debug().Str("reason", decision.Reason).Msg("Feed skipped by admission")
		return 0, nil
	}

	if c.validator != nil && !c.validator.Validate(ctx, fd.URL, nil) {
		if markErr := c.store.MarkFeedFailure(ctx, fd.ID, "feed validation failed", maxFeedFailures); markErr != nil {
			logger.Error().Err(markErr).Msg("Failed to record feed failure")
		}
		logger.Warn().Str("url", fd.URL).Msg("Feed failed validation")
		return 0, nil
	}

	entries, err := c.fetcher.FetchFeed(ctx, fd, nil)
	if err != nil {
		if markErr := c.store.MarkFeedFailure(ctx, fd.ID, err.Error(), maxFeedFailures); markErr != nil {
			logger.Error().Err(markErr).Msg("Failed to record feed failure")
		}
		return 0, err
	}

	stored := 0
	for _, entry := range entries {
		saved, err := c.processEntry(ctx, logger, fd, entry)
		if err != nil {
			logger.Error().Err(err).Str("link", entry.Link).Msg("Entry abandoned")
			continue
		}
		if saved {
			stored++
		}
	}

	if err := c.store.MarkFeedSuccess(ctx, fd.ID); err != nil {
		logger.Error().Err(err).Msg("Failed to record feed success")
	}

	logger.Debug().Int("entries", len(entries)).Int("stored", stored).Msg("Feed processed")
	return stored, nil
}

// processEntry runs dedup, stores a unique entry, persists its embedding
// and hands it to the translation queue. Returns whether a new item was
// stored.
func (c *Coordinator) processEntry(ctx context.Context, logger zerolog.Logger, fd models.Feed, entry feed.Entry) (bool, error) {
	verdict, err := c.detector.IsDuplicate(ctx, entry.Title, entry.Content, entry.Link, fd.Language)
	if err != nil {
		return false, err
	}
	if verdict.IsDuplicate {
		logger.Debug().
			Str("link", entry.Link).
			Str("matched_item", verdict.Match.ItemID).
			Str("reason", verdict.Match.Reason).
			Msg("Duplicate entry skipped")
		return false, nil
	}

	item := &models.NewsItem{
		ID:          models.Fingerprint(entry.Title, entry.Content, entry.Link, fd.ID),
		FeedID:      fd.ID,
		Title:       entry.Title,
		Content:     entry.Content,
		Link:        entry.Link,
		Language:    fd.Language,
		ImageURL:    models.MediaRef(entry.ImageURL),
		VideoURL:    models.MediaRef(entry.VideoURL),
		PublishedAt: entry.PublishedAt,
		CreatedAt:   time.Now().UTC(),
	}

	itemID, err := c.store.SaveItem(ctx, item)
	if err != nil {
		return false, err
	}
	if itemID == "" {
		// Lost an insert race with a concurrent cycle; the winner owns
		// the item.
		logger.Debug().Str("link", entry.Link).Msg("Item already stored")
		return false, nil
	}

	if len(verdict.Embedding) > 0 {
		if err := c.store.SaveEmbedding(ctx, itemID, verdict.Embedding); err != nil {
			logger.Error().Err(err).Str("item_id", itemID).Msg("Failed to persist embedding")
		}
	}

	if c.opts.TranslationEnabled && c.queue != nil {
		c.enqueueTranslation(logger, itemID, item)
	}
	return true, nil
}

func (c *Coordinator) enqueueTranslation(logger zerolog.Logger, itemID string, item *models.NewsItem) {
	task := translate.Task{
		ItemID:      itemID,
		Title:       item.Title,
		Content:     item.Content,
		SourceLang:  item.Language,
		TargetLangs: c.opts.TargetLanguages,
		OnSuccess: func(translations map[string]models.Translation) error {
			return c.store.SaveTranslations(context.Background(), itemID, translations)
		},
		OnError: func(taskID string, err error) {
			log.Error().Err(err).Str("task_id", taskID).Str("item_id", itemID).Msg("Translation failed")
		},
	}
	if !c.queue.Enqueue(task) {
		logger.Warn().Str("item_id", itemID).Msg("Translation skipped, queue full")
	}
}
