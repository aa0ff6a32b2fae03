package dedup

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"firefeed/pipeline/internal/ml"
	"firefeed/pipeline/internal/storage"
)

const defaultBackfillBatch = 50

// Backfiller computes embeddings for stored items that never received
// one, oldest first. Backfill does not re-run duplicate checks; it only
// restores the vectors the similarity search depends on.
type Backfiller struct {
	store     storage.Storage
	embedder  ml.EmbeddingEngine
	batchSize int
}

// NewBackfiller creates a backfiller processing batchSize items per run
// (a non-positive size selects the default).
func NewBackfiller(store storage.Storage, embedder ml.EmbeddingEngine, batchSize int) *Backfiller {
	if batchSize <= 0 {
		batchSize = defaultBackfillBatch
	}
	return &Backfiller{store: store, embedder: embedder, batchSize: batchSize}
}

// Run processes one batch. Per-item failures are counted and skipped;
// only the initial listing failure aborts the run.
func (b *Backfiller) Run(ctx context.Context) (succeeded, failed int, err error) {
	items, err := b.store.ItemsMissingEmbeddings(ctx, b.batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("list items missing embeddings: %w", err)
	}
	if len(items) == 0 {
		log.Debug().Msg("No items missing embeddings")
		return 0, 0, nil
	}

	log.Info().Int("items", len(items)).Msg("Backfilling embeddings")

	for _, item := range items {
		if ctx.Err() != nil {
			return succeeded, failed, ctx.Err()
		}

		combined := CombineTexts(item.Title, item.Content, item.Language)
		embedding, embedErr := b.embedder.Embed(ctx, combined, item.Language)
		if embedErr != nil {
			log.Error().Err(embedErr).Str("item_id", item.ID).Msg("Backfill embed failed")
			failed++
			continue
		}

		if saveErr := b.store.SaveEmbedding(ctx, item.ID, embedding); saveErr != nil {
			log.Error().Err(saveErr).Str("item_id", item.ID).Msg("Backfill save failed")
			failed++
			continue
		}
		succeeded++
	}

	log.Info().
		Int("succeeded", succeeded).
		Int("failed", failed).
		Msg("Embedding backfill batch finished")
	return succeeded, failed, nil
}
