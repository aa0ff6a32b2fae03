// Package dedup detects exact and semantic duplicates among incoming
// news items using URL matching and embedding similarity.
package dedup

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"firefeed/pipeline/internal/ml"
	"firefeed/pipeline/internal/storage"
)

// neighborLimit is how many nearest stored vectors are compared against
// a candidate item.
const neighborLimit = 5

// Text-type labels for threshold selection.
const (
	TextTypeTitle   = "title"
	TextTypeContent = "content"
)

// Verdict is the outcome of a duplicate check. For unique items the
// verdict carries the embedding that was computed during the check so
// the caller can persist it exactly once instead of recomputing.
type Verdict struct {
	IsDuplicate bool
	Match       *storage.MatchInfo
	Embedding   []float32
}

// Detector runs the two-stage duplicate check: exact URL match first,
// then nearest-neighbor embedding similarity against a dynamic
// threshold.
type Detector struct {
	store    storage.Storage
	embedder ml.EmbeddingEngine
}

// NewDetector creates a detector over the given storage and embedding
// engine.
func NewDetector(store storage.Storage, embedder ml.EmbeddingEngine) *Detector {
	return &Detector{store: store, embedder: embedder}
}

// IsDuplicate checks an incoming entry before it is stored. A storage
// failure during the check is returned to the caller: the pipeline must
// not assume uniqueness when the check itself failed.
func (d *Detector) IsDuplicate(ctx context.Context, title, content, link, lang string) (Verdict, error) {
	match, err := d.store.CheckDuplicateByURL(ctx, link)
	if err != nil {
		return Verdict{}, fmt.Errorf("url duplicate check: %w", err)
	}
	if match != nil {
		log.Debug().
			Str("link", link).
			Str("matched_item", match.ItemID).
			Msg("Duplicate by URL")
		return Verdict{IsDuplicate: true, Match: match}, nil
	}

	combined := CombineTexts(title, content, lang)
	embedding, err := d.embedder.Embed(ctx, combined, lang)
	if err != nil {
		return Verdict{}, fmt.Errorf("embed candidate: %w", err)
	}

	dup, matched, err := d.matchNeighbors(ctx, embedding, "", len(title)+len(content))
	if err != nil {
		return Verdict{}, err
	}
	if dup {
		return Verdict{IsDuplicate: true, Match: matched}, nil
	}
	return Verdict{Embedding: embedding}, nil
}

// ProcessItem re-checks an already stored item, reusing its persisted
// embedding when one exists. Returns true when the item is unique. For
// unique items without a stored vector, the freshly computed one is
// persisted.
func (d *Detector) ProcessItem(ctx context.Context, itemID, title, content, lang string) (bool, error) {
	existing, err := d.store.GetEmbedding(ctx, itemID)
	if err != nil {
		return false, fmt.Errorf("load embedding: %w", err)
	}

	textLength := len(title) + len(content)

	if existing != nil {
		dup, match, err := d.matchNeighbors(ctx, existing, itemID, textLength)
		if err != nil {
			return false, err
		}
		if dup {
			log.Info().
				Str("item_id", itemID).
				Str("matched_item", match.ItemID).
				Msg("Stored item is a semantic duplicate")
		}
		return !dup, nil
	}

	combined := CombineTexts(title, content, lang)
	embedding, err := d.embedder.Embed(ctx, combined, lang)
	if err != nil {
		return false, fmt.Errorf("embed item %s: %w", itemID, err)
	}

	dup, match, err := d.matchNeighbors(ctx, embedding, itemID, textLength)
	if err != nil {
		return false, err
	}
	if dup {
		log.Info().
			Str("item_id", itemID).
			Str("matched_item", match.ItemID).
			Msg("Item is a semantic duplicate, embedding discarded")
		return false, nil
	}

	if err := d.store.SaveEmbedding(ctx, itemID, embedding); err != nil {
		return false, fmt.Errorf("save embedding for %s: %w", itemID, err)
	}
	return true, nil
}

// matchNeighbors queries the nearest stored vectors and applies the
// dynamic threshold. Similarity strictly greater than the threshold
// marks a duplicate; a tie does not.
func (d *Detector) matchNeighbors(ctx context.Context, embedding []float32, excludeID string, textLength int) (bool, *storage.MatchInfo, error) {
	neighbors, err := d.store.NearestByEmbedding(ctx, embedding, excludeID, neighborLimit)
	if err != nil {
		return false, nil, fmt.Errorf("nearest neighbor query: %w", err)
	}

	threshold := DynamicThreshold(textLength, TextTypeContent)
	for _, n := range neighbors {
		if n.Similarity > threshold {
			log.Info().
				Str("matched_item", n.ItemID).
				Float64("similarity", n.Similarity).
				Float64("threshold", threshold).
				Msg("Semantic duplicate found")
			return true, &storage.MatchInfo{
				ItemID: n.ItemID,
				Title:  n.Title,
				Reason: storage.ReasonSemantic,
			}, nil
		}
	}
	return false, nil, nil
}

// DynamicThreshold returns the similarity cutoff for a text of the given
// length and type. Titles compare more loosely than full content; very
// short texts loosen the cutoff further and long texts tighten it. The
// result always lies in [0.70, 0.98].
func DynamicThreshold(textLength int, textType string) float64 {
	threshold := 0.90
	switch textType {
	case TextTypeTitle:
		threshold = 0.85
	case TextTypeContent:
		threshold = 0.95
	}

	if textLength < 50 {
		threshold -= 0.05
	} else if textLength > 1000 {
		threshold += 0.02
	}

	if threshold < 0.70 {
		threshold = 0.70
	}
	if threshold > 0.98 {
		threshold = 0.98
	}
	return threshold
}
