package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"firefeed/pipeline/internal/database"
	"firefeed/pipeline/internal/models"
	"firefeed/pipeline/internal/vector"
)

// candidateScanLimit bounds how many stored vectors a nearest-neighbor
// query will rank in-process. SQLite has no vector index; scanning the
// newest window keeps the check cheap while covering the items a fresh
// entry could realistically duplicate.
const candidateScanLimit = 500

// Repository implements Storage on top of the shared SQLite connection.
type Repository struct {
	db *database.DB
}

var _ Storage = (*Repository)(nil)

// NewRepository creates a new repository instance.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// ListActiveFeeds returns active, non-deleted feeds, least recently
// retrieved first so stale feeds are serviced before fresh ones.
func (r *Repository) ListActiveFeeds(ctx context.Context) ([]models.Feed, error) {
	var feeds []models.Feed
	query := `SELECT * FROM feeds
		WHERE is_active = 1 AND deleted_at IS NULL
		ORDER BY last_retrieved_at ASC, created_at ASC`
	if err := r.db.SelectContext(ctx, &feeds, query); err != nil {
		return nil, fmt.Errorf("failed to list active feeds: %w", err)
	}
	return feeds, nil
}

// SaveItem inserts an item, returning its id, or "" when an item with
// the same fingerprint or link already exists.
func (r *Repository) SaveItem(ctx context.Context, item *models.NewsItem) (string, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO news_items (id, feed_id, title, content, link, language, image_url, video_url, published_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.FeedID, item.Title, item.Content, item.Link,
		item.Language, item.ImageURL, item.VideoURL,
		item.PublishedAt.UTC(), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert item %s: %w", item.ID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to read rows affected for item %s: %w", item.ID, err)
	}
	if rows == 0 {
		log.Debug().
			Str("item_id", item.ID).
			Str("link", item.Link).
			Msg("Item already stored, insert ignored")
		return "", nil
	}
	return item.ID, nil
}

// SaveTranslations stores all renditions for an item in one transaction.
func (r *Repository) SaveTranslations(ctx context.Context, itemID string, translations map[string]models.Translation) error {
	if len(translations) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin translations transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO translations (item_id, lang, title, content, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(item_id, lang) DO UPDATE SET title = excluded.title, content = excluded.content`)
	if err != nil {
		return fmt.Errorf("failed to prepare translations insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for lang, tr := range translations {
		if _, err := stmt.ExecContext(ctx, itemID, lang, tr.Title, tr.Content, now); err != nil {
			return fmt.Errorf("failed to insert translation %s/%s: %w", itemID, lang, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit translations for %s: %w", itemID, err)
	}
	return nil
}

// CheckDuplicateByURL returns match info for a stored item with the same
// link, or nil when the link is unseen.
func (r *Repository) CheckDuplicateByURL(ctx context.Context, link string) (*MatchInfo, error) {
	if link == "" {
		return nil, nil
	}

	var row struct {
		ID    string `db:"id"`
		Title string `db:"title"`
	}
	err := r.db.GetContext(ctx, &row,
		`SELECT id, title FROM news_items WHERE link = ? LIMIT 1`, link)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check duplicate by url: %w", err)
	}
	return &MatchInfo{ItemID: row.ID, Title: row.Title, Reason: ReasonSameURL}, nil
}

// GetEmbedding returns the stored vector for an item, or nil when the
// item has none yet.
func (r *Repository) GetEmbedding(ctx context.Context, itemID string) ([]float32, error) {
	var raw sql.NullString
	err := r.db.GetContext(ctx, &raw,
		`SELECT embedding FROM news_items WHERE id = ?`, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding for %s: %w", itemID, err)
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}

	vec, err := decodeVector(raw.String)
	if err != nil {
		return nil, fmt.Errorf("failed to decode embedding for %s: %w", itemID, err)
	}
	return vec, nil
}

// SaveEmbedding persists an item's vector. Existing vectors are never
// overwritten; an embedding is computed once per item.
func (r *Repository) SaveEmbedding(ctx context.Context, itemID string, vec []float32) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("failed to encode embedding for %s: %w", itemID, err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE news_items SET embedding = ? WHERE id = ? AND embedding IS NULL`,
		string(raw), itemID)
	if err != nil {
		return fmt.Errorf("failed to save embedding for %s: %w", itemID, err)
	}
	return nil
}

// NearestByEmbedding ranks the most recently stored vectors by cosine
// similarity to vec and returns the top matches, excluding excludeID
// when set.
func (r *Repository) NearestByEmbedding(ctx context.Context, vec []float32, excludeID string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `SELECT id, title, embedding FROM news_items
		WHERE embedding IS NOT NULL`
	args := []any{}
	if excludeID != "" {
		query += ` AND id != ?`
		args = append(args, excludeID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, candidateScanLimit)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var id, title, raw string
		if err := rows.Scan(&id, &title, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan embedding row: %w", err)
		}
		stored, err := decodeVector(raw)
		if err != nil {
			log.Warn().Err(err).Str("item_id", id).Msg("Skipping undecodable stored embedding")
			continue
		}
		candidates = append(candidates, Candidate{
			ItemID:     id,
			Title:      title,
			Similarity: vector.Cosine(vec, stored),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate embedding rows: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// ItemsMissingEmbeddings returns stored items without a vector, oldest
// first, for the backfill job.
func (r *Repository) ItemsMissingEmbeddings(ctx context.Context, limit int) ([]models.NewsItem, error) {
	var items []models.NewsItem
	err := r.db.SelectContext(ctx, &items, `
		SELECT id, feed_id, title, content, link, language, image_url, video_url, published_at, created_at
		FROM news_items
		WHERE embedding IS NULL
		ORDER BY created_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list items missing embeddings: %w", err)
	}
	return items, nil
}

// RecentItemCount counts items a feed published within the trailing
// window.
func (r *Repository) RecentItemCount(ctx context.Context, feedID int64, window time.Duration) (int, error) {
	if window <= 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().Add(-window)
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM news_items WHERE feed_id = ? AND published_at >= ?`,
		feedID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent items for feed %d: %w", feedID, err)
	}
	return count, nil
}

// LastPublishedTime returns the newest publish timestamp for a feed, or
// nil when the feed has no stored items.
func (r *Repository) LastPublishedTime(ctx context.Context, feedID int64) (*time.Time, error) {
	var last sql.NullTime
	err := r.db.GetContext(ctx, &last,
		`SELECT MAX(published_at) FROM news_items WHERE feed_id = ?`, feedID)
	if err != nil {
		return nil, fmt.Errorf("failed to load last published time for feed %d: %w", feedID, err)
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time.UTC()
	return &t, nil
}

// MarkFeedSuccess resets failure bookkeeping after a clean fetch.
func (r *Repository) MarkFeedSuccess(ctx context.Context, feedID int64) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE feeds
		SET failures_count = 0, last_error = NULL, last_retrieved_at = ?, updated_at = ?
		WHERE id = ?`, now, now, feedID)
	if err != nil {
		return fmt.Errorf("failed to mark feed %d success: %w", feedID, err)
	}
	return nil
}

// MarkFeedFailure records a fetch failure and deactivates the feed once
// it exceeds maxFailures consecutive failures.
func (r *Repository) MarkFeedFailure(ctx context.Context, feedID int64, fetchErr string, maxFailures int) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE feeds
		SET failures_count = failures_count + 1,
		    last_error = ?,
		    last_retrieved_at = ?,
		    updated_at = ?,
		    is_active = CASE WHEN failures_count + 1 > ? THEN 0 ELSE is_active END
		WHERE id = ?`, fetchErr, now, now, maxFailures, feedID)
	if err != nil {
		return fmt.Errorf("failed to mark feed %d failure: %w", feedID, err)
	}
	return nil
}

// CleanupDuplicates removes later-stored items that share a title with an
// earlier item on the same feed, together with their translations. Both
// deletions ride one transaction so a failure leaves storage untouched.
func (r *Repository) CleanupDuplicates(ctx context.Context) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin cleanup transaction: %w", err)
	}
	defer tx.Rollback()

	const dupSelect = `
		SELECT n.id FROM news_items n
		WHERE EXISTS (
			SELECT 1 FROM news_items earlier
			WHERE earlier.feed_id = n.feed_id
			  AND earlier.title = n.title
			  AND earlier.created_at < n.created_at
		)`

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM translations WHERE item_id IN (`+dupSelect+`)`); err != nil {
		return 0, fmt.Errorf("failed to delete duplicate translations: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM news_items WHERE id IN (`+dupSelect+`)`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete duplicate items: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read cleanup rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit duplicate cleanup: %w", err)
	}

	if removed > 0 {
		log.Info().Int64("removed", removed).Msg("Duplicate cleanup removed items")
	}
	return removed, nil
}

// PurgeOldItems removes items older than the retention window along with
// their translations, atomically.
func (r *Repository) PurgeOldItems(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retentionDays must be positive")
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin purge transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM translations WHERE item_id IN (SELECT id FROM news_items WHERE created_at < ?)`,
		cutoff); err != nil {
		return 0, fmt.Errorf("failed to purge old translations: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM news_items WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge old items: %w", err)
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purge rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}

	log.Info().
		Int64("purged", purged).
		Int("retention_days", retentionDays).
		Msg("Purged old items")
	return purged, nil
}

// InsertFeed inserts or refreshes a catalog entry, used by the importer.
func (r *Repository) InsertFeed(ctx context.Context, feed *models.Feed) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feeds (url, name, language, source, category, cooldown_minutes, max_news_per_hour, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			name = excluded.name,
			language = excluded.language,
			source = excluded.source,
			category = excluded.category,
			cooldown_minutes = excluded.cooldown_minutes,
			max_news_per_hour = excluded.max_news_per_hour,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		feed.URL, feed.Name, feed.Language, feed.Source, feed.Category,
		feed.CooldownMinutes, feed.MaxNewsPerHour, feed.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert feed %s: %w", feed.URL, err)
	}
	return nil
}

func decodeVector(raw string) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, err
	}
	return vec, nil
}
