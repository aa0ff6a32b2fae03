package models

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// NewsItem represents a row in the 'news_items' table. The ID is the
// item's fingerprint, derived once from its identifying fields. Media
// references are optional; most entries carry neither.
type NewsItem struct {
	ID          string         `db:"id"`
	FeedID      int64          `db:"feed_id"`
	Title       string         `db:"title"`
	Content     string         `db:"content"`
	Link        string         `db:"link"`
	Language    string         `db:"language"`
	ImageURL    sql.NullString `db:"image_url"`
	VideoURL    sql.NullString `db:"video_url"`
	PublishedAt time.Time      `db:"published_at"`
	CreatedAt   time.Time      `db:"created_at"`
}

// MediaRef wraps an optional media URL for storage; an empty URL maps
// to NULL.
func MediaRef(url string) sql.NullString {
	return sql.NullString{String: url, Valid: url != ""}
}

// Translation is one translated rendition of an item, keyed by language.
type Translation struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Fingerprint derives the stable identity of an item from its title,
// content, link and source feed. Two entries with the same fields always
// hash to the same id, which is what makes the storage key usable for
// exact-duplicate rejection.
func Fingerprint(title, content, link string, feedID int64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", title, content, link, feedID)
	return hex.EncodeToString(h.Sum(nil))
}
