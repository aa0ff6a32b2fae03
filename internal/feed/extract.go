package feed

import (
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// extractEntry maps one parsed feed item to an Entry. Items without a
// safe, resolvable link are dropped.
func extractEntry(item *gofeed.Item, base *url.URL) (Entry, bool) {
	link, ok := extractLink(item, base)
	if !ok {
		return Entry{}, false
	}

	return Entry{
		Title:       strings.TrimSpace(item.Title),
		Content:     extractContent(item),
		Link:        link,
		ImageURL:    extractImage(item),
		VideoURL:    extractVideo(item),
		PublishedAt: extractPublished(item),
	}, true
}

// extractContent prefers the structured content body, falls back to the
// summary/description, and finally yields empty.
func extractContent(item *gofeed.Item) string {
	if item.Content != "" {
		return item.Content
	}
	return item.Description
}

// extractLink returns the entry's link resolved against the feed URL.
// The GUID serves as a fallback when it looks like a URL. Schemes other
// than http(s) are rejected.
func extractLink(item *gofeed.Item, base *url.URL) (string, bool) {
	raw := item.Link
	if raw == "" && strings.HasPrefix(item.GUID, "http") {
		raw = item.GUID
	}
	if raw == "" {
		return "", false
	}

	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}

	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	return resolved.String(), true
}

// extractImage returns the entry's image URL. A media:thumbnail wins
// over the item image, which wins over an image enclosure.
func extractImage(item *gofeed.Item) string {
	for _, thumb := range item.Extensions["media"]["thumbnail"] {
		if u := thumb.Attrs["url"]; u != "" {
			return u
		}
	}
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	return enclosureURL(item, "image/")
}

// extractVideo returns the entry's video URL, from media:content or a
// video enclosure.
func extractVideo(item *gofeed.Item) string {
	for _, media := range item.Extensions["media"]["content"] {
		if strings.HasPrefix(media.Attrs["type"], "video/") && media.Attrs["url"] != "" {
			return media.Attrs["url"]
		}
	}
	return enclosureURL(item, "video/")
}

// enclosureURL returns the first enclosure whose MIME type matches the
// prefix.
func enclosureURL(item *gofeed.Item, typePrefix string) string {
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, typePrefix) && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}

// extractPublished returns the entry's publish time, falling back to the
// update time and finally to now. Always UTC.
func extractPublished(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	return time.Now().UTC()
}
