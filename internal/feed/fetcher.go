// Package feed fetches and parses RSS/Atom sources into raw entries the
// rest of the pipeline consumes.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"firefeed/pipeline/internal/models"
)

const (
	defaultFetchTimeout = 15 * time.Second
	maxFeedBodyBytes    = 10 << 20 // 10MB cap on a single feed response
)

// Entry is one raw article extracted from a feed. Entries are transient;
// they exist only between fetch and dedup.
type Entry struct {
	Title       string
	Content     string
	Link        string
	ImageURL    string
	VideoURL    string
	PublishedAt time.Time
}

// Result pairs one feed with its fetch outcome. A failed feed carries
// its error here instead of aborting the batch.
type Result struct {
	Feed    models.Feed
	Entries []Entry
	Err     error
}

// Fetcher downloads and parses feeds, bounding simultaneous network
// fetches with a counting semaphore.
type Fetcher struct {
	downloader *downloader
	sem        chan struct{}
}

// NewFetcher creates a fetcher allowing at most maxConcurrent
// simultaneous downloads.
func NewFetcher(maxConcurrent int, userAgent string) *Fetcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Fetcher{
		downloader: newDownloader(defaultFetchTimeout, userAgent),
		sem:        make(chan struct{}, maxConcurrent),
	}
}

// FetchFeed downloads and parses a single feed into entries.
func (f *Fetcher) FetchFeed(ctx context.Context, fd models.Feed, headers map[string]string) ([]Entry, error) {
	select {
	case f.sem <- struct{}{}:
		defer func() { <-f.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	body, err := f.downloader.fetch(ctx, fd.URL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", fd.URL, err)
	}

	parsed, err := parseFeedBytes(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", fd.URL, err)
	}

	base, err := url.Parse(fd.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed url %s: %w", fd.URL, err)
	}

	entries := make([]Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		entry, ok := extractEntry(item, base)
		if !ok {
			log.Debug().
				Int64("feed_id", fd.ID).
				Str("title", item.Title).
				Msg("Skipping entry without usable link")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// FetchFeeds fetches all feeds concurrently and returns one Result per
// feed, in input order. One feed's failure never aborts its siblings.
func (f *Fetcher) FetchFeeds(ctx context.Context, feeds []models.Feed, headers map[string]string) []Result {
	results := make([]Result, len(feeds))

	var wg sync.WaitGroup
	for i, fd := range feeds {
		wg.Add(1)
		go func(i int, fd models.Feed) {
			defer wg.Done()
			entries, err := f.FetchFeed(ctx, fd, headers)
			results[i] = Result{Feed: fd, Entries: entries, Err: err}
		}(i, fd)
	}
	wg.Wait()

	return results
}

// downloader is the shared HTTP fetch used by both fetcher and validator.
type downloader struct {
	http      *http.Client
	userAgent string
}

func newDownloader(timeout time.Duration, userAgent string) *downloader {
	return &downloader{
		http:      &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

func (d *downloader) fetch(ctx context.Context, feedURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
