package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firefeed/pipeline/internal/models"
)

func TestFetchFeed(t *testing.T) {
	srv := serveFeed(t, validRSS, nil)
	f := NewFetcher(2, "firefeed-test")

	entries, err := f.FetchFeed(context.Background(), models.Feed{ID: 1, URL: srv.URL}, nil)
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "One", entries[0].Title)
	assert.Equal(t, "http://t.example/1", entries[0].Link)
}

func TestFetchFeedSendsHeaders(t *testing.T) {
	var gotUA, gotExtra string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotExtra = r.Header.Get("X-Custom")
		w.Write([]byte(validRSS))
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(1, "firefeed-test")
	_, err := f.FetchFeed(context.Background(), models.Feed{URL: srv.URL},
		map[string]string{"X-Custom": "yes"})
	require.NoError(t, err)

	assert.Equal(t, "firefeed-test", gotUA)
	assert.Equal(t, "yes", gotExtra)
}

func TestFetchFeedNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(1, "firefeed-test")
	_, err := f.FetchFeed(context.Background(), models.Feed{URL: srv.URL}, nil)
	require.Error(t, err)
}

func TestFetchFeedsReturnsResultsInOrder(t *testing.T) {
	good := serveFeed(t, validRSS, nil)
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	t.Cleanup(bad.Close)

	f := NewFetcher(2, "firefeed-test")
	feeds := []models.Feed{
		{ID: 1, URL: good.URL},
		{ID: 2, URL: bad.URL},
		{ID: 3, URL: good.URL},
	}

	results := f.FetchFeeds(context.Background(), feeds, nil)
	require.Len(t, results, 3)

	assert.Equal(t, int64(1), results[0].Feed.ID)
	assert.NoError(t, results[0].Err)
	assert.Len(t, results[0].Entries, 1)

	assert.Equal(t, int64(2), results[1].Feed.ID)
	assert.Error(t, results[1].Err, "one failing feed must not abort the batch")

	assert.NoError(t, results[2].Err)
}

func TestFetchFeedsBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int64
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := inFlight.Add(1)
		mu.Lock()
		if now > peak.Load() {
			peak.Store(now)
		}
		mu.Unlock()
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		w.Write([]byte(validRSS))
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(2, "firefeed-test")
	feeds := make([]models.Feed, 6)
	for i := range feeds {
		feeds[i] = models.Feed{ID: int64(i), URL: srv.URL}
	}

	results := f.FetchFeeds(context.Background(), feeds, nil)
	for _, res := range results {
		assert.NoError(t, res.Err)
	}

	assert.LessOrEqual(t, peak.Load(), int64(2), "semaphore must cap simultaneous downloads")
}

func TestFetchFeedCanceledContext(t *testing.T) {
	srv := serveFeed(t, validRSS, nil)
	f := NewFetcher(1, "firefeed-test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.FetchFeed(ctx, models.Feed{URL: srv.URL}, nil)
	require.Error(t, err)
}
