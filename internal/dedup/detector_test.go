package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firefeed/pipeline/internal/storage"
)

// stubStore overrides only the storage methods the detector touches;
// calling anything else panics through the embedded nil interface.
type stubStore struct {
	storage.Storage

	urlMatch   *storage.MatchInfo
	urlErr     error
	embedding  []float32
	saved      map[string][]float32
	neighbors  []storage.Candidate
	nearestErr error

	nearestExclude string
}

func (s *stubStore) CheckDuplicateByURL(ctx context.Context, link string) (*storage.MatchInfo, error) {
	return s.urlMatch, s.urlErr
}

func (s *stubStore) GetEmbedding(ctx context.Context, itemID string) ([]float32, error) {
	return s.embedding, nil
}

func (s *stubStore) SaveEmbedding(ctx context.Context, itemID string, vec []float32) error {
	if s.saved == nil {
		s.saved = make(map[string][]float32)
	}
	s.saved[itemID] = vec
	return nil
}

func (s *stubStore) NearestByEmbedding(ctx context.Context, vec []float32, excludeID string, limit int) ([]storage.Candidate, error) {
	s.nearestExclude = excludeID
	return s.neighbors, s.nearestErr
}

type stubEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (e *stubEmbedder) Embed(ctx context.Context, text, lang string) ([]float32, error) {
	e.calls++
	return e.vec, e.err
}

func TestDynamicThreshold(t *testing.T) {
	tests := []struct {
		name       string
		textLength int
		textType   string
		want       float64
	}{
		{"base medium", 500, "other", 0.90},
		{"title medium", 500, TextTypeTitle, 0.85},
		{"content medium", 500, TextTypeContent, 0.95},
		{"title short loosens", 30, TextTypeTitle, 0.80},
		{"content long tightens", 1200, TextTypeContent, 0.97},
		{"base short", 10, "other", 0.85},
		{"base long", 1500, "other", 0.92},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, DynamicThreshold(tt.textLength, tt.textType), 1e-9)
		})
	}
}

func TestDynamicThresholdClamped(t *testing.T) {
	// No reachable combination escapes the clamp, but the bounds must
	// hold for any input.
	for _, length := range []int{0, 49, 50, 1000, 1001, 100000} {
		for _, typ := range []string{TextTypeTitle, TextTypeContent, "other"} {
			got := DynamicThreshold(length, typ)
			assert.GreaterOrEqual(t, got, 0.70)
			assert.LessOrEqual(t, got, 0.98)
		}
	}
}

func TestIsDuplicateByURLShortCircuits(t *testing.T) {
	store := &stubStore{
		urlMatch: &storage.MatchInfo{ItemID: "abc", Reason: storage.ReasonSameURL},
	}
	embedder := &stubEmbedder{}
	d := NewDetector(store, embedder)

	verdict, err := d.IsDuplicate(context.Background(), "title", "content", "https://example.com/a", "en")
	require.NoError(t, err)

	assert.True(t, verdict.IsDuplicate)
	assert.Equal(t, storage.ReasonSameURL, verdict.Match.Reason)
	assert.Zero(t, embedder.calls, "URL match must not trigger an embedding call")
}

func TestIsDuplicateURLCheckErrorPropagates(t *testing.T) {
	store := &stubStore{urlErr: errors.New("db locked")}
	d := NewDetector(store, &stubEmbedder{})

	_, err := d.IsDuplicate(context.Background(), "t", "c", "https://example.com/a", "en")
	require.Error(t, err)
}

func TestIsDuplicateSemanticMatch(t *testing.T) {
	// Similarity above the content threshold for a medium text (0.95).
	store := &stubStore{
		neighbors: []storage.Candidate{
			{ItemID: "near", Title: "similar", Similarity: 0.96},
		},
	}
	d := NewDetector(store, &stubEmbedder{vec: []float32{1, 0}})

	verdict, err := d.IsDuplicate(context.Background(), "title", "some content body", "https://example.com/new", "en")
	require.NoError(t, err)

	assert.True(t, verdict.IsDuplicate)
	assert.Equal(t, "near", verdict.Match.ItemID)
	assert.Equal(t, storage.ReasonSemantic, verdict.Match.Reason)
}

func TestIsDuplicateTieIsNotDuplicate(t *testing.T) {
	threshold := DynamicThreshold(len("title")+len("some content body"), TextTypeContent)
	store := &stubStore{
		neighbors: []storage.Candidate{
			{ItemID: "near", Similarity: threshold},
		},
	}
	d := NewDetector(store, &stubEmbedder{vec: []float32{1, 0}})

	verdict, err := d.IsDuplicate(context.Background(), "title", "some content body", "https://example.com/new", "en")
	require.NoError(t, err)

	assert.False(t, verdict.IsDuplicate, "similarity equal to the threshold must pass")
	assert.NotEmpty(t, verdict.Embedding, "unique verdict must carry the computed embedding")
}

func TestProcessItemReusesStoredEmbedding(t *testing.T) {
	store := &stubStore{embedding: []float32{0.5, 0.5}}
	embedder := &stubEmbedder{vec: []float32{1, 0}}
	d := NewDetector(store, embedder)

	unique, err := d.ProcessItem(context.Background(), "item-1", "title", "content", "en")
	require.NoError(t, err)

	assert.True(t, unique)
	assert.Zero(t, embedder.calls, "stored embedding must be reused")
	assert.Equal(t, "item-1", store.nearestExclude, "item must be excluded from its own neighbor query")
}

func TestProcessItemSavesFreshEmbeddingWhenUnique(t *testing.T) {
	store := &stubStore{}
	embedder := &stubEmbedder{vec: []float32{1, 0}}
	d := NewDetector(store, embedder)

	unique, err := d.ProcessItem(context.Background(), "item-2", "title", "content", "en")
	require.NoError(t, err)

	assert.True(t, unique)
	assert.Equal(t, []float32{1, 0}, store.saved["item-2"])
}

func TestProcessItemDuplicateDiscardsEmbedding(t *testing.T) {
	store := &stubStore{
		neighbors: []storage.Candidate{{ItemID: "near", Similarity: 0.99}},
	}
	embedder := &stubEmbedder{vec: []float32{1, 0}}
	d := NewDetector(store, embedder)

	unique, err := d.ProcessItem(context.Background(), "item-3", "title", "content", "en")
	require.NoError(t, err)

	assert.False(t, unique)
	assert.Empty(t, store.saved, "duplicate item must not persist its embedding")
}
