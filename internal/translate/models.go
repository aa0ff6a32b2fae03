// Package translate turns accepted items into multi-language renditions
// through a bounded worker queue and a bounded model cache.
package translate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"firefeed/pipeline/internal/ml"
)

type cachedModel struct {
	handle   ml.ModelHandle
	loadedAt time.Time
	lastUsed time.Time
}

// ModelLoader is the slice of the translation engine the cache needs.
type ModelLoader interface {
	LoadModel(ctx context.Context, sourceLang, targetLang string) (ml.ModelHandle, error)
}

// ManagerStats is a snapshot of the model cache for observability.
type ManagerStats struct {
	CachedModels int      `json:"cached_models"`
	CachedPairs  []string `json:"cached_pairs"`
}

// ModelManager caches translation model handles per language pair with
// an LRU size bound and idle-time eviction.
type ModelManager struct {
	loader          ModelLoader
	maxCached       int
	cleanupInterval time.Duration

	mu    sync.Mutex
	cache map[string]*cachedModel

	// loadMu serializes the check-then-load path so two callers never
	// load the same pair concurrently.
	loadMu sync.Mutex

	stopOnce sync.Once
	stop     chan struct{}
}

// popularPairs are warmed at startup; failures are ignored per pair.
var popularPairs = [][2]string{
	{"en", "ru"},
	{"ru", "en"},
	{"de", "en"},
	{"fr", "en"},
}

// NewModelManager creates a manager bounded to maxCached handles and
// starts its background idle sweep.
func NewModelManager(loader ModelLoader, maxCached int, cleanupInterval time.Duration) *ModelManager {
	if maxCached <= 0 {
		maxCached = 1
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 30 * time.Minute
	}

	m := &ModelManager{
		loader:          loader,
		maxCached:       maxCached,
		cleanupInterval: cleanupInterval,
		cache:           make(map[string]*cachedModel),
		stop:            make(chan struct{}),
	}
	go m.sweep()
	return m
}

func pairKey(src, tgt string) string {
	return src + "_" + tgt
}

// GetModel returns the cached handle for a language pair, loading it on
// first use. A cache hit refreshes the entry's recency.
func (m *ModelManager) GetModel(ctx context.Context, sourceLang, targetLang string) (ml.ModelHandle, error) {
	key := pairKey(sourceLang, targetLang)

	m.mu.Lock()
	if cached, ok := m.cache[key]; ok {
		cached.lastUsed = time.Now()
		handle := cached.handle
		m.mu.Unlock()
		return handle, nil
	}
	m.mu.Unlock()

	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	// Re-check under the load lock: another caller may have finished
	// loading this pair while we waited.
	m.mu.Lock()
	if cached, ok := m.cache[key]; ok {
		cached.lastUsed = time.Now()
		handle := cached.handle
		m.mu.Unlock()
		return handle, nil
	}
	m.mu.Unlock()

	log.Info().
		Str("source_lang", sourceLang).
		Str("target_lang", targetLang).
		Msg("Loading translation model")

	handle, err := m.loader.LoadModel(ctx, sourceLang, targetLang)
	if err != nil {
		return ml.ModelHandle{}, fmt.Errorf("load model %s-%s: %w", sourceLang, targetLang, err)
	}

	now := time.Now()
	m.mu.Lock()
	m.cache[key] = &cachedModel{handle: handle, loadedAt: now, lastUsed: now}
	m.enforceBoundLocked()
	m.mu.Unlock()

	return handle, nil
}

// PreloadPopular warms the common language pairs. Individual load
// failures are logged and skipped.
func (m *ModelManager) PreloadPopular(ctx context.Context) {
	log.Info().Msg("Preloading popular translation models")
	for _, pair := range popularPairs {
		if _, err := m.GetModel(ctx, pair[0], pair[1]); err != nil {
			log.Error().
				Err(err).
				Str("source_lang", pair[0]).
				Str("target_lang", pair[1]).
				Msg("Failed to preload model")
		}
	}
}

// Stats returns a snapshot of the cache contents.
func (m *ModelManager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	pairs := make([]string, 0, len(m.cache))
	for key := range m.cache {
		pairs = append(pairs, key)
	}
	sort.Strings(pairs)
	return ManagerStats{CachedModels: len(m.cache), CachedPairs: pairs}
}

// Close stops the background sweep and clears the cache.
func (m *ModelManager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	m.cache = make(map[string]*cachedModel)
	m.mu.Unlock()
}

// enforceBoundLocked evicts least-recently-used entries until the cache
// fits its configured bound. Callers hold m.mu.
func (m *ModelManager) enforceBoundLocked() {
	for len(m.cache) > m.maxCached {
		var oldestKey string
		var oldest *cachedModel
		for key, cached := range m.cache {
			if oldest == nil || cached.lastUsed.Before(oldest.lastUsed) {
				oldestKey = key
				oldest = cached
			}
		}
		log.Info().
			Str("pair", oldestKey).
			Time("loaded_at", oldest.loadedAt).
			Msg("Evicting cached model (size bound)")
		delete(m.cache, oldestKey)
	}
}

// sweep periodically evicts entries idle longer than twice the cleanup
// interval, independent of size pressure.
func (m *ModelManager) sweep() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictIdle(2 * m.cleanupInterval)
		case <-m.stop:
			return
		}
	}
}

func (m *ModelManager) evictIdle(maxIdle time.Duration) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, cached := range m.cache {
		if now.Sub(cached.lastUsed) > maxIdle {
			log.Info().
				Str("pair", key).
				Dur("resident", now.Sub(cached.loadedAt)).
				Msg("Evicting idle cached model")
			delete(m.cache, key)
		}
	}
}
