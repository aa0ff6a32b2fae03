package config

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	// File paths
	FeedsCSVPath string
	DBPath       string

	// Processing settings
	WorkerCount          int
	Interval             time.Duration
	RetentionDays        int
	MaxConcurrentFetches int
	ValidatorCacheTTL    time.Duration
	UserAgent            string

	// Translation settings
	TranslationEnabled   bool
	TranslationWorkers   int
	TranslationQueueSize int
	MaxCachedModels      int
	ModelCleanupInterval time.Duration
	TargetLanguages      []string

	// External model services
	EmbeddingURL   string
	TranslationURL string

	// Ops listener (empty disables)
	OpsAddr string

	// Log settings
	LogLevel zerolog.Level
}

// DefaultConfig returns an initial configuration with hardcoded defaults,
// overridable through environment variables.
func DefaultConfig() *Config {
	logLevel, _ := zerolog.ParseLevel(DefaultLogLevel)

	return &Config{
		FeedsCSVPath:         DefaultFeedsCSVPath,
		DBPath:               DefaultDBPath,
		WorkerCount:          GetEnvInt("FIREFEED_WORKER_COUNT", DefaultWorkerCount),
		Interval:             time.Duration(DefaultInterval) * time.Minute,
		RetentionDays:        DefaultRetentionDays,
		MaxConcurrentFetches: DefaultMaxConcurrentFetches,
		ValidatorCacheTTL:    time.Duration(DefaultValidatorCacheTTL) * time.Second,
		UserAgent:            GetEnvString("FIREFEED_USER_AGENT", DefaultUserAgent),
		TranslationEnabled:   GetEnvBool("FIREFEED_TRANSLATION_ENABLED", DefaultTranslationEnabled),
		TranslationWorkers:   GetEnvInt("FIREFEED_TRANSLATION_WORKERS", DefaultTranslationWorkers),
		TranslationQueueSize: GetEnvInt("FIREFEED_TRANSLATION_QUEUE_SIZE", DefaultTranslationQueueSize),
		MaxCachedModels:      GetEnvInt("FIREFEED_MAX_CACHED_MODELS", DefaultMaxCachedModels),
		ModelCleanupInterval: GetEnvDuration("FIREFEED_MODEL_CLEANUP_INTERVAL", time.Duration(DefaultModelCleanupInterval)*time.Second),
		TargetLanguages:      ParseLanguages(GetEnvString("FIREFEED_TARGET_LANGUAGES", DefaultTargetLanguages)),
		EmbeddingURL:         GetEnvString("FIREFEED_EMBEDDING_URL", DefaultEmbeddingURL),
		TranslationURL:       GetEnvString("FIREFEED_TRANSLATION_URL", DefaultTranslationURL),
		OpsAddr:              GetEnvString("FIREFEED_OPS_ADDR", DefaultOpsAddr),
		LogLevel:             logLevel,
	}
}

// ParseLanguages splits a comma-separated language list, dropping empty
// entries and surrounding whitespace.
func ParseLanguages(s string) []string {
	parts := strings.Split(s, ",")
	langs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			langs = append(langs, p)
		}
	}
	return langs
}
