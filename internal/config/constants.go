package config

// Constants defining default values for application configuration
const (
	DefaultFeedsCSVPath = "./feeds.csv"
	DefaultDBPath       = "./firefeed.db"

	DefaultWorkerCount   = 0  // 0 means use runtime.NumCPU()
	DefaultInterval      = 3  // Minutes between processing runs
	DefaultRetentionDays = 30 // Days to keep items before purging

	DefaultMaxConcurrentFetches = 5
	DefaultValidatorCacheTTL    = 300 // Seconds

	DefaultTranslationEnabled   = true
	DefaultTranslationWorkers   = 1
	DefaultTranslationQueueSize = 30
	DefaultMaxCachedModels      = 5
	DefaultModelCleanupInterval = 1800 // Seconds

	DefaultEmbeddingURL   = "http://localhost:8091"
	DefaultTranslationURL = "http://localhost:8092"

	DefaultTargetLanguages = "en,ru,de,fr"

	DefaultOpsAddr = "" // Empty string disables the ops listener

	DefaultUserAgent = "FireFeed/1.0"

	DefaultLogLevel = "debug"
)
