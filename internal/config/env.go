package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/imagepipeline/internal/log"
)

// ApplyEnv overlays IMGLOADD_* environment variables onto cfg, returning the
// result. Unset variables leave the corresponding field untouched.
func ApplyEnv(cfg PipelineConfig) PipelineConfig {
	cfg.Deduplication = parseBool("IMGLOADD_DEDUPLICATION_ENABLED", cfg.Deduplication)
	cfg.RateLimiter = parseBool("IMGLOADD_RATE_LIMITER_ENABLED", cfg.RateLimiter)
	cfg.ProgressiveDecoding = parseBool("IMGLOADD_PROGRESSIVE_DECODING_ENABLED", cfg.ProgressiveDecoding)
	cfg.ResumableData = parseBool("IMGLOADD_RESUMABLE_DATA_ENABLED", cfg.ResumableData)
	cfg.AnimatedImageData = parseBool("IMGLOADD_ANIMATED_IMAGE_DATA_ENABLED", cfg.AnimatedImageData)

	cfg.NetworkQueueCap = parseInt("IMGLOADD_NETWORK_QUEUE_CAP", cfg.NetworkQueueCap)
	cfg.DecodeQueueCap = parseInt("IMGLOADD_DECODE_QUEUE_CAP", cfg.DecodeQueueCap)
	cfg.ProcessingQueueCap = parseInt("IMGLOADD_PROCESSING_QUEUE_CAP", cfg.ProcessingQueueCap)

	cfg.RateLimiterCapacity = parseInt("IMGLOADD_RATE_LIMITER_CAPACITY", cfg.RateLimiterCapacity)
	cfg.RateLimiterRefill = parseFloat("IMGLOADD_RATE_LIMITER_REFILL", cfg.RateLimiterRefill)

	cfg.DiskCache.Path = parseString("IMGLOADD_DISK_CACHE_PATH", cfg.DiskCache.Path)
	cfg.DiskCache.CountLimit = parseInt("IMGLOADD_DISK_CACHE_COUNT_LIMIT", cfg.DiskCache.CountLimit)
	cfg.DiskCache.SizeLimit = int64(parseInt("IMGLOADD_DISK_CACHE_SIZE_LIMIT", int(cfg.DiskCache.SizeLimit)))

	cfg.MemoryCache.TTL = parseDuration("IMGLOADD_MEMORY_CACHE_TTL", cfg.MemoryCache.TTL)
	cfg.MemoryCache.CleanupInterval = parseDuration("IMGLOADD_MEMORY_CACHE_CLEANUP_INTERVAL", cfg.MemoryCache.CleanupInterval)

	cfg.ResumableStore.Path = parseString("IMGLOADD_RESUMABLE_STORE_PATH", cfg.ResumableStore.Path)

	cfg.LogLevel = parseString("IMGLOADD_LOG_LEVEL", cfg.LogLevel)

	return cfg
}

func parseString(key, defaultValue string) string {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	logger.Debug().Str("key", key).Str("value", v).Msg("using environment variable")
	return v
}

func parseInt(key string, defaultValue int) int {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Int("value", i).Msg("using environment variable")
	return i
}

func parseFloat(key string, defaultValue float64) float64 {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Msg("invalid float in environment variable, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Float64("value", f).Msg("using environment variable")
	return f
}

func parseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Dur("value", d).Msg("using environment variable")
	return d
}

func parseBool(key string, defaultValue bool) bool {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		logger.Debug().Str("key", key).Bool("value", true).Msg("using environment variable")
		return true
	case "false", "0", "no":
		logger.Debug().Str("key", key).Bool("value", false).Msg("using environment variable")
		return false
	default:
		logger.Warn().Str("key", key).Str("value", v).Msg("invalid boolean in environment variable, using default")
		return defaultValue
	}
}
