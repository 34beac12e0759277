// Package config holds the daemon's pipeline configuration: enumerated
// defaults, a YAML file representation, and environment overrides,
// mirroring a file/env layered config split between defaults, file, and
// env layers.
package config

import (
	"time"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/diskcache"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/opqueue"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/pipeline"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/ratelimit"
)

// PipelineConfig is the YAML-facing configuration for one imgloadd
// instance. Feature toggles are plain bools rather than a tri-state *bool
// pattern: every one of them has a concrete default, so there is no
// "unset" state worth distinguishing from "false".
type PipelineConfig struct {
	Deduplication       bool `yaml:"deduplication"`
	RateLimiter         bool `yaml:"rateLimiter"`
	ProgressiveDecoding bool `yaml:"progressiveDecoding"`
	ResumableData       bool `yaml:"resumableData"`
	AnimatedImageData   bool `yaml:"animatedImageData"`

	NetworkQueueCap    int `yaml:"networkQueueCap,omitempty"`
	DecodeQueueCap     int `yaml:"decodeQueueCap,omitempty"`
	ProcessingQueueCap int `yaml:"processingQueueCap,omitempty"`

	RateLimiterCapacity int     `yaml:"rateLimiterCapacity,omitempty"`
	RateLimiterRefill   float64 `yaml:"rateLimiterRefill,omitempty"`

	DiskCache      DiskCacheConfig      `yaml:"diskCache,omitempty"`
	MemoryCache    MemoryCacheConfig    `yaml:"memoryCache,omitempty"`
	ResumableStore ResumableStoreConfig `yaml:"resumableStore,omitempty"`

	LogLevel string `yaml:"logLevel,omitempty"`
}

// DiskCacheConfig mirrors diskcache.Config field for field.
type DiskCacheConfig struct {
	Path       string `yaml:"path,omitempty"`
	CountLimit int    `yaml:"countLimit,omitempty"`
	SizeLimit  int64  `yaml:"sizeLimit,omitempty"`
}

// MemoryCacheConfig configures the in-process TTL image cache. An empty
// TTL disables the memory cache entirely (cmd/imgloadd wires no
// model.ImageCache in that case).
type MemoryCacheConfig struct {
	TTL             time.Duration `yaml:"ttl,omitempty"`
	CleanupInterval time.Duration `yaml:"cleanupInterval,omitempty"`
}

// ResumableStoreConfig selects the resumable-download store backend. An
// empty Path uses an in-process map that does not survive restart; a
// non-empty Path opens a SQLite-backed store there.
type ResumableStoreConfig struct {
	Path string `yaml:"path,omitempty"`
}

// Defaults returns the pipeline's enumerated default configuration.
func Defaults() PipelineConfig {
	return PipelineConfig{
		Deduplication:       true,
		RateLimiter:         true,
		ProgressiveDecoding: false,
		ResumableData:       true,
		AnimatedImageData:   false,

		NetworkQueueCap:    opqueue.DefaultNetworkCap,
		DecodeQueueCap:     opqueue.DefaultDecodeCap,
		ProcessingQueueCap: opqueue.DefaultProcessingCap,

		RateLimiterCapacity: ratelimit.DefaultCapacity,
		RateLimiterRefill:   ratelimit.DefaultRefill,

		DiskCache: DiskCacheConfig{
			Path:       "",
			CountLimit: 1000,
			SizeLimit:  100 << 20,
		},
		MemoryCache: MemoryCacheConfig{
			TTL:             5 * time.Minute,
			CleanupInterval: time.Minute,
		},

		LogLevel: "info",
	}
}

// ToOptions converts the file/env-resolved configuration into
// pipeline.Options.
func (c PipelineConfig) ToOptions() pipeline.Options {
	return pipeline.Options{
		DeduplicationEnabled:       c.Deduplication,
		RateLimiterEnabled:         c.RateLimiter,
		ProgressiveDecodingEnabled: c.ProgressiveDecoding,
		ResumableDataEnabled:       c.ResumableData,
		AnimatedImageDataEnabled:   c.AnimatedImageData,
		NetworkQueueCap:            c.NetworkQueueCap,
		DecodeQueueCap:             c.DecodeQueueCap,
		ProcessingQueueCap:         c.ProcessingQueueCap,
	}
}

// ToDiskCacheConfig converts DiskCache into a diskcache.Config ready for
// diskcache.Open.
func (c PipelineConfig) ToDiskCacheConfig() diskcache.Config {
	return diskcache.Config{
		Path:       c.DiskCache.Path,
		CountLimit: c.DiskCache.CountLimit,
		SizeLimit:  c.DiskCache.SizeLimit,
	}
}
