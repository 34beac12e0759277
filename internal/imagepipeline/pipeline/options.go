package pipeline

import (
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/diskcache"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/opqueue"
)

// Options are the pipeline-wide feature toggles and queue caps.
// Zero-value Options is not valid; use DefaultOptions as a base.
type Options struct {
	DeduplicationEnabled       bool
	RateLimiterEnabled         bool
	ProgressiveDecodingEnabled bool
	ResumableDataEnabled       bool
	AnimatedImageDataEnabled   bool

	NetworkQueueCap    int
	DecodeQueueCap     int
	ProcessingQueueCap int
}

// DefaultOptions mirrors the enumerated defaults.
func DefaultOptions() Options {
	return Options{
		DeduplicationEnabled:       true,
		RateLimiterEnabled:         true,
		ProgressiveDecodingEnabled: false,
		ResumableDataEnabled:       true,
		AnimatedImageDataEnabled:   false,
		NetworkQueueCap:            opqueue.DefaultNetworkCap,
		DecodeQueueCap:             opqueue.DefaultDecodeCap,
		ProcessingQueueCap:         opqueue.DefaultProcessingCap,
	}
}

// DefaultDiskCacheConfig mirrors the disk cache defaults, exposed
// here so callers wiring a Pipeline and its disk cache share one source of
// truth for countLimit/sizeLimit.
func DefaultDiskCacheConfig(path string) diskcache.Config {
	return diskcache.DefaultConfig(path)
}
