package pipeline

import (
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/metrics"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/ratelimit"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/resumable"
)

// Dependencies are the pipeline's injected collaborator traits.
// DataLoader and DecoderFactory are required; the rest are optional and
// the corresponding feature is simply skipped when nil.
type Dependencies struct {
	DataLoader     model.DataLoader
	DecoderFactory model.DecoderFactory

	DataCache  model.DataCache  // nil disables the disk-probe stage
	ImageCache model.ImageCache // nil disables the memory-cache short-circuit

	ResumableStore resumable.Store // nil disables resumable downloads even when Options.ResumableDataEnabled

	Limiter *ratelimit.Limiter // built from ratelimit.DefaultCapacity/Refill if nil and enabled
	Metrics metrics.Sink       // defaults to metrics.Noop()
}
