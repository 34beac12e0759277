// Package resumable records partial downloads so an interrupted Load
// Session can resume instead of restarting from byte zero.
package resumable

import (
	"context"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
)

// Store is the resumable-data contract: a process-wide map keyed by the
// original request URL. Get returns (state, false, nil) on a clean miss.
type Store interface {
	Get(ctx context.Context, url string) (model.ResumableState, bool, error)
	Put(ctx context.Context, url string, state model.ResumableState) error
	Delete(ctx context.Context, url string) error
	Close() error
}
