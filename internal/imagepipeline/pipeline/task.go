package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
)

// Task is the public handle returned by Pipeline.LoadImage. It is safe for
// concurrent use by callers; all mutation it triggers is funneled through
// the owning Pipeline's serial command channel.
type Task struct {
	id       int64
	pipeline *Pipeline

	cancelled atomic.Bool

	progressMu sync.Mutex
	completed  int64
	total      int64

	startDate time.Time
}

// ID returns the task's unique identifier.
func (t *Task) ID() int64 { return t.id }

// SetPriority changes the task's priority. The effective priority of the
// Load Session the task is attached to is recomputed as the max across its
// subscribers; Processing Sessions the task has already joined keep the
// priority they were started with.
func (t *Task) SetPriority(p model.Priority) {
	t.pipeline.post(cmdSetPriority{taskID: t.id, priority: p})
}

// Cancel requests cancellation. Idempotent: calling it more than once has
// no additional effect. A cancelled task never receives a completion
// callback, only the metrics hook if one is installed.
func (t *Task) Cancel() {
	if t.cancelled.CompareAndSwap(false, true) {
		t.pipeline.post(cmdCancelTask{taskID: t.id})
	}
}

// Progress returns a lazy snapshot of (bytes completed, bytes total). Total
// is 0 until the response's expected length is known.
func (t *Task) Progress() (completed, total int64) {
	t.progressMu.Lock()
	defer t.progressMu.Unlock()
	return t.completed, t.total
}

func (t *Task) setProgress(completed, total int64) {
	t.progressMu.Lock()
	t.completed, t.total = completed, total
	t.progressMu.Unlock()
}

// taskState is the pipeline-context-private bookkeeping for a submitted
// task: the public Task handle plus everything needed to route chunks and
// terminal results back to the caller.
type taskState struct {
	task       *Task
	req        model.Request
	sessionKey string
	onProgress func(container model.ImageContainer)
	onComplete func(resp model.Response, err error)
	metrics    model.TaskMetrics
	delivered  bool

	// processingBusy is set while a non-final image from this task's
	// session is dispatched to (or awaiting a result from) a Processing
	// Session. Per-task processing backpressure: additional non-final
	// images are dropped, not queued, while this is true. Final images are
	// never gated by it.
	processingBusy bool
}
