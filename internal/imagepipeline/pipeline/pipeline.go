// Package pipeline implements the orchestrator: the state machine that
// drives a Load Session from submission through disk probe, download,
// decode, processing, and delivery, with cancellation and
// resumable-download support. All session-state mutation happens on a
// single serial "pipeline context" goroutine; collaborator completions
// (disk lookup, network chunk/complete, decode result) re-enter that
// context as commands, in the style of a worker orchestrator's
// command-channel pump.
package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/metrics"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/opqueue"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/ratelimit"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Pipeline is the orchestrator. Construct with New and release resources
// with Close.
type Pipeline struct {
	opts Options
	deps Dependencies

	tracer trace.Tracer

	sessions    *session.Table
	tasks       map[int64]*taskState
	netQueue    *opqueue.Queue
	decodeQueue *opqueue.Queue
	procQueue   *opqueue.Queue

	cmdCh     chan any
	deliverCh chan func()
	quit      chan struct{}
	closed    atomic.Bool

	runWG      sync.WaitGroup
	deliverWG  sync.WaitGroup
}

// New constructs a Pipeline and starts its serial context and delivery
// goroutines. DataLoader and DecoderFactory in deps must be non-nil.
func New(opts Options, deps Dependencies) *Pipeline {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop()
	}
	if deps.Limiter == nil && opts.RateLimiterEnabled {
		deps.Limiter = ratelimit.New(ratelimit.DefaultCapacity, ratelimit.DefaultRefill)
	}

	p := &Pipeline{
		opts:        opts,
		deps:        deps,
		tracer:      otel.Tracer("imagepipeline"),
		sessions:    session.NewTable(),
		tasks:       make(map[int64]*taskState),
		netQueue:    opqueue.New(opts.NetworkQueueCap),
		decodeQueue: opqueue.New(opts.DecodeQueueCap),
		procQueue:   opqueue.New(opts.ProcessingQueueCap),
		cmdCh:       make(chan any, 256),
		deliverCh:   make(chan func(), 256),
		quit:        make(chan struct{}),
	}

	p.runWG.Add(1)
	go p.run()
	p.deliverWG.Add(1)
	go p.runDeliveries()

	return p
}

// LoadImage submits a request and returns a Task handle. onProgress (may be
// nil) is called for each partial image; onComplete is called exactly once,
// unless the task is cancelled, in which case it is never called.
func (p *Pipeline) LoadImage(req model.Request, onProgress func(model.ImageContainer), onComplete func(model.Response, error)) *Task {
	task := &Task{id: model.NextTaskID()}
	task.pipeline = p

	p.post(cmdSubmit{task: task, req: req, onProgress: onProgress, onComplete: onComplete})
	return task
}

// Close stops the pipeline context and delivery goroutines and releases the
// rate limiter. It does not close injected collaborators (caches, stores) —
// callers own those.
func (p *Pipeline) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.quit)
	p.runWG.Wait()
	close(p.deliverCh)
	p.deliverWG.Wait()

	if p.deps.Limiter != nil {
		p.deps.Limiter.Close()
	}
}

// post sends a command into the serial context, dropping it silently if the
// pipeline has been closed in the meantime (a collaborator callback firing
// after shutdown).
func (p *Pipeline) post(cmd any) {
	select {
	case p.cmdCh <- cmd:
	case <-p.quit:
	}
}

// deliver queues a callback onto the main delivery context, distinct from
// the pipeline context
func (p *Pipeline) deliver(fn func()) {
	select {
	case p.deliverCh <- fn:
	case <-p.quit:
	}
}

func (p *Pipeline) run() {
	defer p.runWG.Done()
	for {
		select {
		case cmd := <-p.cmdCh:
			p.handle(cmd)
		case <-p.quit:
			return
		}
	}
}

func (p *Pipeline) runDeliveries() {
	defer p.deliverWG.Done()
	for fn := range p.deliverCh {
		fn()
	}
}

func (p *Pipeline) handle(cmd any) {
	switch v := cmd.(type) {
	case cmdSubmit:
		p.handleSubmit(v)
	case cmdCancelTask:
		p.handleCancelTask(v)
	case cmdSetPriority:
		p.handleSetPriority(v)
	case cmdAdmitted:
		p.handleAdmitted(v)
	case cmdDiskProbeResult:
		p.handleDiskProbeResult(v)
	case cmdNetworkChunk:
		p.handleNetworkChunk(v)
	case cmdNetworkComplete:
		p.handleNetworkComplete(v)
	case cmdDecodeResult:
		p.handleDecodeResult(v)
	case cmdProcessed:
		p.handleProcessed(v)
	}
}
