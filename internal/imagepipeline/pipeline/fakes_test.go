package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
)

// cancelHandleFunc adapts a plain func into a model.CancelHandle, firing at
// most once regardless of how many times Cancel is called.
type cancelHandleFunc struct {
	once sync.Once
	fn   func()
}

func (c *cancelHandleFunc) Cancel() { c.once.Do(c.fn) }

// chunkPlan describes one onChunk delivery by byte count.
type chunkPlan struct {
	bytes int
}

// scriptedLoader is a model.DataLoader test double that delivers a fixed
// sequence of chunk sizes, then blocks on gate (if non-nil) before calling
// onComplete, so a test can deterministically interleave a cancel or a
// cache check between the last chunk and completion.
type scriptedLoader struct {
	mu        sync.Mutex
	calls     int
	plan      []chunkPlan
	totalLen  int64
	failErr   error
	gate      chan struct{}
	lastResume *model.ResumableState
}

func (l *scriptedLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func (l *scriptedLoader) resumeSeen() *model.ResumableState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastResume
}

func (l *scriptedLoader) LoadData(_ context.Context, _ model.Request, resume *model.ResumableState, onChunk model.ChunkFunc, onComplete model.CompleteFunc) model.CancelHandle {
	l.mu.Lock()
	l.calls++
	l.lastResume = resume
	plan := l.plan
	gate := l.gate
	l.mu.Unlock()

	done := make(chan struct{})
	handle := &cancelHandleFunc{fn: func() { close(done) }}

	go func() {
		status := 200
		if resume != nil {
			status = model.PartialContentStatus
		}
		for _, step := range plan {
			select {
			case <-done:
				return
			default:
			}
			onChunk(make([]byte, step.bytes), model.TransportResponse{
				StatusCode:     status,
				ExpectedLength: l.totalLen,
				Validator:      "etag-1",
			})
		}
		if gate != nil {
			select {
			case <-gate:
			case <-done:
				return
			}
		}
		select {
		case <-done:
			return
		default:
		}
		onComplete(l.failErr)
	}()

	return handle
}

// scriptedImage is the Image payload fakeDecoder produces: a pointer so
// processing.ImageIdentity (which formats via %p) sees a distinct identity
// per decode call, the same way a real decoded frame buffer would.
type scriptedImage struct {
	data []byte
}

// scriptedDecoder decodes by simply wrapping the bytes it was handed,
// tracking a monotonic scan counter shared across every Decode call for one
// session's lifetime (both partial and final).
type scriptedDecoder struct {
	scans atomic.Int64
}

func (d *scriptedDecoder) Decode(_ context.Context, data []byte, _ bool) (model.Image, error) {
	d.scans.Add(1)
	out := make([]byte, len(data))
	copy(out, data)
	return &scriptedImage{data: out}, nil
}

func (d *scriptedDecoder) NumberOfScans() int { return int(d.scans.Load()) }

func newScriptedDecoderFactory() model.DecoderFactory {
	return func(_ model.Request, _ *model.TransportResponse, _ []byte) (model.Decoder, error) {
		return &scriptedDecoder{}, nil
	}
}

// countingProcessor records how many times Process actually ran, so tests
// can assert a Processing Session was shared rather than duplicated.
type countingProcessor struct {
	id    string
	calls atomic.Int64
}

func (p *countingProcessor) Identity() string { return p.id }

func (p *countingProcessor) Process(_ context.Context, container model.ImageContainer, _ model.Request) (model.Image, error) {
	p.calls.Add(1)
	img := container.Image.(*scriptedImage)
	out := make([]byte, len(img.data))
	copy(out, img.data)
	return &scriptedImage{data: out}, nil
}

// gatedProcessor blocks its first non-final Process call on gate, letting a
// test hold one Processing Session outstanding while it asserts that
// further non-final dispatches are dropped rather than queued. Final calls
// are never gated.
type gatedProcessor struct {
	id            string
	gate          chan struct{}
	nonFinalCalls atomic.Int64
	finalCalls    atomic.Int64
}

func (p *gatedProcessor) Identity() string { return p.id }

func (p *gatedProcessor) Process(_ context.Context, container model.ImageContainer, _ model.Request) (model.Image, error) {
	if container.IsFinal {
		p.finalCalls.Add(1)
	} else if n := p.nonFinalCalls.Add(1); n == 1 && p.gate != nil {
		<-p.gate
	}
	img := container.Image.(*scriptedImage)
	out := make([]byte, len(img.data))
	copy(out, img.data)
	return &scriptedImage{data: out}, nil
}
