package pipeline

import (
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/session"
	"go.opentelemetry.io/otel/trace"
)

// Commands are the only way anything outside the pipeline's serial context
// goroutine touches session or task state; every collaborator completion
// (disk lookup, network chunk/complete, decode result, processing result)
// re-enters the context as one of these.

type cmdSubmit struct {
	task       *Task
	req        model.Request
	onProgress func(container model.ImageContainer)
	onComplete func(resp model.Response, err error)
}

type cmdCancelTask struct {
	taskID int64
}

type cmdSetPriority struct {
	taskID   int64
	priority model.Priority
}

type cmdAdmitted struct {
	sessionKey string
}

type cmdDiskProbeResult struct {
	sessionKey string
	data       []byte
	found      bool
	span       trace.Span
}

type cmdNetworkChunk struct {
	sessionKey string
	chunk      []byte
	resp       model.TransportResponse
}

type cmdNetworkComplete struct {
	sessionKey string
	err        error
	span       trace.Span
}

type cmdDecodeResult struct {
	sessionKey string
	isFinal    bool
	image      model.Image
	err        error
	scanNumber int
	hasScan    bool
	span       trace.Span
}

type cmdProcessed struct {
	ts      *taskState
	sess    *session.Session
	image   model.Image
	err     error
	isFinal bool
}
