// Package httpclient implements model.DataLoader against a real HTTP origin:
// streamed chunked reads, Range/If-Range resume negotiation, and a circuit
// breaker guarding a misbehaving origin from repeated retries.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
	"github.com/ManuGH/imagepipeline/internal/log"
	"github.com/ManuGH/imagepipeline/internal/resilience"
)

const (
	defaultChunkSize  = 32 * 1024
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 2
)

// Options configures a Loader.
type Options struct {
	Timeout      time.Duration
	ChunkSize    int
	MaxRetries   int
	Backoff      time.Duration
	CBThreshold  int
	CBMinAttempt int
	CBWindow     time.Duration
	CBReset      time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = defaultChunkSize
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.Backoff <= 0 {
		o.Backoff = 200 * time.Millisecond
	}
	if o.CBThreshold <= 0 {
		o.CBThreshold = 5
	}
	if o.CBMinAttempt <= 0 {
		o.CBMinAttempt = 5
	}
	if o.CBWindow <= 0 {
		o.CBWindow = time.Minute
	}
	if o.CBReset <= 0 {
		o.CBReset = 30 * time.Second
	}
	return o
}

// Loader is a model.DataLoader backed by net/http.
type Loader struct {
	client *http.Client
	opts   Options
	cb     *resilience.CircuitBreaker
}

// New builds a Loader. name identifies the circuit breaker in logs.
func New(name string, opts Options) *Loader {
	opts = opts.withDefaults()
	return &Loader{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		cb: resilience.NewCircuitBreaker(name, opts.CBThreshold, opts.CBMinAttempt,
			opts.CBWindow, opts.CBReset),
	}
}

type cancelFunc func()

func (c cancelFunc) Cancel() { c() }

// LoadData issues the GET (with Range/If-Range when resume is set), streams
// the body in opts.ChunkSize pieces to onChunk, and calls onComplete exactly
// once. The returned handle aborts the in-flight request.
func (l *Loader) LoadData(ctx context.Context, req model.Request, resume *model.ResumableState, onChunk model.ChunkFunc, onComplete model.CompleteFunc) model.CancelHandle {
	ctx, cancel := context.WithCancel(ctx)
	var once sync.Once

	go func() {
		err := l.cb.Execute(func() error {
			return l.run(ctx, req, resume, onChunk)
		})
		once.Do(func() { onComplete(err) })
	}()

	return cancelFunc(func() {
		cancel()
	})
}

func (l *Loader) run(ctx context.Context, req model.Request, resume *model.ResumableState, onChunk model.ChunkFunc) error {
	logger := log.WithComponent("httpclient")

	var lastErr error
	for attempt := 0; attempt <= l.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.opts.Backoff * time.Duration(attempt)):
			}
		}

		err := l.attempt(ctx, req, resume, onChunk)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		logger.Warn().Err(err).Int("attempt", attempt).Str("url", req.URL).Msg("load attempt failed")
	}
	return fmt.Errorf("httpclient: load %s failed after %d attempts: %w", req.URL, l.opts.MaxRetries+1, lastErr)
}

func (l *Loader) attempt(ctx context.Context, req model.Request, resume *model.ResumableState, onChunk model.ChunkFunc) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return err
	}

	if resume != nil && len(resume.Accumulated) > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", len(resume.Accumulated)))
		if resume.Validator != "" {
			httpReq.Header.Set("If-Range", resume.Validator)
		}
	}

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != model.PartialContentStatus {
		return fmt.Errorf("httpclient: unexpected status %d for %s", resp.StatusCode, req.URL)
	}

	transport := model.TransportResponse{
		StatusCode:     resp.StatusCode,
		ExpectedLength: resp.ContentLength,
		Validator:      resp.Header.Get("ETag"),
		Resumed:        resp.StatusCode == model.PartialContentStatus,
	}
	if transport.Validator == "" {
		transport.Validator = resp.Header.Get("Last-Modified")
	}

	buf := make([]byte, l.opts.ChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onChunk(chunk, transport)
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
