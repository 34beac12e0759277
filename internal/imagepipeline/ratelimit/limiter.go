// Package ratelimit implements the pipeline's admission gate: a token
// bucket that delays session starts under bursty load without ever adding
// latency when tokens are available.
package ratelimit

import (
	"sync"
	"time"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/pcancel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// DefaultCapacity and DefaultRefill are the token bucket parameters: a
// burst of 30, refilling at 25 tokens/sec.
const (
	DefaultCapacity = 30
	DefaultRefill   = 25
)

// pumpInterval bounds how long a queued job can wait for a refilled bucket
// to be rechecked once the bucket was empty at enqueue time.
const pumpInterval = 10 * time.Millisecond

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "imagepipeline",
		Subsystem: "ratelimit",
		Name:      "queue_depth",
		Help:      "Work items waiting for a rate-limiter token.",
	})

	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "imagepipeline",
		Subsystem: "ratelimit",
		Name:      "dropped_total",
		Help:      "Queued work items dropped because their token cancelled first.",
	})
)

type job struct {
	token pcancel.Token
	work  func()
}

// Limiter gates work behind a token bucket. Execute runs work immediately
// when a token is available; otherwise the call is queued in FIFO order and
// retried on refill. A token cancelled while queued causes its work to be
// dropped silently instead of run.
type Limiter struct {
	bucket *rate.Limiter

	mu      sync.Mutex
	queue   []*job
	closed  bool
	stopCh  chan struct{}
	stopped chan struct{}
}

// New creates a Limiter with the given bucket capacity and refill rate in
// tokens per second. Use DefaultCapacity/DefaultRefill for spec defaults.
func New(capacity int, refillPerSec float64) *Limiter {
	l := &Limiter{
		bucket:  rate.NewLimiter(rate.Limit(refillPerSec), capacity),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.pump()
	return l
}

// Execute schedules work to run as soon as the bucket admits it. If token
// is already cancelled, Execute is a no-op. work runs on the goroutine that
// admitted it — either the calling goroutine (bucket non-empty) or the
// limiter's internal pump (bucket was empty at enqueue time).
func (l *Limiter) Execute(token pcancel.Token, work func()) {
	if token != nil && token.IsCancelled() {
		return
	}

	if l.bucket.Allow() {
		work()
		return
	}

	l.mu.Lock()
	l.queue = append(l.queue, &job{token: token, work: work})
	depth := len(l.queue)
	l.mu.Unlock()
	queueDepth.Set(float64(depth))
}

// Close stops the limiter's background refill pump. Work still queued when
// Close is called never runs.
func (l *Limiter) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	close(l.stopCh)
	<-l.stopped
}

func (l *Limiter) pump() {
	defer close(l.stopped)

	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.drain()
		}
	}
}

// drain runs queued jobs while the bucket still admits them, dropping any
// whose token cancelled while waiting.
func (l *Limiter) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		next := l.queue[0]
		l.mu.Unlock()

		if next.token != nil && next.token.IsCancelled() {
			l.popFront()
			droppedTotal.Inc()
			continue
		}

		if !l.bucket.Allow() {
			return
		}

		l.popFront()
		next.work()
	}
}

func (l *Limiter) popFront() {
	l.mu.Lock()
	if len(l.queue) > 0 {
		l.queue = l.queue[1:]
	}
	queueDepth.Set(float64(len(l.queue)))
	l.mu.Unlock()
}
