// Package opqueue implements the pipeline's bounded operation queue: a
// priority FIFO with a max-in-flight cap, used to admit network, decode,
// and processing operations.
package opqueue

import (
	"container/heap"
	"sync"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/pcancel"
)

// Default in-flight caps per stage.
const (
	DefaultNetworkCap    = 6
	DefaultDecodeCap     = 1
	DefaultProcessingCap = 2
)

// Item is the handle returned by Enqueue. Its only caller-facing use after
// enqueue is Reprioritize.
type Item struct {
	priority model.Priority
	seq      int64
	index    int // position in the waiting heap; -1 once popped or removed

	start    func(finish func())
	onCancel func()
	once     sync.Once
	finished bool // set once finish has run; guarded by Queue.mu
}

// Queue admits items in priority order (ties broken by enqueue time) up to
// a configured in-flight cap. Items begin waiting; once dispatched they run
// until their finish func is called, exactly once, by the caller.
type Queue struct {
	cap int

	mu       sync.Mutex
	inFlight int
	seq      int64
	waiting  waitHeap
}

// New creates a Queue with the given max-in-flight cap.
func New(cap int) *Queue {
	q := &Queue{cap: cap}
	heap.Init(&q.waiting)
	return q
}

// Enqueue admits start to run once the queue has a free in-flight slot and
// start is at the front of the priority/FIFO order. start is called exactly
// once, with a finish func the caller must invoke exactly once to free the
// slot. onCancel is invoked if token cancels while the item is in flight;
// if token cancels while the item is still waiting, the item is removed
// from the queue and start is never called. If token is already cancelled,
// Enqueue is a no-op.
func (q *Queue) Enqueue(token pcancel.Token, priority model.Priority, start func(finish func()), onCancel func()) *Item {
	if token != nil && token.IsCancelled() {
		return nil
	}

	it := &Item{priority: priority, start: start, onCancel: onCancel, index: -1}

	q.mu.Lock()
	q.seq++
	it.seq = q.seq
	heap.Push(&q.waiting, it)
	q.mu.Unlock()

	if token != nil {
		token.Register(func() { q.cancel(it) })
	}

	q.dispatch()
	return it
}

// Reprioritize updates an item's priority. If the item is still waiting,
// its position in the FIFO order is recomputed; in-flight items are never
// preempted, so reprioritizing one has no effect.
func (q *Queue) Reprioritize(it *Item, priority model.Priority) {
	q.mu.Lock()
	it.priority = priority
	if it.index >= 0 {
		heap.Fix(&q.waiting, it.index)
	}
	q.mu.Unlock()
}

// InFlight reports the current number of admitted, not-yet-finished items.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// Waiting reports the current number of items not yet admitted.
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting.Len()
}

func (q *Queue) cancel(it *Item) {
	q.mu.Lock()
	if it.index >= 0 {
		heap.Remove(&q.waiting, it.index)
		q.mu.Unlock()
		return
	}
	finished := it.finished
	q.mu.Unlock()

	if finished {
		return
	}
	if it.onCancel != nil {
		it.onCancel()
	}
}

func (q *Queue) dispatch() {
	for {
		q.mu.Lock()
		if q.inFlight >= q.cap || q.waiting.Len() == 0 {
			q.mu.Unlock()
			return
		}
		it := heap.Pop(&q.waiting).(*Item)
		it.index = -1
		q.inFlight++
		q.mu.Unlock()

		it.start(q.finishFunc(it))
	}
}

func (q *Queue) finishFunc(it *Item) func() {
	return func() {
		it.once.Do(func() {
			q.mu.Lock()
			it.finished = true
			q.inFlight--
			q.mu.Unlock()
			q.dispatch()
		})
	}
}

// waitHeap orders items by descending priority, earliest enqueue time
// first within a priority tier.
type waitHeap []*Item

func (h waitHeap) Len() int { return len(h) }

func (h waitHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h waitHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waitHeap) Push(x any) {
	it := x.(*Item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *waitHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}
