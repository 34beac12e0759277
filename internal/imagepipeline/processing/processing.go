// Package processing implements the Processing Session: the shared run of
// one processor over one decoded image, within a single Load Session
// (spec §4.6).
package processing

import (
	"context"
	"fmt"
	"sync"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/opqueue"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/pcancel"
	"go.opentelemetry.io/otel/trace"
)

// Subscriber is one task waiting on a Processing Session's result.
type Subscriber struct {
	TaskID   int64
	Priority model.Priority
	OnResult func(image model.Image, err error, isFinal bool)
}

// Session is the shared processor run keyed by (processor identity, input
// image identity). Its priority tracks the max of its subscribers'.
// Session is kept by the owning Load Session's processing table, but its
// processor run executes on its own goroutine (see Dispatch) so it can
// overlap with other pipeline-context work. subMu guards the subscriber map
// and priority, the only fields that run-goroutine and pipeline-context
// code both touch.
type Session struct {
	Key       string
	Processor model.Processor
	Input     model.ImageContainer
	Cancel    *pcancel.Source

	subMu       sync.Mutex
	subscribers map[int64]*Subscriber
	priority    model.Priority
	item        *opqueue.Item
}

// ImageIdentity derives the identity component of a processing key from a
// decoded image. Images are reference types (pointers, slices, maps) in
// practice, so their runtime address stands in for object identity; two
// progressive partials from the same session never share one.
func ImageIdentity(image model.Image) string {
	return fmt.Sprintf("%p", image)
}

// Key combines a processor's identity with an image's identity.
func Key(processorIdentity, imageIdentity string) string {
	return processorIdentity + "::" + imageIdentity
}

// NewSession creates an empty Processing Session for key.
func NewSession(key string, processor model.Processor, input model.ImageContainer) *Session {
	return &Session{
		Key:         key,
		Processor:   processor,
		Input:       input,
		Cancel:      pcancel.NewSource(),
		subscribers: make(map[int64]*Subscriber),
	}
}

// AddSubscriber registers sub and recomputes priority.
func (s *Session) AddSubscriber(sub *Subscriber) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers[sub.TaskID] = sub
	s.recomputePriority()
}

// RemoveSubscriber drops a subscriber and reports whether none remain.
func (s *Session) RemoveSubscriber(taskID int64) bool {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	delete(s.subscribers, taskID)
	s.recomputePriority()
	return len(s.subscribers) == 0
}

// Subscribers returns the current subscriber set.
func (s *Session) Subscribers() []*Subscriber {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	out := make([]*Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		out = append(out, sub)
	}
	return out
}

// Priority returns the session's current effective priority.
func (s *Session) Priority() model.Priority {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.priority
}

func (s *Session) recomputePriority() {
	best := model.PriorityVeryLow
	for _, sub := range s.subscribers {
		if sub.Priority > best {
			best = sub.Priority
		}
	}
	s.priority = best
}

// SetItem records the opqueue handle backing this session's processing run,
// so later priority changes can reach Reprioritize.
func (s *Session) SetItem(item *opqueue.Item) { s.item = item }

// Item returns the opqueue handle set by SetItem, or nil before dispatch.
func (s *Session) Item() *opqueue.Item { return s.item }

// Table tracks active Processing Sessions for one Load Session, keyed by
// Key(). Unlike a Load Session's own state, a Table is touched both from
// the pipeline's serial context (Dispatch joining/creating a session) and
// from a completing processor's own goroutine (deleting it once done), so
// it carries a mutex rather than relying on single-writer discipline.
type Table struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{sessions: make(map[string]*Session)}
}

// Get looks up a session by key.
func (t *Table) Get(key string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[key]
	return s, ok
}

// Put registers a session.
func (t *Table) Put(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[s.Key] = s
}

// Delete removes a session from the table.
func (t *Table) Delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, key)
}

// Len reports the number of active sessions.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Config gates whether animated-flagged images are processed at all and
// carries the tracer Dispatch uses to span each processor run. Tracer may be
// nil, in which case no span is recorded.
type Config struct {
	AnimatedImageDataEnabled bool
	Tracer                   trace.Tracer
}

// Dispatch implements spec §4.6: route a decoded container to the
// (possibly shared) Processing Session for req.Processor, joining an
// existing run on (processor, image) identity match or creating and
// admitting a new one to queue. onResult is called once per image: a
// progress call for a non-final container, a terminal call for a final
// one. If req.Processor is nil, or the container is flagged animated and
// cfg disables processing for animated payloads, the image passes through
// unprocessed and onResult is called synchronously.
func Dispatch(table *Table, queue *opqueue.Queue, taskID int64, req model.Request, container model.ImageContainer, cfg Config, onResult func(image model.Image, err error, isFinal bool)) {
	if req.Processor == nil || (container.IsAnimated && cfg.AnimatedImageDataEnabled) {
		onResult(container.Image, nil, container.IsFinal)
		return
	}

	key := Key(req.Processor.Identity(), ImageIdentity(container.Image))
	if existing, ok := table.Get(key); ok {
		existing.AddSubscriber(&Subscriber{TaskID: taskID, Priority: req.Priority, OnResult: onResult})
		return
	}

	sess := NewSession(key, req.Processor, container)
	sess.AddSubscriber(&Subscriber{TaskID: taskID, Priority: req.Priority, OnResult: onResult})
	table.Put(sess)

	item := queue.Enqueue(sess.Cancel.Token(), sess.Priority(), func(finish func()) {
		// Process runs on its own goroutine rather than inline: start is
		// invoked synchronously from the queue's dispatch loop, and a
		// processor is free to block, so running it inline here would stall
		// whatever context called Dispatch (the pipeline's serial context,
		// in production use).
		go func() {
			defer finish()
			ctx := context.Background()
			var span trace.Span
			if cfg.Tracer != nil {
				ctx, span = cfg.Tracer.Start(ctx, "imaging.process")
			}
			image, err := sess.Processor.Process(ctx, sess.Input, req)
			if span != nil {
				if err != nil {
					span.RecordError(err)
				}
				span.End()
			}
			table.Delete(key)
			for _, sub := range sess.Subscribers() {
				if err != nil {
					sub.OnResult(nil, model.NewProcessingFailed(err), container.IsFinal)
					continue
				}
				sub.OnResult(image, nil, container.IsFinal)
			}
		}()
	}, func() {
		// The processor run itself isn't interruptible; cancellation here
		// only means no subscriber remains to receive the result.
	})
	sess.SetItem(item)
}
