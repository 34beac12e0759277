// Package session implements the Load Session (spec §4.2): the per-URL unit
// of network-fetch-and-decode work that every Task with the same loading key
// joins instead of re-issuing. All mutation happens on the pipeline's single
// serial context goroutine, so Session itself carries no internal locking —
// the same discipline a worker orchestrator
// uses for its per-job sessionContext map.
package session

import (
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/fsm"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/opqueue"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/pcancel"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/processing"
)

// Subscriber is one Task attached to a Session, waiting on progress and/or a
// terminal result.
type Subscriber struct {
	TaskID     int64
	Priority   model.Priority
	Request    model.Request
	OnChunk    func(container model.ImageContainer)
	OnComplete func(resp model.Response, err error)
}

// Session is the find-or-create unit keyed by loading key. Fields are public
// because the pipeline package's step functions (handleSubmit,
// handleNetworkChunk, handleDecodeResult, failSession, teardownSession and
// the rest) read and mutate them directly from the single serial context
// goroutine.
type Session struct {
	Key     string
	Request model.Request // template request: URL + whatever the first subscriber supplied
	Machine *fsm.Machine[State, Event]
	Cancel  *pcancel.Source

	Buffer            []byte
	TransportResponse *model.TransportResponse
	Decoder           model.Decoder
	LastContainer     *model.ImageContainer
	DecodeInFlight    bool
	ResumableSnapshot *model.ResumableState

	Processing *processing.Table

	Metrics model.SessionMetrics

	// CurrentItem is the opqueue handle backing whichever stage (network or
	// decode) is presently admitted or waiting, so a priority change can
	// reach Reprioritize. Cleared once that stage finishes.
	CurrentItem *opqueue.Item

	subscribers map[int64]*Subscriber
	priority    model.Priority
}

// New creates a Session for the given loading key and seed request.
func New(key string, req model.Request) *Session {
	return &Session{
		Key:         key,
		Request:     req,
		Machine:     NewMachine(),
		Cancel:      pcancel.NewSource(),
		Processing:  processing.NewTable(),
		subscribers: make(map[int64]*Subscriber),
		priority:    model.PriorityVeryLow,
	}
}

// AddSubscriber attaches a Task to this Session and recomputes priority.
func (s *Session) AddSubscriber(sub *Subscriber) {
	s.subscribers[sub.TaskID] = sub
	s.recomputePriority()
}

// RemoveSubscriber detaches a Task. It returns true when no subscribers
// remain, signaling the caller (the pipeline) that this Session should be
// cancelled and removed from its Table.
func (s *Session) RemoveSubscriber(taskID int64) bool {
	delete(s.subscribers, taskID)
	s.recomputePriority()
	return len(s.subscribers) == 0
}

// SetSubscriberPriority updates one subscriber's priority in place and
// recomputes the session's effective priority. A no-op if taskID isn't
// currently subscribed.
func (s *Session) SetSubscriberPriority(taskID int64, priority model.Priority) {
	sub, ok := s.subscribers[taskID]
	if !ok {
		return
	}
	sub.Priority = priority
	s.recomputePriority()
}

// Subscribers returns the current subscriber set. Callers must not retain
// the returned slice across a mutation of the session.
func (s *Session) Subscribers() []*Subscriber {
	out := make([]*Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		out = append(out, sub)
	}
	return out
}

// SubscriberCount reports how many tasks are currently attached.
func (s *Session) SubscriberCount() int {
	return len(s.subscribers)
}

// Priority is the max priority across all current subscribers.
func (s *Session) Priority() model.Priority {
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

// Table is the pipeline's registry of live sessions, keyed by loading key.
type Table struct {
	sessions map[string]*Session
}

// NewTable creates an empty session Table.
func NewTable() *Table {
	return &Table{sessions: make(map[string]*Session)}
}

// Get looks up a Session by loading key.
func (t *Table) Get(key string) (*Session, bool) {
	s, ok := t.sessions[key]
	return s, ok
}

// Put registers a Session under its loading key.
func (t *Table) Put(s *Session) {
	t.sessions[s.Key] = s
}

// Delete removes a Session from the table.
func (t *Table) Delete(key string) {
	delete(t.sessions, key)
}

// Len reports how many sessions are currently live.
func (t *Table) Len() int {
	return len(t.sessions)
}
