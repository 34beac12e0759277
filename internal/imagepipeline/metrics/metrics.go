// Package metrics aggregates per-task and per-session timing (spec §4.7)
// behind a Sink interface, decoupling the orchestrator from Prometheus so
// tests can observe an in-memory sink instead.
package metrics

import (
	"sync"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
)

// Sink receives a task's or session's metrics exactly once, when that
// task/session reaches a terminal state, plus one ObserveTransition call per
// Load Session state-machine edge as it fires.
type Sink interface {
	ObserveTask(model.TaskMetrics)
	ObserveSession(model.SessionMetrics)
	ObserveTransition(from, to, event string)
}

// InMemorySink records every observation, for tests that assert on
// collected metrics instead of scraping Prometheus.
type InMemorySink struct {
	mu          sync.Mutex
	Tasks       []model.TaskMetrics
	Sessions    []model.SessionMetrics
	Transitions []string
}

// NewInMemorySink creates an empty InMemorySink.
func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

func (s *InMemorySink) ObserveTask(m model.TaskMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tasks = append(s.Tasks, m)
}

func (s *InMemorySink) ObserveSession(m model.SessionMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sessions = append(s.Sessions, m)
}

func (s *InMemorySink) ObserveTransition(from, to, event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Transitions = append(s.Transitions, from+"->"+to+":"+event)
}

// TaskCount returns the number of task observations recorded so far.
func (s *InMemorySink) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Tasks)
}

// SessionCount returns the number of session observations recorded so far.
func (s *InMemorySink) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Sessions)
}

// noopSink discards every observation; used as the default when a Pipeline
// is constructed without an explicit Sink.
type noopSink struct{}

// Noop returns a Sink that discards everything.
func Noop() Sink { return noopSink{} }

func (noopSink) ObserveTask(model.TaskMetrics)          {}
func (noopSink) ObserveSession(model.SessionMetrics)    {}
func (noopSink) ObserveTransition(from, to, event string) {}
