package metrics

import (
	"testing"
	"time"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
	"github.com/stretchr/testify/require"
)

func TestInMemorySinkRecordsObservations(t *testing.T) {
	sink := NewInMemorySink()

	start := time.Now()
	sink.ObserveTask(model.TaskMetrics{StartDate: start, EndDate: start.Add(time.Second)})
	sink.ObserveSession(model.SessionMetrics{WasResumed: true})
	sink.ObserveTransition("probing_disk_cache", "decoding", "disk_hit")

	require.Equal(t, 1, sink.TaskCount())
	require.Equal(t, 1, sink.SessionCount())
	require.True(t, sink.Sessions[0].WasResumed)
	require.Equal(t, []string{"probing_disk_cache->decoding:disk_hit"}, sink.Transitions)
}

func TestNoopSinkDiscardsSilently(t *testing.T) {
	sink := Noop()
	require.NotPanics(t, func() {
		sink.ObserveTask(model.TaskMetrics{})
		sink.ObserveSession(model.SessionMetrics{})
		sink.ObserveTransition("created", "terminal", "cancel")
	})
}

func TestPrometheusSinkObserveDoesNotPanic(t *testing.T) {
	sink := NewPrometheusSink()
	now := time.Now()

	require.NotPanics(t, func() {
		sink.ObserveTask(model.TaskMetrics{StartDate: now, EndDate: now.Add(50 * time.Millisecond), WasCancelled: true})
		sink.ObserveSession(model.SessionMetrics{
			NetworkStart:        now,
			NetworkEnd:          now.Add(10 * time.Millisecond),
			DownloadedDataCount: 2048,
			WasResumed:          true,
		})
		sink.ObserveTransition("downloading", "decoding", "downloaded")
	})
}
