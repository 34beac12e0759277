package metrics

import (
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusSink exports task and session metrics as histograms/counters
// namespaced imagepipeline_*, mirroring per-subsystem metric
// files (fsmTransitions, readyOutcomeTotal style counters keyed by outcome).
type PrometheusSink struct {
	taskDuration    prometheus.Histogram
	taskCancelled   prometheus.Counter
	taskMemCacheHit prometheus.Counter

	sessionNetworkDuration prometheus.Histogram
	sessionDecodeDuration  prometheus.Histogram
	sessionResumed         prometheus.Counter
	sessionCancelled       prometheus.Counter
	downloadedBytesTotal   prometheus.Counter

	fsmTransitions *prometheus.CounterVec
}

// NewPrometheusSink registers and returns a Prometheus-backed Sink.
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{
		taskDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "imagepipeline",
			Subsystem: "task",
			Name:      "duration_seconds",
			Help:      "Wall-clock time from task submission to terminal callback.",
			Buckets:   prometheus.DefBuckets,
		}),
		taskCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "imagepipeline",
			Subsystem: "task",
			Name:      "cancelled_total",
			Help:      "Tasks that ended via cancellation.",
		}),
		taskMemCacheHit: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "imagepipeline",
			Subsystem: "task",
			Name:      "memory_cache_hit_total",
			Help:      "Tasks resolved directly from the memory cache.",
		}),
		sessionNetworkDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "imagepipeline",
			Subsystem: "session",
			Name:      "network_duration_seconds",
			Help:      "Time spent in the network-fetch stage per Load Session.",
			Buckets:   prometheus.DefBuckets,
		}),
		sessionDecodeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "imagepipeline",
			Subsystem: "session",
			Name:      "decode_duration_seconds",
			Help:      "Time spent in the decode stage per Load Session.",
			Buckets:   prometheus.DefBuckets,
		}),
		sessionResumed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "imagepipeline",
			Subsystem: "session",
			Name:      "resumed_total",
			Help:      "Sessions that resumed a prior partial download.",
		}),
		sessionCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "imagepipeline",
			Subsystem: "session",
			Name:      "cancelled_total",
			Help:      "Sessions that ended via cancellation.",
		}),
		downloadedBytesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "imagepipeline",
			Subsystem: "session",
			Name:      "downloaded_bytes_total",
			Help:      "Total bytes fetched over the network across all sessions.",
		}),
		fsmTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagepipeline",
			Subsystem: "session",
			Name:      "fsm_transitions_total",
			Help:      "Load Session state-machine transitions, by edge.",
		}, []string{"from", "to", "event"}),
	}
}

func (s *PrometheusSink) ObserveTask(m model.TaskMetrics) {
	if d := m.Duration(); d > 0 {
		s.taskDuration.Observe(d.Seconds())
	}
	if m.WasCancelled {
		s.taskCancelled.Inc()
	}
	if m.IsMemoryCacheHit {
		s.taskMemCacheHit.Inc()
	}
}

func (s *PrometheusSink) ObserveSession(m model.SessionMetrics) {
	if d := m.NetworkDuration(); d > 0 {
		s.sessionNetworkDuration.Observe(d.Seconds())
	}
	if d := m.DecodeDuration(); d > 0 {
		s.sessionDecodeDuration.Observe(d.Seconds())
	}
	if m.WasResumed {
		s.sessionResumed.Inc()
	}
	if m.WasCancelled {
		s.sessionCancelled.Inc()
	}
	s.downloadedBytesTotal.Add(float64(m.DownloadedDataCount))
}

func (s *PrometheusSink) ObserveTransition(from, to, event string) {
	s.fsmTransitions.WithLabelValues(from, to, event).Inc()
}
