package model

import "time"

// TaskMetrics accumulates the lifecycle timestamps and flags tracked per
// task. Zero time.Time values mean "hasn't happened yet".
type TaskMetrics struct {
	StartDate time.Time
	EndDate   time.Time

	WasCancelled                    bool
	WasSubscribedToExistingSession  bool
	IsMemoryCacheHit                bool

	ProcessStart time.Time
	ProcessEnd   time.Time
}

// Duration returns the task's total wall-clock lifetime, or zero if it
// hasn't ended yet.
func (m TaskMetrics) Duration() time.Duration {
	if m.EndDate.IsZero() || m.StartDate.IsZero() {
		return 0
	}
	return m.EndDate.Sub(m.StartDate)
}

// ProcessingDuration returns time spent in the Processing Session stage, or
// zero if processing never started or hasn't finished.
func (m TaskMetrics) ProcessingDuration() time.Duration {
	if m.ProcessEnd.IsZero() || m.ProcessStart.IsZero() {
		return 0
	}
	return m.ProcessEnd.Sub(m.ProcessStart)
}

// SessionMetrics accumulates the lifecycle timestamps and counters tracked
// per Load Session: disk-probe, network, and decode phases, plus resume
// bookkeeping.
type SessionMetrics struct {
	DiskProbeStart time.Time
	DiskProbeEnd   time.Time

	NetworkStart time.Time
	NetworkEnd   time.Time

	DecodeStart time.Time
	DecodeEnd   time.Time

	DownloadedDataCount int64

	WasResumed           bool
	ResumedDataCount     int64
	ServerConfirmedResume bool

	WasCancelled bool
	EndDate      time.Time
}

// NetworkDuration returns time spent fetching over the network, or zero if
// the network phase never started or hasn't finished.
func (m SessionMetrics) NetworkDuration() time.Duration {
	if m.NetworkEnd.IsZero() || m.NetworkStart.IsZero() {
		return 0
	}
	return m.NetworkEnd.Sub(m.NetworkStart)
}

// DecodeDuration returns time spent decoding, or zero if decoding never
// started or hasn't finished.
func (m SessionMetrics) DecodeDuration() time.Duration {
	if m.DecodeEnd.IsZero() || m.DecodeStart.IsZero() {
		return 0
	}
	return m.DecodeEnd.Sub(m.DecodeStart)
}
