package model

import "sync/atomic"

var taskIDSeq int64

// NextTaskID mints a monotonically increasing task identifier, process-wide.
func NextTaskID() int64 {
	return atomic.AddInt64(&taskIDSeq, 1)
}
