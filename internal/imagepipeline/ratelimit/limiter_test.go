package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/pcancel"
)

func TestExecuteRunsImmediatelyWhenBucketNonEmpty(t *testing.T) {
	l := New(5, 5)
	defer l.Close()

	src := pcancel.NewSource()
	done := make(chan struct{})
	l.Execute(src.Token(), func() { close(done) })

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected work to run immediately with tokens available")
	}
}

func TestExecuteQueuesWhenBucketEmpty(t *testing.T) {
	l := New(1, 2) // burst 1, refill 2/s
	defer l.Close()

	src := pcancel.NewSource()

	// Drain the single token synchronously.
	first := make(chan struct{})
	l.Execute(src.Token(), func() { close(first) })
	<-first

	// Second call should queue, not run immediately.
	var ran int32
	l.Execute(src.Token(), func() { atomic.AddInt32(&ran, 1) })

	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatal("expected second job to queue, not run before refill")
	}

	// Wait for a refill tick.
	time.Sleep(600 * time.Millisecond)
	if atomic.LoadInt32(&ran) != 1 {
		t.Errorf("expected queued job to run after refill, got ran=%d", ran)
	}
}

func TestExecuteDropsCancelledQueuedWork(t *testing.T) {
	l := New(1, 1)
	defer l.Close()

	src1 := pcancel.NewSource()
	first := make(chan struct{})
	l.Execute(src1.Token(), func() { close(first) })
	<-first

	src2 := pcancel.NewSource()
	var ran int32
	l.Execute(src2.Token(), func() { atomic.AddInt32(&ran, 1) })
	src2.Cancel()

	time.Sleep(1200 * time.Millisecond)
	if atomic.LoadInt32(&ran) != 0 {
		t.Error("expected cancelled queued work to be dropped, not run")
	}
}

func TestExecuteNoOpOnAlreadyCancelledToken(t *testing.T) {
	l := New(5, 5)
	defer l.Close()

	src := pcancel.NewSource()
	src.Cancel()

	var ran int32
	l.Execute(src.Token(), func() { atomic.AddInt32(&ran, 1) })

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&ran) != 0 {
		t.Error("expected Execute on a cancelled token to be a no-op")
	}
}

func TestExecuteFIFOOrder(t *testing.T) {
	l := New(1, 3)
	defer l.Close()

	src := pcancel.NewSource()

	first := make(chan struct{})
	l.Execute(src.Token(), func() { close(first) })
	<-first

	var mu sync.Mutex
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		l.Execute(src.Token(), func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	time.Sleep(1500 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 {
		t.Fatalf("expected 3 queued jobs to run, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}
