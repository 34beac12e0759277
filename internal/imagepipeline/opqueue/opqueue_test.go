package opqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/pcancel"
)

func TestEnqueueRunsImmediatelyUnderCap(t *testing.T) {
	q := New(2)
	src := pcancel.NewSource()

	started := make(chan struct{})
	q.Enqueue(src.Token(), model.PriorityNormal, func(finish func()) {
		close(started)
	}, nil)

	select {
	case <-started:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected item to start immediately under cap")
	}
}

func TestEnqueueRespectsCap(t *testing.T) {
	q := New(1)
	src := pcancel.NewSource()

	blockA := make(chan struct{})
	finishA := make(chan func())
	q.Enqueue(src.Token(), model.PriorityNormal, func(finish func()) {
		finishA <- finish
		<-blockA
	}, nil)
	<-finishA // item A is running

	startedB := make(chan struct{})
	q.Enqueue(src.Token(), model.PriorityNormal, func(finish func()) {
		close(startedB)
		finish()
	}, nil)

	select {
	case <-startedB:
		t.Fatal("expected item B to wait for the cap")
	case <-time.After(50 * time.Millisecond):
	}

	close(blockA)

	select {
	case <-startedB:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected item B to start once A finished")
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	q := New(1)
	src := pcancel.NewSource()

	var finish func()
	done := make(chan struct{})
	q.Enqueue(src.Token(), model.PriorityNormal, func(f func()) {
		finish = f
		close(done)
	}, nil)
	<-done

	finish()
	finish()
	finish()

	if q.InFlight() != 0 {
		t.Errorf("expected inFlight=0 after repeated finish, got %d", q.InFlight())
	}
}

func TestPriorityOrderingAmongWaiters(t *testing.T) {
	q := New(1)
	src := pcancel.NewSource()

	var finishA func()
	doneA := make(chan struct{})
	q.Enqueue(src.Token(), model.PriorityNormal, func(f func()) {
		finishA = f
		close(doneA)
	}, nil)
	<-doneA

	var mu sync.Mutex
	var order []string

	q.Enqueue(src.Token(), model.PriorityLow, func(f func()) {
		mu.Lock()
		order = append(order, "low")
		mu.Unlock()
		f()
	}, nil)
	q.Enqueue(src.Token(), model.PriorityVeryHigh, func(f func()) {
		mu.Lock()
		order = append(order, "veryhigh")
		mu.Unlock()
		f()
	}, nil)
	q.Enqueue(src.Token(), model.PriorityNormal, func(f func()) {
		mu.Lock()
		order = append(order, "normal")
		mu.Unlock()
		f()
	}, nil)

	finishA()

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"veryhigh", "normal", "low"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestCancelWaitingItemRemovesIt(t *testing.T) {
	q := New(1)
	blockerSrc := pcancel.NewSource()

	var finishBlocker func()
	doneBlocker := make(chan struct{})
	q.Enqueue(blockerSrc.Token(), model.PriorityNormal, func(f func()) {
		finishBlocker = f
		close(doneBlocker)
	}, nil)
	<-doneBlocker

	waiterSrc := pcancel.NewSource()
	ran := false
	q.Enqueue(waiterSrc.Token(), model.PriorityNormal, func(f func()) {
		ran = true
		f()
	}, nil)

	waiterSrc.Cancel()
	finishBlocker()

	time.Sleep(50 * time.Millisecond)
	if ran {
		t.Error("expected cancelled waiting item to never start")
	}
	if q.Waiting() != 0 {
		t.Errorf("expected waiting item to be removed from queue, waiting=%d", q.Waiting())
	}
}

func TestCancelInFlightItemInvokesOnCancelButStillRequiresFinish(t *testing.T) {
	q := New(1)
	src := pcancel.NewSource()

	var finish func()
	started := make(chan struct{})
	cancelled := make(chan struct{})

	q.Enqueue(src.Token(), model.PriorityNormal, func(f func()) {
		finish = f
		close(started)
	}, func() { close(cancelled) })

	<-started
	src.Cancel()

	select {
	case <-cancelled:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected onCancel to be invoked for an in-flight item")
	}

	if q.InFlight() != 1 {
		t.Error("expected in-flight item to remain counted until finish is called")
	}
	finish()
	if q.InFlight() != 0 {
		t.Error("expected finish to release the in-flight slot")
	}
}

func TestAlreadyCancelledTokenNeverStarts(t *testing.T) {
	q := New(2)
	src := pcancel.NewSource()
	src.Cancel()

	ran := false
	it := q.Enqueue(src.Token(), model.PriorityNormal, func(f func()) {
		ran = true
		f()
	}, nil)

	if it != nil {
		t.Error("expected Enqueue on an already-cancelled token to return nil")
	}
	time.Sleep(20 * time.Millisecond)
	if ran {
		t.Error("expected item to never start")
	}
}
