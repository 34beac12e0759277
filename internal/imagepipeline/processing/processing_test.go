package processing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/opqueue"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	identity string
	calls    int
	mu       sync.Mutex
	fn       func(container model.ImageContainer, req model.Request) (model.Image, error)
}

func (p *fakeProcessor) Identity() string { return p.identity }

func (p *fakeProcessor) Process(_ context.Context, container model.ImageContainer, req model.Request) (model.Image, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.fn != nil {
		return p.fn(container, req)
	}
	return "processed:" + container.Image.(string), nil
}

func (p *fakeProcessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestDispatchPassesThroughWithoutProcessor(t *testing.T) {
	table := NewTable()
	queue := opqueue.New(2)

	var got model.Image
	Dispatch(table, queue, 1, model.Request{}, model.ImageContainer{Image: "raw", IsFinal: true}, Config{}, func(image model.Image, err error, isFinal bool) {
		got = image
	})

	require.Equal(t, "raw", got)
	require.Equal(t, 0, table.Len())
}

func TestDispatchPassesThroughForAnimatedWhenEnabled(t *testing.T) {
	table := NewTable()
	queue := opqueue.New(2)
	proc := &fakeProcessor{identity: "thumbnail"}

	var got model.Image
	Dispatch(table, queue, 1, model.Request{Processor: proc}, model.ImageContainer{Image: "gif", IsFinal: true, IsAnimated: true}, Config{AnimatedImageDataEnabled: true}, func(image model.Image, err error, isFinal bool) {
		got = image
	})

	require.Equal(t, "gif", got)
	require.Equal(t, 0, proc.callCount())
}

func TestDispatchSingleProcessorRunsOnce(t *testing.T) {
	table := NewTable()
	queue := opqueue.New(2)
	proc := &fakeProcessor{identity: "thumbnail"}

	img := "shared-image"
	var resultA, resultB model.Image
	done := make(chan struct{}, 2)

	Dispatch(table, queue, 1, model.Request{Processor: proc, Priority: model.PriorityNormal}, model.ImageContainer{Image: img, IsFinal: true}, Config{}, func(image model.Image, err error, isFinal bool) {
		resultA = image
		done <- struct{}{}
	})
	Dispatch(table, queue, 2, model.Request{Processor: proc, Priority: model.PriorityNormal}, model.ImageContainer{Image: img, IsFinal: true}, Config{}, func(image model.Image, err error, isFinal bool) {
		resultB = image
		done <- struct{}{}
	})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("processing result never delivered")
		}
	}

	require.Equal(t, 1, proc.callCount())
	require.Equal(t, resultA, resultB)
	require.Equal(t, "processed:shared-image", resultA)
}

func TestDispatchDistinctImagesGetDistinctSessions(t *testing.T) {
	table := NewTable()
	queue := opqueue.New(2)
	proc := &fakeProcessor{identity: "thumbnail"}

	done := make(chan model.Image, 2)
	Dispatch(table, queue, 1, model.Request{Processor: proc}, model.ImageContainer{Image: "imgA", IsFinal: true}, Config{}, func(image model.Image, err error, isFinal bool) {
		done <- image
	})
	Dispatch(table, queue, 2, model.Request{Processor: proc}, model.ImageContainer{Image: "imgB", IsFinal: true}, Config{}, func(image model.Image, err error, isFinal bool) {
		done <- image
	})

	results := map[model.Image]bool{}
	for i := 0; i < 2; i++ {
		select {
		case img := <-done:
			results[img] = true
		case <-time.After(time.Second):
			t.Fatal("processing result never delivered")
		}
	}

	require.Equal(t, 2, proc.callCount())
	require.True(t, results["processed:imgA"])
	require.True(t, results["processed:imgB"])
}

func TestPriorityIsMaxOfSubscribers(t *testing.T) {
	sess := NewSession("k", &fakeProcessor{identity: "p"}, model.ImageContainer{})
	sess.AddSubscriber(&Subscriber{TaskID: 1, Priority: model.PriorityLow})
	sess.AddSubscriber(&Subscriber{TaskID: 2, Priority: model.PriorityHigh})
	require.Equal(t, model.PriorityHigh, sess.Priority())

	emptied := sess.RemoveSubscriber(2)
	require.False(t, emptied)
	require.Equal(t, model.PriorityLow, sess.Priority())

	emptied = sess.RemoveSubscriber(1)
	require.True(t, emptied)
}
