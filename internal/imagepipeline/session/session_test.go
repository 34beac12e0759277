package session

import (
	"testing"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
	"github.com/stretchr/testify/require"
)

func TestNewSessionStartsInCreatedState(t *testing.T) {
	s := New("k1", model.Request{URL: "https://example.com/a.jpg"})
	require.Equal(t, StateCreated, s.Machine.State())
	require.Equal(t, model.PriorityVeryLow, s.Priority())
	require.Equal(t, 0, s.SubscriberCount())
}

func TestAddRemoveSubscriberRecomputesPriority(t *testing.T) {
	s := New("k1", model.Request{})
	s.AddSubscriber(&Subscriber{TaskID: 1, Priority: model.PriorityLow})
	require.Equal(t, model.PriorityLow, s.Priority())

	s.AddSubscriber(&Subscriber{TaskID: 2, Priority: model.PriorityVeryHigh})
	require.Equal(t, model.PriorityVeryHigh, s.Priority())

	emptied := s.RemoveSubscriber(2)
	require.False(t, emptied)
	require.Equal(t, model.PriorityLow, s.Priority())

	emptied = s.RemoveSubscriber(1)
	require.True(t, emptied)
	require.Equal(t, model.PriorityVeryLow, s.Priority())
}

func TestMachineWalksSkipAdmissionDiskHitPath(t *testing.T) {
	s := New("k1", model.Request{})

	_, err := s.Machine.Fire(nil, EventSkipAdmission)
	require.NoError(t, err)
	require.Equal(t, StateProbingDiskCache, s.Machine.State())

	_, err = s.Machine.Fire(nil, EventDiskHit)
	require.NoError(t, err)
	require.Equal(t, StateDecoding, s.Machine.State())

	_, err = s.Machine.Fire(nil, EventDecoded)
	require.NoError(t, err)
	require.Equal(t, StateDelivering, s.Machine.State())

	_, err = s.Machine.Fire(nil, EventDelivered)
	require.NoError(t, err)
	require.Equal(t, StateTerminal, s.Machine.State())
}

func TestMachineWalksAdmissionDiskMissDownloadPath(t *testing.T) {
	s := New("k1", model.Request{})

	_, _ = s.Machine.Fire(nil, EventEnterAdmission)
	require.Equal(t, StateAwaitingAdmission, s.Machine.State())

	_, _ = s.Machine.Fire(nil, EventAdmitted)
	require.Equal(t, StateProbingDiskCache, s.Machine.State())

	_, _ = s.Machine.Fire(nil, EventDiskMiss)
	require.Equal(t, StateDownloading, s.Machine.State())

	_, _ = s.Machine.Fire(nil, EventDownloaded)
	require.Equal(t, StateDecoding, s.Machine.State())
}

func TestMachineCancelFromProbingDiskCacheReachesTerminal(t *testing.T) {
	s := New("k1", model.Request{})
	_, _ = s.Machine.Fire(nil, EventSkipAdmission)
	_, err := s.Machine.Fire(nil, EventCancel)
	require.NoError(t, err)
	require.Equal(t, StateTerminal, s.Machine.State())
}

func TestMachineRejectsEventNotValidForCurrentState(t *testing.T) {
	s := New("k1", model.Request{})
	_, err := s.Machine.Fire(nil, EventDecoded)
	require.Error(t, err)
	require.Equal(t, StateCreated, s.Machine.State())
}

func TestTableGetPutDelete(t *testing.T) {
	table := NewTable()
	s := New("k1", model.Request{})

	_, ok := table.Get("k1")
	require.False(t, ok)

	table.Put(s)
	got, ok := table.Get("k1")
	require.True(t, ok)
	require.Same(t, s, got)
	require.Equal(t, 1, table.Len())

	table.Delete("k1")
	require.Equal(t, 0, table.Len())
}
