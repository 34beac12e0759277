package session

import "github.com/ManuGH/imagepipeline/internal/imagepipeline/fsm"

// State is a Load Session's position in the dispatch state machine.
type State string

const (
	StateCreated           State = "created"
	StateAwaitingAdmission State = "awaiting_admission"
	StateProbingDiskCache  State = "probing_disk_cache"
	StateDownloading       State = "downloading"
	StateDecoding          State = "decoding"
	StateDelivering        State = "delivering"
	StateTerminal          State = "terminal"
)

// Event drives a Load Session's state machine forward.
type Event string

const (
	EventEnterAdmission Event = "enter_admission"
	EventSkipAdmission  Event = "skip_admission"
	EventAdmitted       Event = "admitted"
	EventDiskHit        Event = "disk_hit"
	EventDiskMiss       Event = "disk_miss"
	EventDownloaded     Event = "downloaded"
	EventDecoded        Event = "decoded"
	EventDelivered      Event = "delivered"
	EventCancel         Event = "cancel"
	EventFail           Event = "fail"
)

// NewMachine builds the Load Session transition table: admission
// is optional (skipped when rate limiting is disabled), disk probe may
// short-circuit straight to decoding, and cancel/fail reach Terminal from
// every non-terminal state.
func NewMachine() *fsm.Machine[State, Event] {
	active := []State{
		StateCreated,
		StateAwaitingAdmission,
		StateProbingDiskCache,
		StateDownloading,
		StateDecoding,
		StateDelivering,
	}

	transitions := []fsm.Transition[State, Event]{
		{From: StateCreated, Event: EventEnterAdmission, To: StateAwaitingAdmission},
		{From: StateCreated, Event: EventSkipAdmission, To: StateProbingDiskCache},
		{From: StateAwaitingAdmission, Event: EventAdmitted, To: StateProbingDiskCache},
		{From: StateProbingDiskCache, Event: EventDiskHit, To: StateDecoding},
		{From: StateProbingDiskCache, Event: EventDiskMiss, To: StateDownloading},
		{From: StateDownloading, Event: EventDownloaded, To: StateDecoding},
		{From: StateDecoding, Event: EventDecoded, To: StateDelivering},
		{From: StateDelivering, Event: EventDelivered, To: StateTerminal},
	}

	for _, s := range active {
		transitions = append(transitions,
			fsm.Transition[State, Event]{From: s, Event: EventCancel, To: StateTerminal},
			fsm.Transition[State, Event]{From: s, Event: EventFail, To: StateTerminal},
		)
	}

	m, err := fsm.New(StateCreated, transitions)
	if err != nil {
		// The transition table above is static and non-overlapping; a
		// build error here means the table itself was edited incorrectly.
		panic(err)
	}
	return m
}
