package hv

import (
	"context"
	"errors"
	"testing"
)

type scriptedSource struct {
	events []ExitEvent
	runs   int
	runErr error
}

func (s *scriptedSource) Run(ctx context.Context) error {
	if s.runs >= len(s.events) {
		if s.runErr != nil {
			return s.runErr
		}
		return errors.New("ran past end of script")
	}
	s.runs++
	return nil
}

func (s *scriptedSource) Exit() ExitEvent {
	return s.events[s.runs-1]
}

type recordingObserver struct {
	events []ExitEvent
}

func (o *recordingObserver) ObserveExit(ev ExitEvent) {
	o.events = append(o.events, ev)
}

func TestDispatcherTerminalEvents(t *testing.T) {
	for _, tc := range []struct {
		name string
		ev   ExitEvent
		want State
	}{
		{"halt", ExitHalt{}, StateHalted},
		{"shutdown", ExitShutdown{}, StateShutdown},
		{"fail entry", ExitFailEntry{Reason: 0x21}, StateFatal},
		{"internal error", ExitInternalError{Suberror: 1}, StateFatal},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var d Dispatcher
			if got := d.Observe(tc.ev); got != tc.want {
				t.Fatalf("Observe(%T) = %v, want %v", tc.ev, got, tc.want)
			}
			if !tc.want.Terminal() {
				t.Fatalf("state %v should be terminal", tc.want)
			}
		})
	}
}

func TestDispatcherIOContinues(t *testing.T) {
	var d Dispatcher

	for i := 0; i < 100; i++ {
		ev := ExitIO{Direction: IOOut, Port: 0x8a00, Size: 1, Count: 1}
		if got := d.Observe(ev); got != StateContinue {
			t.Fatalf("I/O exit %d: got %v, want %v", i, got, StateContinue)
		}
	}

	if got := d.Observe(ExitHalt{}); got != StateHalted {
		t.Fatalf("halt after I/O noise: got %v, want %v", got, StateHalted)
	}
}

func TestDispatcherFatalDetail(t *testing.T) {
	var d Dispatcher

	d.Observe(ExitFailEntry{Reason: 0xdead})

	var entryErr *EntryFailureError
	if !errors.As(d.Err(), &entryErr) {
		t.Fatalf("Err() = %v, want *EntryFailureError", d.Err())
	}
	if entryErr.Reason != 0xdead {
		t.Fatalf("entry failure reason = 0x%x, want 0xdead", entryErr.Reason)
	}

	d = Dispatcher{}
	d.Observe(ExitInternalError{Suberror: 3, Data: []uint64{7, 8}})

	var internalErr *InternalGuestError
	if !errors.As(d.Err(), &internalErr) {
		t.Fatalf("Err() = %v, want *InternalGuestError", d.Err())
	}
	if internalErr.Suberror != 3 || len(internalErr.Data) != 2 {
		t.Fatalf("internal error detail = %+v", internalErr)
	}
}

func TestDispatcherGuardTrips(t *testing.T) {
	var d Dispatcher

	for i := 0; i < DefaultGuardLimit; i++ {
		if got := d.Observe(ExitUnknown{Reason: 99}); got != StateContinue {
			t.Fatalf("unknown exit %d: got %v, want %v", i+1, got, StateContinue)
		}
	}

	got := d.Observe(ExitUnknown{Reason: 99})
	if got != StateGuardTripped {
		t.Fatalf("exit %d: got %v, want %v", DefaultGuardLimit+1, got, StateGuardTripped)
	}

	var guardErr *GuardTrippedError
	if !errors.As(d.Err(), &guardErr) {
		t.Fatalf("Err() = %v, want *GuardTrippedError", d.Err())
	}
	if guardErr.Count != DefaultGuardLimit+1 {
		t.Fatalf("guard count = %d, want %d", guardErr.Count, DefaultGuardLimit+1)
	}
}

func TestDispatcherGuardResetOnRecognizedExit(t *testing.T) {
	var d Dispatcher

	for i := 0; i < DefaultGuardLimit; i++ {
		d.Observe(ExitUnknown{Reason: 99})
	}

	// A recognized exit resets the counter, buying another full window.
	if got := d.Observe(ExitIO{Direction: IOOut, Port: 1, Size: 1, Count: 1}); got != StateContinue {
		t.Fatalf("I/O exit: got %v, want %v", got, StateContinue)
	}

	for i := 0; i < DefaultGuardLimit; i++ {
		if got := d.Observe(ExitHardware{Reason: 1}); got != StateContinue {
			t.Fatalf("hardware exit %d after reset: got %v, want %v", i+1, got, StateContinue)
		}
	}

	if got := d.Observe(ExitHardware{Reason: 1}); got != StateGuardTripped {
		t.Fatalf("got %v, want %v", got, StateGuardTripped)
	}
}

func TestDispatcherCustomGuardLimit(t *testing.T) {
	d := Dispatcher{GuardLimit: 2}

	if got := d.Observe(ExitUnknown{}); got != StateContinue {
		t.Fatalf("exit 1: got %v", got)
	}
	if got := d.Observe(ExitUnknown{}); got != StateContinue {
		t.Fatalf("exit 2: got %v", got)
	}
	if got := d.Observe(ExitUnknown{}); got != StateGuardTripped {
		t.Fatalf("exit 3: got %v, want %v", got, StateGuardTripped)
	}
}

func TestDriveUntilHalt(t *testing.T) {
	src := &scriptedSource{events: []ExitEvent{
		ExitIO{Direction: IOOut, Port: 0x8a00, Size: 1, Count: 1},
		ExitIO{Direction: IOOut, Port: 0x8a00, Size: 1, Count: 1},
		ExitHalt{},
	}}
	obs := &recordingObserver{}

	state, err := Drive(context.Background(), src, nil, obs)
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if state != StateHalted {
		t.Fatalf("final state = %v, want %v", state, StateHalted)
	}
	if len(obs.events) != 3 {
		t.Fatalf("observer saw %d events, want 3", len(obs.events))
	}
	if _, ok := obs.events[2].(ExitHalt); !ok {
		t.Fatalf("last observed event = %T, want ExitHalt", obs.events[2])
	}
}

func TestDriveRunErrorAborts(t *testing.T) {
	runErr := errors.New("KVM_RUN failed")
	src := &scriptedSource{
		events: []ExitEvent{ExitIO{Direction: IOOut, Port: 1, Size: 1, Count: 1}},
		runErr: runErr,
	}

	_, err := Drive(context.Background(), src, nil, NopObserver{})
	if !errors.Is(err, runErr) {
		t.Fatalf("Drive error = %v, want wrapped %v", err, runErr)
	}
	if src.runs != 1 {
		t.Fatalf("source ran %d times, want 1", src.runs)
	}
}

func TestDriveGuardTripped(t *testing.T) {
	events := make([]ExitEvent, DefaultGuardLimit+1)
	for i := range events {
		events[i] = ExitUnknown{Reason: 42}
	}
	src := &scriptedSource{events: events}

	state, err := Drive(context.Background(), src, nil, nil)
	if state != StateGuardTripped {
		t.Fatalf("final state = %v, want %v", state, StateGuardTripped)
	}
	var guardErr *GuardTrippedError
	if !errors.As(err, &guardErr) {
		t.Fatalf("Drive error = %v, want *GuardTrippedError", err)
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateContinue:     "continue",
		StateHalted:       "halted",
		StateShutdown:     "shutdown",
		StateFatal:        "fatal",
		StateGuardTripped: "guard-tripped",
	} {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
