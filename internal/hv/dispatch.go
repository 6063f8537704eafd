package hv

import (
	"context"
	"fmt"
)

// State is the control state of the run loop after dispatching an exit
// event. Every state other than StateContinue is terminal.
type State int

const (
	StateContinue State = iota
	StateHalted
	StateShutdown
	StateFatal
	StateGuardTripped
)

func (s State) String() string {
	switch s {
	case StateContinue:
		return "continue"
	case StateHalted:
		return "halted"
	case StateShutdown:
		return "shutdown"
	case StateFatal:
		return "fatal"
	case StateGuardTripped:
		return "guard-tripped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether the run loop must stop in this state.
func (s State) Terminal() bool { return s != StateContinue }

// DefaultGuardLimit bounds consecutive exits the dispatcher cannot
// classify before it stops the loop instead of spinning forever.
const DefaultGuardLimit = 10

// Dispatcher interprets successive exit events and drives the run
// loop's control state. The zero value is ready to use with
// DefaultGuardLimit.
type Dispatcher struct {
	// GuardLimit overrides DefaultGuardLimit when positive.
	GuardLimit int

	unhandled int
	err       error
}

func (d *Dispatcher) guardLimit() int {
	if d.GuardLimit > 0 {
		return d.GuardLimit
	}
	return DefaultGuardLimit
}

// Observe feeds one exit event to the dispatcher and returns the next
// control state. Recognized events reset the loop guard; hardware and
// unknown exits count against it.
func (d *Dispatcher) Observe(ev ExitEvent) State {
	switch ev := ev.(type) {
	case ExitHalt:
		d.unhandled = 0
		return StateHalted
	case ExitShutdown:
		d.unhandled = 0
		return StateShutdown
	case ExitIO:
		// No device model: the access has already been observed, there
		// is nothing further to do.
		d.unhandled = 0
		return StateContinue
	case ExitFailEntry:
		d.unhandled = 0
		d.err = &EntryFailureError{Reason: ev.Reason}
		return StateFatal
	case ExitInternalError:
		d.unhandled = 0
		d.err = &InternalGuestError{Suberror: ev.Suberror, Data: ev.Data}
		return StateFatal
	default:
		d.unhandled++
		if d.unhandled > d.guardLimit() {
			d.err = &GuardTrippedError{Count: d.unhandled}
			return StateGuardTripped
		}
		return StateContinue
	}
}

// Err returns the failure detail behind a StateFatal or
// StateGuardTripped transition, nil otherwise.
func (d *Dispatcher) Err() error { return d.err }

// Drive runs the vCPU until the dispatcher reaches a terminal state:
// run, decode the exit, hand it to the observer, dispatch, repeat. A
// failed run aborts immediately with the run error; the vCPU state is
// unspecified afterwards and the loop must not be resumed.
func Drive(ctx context.Context, src ExitSource, d *Dispatcher, obs ExitObserver) (State, error) {
	if d == nil {
		d = &Dispatcher{}
	}

	for {
		if err := src.Run(ctx); err != nil {
			return StateFatal, fmt.Errorf("hv: run vCPU: %w", err)
		}

		ev := src.Exit()
		if obs != nil {
			obs.ObserveExit(ev)
		}

		if state := d.Observe(ev); state.Terminal() {
			return state, d.Err()
		}
	}
}
