// Package hv defines the hypervisor-neutral contract surface of the
// monitor: decoded exit events, the run-loop dispatcher, and the error
// taxonomy shared by backends and callers.
package hv

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrVersionMismatch is reported when the kernel facility speaks a
	// protocol version other than the single supported one.
	ErrVersionMismatch = errors.New("virtualization API version mismatch")

	// ErrUnsupported is reported when no hypervisor backend exists for
	// this platform.
	ErrUnsupported = errors.New("hypervisor unsupported on this platform")
)

// IODirection is the direction of a port I/O exit.
type IODirection uint8

const (
	IOIn  IODirection = 0
	IOOut IODirection = 1
)

func (d IODirection) String() string {
	if d == IOOut {
		return "out"
	}
	return "in"
}

// ExitEvent is an owned snapshot of one vCPU exit, decoded from the
// kernel-shared control page. Values are safe to retain across
// subsequent runs of the vCPU.
type ExitEvent interface {
	exitEvent()
}

// ExitHalt reports that the guest executed a halt instruction.
type ExitHalt struct{}

// ExitShutdown reports a guest-initiated shutdown (triple fault on x86).
type ExitShutdown struct{}

// ExitIO reports a port I/O access trapped out of the guest. No device
// backs any port in this monitor: writes are observed and discarded,
// reads yield unspecified data.
type ExitIO struct {
	Direction IODirection
	Port      uint16
	Size      uint8
	Count     uint32
}

// ExitFailEntry reports that the CPU refused to enter the guest.
type ExitFailEntry struct {
	Reason uint64
}

// ExitInternalError reports a kernel-side emulation failure. Data holds
// the auxiliary words the kernel attached to the report, if any.
type ExitInternalError struct {
	Suberror uint32
	Data     []uint64
}

// ExitHardware reports an otherwise-unclassified hardware exit, carrying
// the raw hardware exit reason.
type ExitHardware struct {
	Reason uint64
}

// ExitUnknown reports an exit reason code this monitor does not decode.
type ExitUnknown struct {
	Reason uint32
}

func (ExitHalt) exitEvent()          {}
func (ExitShutdown) exitEvent()      {}
func (ExitIO) exitEvent()            {}
func (ExitFailEntry) exitEvent()     {}
func (ExitInternalError) exitEvent() {}
func (ExitHardware) exitEvent()      {}
func (ExitUnknown) exitEvent()       {}

// EntryFailureError is the terminal error for an ExitFailEntry event.
type EntryFailureError struct {
	Reason uint64
}

func (e *EntryFailureError) Error() string {
	return fmt.Sprintf("hv: guest entry failed: hardware reason 0x%x", e.Reason)
}

// InternalGuestError is the terminal error for an ExitInternalError event.
type InternalGuestError struct {
	Suberror uint32
	Data     []uint64
}

func (e *InternalGuestError) Error() string {
	return fmt.Sprintf("hv: internal hypervisor error: suberror %d (%d data words)", e.Suberror, len(e.Data))
}

// GuardTrippedError is reported when the dispatcher gives up after too
// many consecutive exits it cannot make progress on.
type GuardTrippedError struct {
	Count int
}

func (e *GuardTrippedError) Error() string {
	return fmt.Sprintf("hv: loop guard tripped after %d consecutive unhandled exits", e.Count)
}

// ExitSource is the view of a vCPU the run loop needs: a blocking run
// operation and access to the decoded result of the most recent run.
// Exit must be called after Run returns and before the next Run; the
// kernel reuses the underlying exit storage on re-entry.
type ExitSource interface {
	Run(ctx context.Context) error
	Exit() ExitEvent
}

// ExitObserver receives every decoded exit event as the run loop sees
// it. Observation is additive: it never alters control flow.
type ExitObserver interface {
	ObserveExit(ev ExitEvent)
}
