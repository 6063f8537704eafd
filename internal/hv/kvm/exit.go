//go:build linux

package kvm

import (
	"unsafe"

	"github.com/tinyrange/microvm/internal/hv"
)

// Exit decodes the live control page into an owned hv.ExitEvent. This
// is the only place raw shared memory is interpreted; everything
// downstream operates on the returned value. Must be called between a
// Run returning and the next Run: the kernel overwrites the union
// storage on re-entry.
func (c *VCPU) Exit() hv.ExitEvent {
	run := (*kvmRunData)(unsafe.Pointer(&c.run[0]))

	switch kvmExitReason(run.exit_reason) {
	case kvmExitHlt:
		return hv.ExitHalt{}
	case kvmExitShutdown:
		return hv.ExitShutdown{}
	case kvmExitIo:
		io := (*kvmExitIoData)(unsafe.Pointer(&run.exitData[0]))
		return hv.ExitIO{
			Direction: hv.IODirection(io.direction),
			Port:      io.port,
			Size:      io.size,
			Count:     io.count,
		}
	case kvmExitFailEntry:
		fail := (*kvmExitFailEntryData)(unsafe.Pointer(&run.exitData[0]))
		return hv.ExitFailEntry{Reason: fail.hardwareEntryFailureReason}
	case kvmExitInternalError:
		internal := (*kvmExitInternalData)(unsafe.Pointer(&run.exitData[0]))
		ndata := internal.ndata
		if ndata > uint32(len(internal.data)) {
			ndata = uint32(len(internal.data))
		}
		data := make([]uint64, ndata)
		copy(data, internal.data[:ndata])
		return hv.ExitInternalError{Suberror: internal.suberror, Data: data}
	case kvmExitUnknown:
		hw := (*kvmExitHardwareData)(unsafe.Pointer(&run.exitData[0]))
		return hv.ExitHardware{Reason: hw.hardwareExitReason}
	default:
		return hv.ExitUnknown{Reason: run.exit_reason}
	}
}
