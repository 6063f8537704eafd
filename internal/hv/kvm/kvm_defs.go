//go:build linux

package kvm

import (
	"fmt"
	"unsafe"
)

const kvmApiVersion = 12

// KVM ioctl command numbers follow the Linux _IOC encoding
// (include/uapi/asm-generic/ioctl.h):
//
//	dir<<30 | size<<16 | type<<8 | nr
//
// with type 0xAE for the KVM facility. The constants below spell the
// encoding out instead of hard-coding kernel header values; the defs
// test pins each one against the reference number so a struct layout
// drift shows up as a constant mismatch.
const (
	iocNone  uint64 = 0 << 30
	iocWrite uint64 = 1 << 30
	iocRead  uint64 = 2 << 30

	kvmType uint64 = 0xAE << 8
)

const (
	kvmGetApiVersion   = iocNone | kvmType | 0x00
	kvmCreateVm        = iocNone | kvmType | 0x01
	kvmCheckExtension  = iocNone | kvmType | 0x03
	kvmGetVcpuMmapSize = iocNone | kvmType | 0x04
	kvmCreateVcpu      = iocNone | kvmType | 0x41
	kvmRun             = iocNone | kvmType | 0x80

	kvmSetUserMemoryRegion = iocWrite | uint64(unsafe.Sizeof(kvmUserspaceMemoryRegion{}))<<16 | kvmType | 0x46
)

type kvmExitReason uint32

const (
	kvmExitUnknown       kvmExitReason = 0
	kvmExitException     kvmExitReason = 1
	kvmExitIo            kvmExitReason = 2
	kvmExitHypercall     kvmExitReason = 3
	kvmExitDebug         kvmExitReason = 4
	kvmExitHlt           kvmExitReason = 5
	kvmExitMmio          kvmExitReason = 6
	kvmExitIrqWindowOpen kvmExitReason = 7
	kvmExitShutdown      kvmExitReason = 8
	kvmExitFailEntry     kvmExitReason = 9
	kvmExitIntr          kvmExitReason = 10
	kvmExitSetTpr        kvmExitReason = 11
	kvmExitTprAccess     kvmExitReason = 12
	kvmExitS390Sieic     kvmExitReason = 13
	kvmExitS390Reset     kvmExitReason = 14
	kvmExitDcr           kvmExitReason = 15
	kvmExitNmi           kvmExitReason = 16
	kvmExitInternalError kvmExitReason = 17
)

func (kr kvmExitReason) String() string {
	switch kr {
	case kvmExitUnknown:
		return "KVM_EXIT_UNKNOWN"
	case kvmExitException:
		return "KVM_EXIT_EXCEPTION"
	case kvmExitIo:
		return "KVM_EXIT_IO"
	case kvmExitHypercall:
		return "KVM_EXIT_HYPERCALL"
	case kvmExitDebug:
		return "KVM_EXIT_DEBUG"
	case kvmExitHlt:
		return "KVM_EXIT_HLT"
	case kvmExitMmio:
		return "KVM_EXIT_MMIO"
	case kvmExitIrqWindowOpen:
		return "KVM_EXIT_IRQ_WINDOW_OPEN"
	case kvmExitShutdown:
		return "KVM_EXIT_SHUTDOWN"
	case kvmExitFailEntry:
		return "KVM_EXIT_FAIL_ENTRY"
	case kvmExitIntr:
		return "KVM_EXIT_INTR"
	case kvmExitSetTpr:
		return "KVM_EXIT_SET_TPR"
	case kvmExitTprAccess:
		return "KVM_EXIT_TPR_ACCESS"
	case kvmExitS390Sieic:
		return "KVM_EXIT_S390_SIEIC"
	case kvmExitS390Reset:
		return "KVM_EXIT_S390_RESET"
	case kvmExitDcr:
		return "KVM_EXIT_DCR"
	case kvmExitNmi:
		return "KVM_EXIT_NMI"
	case kvmExitInternalError:
		return "KVM_EXIT_INTERNAL_ERROR"
	default:
		return fmt.Sprintf("KVM_EXIT_???(%d)", uint32(kr))
	}
}
