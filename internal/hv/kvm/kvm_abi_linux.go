//go:build linux

package kvm

// Shared binary layouts for the KVM ABI. Field order and width must
// match the kernel bit for bit; the defs test checks the sizes that
// feed the ioctl command encoding.

// kvmUserspaceMemoryRegion is struct kvm_userspace_memory_region.
type kvmUserspaceMemoryRegion struct {
	Slot          uint32
	Flags         uint32
	GuestPhysAddr uint64
	MemorySize    uint64
	UserspaceAddr uint64
}

const runExitUnionSize = 256

// kvmRunData is the head of struct kvm_run, the control page the
// kernel shares with the monitor through the vCPU mmap. exitData is
// the union of exit-specific payloads selected by exit_reason; it is
// only valid between a run returning and the next run being issued.
type kvmRunData struct {
	request_interrupt_window      uint8
	immediate_exit                uint8
	padding1                      [6]uint8
	exit_reason                   uint32
	ready_for_interrupt_injection uint8
	if_flag                       uint8
	flags                         uint16
	cr8                           uint64
	apic_base                     uint64
	exitData                      [runExitUnionSize]byte
}

// kvmExitHardwareData is the hw union member (KVM_EXIT_UNKNOWN).
type kvmExitHardwareData struct {
	hardwareExitReason uint64
}

// kvmExitFailEntryData is the fail_entry union member.
type kvmExitFailEntryData struct {
	hardwareEntryFailureReason uint64
}

// kvmExitIoData is the io union member. The bytes moved by the access
// live at dataOffset from the start of the control page.
type kvmExitIoData struct {
	direction  uint8
	size       uint8
	port       uint16
	count      uint32
	dataOffset uint64
}

// kvmExitInternalData is the internal union member
// (KVM_EXIT_INTERNAL_ERROR).
type kvmExitInternalData struct {
	suberror uint32
	ndata    uint32
	data     [16]uint64
}
