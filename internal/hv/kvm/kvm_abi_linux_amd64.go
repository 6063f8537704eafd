//go:build linux && amd64

package kvm

import "unsafe"

const kvmNrInterrupts = 256

// Regs is struct kvm_regs: the general-purpose register block, read
// and written wholesale through KVM_GET_REGS / KVM_SET_REGS.
type Regs struct {
	Rax    uint64
	Rbx    uint64
	Rcx    uint64
	Rdx    uint64
	Rsi    uint64
	Rdi    uint64
	Rsp    uint64
	Rbp    uint64
	R8     uint64
	R9     uint64
	R10    uint64
	R11    uint64
	R12    uint64
	R13    uint64
	R14    uint64
	R15    uint64
	Rip    uint64
	Rflags uint64
}

// Segment is struct kvm_segment, one segment descriptor.
type Segment struct {
	Base     uint64
	Limit    uint32
	Selector uint16
	Type     uint8
	Present  uint8
	Dpl      uint8
	Db       uint8
	S        uint8
	L        uint8
	G        uint8
	Avl      uint8
	Unusable uint8
	Padding  uint8
}

// DTable is struct kvm_dtable, a descriptor-table register.
type DTable struct {
	Base    uint64
	Limit   uint16
	Padding [3]uint16
}

// Sregs is struct kvm_sregs: segment descriptors, descriptor tables,
// control registers and related privileged state, read and written
// wholesale through KVM_GET_SREGS / KVM_SET_SREGS.
type Sregs struct {
	Cs, Ds, Es, Fs, Gs, Ss Segment
	Tr, Ldt                Segment
	Gdt, Idt               DTable
	Cr0                    uint64
	Cr2                    uint64
	Cr3                    uint64
	Cr4                    uint64
	Cr8                    uint64
	Efer                   uint64
	ApicBase               uint64
	InterruptBitmap        [(kvmNrInterrupts + 63) / 64]uint64
}

const (
	kvmGetRegs  = iocRead | uint64(unsafe.Sizeof(Regs{}))<<16 | kvmType | 0x81
	kvmSetRegs  = iocWrite | uint64(unsafe.Sizeof(Regs{}))<<16 | kvmType | 0x82
	kvmGetSregs = iocRead | uint64(unsafe.Sizeof(Sregs{}))<<16 | kvmType | 0x83
	kvmSetSregs = iocWrite | uint64(unsafe.Sizeof(Sregs{}))<<16 | kvmType | 0x84
)
