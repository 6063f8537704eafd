//go:build linux

// Package kvm is the Linux KVM backend of the monitor. It owns the
// facility, VM and vCPU descriptors plus the vCPU control-page
// mappings, and decodes raw exit payloads into hv.ExitEvent values.
package kvm

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/tinyrange/microvm/internal/hv"
	"golang.org/x/sys/unix"
)

// Hypervisor owns the /dev/kvm descriptor. It is the factory for
// virtual machines and reports the control-page size the kernel
// requires for every vCPU mapping.
type Hypervisor struct {
	fd int
}

// Open opens /dev/kvm and validates the API version. Any version other
// than the single supported one closes the descriptor and fails with
// hv.ErrVersionMismatch.
func Open() (*Hypervisor, error) {
	fd, err := unix.Open("/dev/kvm", unix.O_CLOEXEC|unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("kvm: open /dev/kvm: %w", err)
	}

	version, err := getApiVersion(fd)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("kvm: get API version: %w", err)
	}
	if version != kvmApiVersion {
		unix.Close(fd)
		return nil, fmt.Errorf("kvm: got API version %d, want %d: %w",
			version, kvmApiVersion, hv.ErrVersionMismatch)
	}

	return &Hypervisor{fd: fd}, nil
}

// VCPUMmapSize reports the byte size the kernel requires for each
// vCPU's control-page mapping. The value must be queried, not assumed.
func (h *Hypervisor) VCPUMmapSize() (int, error) {
	size, err := getVcpuMmapSize(h.fd)
	if err != nil {
		return 0, fmt.Errorf("kvm: get vCPU mmap size: %w", err)
	}
	return size, nil
}

// NewVirtualMachine derives a new VM from the facility descriptor.
func (h *Hypervisor) NewVirtualMachine() (*VM, error) {
	vmFd, err := createVm(h.fd)
	if err != nil {
		return nil, fmt.Errorf("kvm: create VM: %w", err)
	}

	vm := &VM{hv: h, fd: vmFd}

	// Safety net for VMs garbage collected without Close; the close
	// path itself never relies on it.
	runtime.SetFinalizer(vm, func(v *VM) {
		if v.fd >= 0 {
			slog.Debug("kvm: VM was not closed before garbage collection, cleaning up")
			v.Close()
		}
	})

	return vm, nil
}

// Close releases the facility descriptor. VMs derived from this
// hypervisor must be closed first.
func (h *Hypervisor) Close() error {
	if h.fd < 0 {
		return nil
	}
	fd := h.fd
	h.fd = -1

	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("kvm: close facility fd: %w", err)
	}
	return nil
}

// VM owns one virtual machine descriptor and the vCPUs derived from
// it. Guest memory is owned by the caller through GuestMemory and only
// referenced here; it must stay mapped until the VM is closed.
type VM struct {
	hv    *Hypervisor
	fd    int
	vcpus []*VCPU
}

// SetMemoryRegion registers mem as guest-physical memory at guestPhys
// under the caller-assigned slot index. Slot indices must be unique per
// VM and regions for distinct slots must not overlap in guest-physical
// space; the kernel rejects violations.
func (v *VM) SetMemoryRegion(slot uint32, guestPhys uint64, mem *GuestMemory) error {
	if err := setUserMemoryRegion(v.fd, &kvmUserspaceMemoryRegion{
		Slot:          slot,
		Flags:         0,
		GuestPhysAddr: guestPhys,
		MemorySize:    mem.Size(),
		UserspaceAddr: mem.HostAddr(),
	}); err != nil {
		return fmt.Errorf("kvm: set user memory region (slot %d): %w", slot, err)
	}
	return nil
}

// NewVCPU derives a vCPU bound to the given logical CPU index and maps
// its control page using the kernel-reported size. The vCPU is owned
// by the VM and released on VM.Close; closing it earlier by hand is
// also allowed.
func (v *VM) NewVCPU(id int) (*VCPU, error) {
	mmapSize, err := v.hv.VCPUMmapSize()
	if err != nil {
		return nil, err
	}

	vcpuFd, err := createVCPU(v.fd, id)
	if err != nil {
		return nil, fmt.Errorf("kvm: create vCPU %d: %w", id, err)
	}

	run, err := unix.Mmap(
		vcpuFd,
		0,
		mmapSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED,
	)
	if err != nil {
		unix.Close(vcpuFd)
		return nil, fmt.Errorf("kvm: mmap vCPU %d control page: %w", id, err)
	}

	vcpu := &VCPU{id: id, fd: vcpuFd, run: run}
	v.vcpus = append(v.vcpus, vcpu)

	return vcpu, nil
}

// Close releases all vCPUs derived from this VM and then the VM
// descriptor itself, each exactly once.
func (v *VM) Close() error {
	if v.fd < 0 {
		return nil
	}

	vcpus := v.vcpus
	v.vcpus = nil
	fd := v.fd
	v.fd = -1

	runtime.SetFinalizer(v, nil)

	var firstErr error
	for _, vcpu := range vcpus {
		if err := vcpu.Close(); err != nil {
			slog.Error("kvm: close vCPU", "id", vcpu.id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if err := unix.Close(fd); err != nil {
		slog.Error("kvm: close VM fd", "error", err)
		if firstErr == nil {
			firstErr = fmt.Errorf("kvm: close VM fd: %w", err)
		}
	}

	return firstErr
}

// VCPU owns one vCPU descriptor and its control-page mapping. A single
// goroutine owns a VCPU; at most one Run may be outstanding at a time,
// and the control page is valid for decoding exactly between a Run
// returning and the next Run being issued.
type VCPU struct {
	id  int
	fd  int
	run []byte
}

// ID returns the logical CPU index the vCPU was created with.
func (c *VCPU) ID() int { return c.id }

// Close unmaps the control page and then releases the vCPU descriptor.
func (c *VCPU) Close() error {
	if c.fd < 0 {
		return nil
	}
	fd := c.fd
	c.fd = -1

	run := c.run
	c.run = nil

	var firstErr error
	if run != nil {
		if err := unix.Munmap(run); err != nil {
			firstErr = fmt.Errorf("kvm: munmap vCPU control page: %w", err)
		}
	}

	if err := unix.Close(fd); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("kvm: close vCPU fd: %w", err)
	}

	return firstErr
}

// Run executes guest instructions from the current instruction pointer
// until the guest traps back to the monitor. The call blocks without
// preemption or timeout; the context is only consulted between kernel
// re-entries, mid-run cancellation is out of scope. A non-nil error
// leaves the machine state unspecified and must not be retried.
func (c *VCPU) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for {
		_, err := ioctl(uintptr(c.fd), kvmRun, 0)
		if err == unix.EINTR {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			continue
		} else if err != nil {
			return fmt.Errorf("kvm: run vCPU %d: %w", c.id, err)
		}

		return nil
	}
}

var _ hv.ExitSource = &VCPU{}
