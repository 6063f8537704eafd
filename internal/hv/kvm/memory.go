//go:build linux

package kvm

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// GuestMemory owns one anonymous, zero-initialized, page-aligned host
// mapping used as guest RAM. At most one memory slot should reference
// it at a time, and it must stay mapped for as long as any slot does.
type GuestMemory struct {
	mem []byte
}

// AllocateGuestMemory maps a zeroed block of exactly size bytes. The
// mapping is shared so the kernel can back a memory slot with it
// directly.
func AllocateGuestMemory(size uint64) (*GuestMemory, error) {
	maxInt := uint64(^uint(0) >> 1)
	if size == 0 || size > maxInt {
		return nil, fmt.Errorf("kvm: allocate guest memory: invalid size %d", size)
	}

	mem, err := unix.Mmap(
		-1,
		0,
		int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANONYMOUS|unix.MAP_SHARED,
	)
	if err != nil {
		return nil, fmt.Errorf("kvm: allocate guest memory: %w", err)
	}

	return &GuestMemory{mem: mem}, nil
}

// Size returns the length of the block in bytes.
func (m *GuestMemory) Size() uint64 {
	return uint64(len(m.mem))
}

// HostAddr returns the host virtual base address of the block, as
// referenced by a memory-slot descriptor.
func (m *GuestMemory) HostAddr() uint64 {
	return uint64(uintptr(unsafe.Pointer(&m.mem[0])))
}

func (m *GuestMemory) ReadAt(p []byte, off int64) (n int, err error) {
	if m.mem == nil {
		return 0, fmt.Errorf("kvm: ReadAt after close")
	}
	if off < 0 || int(off) >= len(m.mem) {
		return 0, fmt.Errorf("kvm: ReadAt offset out of bounds")
	}

	n = copy(p, m.mem[off:])
	if n < len(p) {
		err = fmt.Errorf("kvm: ReadAt short read")
	}

	return n, err
}

func (m *GuestMemory) WriteAt(p []byte, off int64) (n int, err error) {
	if m.mem == nil {
		return 0, fmt.Errorf("kvm: WriteAt after close")
	}
	if off < 0 || int(off) >= len(m.mem) {
		return 0, fmt.Errorf("kvm: WriteAt offset out of bounds")
	}

	n = copy(m.mem[off:], p)
	if n < len(p) {
		err = fmt.Errorf("kvm: WriteAt short write")
	}

	return n, err
}

// Close unmaps the block exactly once. Every VM referencing the block
// must be finished with it first; a memory slot pointing at an unmapped
// block is undefined.
func (m *GuestMemory) Close() error {
	if m.mem == nil {
		return nil
	}
	mem := m.mem
	m.mem = nil

	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("kvm: munmap guest memory: %w", err)
	}
	return nil
}
