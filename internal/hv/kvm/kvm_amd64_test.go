//go:build linux && amd64

package kvm

import (
	"context"
	"testing"
	"unsafe"

	"github.com/tinyrange/microvm/internal/hv"
)

func TestRegisterIoctlEncoding(t *testing.T) {
	for name, tc := range map[string]struct {
		got  uint64
		want uint64
	}{
		"KVM_GET_REGS":  {kvmGetRegs, 0x8090ae81},
		"KVM_SET_REGS":  {kvmSetRegs, 0x4090ae82},
		"KVM_GET_SREGS": {kvmGetSregs, 0x8138ae83},
		"KVM_SET_SREGS": {kvmSetSregs, 0x4138ae84},
	} {
		if tc.got != tc.want {
			t.Errorf("%s = %#x, want %#x", name, tc.got, tc.want)
		}
	}
}

func TestRegisterBlockLayout(t *testing.T) {
	if got := unsafe.Sizeof(Regs{}); got != 0x90 {
		t.Errorf("general register block size = %d, want %d", got, 0x90)
	}
	if got := unsafe.Sizeof(Segment{}); got != 24 {
		t.Errorf("segment descriptor size = %d, want 24", got)
	}
	if got := unsafe.Sizeof(DTable{}); got != 16 {
		t.Errorf("descriptor table register size = %d, want 16", got)
	}
	if got := unsafe.Sizeof(Sregs{}); got != 0x138 {
		t.Errorf("special register block size = %d, want %d", got, 0x138)
	}
}

func TestRegisterRoundTrip(t *testing.T) {
	checkKVMAvailable(t)

	h, err := Open()
	if err != nil {
		t.Fatalf("Open KVM hypervisor: %v", err)
	}
	defer h.Close()

	vm, err := h.NewVirtualMachine()
	if err != nil {
		t.Fatalf("Create KVM virtual machine: %v", err)
	}
	defer vm.Close()

	vcpu, err := vm.NewVCPU(0)
	if err != nil {
		t.Fatalf("NewVCPU: %v", err)
	}

	regs, err := vcpu.Regs()
	if err != nil {
		t.Fatalf("Regs: %v", err)
	}

	regs.Rip = 0x1000
	regs.Rsp = 0x2000
	regs.Rflags = 0x2
	regs.Rax = 0xdeadbeef

	if err := vcpu.SetRegs(&regs); err != nil {
		t.Fatalf("SetRegs: %v", err)
	}

	got, err := vcpu.Regs()
	if err != nil {
		t.Fatalf("Regs after SetRegs: %v", err)
	}
	if got.Rip != 0x1000 || got.Rsp != 0x2000 || got.Rax != 0xdeadbeef {
		t.Fatalf("register round trip mismatch: %+v", got)
	}
}

// Runs the two-OUT-then-HLT guest program in real mode and checks the
// exact exit sequence the monitor observes.
func TestRunGuestUntilHalt(t *testing.T) {
	checkKVMAvailable(t)

	h, err := Open()
	if err != nil {
		t.Fatalf("Open KVM hypervisor: %v", err)
	}
	defer h.Close()

	vm, err := h.NewVirtualMachine()
	if err != nil {
		t.Fatalf("Create KVM virtual machine: %v", err)
	}
	defer vm.Close()

	mem, err := AllocateGuestMemory(0x1000)
	if err != nil {
		t.Fatalf("AllocateGuestMemory: %v", err)
	}
	defer mem.Close()

	code := []byte{
		0xba, 0x00, 0x8a, // mov $0x8a00, %dx
		0xb0, 0x48, // mov $'H', %al
		0xee,       // out %al, (%dx)
		0xb0, 0x69, // mov $'i', %al
		0xee, // out %al, (%dx)
		0xf4, // hlt
	}
	if _, err := mem.WriteAt(code, 0); err != nil {
		t.Fatalf("WriteAt guest code: %v", err)
	}

	if err := vm.SetMemoryRegion(0, 0x1000, mem); err != nil {
		t.Fatalf("SetMemoryRegion: %v", err)
	}

	vcpu, err := vm.NewVCPU(0)
	if err != nil {
		t.Fatalf("NewVCPU: %v", err)
	}

	sregs, err := vcpu.SRegs()
	if err != nil {
		t.Fatalf("SRegs: %v", err)
	}
	sregs.Cs.Base = 0
	sregs.Cs.Limit = 0xffff
	sregs.Cs.Selector = 0
	if err := vcpu.SetSRegs(&sregs); err != nil {
		t.Fatalf("SetSRegs: %v", err)
	}

	regs := Regs{Rip: 0x1000, Rsp: 0x2000, Rflags: 0x2}
	if err := vcpu.SetRegs(&regs); err != nil {
		t.Fatalf("SetRegs: %v", err)
	}

	var events []hv.ExitEvent
	obs := observerFunc(func(ev hv.ExitEvent) { events = append(events, ev) })

	state, err := hv.Drive(context.Background(), vcpu, nil, obs)
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if state != hv.StateHalted {
		t.Fatalf("final state = %v, want %v", state, hv.StateHalted)
	}

	if len(events) != 3 {
		t.Fatalf("observed %d exits, want 3: %#v", len(events), events)
	}
	for i := 0; i < 2; i++ {
		io, ok := events[i].(hv.ExitIO)
		if !ok {
			t.Fatalf("exit %d = %T, want ExitIO", i, events[i])
		}
		if io.Direction != hv.IOOut || io.Port != 0x8a00 || io.Size != 1 {
			t.Fatalf("exit %d = %+v, want OUT to port 0x8a00 size 1", i, io)
		}
	}
	if _, ok := events[2].(hv.ExitHalt); !ok {
		t.Fatalf("exit 2 = %T, want ExitHalt", events[2])
	}
}

type observerFunc func(hv.ExitEvent)

func (f observerFunc) ObserveExit(ev hv.ExitEvent) { f(ev) }
