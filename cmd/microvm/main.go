//go:build linux && amd64

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyrange/microvm/internal/hv"
	"github.com/tinyrange/microvm/internal/hv/kvm"
	"golang.org/x/term"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "microvm: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run() error {
	scenarioPath := flag.String("scenario", "", "YAML scenario file (default: built-in demo guest)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	quiet := flag.Bool("quiet", false, "Do not log individual VM exits")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Create a minimal KVM virtual machine, run a guest program and\n")
		fmt.Fprintf(os.Stderr, "report its VM exits until it halts.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	setupLogging(*debug)

	sc := DefaultScenario()
	if *scenarioPath != "" {
		loaded, err := LoadScenario(*scenarioPath)
		if err != nil {
			return err
		}
		sc = loaded
	}

	code, err := sc.CodeBytes()
	if err != nil {
		return err
	}

	h, err := kvm.Open()
	if err != nil {
		return err
	}
	defer h.Close()

	slog.Info("opened virtualization facility")

	// Guest memory must stay mapped until the VM referencing it is
	// closed, so it is released after the VM on the way out.
	mem, err := kvm.AllocateGuestMemory(sc.MemorySize)
	if err != nil {
		return err
	}
	defer mem.Close()

	vm, err := h.NewVirtualMachine()
	if err != nil {
		return err
	}
	defer vm.Close()

	if _, err := mem.WriteAt(code, 0); err != nil {
		return fmt.Errorf("load guest code: %w", err)
	}

	if err := vm.SetMemoryRegion(0, sc.GuestPhysAddr, mem); err != nil {
		return err
	}

	slog.Info("mapped guest memory",
		"guest_phys", fmt.Sprintf("%#x", sc.GuestPhysAddr),
		"size", sc.MemorySize,
		"code_bytes", len(code))

	vcpu, err := vm.NewVCPU(0)
	if err != nil {
		return err
	}

	sregs, err := vcpu.SRegs()
	if err != nil {
		return err
	}
	sregs.Cs.Base = 0
	sregs.Cs.Limit = 0xffff
	sregs.Cs.Selector = 0
	if err := vcpu.SetSRegs(&sregs); err != nil {
		return err
	}

	regs := kvm.Regs{Rip: sc.Rip, Rsp: sc.Rsp, Rflags: sc.Rflags}
	if err := vcpu.SetRegs(&regs); err != nil {
		return err
	}

	slog.Info("seeded vCPU state",
		"rip", fmt.Sprintf("%#x", sc.Rip),
		"rsp", fmt.Sprintf("%#x", sc.Rsp))

	var obs hv.ExitObserver = hv.LogObserver{}
	if *quiet {
		obs = hv.NopObserver{}
	}

	d := &hv.Dispatcher{GuardLimit: sc.GuardLimit}
	state, err := hv.Drive(context.Background(), vcpu, d, obs)
	if err != nil {
		return err
	}

	slog.Info("guest finished", "state", state.String())
	return nil
}
