//go:build linux && amd64

package kvm

import "unsafe"

func getRegisters(vcpuFd int) (Regs, error) {
	var regs Regs

	if _, err := ioctlWithRetry(uintptr(vcpuFd), kvmGetRegs, uintptr(unsafe.Pointer(&regs))); err != nil {
		return Regs{}, err
	}

	return regs, nil
}

func setRegisters(vcpuFd int, regs *Regs) error {
	_, err := ioctlWithRetry(uintptr(vcpuFd), kvmSetRegs, uintptr(unsafe.Pointer(regs)))
	return err
}

func getSRegs(vcpuFd int) (Sregs, error) {
	var sregs Sregs

	if _, err := ioctlWithRetry(uintptr(vcpuFd), kvmGetSregs, uintptr(unsafe.Pointer(&sregs))); err != nil {
		return Sregs{}, err
	}

	return sregs, nil
}

func setSRegs(vcpuFd int, sregs *Sregs) error {
	_, err := ioctlWithRetry(uintptr(vcpuFd), kvmSetSregs, uintptr(unsafe.Pointer(sregs)))
	return err
}
