//go:build linux && amd64

package kvm

import "fmt"

// Regs reads the general-purpose register block wholesale.
func (c *VCPU) Regs() (Regs, error) {
	regs, err := getRegisters(c.fd)
	if err != nil {
		return Regs{}, fmt.Errorf("kvm: get registers: %w", err)
	}
	return regs, nil
}

// SetRegs writes the general-purpose register block wholesale.
func (c *VCPU) SetRegs(regs *Regs) error {
	if err := setRegisters(c.fd, regs); err != nil {
		return fmt.Errorf("kvm: set registers: %w", err)
	}
	return nil
}

// SRegs reads the special register block wholesale.
func (c *VCPU) SRegs() (Sregs, error) {
	sregs, err := getSRegs(c.fd)
	if err != nil {
		return Sregs{}, fmt.Errorf("kvm: get special registers: %w", err)
	}
	return sregs, nil
}

// SetSRegs writes the special register block wholesale.
func (c *VCPU) SetSRegs(sregs *Sregs) error {
	if err := setSRegs(c.fd, sregs); err != nil {
		return fmt.Errorf("kvm: set special registers: %w", err)
	}
	return nil
}
