//go:build !linux

package kvm

import "github.com/tinyrange/microvm/internal/hv"

// Hypervisor has no backend off Linux.
type Hypervisor struct{}

func Open() (*Hypervisor, error) {
	return nil, hv.ErrUnsupported
}

func (h *Hypervisor) Close() error { return nil }
