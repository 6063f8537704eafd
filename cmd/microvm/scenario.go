package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario describes the guest the demo runs: the memory to allocate,
// the code to seed it with and the initial register state. Fields left
// out of a YAML file keep their built-in defaults.
type Scenario struct {
	MemorySize    uint64 `yaml:"memory_size"`
	GuestPhysAddr uint64 `yaml:"guest_phys_addr"`
	// Code is the guest machine code as a hex string; whitespace is
	// ignored.
	Code       string `yaml:"code"`
	Rip        uint64 `yaml:"rip"`
	Rsp        uint64 `yaml:"rsp"`
	Rflags     uint64 `yaml:"rflags"`
	GuardLimit int    `yaml:"guard_limit"`
}

// DefaultScenario is the fixed demo guest: write 'H' and 'i' to port
// 0x8a00, then halt.
func DefaultScenario() Scenario {
	return Scenario{
		MemorySize:    0x1000,
		GuestPhysAddr: 0x1000,
		Code:          "ba008ab048eeb069eef4",
		Rip:           0x1000,
		Rsp:           0x2000,
		Rflags:        0x2,
	}
}

// LoadScenario reads a YAML scenario file over the defaults.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}

	sc := DefaultScenario()
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if err := sc.Validate(); err != nil {
		return Scenario{}, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// CodeBytes decodes the guest code hex string.
func (s Scenario) CodeBytes() ([]byte, error) {
	clean := strings.Join(strings.Fields(s.Code), "")
	code, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("decode guest code: %w", err)
	}
	return code, nil
}

// Validate checks that the scenario is runnable.
func (s Scenario) Validate() error {
	if s.MemorySize == 0 {
		return fmt.Errorf("memory_size must be greater than 0")
	}

	code, err := s.CodeBytes()
	if err != nil {
		return err
	}
	if len(code) == 0 {
		return fmt.Errorf("no guest code")
	}
	if uint64(len(code)) > s.MemorySize {
		return fmt.Errorf("guest code (%d bytes) does not fit in %d bytes of memory", len(code), s.MemorySize)
	}
	if s.GuardLimit < 0 {
		return fmt.Errorf("guard_limit must not be negative")
	}
	return nil
}
