package vm

import (
	"fmt"
	"strings"

	"github.com/chazu/sil/pkg/bytecode"
)

// Backend selects the execution engine. Only the interpreter lives in this
// module; the other variants exist so configurations naming them fail at
// Load instead of being silently ignored.
type Backend uint8

const (
	BackendInterpreter Backend = iota
	BackendGPU
	BackendNPU
	BackendFPGA
)

func (b Backend) String() string {
	switch b {
	case BackendInterpreter:
		return "interpreter"
	case BackendGPU:
		return "gpu"
	case BackendNPU:
		return "npu"
	case BackendFPGA:
		return "fpga"
	default:
		return fmt.Sprintf("Backend(%d)", uint8(b))
	}
}

// ParseBackend is the inverse of Backend.String.
func ParseBackend(s string) (Backend, error) {
	for b := BackendInterpreter; b <= BackendFPGA; b++ {
		if strings.EqualFold(b.String(), s) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown backend %q", s)
}

// Config sizes a VM. Stack and heap are allocated once at Load and never grow.
type Config struct {
	StackSize int
	HeapSize  int
	Mode      bytecode.Mode
	MaxCycles uint64 // 0 disables the ceiling
	Backend   Backend

	// Device id ranges; ids at or above the bound are invalid.
	Ports     int
	Sensors   int
	Actuators int
	Syscalls  int
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		StackSize: 256,
		HeapSize:  4096,
		Mode:      bytecode.Mode128,
		MaxCycles: 1_000_000,
		Backend:   BackendInterpreter,
		Ports:     16,
		Sensors:   16,
		Actuators: 16,
		Syscalls:  16,
	}
}

// Validate checks everything except the mode tag, which Load reports as a
// mode fault.
func (c Config) Validate() error {
	if c.Backend != BackendInterpreter {
		return bytecode.BackendUnavailable(c.Backend.String())
	}
	if c.StackSize < 0 || c.StackSize > bytecode.OffsetMask {
		return fmt.Errorf("vm: stack size %d out of range", c.StackSize)
	}
	if c.HeapSize < 0 || c.HeapSize > bytecode.OffsetMask {
		return fmt.Errorf("vm: heap size %d out of range", c.HeapSize)
	}
	for name, n := range map[string]int{"ports": c.Ports, "sensors": c.Sensors, "actuators": c.Actuators, "syscalls": c.Syscalls} {
		if n < 0 || n > 256 {
			return fmt.Errorf("vm: %s range %d out of [0, 256]", name, n)
		}
	}
	return nil
}
