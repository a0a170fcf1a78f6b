package bytecode

import (
	"fmt"
	"strings"
)

// Mode is the execution-capability tag carried by a SilcFile and by a VM.
// The tag value is the width in bytes of the widest operand class the
// program may touch.
type Mode uint8

const (
	Mode8   Mode = 1  // ByteSil registers, control flow, stack
	Mode16  Mode = 2  // adds data and heap memory
	Mode32  Mode = 4  // adds ports, sensors, actuators, syscalls
	Mode64  Mode = 8  // reserved width, no additional opcodes
	Mode128 Mode = 16 // adds the 16-layer state vector and entanglement
)

var modeNames = map[Mode]string{
	Mode8:   "SIL-8",
	Mode16:  "SIL-16",
	Mode32:  "SIL-32",
	Mode64:  "SIL-64",
	Mode128: "SIL-128",
}

// Valid reports whether m is one of the defined tags.
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// Supports reports whether a VM running in mode m can execute a file
// declared with mode file. Both tags must be valid.
func (m Mode) Supports(file Mode) bool {
	return m.Valid() && file.Valid() && m >= file
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode accepts "SIL-128", "sil128" or "128" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.TrimPrefix(norm, "SIL")
	norm = strings.TrimPrefix(norm, "-")
	for m, name := range modeNames {
		if strings.TrimPrefix(name, "SIL-") == norm {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}
