package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/sil/pkg/bytecode"
)

// FaultKind identifies a fatal runtime condition.
type FaultKind uint8

const (
	// Decode
	InvalidOpcode FaultKind = iota + 1
	TruncatedInstruction
	UnexpectedEndOfCode
	InvalidOperand

	// Memory
	AddressOutOfBounds
	WriteToReadOnly
	InvalidSegment
	StackOverflow
	StackUnderflow
	HeapOverflow

	// Mode
	InvalidMode
	IncompatibleMode

	// Dispatch
	InvalidPort
	InvalidSensor
	InvalidActuator
	InvalidSyscall
	HostFailure

	// Entanglement
	EntanglementBroken

	// Limit
	CycleLimitExceeded
)

// FaultClass groups fault kinds.
type FaultClass uint8

const (
	ClassDecode FaultClass = iota + 1
	ClassMemory
	ClassMode
	ClassDispatch
	ClassEntanglement
	ClassLimit
)

var faultNames = map[FaultKind]string{
	InvalidOpcode:        "invalid opcode",
	TruncatedInstruction: "truncated instruction",
	UnexpectedEndOfCode:  "unexpected end of code",
	InvalidOperand:       "invalid operand",
	AddressOutOfBounds:   "address out of bounds",
	WriteToReadOnly:      "write to read-only segment",
	InvalidSegment:       "invalid segment",
	StackOverflow:        "stack overflow",
	StackUnderflow:       "stack underflow",
	HeapOverflow:         "heap overflow",
	InvalidMode:          "invalid mode",
	IncompatibleMode:     "incompatible mode",
	InvalidPort:          "invalid port",
	InvalidSensor:        "invalid sensor",
	InvalidActuator:      "invalid actuator",
	InvalidSyscall:       "invalid syscall",
	HostFailure:          "host failure",
	EntanglementBroken:   "entanglement broken",
	CycleLimitExceeded:   "cycle limit exceeded",
}

func (k FaultKind) String() string {
	if name, ok := faultNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FaultKind(%d)", uint8(k))
}

// Class returns the group a kind belongs to.
func (k FaultKind) Class() FaultClass {
	switch {
	case k >= InvalidOpcode && k <= InvalidOperand:
		return ClassDecode
	case k >= AddressOutOfBounds && k <= HeapOverflow:
		return ClassMemory
	case k == InvalidMode || k == IncompatibleMode:
		return ClassMode
	case k >= InvalidPort && k <= HostFailure:
		return ClassDispatch
	case k == EntanglementBroken:
		return ClassEntanglement
	case k == CycleLimitExceeded:
		return ClassLimit
	default:
		return 0
	}
}

func (c FaultClass) String() string {
	switch c {
	case ClassDecode:
		return "decode"
	case ClassMemory:
		return "memory"
	case ClassMode:
		return "mode"
	case ClassDispatch:
		return "dispatch"
	case ClassEntanglement:
		return "entanglement"
	case ClassLimit:
		return "limit"
	default:
		return fmt.Sprintf("FaultClass(%d)", uint8(c))
	}
}

// Segment names the memory region a memory fault concerns.
type Segment uint8

const (
	SegNone Segment = iota
	SegCode
	SegData
	SegStack
	SegHeap
	SegReserved
)

func (s Segment) String() string {
	switch s {
	case SegCode:
		return "code"
	case SegData:
		return "data"
	case SegStack:
		return "stack"
	case SegHeap:
		return "heap"
	case SegReserved:
		return "reserved"
	default:
		return "none"
	}
}

// Fault is a fatal runtime condition. Once raised the VM is Faulted and every
// further Step returns the same Fault until Reset or Load.
type Fault struct {
	Kind    FaultKind
	PC      uint32          // start of the faulting instruction
	Opcode  bytecode.Opcode // opcode byte at PC, if any
	Addr    uint32          // memory and segment faults
	Segment Segment
	ID      uint8 // device or syscall id
	Cycle   uint64

	Expected bytecode.Mode // mode faults: the VM's mode
	Found    bytecode.Mode // mode faults: the file's mode

	Err error // decoder, host or transport cause
}

func (f *Fault) Error() string {
	var detail string
	switch f.Kind.Class() {
	case ClassDecode:
		detail = fmt.Sprintf("0x%02X at 0x%04X", byte(f.Opcode), f.PC)
	case ClassMemory:
		detail = fmt.Sprintf("%s address %s at 0x%04X", f.Segment, bytecode.FormatAddr(f.Addr), f.PC)
	case ClassMode:
		if f.Kind == IncompatibleMode {
			detail = fmt.Sprintf("VM runs %s, bytecode requires %s", f.Expected, f.Found)
		} else {
			detail = fmt.Sprintf("tag %s", f.Found)
		}
	case ClassDispatch:
		detail = fmt.Sprintf("id %d at 0x%04X", f.ID, f.PC)
	case ClassEntanglement:
		detail = fmt.Sprintf("%s at 0x%04X", f.Opcode, f.PC)
	case ClassLimit:
		detail = fmt.Sprintf("%d cycles at 0x%04X", f.Cycle, f.PC)
	}
	msg := "vm: " + f.Kind.String()
	if detail != "" {
		msg += ": " + detail
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Is matches any *Fault of the same kind, so the Err* sentinels work with
// errors.Is.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	return ok && t.Kind == f.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidOpcode        = &Fault{Kind: InvalidOpcode}
	ErrTruncatedInstruction = &Fault{Kind: TruncatedInstruction}
	ErrUnexpectedEndOfCode  = &Fault{Kind: UnexpectedEndOfCode}
	ErrInvalidOperand       = &Fault{Kind: InvalidOperand}
	ErrAddressOutOfBounds   = &Fault{Kind: AddressOutOfBounds}
	ErrWriteToReadOnly      = &Fault{Kind: WriteToReadOnly}
	ErrInvalidSegment       = &Fault{Kind: InvalidSegment}
	ErrStackOverflow        = &Fault{Kind: StackOverflow}
	ErrStackUnderflow       = &Fault{Kind: StackUnderflow}
	ErrHeapOverflow         = &Fault{Kind: HeapOverflow}
	ErrInvalidMode          = &Fault{Kind: InvalidMode}
	ErrIncompatibleMode     = &Fault{Kind: IncompatibleMode}
	ErrInvalidPort          = &Fault{Kind: InvalidPort}
	ErrInvalidSensor        = &Fault{Kind: InvalidSensor}
	ErrInvalidActuator      = &Fault{Kind: InvalidActuator}
	ErrInvalidSyscall       = &Fault{Kind: InvalidSyscall}
	ErrHostFailure          = &Fault{Kind: HostFailure}
	ErrEntanglementBroken   = &Fault{Kind: EntanglementBroken}
	ErrCycleLimitExceeded   = &Fault{Kind: CycleLimitExceeded}
)

// Non-fault lifecycle errors.
var (
	ErrNotLoaded = errors.New("vm: no program loaded")
	ErrHalted    = errors.New("vm: halted")
)

// AsFault extracts a *Fault from err.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	ok := errors.As(err, &f)
	return f, ok
}

// decodeFault maps a decoder failure to its fault kind.
func decodeFault(err error, pc uint32, code []byte) *Fault {
	f := &Fault{PC: pc, Err: err}
	if int(pc) < len(code) {
		f.Opcode = bytecode.Opcode(code[pc])
	}
	switch {
	case errors.Is(err, bytecode.ErrUnknownOpcode):
		f.Kind = InvalidOpcode
	case errors.Is(err, bytecode.ErrTruncated):
		f.Kind = TruncatedInstruction
	case errors.Is(err, bytecode.ErrEndOfCode):
		f.Kind = UnexpectedEndOfCode
	default:
		f.Kind = InvalidOperand
	}
	return f
}
