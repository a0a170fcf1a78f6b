package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/sil/pkg/sil"
)

// Decode failures. A *DecodeError wraps exactly one of these.
var (
	ErrEndOfCode      = errors.New("unexpected end of code")
	ErrUnknownOpcode  = errors.New("invalid opcode")
	ErrTruncated      = errors.New("truncated instruction")
	ErrInvalidOperand = errors.New("invalid operand")
)

// DecodeError reports why the instruction at Offset could not be decoded.
type DecodeError struct {
	Offset uint32
	Op     Opcode
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode at 0x%04X (%s): %v", e.Offset, e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Instruction is one decoded instruction. Which fields are meaningful depends
// on the opcode's Format.
type Instruction struct {
	Op   Opcode
	At   uint32 // offset of the opcode byte
	Size int    // encoded length

	X, Y, Z uint8  // register or nibble fields
	Imm     int    // sil byte, int8 exponent, layer, strategy, id, or u16
	Addr    uint32 // absolute address operand
}

// Info returns the opcode's metadata.
func (in Instruction) Info() OpcodeInfo {
	return GetOpcodeInfo(in.Op)
}

// Next returns the offset of the following instruction.
func (in Instruction) Next() uint32 {
	return in.At + uint32(in.Size)
}

// Sil returns the immediate interpreted as a packed ByteSil.
func (in Instruction) Sil() sil.ByteSil {
	return sil.FromU8(byte(in.Imm))
}

// Decode reads the instruction at pc. It never panics; every failure is a
// *DecodeError.
func Decode(code []byte, pc uint32) (Instruction, error) {
	if uint64(pc) >= uint64(len(code)) {
		return Instruction{}, &DecodeError{Offset: pc, Err: ErrEndOfCode}
	}
	op := Opcode(code[pc])
	info, ok := LookupOpcode(op)
	if !ok {
		return Instruction{}, &DecodeError{Offset: pc, Op: op, Err: ErrUnknownOpcode}
	}
	width := info.Format.Width()
	if uint64(pc)+uint64(width) > uint64(len(code)) {
		return Instruction{}, &DecodeError{Offset: pc, Op: op, Err: ErrTruncated}
	}

	in := Instruction{Op: op, At: pc, Size: width}
	b := code[pc+1 : pc+uint32(width)]
	bad := func(format string, args ...any) (Instruction, error) {
		return Instruction{}, &DecodeError{
			Offset: pc,
			Op:     op,
			Err:    fmt.Errorf("%w: %s", ErrInvalidOperand, fmt.Sprintf(format, args...)),
		}
	}

	switch info.Format {
	case FmtNone:
	case FmtReg:
		if b[0] >= 16 {
			return bad("register %d", b[0])
		}
		in.X = b[0]
	case FmtRegReg:
		in.X, in.Y = b[0]>>4, b[0]&0x0F
	case FmtRegRegReg:
		if b[1]&0x0F != 0 {
			return bad("pad nibble 0x%X", b[1]&0x0F)
		}
		in.X, in.Y, in.Z = b[0]>>4, b[0]&0x0F, b[1]>>4
	case FmtRegRegImm:
		in.X, in.Y = b[0]>>4, b[0]&0x0F
		in.Imm = int(int8(b[1]))
	case FmtRegSil:
		if b[0] >= 16 {
			return bad("register %d", b[0])
		}
		in.X, in.Imm = b[0], int(b[1])
	case FmtAddr:
		in.Addr = binary.BigEndian.Uint32(b)
	case FmtRegAddr:
		if b[0] >= 16 {
			return bad("register %d", b[0])
		}
		in.X = b[0]
		in.Addr = binary.BigEndian.Uint32(b[1:])
	case FmtRegRegAddr:
		in.X, in.Y = b[0]>>4, b[0]&0x0F
		in.Addr = binary.BigEndian.Uint32(b[1:])
	case FmtRegLayer:
		in.X, in.Imm = b[0]>>4, int(b[0]&0x0F)
	case FmtRegStrategy:
		in.X, in.Imm = b[0]>>4, int(b[0]&0x0F)
		if !sil.Strategy(in.Imm).Valid() {
			return bad("collapse strategy %d", in.Imm)
		}
	case FmtRegID:
		if b[0] >= 16 {
			return bad("register %d", b[0])
		}
		in.X, in.Imm = b[0], int(b[1])
	case FmtID:
		in.Imm = int(b[0])
	case FmtImm16:
		in.Imm = int(binary.BigEndian.Uint16(b))
	}
	return in, nil
}

// Append encodes in and appends it to dst. Operands are masked to their
// field width; the assembler range-checks them beforehand.
func Append(dst []byte, in Instruction) []byte {
	info := GetOpcodeInfo(in.Op)
	dst = append(dst, byte(in.Op))
	nib := func(hi, lo uint8) byte { return hi<<4 | lo&0x0F }

	switch info.Format {
	case FmtNone:
	case FmtReg:
		dst = append(dst, in.X&0x0F)
	case FmtRegReg:
		dst = append(dst, nib(in.X, in.Y))
	case FmtRegRegReg:
		dst = append(dst, nib(in.X, in.Y), nib(in.Z, 0))
	case FmtRegRegImm:
		dst = append(dst, nib(in.X, in.Y), byte(int8(in.Imm)))
	case FmtRegSil, FmtRegID:
		dst = append(dst, in.X&0x0F, byte(in.Imm))
	case FmtAddr:
		dst = binary.BigEndian.AppendUint32(dst, in.Addr)
	case FmtRegAddr:
		dst = append(dst, in.X&0x0F)
		dst = binary.BigEndian.AppendUint32(dst, in.Addr)
	case FmtRegRegAddr:
		dst = append(dst, nib(in.X, in.Y))
		dst = binary.BigEndian.AppendUint32(dst, in.Addr)
	case FmtRegLayer, FmtRegStrategy:
		dst = append(dst, nib(in.X, uint8(in.Imm)))
	case FmtID:
		dst = append(dst, byte(in.Imm))
	case FmtImm16:
		dst = binary.BigEndian.AppendUint16(dst, uint16(in.Imm))
	}
	return dst
}

// Encode returns the encoding of a single instruction.
func Encode(in Instruction) []byte {
	return Append(nil, in)
}

// ============================================================================
// Address space
// ============================================================================

// Space is the segment selector held in the top two bits of an address.
type Space uint8

const (
	SpaceImage    Space = 0 // code followed by data
	SpaceStack    Space = 1
	SpaceHeap     Space = 2
	SpaceReserved Space = 3
)

// OffsetMask selects the 30-bit offset of an address.
const OffsetMask = 1<<30 - 1

func (s Space) String() string {
	switch s {
	case SpaceImage:
		return "image"
	case SpaceStack:
		return "stack"
	case SpaceHeap:
		return "heap"
	default:
		return "reserved"
	}
}

// MakeAddr builds an address from a space and an offset.
func MakeAddr(s Space, offset uint32) uint32 {
	return uint32(s)<<30 | offset&OffsetMask
}

// SplitAddr returns the space and offset of an address.
func SplitAddr(addr uint32) (Space, uint32) {
	return Space(addr >> 30), addr & OffsetMask
}

// FormatAddr renders an address the way the assembler reads it back.
func FormatAddr(addr uint32) string {
	space, off := SplitAddr(addr)
	switch space {
	case SpaceStack, SpaceHeap:
		return fmt.Sprintf("%s:%d", space, off)
	case SpaceImage:
		return fmt.Sprintf("0x%04X", off)
	default:
		return fmt.Sprintf("0x%08X", addr)
	}
}

// FormatOperands renders an instruction's operands in source order, with
// target addresses resolved through label (which may return "").
func FormatOperands(in Instruction, label func(addr uint32) string) string {
	info := in.Info()
	parts := make([]string, 0, len(info.Operands))
	for _, operand := range info.Operands {
		parts = append(parts, formatOperand(in, operand, label))
	}
	return strings.Join(parts, ", ")
}

func formatOperand(in Instruction, o Operand, label func(uint32) string) string {
	field := func() uint8 {
		switch o.Slot {
		case SlotY:
			return in.Y
		case SlotZ:
			return in.Z
		default:
			return in.X
		}
	}
	switch o.Kind {
	case KindReg:
		return fmt.Sprintf("r%d", field())
	case KindSil:
		return in.Sil().String()
	case KindTarget, KindAddr:
		if label != nil {
			if name := label(in.Addr); name != "" {
				return name
			}
		}
		return FormatAddr(in.Addr)
	case KindStrategy:
		return sil.Strategy(in.Imm).String()
	default:
		return fmt.Sprintf("%d", in.Imm)
	}
}
