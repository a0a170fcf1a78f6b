package bytecode

import (
	"fmt"
	"sort"
)

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Control flow (0x00-0x0F)
	// ========================================================================

	OpNop  Opcode = 0x00 // No operation
	OpHalt Opcode = 0x01 // Stop cleanly
	OpJmp  Opcode = 0x02 // Jump: OpJmp <addr:u32>
	OpJz   Opcode = 0x03 // Jump if register is Null: OpJz <reg:u8> <addr:u32>
	OpJnz  Opcode = 0x04 // Jump if register is not Null
	OpJeq  Opcode = 0x05 // Jump if equal: OpJeq <a|b:u8> <addr:u32>
	OpJne  Opcode = 0x06 // Jump if not equal
	OpCall Opcode = 0x07 // Push return address, jump: OpCall <addr:u32>
	OpRet  Opcode = 0x08 // Pop return address

	// ========================================================================
	// Registers (0x10-0x1F)
	// ========================================================================

	OpMov Opcode = 0x10 // rd <- rs: OpMov <d|s:u8>
	OpLdi Opcode = 0x11 // rd <- immediate: OpLdi <reg:u8> <sil:u8>
	OpClr Opcode = 0x12 // rd <- Null: OpClr <reg:u8>

	// ========================================================================
	// ByteSil arithmetic (0x20-0x2F)
	// ========================================================================

	OpMul  Opcode = 0x20 // rd <- ra * rb: OpMul <d|a:u8> <b|0:u8>
	OpDiv  Opcode = 0x21 // rd <- ra / rb
	OpMix  Opcode = 0x22 // rd <- mix(ra, rb)
	OpXor  Opcode = 0x23 // rd <- ra ^ rb (packed)
	OpPow  Opcode = 0x24 // rd <- rs ** n: OpPow <d|s:u8> <n:i8>
	OpRoot Opcode = 0x25 // rd <- rs ** (1/n)
	OpConj Opcode = 0x26 // rd <- conj(rs): OpConj <d|s:u8>
	OpInv  Opcode = 0x27 // rd <- 1/rs

	// ========================================================================
	// Stack (0x30-0x3F)
	// ========================================================================

	OpPush Opcode = 0x30 // Push register: OpPush <reg:u8>
	OpPop  Opcode = 0x31 // Pop into register: OpPop <reg:u8>
	OpDup  Opcode = 0x32 // Duplicate top byte
	OpDrop Opcode = 0x33 // Discard top byte

	// ========================================================================
	// Memory (0x40-0x4F)
	// ========================================================================

	OpLd    Opcode = 0x40 // rd <- [addr]: OpLd <reg:u8> <addr:u32>
	OpSt    Opcode = 0x41 // [addr] <- rs: OpSt <reg:u8> <addr:u32>
	OpLdx   Opcode = 0x42 // rd <- [addr + ri]: OpLdx <d|i:u8> <addr:u32>
	OpStx   Opcode = 0x43 // [addr + ri] <- rs: OpStx <s|i:u8> <addr:u32>
	OpAlloc Opcode = 0x44 // Grow heap top: OpAlloc <n:u16>

	// ========================================================================
	// State vector (0x50-0x5F)
	// ========================================================================

	OpSld  Opcode = 0x50 // rd <- state[layer]: OpSld <d|layer:u8>
	OpSst  Opcode = 0x51 // state[layer] <- rs: OpSst <s|layer:u8>
	OpSten Opcode = 0x52 // state <- state (x) registers
	OpScol Opcode = 0x53 // rd <- collapse(state): OpScol <d|strategy:u8>
	OpSvac Opcode = 0x54 // state <- vacuum

	// ========================================================================
	// Entanglement (0x60-0x6F)
	// ========================================================================

	OpEsend Opcode = 0x60 // Broadcast state delta to the pair
	OpErecv Opcode = 0x61 // Apply pending deltas: OpErecv <reg:u8>

	// ========================================================================
	// I/O (0x70-0x7F)
	// ========================================================================

	OpIn    Opcode = 0x70 // rd <- port: OpIn <reg:u8> <port:u8>
	OpOut   Opcode = 0x71 // port <- rs: OpOut <reg:u8> <port:u8>
	OpSense Opcode = 0x72 // rd <- sensor: OpSense <reg:u8> <sensor:u8>
	OpAct   Opcode = 0x73 // actuator <- rs: OpAct <reg:u8> <actuator:u8>
	OpSys   Opcode = 0x74 // Host syscall: OpSys <id:u8>
)

// Format is the fixed byte layout of an instruction's operands.
type Format uint8

const (
	FmtNone        Format = iota // [op]
	FmtReg                       // [op][reg]
	FmtRegReg                    // [op][hi|lo]
	FmtRegRegReg                 // [op][d|a][b|0]
	FmtRegRegImm                 // [op][d|s][i8]
	FmtRegSil                    // [op][reg][sil]
	FmtAddr                      // [op][addr32]
	FmtRegAddr                   // [op][reg][addr32]
	FmtRegRegAddr                // [op][hi|lo][addr32]
	FmtRegLayer                  // [op][reg|layer]
	FmtRegStrategy               // [op][reg|strategy]
	FmtRegID                     // [op][reg][id]
	FmtID                        // [op][id]
	FmtImm16                     // [op][u16]
)

var formatWidths = [...]int{
	FmtNone:        1,
	FmtReg:         2,
	FmtRegReg:      2,
	FmtRegRegReg:   3,
	FmtRegRegImm:   3,
	FmtRegSil:      3,
	FmtAddr:        5,
	FmtRegAddr:     6,
	FmtRegRegAddr:  6,
	FmtRegLayer:    2,
	FmtRegStrategy: 2,
	FmtRegID:       3,
	FmtID:          2,
	FmtImm16:       3,
}

// Width returns the total instruction length in bytes, opcode included.
func (f Format) Width() int {
	return formatWidths[f]
}

// OperandKind is how an operand is spelled in assembly text.
type OperandKind uint8

const (
	KindReg      OperandKind = iota // r0..r15
	KindSil                         // ByteSil literal
	KindTarget                      // code address (label)
	KindAddr                        // memory address
	KindInt8                        // signed exponent
	KindU16                         // byte count
	KindLayer                       // 0..15
	KindStrategy                    // xor|product|mix|max
	KindID                          // device or syscall id
)

// Slot is the field of Instruction an operand is stored in.
type Slot uint8

const (
	SlotX Slot = iota
	SlotY
	SlotZ
	SlotImm
	SlotAddr
)

// Operand describes one textual operand, in source order.
type Operand struct {
	Kind OperandKind
	Slot Slot
}

// OpcodeInfo provides metadata about each opcode for decoding, validation
// and the assembler/disassembler.
type OpcodeInfo struct {
	Name     string    // Mnemonic (upper case)
	Format   Format    // Byte layout
	MinMode  Mode      // Smallest mode that may execute it
	Operands []Operand // Source-order operands
}

var (
	reg    = Operand{KindReg, SlotX}
	regY   = Operand{KindReg, SlotY}
	regZ   = Operand{KindReg, SlotZ}
	target = Operand{KindTarget, SlotAddr}
	addr   = Operand{KindAddr, SlotAddr}
	id     = Operand{KindID, SlotImm}
)

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Control flow
	OpNop:  {"NOP", FmtNone, Mode8, nil},
	OpHalt: {"HALT", FmtNone, Mode8, nil},
	OpJmp:  {"JMP", FmtAddr, Mode8, []Operand{target}},
	OpJz:   {"JZ", FmtRegAddr, Mode8, []Operand{reg, target}},
	OpJnz:  {"JNZ", FmtRegAddr, Mode8, []Operand{reg, target}},
	OpJeq:  {"JEQ", FmtRegRegAddr, Mode8, []Operand{reg, regY, target}},
	OpJne:  {"JNE", FmtRegRegAddr, Mode8, []Operand{reg, regY, target}},
	OpCall: {"CALL", FmtAddr, Mode8, []Operand{target}},
	OpRet:  {"RET", FmtNone, Mode8, nil},

	// Registers
	OpMov: {"MOV", FmtRegReg, Mode8, []Operand{reg, regY}},
	OpLdi: {"LDI", FmtRegSil, Mode8, []Operand{reg, {KindSil, SlotImm}}},
	OpClr: {"CLR", FmtReg, Mode8, []Operand{reg}},

	// Arithmetic
	OpMul:  {"MUL", FmtRegRegReg, Mode8, []Operand{reg, regY, regZ}},
	OpDiv:  {"DIV", FmtRegRegReg, Mode8, []Operand{reg, regY, regZ}},
	OpMix:  {"MIX", FmtRegRegReg, Mode8, []Operand{reg, regY, regZ}},
	OpXor:  {"XOR", FmtRegRegReg, Mode8, []Operand{reg, regY, regZ}},
	OpPow:  {"POW", FmtRegRegImm, Mode8, []Operand{reg, regY, {KindInt8, SlotImm}}},
	OpRoot: {"ROOT", FmtRegRegImm, Mode8, []Operand{reg, regY, {KindInt8, SlotImm}}},
	OpConj: {"CONJ", FmtRegReg, Mode8, []Operand{reg, regY}},
	OpInv:  {"INV", FmtRegReg, Mode8, []Operand{reg, regY}},

	// Stack
	OpPush: {"PUSH", FmtReg, Mode8, []Operand{reg}},
	OpPop:  {"POP", FmtReg, Mode8, []Operand{reg}},
	OpDup:  {"DUP", FmtNone, Mode8, nil},
	OpDrop: {"DROP", FmtNone, Mode8, nil},

	// Memory
	OpLd:    {"LD", FmtRegAddr, Mode16, []Operand{reg, addr}},
	OpSt:    {"ST", FmtRegAddr, Mode16, []Operand{addr, reg}},
	OpLdx:   {"LDX", FmtRegRegAddr, Mode16, []Operand{reg, addr, regY}},
	OpStx:   {"STX", FmtRegRegAddr, Mode16, []Operand{addr, regY, reg}},
	OpAlloc: {"ALLOC", FmtImm16, Mode16, []Operand{{KindU16, SlotImm}}},

	// State vector
	OpSld:  {"SLD", FmtRegLayer, Mode128, []Operand{reg, {KindLayer, SlotImm}}},
	OpSst:  {"SST", FmtRegLayer, Mode128, []Operand{{KindLayer, SlotImm}, reg}},
	OpSten: {"STEN", FmtNone, Mode128, nil},
	OpScol: {"SCOL", FmtRegStrategy, Mode128, []Operand{reg, {KindStrategy, SlotImm}}},
	OpSvac: {"SVAC", FmtNone, Mode128, nil},

	// Entanglement
	OpEsend: {"ESEND", FmtNone, Mode128, nil},
	OpErecv: {"ERECV", FmtReg, Mode128, []Operand{reg}},

	// I/O
	OpIn:    {"IN", FmtRegID, Mode32, []Operand{reg, id}},
	OpOut:   {"OUT", FmtRegID, Mode32, []Operand{id, reg}},
	OpSense: {"SENSE", FmtRegID, Mode32, []Operand{reg, id}},
	OpAct:   {"ACT", FmtRegID, Mode32, []Operand{id, reg}},
	OpSys:   {"SYS", FmtID, Mode32, []Operand{id}},
}

// LookupOpcode returns metadata for an opcode and whether it is defined.
func LookupOpcode(op Opcode) (OpcodeInfo, bool) {
	info, ok := opcodeInfoTable[op]
	return info, ok
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Defined reports whether op is assigned.
func (op Opcode) Defined() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// InstructionLen returns the total length of an instruction, or 1 for an
// unassigned opcode.
func (op Opcode) InstructionLen() int {
	return GetOpcodeInfo(op).Format.Width()
}

// IsBranch returns true if the opcode transfers control to an address operand.
func (op Opcode) IsBranch() bool {
	return op >= OpJmp && op <= OpCall
}

// AllOpcodes returns every defined opcode in ascending order.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	sort.Slice(opcodes, func(i, j int) bool { return opcodes[i] < opcodes[j] })
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}

var mnemonicTable = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeInfoTable))
	for op, info := range opcodeInfoTable {
		m[info.Name] = op
	}
	return m
}()

// OpcodeByName resolves an upper-case mnemonic.
func OpcodeByName(name string) (Opcode, bool) {
	op, ok := mnemonicTable[name]
	return op, ok
}
