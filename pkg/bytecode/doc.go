// Package bytecode defines the SIL instruction set and the toolchain around
// it: the .silc container, the assembler and the disassembler.
//
// # Instruction encoding
//
// Every instruction starts with a one-byte opcode followed by a fixed number
// of operand bytes determined by the opcode's Format. Multi-byte operands are
// big-endian. Register pairs share a byte as hi<<4|lo nibbles.
//
// Opcodes are grouped by range:
//
//   - 0x00-0x0F control flow
//   - 0x10-0x1F register moves
//   - 0x20-0x2F ByteSil arithmetic
//   - 0x30-0x3F stack
//   - 0x40-0x4F memory
//   - 0x50-0x5F state vector
//   - 0x60-0x6F entanglement
//   - 0x70-0x7F host I/O
//
// Decode is the single decoder shared by the disassembler and the VM, so a
// byte sequence the VM accepts always disassembles to an instruction and
// vice versa.
//
// # Addresses
//
// Addresses are 32 bits. The top two bits select a space (image, stack, heap,
// reserved) and the low 30 bits hold the offset. Image offsets cover the code
// segment followed by the data segment.
//
// # The .silc format
//
// A SilcFile serializes as
//
//	"SILC" version:u16 mode:u8 flags:u8
//	code_len:u32 code data_len:u32 data
//	sym_count:u32 (name_len:u16 name addr:u32)*
//
// Assemble and Disassemble are pure functions; neither keeps state between
// calls.
package bytecode
