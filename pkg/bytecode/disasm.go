package bytecode

import (
	"fmt"
	"sort"
	"strings"
)

// Disassemble returns an assembly listing of raw code. The listing always
// reassembles: bytes that do not decode are emitted as .byte lines.
func Disassemble(code []byte) string {
	return disassemble(&SilcFile{Code: code}, false)
}

// DisassembleFile lists a whole file, including its mode, symbols and data.
func DisassembleFile(f *SilcFile) string {
	return disassemble(f, true)
}

// Line is one entry of a listing: either a decoded instruction or a single
// undecodable byte.
type Line struct {
	Offset uint32
	Inst   Instruction
	Raw    bool
	Byte   byte
	Err    error // decode failure when Raw
}

// Walk decodes code front to back. Undecodable bytes are reported one at a
// time and decoding resumes at the next byte.
func Walk(code []byte) []Line {
	var lines []Line
	for pc := uint32(0); int(pc) < len(code); {
		in, err := Decode(code, pc)
		if err != nil {
			lines = append(lines, Line{Offset: pc, Raw: true, Byte: code[pc], Err: err})
			pc++
			continue
		}
		lines = append(lines, Line{Offset: pc, Inst: in})
		pc = in.Next()
	}
	return lines
}

// InstructionCount returns the number of decodable instructions in code.
func InstructionCount(code []byte) int {
	count := 0
	for _, l := range Walk(code) {
		if !l.Raw {
			count++
		}
	}
	return count
}

type labeler struct {
	names    map[uint32][]string // placed labels per address
	taken    map[string]bool
	boundary map[uint32]bool
}

func (lb *labeler) name(addr uint32) string {
	if ns := lb.names[addr]; len(ns) > 0 {
		return ns[0]
	}
	return ""
}

func (lb *labeler) add(addr uint32, name string) {
	if lb.taken[name] {
		return
	}
	lb.taken[name] = true
	lb.names[addr] = append(lb.names[addr], name)
}

func disassemble(f *SilcFile, withFile bool) string {
	lines := Walk(f.Code)
	codeLen := uint32(len(f.Code))
	image := f.ImageSize()

	lb := &labeler{
		names:    make(map[uint32][]string),
		taken:    make(map[string]bool),
		boundary: make(map[uint32]bool),
	}
	for _, l := range lines {
		if !l.Raw {
			lb.boundary[l.Offset] = true
		}
	}
	placeable := func(addr uint32) bool {
		return lb.boundary[addr] || (addr >= codeLen && addr <= image)
	}

	if withFile {
		for _, s := range f.SortedSymbols() {
			if placeable(s.Addr) {
				lb.add(s.Addr, s.Name)
			} else {
				lb.taken[s.Name] = true
			}
		}
	}
	for _, l := range lines {
		if l.Raw {
			continue
		}
		for _, o := range l.Inst.Info().Operands {
			if o.Kind != KindTarget {
				continue
			}
			addr := l.Inst.Addr
			if lb.boundary[addr] && lb.name(addr) == "" {
				lb.add(addr, fmt.Sprintf("L%04X", addr))
			}
		}
	}

	var sb strings.Builder
	if withFile {
		if f.Mode.Valid() {
			sb.WriteString(fmt.Sprintf(".mode %s\n", f.Mode))
		} else {
			sb.WriteString(fmt.Sprintf("; mode tag 0x%02X is not valid\n", byte(f.Mode)))
		}
		for _, s := range f.SortedSymbols() {
			if !placeable(s.Addr) {
				sb.WriteString(fmt.Sprintf("; symbol %s = 0x%04X\n", s.Name, s.Addr))
			}
		}
		sb.WriteString(".code\n")
	}

	writeLabels := func(addr uint32) {
		for _, name := range lb.names[addr] {
			sb.WriteString(name + ":\n")
		}
	}

	for _, l := range lines {
		writeLabels(l.Offset)
		var text string
		if l.Raw {
			text = fmt.Sprintf(".byte 0x%02X", l.Byte)
		} else {
			text = strings.ToLower(l.Inst.Info().Name)
			if ops := FormatOperands(l.Inst, lb.name); ops != "" {
				text += " " + ops
			}
		}
		sb.WriteString(fmt.Sprintf("    %-28s ; %04X\n", text, l.Offset))
	}

	if !withFile {
		return sb.String()
	}

	if len(f.Data) > 0 {
		sb.WriteString(".data\n")
	}
	// Data is split into .byte runs at every label.
	var cuts []uint32
	for addr := range lb.names {
		if addr >= codeLen {
			cuts = append(cuts, addr)
		}
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i] < cuts[j] })

	pos := codeLen
	for _, cut := range cuts {
		writeRuns(&sb, f.Data[pos-codeLen:cut-codeLen], pos)
		writeLabels(cut)
		pos = cut
	}
	writeRuns(&sb, f.Data[pos-codeLen:], pos)
	return sb.String()
}

// writeRuns emits data as .byte lines of at most eight values.
func writeRuns(sb *strings.Builder, data []byte, addr uint32) {
	for len(data) > 0 {
		n := min(len(data), 8)
		vals := make([]string, n)
		for i, b := range data[:n] {
			vals[i] = fmt.Sprintf("0x%02X", b)
		}
		sb.WriteString(fmt.Sprintf("    %-28s ; %04X\n", ".byte "+strings.Join(vals, ", "), addr))
		data = data[n:]
		addr += uint32(n)
	}
}
