package bytecode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/sil/pkg/sil"
)

// Assemble translates assembly source into a SilcFile.
//
// Source is line oriented:
//
//	[label:]... [mnemonic|directive operand, ...] [; comment]
//
// Mnemonics, directives and registers are case-insensitive; labels are not.
// The first error stops assembly. Assemble keeps no state between calls.
func Assemble(src string) (*SilcFile, error) {
	a := &assembler{labels: make(map[string]*label)}
	if err := a.scan(src); err != nil {
		return nil, err
	}
	if err := a.emit(); err != nil {
		return nil, err
	}
	return a.file(), nil
}

type section uint8

const (
	sectionCode section = iota
	sectionData
)

type label struct {
	name   string
	sec    section
	offset uint32 // within its section
	addr   uint32 // resolved after the first pass
}

type statement struct {
	line     int
	sec      section
	name     string // lower-case directive or upper-case mnemonic
	operands []string
	offset   uint32
}

type assembler struct {
	stmts  []statement
	labels map[string]*label
	order  []*label

	codeLen  uint32
	dataLen  uint32
	mode     Mode
	modeLine int

	code []byte
	data []byte
	used Mode // widest minimum mode of the opcodes emitted
}

// ============================================================================
// Pass 1: split lines, size statements, place labels
// ============================================================================

func (a *assembler) scan(src string) error {
	sec := sectionCode
	for i, raw := range strings.Split(src, "\n") {
		line := i + 1
		text := strings.TrimSpace(stripComment(raw))

		for {
			name, rest, ok := cutLabel(text)
			if !ok {
				break
			}
			if _, dup := a.labels[name]; dup {
				return AssemblerError(line, "duplicate label %q", name)
			}
			l := &label{name: name, sec: sec}
			if sec == sectionCode {
				l.offset = a.codeLen
			} else {
				l.offset = a.dataLen
			}
			a.labels[name] = l
			a.order = append(a.order, l)
			text = rest
		}
		if text == "" {
			continue
		}

		head, rest := text, ""
		if i := strings.IndexAny(text, " \t"); i >= 0 {
			head, rest = text[:i], strings.TrimSpace(text[i+1:])
		}

		if strings.HasPrefix(head, ".") {
			directive := strings.ToLower(head)
			switch directive {
			case ".code":
				sec = sectionCode
				continue
			case ".data":
				sec = sectionData
				continue
			case ".mode":
				if a.modeLine != 0 {
					return AssemblerError(line, ".mode already set on line %d", a.modeLine)
				}
				m, err := ParseMode(rest)
				if err != nil {
					return AssemblerError(line, "%v", err)
				}
				a.mode, a.modeLine = m, line
				continue
			}
			st := statement{line: line, sec: sec, name: directive}
			if directive == ".ascii" {
				st.operands = []string{rest}
			} else {
				st.operands = splitOperands(rest)
			}
			size, err := directiveSize(st)
			if err != nil {
				return err
			}
			a.place(&st, size)
			continue
		}

		mnemonic := strings.ToUpper(head)
		op, ok := OpcodeByName(mnemonic)
		if !ok {
			return AssemblerError(line, "unknown mnemonic %q", head)
		}
		if sec != sectionCode {
			return AssemblerError(line, "instruction %s in .data section", mnemonic)
		}
		st := statement{line: line, sec: sec, name: mnemonic, operands: splitOperands(rest)}
		a.place(&st, uint32(op.InstructionLen()))
	}

	for _, l := range a.order {
		if l.sec == sectionCode {
			l.addr = l.offset
		} else {
			l.addr = a.codeLen + l.offset
		}
	}
	return nil
}

func (a *assembler) place(st *statement, size uint32) {
	if st.sec == sectionCode {
		st.offset = a.codeLen
		a.codeLen += size
	} else {
		st.offset = a.dataLen
		a.dataLen += size
	}
	a.stmts = append(a.stmts, *st)
}

func directiveSize(st statement) (uint32, error) {
	switch st.name {
	case ".byte", ".sil":
		if len(st.operands) == 0 {
			return 0, AssemblerError(st.line, "%s needs at least one value", st.name)
		}
		return uint32(len(st.operands)), nil
	case ".zero":
		if len(st.operands) != 1 {
			return 0, AssemblerError(st.line, ".zero expects 1 operand, got %d", len(st.operands))
		}
		n, err := parseInt(st.operands[0], 0, OffsetMask)
		if err != nil {
			return 0, AssemblerError(st.line, ".zero: %v", err)
		}
		return uint32(n), nil
	case ".ascii":
		s, err := strconv.Unquote(st.operands[0])
		if err != nil {
			return 0, AssemblerError(st.line, ".ascii expects a quoted string")
		}
		return uint32(len(s)), nil
	default:
		return 0, AssemblerError(st.line, "unknown directive %q", st.name)
	}
}

// ============================================================================
// Pass 2: encode
// ============================================================================

func (a *assembler) emit() error {
	a.code = make([]byte, 0, a.codeLen)
	a.data = make([]byte, 0, a.dataLen)

	for _, st := range a.stmts {
		var err error
		if strings.HasPrefix(st.name, ".") {
			err = a.emitDirective(st)
		} else {
			err = a.emitInstruction(st)
		}
		if err != nil {
			return err
		}
	}

	if a.modeLine == 0 {
		a.mode = a.used
		if a.mode == 0 {
			a.mode = Mode8
		}
	}
	return nil
}

func (a *assembler) out(sec section, b ...byte) {
	if sec == sectionCode {
		a.code = append(a.code, b...)
	} else {
		a.data = append(a.data, b...)
	}
}

func (a *assembler) emitDirective(st statement) error {
	switch st.name {
	case ".byte":
		for _, s := range st.operands {
			n, err := parseInt(s, -128, 255)
			if err != nil {
				return AssemblerError(st.line, ".byte: %v", err)
			}
			a.out(st.sec, byte(n))
		}
	case ".sil":
		for _, s := range st.operands {
			v, err := parseSil(s)
			if err != nil {
				return AssemblerError(st.line, ".sil: %v", err)
			}
			a.out(st.sec, v.ToU8())
		}
	case ".zero":
		n, _ := parseInt(st.operands[0], 0, OffsetMask)
		a.out(st.sec, make([]byte, n)...)
	case ".ascii":
		s, _ := strconv.Unquote(st.operands[0])
		a.out(st.sec, []byte(s)...)
	}
	return nil
}

func (a *assembler) emitInstruction(st statement) error {
	op, _ := OpcodeByName(st.name)
	info := GetOpcodeInfo(op)

	if len(st.operands) != len(info.Operands) {
		return AssemblerError(st.line, "%s expects %d operands, got %d", info.Name, len(info.Operands), len(st.operands))
	}
	if a.modeLine != 0 && info.MinMode > a.mode {
		return AssemblerError(st.line, "%s requires %s but the file declares %s", info.Name, info.MinMode, a.mode)
	}
	if info.MinMode > a.used {
		a.used = info.MinMode
	}

	in := Instruction{Op: op, At: st.offset, Size: info.Format.Width()}
	for i, operand := range info.Operands {
		if err := a.operand(&in, operand, st.operands[i]); err != nil {
			return AssemblerError(st.line, "%s operand %d: %v", info.Name, i+1, err)
		}
	}
	a.code = Append(a.code, in)
	return nil
}

func (a *assembler) operand(in *Instruction, o Operand, text string) error {
	setField := func(v uint8) {
		switch o.Slot {
		case SlotY:
			in.Y = v
		case SlotZ:
			in.Z = v
		default:
			in.X = v
		}
	}

	switch o.Kind {
	case KindReg:
		r, err := parseReg(text)
		if err != nil {
			return err
		}
		setField(r)
	case KindSil:
		v, err := parseSil(text)
		if err != nil {
			return err
		}
		in.Imm = int(v.ToU8())
	case KindTarget:
		addr, err := a.address(text, true)
		if err != nil {
			return err
		}
		in.Addr = addr
	case KindAddr:
		addr, err := a.address(text, false)
		if err != nil {
			return err
		}
		in.Addr = addr
	case KindInt8:
		n, err := parseInt(text, -128, 127)
		if err != nil {
			return err
		}
		in.Imm = int(n)
	case KindU16:
		n, err := parseInt(text, 0, 0xFFFF)
		if err != nil {
			return err
		}
		in.Imm = int(n)
	case KindLayer:
		n, err := parseInt(text, 0, sil.NumLayers-1)
		if err != nil {
			return err
		}
		in.Imm = int(n)
	case KindStrategy:
		st, ok := sil.ParseStrategy(strings.ToLower(text))
		if !ok {
			return fmt.Errorf("unknown collapse strategy %q", text)
		}
		in.Imm = int(st)
	case KindID:
		n, err := parseInt(text, 0, 255)
		if err != nil {
			return err
		}
		in.Imm = int(n)
	}
	return nil
}

// address resolves label, label+N, label-N, stack:N, heap:N or a number.
// Jump targets may not point into data.
func (a *assembler) address(text string, jump bool) (uint32, error) {
	lower := strings.ToLower(text)
	for _, space := range []Space{SpaceStack, SpaceHeap} {
		if off, ok := strings.CutPrefix(lower, space.String()+":"); ok {
			n, err := parseInt(strings.TrimSpace(off), 0, OffsetMask)
			if err != nil {
				return 0, err
			}
			return MakeAddr(space, uint32(n)), nil
		}
	}

	if text == "" {
		return 0, fmt.Errorf("missing address")
	}
	var addr int64
	if isIdentStart(text[0]) {
		name, disp := text, int64(0)
		if i := strings.IndexAny(text, "+-"); i > 0 {
			n, err := parseInt(strings.TrimSpace(text[i+1:]), 0, OffsetMask)
			if err != nil {
				return 0, err
			}
			name, disp = strings.TrimSpace(text[:i]), n
			if text[i] == '-' {
				disp = -disp
			}
		}
		l, ok := a.labels[name]
		if !ok {
			return 0, fmt.Errorf("undefined symbol: %s", name)
		}
		if jump && l.sec == sectionData {
			return 0, fmt.Errorf("jump to data label %s", name)
		}
		addr = int64(l.addr) + disp
		if addr < 0 {
			return 0, fmt.Errorf("address %s is negative", text)
		}
	} else {
		n, err := parseInt(text, 0, 0xFFFFFFFF)
		if err != nil {
			return 0, err
		}
		addr = n
		if space, _ := SplitAddr(uint32(addr)); space != SpaceImage {
			return uint32(addr), nil
		}
	}

	image := int64(a.codeLen) + int64(a.dataLen)
	if addr >= image {
		return 0, fmt.Errorf("address 0x%04X is outside the %d-byte image", addr, image)
	}
	if jump && addr >= int64(a.codeLen) {
		return 0, fmt.Errorf("jump target 0x%04X is in data", addr)
	}
	return uint32(addr), nil
}

func (a *assembler) file() *SilcFile {
	f := &SilcFile{Mode: a.mode, Code: a.code, Data: a.data}
	if len(f.Data) == 0 {
		f.Data = nil
	}
	for _, l := range a.order {
		f.Symbols = append(f.Symbols, Symbol{Name: l.name, Addr: l.addr})
	}
	return f
}

// ============================================================================
// Lexical helpers
// ============================================================================

// stripComment removes a ';' comment, ignoring ';' inside a quoted string.
func stripComment(s string) string {
	inQuote, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inQuote:
			escaped = true
		case c == '"':
			inQuote = !inQuote
		case c == ';' && !inQuote:
			return s[:i]
		}
	}
	return s
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '.'
}

// cutLabel splits a leading "name:" off text.
func cutLabel(text string) (name, rest string, ok bool) {
	if text == "" || !isIdentStart(text[0]) {
		return "", text, false
	}
	i := 1
	for i < len(text) && isIdentChar(text[i]) {
		i++
	}
	if i >= len(text) || text[i] != ':' {
		return "", text, false
	}
	return text[:i], strings.TrimSpace(text[i+1:]), true
}

func splitOperands(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseReg(s string) (uint8, error) {
	if len(s) < 2 || (s[0] != 'r' && s[0] != 'R') {
		return 0, fmt.Errorf("expected register, got %q", s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 || n > 15 {
		return 0, fmt.Errorf("invalid register %q", s)
	}
	return uint8(n), nil
}

// parseSil accepts rho:theta, null, one, max or #0xNN.
func parseSil(s string) (sil.ByteSil, error) {
	switch strings.ToLower(s) {
	case "null":
		return sil.Null, nil
	case "one":
		return sil.One, nil
	case "max":
		return sil.Max, nil
	}
	if packed, ok := strings.CutPrefix(s, "#"); ok {
		n, err := parseInt(packed, 0, 255)
		if err != nil {
			return sil.ByteSil{}, err
		}
		return sil.FromU8(byte(n)), nil
	}
	rs, ts, ok := strings.Cut(s, ":")
	if !ok {
		return sil.ByteSil{}, fmt.Errorf("expected ByteSil literal, got %q", s)
	}
	rho, err := parseInt(strings.TrimSpace(rs), sil.RhoMin, sil.RhoMax)
	if err != nil {
		return sil.ByteSil{}, fmt.Errorf("rho: %v", err)
	}
	theta, err := parseInt(strings.TrimSpace(ts), 0, sil.ThetaMax)
	if err != nil {
		return sil.ByteSil{}, fmt.Errorf("theta: %v", err)
	}
	return sil.New(int(rho), int(theta)), nil
}

func parseInt(s string, lo, hi int64) (int64, error) {
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}
