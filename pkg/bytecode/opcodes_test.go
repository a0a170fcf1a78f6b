package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
		if !info.MinMode.Valid() {
			t.Errorf("%s has invalid minimum mode %v", info.Name, info.MinMode)
		}
		if got, ok := OpcodeByName(info.Name); !ok || got != op {
			t.Errorf("OpcodeByName(%q) = %v, %v", info.Name, got, ok)
		}
	}
}

func TestOpcodeCount(t *testing.T) {
	if got := OpcodeCount(); got != 41 {
		t.Errorf("OpcodeCount() = %d, want 41", got)
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "NOP"},
		{OpHalt, "HALT"},
		{OpJeq, "JEQ"},
		{OpLdi, "LDI"},
		{OpMix, "MIX"},
		{OpDrop, "DROP"},
		{OpStx, "STX"},
		{OpScol, "SCOL"},
		{OpErecv, "ERECV"},
		{OpSys, "SYS"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	op := Opcode(0xEE)
	if got := op.String(); !strings.HasPrefix(got, "UNKNOWN") {
		t.Errorf("Unknown opcode should return UNKNOWN, got %q", got)
	}
	if op.Defined() {
		t.Error("0xEE reported as defined")
	}
	if op.InstructionLen() != 1 {
		t.Errorf("unknown InstructionLen() = %d, want 1", op.InstructionLen())
	}
}

func TestOpcodeInstructionLen(t *testing.T) {
	tests := []struct {
		op   Opcode
		want int
	}{
		{OpNop, 1},
		{OpJmp, 5},
		{OpJz, 6},
		{OpJeq, 6},
		{OpMov, 2},
		{OpLdi, 3},
		{OpMul, 3},
		{OpPow, 3},
		{OpPush, 2},
		{OpLd, 6},
		{OpAlloc, 3},
		{OpSld, 2},
		{OpSten, 1},
		{OpIn, 3},
		{OpSys, 2},
	}

	for _, tt := range tests {
		if got := tt.op.InstructionLen(); got != tt.want {
			t.Errorf("%s.InstructionLen() = %d, want %d", tt.op, got, tt.want)
		}
	}
}

func TestOpcodeMinMode(t *testing.T) {
	tests := []struct {
		op   Opcode
		want Mode
	}{
		{OpCall, Mode8},
		{OpXor, Mode8},
		{OpDup, Mode8},
		{OpLdx, Mode16},
		{OpAlloc, Mode16},
		{OpOut, Mode32},
		{OpSys, Mode32},
		{OpSvac, Mode128},
		{OpEsend, Mode128},
	}

	for _, tt := range tests {
		if got := GetOpcodeInfo(tt.op).MinMode; got != tt.want {
			t.Errorf("%s.MinMode = %s, want %s", tt.op, got, tt.want)
		}
	}
}

func TestOpcodeRanges(t *testing.T) {
	for _, op := range AllOpcodes() {
		group := byte(op) >> 4
		if group > 7 {
			t.Errorf("%s (0x%02X) outside the defined ranges", op, byte(op))
		}
	}
	if !OpCall.IsBranch() || OpRet.IsBranch() || OpNop.IsBranch() {
		t.Error("IsBranch mismatch")
	}
}

// ============ Mode Tests ============

func TestModeSupports(t *testing.T) {
	tests := []struct {
		vm, file Mode
		want     bool
	}{
		{Mode128, Mode8, true},
		{Mode128, Mode128, true},
		{Mode16, Mode32, false},
		{Mode8, Mode8, true},
		{Mode(3), Mode8, false},
		{Mode128, Mode(0), false},
	}
	for _, tt := range tests {
		if got := tt.vm.Supports(tt.file); got != tt.want {
			t.Errorf("%v.Supports(%v) = %v, want %v", tt.vm, tt.file, got, tt.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"SIL-32", "sil32", "32", " sil-32 "} {
		m, err := ParseMode(s)
		if err != nil || m != Mode32 {
			t.Errorf("ParseMode(%q) = %v, %v", s, m, err)
		}
	}
	if _, err := ParseMode("SIL-7"); err == nil {
		t.Error("ParseMode accepted SIL-7")
	}
	if Mode(5).Valid() {
		t.Error("Mode(5) is valid")
	}
}

// ============ Error Tests ============

func TestErrorKinds(t *testing.T) {
	err := AssemblerError(3, "undefined symbol: %s", "loop")
	if got := err.Error(); got != "assembler error: line 3: undefined symbol: loop" {
		t.Errorf("Error() = %q", got)
	}
	if KindOf(err) != KindAssembler {
		t.Errorf("KindOf = %v", KindOf(err))
	}
	if KindOf(IOError("x.silc", errFake)) != KindIO {
		t.Error("IOError kind mismatch")
	}
	if KindOf(errFake) != 0 {
		t.Error("KindOf(plain error) != 0")
	}
}

type fakeError struct{}

func (fakeError) Error() string { return "fake" }

var errFake = fakeError{}
