package vm

import (
	"errors"
	"testing"

	"github.com/chazu/sil/pkg/bytecode"
	"github.com/chazu/sil/pkg/sil"
	"github.com/google/go-cmp/cmp"
)

func loadRaw(t *testing.T, code, data []byte) *Vsp {
	t.Helper()
	v := New(DefaultConfig())
	f := &bytecode.SilcFile{Mode: bytecode.Mode8, Code: code, Data: data}
	if err := v.Load(f, DefaultConfig()); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return v
}

// runFault runs v and requires a fault matching want.
func runFault(t *testing.T, v *Vsp, want error) *Fault {
	t.Helper()
	_, err := v.Run()
	if !errors.Is(err, want) {
		t.Fatalf("Run error = %v, want %v", err, want)
	}
	f, _ := AsFault(err)
	return f
}

func wantReg(t *testing.T, v *Vsp, i int, want sil.ByteSil) {
	t.Helper()
	if got := v.Register(i); got != want {
		t.Errorf("r%d = %v, want %v", i, got, want)
	}
}

// ============ Arithmetic ============

func TestArithmetic(t *testing.T) {
	v := load(t, `
    ldi  r0, 1:2
    pow  r1, r0, 3
    root r2, r1, 3
    conj r3, r0
    inv  r4, r0
    div  r5, r1, r0
    xor  r6, r0, r0
    mov  r7, r0
    mix  r8, r0, r0
    clr  r0
    halt
`)
	runToEnd(t, v)

	wantReg(t, v, 0, sil.Null)
	wantReg(t, v, 1, sil.New(3, 6))
	wantReg(t, v, 2, sil.New(1, 2))
	wantReg(t, v, 3, sil.New(1, 14))
	wantReg(t, v, 4, sil.New(-1, 14))
	wantReg(t, v, 5, sil.New(2, 4))
	wantReg(t, v, 6, sil.One)
	wantReg(t, v, 7, sil.New(1, 2))
	wantReg(t, v, 8, sil.New(1, 2))
	if v.Cycles() != 11 {
		t.Errorf("Cycles = %d, want 11", v.Cycles())
	}
}

func TestUntouchedRegistersStayNull(t *testing.T) {
	v := load(t, "ldi r3, one\nhalt")
	runToEnd(t, v)
	for i := 0; i < NumRegisters; i++ {
		want := sil.Null
		if i == 3 {
			want = sil.One
		}
		wantReg(t, v, i, want)
	}
}

// ============ Control Flow ============

func TestConditionalJumps(t *testing.T) {
	v := load(t, `
        ldi r1, one
        ldi r2, one
        jz  r0, a
        ldi r10, max
a:      jnz r1, b
        ldi r11, max
b:      jeq r1, r2, c
        ldi r12, max
c:      jne r1, r2, d
        ldi r13, max
d:      jnz r0, e
        ldi r14, max
e:      halt
`)
	runToEnd(t, v)
	wantReg(t, v, 10, sil.Null)
	wantReg(t, v, 11, sil.Null)
	wantReg(t, v, 12, sil.Null)
	wantReg(t, v, 13, sil.Max)
	wantReg(t, v, 14, sil.Max)
}

func TestCallRet(t *testing.T) {
	v := load(t, `
        call sub
        ldi  r1, max
        halt
sub:    ldi  r0, one
        ret
`)
	runToEnd(t, v)
	wantReg(t, v, 0, sil.One)
	wantReg(t, v, 1, sil.Max)
	if v.StackDepth() != 0 {
		t.Errorf("StackDepth = %d after ret", v.StackDepth())
	}
}

func TestCallPushesReturnAddress(t *testing.T) {
	v := load(t, "call sub\nhalt\nsub: nop\nhalt")
	if _, err := v.Step(); err != nil {
		t.Fatalf("Step error: %v", err)
	}
	if diff := cmp.Diff([]byte{0, 0, 0, 5}, v.Stack()); diff != "" {
		t.Errorf("stack (-want +got):\n%s", diff)
	}
	if v.PC() != 6 {
		t.Errorf("PC = %d, want 6", v.PC())
	}
}

func TestRetToInvalidAddressRestoresStack(t *testing.T) {
	v := load(t, `
    ldi  r0, max
    push r0
    push r0
    push r0
    push r0
    ret
`)
	f := runFault(t, v, ErrInvalidSegment)
	if f.Segment != SegStack {
		t.Errorf("Segment = %s, want stack", f.Segment)
	}
	if v.StackDepth() != 4 {
		t.Errorf("StackDepth = %d, want 4", v.StackDepth())
	}
}

func TestJumpTargetFaults(t *testing.T) {
	jmp := byte(bytecode.OpJmp)
	halt := byte(bytecode.OpHalt)

	tests := []struct {
		name string
		code []byte
		data []byte
		want error
		seg  Segment
	}{
		{"past image", []byte{jmp, 0, 0, 1, 0}, nil, ErrAddressOutOfBounds, SegCode},
		{"into data", []byte{jmp, 0, 0, 0, 6, halt}, []byte{0x01}, ErrInvalidSegment, SegData},
		{"stack space", []byte{jmp, 0x40, 0, 0, 0}, nil, ErrInvalidSegment, SegStack},
		{"reserved space", []byte{jmp, 0xC0, 0, 0, 0}, nil, ErrInvalidSegment, SegReserved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := loadRaw(t, tt.code, tt.data)
			f := runFault(t, v, tt.want)
			if f.Segment != tt.seg {
				t.Errorf("Segment = %s, want %s", f.Segment, tt.seg)
			}
			if f.PC != 0 || f.Opcode != bytecode.OpJmp {
				t.Errorf("fault = %+v", f)
			}
		})
	}
}

func TestUntakenBranchIgnoresBadTarget(t *testing.T) {
	// ldi r0, one; jz r0, 0x100; halt
	v := loadRaw(t, []byte{
		byte(bytecode.OpLdi), 0x00, 0x00,
		byte(bytecode.OpJz), 0x00, 0x00, 0x00, 0x01, 0x00,
		byte(bytecode.OpHalt),
	}, nil)
	runToEnd(t, v)
	if v.State() != Halted {
		t.Errorf("State = %s", v.State())
	}
}

// ============ Decode Faults ============

func TestDecodeFaults(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want error
	}{
		{"unknown", []byte{0xEE}, ErrInvalidOpcode},
		{"truncated", []byte{byte(bytecode.OpJmp), 0x00}, ErrTruncatedInstruction},
		{"bad register", []byte{byte(bytecode.OpClr), 0x10}, ErrInvalidOperand},
		{"bad pad nibble", []byte{byte(bytecode.OpMul), 0x12, 0x31}, ErrInvalidOperand},
		{"bad strategy", []byte{byte(bytecode.OpScol), 0x07}, ErrInvalidOperand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := loadRaw(t, tt.code, nil)
			f := runFault(t, v, tt.want)
			if f.Kind.Class() != ClassDecode {
				t.Errorf("class = %s", f.Kind.Class())
			}
			if f.Opcode != bytecode.Opcode(tt.code[0]) {
				t.Errorf("Opcode = %s", f.Opcode)
			}
		})
	}
}

// ============ Stack ============

func TestStackOps(t *testing.T) {
	v := load(t, `
    ldi  r0, 1:2
    push r0
    dup
    pop  r1
    drop
    halt
`)
	runToEnd(t, v)
	wantReg(t, v, 1, sil.New(1, 2))
	if v.StackDepth() != 0 {
		t.Errorf("StackDepth = %d", v.StackDepth())
	}
}

func TestStackOverflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StackSize = 2
	v := loadWith(t, "push r0\npush r0\npush r0\nhalt", cfg)

	f := runFault(t, v, ErrStackOverflow)
	if f.PC != 4 || v.StackDepth() != 2 {
		t.Errorf("PC = %d, StackDepth = %d", f.PC, v.StackDepth())
	}
	if f.Addr != bytecode.MakeAddr(bytecode.SpaceStack, 2) {
		t.Errorf("Addr = %s", bytecode.FormatAddr(f.Addr))
	}
}

func TestStackUnderflow(t *testing.T) {
	for _, src := range []string{"dup", "drop", "pop r0", "ret"} {
		t.Run(src, func(t *testing.T) {
			v := load(t, src+"\nhalt")
			runFault(t, v, ErrStackUnderflow)
		})
	}
}

// ============ Memory ============

func TestDataLoadAndReadOnlyImage(t *testing.T) {
	v := load(t, `
        ld r0, val
        ld r1, val+1
        halt
.data
val:    .byte 0x12, 0x7F
`)
	runToEnd(t, v)
	wantReg(t, v, 0, sil.FromU8(0x12))
	wantReg(t, v, 1, sil.Max)

	v = load(t, "st val, r0\nhalt\n.data\nval: .byte 1")
	f := runFault(t, v, ErrWriteToReadOnly)
	if f.Segment != SegData {
		t.Errorf("Segment = %s, want data", f.Segment)
	}

	v = load(t, "st 0, r0\nhalt")
	f = runFault(t, v, ErrWriteToReadOnly)
	if f.Segment != SegCode {
		t.Errorf("Segment = %s, want code", f.Segment)
	}
}

func TestHeap(t *testing.T) {
	v := load(t, `
    alloc 2
    ldi   r0, max
    st    heap:1, r0
    ld    r1, heap:1
    ld    r2, heap:2
    halt
`)
	f := runFault(t, v, ErrAddressOutOfBounds)
	if f.Segment != SegHeap {
		t.Errorf("Segment = %s, want heap", f.Segment)
	}
	wantReg(t, v, 1, sil.Max)
	if diff := cmp.Diff([]byte{0x00, 0x7F}, v.Heap()); diff != "" {
		t.Errorf("heap (-want +got):\n%s", diff)
	}
	if v.HeapTop() != 2 {
		t.Errorf("HeapTop = %d", v.HeapTop())
	}
}

func TestHeapOverflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeapSize = 8
	v := loadWith(t, "alloc 8\nalloc 1\nhalt", cfg)
	runFault(t, v, ErrHeapOverflow)
	if v.HeapTop() != 8 {
		t.Errorf("HeapTop = %d, want 8", v.HeapTop())
	}
}

func TestStackAddressing(t *testing.T) {
	v := load(t, `
    ldi  r0, one
    push r0
    ldi  r1, max
    st   stack:0, r1
    ld   r2, stack:0
    ld   r3, stack:1
    halt
`)
	runFault(t, v, ErrAddressOutOfBounds)
	wantReg(t, v, 2, sil.Max)
}

func TestReservedSpace(t *testing.T) {
	v := load(t, "ld r0, 0xC0000000\nhalt")
	f := runFault(t, v, ErrInvalidSegment)
	if f.Segment != SegReserved {
		t.Errorf("Segment = %s", f.Segment)
	}
}

func TestIndexedAccess(t *testing.T) {
	v := load(t, `
    alloc 4
    ldi   r1, #0x02
    ldi   r0, max
    stx   heap:0, r1, r0
    ldx   r2, heap:0, r1
    halt
`)
	runToEnd(t, v)
	wantReg(t, v, 2, sil.Max)
	if diff := cmp.Diff([]byte{0, 0, 0x7F, 0}, v.Heap()); diff != "" {
		t.Errorf("heap (-want +got):\n%s", diff)
	}
}

func TestIndexDoesNotCrossSpaces(t *testing.T) {
	if got := index(bytecode.MakeAddr(bytecode.SpaceStack, bytecode.OffsetMask), 0xFF); got != bytecode.MakeAddr(bytecode.SpaceStack, bytecode.OffsetMask) {
		t.Errorf("index = %s", bytecode.FormatAddr(got))
	}
}

// ============ State Vector ============

func TestStateLayerOps(t *testing.T) {
	v := load(t, `
    ldi r0, 1:2
    sst 3, r0
    sld r1, 3
    svac
    sld r2, 3
    halt
`)
	runToEnd(t, v)
	wantReg(t, v, 1, sil.New(1, 2))
	wantReg(t, v, 2, sil.Null)
	if v.SilState() != sil.Vacuum() {
		t.Errorf("SilState = %v", v.SilState())
	}
}

func TestStateTensor(t *testing.T) {
	v := load(t, `
    ldi r0, one
    sst 0, r0
    ldi r0, 1:2
    sten
    sld r1, 0
    sld r2, 1
    halt
`)
	runToEnd(t, v)
	wantReg(t, v, 1, sil.New(1, 2))
	wantReg(t, v, 2, sil.Null)
}

func TestStateCollapse(t *testing.T) {
	v := load(t, `
    scol r0, xor
    scol r1, max
    ldi  r2, 1:1
    sst  5, r2
    scol r3, max
    halt
`)
	runToEnd(t, v)
	wantReg(t, v, 0, sil.One)
	wantReg(t, v, 1, sil.Null)
	wantReg(t, v, 3, sil.New(1, 1))
}
