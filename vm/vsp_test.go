package vm

import (
	"errors"
	"testing"

	"github.com/chazu/sil/pkg/bytecode"
	"github.com/chazu/sil/pkg/sil"
	"github.com/google/go-cmp/cmp"
)

func assemble(t *testing.T, src string) *bytecode.SilcFile {
	t.Helper()
	f, err := bytecode.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	return f
}

func loadWith(t *testing.T, src string, cfg Config) *Vsp {
	t.Helper()
	v := New(cfg)
	if err := v.Load(assemble(t, src), cfg); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return v
}

func load(t *testing.T, src string) *Vsp {
	t.Helper()
	return loadWith(t, src, DefaultConfig())
}

func runToEnd(t *testing.T, v *Vsp) RunResult {
	t.Helper()
	res, err := v.Run()
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	return res
}

// ============ Lifecycle Tests ============

func TestEndToEndMultiply(t *testing.T) {
	v := load(t, `
    ldi r0, 1:2
    ldi r1, 2:3
    mul r2, r0, r1
    halt
`)
	if v.State() != Loaded {
		t.Fatalf("State = %s, want loaded", v.State())
	}

	res, err := v.RunCycles(4)
	if err != nil {
		t.Fatalf("RunCycles error: %v", err)
	}
	if res.State != Halted || v.State() != Halted {
		t.Errorf("State = %s, want halted", v.State())
	}
	if v.Cycles() != 4 || res.Steps != 4 {
		t.Errorf("Cycles = %d, Steps = %d, want 4", v.Cycles(), res.Steps)
	}
	if got := v.Register(2); got != (sil.ByteSil{Rho: 3, Theta: 5}) {
		t.Errorf("R2 = %v, want 3:5", got)
	}
}

func TestInvalidOpcodeFault(t *testing.T) {
	v := New(DefaultConfig())
	f := &bytecode.SilcFile{Mode: bytecode.Mode8, Code: []byte{0xFF}}
	if err := v.Load(f, DefaultConfig()); err != nil {
		t.Fatalf("Load error: %v", err)
	}

	_, err := v.Step()
	if !errors.Is(err, ErrInvalidOpcode) {
		t.Fatalf("Step error = %v, want invalid opcode", err)
	}
	fault, _ := AsFault(err)
	if fault.Opcode != 0xFF || fault.PC != 0 {
		t.Errorf("fault = %+v", fault)
	}
	if v.State() != Faulted {
		t.Errorf("State = %s, want faulted", v.State())
	}
	if v.Cycles() != 0 {
		t.Errorf("Cycles = %d, want 0", v.Cycles())
	}
}

func TestFaultIsSticky(t *testing.T) {
	v := load(t, "pop r0\nhalt")

	_, first := v.Step()
	if !errors.Is(first, ErrStackUnderflow) {
		t.Fatalf("Step error = %v", first)
	}
	for i := 0; i < 3; i++ {
		_, again := v.Step()
		if again != first {
			t.Fatalf("Step %d returned %v, want the same fault", i, again)
		}
	}
	if v.PC() != 0 {
		t.Errorf("PC = %d, want 0 (faulting instruction)", v.PC())
	}

	v.Reset()
	if v.State() != Loaded || v.Fault() != nil {
		t.Errorf("after Reset: state %s, fault %v", v.State(), v.Fault())
	}
}

func TestDeterminism(t *testing.T) {
	src := `
        ldi r1, 1:1
        ldi r2, -1:3
        alloc 8
loop:   mul r1, r1, r2
        mix r3, r1, r2
        push r3
        st heap:0, r3
        sst 4, r3
        sten
        jnz r1, loop
        halt
`
	f := assemble(t, src)
	a, b := New(DefaultConfig()), New(DefaultConfig())
	for _, v := range []*Vsp{a, b} {
		if err := v.Load(f, DefaultConfig()); err != nil {
			t.Fatalf("Load error: %v", err)
		}
		_, _ = v.RunCycles(40)
	}
	if diff := cmp.Diff(a.Snapshot(), b.Snapshot()); diff != "" {
		t.Errorf("snapshots differ (-a +b):\n%s", diff)
	}
}

func TestCycleLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCycles = 10
	v := loadWith(t, "loop: jmp loop", cfg)

	res, err := v.Run()
	if !errors.Is(err, ErrCycleLimitExceeded) {
		t.Fatalf("Run error = %v, want cycle limit", err)
	}
	if res.Steps != 10 || v.Cycles() != 10 {
		t.Errorf("Steps = %d, Cycles = %d, want 10", res.Steps, v.Cycles())
	}
	if fault, _ := AsFault(err); fault.Kind.Class() != ClassLimit {
		t.Errorf("class = %s, want limit", fault.Kind.Class())
	}
	if _, again := v.Step(); again != err {
		t.Error("cycle limit is not sticky")
	}
}

func TestRunCyclesStopsEarly(t *testing.T) {
	v := load(t, "loop: jmp loop")
	res, err := v.RunCycles(7)
	if err != nil {
		t.Fatalf("RunCycles error: %v", err)
	}
	if res.Steps != 7 || res.State != Running {
		t.Errorf("result = %+v", res)
	}
	res, _ = v.RunCycles(3)
	if v.Cycles() != 10 || res.Steps != 3 {
		t.Errorf("Cycles = %d after second call", v.Cycles())
	}
}

func TestStepLifecycleErrors(t *testing.T) {
	v := New(DefaultConfig())
	if _, err := v.Step(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Step on idle VM = %v", err)
	}

	v = load(t, "halt")
	runToEnd(t, v)
	if _, err := v.Step(); !errors.Is(err, ErrHalted) {
		t.Errorf("Step on halted VM = %v", err)
	}
	res, err := v.Run()
	if err != nil || res.Steps != 0 || res.State != Halted {
		t.Errorf("Run on halted VM = %+v, %v", res, err)
	}
}

func TestFallingOffCode(t *testing.T) {
	v := load(t, "nop")
	_, err := v.Run()
	if !errors.Is(err, ErrUnexpectedEndOfCode) {
		t.Fatalf("Run error = %v", err)
	}
	if v.Cycles() != 1 || v.PC() != 1 {
		t.Errorf("Cycles = %d, PC = %d", v.Cycles(), v.PC())
	}
}

func TestResetKeepsProgram(t *testing.T) {
	v := load(t, "ldi r0, max\npush r0\nsst 1, r0\nhalt")
	runToEnd(t, v)

	v.Reset()
	if v.Register(0) != sil.Null || v.StackDepth() != 0 || v.Cycles() != 0 || v.PC() != 0 {
		t.Errorf("Reset left state behind: %+v", v.Snapshot())
	}
	if v.SilState() != sil.Vacuum() {
		t.Errorf("SilState = %v", v.SilState())
	}
	runToEnd(t, v)
	if v.Register(0) != sil.Max {
		t.Error("program did not rerun after Reset")
	}
}

// ============ Load Tests ============

func TestLoadIncompatibleMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = bytecode.Mode16
	v := loadWith(t, ".mode SIL-16\nldi r0, one\nhalt", cfg)
	before := v.Snapshot()

	err := v.Load(assemble(t, "svac\nhalt"), cfg)
	if !errors.Is(err, ErrIncompatibleMode) {
		t.Fatalf("Load error = %v, want incompatible mode", err)
	}
	fault, _ := AsFault(err)
	if fault.Expected != bytecode.Mode16 || fault.Found != bytecode.Mode128 {
		t.Errorf("fault = %+v", fault)
	}
	if diff := cmp.Diff(before, v.Snapshot()); diff != "" {
		t.Errorf("failed Load changed the VM:\n%s", diff)
	}
	if v.State() != Loaded {
		t.Errorf("State = %s", v.State())
	}
}

func TestLoadErrors(t *testing.T) {
	good := assemble(t, "halt")

	tests := []struct {
		name  string
		file  *bytecode.SilcFile
		cfg   func(*Config)
		check func(error) bool
	}{
		{
			name:  "invalid vm mode",
			file:  good,
			cfg:   func(c *Config) { c.Mode = 3 },
			check: func(err error) bool { return errors.Is(err, ErrInvalidMode) },
		},
		{
			name:  "invalid file mode",
			file:  &bytecode.SilcFile{Mode: 0, Code: []byte{0x01}},
			check: func(err error) bool { return errors.Is(err, ErrInvalidMode) },
		},
		{
			name:  "empty code",
			file:  &bytecode.SilcFile{Mode: bytecode.Mode8},
			check: func(err error) bool { return bytecode.KindOf(err) == bytecode.KindInvalidBytecode },
		},
		{
			name: "symbol out of bounds",
			file: &bytecode.SilcFile{
				Mode:    bytecode.Mode8,
				Code:    []byte{0x01},
				Symbols: []bytecode.Symbol{{Name: "x", Addr: 9}},
			},
			check: func(err error) bool { return bytecode.KindOf(err) == bytecode.KindInvalidBytecode },
		},
		{
			name:  "gpu backend",
			file:  good,
			cfg:   func(c *Config) { c.Backend = BackendGPU },
			check: func(err error) bool { return bytecode.KindOf(err) == bytecode.KindBackendUnavailable },
		},
		{
			name:  "negative stack",
			file:  good,
			cfg:   func(c *Config) { c.StackSize = -1 },
			check: func(err error) bool { return err != nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			v := New(cfg)
			err := v.Load(tt.file, cfg)
			if err == nil || !tt.check(err) {
				t.Fatalf("Load error = %v", err)
			}
			if v.State() != Idle {
				t.Errorf("State = %s, want idle", v.State())
			}
		})
	}
}

func TestParseBackend(t *testing.T) {
	for b := BackendInterpreter; b <= BackendFPGA; b++ {
		got, err := ParseBackend(b.String())
		if err != nil || got != b {
			t.Errorf("ParseBackend(%q) = %v, %v", b, got, err)
		}
	}
	if _, err := ParseBackend("tpu"); err == nil {
		t.Error("ParseBackend accepted tpu")
	}
}

func TestFaultClasses(t *testing.T) {
	tests := []struct {
		kind FaultKind
		want FaultClass
	}{
		{InvalidOpcode, ClassDecode},
		{InvalidOperand, ClassDecode},
		{WriteToReadOnly, ClassMemory},
		{HeapOverflow, ClassMemory},
		{IncompatibleMode, ClassMode},
		{InvalidSyscall, ClassDispatch},
		{HostFailure, ClassDispatch},
		{EntanglementBroken, ClassEntanglement},
		{CycleLimitExceeded, ClassLimit},
	}
	for _, tt := range tests {
		if got := tt.kind.Class(); got != tt.want {
			t.Errorf("%s.Class() = %s, want %s", tt.kind, got, tt.want)
		}
	}
}
