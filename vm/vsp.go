package vm

import (
	"fmt"

	"github.com/chazu/sil/pkg/bytecode"
	"github.com/chazu/sil/pkg/sil"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("sil.vm")

// NumRegisters is the size of the register file.
const NumRegisters = 16

// RunState is the VM lifecycle state.
type RunState uint8

const (
	Idle RunState = iota
	Loaded
	Running
	Halted
	Faulted
)

func (s RunState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Running:
		return "running"
	case Halted:
		return "halted"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("RunState(%d)", uint8(s))
	}
}

// Vsp is the SIL virtual machine. A Vsp executes on the caller's goroutine;
// only the breakpoint set and the device registry may be touched
// concurrently.
type Vsp struct {
	cfg     Config
	file    *bytecode.SilcFile
	devices *Devices

	status RunState
	fault  *Fault

	regs     [NumRegisters]sil.ByteSil
	mem      memory
	pc       uint32
	cycles   uint64
	silState sil.State

	link   Entanglement
	synced sil.State
	seq    uint64

	bp       breakpoints
	resume   bool
	resumePC uint32

	// Trace logs every executed instruction at debug level.
	Trace bool
}

// New returns an idle VM. Nothing is allocated until Load.
func New(cfg Config) *Vsp {
	v := &Vsp{cfg: cfg, devices: NewDevices()}
	v.bp.reset()
	v.regs = nullRegisters()
	v.silState = sil.Vacuum()
	return v
}

func nullRegisters() [NumRegisters]sil.ByteSil {
	var r [NumRegisters]sil.ByteSil
	for i := range r {
		r[i] = sil.Null
	}
	return r
}

// Load validates cfg and file, then binds the file and resets all mutable
// state. On error the VM is left exactly as it was.
func (v *Vsp) Load(file *bytecode.SilcFile, cfg Config) error {
	if file == nil {
		return bytecode.InvalidBytecode("nil file")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cfg.Mode.Valid() {
		return &Fault{Kind: InvalidMode, Found: cfg.Mode}
	}
	if !file.Mode.Valid() {
		return &Fault{Kind: InvalidMode, Found: file.Mode}
	}
	if !cfg.Mode.Supports(file.Mode) {
		return &Fault{Kind: IncompatibleMode, Expected: cfg.Mode, Found: file.Mode}
	}
	if err := file.Validate(); err != nil {
		return err
	}

	v.cfg = cfg
	v.file = file
	v.mem = newMemory(file, cfg)
	v.bp.reset()
	v.reset()
	v.status = Loaded
	log.Debugf("loaded %d code bytes, %d data bytes, %s", len(file.Code), len(file.Data), file.Mode)
	return nil
}

// Reset clears registers, memory, pc, cycles, the state vector and any
// fault. Configuration, program, breakpoints, devices and the entanglement
// link are kept.
func (v *Vsp) Reset() {
	if v.file == nil {
		return
	}
	v.reset()
	v.status = Loaded
}

func (v *Vsp) reset() {
	v.regs = nullRegisters()
	v.mem.clear()
	v.pc = 0
	v.cycles = 0
	v.fault = nil
	v.silState = sil.Vacuum()
	v.synced = v.silState
	v.seq = 0
	v.resume = false
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func (v *Vsp) State() RunState { return v.status }

func (v *Vsp) PC() uint32 { return v.pc }

func (v *Vsp) Cycles() uint64 { return v.cycles }

func (v *Vsp) Config() Config { return v.cfg }

// File returns the loaded program, or nil.
func (v *Vsp) File() *bytecode.SilcFile { return v.file }

// Devices returns the host device registry. Registrations survive Load.
func (v *Vsp) Devices() *Devices { return v.devices }

func (v *Vsp) SilState() sil.State { return v.silState }

func (v *Vsp) Registers() [NumRegisters]sil.ByteSil { return v.regs }

// StackDepth returns the number of live stack bytes.
func (v *Vsp) StackDepth() int { return v.mem.sp }

// HeapTop returns the number of allocated heap bytes.
func (v *Vsp) HeapTop() int { return v.mem.heapTop }

// Register returns r[i]. It panics if i is not in [0, 16).
func (v *Vsp) Register(i int) sil.ByteSil {
	return v.regs[i]
}

// SetRegister writes r[i] from the host side, e.g. to pass arguments.
func (v *Vsp) SetRegister(i int, b sil.ByteSil) {
	v.regs[i] = b
}

// Fault returns the sticky fault, or nil.
func (v *Vsp) Fault() *Fault {
	return v.fault
}

// Stack returns a copy of the live stack bytes, bottom first.
func (v *Vsp) Stack() []byte {
	return append([]byte(nil), v.mem.stack[:v.mem.sp]...)
}

// Heap returns a copy of the allocated heap bytes.
func (v *Vsp) Heap() []byte {
	return append([]byte(nil), v.mem.heap[:v.mem.heapTop]...)
}

// Snapshot is a copy of the observable machine state.
type Snapshot struct {
	State     string
	PC        uint32
	Cycles    uint64
	Registers [NumRegisters]byte
	SilState  [sil.NumLayers]byte
	Stack     []byte
	Heap      []byte
	Fault     string
}

// Snapshot captures the observable machine state.
func (v *Vsp) Snapshot() Snapshot {
	s := Snapshot{
		State:    v.status.String(),
		PC:       v.pc,
		Cycles:   v.cycles,
		SilState: v.silState.Bytes(),
		Stack:    v.Stack(),
		Heap:     v.Heap(),
	}
	for i, r := range v.regs {
		s.Registers[i] = r.ToU8()
	}
	if v.fault != nil {
		s.Fault = v.fault.Error()
	}
	return s
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// RunResult summarizes a Run or RunCycles call.
type RunResult struct {
	Steps uint64      // instructions executed by this call
	State RunState    // state on return
	Event *DebugEvent // set when a breakpoint stopped the run
}

// Step executes one instruction, or reports a breakpoint without executing.
// A fault is sticky: once Faulted, Step returns the same *Fault until Reset.
func (v *Vsp) Step() (*DebugEvent, error) {
	switch v.status {
	case Idle:
		return nil, ErrNotLoaded
	case Halted:
		return nil, ErrHalted
	case Faulted:
		return nil, v.fault
	}

	if v.cfg.MaxCycles > 0 && v.cycles >= v.cfg.MaxCycles {
		return nil, v.raise(&Fault{Kind: CycleLimitExceeded})
	}
	if ev := v.checkBreakpoint(); ev != nil {
		log.Debugf("%s", ev)
		return ev, nil
	}

	in, err := bytecode.Decode(v.mem.code, v.pc)
	if err != nil {
		return nil, v.raise(decodeFault(err, v.pc, v.mem.code))
	}

	v.status = Running
	if v.Trace {
		log.Debugf("%04X  %-28s cycle=%d", in.At, traceText(in), v.cycles)
	}
	if f := v.exec(in); f != nil {
		return nil, v.raise(f)
	}
	v.cycles++
	return nil, nil
}

// raise records a fault against the current pc.
func (v *Vsp) raise(f *Fault) *Fault {
	f.PC = v.pc
	f.Cycle = v.cycles
	if int(v.pc) < len(v.mem.code) {
		f.Opcode = bytecode.Opcode(v.mem.code[v.pc])
	}
	v.fault = f
	v.status = Faulted
	log.Warningf("%s", f)
	return f
}

// Run steps until the VM halts, faults, reaches MaxCycles or hits a
// breakpoint.
func (v *Vsp) Run() (RunResult, error) {
	return v.run(0, false)
}

// RunCycles is Run bounded to at most n executed instructions.
func (v *Vsp) RunCycles(n uint64) (RunResult, error) {
	return v.run(n, true)
}

func (v *Vsp) run(n uint64, bounded bool) (RunResult, error) {
	var res RunResult
	for !bounded || res.Steps < n {
		before := v.cycles
		ev, err := v.Step()
		res.Steps += v.cycles - before
		if err != nil {
			res.State = v.status
			if err == ErrHalted {
				return res, nil
			}
			return res, err
		}
		if ev != nil {
			res.Event = ev
			break
		}
		if v.status == Halted {
			break
		}
	}
	res.State = v.status
	return res, nil
}

func traceText(in bytecode.Instruction) string {
	text := in.Info().Name
	if ops := bytecode.FormatOperands(in, nil); ops != "" {
		text += " " + ops
	}
	return text
}
