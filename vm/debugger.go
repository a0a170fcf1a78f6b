package vm

import (
	"fmt"
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Debugger: address breakpoints checked before each instruction
// ---------------------------------------------------------------------------

// EventKind classifies a DebugEvent.
type EventKind uint8

const (
	BreakpointHit EventKind = iota + 1
)

func (k EventKind) String() string {
	if k == BreakpointHit {
		return "breakpoint"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// DebugEvent is returned by Step instead of executing an instruction.
type DebugEvent struct {
	Kind   EventKind
	PC     uint32
	Cycle  uint64
	Symbol string // symbol defined at PC, if any
}

func (e *DebugEvent) String() string {
	if e.Symbol != "" {
		return fmt.Sprintf("%s at 0x%04X (%s) cycle %d", e.Kind, e.PC, e.Symbol, e.Cycle)
	}
	return fmt.Sprintf("%s at 0x%04X cycle %d", e.Kind, e.PC, e.Cycle)
}

// breakpoints is the only VM state another goroutine may touch while the
// VM runs.
type breakpoints struct {
	mu  sync.Mutex
	set map[uint32]bool
}

func (b *breakpoints) has(pc uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.set[pc]
}

func (b *breakpoints) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set = make(map[uint32]bool)
}

// SetBreakpoint suspends execution before the instruction at addr.
// The address must lie in the loaded code segment.
func (v *Vsp) SetBreakpoint(addr uint32) error {
	if v.file == nil {
		return ErrNotLoaded
	}
	if addr >= uint32(len(v.file.Code)) {
		return fmt.Errorf("vm: breakpoint 0x%04X outside code of %d bytes", addr, len(v.file.Code))
	}
	v.bp.mu.Lock()
	defer v.bp.mu.Unlock()
	v.bp.set[addr] = true
	return nil
}

// SetBreakpointAt sets a breakpoint at a symbol of the loaded file.
func (v *Vsp) SetBreakpointAt(symbol string) error {
	if v.file == nil {
		return ErrNotLoaded
	}
	addr, ok := v.file.Lookup(symbol)
	if !ok {
		return fmt.Errorf("vm: unknown symbol %q", symbol)
	}
	return v.SetBreakpoint(addr)
}

// ClearBreakpoint removes a breakpoint. Clearing an unset address is a no-op.
func (v *Vsp) ClearBreakpoint(addr uint32) {
	v.bp.mu.Lock()
	defer v.bp.mu.Unlock()
	delete(v.bp.set, addr)
}

// ClearBreakpoints removes every breakpoint.
func (v *Vsp) ClearBreakpoints() {
	v.bp.reset()
}

// Breakpoints returns the active breakpoints in ascending order.
func (v *Vsp) Breakpoints() []uint32 {
	v.bp.mu.Lock()
	defer v.bp.mu.Unlock()
	out := make([]uint32, 0, len(v.bp.set))
	for addr := range v.bp.set {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// checkBreakpoint reports a hit at the current pc. After a hit, the next
// Step at the same pc executes the instruction.
func (v *Vsp) checkBreakpoint() *DebugEvent {
	if v.resume && v.resumePC == v.pc {
		v.resume = false
		return nil
	}
	v.resume = false
	if !v.bp.has(v.pc) {
		return nil
	}
	v.resume, v.resumePC = true, v.pc
	return &DebugEvent{
		Kind:   BreakpointHit,
		PC:     v.pc,
		Cycle:  v.cycles,
		Symbol: v.file.SymbolAt(v.pc),
	}
}
