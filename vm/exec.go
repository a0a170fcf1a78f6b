package vm

import (
	bc "github.com/chazu/sil/pkg/bytecode"
	"github.com/chazu/sil/pkg/sil"
)

// exec applies one decoded instruction. It either commits every effect and
// advances pc, or returns a fault and leaves the machine unchanged.
func (v *Vsp) exec(in bc.Instruction) *Fault {
	next := in.Next()
	r := &v.regs

	switch in.Op {
	// Control flow
	case bc.OpNop:
	case bc.OpHalt:
		v.status = Halted
	case bc.OpJmp:
		if f := v.mem.target(in.Addr); f != nil {
			return f
		}
		next = in.Addr
	case bc.OpJz, bc.OpJnz, bc.OpJeq, bc.OpJne:
		if v.taken(in) {
			if f := v.mem.target(in.Addr); f != nil {
				return f
			}
			next = in.Addr
		}
	case bc.OpCall:
		if f := v.mem.target(in.Addr); f != nil {
			return f
		}
		if f := v.mem.pushAddr(next); f != nil {
			return f
		}
		next = in.Addr
	case bc.OpRet:
		addr, f := v.mem.popAddr()
		if f != nil {
			return f
		}
		if f := v.mem.target(addr); f != nil {
			v.mem.sp += 4
			return f
		}
		next = addr

	// Registers
	case bc.OpMov:
		r[in.X] = r[in.Y]
	case bc.OpLdi:
		r[in.X] = in.Sil()
	case bc.OpClr:
		r[in.X] = sil.Null

	// Arithmetic
	case bc.OpMul:
		r[in.X] = r[in.Y].Mul(r[in.Z])
	case bc.OpDiv:
		r[in.X] = r[in.Y].Div(r[in.Z])
	case bc.OpMix:
		r[in.X] = r[in.Y].Mix(r[in.Z])
	case bc.OpXor:
		r[in.X] = r[in.Y].Xor(r[in.Z])
	case bc.OpPow:
		r[in.X] = r[in.Y].Pow(in.Imm)
	case bc.OpRoot:
		r[in.X] = r[in.Y].Root(in.Imm)
	case bc.OpConj:
		r[in.X] = r[in.Y].Conj()
	case bc.OpInv:
		r[in.X] = r[in.Y].Inv()

	// Stack
	case bc.OpPush:
		if f := v.mem.push(r[in.X].ToU8()); f != nil {
			return f
		}
	case bc.OpPop:
		b, f := v.mem.pop(1)
		if f != nil {
			return f
		}
		r[in.X] = sil.FromU8(b[0])
	case bc.OpDup:
		if v.mem.sp == 0 {
			return &Fault{Kind: StackUnderflow, Addr: bc.MakeAddr(bc.SpaceStack, 0), Segment: SegStack}
		}
		if f := v.mem.push(v.mem.stack[v.mem.sp-1]); f != nil {
			return f
		}
	case bc.OpDrop:
		if _, f := v.mem.pop(1); f != nil {
			return f
		}

	// Memory
	case bc.OpLd:
		b, f := v.mem.load(in.Addr)
		if f != nil {
			return f
		}
		r[in.X] = sil.FromU8(b)
	case bc.OpSt:
		if f := v.mem.store(in.Addr, r[in.X].ToU8()); f != nil {
			return f
		}
	case bc.OpLdx:
		b, f := v.mem.load(index(in.Addr, r[in.Y].ToU8()))
		if f != nil {
			return f
		}
		r[in.X] = sil.FromU8(b)
	case bc.OpStx:
		if f := v.mem.store(index(in.Addr, r[in.Y].ToU8()), r[in.X].ToU8()); f != nil {
			return f
		}
	case bc.OpAlloc:
		if f := v.mem.alloc(in.Imm); f != nil {
			return f
		}

	// State vector
	case bc.OpSld:
		r[in.X] = v.silState.Get(sil.Layer(in.Imm))
	case bc.OpSst:
		v.silState = v.silState.WithLayer(sil.Layer(in.Imm), r[in.X])
	case bc.OpSten:
		v.silState = v.silState.Tensor(sil.State(*r))
	case bc.OpScol:
		r[in.X] = v.silState.Collapse(sil.Strategy(in.Imm))
	case bc.OpSvac:
		v.silState = sil.Vacuum()

	// Entanglement
	case bc.OpEsend:
		if f := v.esend(); f != nil {
			return f
		}
	case bc.OpErecv:
		got, f := v.erecv()
		if f != nil {
			return f
		}
		r[in.X] = got

	// I/O
	case bc.OpIn, bc.OpOut, bc.OpSense, bc.OpAct, bc.OpSys:
		if f := v.dispatch(in); f != nil {
			return f
		}

	default:
		// Decode only yields assigned opcodes.
		return &Fault{Kind: InvalidOpcode}
	}

	v.pc = next
	return nil
}

func (v *Vsp) taken(in bc.Instruction) bool {
	r := &v.regs
	switch in.Op {
	case bc.OpJz:
		return r[in.X].IsNull()
	case bc.OpJnz:
		return !r[in.X].IsNull()
	case bc.OpJeq:
		return r[in.X].ToU8() == r[in.Y].ToU8()
	default:
		return r[in.X].ToU8() != r[in.Y].ToU8()
	}
}

// dispatch runs the host side of an I/O opcode. Ids at or above the
// configured range and unregistered ids fault; host errors become
// HostFailure.
func (v *Vsp) dispatch(in bc.Instruction) *Fault {
	id := uint8(in.Imm)
	invalid := func(kind FaultKind) *Fault { return &Fault{Kind: kind, ID: id} }
	failed := func(err error) *Fault { return &Fault{Kind: HostFailure, ID: id, Err: err} }

	switch in.Op {
	case bc.OpIn, bc.OpOut:
		if int(id) >= v.cfg.Ports {
			return invalid(InvalidPort)
		}
		p := v.devices.port(id)
		if p == nil {
			return invalid(InvalidPort)
		}
		if in.Op == bc.OpOut {
			if err := p.Write(v.regs[in.X]); err != nil {
				return failed(err)
			}
			return nil
		}
		val, err := p.Read()
		if err != nil {
			return failed(err)
		}
		v.regs[in.X] = val

	case bc.OpSense:
		if int(id) >= v.cfg.Sensors {
			return invalid(InvalidSensor)
		}
		s := v.devices.sensor(id)
		if s == nil {
			return invalid(InvalidSensor)
		}
		val, err := s.Sense()
		if err != nil {
			return failed(err)
		}
		v.regs[in.X] = val

	case bc.OpAct:
		if int(id) >= v.cfg.Actuators {
			return invalid(InvalidActuator)
		}
		a := v.devices.actuator(id)
		if a == nil {
			return invalid(InvalidActuator)
		}
		if err := a.Act(v.regs[in.X]); err != nil {
			return failed(err)
		}

	case bc.OpSys:
		if int(id) >= v.cfg.Syscalls {
			return invalid(InvalidSyscall)
		}
		fn := v.devices.syscall(id)
		if fn == nil {
			return invalid(InvalidSyscall)
		}
		regs := v.regs
		ctx := &SyscallContext{regs: &regs, PC: in.At, Cycle: v.cycles, ID: id}
		if err := fn(ctx); err != nil {
			return failed(err)
		}
		v.regs = regs
	}
	return nil
}
