// This file is part of SRTMT - https://github.com/ParkerTenBroeck/SRTMT
//
// Copyright 2023 The SRTMT Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package vm

import (
	"math/bits"

	"github.com/pkg/errors"
)

// CallResult tells the interpreter how to proceed after a syscall or
// breakpoint has been serviced.
type CallResult uint8

// Call results.
const (
	CallContinue CallResult = iota // resume with the next instruction
	CallWait                       // end the slice, resume after the call
	CallRetry                      // end the slice, execute the call again on resumption
	CallExit                       // end the task
)

// Host services the calls a task makes while it runs. The task and its
// memory view are only valid for the duration of the call.
type Host interface {
	Syscall(id uint32, t *Task, m *Memory) (CallResult, error)
	Breakpoint(id uint32, t *Task, m *Memory) (CallResult, error)
}

// Status is the way a slice ended.
type Status uint8

// Slice end statuses.
const (
	StatusContinue Status = iota // the quantum was exhausted
	StatusWait                   // the task blocked in a call
	StatusExit                   // the task terminated with code 0
)

func (s Status) String() string {
	switch s {
	case StatusContinue:
		return "continue"
	case StatusWait:
		return "wait"
	case StatusExit:
		return "exit"
	}
	return "unknown"
}

// Outcome is the result of a slice. Ran is the number of instructions
// completed; the call that ended a Wait or Exit slice is not counted.
type Outcome struct {
	Status Status
	Ran    uint32
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Run executes at most n instructions of t against m, calling h for
// syscalls, breakpoints and traps.
//
// The program counter is incremented before an instruction executes and a
// branch offset is added on top of it; there is no delay slot. A branch that
// is not taken skips the following word.
//
// If the task faults, the returned error is a *Fault carrying the number of
// instructions completed, and the PC points to the faulting instruction.
func (t *Task) Run(h Host, m *Memory, n uint32) (Outcome, error) {
	var (
		r        = &t.Registers
		fetch    *Page
		fetchVPN = ^uint32(0)
		ran      uint32
	)
	for ; ran < n; ran++ {
		pc := r.PC
		if vpn := pc >> 16; vpn != fetchVPN {
			if fetch = m.pages[vpn]; fetch == nil {
				return t.fault(&Fault{Kind: MemoryDoesNotExist, Addr: pc}, pc, ran)
			}
			fetchVPN = vpn
		}
		if pc&3 != 0 {
			return t.fault(&Fault{Kind: MemoryAlignment, Width: 4}, pc, ran)
		}
		ins := Instruction(fetch.Load32(uint16(pc)))
		r.PC = pc + 4
		rs, rt := ins.Rs(), ins.Rt()

		switch ins.Opcode() {
		case OpSpecial:
			rd := ins.Rd()
			switch ins.Funct() {
			case FnSll:
				r.R[rd] = r.R[rt] << ins.Shamt()
			case FnSrl:
				if rs == 1 {
					r.R[rd] = bits.RotateLeft32(r.R[rt], -int(ins.Shamt()))
				} else {
					r.R[rd] = r.R[rt] >> ins.Shamt()
				}
			case FnSra:
				r.R[rd] = uint32(int32(r.R[rt]) >> ins.Shamt())
			case FnSllv:
				r.R[rd] = r.R[rt] << (r.R[rs] & 31)
			case FnSrlv:
				if ins.Shamt() == 1 {
					r.R[rd] = bits.RotateLeft32(r.R[rt], -int(r.R[rs]&31))
				} else {
					r.R[rd] = r.R[rt] >> (r.R[rs] & 31)
				}
			case FnSrav:
				r.R[rd] = uint32(int32(r.R[rt]) >> (r.R[rs] & 31))
			case FnJr:
				r.PC = r.R[rs]
			case FnJalr:
				target := r.R[rs]
				r.R[rd] = r.PC
				r.PC = target
			case FnMovz:
				if r.R[rt] == 0 {
					r.R[rd] = r.R[rs]
				}
			case FnMovn:
				if r.R[rt] != 0 {
					r.R[rd] = r.R[rs]
				}
			case FnSyscall:
				res, err := h.Syscall(ins.CallCode(), t, m)
				if o, stop, err := t.callDone(res, err, pc, ins, ran); stop {
					return o, err
				}
			case FnBreak:
				res, err := h.Breakpoint(ins.CallCode(), t, m)
				if o, stop, err := t.callDone(res, err, pc, ins, ran); stop {
					return o, err
				}
			case FnSync:
			case FnMfhi:
				r.R[rd] = r.HI
			case FnMthi:
				r.HI = r.R[rs]
			case FnMflo:
				r.R[rd] = r.LO
			case FnMtlo:
				r.LO = r.R[rs]
			case FnMult:
				p := uint64(int64(int32(r.R[rs])) * int64(int32(r.R[rt])))
				r.HI, r.LO = uint32(p>>32), uint32(p)
			case FnMultu:
				p := uint64(r.R[rs]) * uint64(r.R[rt])
				r.HI, r.LO = uint32(p>>32), uint32(p)
			case FnDiv:
				d := int32(r.R[rt])
				if d == 0 {
					return t.fault(&Fault{Kind: DivByZero}, pc, ran)
				}
				// MinInt32 / -1 wraps to MinInt32 with a zero remainder.
				s := int32(r.R[rs])
				r.LO, r.HI = uint32(s/d), uint32(s%d)
			case FnDivu:
				d := r.R[rt]
				if d == 0 {
					return t.fault(&Fault{Kind: DivByZero}, pc, ran)
				}
				r.LO, r.HI = r.R[rs]/d, r.R[rs]%d
			case FnAdd:
				a, b := int32(r.R[rs]), int32(r.R[rt])
				sum := a + b
				if (a^sum)&(b^sum) < 0 {
					return t.fault(&Fault{Kind: Overflow}, pc, ran)
				}
				r.R[rd] = uint32(sum)
			case FnAddu:
				r.R[rd] = r.R[rs] + r.R[rt]
			case FnSub:
				a, b := int32(r.R[rs]), int32(r.R[rt])
				diff := a - b
				if (a^b)&(a^diff) < 0 {
					return t.fault(&Fault{Kind: Overflow}, pc, ran)
				}
				r.R[rd] = uint32(diff)
			case FnSubu:
				r.R[rd] = r.R[rs] - r.R[rt]
			case FnAnd:
				r.R[rd] = r.R[rs] & r.R[rt]
			case FnOr:
				r.R[rd] = r.R[rs] | r.R[rt]
			case FnXor:
				r.R[rd] = r.R[rs] ^ r.R[rt]
			case FnNor:
				r.R[rd] = ^(r.R[rs] | r.R[rt])
			case FnSlt:
				r.R[rd] = b2u(int32(r.R[rs]) < int32(r.R[rt]))
			case FnSltu:
				r.R[rd] = b2u(r.R[rs] < r.R[rt])
			case FnTge, FnTgeu, FnTlt, FnTltu, FnTeq, FnTne:
				if !trapTaken(ins.Funct(), r.R[rs], r.R[rt]) {
					break
				}
				res, err := h.Syscall(ins.TrapCode(), t, m)
				if o, stop, err := t.callDone(res, err, pc, ins, ran); stop {
					return o, err
				}
			default:
				return t.fault(&Fault{Kind: InvalidOperation, Op: uint32(ins)}, pc, ran)
			}

		case OpRegImm:
			var taken bool
			switch rt {
			case RtBltz:
				taken = int32(r.R[rs]) < 0
			case RtBgez:
				taken = int32(r.R[rs]) >= 0
			case RtBltzal:
				taken = int32(r.R[rs]) < 0
				r.R[RegRA] = r.PC
			case RtBgezal:
				taken = int32(r.R[rs]) >= 0
				r.R[RegRA] = r.PC
			default:
				return t.fault(&Fault{Kind: InvalidOperation, Op: uint32(ins)}, pc, ran)
			}
			r.branch(taken, ins)
		case OpJ:
			r.PC = r.PC&0xF0000000 | ins.Target()<<2
		case OpJal:
			r.R[RegRA] = r.PC
			r.PC = r.PC&0xF0000000 | ins.Target()<<2
		case OpBeq:
			r.branch(r.R[rs] == r.R[rt], ins)
		case OpBne:
			r.branch(r.R[rs] != r.R[rt], ins)
		case OpBlez:
			r.branch(int32(r.R[rs]) <= 0, ins)
		case OpBgtz:
			r.branch(int32(r.R[rs]) > 0, ins)

		case OpAddi:
			a, b := int32(r.R[rs]), int32(ins.SImm())
			sum := a + b
			if (a^sum)&(b^sum) < 0 {
				return t.fault(&Fault{Kind: Overflow}, pc, ran)
			}
			r.R[rt] = uint32(sum)
		case OpAddiu:
			r.R[rt] = r.R[rs] + ins.SImm()
		case OpSlti:
			r.R[rt] = b2u(int32(r.R[rs]) < int32(ins.SImm()))
		case OpSltiu:
			r.R[rt] = b2u(r.R[rs] < ins.SImm())
		case OpAndi:
			r.R[rt] = r.R[rs] & ins.Imm()
		case OpOri:
			r.R[rt] = r.R[rs] | ins.Imm()
		case OpXori:
			r.R[rt] = r.R[rs] ^ ins.Imm()
		case OpLui:
			r.R[rt] = ins.Imm() << 16

		case OpSpecial2:
			rd := ins.Rd()
			switch ins.Funct() {
			case Fn2Mul:
				r.R[rd] = uint32(int32(r.R[rs]) * int32(r.R[rt]))
			case Fn2Clz:
				r.R[rd] = uint32(bits.LeadingZeros32(r.R[rs]))
			case Fn2Clo:
				r.R[rd] = uint32(bits.LeadingZeros32(^r.R[rs]))
			default:
				return t.fault(&Fault{Kind: InvalidOperation, Op: uint32(ins)}, pc, ran)
			}

		case OpSpecial3:
			rd := ins.Rd()
			switch ins.Funct() {
			case Fn3Ext:
				pos, size := ins.Shamt(), rd+1
				r.R[rt] = r.R[rs] >> pos & mask(size)
			case Fn3Ins:
				pos := ins.Shamt()
				if rd < pos {
					return t.fault(&Fault{Kind: InvalidOperation, Op: uint32(ins)}, pc, ran)
				}
				mk := mask(rd-pos+1) << pos
				r.R[rt] = r.R[rt]&^mk | r.R[rs]<<pos&mk
			case Fn3Bshfl:
				switch ins.Shamt() {
				case BshflWsbh:
					v := r.R[rt]
					r.R[rd] = v&0x00FF00FF<<8 | v>>8&0x00FF00FF
				case BshflSeb:
					r.R[rd] = uint32(int32(int8(r.R[rt])))
				case BshflSeh:
					r.R[rd] = uint32(int32(int16(r.R[rt])))
				default:
					return t.fault(&Fault{Kind: InvalidOperation, Op: uint32(ins)}, pc, ran)
				}
			default:
				return t.fault(&Fault{Kind: InvalidOperation, Op: uint32(ins)}, pc, ran)
			}

		case OpLb, OpLbu:
			addr := r.R[rs] + ins.SImm()
			p := m.pages[addr>>16]
			if p == nil {
				return t.fault(&Fault{Kind: MemoryDoesNotExist, Addr: addr}, pc, ran)
			}
			v := p.Load8(uint16(addr))
			if ins.Opcode() == OpLb {
				r.R[rt] = uint32(int32(int8(v)))
			} else {
				r.R[rt] = uint32(v)
			}
		case OpLh, OpLhu:
			addr := r.R[rs] + ins.SImm()
			if addr&1 != 0 {
				return t.fault(&Fault{Kind: MemoryAlignment, Width: 2}, pc, ran)
			}
			p := m.pages[addr>>16]
			if p == nil {
				return t.fault(&Fault{Kind: MemoryDoesNotExist, Addr: addr}, pc, ran)
			}
			v := p.Load16(uint16(addr))
			if ins.Opcode() == OpLh {
				r.R[rt] = uint32(int32(int16(v)))
			} else {
				r.R[rt] = uint32(v)
			}
		case OpLw, OpLl:
			addr := r.R[rs] + ins.SImm()
			if addr&3 != 0 {
				return t.fault(&Fault{Kind: MemoryAlignment, Width: 4}, pc, ran)
			}
			p := m.pages[addr>>16]
			if p == nil {
				return t.fault(&Fault{Kind: MemoryDoesNotExist, Addr: addr}, pc, ran)
			}
			r.R[rt] = p.Load32(uint16(addr))
			if ins.Opcode() == OpLl {
				m.ll = true
			}
		case OpLwl, OpLwr:
			addr := r.R[rs] + ins.SImm()
			p := m.pages[addr>>16]
			if p == nil {
				return t.fault(&Fault{Kind: MemoryDoesNotExist, Addr: addr}, pc, ran)
			}
			w, s := p.Load32(uint16(addr)), addr&3*8
			if ins.Opcode() == OpLwl {
				s = 24 - s
				r.R[rt] = w<<s | r.R[rt]&mask(s)
			} else {
				r.R[rt] = w>>s | r.R[rt]&^(0xFFFFFFFF>>s)
			}

		case OpSb:
			addr := r.R[rs] + ins.SImm()
			p := m.pages[addr>>16]
			if p == nil {
				return t.fault(&Fault{Kind: MemoryDoesNotExist, Addr: addr}, pc, ran)
			}
			p.Store8(uint16(addr), uint8(r.R[rt]))
			m.ll = false
		case OpSh:
			addr := r.R[rs] + ins.SImm()
			if addr&1 != 0 {
				return t.fault(&Fault{Kind: MemoryAlignment, Width: 2}, pc, ran)
			}
			p := m.pages[addr>>16]
			if p == nil {
				return t.fault(&Fault{Kind: MemoryDoesNotExist, Addr: addr}, pc, ran)
			}
			p.Store16(uint16(addr), uint16(r.R[rt]))
			m.ll = false
		case OpSw:
			addr := r.R[rs] + ins.SImm()
			if addr&3 != 0 {
				return t.fault(&Fault{Kind: MemoryAlignment, Width: 4}, pc, ran)
			}
			p := m.pages[addr>>16]
			if p == nil {
				return t.fault(&Fault{Kind: MemoryDoesNotExist, Addr: addr}, pc, ran)
			}
			p.Store32(uint16(addr), r.R[rt])
			m.ll = false
		case OpSc:
			addr := r.R[rs] + ins.SImm()
			if addr&3 != 0 {
				return t.fault(&Fault{Kind: MemoryAlignment, Width: 4}, pc, ran)
			}
			p := m.pages[addr>>16]
			if p == nil {
				return t.fault(&Fault{Kind: MemoryDoesNotExist, Addr: addr}, pc, ran)
			}
			if m.ll {
				p.Store32(uint16(addr), r.R[rt])
				r.R[rt] = 1
			} else {
				r.R[rt] = 0
			}
			m.ll = false
		case OpSwl, OpSwr:
			addr := r.R[rs] + ins.SImm()
			p := m.pages[addr>>16]
			if p == nil {
				return t.fault(&Fault{Kind: MemoryDoesNotExist, Addr: addr}, pc, ran)
			}
			s := addr & 3 * 8
			if ins.Opcode() == OpSwl {
				s = 24 - s
				p.update(uint16(addr)>>2, 0xFFFFFFFF>>s, r.R[rt]>>s)
			} else {
				p.update(uint16(addr)>>2, 0xFFFFFFFF<<s, r.R[rt]<<s)
			}
			m.ll = false

		default:
			return t.fault(&Fault{Kind: InvalidOperation, Op: uint32(ins)}, pc, ran)
		}
		r.R[0] = 0
	}
	return Outcome{Status: StatusContinue, Ran: ran}, nil
}

// branch applies a conditional branch. PC already points past the branch.
func (r *Registers) branch(taken bool, ins Instruction) {
	if taken {
		r.PC += ins.SImm() << 2
	} else {
		r.PC += 4
	}
}

// mask returns a mask of the n low bits, n <= 32.
func mask(n uint32) uint32 {
	return uint32(uint64(1)<<n - 1)
}

func trapTaken(funct, a, b uint32) bool {
	switch funct {
	case FnTge:
		return int32(a) >= int32(b)
	case FnTgeu:
		return a >= b
	case FnTlt:
		return int32(a) < int32(b)
	case FnTltu:
		return a < b
	case FnTeq:
		return a == b
	case FnTne:
		return a != b
	}
	return false
}

func (t *Task) fault(f *Fault, pc, ran uint32) (Outcome, error) {
	f.PC, f.Ran = pc, ran
	t.PC = pc
	return Outcome{Ran: ran}, f
}

// callDone maps the result of a call made by the instruction at pc to the
// slice outcome. stop is false when execution continues.
func (t *Task) callDone(res CallResult, err error, pc uint32, ins Instruction, ran uint32) (o Outcome, stop bool, _ error) {
	if err != nil {
		var f *Fault
		if !errors.As(err, &f) {
			f = &Fault{Kind: InvalidOperation, Op: uint32(ins), cause: err}
		}
		o, err = t.fault(f, pc, ran)
		return o, true, err
	}
	switch res {
	case CallWait:
		return Outcome{Status: StatusWait, Ran: ran}, true, nil
	case CallRetry:
		t.PC = pc
		return Outcome{Status: StatusWait, Ran: ran}, true, nil
	case CallExit:
		return Outcome{Status: StatusExit, Ran: ran}, true, nil
	}
	return Outcome{}, false, nil
}
