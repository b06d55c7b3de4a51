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


package asm

import (
	"github.com/ParkerTenBroeck/SRTMT/vm"
	"github.com/pkg/errors"
)

// pseudoSize is the number of bytes each pseudo-instruction expands to. li
// shrinks to a single instruction when its value is a known 16-bit constant.
var pseudoSize = map[string]uint32{
	"move": 4,
	"li":   8,
	"la":   8,
	"b":    4,
	"beqz": 4,
	"bnez": 4,
}

func (p *parser) wantOps(st *stmt, kinds ...operandKind) error {
	if len(st.ops) != len(kinds) {
		return errors.Errorf("expected %d operands, got %d", len(kinds), len(st.ops))
	}
	for i, k := range kinds {
		if st.ops[i].kind != k {
			return errors.Errorf("operand %d: expected %s", i+1, [...]string{"register", "expression", "memory operand"}[k])
		}
	}
	return nil
}

func (p *parser) value(o operand, lo, hi int64) (int64, error) {
	v, err := p.eval(o.e)
	if err != nil {
		return 0, err
	}
	if v < lo || v > hi {
		return 0, errors.Errorf("value %d out of range [%d, %d]", v, lo, hi)
	}
	return v, nil
}

// branchOffset returns the 16-bit offset field for a branch at pc to target.
func branchOffset(pc uint32, target int64) (uint32, error) {
	off := target - int64(pc) - 4
	if off&3 != 0 {
		return 0, errors.Errorf("misaligned branch target %#x", target)
	}
	if off>>2 < -0x8000 || off>>2 > 0x7FFF {
		return 0, errors.Errorf("branch target %#x out of range", target)
	}
	return uint32(off>>2) & 0xFFFF, nil
}

func rtype(enc, rs, rt, rd, sa uint32) uint32 {
	return enc | rs<<21 | rt<<16 | rd<<11 | sa<<6
}

func itype(enc, rs, rt, imm uint32) uint32 {
	return enc | rs<<21 | rt<<16 | imm&0xFFFF
}

// assemble encodes one instruction statement.
func (p *parser) assemble(st *stmt) ([]uint32, error) {
	ops := st.ops
	switch st.name {
	case "move":
		if err := p.wantOps(st, opReg, opReg); err != nil {
			return nil, err
		}
		return []uint32{rtype(opcodeIndex["addu"].enc, ops[1].reg, vm.RegZero, ops[0].reg, 0)}, nil
	case "li", "la":
		if err := p.wantOps(st, opReg, opExpr); err != nil {
			return nil, err
		}
		v, err := p.value(ops[1], -0x80000000, 0xFFFFFFFF)
		if err != nil {
			return nil, err
		}
		rt := ops[0].reg
		if st.size == 4 {
			if v < 0x8000 {
				return []uint32{itype(opcodeIndex["addiu"].enc, vm.RegZero, rt, uint32(v))}, nil
			}
			return []uint32{itype(opcodeIndex["ori"].enc, vm.RegZero, rt, uint32(v))}, nil
		}
		return []uint32{
			itype(opcodeIndex["lui"].enc, 0, rt, uint32(v)>>16),
			itype(opcodeIndex["ori"].enc, rt, rt, uint32(v)),
		}, nil
	case "b", "beqz", "bnez":
		rs := uint32(vm.RegZero)
		target := 0
		if st.name != "b" {
			if err := p.wantOps(st, opReg, opExpr); err != nil {
				return nil, err
			}
			rs, target = ops[0].reg, 1
		} else if err := p.wantOps(st, opExpr); err != nil {
			return nil, err
		}
		t, err := p.eval(ops[target].e)
		if err != nil {
			return nil, err
		}
		off, err := branchOffset(st.pc, t)
		if err != nil {
			return nil, err
		}
		name := "beq"
		if st.name == "bnez" {
			name = "bne"
		}
		return []uint32{itype(opcodeIndex[name].enc, rs, vm.RegZero, off)}, nil
	}

	op := opcodeIndex[st.name]
	w, err := p.encodeOp(op, st)
	if err != nil {
		return nil, err
	}
	return []uint32{w}, nil
}

func (p *parser) encodeOp(op *opcode, st *stmt) (uint32, error) {
	ops := st.ops
	switch op.f {
	case fmtNone:
		return op.enc, p.wantOps(st)
	case fmtRdRsRt:
		if err := p.wantOps(st, opReg, opReg, opReg); err != nil {
			return 0, err
		}
		return rtype(op.enc, ops[1].reg, ops[2].reg, ops[0].reg, 0), nil
	case fmtShift:
		if err := p.wantOps(st, opReg, opReg, opExpr); err != nil {
			return 0, err
		}
		sa, err := p.value(ops[2], 0, 31)
		if err != nil {
			return 0, err
		}
		return rtype(op.enc, 0, ops[1].reg, ops[0].reg, uint32(sa)), nil
	case fmtShiftV:
		if err := p.wantOps(st, opReg, opReg, opReg); err != nil {
			return 0, err
		}
		return rtype(op.enc, ops[2].reg, ops[1].reg, ops[0].reg, 0), nil
	case fmtRsRt:
		if err := p.wantOps(st, opReg, opReg); err != nil {
			return 0, err
		}
		return rtype(op.enc, ops[0].reg, ops[1].reg, 0, 0), nil
	case fmtTrap:
		var code int64
		if len(ops) == 3 {
			if err := p.wantOps(st, opReg, opReg, opExpr); err != nil {
				return 0, err
			}
			var err error
			if code, err = p.value(ops[2], 0, 0x3FF); err != nil {
				return 0, err
			}
		} else if err := p.wantOps(st, opReg, opReg); err != nil {
			return 0, err
		}
		return op.enc | ops[0].reg<<21 | ops[1].reg<<16 | uint32(code)<<6, nil
	case fmtRs:
		if err := p.wantOps(st, opReg); err != nil {
			return 0, err
		}
		return rtype(op.enc, ops[0].reg, 0, 0, 0), nil
	case fmtRd:
		if err := p.wantOps(st, opReg); err != nil {
			return 0, err
		}
		return rtype(op.enc, 0, 0, ops[0].reg, 0), nil
	case fmtJalr:
		if len(ops) == 1 {
			if err := p.wantOps(st, opReg); err != nil {
				return 0, err
			}
			return rtype(op.enc, ops[0].reg, 0, vm.RegRA, 0), nil
		}
		if err := p.wantOps(st, opReg, opReg); err != nil {
			return 0, err
		}
		return rtype(op.enc, ops[1].reg, 0, ops[0].reg, 0), nil
	case fmtCode:
		if len(ops) == 0 {
			return op.enc, nil
		}
		if err := p.wantOps(st, opExpr); err != nil {
			return 0, err
		}
		code, err := p.value(ops[0], 0, 0xFFFFF)
		if err != nil {
			return 0, err
		}
		return op.enc | uint32(code)<<6, nil
	case fmtRdRs:
		if err := p.wantOps(st, opReg, opReg); err != nil {
			return 0, err
		}
		return rtype(op.enc, ops[1].reg, ops[0].reg, ops[0].reg, 0), nil
	case fmtRdRt:
		if err := p.wantOps(st, opReg, opReg); err != nil {
			return 0, err
		}
		return rtype(op.enc, 0, ops[1].reg, ops[0].reg, 0), nil
	case fmtExt, fmtIns:
		if err := p.wantOps(st, opReg, opReg, opExpr, opExpr); err != nil {
			return 0, err
		}
		pos, err := p.value(ops[2], 0, 31)
		if err != nil {
			return 0, err
		}
		size, err := p.value(ops[3], 1, 32-pos)
		if err != nil {
			return 0, err
		}
		msb := size - 1
		if op.f == fmtIns {
			msb = pos + size - 1
		}
		return rtype(op.enc, ops[1].reg, ops[0].reg, uint32(msb), uint32(pos)), nil
	case fmtImm, fmtUImm:
		if err := p.wantOps(st, opReg, opReg, opExpr); err != nil {
			return 0, err
		}
		lo, hi := int64(-0x8000), int64(0x7FFF)
		if op.f == fmtUImm {
			lo, hi = 0, 0xFFFF
		}
		v, err := p.value(ops[2], lo, hi)
		if err != nil {
			return 0, err
		}
		return itype(op.enc, ops[1].reg, ops[0].reg, uint32(v)), nil
	case fmtLui:
		if err := p.wantOps(st, opReg, opExpr); err != nil {
			return 0, err
		}
		v, err := p.value(ops[1], 0, 0xFFFF)
		if err != nil {
			return 0, err
		}
		return itype(op.enc, 0, ops[0].reg, uint32(v)), nil
	case fmtMem:
		if err := p.wantOps(st, opReg, opMem); err != nil {
			return 0, err
		}
		var off int64
		if len(ops[1].e) > 0 {
			var err error
			if off, err = p.value(ops[1], -0x8000, 0x7FFF); err != nil {
				return 0, err
			}
		}
		return itype(op.enc, ops[1].reg, ops[0].reg, uint32(off)), nil
	case fmtBranch2, fmtBranch1:
		var rt uint32
		target := ops
		if op.f == fmtBranch2 {
			if err := p.wantOps(st, opReg, opReg, opExpr); err != nil {
				return 0, err
			}
			rt, target = ops[1].reg, ops[2:]
		} else {
			if err := p.wantOps(st, opReg, opExpr); err != nil {
				return 0, err
			}
			target = ops[1:]
		}
		t, err := p.eval(target[0].e)
		if err != nil {
			return 0, err
		}
		off, err := branchOffset(st.pc, t)
		if err != nil {
			return 0, err
		}
		return op.enc | ops[0].reg<<21 | rt<<16 | off, nil
	case fmtJump:
		if err := p.wantOps(st, opExpr); err != nil {
			return 0, err
		}
		t, err := p.value(ops[0], 0, 0xFFFFFFFF)
		if err != nil {
			return 0, err
		}
		if t&3 != 0 || uint32(t)&0xF0000000 != (st.pc+4)&0xF0000000 {
			return 0, errors.Errorf("jump target %#x unreachable", t)
		}
		return op.enc | uint32(t)>>2&0x3FFFFFF, nil
	}
	return 0, errors.Errorf("unsupported format %d", op.f)
}
