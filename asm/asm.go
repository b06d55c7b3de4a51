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
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"text/scanner"

	"github.com/ParkerTenBroeck/SRTMT/internal/mvi"
	"github.com/ParkerTenBroeck/SRTMT/vm"
)

// format is the operand layout of an instruction.
type format uint8

const (
	fmtNone    format = iota // nop, sync
	fmtRdRsRt                // add $rd, $rs, $rt
	fmtShift                 // sll $rd, $rt, sa
	fmtShiftV                // sllv $rd, $rt, $rs
	fmtRsRt                  // mult $rs, $rt
	fmtTrap                  // teq $rs, $rt[, code]
	fmtRs                    // jr $rs
	fmtRd                    // mfhi $rd
	fmtJalr                  // jalr [$rd,] $rs
	fmtCode                  // syscall [code]
	fmtRdRs                  // clz $rd, $rs
	fmtRdRt                  // seb $rd, $rt
	fmtExt                   // ext $rt, $rs, pos, size
	fmtIns                   // ins $rt, $rs, pos, size
	fmtImm                   // addi $rt, $rs, imm
	fmtUImm                  // andi $rt, $rs, uimm
	fmtLui                   // lui $rt, uimm
	fmtMem                   // lw $rt, off($rs)
	fmtBranch2               // beq $rs, $rt, target
	fmtBranch1               // bltz $rs, target
	fmtJump                  // j target
)

// fixed returns the mask of the bits an instruction of format f always has
// set to the same value.
func (f format) fixed() uint32 {
	switch f {
	case fmtNone:
		return 0xFFFFFFFF
	case fmtRdRsRt, fmtShiftV, fmtRdRs:
		return 0xFC0007FF
	case fmtShift:
		return 0xFFE0003F
	case fmtRsRt:
		return 0xFC00FFFF
	case fmtTrap, fmtCode, fmtExt, fmtIns:
		return 0xFC00003F
	case fmtRs:
		return 0xFC1FFFFF
	case fmtRd:
		return 0xFFFF07FF
	case fmtJalr:
		return 0xFC1F07FF
	case fmtRdRt:
		return 0xFFE007FF
	case fmtBranch1:
		return 0xFC1F0000
	case fmtLui:
		return 0xFFE00000
	}
	return 0xFC000000
}

type opcode struct {
	name string
	f    format
	enc  uint32
}

func special(fn uint32) uint32  { return vm.OpSpecial<<26 | fn }
func special2(fn uint32) uint32 { return vm.OpSpecial2<<26 | fn }
func special3(fn uint32) uint32 { return vm.OpSpecial3<<26 | fn }
func regimm(rt uint32) uint32   { return vm.OpRegImm<<26 | rt<<16 }
func primary(op uint32) uint32  { return op << 26 }

// opcodes lists every instruction the interpreter executes. Order matters for
// disassembly: the first entry matching a word wins.
var opcodes = [...]opcode{
	{"nop", fmtNone, 0},
	{"sync", fmtNone, special(vm.FnSync)},
	{"sll", fmtShift, special(vm.FnSll)},
	{"srl", fmtShift, special(vm.FnSrl)},
	{"rotr", fmtShift, special(vm.FnSrl) | 1<<21},
	{"sra", fmtShift, special(vm.FnSra)},
	{"sllv", fmtShiftV, special(vm.FnSllv)},
	{"srlv", fmtShiftV, special(vm.FnSrlv)},
	{"rotrv", fmtShiftV, special(vm.FnSrlv) | 1<<6},
	{"srav", fmtShiftV, special(vm.FnSrav)},
	{"jr", fmtRs, special(vm.FnJr)},
	{"jalr", fmtJalr, special(vm.FnJalr)},
	{"movz", fmtRdRsRt, special(vm.FnMovz)},
	{"movn", fmtRdRsRt, special(vm.FnMovn)},
	{"syscall", fmtCode, special(vm.FnSyscall)},
	{"break", fmtCode, special(vm.FnBreak)},
	{"mfhi", fmtRd, special(vm.FnMfhi)},
	{"mthi", fmtRs, special(vm.FnMthi)},
	{"mflo", fmtRd, special(vm.FnMflo)},
	{"mtlo", fmtRs, special(vm.FnMtlo)},
	{"mult", fmtRsRt, special(vm.FnMult)},
	{"multu", fmtRsRt, special(vm.FnMultu)},
	{"div", fmtRsRt, special(vm.FnDiv)},
	{"divu", fmtRsRt, special(vm.FnDivu)},
	{"add", fmtRdRsRt, special(vm.FnAdd)},
	{"addu", fmtRdRsRt, special(vm.FnAddu)},
	{"sub", fmtRdRsRt, special(vm.FnSub)},
	{"subu", fmtRdRsRt, special(vm.FnSubu)},
	{"and", fmtRdRsRt, special(vm.FnAnd)},
	{"or", fmtRdRsRt, special(vm.FnOr)},
	{"xor", fmtRdRsRt, special(vm.FnXor)},
	{"nor", fmtRdRsRt, special(vm.FnNor)},
	{"slt", fmtRdRsRt, special(vm.FnSlt)},
	{"sltu", fmtRdRsRt, special(vm.FnSltu)},
	{"tge", fmtTrap, special(vm.FnTge)},
	{"tgeu", fmtTrap, special(vm.FnTgeu)},
	{"tlt", fmtTrap, special(vm.FnTlt)},
	{"tltu", fmtTrap, special(vm.FnTltu)},
	{"teq", fmtTrap, special(vm.FnTeq)},
	{"tne", fmtTrap, special(vm.FnTne)},

	{"bltz", fmtBranch1, regimm(vm.RtBltz)},
	{"bgez", fmtBranch1, regimm(vm.RtBgez)},
	{"bltzal", fmtBranch1, regimm(vm.RtBltzal)},
	{"bgezal", fmtBranch1, regimm(vm.RtBgezal)},
	{"j", fmtJump, primary(vm.OpJ)},
	{"jal", fmtJump, primary(vm.OpJal)},
	{"beq", fmtBranch2, primary(vm.OpBeq)},
	{"bne", fmtBranch2, primary(vm.OpBne)},
	{"blez", fmtBranch1, primary(vm.OpBlez)},
	{"bgtz", fmtBranch1, primary(vm.OpBgtz)},

	{"addi", fmtImm, primary(vm.OpAddi)},
	{"addiu", fmtImm, primary(vm.OpAddiu)},
	{"slti", fmtImm, primary(vm.OpSlti)},
	{"sltiu", fmtImm, primary(vm.OpSltiu)},
	{"andi", fmtUImm, primary(vm.OpAndi)},
	{"ori", fmtUImm, primary(vm.OpOri)},
	{"xori", fmtUImm, primary(vm.OpXori)},
	{"lui", fmtLui, primary(vm.OpLui)},

	{"mul", fmtRdRsRt, special2(vm.Fn2Mul)},
	{"clz", fmtRdRs, special2(vm.Fn2Clz)},
	{"clo", fmtRdRs, special2(vm.Fn2Clo)},

	{"ext", fmtExt, special3(vm.Fn3Ext)},
	{"ins", fmtIns, special3(vm.Fn3Ins)},
	{"wsbh", fmtRdRt, special3(vm.Fn3Bshfl) | vm.BshflWsbh<<6},
	{"seb", fmtRdRt, special3(vm.Fn3Bshfl) | vm.BshflSeb<<6},
	{"seh", fmtRdRt, special3(vm.Fn3Bshfl) | vm.BshflSeh<<6},

	{"lb", fmtMem, primary(vm.OpLb)},
	{"lh", fmtMem, primary(vm.OpLh)},
	{"lwl", fmtMem, primary(vm.OpLwl)},
	{"lw", fmtMem, primary(vm.OpLw)},
	{"lbu", fmtMem, primary(vm.OpLbu)},
	{"lhu", fmtMem, primary(vm.OpLhu)},
	{"lwr", fmtMem, primary(vm.OpLwr)},
	{"sb", fmtMem, primary(vm.OpSb)},
	{"sh", fmtMem, primary(vm.OpSh)},
	{"swl", fmtMem, primary(vm.OpSwl)},
	{"sw", fmtMem, primary(vm.OpSw)},
	{"swr", fmtMem, primary(vm.OpSwr)},
	{"ll", fmtMem, primary(vm.OpLl)},
	{"sc", fmtMem, primary(vm.OpSc)},
}

var opcodeIndex = make(map[string]*opcode)

func init() {
	for i := range opcodes {
		opcodeIndex[opcodes[i].name] = &opcodes[i]
	}
}

// ErrAsm is the error type returned by Assemble. It holds up to 10 errors.
type ErrAsm []struct {
	Pos scanner.Position
	Msg string
}

func (e ErrAsm) Error() string {
	var b strings.Builder
	for i, err := range e {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(err.Pos.String())
		b.WriteString(": ")
		b.WriteString(err.Msg)
	}
	return b.String()
}

// Assemble compiles assembly read from the supplied io.Reader and returns the
// resulting little-endian image, which starts at address 0.
//
// Then name parameter is used only in error messages to name the source of the
// error. If the io.Reader is a file, name should be the file name.
//
// The returned error, if not nil, can safely be cast to an ErrAsm value.
func Assemble(name string, r io.Reader) ([]byte, error) {
	p := newParser()
	img, err := p.Parse(name, r)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func reg(r uint32) string { return "$" + vm.RegisterNames[r] }

func lookup(ins vm.Instruction) *opcode {
	for i := range opcodes {
		op := &opcodes[i]
		if uint32(ins)&op.f.fixed() == op.enc {
			return op
		}
	}
	return nil
}

// Disassemble writes the disassembly of the instruction ins located at addr
// to w. Branch and jump targets are written as absolute addresses, so the
// output can be assembled again.
func Disassemble(ins vm.Instruction, addr uint32, w io.Writer) error {
	ew := mvi.NewErrWriter(w)
	op := lookup(ins)
	if op == nil {
		fmt.Fprintf(ew, ".word %#08x", uint32(ins))
		return ew.Err
	}
	rs, rt, rd, sa := ins.Rs(), ins.Rt(), ins.Rd(), ins.Shamt()
	ew.WriteString(op.name)
	switch op.f {
	case fmtRdRsRt:
		fmt.Fprintf(ew, " %s, %s, %s", reg(rd), reg(rs), reg(rt))
	case fmtShift:
		fmt.Fprintf(ew, " %s, %s, %d", reg(rd), reg(rt), sa)
	case fmtShiftV:
		fmt.Fprintf(ew, " %s, %s, %s", reg(rd), reg(rt), reg(rs))
	case fmtRsRt:
		fmt.Fprintf(ew, " %s, %s", reg(rs), reg(rt))
	case fmtTrap:
		fmt.Fprintf(ew, " %s, %s", reg(rs), reg(rt))
		if c := ins.TrapCode(); c != 0 {
			fmt.Fprintf(ew, ", %d", c)
		}
	case fmtRs:
		fmt.Fprintf(ew, " %s", reg(rs))
	case fmtRd:
		fmt.Fprintf(ew, " %s", reg(rd))
	case fmtJalr:
		if rd != vm.RegRA {
			fmt.Fprintf(ew, " %s,", reg(rd))
		}
		fmt.Fprintf(ew, " %s", reg(rs))
	case fmtCode:
		if c := ins.CallCode(); c != 0 {
			fmt.Fprintf(ew, " %d", c)
		}
	case fmtRdRs:
		fmt.Fprintf(ew, " %s, %s", reg(rd), reg(rs))
	case fmtRdRt:
		fmt.Fprintf(ew, " %s, %s", reg(rd), reg(rt))
	case fmtExt:
		fmt.Fprintf(ew, " %s, %s, %d, %d", reg(rt), reg(rs), sa, rd+1)
	case fmtIns:
		fmt.Fprintf(ew, " %s, %s, %d, %d", reg(rt), reg(rs), sa, int(rd)-int(sa)+1)
	case fmtImm:
		fmt.Fprintf(ew, " %s, %s, %d", reg(rt), reg(rs), int32(ins.SImm()))
	case fmtUImm:
		fmt.Fprintf(ew, " %s, %s, %#x", reg(rt), reg(rs), ins.Imm())
	case fmtLui:
		fmt.Fprintf(ew, " %s, %#x", reg(rt), ins.Imm())
	case fmtMem:
		fmt.Fprintf(ew, " %s, %d(%s)", reg(rt), int32(ins.SImm()), reg(rs))
	case fmtBranch2:
		fmt.Fprintf(ew, " %s, %s, %#08x", reg(rs), reg(rt), addr+4+ins.SImm()<<2)
	case fmtBranch1:
		fmt.Fprintf(ew, " %s, %#08x", reg(rs), addr+4+ins.SImm()<<2)
	case fmtJump:
		fmt.Fprintf(ew, " %#08x", (addr+4)&0xF0000000|ins.Target()<<2)
	}
	return ew.Err
}

// DisassembleAll writes a disassembly of the image img, one instruction per
// line. The base argument specifies the address of img[0]. Trailing bytes
// that do not make a full word are ignored.
func DisassembleAll(img []byte, base uint32, w io.Writer) error {
	ew := mvi.NewErrWriter(w)
	for off := 0; off+4 <= len(img); off += 4 {
		addr := base + uint32(off)
		fmt.Fprintf(ew, "%08x\t", addr)
		Disassemble(vm.Instruction(binary.LittleEndian.Uint32(img[off:])), addr, ew)
		ew.Write([]byte{'\n'})
		if ew.Err != nil {
			return ew.Err
		}
	}
	return nil
}
