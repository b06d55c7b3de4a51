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

// Instruction is a raw 32-bit machine word.
type Instruction uint32

// Field accessors for the three instruction formats.

func (i Instruction) Opcode() uint32 { return uint32(i) >> 26 }
func (i Instruction) Rs() uint32     { return uint32(i) >> 21 & 0x1F }
func (i Instruction) Rt() uint32     { return uint32(i) >> 16 & 0x1F }
func (i Instruction) Rd() uint32     { return uint32(i) >> 11 & 0x1F }
func (i Instruction) Shamt() uint32  { return uint32(i) >> 6 & 0x1F }
func (i Instruction) Funct() uint32  { return uint32(i) & 0x3F }
func (i Instruction) Imm() uint32    { return uint32(i) & 0xFFFF }
func (i Instruction) Target() uint32 { return uint32(i) & 0x3FFFFFF }

// SImm returns the sign extended 16-bit immediate.
func (i Instruction) SImm() uint32 { return uint32(int32(int16(i))) }

// CallCode returns the 20-bit code field of syscall and break.
func (i Instruction) CallCode() uint32 { return uint32(i) >> 6 & 0xFFFFF }

// TrapCode returns the 10-bit code field of the register-compare traps.
func (i Instruction) TrapCode() uint32 { return uint32(i) >> 6 & 0x3FF }

// Primary opcodes.
const (
	OpSpecial  = 0x00
	OpRegImm   = 0x01
	OpJ        = 0x02
	OpJal      = 0x03
	OpBeq      = 0x04
	OpBne      = 0x05
	OpBlez     = 0x06
	OpBgtz     = 0x07
	OpAddi     = 0x08
	OpAddiu    = 0x09
	OpSlti     = 0x0A
	OpSltiu    = 0x0B
	OpAndi     = 0x0C
	OpOri      = 0x0D
	OpXori     = 0x0E
	OpLui      = 0x0F
	OpSpecial2 = 0x1C
	OpSpecial3 = 0x1F
	OpLb       = 0x20
	OpLh       = 0x21
	OpLwl      = 0x22
	OpLw       = 0x23
	OpLbu      = 0x24
	OpLhu      = 0x25
	OpLwr      = 0x26
	OpSb       = 0x28
	OpSh       = 0x29
	OpSwl      = 0x2A
	OpSw       = 0x2B
	OpSwr      = 0x2E
	OpLl       = 0x30
	OpSc       = 0x38
)

// Function field values for OpSpecial.
const (
	FnSll     = 0x00
	FnSrl     = 0x02 // rotr when rs == 1
	FnSra     = 0x03
	FnSllv    = 0x04
	FnSrlv    = 0x06 // rotrv when shamt == 1
	FnSrav    = 0x07
	FnJr      = 0x08
	FnJalr    = 0x09
	FnMovz    = 0x0A
	FnMovn    = 0x0B
	FnSyscall = 0x0C
	FnBreak   = 0x0D
	FnSync    = 0x0F
	FnMfhi    = 0x10
	FnMthi    = 0x11
	FnMflo    = 0x12
	FnMtlo    = 0x13
	FnMult    = 0x18
	FnMultu   = 0x19
	FnDiv     = 0x1A
	FnDivu    = 0x1B
	FnAdd     = 0x20
	FnAddu    = 0x21
	FnSub     = 0x22
	FnSubu    = 0x23
	FnAnd     = 0x24
	FnOr      = 0x25
	FnXor     = 0x26
	FnNor     = 0x27
	FnSlt     = 0x2A
	FnSltu    = 0x2B
	FnTge     = 0x30
	FnTgeu    = 0x31
	FnTlt     = 0x32
	FnTltu    = 0x33
	FnTeq     = 0x34
	FnTne     = 0x36
)

// rt field values for OpRegImm.
const (
	RtBltz   = 0x00
	RtBgez   = 0x01
	RtBltzal = 0x10
	RtBgezal = 0x11
)

// Function field values for OpSpecial2.
const (
	Fn2Mul = 0x02
	Fn2Clz = 0x20
	Fn2Clo = 0x21
)

// Function field values for OpSpecial3. BSHFL selects its operation with the
// shamt field.
const (
	Fn3Ext    = 0x00
	Fn3Ins    = 0x04
	Fn3Bshfl  = 0x20
	BshflWsbh = 0x02
	BshflSeb  = 0x10
	BshflSeh  = 0x18
)

// Register numbers with a fixed role in the calling convention.
const (
	RegZero = 0
	RegV0   = 2
	RegV1   = 3
	RegA0   = 4
	RegA1   = 5
	RegA2   = 6
	RegA3   = 7
	RegGP   = 28
	RegSP   = 29
	RegFP   = 30
	RegRA   = 31
)

// RegisterNames maps register numbers to their ABI names.
var RegisterNames = [32]string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
}

var registerIndex = make(map[string]uint32)

func init() {
	for i, v := range RegisterNames {
		registerIndex[v] = uint32(i)
	}
	registerIndex["s8"] = RegFP
}

// RegisterByName returns the number of the register with the given ABI name
// (without the leading '$'). Plain numbers are not handled here.
func RegisterByName(name string) (uint32, bool) {
	r, ok := registerIndex[name]
	return r, ok
}
