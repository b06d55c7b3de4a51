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


// Package asm provides utility functions to assemble and disassemble SRTMT
// guest code.
//
// The assembler reads MIPS32 assembly, one statement per line, and produces a
// little-endian image that starts at address 0. Comments start with '#' and
// run to the end of the line.
//
// Registers are written with a leading '$', either by ABI name ($zero, $at,
// $v0-$v1, $a0-$a3, $t0-$t9, $s0-$s8, $k0-$k1, $gp, $sp, $fp, $ra) or by
// number ($0-$31). Memory operands use the usual offset($base) form.
//
// Expressions are sums and differences of integer literals (Go syntax, so
// 0x10, 0b101 and 017 all work), character literals and symbols:
//
//	li	$a0, 'A'+1
//	lw	$t0, buf+4($gp)
//
// Labels:
//
// A label is an identifier followed by a colon. It may be used before it is
// defined anywhere an expression is expected:
//
//	loop:	addiu	$t0, $t0, -1
//		bnez	$t0, loop
//		nop
//
// Branches:
//
// Branch and jump targets are absolute addresses (usually labels). The
// machine has no delay slots: a taken branch goes to its target and a branch
// that is not taken skips the following word, so a branch is normally
// followed by a nop. jal and jalr link to the address of the following word,
// which is executed on return.
//
// Directives:
//
//	.org <value>		set the address of the next statement
//	.align <n>		align the next statement on 2^n bytes
//	.equ <NAME>, <value>	define a constant
//	.word <value>, ...	32-bit little-endian values
//	.half <value>, ...	16-bit values
//	.byte <value>, ...	8-bit values
//	.ascii "text"		raw bytes of a Go string literal
//	.asciiz "text"		same as .ascii, zero terminated
//
// Pseudo-instructions:
//
//	nop			sll $zero, $zero, 0
//	move $rd, $rs		addu $rd, $rs, $zero
//	li $rt, <value>		addiu, ori or lui+ori depending on the value
//	la $rt, <address>	lui+ori
//	b <target>		beq $zero, $zero, <target>
//	beqz $rs, <target>	beq $rs, $zero, <target>
//	bnez $rs, <target>	bne $rs, $zero, <target>
//
// li only shrinks to a single instruction when its value is made of literals
// and constants defined earlier.
package asm
