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


package asm_test

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/ParkerTenBroeck/SRTMT/asm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(t *testing.T, img []byte) []uint32 {
	t.Helper()
	require.Zero(t, len(img)%4, "image size")
	w := make([]uint32, len(img)/4)
	for i := range w {
		w[i] = binary.LittleEndian.Uint32(img[i*4:])
	}
	return w
}

func assemble(t *testing.T, code string) []byte {
	t.Helper()
	img, err := asm.Assemble(t.Name(), strings.NewReader(code))
	require.NoError(t, err)
	return img
}

// check some errors. We're not checking the messages, rather that they point at
// the correct place.
func TestAssemble_errors(t *testing.T) {
	code := "\tfoo $t0\n" +
		"\tlw $t0, 2($zz)\n" +
		"\taddiu $t0, $t0, 1 2\n" +
		"\t.bogus 1\n" +
		"dup:\n" +
		"dup:\n"
	_, err := asm.Assemble("test_errors", strings.NewReader(code))
	require.Error(t, err)
	errs, ok := err.(asm.ErrAsm)
	require.True(t, ok, "%T", err)
	var lines []int
	for _, e := range errs {
		lines = append(lines, e.Pos.Line)
		assert.Equal(t, "test_errors", e.Pos.Filename)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 6}, lines)

	// resolution errors are only reported once parsing succeeded
	for _, code := range []string{
		"\taddiu $t0, $t0, 100000\n",
		"\tbeq $t0, $t1, nowhere\n",
		"\tsll $t0, $t0, 32\n",
		"\tj 0x10000000\n",
		"\tbeq $t0, $t1, 2\n",
	} {
		_, err := asm.Assemble("test_errors", strings.NewReader(code))
		require.Error(t, err, code)
		errs := err.(asm.ErrAsm)
		require.Len(t, errs, 1, code)
		assert.Equal(t, 1, errs[0].Pos.Line, code)
	}
}

func TestAssemble_encoding(t *testing.T) {
	data := []struct {
		code string
		want uint32
	}{
		{"nop", 0x00000000},
		{"syscall", 0x0000000C},
		{"syscall 1", 0x0000004C},
		{"break 534", 534<<6 | 0x0D},
		{"addiu $a0, $zero, 42", 0x2404002A},
		{"addiu $a0, $0, -1", 0x2404FFFF},
		{"add $t0, $t1, $t2", 0x012A4020},
		{"lw $t0, 4($sp)", 0x8FA80004},
		{"sw $ra, -4($sp)", 0xAFBFFFFC},
		{"sb $a0, ($a1)", 0xA0A40000},
		{"lui $at, 0x1234", 0x3C011234},
		{"ori $t0, $t0, 0xFFFF", 0x3508FFFF},
		{"jr $ra", 0x03E00008},
		{"jalr $t9", 0x0320F809},
		{"sll $t0, $t1, 4", 0x00094100},
		{"mult $a0, $a1", 0x00850018},
		{"mfhi $v0", 0x00001010},
		{"teq $zero, $zero, 7", 0x000001F4},
		{"move $a0, $s0", 0x02002021},
		{"li $t0, 'A'", 0x24080041},
		{"li $t0, 0xFFFF", 0x3408FFFF},
		{"clz $v0, $a0", 0x70821020},
		{"seb $v0, $a0", 0x7C041420},
	}
	for _, d := range data {
		w := words(t, assemble(t, d.code))
		require.Len(t, w, 1, d.code)
		assert.Equal(t, d.want, w[0], "%s: got %#08x", d.code, w[0])
	}
}

func TestAssemble_labels(t *testing.T) {
	img := assemble(t, `
		.equ	BIG, 0x12345678
start:	beq	$t0, $t1, start		# backward
		nop
		bnez	$t0, end		# forward
		nop
		li	$t0, BIG
		li	$t1, end		# forward reference: always two words
		j	start
end:	jal	end
`)
	assert.Equal(t, []uint32{
		0x1109FFFF,
		0x00000000,
		0x15000006,
		0x00000000,
		0x3C081234,
		0x35085678,
		0x3C090000,
		0x35290024,
		0x08000000,
		0x0C000009,
	}, words(t, img))
}

func TestAssemble_directives(t *testing.T) {
	img := assemble(t, `
		.equ	N, 3
		.byte	1, N, 'x'
		.align	2
		.half	0x1234
		.org	0x10
msg:	.asciiz	"hi\n"
		.align	2
		.word	msg, msg+N
`)
	want := []byte{
		1, 3, 'x', 0, 0x34, 0x12, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
		'h', 'i', '\n', 0,
		0x10, 0, 0, 0, 0x13, 0, 0, 0,
	}
	assert.Equal(t, want, img)
}

func TestRoundTrip(t *testing.T) {
	code := `
		addiu	$sp, $sp, -16
		sw	$ra, 12($sp)
		lui	$a0, 0x8000
		ori	$a0, $a0, 0x10
		sltiu	$t0, $a0, 100
		beq	$t0, $zero, 0x24
		bltzal	$t1, 0
		j	0x100
		ll	$t0, 0($a0)
		sc	$t1, 0($a0)
		srav	$t2, $t3, $t4
		rotr	$t2, $t3, 7
		ext	$t0, $t1, 4, 8
		ins	$t0, $t1, 4, 8
		movn	$v0, $a0, $a1
		divu	$a0, $a1
		teq	$a0, $a1
		tne	$a0, $a1, 3
		jalr	$t0, $t9
		sync
		syscall	100
`
	img := assemble(t, code)
	var buf bytes.Buffer
	require.NoError(t, asm.DisassembleAll(img, 0, &buf))
	var src strings.Builder
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		_, ins, ok := strings.Cut(l, "\t")
		require.True(t, ok, l)
		src.WriteString(ins)
		src.WriteByte('\n')
	}
	again, err := asm.Assemble("roundtrip", strings.NewReader(src.String()))
	require.NoError(t, err, src.String())
	assert.Equal(t, img, again, src.String())
}
