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
	"fmt"
	"os"
	"strings"

	"github.com/ParkerTenBroeck/SRTMT/asm"
)

// Assembles a short program and prints it back. Pseudo-instructions show up
// as the machine instructions they expand to.
func ExampleAssemble() {
	code := `
		.equ	PRINT_INT, 1	# syscall ids are plain constants

main:	li	$a0, 42
		syscall	PRINT_INT
		bnez	$a0, done
		nop			# skipped when the branch is not taken
		j	main
done:	syscall			# exit
`

	img, err := asm.Assemble("raw_string", strings.NewReader(code))
	if err != nil {
		fmt.Println(err)
		return
	}

	asm.DisassembleAll(img, 0, os.Stdout)

	// Output:
	// 00000000	addiu $a0, $zero, 42
	// 00000004	syscall 1
	// 00000008	bne $a0, $zero, 0x000014
	// 0000000c	nop
	// 00000010	j 0x000000
	// 00000014	syscall
}

func ExampleErrAsm() {
	code := "\tli $a0, 1\n\tlw $a0, 4($q)\n"
	_, err := asm.Assemble("prog.s", strings.NewReader(code))
	for _, e := range err.(asm.ErrAsm) {
		fmt.Println(e.Pos.Line, e.Msg)
	}

	// Output:
	// 2 invalid register $q
}
