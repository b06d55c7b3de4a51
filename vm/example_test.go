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


package vm_test

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ParkerTenBroeck/SRTMT/asm"
	"github.com/ParkerTenBroeck/SRTMT/vm"
)

// Assembles a small program, loads it in a new System and runs it to
// completion.
func Example() {
	code := `
		la	$a0, msg
		syscall	4		# print_cstr
		li	$a0, 42
		syscall	1		# print_i32
		li	$a0, '\n'
		syscall	5		# print_char
		syscall	0		# exit

msg:	.asciiz	"Hello, "
`
	img, err := asm.Assemble("hello", strings.NewReader(code))
	if err != nil {
		panic(err)
	}

	s, err := vm.New(vm.Output(vm.WriterSink(os.Stdout)))
	if err != nil {
		panic(err)
	}
	if _, err = s.Load(img); err != nil {
		panic(err)
	}
	n, err := s.Run(context.Background())
	fmt.Println(n, err)

	// Output:
	// Hello, 42
	// 7 <nil>
}

// A custom Sink receives the output of each task separately.
func ExampleSinkFunc() {
	sink := vm.SinkFunc(func(id vm.TaskID, text string) error {
		fmt.Printf("%d: %q\n", id, text)
		return nil
	})
	s, _ := vm.New(vm.Output(sink))
	img, _ := asm.Assemble("", strings.NewReader("li $a0, -5\n syscall 1\n syscall 0"))
	s.Load(img)
	s.RunBlocking()

	// Output:
	// 1: "-5"
}
