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


package main

import (
	"fmt"
	"io"

	"github.com/ParkerTenBroeck/SRTMT/asm"
	"github.com/ParkerTenBroeck/SRTMT/internal/mvi"
	"github.com/ParkerTenBroeck/SRTMT/vm"
)

// instructionAt reads the word at addr through t's mapping.
func instructionAt(t *vm.Task, addr uint32) (vm.Instruction, bool) {
	if addr&3 != 0 {
		return 0, false
	}
	for _, m := range t.Mapping {
		if uint32(m.VPN) == addr>>16 {
			return vm.Instruction(m.Page.Load32(uint16(addr))), true
		}
	}
	return 0, false
}

// dumpFault writes the fault that killed t, the faulting instruction when it
// can be read, and the task state to w.
func dumpFault(w io.Writer, t *vm.Task, f *vm.Fault) error {
	ew := mvi.NewErrWriter(w)
	fmt.Fprintf(ew, "task %d (process %d) killed: %v\n", t.ID(), t.PID(), f)
	if ins, ok := instructionAt(t, f.PC); ok {
		fmt.Fprintf(ew, "%08x\t", f.PC)
		asm.Disassemble(ins, f.PC, ew)
		ew.Write([]byte{'\n'})
	}
	t.Dump(ew)
	ew.Write([]byte{'\n'})
	return ew.Err
}
