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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ParkerTenBroeck/SRTMT/asm"
	"github.com/ParkerTenBroeck/SRTMT/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpFault(t *testing.T) {
	img, err := asm.Assemble("fault", strings.NewReader("li $a0, 'q'\n syscall 5\n div $a0, $zero\n syscall 0"))
	require.NoError(t, err)

	var buf bytes.Buffer
	s, err := vm.New(
		vm.Output(vm.WriterSink(&bytes.Buffer{})),
		vm.OnFault(func(task *vm.Task, f *vm.Fault) {
			assert.NoError(t, dumpFault(&buf, task, f))
		}))
	require.NoError(t, err)
	_, err = s.Load(img)
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "task 1 (process 1) killed: divide by zero")
	assert.Contains(t, out, "00000008\tdiv $a0, $zero\n")
	assert.Contains(t, out, `"q"`)
}

func TestInstructionAt(t *testing.T) {
	p := vm.NewPageStore(0).NewPage()
	p.Store32(0x10, 0x0000000C)
	task := vm.NewTask(1, 1)
	task.Map(p, 2)

	ins, ok := instructionAt(task, 0x20010)
	assert.True(t, ok)
	assert.Equal(t, vm.Instruction(0x0C), ins)
	_, ok = instructionAt(task, 0x20012)
	assert.False(t, ok)
	_, ok = instructionAt(task, 0x30010)
	assert.False(t, ok)
}

func TestAsmCommand(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "prog.s")
	require.NoError(t, os.WriteFile(src, []byte("\tli $a0, 1\n\tsyscall 1\n\tsyscall 0\n"), 0o644))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"asm", src})
	require.NoError(t, cmd.Execute())

	img, err := os.ReadFile(filepath.Join(dir, "prog.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 4, 0x24, 0x4C, 0, 0, 0, 0x0C, 0, 0, 0}, img)

	require.NoError(t, os.WriteFile(src, []byte("\tbogus\n"), 0o644))
	cmd = newRootCmd()
	cmd.SetArgs([]string{"asm", "-o", filepath.Join(dir, "x.bin"), src})
	assert.Error(t, cmd.Execute())
}
