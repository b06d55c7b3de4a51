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


// Package vm implements a virtual machine for 32-bit little-endian MIPS guest
// programs.
//
// A System runs any number of tasks on a single goroutine. Each task has its
// own registers and a small page table mapping 64 KiB pages at virtual page
// numbers; pages are reference counted and may be shared between tasks of the
// same process. The Scheduler picks the task that has been available to run
// the longest and sizes its slice so that each slice takes about the same
// wall time regardless of host speed.
//
// Tasks talk to the System through the syscall instruction. The call id is
// taken from the instruction's code field, arguments from $a0 and $a1 and
// results are returned in $v0 and $v1:
//
//	0    exit
//	1    print $a0 as a signed decimal integer
//	4    print the zero terminated UTF-8 string at $a0
//	5    print the byte $a0; output is buffered per task until a newline
//	50   sleep $a0 milliseconds
//	51   sleep $a0 milliseconds minus the time elapsed since the previous call
//	60   current time in ns since the Unix epoch, low half in $v0, high in $v1
//	99   random integer in [$a0, $a1] in $v0
//	100  spawn a task at $a0 with $a0 = $a1; its id is returned in $v0
//	101  sleep $a0 | $a1<<32 nanoseconds
//	102  yield
//
// The machine differs from a real MIPS in one important way: there are no
// delay slots. The PC is incremented before an instruction executes, a taken
// branch adds its offset to the incremented PC, and a branch that is not
// taken skips the following word.
//
// Guest faults (overflow, division by zero, unmapped or misaligned memory,
// invalid instructions or calls) kill the faulting task and are reported as
// *Fault values; they never stop the System.
package vm
