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


// The srtmt command runs guest programs on the SRTMT virtual machine and
// assembles or disassembles them.
//
// Usage:
//
//	srtmt run [flags] image...
//	srtmt asm [-o output] source.s
//	srtmt disasm [--base addr] image
//
// Global flags:
//
//	--config file
//		  YAML configuration file (see package internal/config)
//	--log-level level
//		  trace, debug, info, warn or error
//	--log-modules list
//		  comma separated modules to trace: vm_sched, vm_task, vm_sys, vm_out
//	--debug
//		  print errors with their stack trace
//
// run: every image becomes the first task of its own process. Images are
// loaded in order, so the first one gets task id 1. With --asm the files are
// assembled first. Flags given on the command line override the values of the
// configuration file:
//
//	--asm                  treat the files as assembly sources
//	--fallback-quantum n   slice length before timing data is available
//	--target-slice d       wall time each slice aims at, e.g. 200us
//	--debug-fill           fill fresh pages with 0xdb
//	--malformed policy     kill or ignore tasks passing malformed call arguments
//	--format f             guest output: prefixed, plain or log
//	--seed n               seed of the random syscall
//	--stats                print scheduler statistics on exit
//
// A task killed by a fault is reported on stderr with a disassembly of the
// faulting instruction and a dump of its registers and mapping.
//
// asm: assembles a source file into a raw little-endian image. The default
// output name is the source name with its extension replaced by ".bin".
//
// disasm: disassembles an image, one instruction per line.
package main
