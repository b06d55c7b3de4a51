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

import (
	"fmt"

	"github.com/pkg/errors"
)

// Dispatch level errors. A syscall handler returns one of these (possibly
// wrapped); the interpreter turns it into an InvalidOperation fault that
// still matches with errors.Is.
var (
	ErrInvalidCall       = errors.New("invalid call")
	ErrMalformedCallArgs = errors.New("malformed call arguments")
	ErrNotImplemented    = errors.New("call not implemented")
)

// FaultKind identifies the class of a guest fault.
type FaultKind uint8

// Fault kinds.
const (
	DivByZero FaultKind = iota + 1
	MemoryDoesNotExist
	InvalidOperation
	MemoryAlignment
	Overflow
)

var faultNames = [...]string{
	DivByZero:          "divide by zero",
	MemoryDoesNotExist: "memory does not exist",
	InvalidOperation:   "invalid operation",
	MemoryAlignment:    "misaligned memory access",
	Overflow:           "arithmetic overflow",
}

func (k FaultKind) String() string {
	if int(k) < len(faultNames) && faultNames[k] != "" {
		return faultNames[k]
	}
	return fmt.Sprintf("fault(%d)", uint8(k))
}

// Fault is an unrecoverable guest error. It kills the task that raised it but
// never the System.
type Fault struct {
	Kind  FaultKind
	PC    uint32 // address of the faulting instruction
	Addr  uint32 // MemoryDoesNotExist: offending address
	Width uint8  // MemoryAlignment: access width in bytes
	Op    uint32 // InvalidOperation: raw instruction or call id
	Ran   uint32 // instructions completed in the slice before the fault
	cause error
}

func (f *Fault) Error() string {
	var s string
	switch f.Kind {
	case MemoryDoesNotExist:
		s = fmt.Sprintf("%v: addr=%#08x pc=%#08x", f.Kind, f.Addr, f.PC)
	case MemoryAlignment:
		s = fmt.Sprintf("%v: width=%d pc=%#08x", f.Kind, f.Width, f.PC)
	case InvalidOperation:
		s = fmt.Sprintf("%v: op=%#08x pc=%#08x", f.Kind, f.Op, f.PC)
	default:
		s = fmt.Sprintf("%v: pc=%#08x", f.Kind, f.PC)
	}
	if f.cause != nil {
		s += ": " + f.cause.Error()
	}
	return s
}

// Unwrap returns the dispatch error that caused an InvalidOperation, if any.
func (f *Fault) Unwrap() error { return f.cause }

// invalidCall builds the fault for an unknown call id.
func invalidCall(id uint32) *Fault {
	return &Fault{Kind: InvalidOperation, Op: id, cause: ErrInvalidCall}
}
